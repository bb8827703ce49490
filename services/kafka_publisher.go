package services

import (
	"context"
	"encoding/json"
	"fmt"

	"microlending/config"
	"microlending/utils"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaProducer описывает используемую часть producer из confluent-kafka-go
type KafkaProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher публикует доменные события в топик Kafka.
// Ключ сообщения - идентификатор кредита или заявки, чтобы события одной сущности шли по порядку.
type KafkaPublisher struct {
	producer KafkaProducer
	topic    string
}

// NewKafkaPublisher создает producer по настройкам из конфигурации
func NewKafkaPublisher(cfg *config.Config) (*KafkaPublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Kafka.Brokers,
		"client.id":         cfg.Kafka.ClientID,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания kafka producer: %w", err)
	}

	utils.LogInfo("kafka producer created for topic %s", cfg.Kafka.Topic)
	return NewKafkaPublisherWithProducer(producer, cfg.Kafka.Topic), nil
}

// NewKafkaPublisherWithProducer создает издателя поверх готового producer
func NewKafkaPublisherWithProducer(producer KafkaProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish отправляет событие и ждет отчета о доставке
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	key := event.LoanID
	if key == "" {
		key = event.ApplicationID
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(event.Type)}},
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("ошибка отправки события в kafka: %w", err)
	}

	select {
	case ev := <-deliveryChan:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("неожиданный тип события доставки: %T", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("доставка не удалась: %w", m.TopicPartition.Error)
		}
	case <-ctx.Done():
		return fmt.Errorf("не дождались отчета о доставке: %w", ctx.Err())
	}

	return nil
}

// Close дожидается отправки буфера и закрывает producer
func (p *KafkaPublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
