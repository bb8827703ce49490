package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProducer подтверждает доставку сразу или возвращает заданную ошибку
type fakeProducer struct {
	messages    []*kafka.Message
	produceErr  error
	deliveryErr error
	noReport    bool
	flushed     bool
	closed      bool
}

func (p *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if p.produceErr != nil {
		return p.produceErr
	}
	p.messages = append(p.messages, msg)
	if p.noReport {
		return nil
	}
	report := *msg
	report.TopicPartition.Error = p.deliveryErr
	deliveryChan <- &report
	return nil
}

func (p *fakeProducer) Flush(timeoutMs int) int {
	p.flushed = true
	return 0
}

func (p *fakeProducer) Close() {
	p.closed = true
}

func TestKafkaPublisherPublish(t *testing.T) {
	producer := &fakeProducer{}
	publisher := NewKafkaPublisherWithProducer(producer, "lending.events")

	err := publisher.Publish(context.Background(), Event{
		Type:          EventPaymentPosted,
		ApplicationID: "app-1",
		LoanID:        "loan-1",
		Amount:        decimal.NewFromInt(3000),
		Balance:       decimal.NewFromInt(12000),
	})
	require.NoError(t, err)
	require.Len(t, producer.messages, 1)

	msg := producer.messages[0]
	assert.Equal(t, "lending.events", *msg.TopicPartition.Topic)
	assert.Equal(t, "loan-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, string(EventPaymentPosted), string(msg.Headers[0].Value))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "PaymentPosted", decoded["type"])
	assert.Equal(t, "3000", decoded["amount"])
}

func TestKafkaPublisherKeysByApplication(t *testing.T) {
	producer := &fakeProducer{}
	publisher := NewKafkaPublisherWithProducer(producer, "lending.events")

	require.NoError(t, publisher.Publish(context.Background(), Event{Type: EventApplicationSubmitted, ApplicationID: "app-9"}))
	assert.Equal(t, "app-9", string(producer.messages[0].Key))
}

func TestKafkaPublisherErrors(t *testing.T) {
	ctx := context.Background()

	failing := NewKafkaPublisherWithProducer(&fakeProducer{produceErr: errors.New("queue full")}, "t")
	assert.ErrorContains(t, failing.Publish(ctx, Event{Type: EventLoanSettled}), "queue full")

	undelivered := NewKafkaPublisherWithProducer(&fakeProducer{deliveryErr: kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)}, "t")
	assert.Error(t, undelivered.Publish(ctx, Event{Type: EventLoanSettled}))

	silent := NewKafkaPublisherWithProducer(&fakeProducer{noReport: true}, "t")
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := silent.Publish(cancelled, Event{Type: EventLoanSettled})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestKafkaPublisherClose(t *testing.T) {
	producer := &fakeProducer{}
	NewKafkaPublisherWithProducer(producer, "t").Close()
	assert.True(t, producer.flushed)
	assert.True(t, producer.closed)
}
