package services

import (
	"context"
	"errors"
	"mime"
	"testing"
	"time"

	"microlending/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeMailSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeMailSender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestEmailServicePublish(t *testing.T) {
	sender := &fakeMailSender{}
	service := NewEmailServiceWithSender(sender, "no-reply@lending.local")
	at := time.Date(2025, time.January, 10, 14, 30, 0, 0, time.UTC)

	err := service.Publish(context.Background(), Event{
		Type:          EventInterviewScheduled,
		ApplicationID: "app-42",
		InterviewAt:   &at,
		Contact:       models.Contact{Name: "Maria Santos", Email: "maria@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, []string{"maria@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"no-reply@lending.local"}, msg.GetHeader("From"))
	subject := msg.GetHeader("Subject")
	require.Len(t, subject, 1)
	decoded, err := new(mime.WordDecoder).DecodeHeader(subject[0])
	require.NoError(t, err)
	assert.Equal(t, "Назначено собеседование по заявке", decoded)

	_, html, ok := renderNotification(Event{Type: EventInterviewScheduled, InterviewAt: &at})
	require.True(t, ok)
	assert.Contains(t, html, "10.01.2025 14:30")
}

func TestEmailServiceSkipsEvents(t *testing.T) {
	sender := &fakeMailSender{}
	service := NewEmailServiceWithSender(sender, "no-reply@lending.local")
	ctx := context.Background()

	// Без адреса письмо не отправляется
	require.NoError(t, service.Publish(ctx, Event{Type: EventApplicationDenied, ApplicationID: "app-1"}))

	// Для платежей шаблона нет
	require.NoError(t, service.Publish(ctx, Event{
		Type:    EventPaymentPosted,
		Contact: models.Contact{Email: "maria@example.com"},
	}))

	assert.Empty(t, sender.sent)
}

func TestEmailServiceSendError(t *testing.T) {
	sender := &fakeMailSender{err: errors.New("connection refused")}
	service := NewEmailServiceWithSender(sender, "no-reply@lending.local")

	err := service.Publish(context.Background(), Event{
		Type:    EventLoanSettled,
		LoanID:  "loan-1",
		Contact: models.Contact{Email: "maria@example.com"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRenderNotification(t *testing.T) {
	tests := []struct {
		event    Event
		contains string
	}{
		{Event{Type: EventApplicationDenied, ApplicationID: "app-7"}, "app-7"},
		{Event{Type: EventLoanGenerated, LoanID: "loan-7", Balance: decimal.NewFromInt(15000)}, "15000.00"},
		{Event{Type: EventLoanSettled, LoanID: "loan-7"}, "loan-7"},
		{Event{Type: EventCollectionOverdue, ReferenceNumber: "COL-AB-002", Amount: decimal.RequireFromString("1500.5")}, "1500.50"},
	}

	for _, tt := range tests {
		t.Run(string(tt.event.Type), func(t *testing.T) {
			subject, html, ok := renderNotification(tt.event)
			require.True(t, ok)
			assert.NotEmpty(t, subject)
			assert.Contains(t, html, tt.contains)
		})
	}

	_, _, ok := renderNotification(Event{Type: EventApplicationSubmitted})
	assert.False(t, ok)
}
