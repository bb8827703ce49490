package services

import (
	"context"
	"time"

	"microlending/models"
	"microlending/utils"

	"github.com/shopspring/decimal"
)

// EventType представляет тип доменного события
type EventType string

const (
	EventApplicationSubmitted EventType = "ApplicationSubmitted"
	EventInterviewScheduled   EventType = "InterviewScheduled"
	EventApplicationDenied    EventType = "ApplicationDenied"
	EventApplicationApproved  EventType = "ApplicationApproved"
	EventLoanGenerated        EventType = "LoanGenerated"
	EventPaymentPosted        EventType = "PaymentPosted"
	EventPaymentReversed      EventType = "PaymentReversed"
	EventLoanSettled          EventType = "LoanSettled"
	EventCollectionOverdue    EventType = "CollectionOverdue"
)

// Event представляет событие, публикуемое после фиксации транзакции
type Event struct {
	Type            EventType                `json:"type"`
	ApplicationID   string                   `json:"application_id,omitempty"`
	LoanID          string                   `json:"loan_id,omitempty"`
	BorrowerID      string                   `json:"borrower_id,omitempty"`
	ReferenceNumber string                   `json:"reference_number,omitempty"`
	Status          models.ApplicationStatus `json:"status,omitempty"`
	Amount          decimal.Decimal          `json:"amount"`
	Balance         decimal.Decimal          `json:"balance"`
	InterviewAt     *time.Time               `json:"interview_at,omitempty"`
	Contact         models.Contact           `json:"contact"`
	OccurredAt      time.Time                `json:"occurred_at"`
}

// Publisher доставляет событие во внешний канал (почта, шина событий)
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Dispatcher асинхронно передает события всем издателям через пул воркеров.
// Ошибки доставки только логируются.
type Dispatcher struct {
	pool       *utils.WorkerPool
	publishers []Publisher
	timeout    time.Duration
}

// NewDispatcher создает новый экземпляр Dispatcher
func NewDispatcher(pool *utils.WorkerPool, publishers ...Publisher) *Dispatcher {
	return &Dispatcher{
		pool:       pool,
		publishers: publishers,
		timeout:    15 * time.Second,
	}
}

// Dispatch ставит события в очередь. Nil-диспетчер ничего не делает.
func (d *Dispatcher) Dispatch(events ...Event) {
	if d == nil || len(d.publishers) == 0 {
		return
	}

	for _, event := range events {
		event := event
		for _, p := range d.publishers {
			p := p
			submitted := d.pool.Submit(func() {
				ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
				defer cancel()
				if err := p.Publish(ctx, event); err != nil {
					utils.LogError("failed to publish %s event: %v", event.Type, err)
				}
			})
			if !submitted {
				utils.LogError("event queue is full, %s event dropped", event.Type)
			}
		}
	}
}
