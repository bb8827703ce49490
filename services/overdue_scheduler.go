package services

import (
	"context"
	"fmt"
	"time"

	"microlending/models"
	"microlending/utils"

	"gorm.io/gorm"
)

// OverdueScheduler периодически ищет просроченные взносы и рассылает напоминания
type OverdueScheduler struct {
	db       *gorm.DB
	events   *Dispatcher
	metrics  *utils.Metrics
	interval time.Duration
	now      func() time.Time
}

// NewOverdueScheduler создает новый экземпляр OverdueScheduler
func NewOverdueScheduler(db *gorm.DB, events *Dispatcher, metrics *utils.Metrics, interval time.Duration) *OverdueScheduler {
	if metrics == nil {
		metrics = utils.NewMetrics()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &OverdueScheduler{
		db:       db,
		events:   events,
		metrics:  metrics,
		interval: interval,
		now:      utcNow,
	}
}

// SetClock подменяет источник текущего времени
func (s *OverdueScheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start запускает сканирование до отмены ctx
func (s *OverdueScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ScanOverdue(ctx); err != nil {
					utils.LogError("Ошибка при обработке просроченных взносов: %v", err)
				}
			}
		}
	}()
}

// ScanOverdue находит неоплаченные взносы с наступившим сроком и публикует события.
// Статус взноса не сохраняется: он вычисляется при чтении.
func (s *OverdueScheduler) ScanOverdue(ctx context.Context) (int, error) {
	startTime := time.Now()
	now := s.now()

	var entries []models.CollectionEntry
	err := s.db.WithContext(ctx).
		Where("due_date < ? AND paid_amount < period_amount", now).
		Order("due_date ASC").
		Find(&entries).Error
	if err != nil {
		utils.LogOperation("collections.scan_overdue", startTime, err)
		return 0, fmt.Errorf("ошибка при получении просроченных взносов: %w", err)
	}

	loans := make(map[string]*models.Loan)
	contacts := make(map[string]models.Contact)
	var events []Event

	for _, e := range entries {
		if e.Status(now) != models.CollectionOverdue {
			continue
		}

		loan, ok := loans[e.LoanID]
		if !ok {
			loan, err = findLoan(s.db.WithContext(ctx), e.LoanID)
			if err != nil {
				utils.LogError("overdue entry %s: %v", e.ReferenceNumber, err)
				continue
			}
			loans[e.LoanID] = loan
		}

		contact, ok := contacts[loan.BorrowerID]
		if !ok {
			contact = borrowerContact(s.db.WithContext(ctx), loan.BorrowerID)
			contacts[loan.BorrowerID] = contact
		}

		events = append(events, Event{
			Type:            EventCollectionOverdue,
			LoanID:          e.LoanID,
			BorrowerID:      loan.BorrowerID,
			ReferenceNumber: e.ReferenceNumber,
			Amount:          e.Remaining(),
			Balance:         loan.Balance,
			Contact:         contact,
			OccurredAt:      now,
		})
	}

	s.events.Dispatch(events...)
	s.metrics.RecordOverdueNotices(len(events))
	utils.LogOperation("collections.scan_overdue", startTime, nil)

	return len(events), nil
}
