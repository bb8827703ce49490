package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"microlending/models"
	"microlending/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PostPaymentDTO представляет данные платежа
type PostPaymentDTO struct {
	Amount   decimal.Decimal    `json:"amount" validate:"required,gt=0"`
	Mode     models.PaymentMode `json:"mode" validate:"required,oneof=Cash GCash BankTransfer Check"`
	DatePaid *time.Time         `json:"date_paid"`
}

// ReversePaymentDTO представляет запрос на сторно платежа
type ReversePaymentDTO struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// CollectionView представляет взнос с вычисленным статусом и остатком
type CollectionView struct {
	models.CollectionEntry
	Status    models.CollectionStatus `json:"status"`
	Remaining decimal.Decimal         `json:"remaining"`
}

func newCollectionView(e models.CollectionEntry, now time.Time) CollectionView {
	return CollectionView{
		CollectionEntry: e,
		Status:          e.Status(now),
		Remaining:       e.Remaining(),
	}
}

// PostingResult представляет результат проведения платежа или сторно
type PostingResult struct {
	Entry    CollectionView `json:"entry"`
	Payment  models.Payment `json:"payment"`
	Position LoanPosition   `json:"position"`
}

// AllocationResult представляет результат распределения суммы по взносам
type AllocationResult struct {
	Payments []models.Payment `json:"payments"`
	Entries  []CollectionView `json:"entries"`
	Position LoanPosition     `json:"position"`
}

// PaymentLedger проводит платежи по взносам и пересчитывает остаток кредита
type PaymentLedger struct {
	db        *gorm.DB
	validator *validator.Validate
	locker    utils.Locker
	events    *Dispatcher
	metrics   *utils.Metrics
	now       func() time.Time
}

// NewPaymentLedger создает новый экземпляр PaymentLedger
func NewPaymentLedger(db *gorm.DB, locker utils.Locker, events *Dispatcher, metrics *utils.Metrics) *PaymentLedger {
	if locker == nil {
		locker = utils.NewLocalLocker()
	}
	if metrics == nil {
		metrics = utils.NewMetrics()
	}
	return &PaymentLedger{
		db:        db,
		validator: newValidator(),
		locker:    locker,
		events:    events,
		metrics:   metrics,
		now:       utcNow,
	}
}

// SetClock подменяет источник текущего времени
func (l *PaymentLedger) SetClock(now func() time.Time) {
	l.now = now
}

// postingRoles - роли, которые могут принимать платежи
var postingRoles = []models.Role{models.RoleCollector, models.RoleLoanOfficer, models.RoleManager}

// PostPayment проводит платеж по взносу. Сумма не может превышать остаток взноса:
// излишек не переносится сам, его нужно провести через AllocatePayment.
func (l *PaymentLedger) PostPayment(ctx context.Context, referenceNumber string, dto PostPaymentDTO, actor Actor) (*PostingResult, error) {
	startTime := time.Now()

	if err := authorize(actor, postingRoles...); err != nil {
		return nil, err
	}
	if err := l.validatePayment(dto); err != nil {
		return nil, err
	}

	// Находим кредит взноса, чтобы взять его блокировку
	entry, err := findEntry(l.db.WithContext(ctx), referenceNumber)
	if err != nil {
		return nil, err
	}

	unlock, err := l.locker.Lock(ctx, "loan:"+entry.LoanID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Начинаем транзакцию
	tx := l.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}
	defer tx.Rollback()

	loan, entries, err := loadLoanForPosting(tx, entry.LoanID)
	if err != nil {
		return nil, err
	}

	// Проверяем остаток кредита
	if ComputePosition(loan, entries).Settled() {
		return nil, fmt.Errorf("%w: кредит %s", ErrLoanAlreadySettled, loan.ID)
	}

	target := findByReference(entries, referenceNumber)
	if target == nil {
		return nil, fmt.Errorf("%w: взнос %s", ErrNotFound, referenceNumber)
	}

	// Переплата по взносу не принимается
	if dto.Amount.GreaterThan(target.Remaining()) {
		return nil, &ExceedsDueError{Remaining: target.Remaining()}
	}

	now := l.now()
	payment, err := l.applyPayment(tx, loan, target, dto, actor, now)
	if err != nil {
		return nil, err
	}

	position, err := storePosition(tx, loan, entries, now)
	if err != nil {
		return nil, err
	}

	contact := borrowerContact(tx, loan.BorrowerID)

	// Подтверждаем транзакцию
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}

	utils.LogOperation("ledger.post_payment", startTime, nil)
	l.metrics.RecordPayment(false)
	l.events.Dispatch(postingEvents(loan, []models.Payment{*payment}, position, contact, now)...)

	return &PostingResult{
		Entry:    newCollectionView(*target, now),
		Payment:  *payment,
		Position: position,
	}, nil
}

// AllocatePayment распределяет сумму по неоплаченным взносам кредита в порядке номеров.
// Сумма не может превышать остаток кредита.
func (l *PaymentLedger) AllocatePayment(ctx context.Context, loanID string, dto PostPaymentDTO, actor Actor) (*AllocationResult, error) {
	startTime := time.Now()

	if err := authorize(actor, postingRoles...); err != nil {
		return nil, err
	}
	if err := l.validatePayment(dto); err != nil {
		return nil, err
	}

	unlock, err := l.locker.Lock(ctx, "loan:"+loanID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx := l.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}
	defer tx.Rollback()

	loan, entries, err := loadLoanForPosting(tx, loanID)
	if err != nil {
		return nil, err
	}

	position := ComputePosition(loan, entries)
	if position.Settled() {
		return nil, fmt.Errorf("%w: кредит %s", ErrLoanAlreadySettled, loan.ID)
	}
	if dto.Amount.GreaterThan(position.Balance) {
		return nil, &ExceedsDueError{Remaining: position.Balance}
	}

	now := l.now()
	left := dto.Amount
	result := &AllocationResult{}

	for i := range entries {
		if !left.IsPositive() {
			break
		}
		remaining := entries[i].Remaining()
		if !remaining.IsPositive() {
			continue
		}

		part := decimal.Min(left, remaining)
		payment, err := l.applyPayment(tx, loan, &entries[i], PostPaymentDTO{
			Amount:   part,
			Mode:     dto.Mode,
			DatePaid: dto.DatePaid,
		}, actor, now)
		if err != nil {
			return nil, err
		}

		left = left.Sub(part)
		result.Payments = append(result.Payments, *payment)
		result.Entries = append(result.Entries, newCollectionView(entries[i], now))
	}

	result.Position, err = storePosition(tx, loan, entries, now)
	if err != nil {
		return nil, err
	}

	contact := borrowerContact(tx, loan.BorrowerID)

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}

	utils.LogOperation("ledger.allocate_payment", startTime, nil)
	for range result.Payments {
		l.metrics.RecordPayment(false)
	}
	l.events.Dispatch(postingEvents(loan, result.Payments, result.Position, contact, now)...)

	return result, nil
}

// ReversePayment проводит сторно платежа: новая запись уменьшает оплату взноса.
// Исходный платеж не меняется, сторнировать его можно один раз.
func (l *PaymentLedger) ReversePayment(ctx context.Context, paymentID string, dto ReversePaymentDTO, actor Actor) (*PostingResult, error) {
	if err := authorize(actor, models.RoleManager); err != nil {
		return nil, err
	}
	if err := validateStruct(l.validator, dto); err != nil {
		return nil, err
	}

	var original models.Payment
	if err := l.db.WithContext(ctx).First(&original, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: платеж %s", ErrNotFound, paymentID)
		}
		return nil, fmt.Errorf("ошибка при поиске платежа: %w", err)
	}
	if original.Kind == models.PaymentKindReversal {
		return nil, newValidationError("сторно нельзя сторнировать")
	}

	unlock, err := l.locker.Lock(ctx, "loan:"+original.LoanID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx := l.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}
	defer tx.Rollback()

	var reversals int64
	if err := tx.Model(&models.Payment{}).Where("reversal_of = ?", original.ID).Count(&reversals).Error; err != nil {
		return nil, fmt.Errorf("ошибка при поиске сторно: %w", err)
	}
	if reversals > 0 {
		return nil, fmt.Errorf("%w: платеж %s", ErrAlreadyReversed, original.ID)
	}

	loan, entries, err := loadLoanForPosting(tx, original.LoanID)
	if err != nil {
		return nil, err
	}
	target := findByReference(entries, original.ReferenceNumber)
	if target == nil {
		return nil, fmt.Errorf("%w: взнос %s", ErrNotFound, original.ReferenceNumber)
	}

	paid := target.PaidAmount.Sub(original.Amount)
	if paid.IsNegative() {
		return nil, fmt.Errorf("оплата взноса %s меньше суммы сторно", target.ReferenceNumber)
	}

	now := l.now()
	reversal := models.Payment{
		ID:               uuid.NewString(),
		LoanID:           loan.ID,
		ReferenceNumber:  original.ReferenceNumber,
		CollectionNumber: original.CollectionNumber,
		Amount:           original.Amount,
		Kind:             models.PaymentKindReversal,
		ReversalOf:       &original.ID,
		Reason:           dto.Reason,
		Mode:             original.Mode,
		DatePaid:         now,
		PostedBy:         actor.ID,
		CreatedAt:        now,
	}
	if err := tx.Create(&reversal).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: платеж %s", ErrAlreadyReversed, original.ID)
		}
		return nil, fmt.Errorf("ошибка при создании сторно: %w", err)
	}

	if err := updatePaidAmount(tx, target, paid, now); err != nil {
		return nil, err
	}

	position, err := storePosition(tx, loan, entries, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}

	utils.LogInfo("payment %s reversed by %s: %s", original.ID, actor.ID, dto.Reason)
	l.metrics.RecordPayment(true)
	l.events.Dispatch(Event{
		Type:            EventPaymentReversed,
		LoanID:          loan.ID,
		BorrowerID:      loan.BorrowerID,
		ReferenceNumber: reversal.ReferenceNumber,
		Amount:          reversal.Amount,
		Balance:         position.Balance,
		OccurredAt:      now,
	})

	return &PostingResult{
		Entry:    newCollectionView(*target, now),
		Payment:  reversal,
		Position: position,
	}, nil
}

// UpdateNote меняет заметку сборщика по взносу
func (l *PaymentLedger) UpdateNote(ctx context.Context, referenceNumber, note string, actor Actor) (*CollectionView, error) {
	if err := authorize(actor, postingRoles...); err != nil {
		return nil, err
	}
	if len(note) > 500 {
		return nil, newValidationError("поле note должно содержать максимум 500 символов")
	}

	db := l.db.WithContext(ctx)
	result := db.Model(&models.CollectionEntry{}).
		Where("reference_number = ?", referenceNumber).
		Updates(map[string]interface{}{"note": note, "updated_at": l.now()})
	if result.Error != nil {
		return nil, fmt.Errorf("ошибка при обновлении заметки: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: взнос %s", ErrNotFound, referenceNumber)
	}

	entry, err := findEntry(db, referenceNumber)
	if err != nil {
		return nil, err
	}
	view := newCollectionView(*entry, l.now())
	return &view, nil
}

// AssignCollector назначает сборщика на все взносы кредита
func (l *PaymentLedger) AssignCollector(ctx context.Context, loanID, collectorID string, actor Actor) (int64, error) {
	if err := authorize(actor, models.RoleLoanOfficer, models.RoleManager); err != nil {
		return 0, err
	}
	if collectorID == "" {
		return 0, newValidationError("поле collector_id обязательно")
	}

	db := l.db.WithContext(ctx)
	if _, err := findLoan(db, loanID); err != nil {
		return 0, err
	}

	result := db.Model(&models.CollectionEntry{}).
		Where("loan_id = ?", loanID).
		Updates(map[string]interface{}{"collector_id": collectorID, "updated_at": l.now()})
	if result.Error != nil {
		return 0, fmt.Errorf("ошибка при назначении сборщика: %w", result.Error)
	}

	utils.LogInfo("collector %s assigned to loan %s", collectorID, loanID)
	return result.RowsAffected, nil
}

// ListCollectionsByLoan возвращает график кредита с вычисленными статусами
func (l *PaymentLedger) ListCollectionsByLoan(ctx context.Context, loanID string, actor Actor) ([]CollectionView, error) {
	db := l.db.WithContext(ctx)
	loan, err := findLoan(db, loanID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCollector {
		// Сборщик видит только кредиты, взносы которых назначены ему
		var assigned int64
		err := db.Model(&models.CollectionEntry{}).
			Where("loan_id = ? AND collector_id = ?", loanID, actor.ID).
			Count(&assigned).Error
		if err != nil {
			return nil, fmt.Errorf("ошибка при проверке назначения сборщика: %w", err)
		}
		if assigned == 0 {
			return nil, fmt.Errorf("%w: кредит не назначен сборщику", ErrForbidden)
		}
	} else if err := authorizeBorrowerAccess(actor, loan.BorrowerID); err != nil {
		return nil, err
	}

	var entries []models.CollectionEntry
	if err := db.Where("loan_id = ?", loanID).Order("collection_number ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("ошибка при чтении графика: %w", err)
	}
	return l.views(entries), nil
}

// ListCollectionsByCollector возвращает взносы сборщика по сроку оплаты
func (l *PaymentLedger) ListCollectionsByCollector(ctx context.Context, collectorID string, actor Actor) ([]CollectionView, error) {
	if actor.Role == models.RoleCollector {
		if actor.ID != collectorID {
			return nil, fmt.Errorf("%w: сборщик видит только свои взносы", ErrForbidden)
		}
	} else if err := authorize(actor, staffRoles...); err != nil {
		return nil, err
	}

	var entries []models.CollectionEntry
	err := l.db.WithContext(ctx).
		Where("collector_id = ?", collectorID).
		Order("due_date ASC, collection_number ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при чтении взносов сборщика: %w", err)
	}
	return l.views(entries), nil
}

// Position пересчитывает остаток и прогресс кредита по графику
func (l *PaymentLedger) Position(ctx context.Context, loanID string) (*LoanPosition, error) {
	db := l.db.WithContext(ctx)
	loan, err := findLoan(db, loanID)
	if err != nil {
		return nil, err
	}
	var entries []models.CollectionEntry
	if err := db.Where("loan_id = ?", loanID).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("ошибка при чтении графика: %w", err)
	}
	position := ComputePosition(loan, entries)
	return &position, nil
}

func (l *PaymentLedger) views(entries []models.CollectionEntry) []CollectionView {
	now := l.now()
	views := make([]CollectionView, len(entries))
	for i, e := range entries {
		views[i] = newCollectionView(e, now)
	}
	return views
}

func (l *PaymentLedger) validatePayment(dto PostPaymentDTO) error {
	if err := validateStruct(l.validator, dto); err != nil {
		return err
	}
	if !dto.Amount.Equal(dto.Amount.Round(2)) {
		return newValidationError("поле amount указано точнее копейки")
	}
	return nil
}

// applyPayment записывает платеж и увеличивает оплату взноса
func (l *PaymentLedger) applyPayment(tx *gorm.DB, loan *models.Loan, entry *models.CollectionEntry, dto PostPaymentDTO, actor Actor, now time.Time) (*models.Payment, error) {
	datePaid := now
	if dto.DatePaid != nil {
		datePaid = dto.DatePaid.UTC()
	}

	payment := &models.Payment{
		ID:               uuid.NewString(),
		LoanID:           loan.ID,
		ReferenceNumber:  entry.ReferenceNumber,
		CollectionNumber: entry.CollectionNumber,
		Amount:           dto.Amount,
		Kind:             models.PaymentKindPayment,
		Mode:             dto.Mode,
		DatePaid:         datePaid,
		PostedBy:         actor.ID,
		CreatedAt:        now,
	}
	if err := tx.Create(payment).Error; err != nil {
		return nil, fmt.Errorf("ошибка при сохранении платежа: %w", err)
	}

	if err := updatePaidAmount(tx, entry, entry.PaidAmount.Add(dto.Amount), now); err != nil {
		return nil, err
	}
	return payment, nil
}

// updatePaidAmount сохраняет новую оплату взноса и обновляет переданную копию
func updatePaidAmount(tx *gorm.DB, entry *models.CollectionEntry, paid decimal.Decimal, now time.Time) error {
	err := tx.Model(&models.CollectionEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{"paid_amount": paid, "updated_at": now}).Error
	if err != nil {
		return fmt.Errorf("ошибка при обновлении взноса: %w", err)
	}
	entry.PaidAmount = paid
	entry.UpdatedAt = now
	return nil
}

// storePosition пересчитывает остаток и прогресс и сохраняет их в кэш кредита
func storePosition(tx *gorm.DB, loan *models.Loan, entries []models.CollectionEntry, now time.Time) (LoanPosition, error) {
	position := ComputePosition(loan, entries)
	err := tx.Model(&models.Loan{}).
		Where("id = ?", loan.ID).
		Updates(map[string]interface{}{
			"balance":      position.Balance,
			"progress_pct": position.ProgressPct,
			"updated_at":   now,
		}).Error
	if err != nil {
		return LoanPosition{}, fmt.Errorf("ошибка при обновлении остатка кредита: %w", err)
	}
	loan.Balance = position.Balance
	loan.ProgressPct = position.ProgressPct
	return position, nil
}

// loadLoanForPosting читает кредит под блокировкой строки и его график
func loadLoanForPosting(tx *gorm.DB, loanID string) (*models.Loan, []models.CollectionEntry, error) {
	loan, err := findLoan(lockForUpdate(tx), loanID)
	if err != nil {
		return nil, nil, err
	}

	var entries []models.CollectionEntry
	if err := lockForUpdate(tx).Where("loan_id = ?", loanID).Order("collection_number ASC").Find(&entries).Error; err != nil {
		return nil, nil, fmt.Errorf("ошибка при чтении графика: %w", err)
	}
	return loan, entries, nil
}

func findLoan(db *gorm.DB, loanID string) (*models.Loan, error) {
	var loan models.Loan
	if err := db.First(&loan, "id = ?", loanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: кредит %s", ErrNotFound, loanID)
		}
		return nil, fmt.Errorf("ошибка при поиске кредита: %w", err)
	}
	return &loan, nil
}

func findEntry(db *gorm.DB, referenceNumber string) (*models.CollectionEntry, error) {
	var entry models.CollectionEntry
	if err := db.First(&entry, "reference_number = ?", referenceNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: взнос %s", ErrNotFound, referenceNumber)
		}
		return nil, fmt.Errorf("ошибка при поиске взноса: %w", err)
	}
	return &entry, nil
}

func findByReference(entries []models.CollectionEntry, referenceNumber string) *models.CollectionEntry {
	for i := range entries {
		if entries[i].ReferenceNumber == referenceNumber {
			return &entries[i]
		}
	}
	return nil
}

// borrowerContact возвращает контакт заемщика для уведомлений; ошибки чтения не мешают платежу
func borrowerContact(tx *gorm.DB, borrowerID string) models.Contact {
	var borrower models.Borrower
	if err := tx.First(&borrower, "id = ?", borrowerID).Error; err != nil {
		utils.LogError("failed to load borrower %s contact: %v", borrowerID, err)
		return models.Contact{}
	}
	return models.Contact{
		Name:  borrower.FirstName + " " + borrower.LastName,
		Email: borrower.Email,
		Phone: borrower.Phone,
	}
}

func postingEvents(loan *models.Loan, payments []models.Payment, position LoanPosition, contact models.Contact, now time.Time) []Event {
	events := make([]Event, 0, len(payments)+1)
	for _, p := range payments {
		events = append(events, Event{
			Type:            EventPaymentPosted,
			LoanID:          loan.ID,
			BorrowerID:      loan.BorrowerID,
			ReferenceNumber: p.ReferenceNumber,
			Amount:          p.Amount,
			Balance:         position.Balance,
			Contact:         contact,
			OccurredAt:      now,
		})
	}
	if position.Settled() {
		events = append(events, Event{
			Type:       EventLoanSettled,
			LoanID:     loan.ID,
			BorrowerID: loan.BorrowerID,
			Balance:    position.Balance,
			Contact:    contact,
			OccurredAt: now,
		})
	}
	return events
}
