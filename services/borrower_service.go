package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"microlending/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LoanSummary представляет краткие данные кредита
type LoanSummary struct {
	ID               string                  `json:"id"`
	Principal        decimal.Decimal         `json:"principal"`
	TotalPayable     decimal.Decimal         `json:"total_payable"`
	PaymentFrequency models.PaymentFrequency `json:"payment_frequency"`
	DateDisbursed    time.Time               `json:"date_disbursed"`
	IsReloan         bool                    `json:"is_reloan"`
	NextDue          *CollectionView         `json:"next_due,omitempty"`
}

// BorrowerSummary представляет сводку по заемщику
type BorrowerSummary struct {
	BorrowerID     string          `json:"borrower_id"`
	ActiveLoan     *LoanSummary    `json:"active_loan"`
	Balance        decimal.Decimal `json:"balance"`
	ProgressPct    int             `json:"progress_pct"`
	Score          float64         `json:"score"`
	Standing       StandingBand    `json:"standing"`
	ReloanEligible bool            `json:"reloan_eligible"`
	LoansCount     int             `json:"loans_count"`
}

// BorrowerService предоставляет сводные данные по заемщикам
type BorrowerService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewBorrowerService создает новый экземпляр BorrowerService
func NewBorrowerService(db *gorm.DB) *BorrowerService {
	return &BorrowerService{db: db, now: utcNow}
}

// SetClock подменяет источник текущего времени
func (s *BorrowerService) SetClock(now func() time.Time) {
	s.now = now
}

// GetBorrowerSummary возвращает активный кредит, остаток, прогресс, балл и право на повторный кредит
func (s *BorrowerService) GetBorrowerSummary(ctx context.Context, borrowerID string, actor Actor) (*BorrowerSummary, error) {
	if err := authorizeBorrowerAccess(actor, borrowerID); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var borrower models.Borrower
	if err := db.First(&borrower, "id = ?", borrowerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: заемщик %s", ErrNotFound, borrowerID)
		}
		return nil, fmt.Errorf("ошибка при поиске заемщика: %w", err)
	}

	history, err := loadBorrowerHistory(db, borrowerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	score := ScoreBorrower(*history, now)
	summary := &BorrowerSummary{
		BorrowerID:     borrowerID,
		Balance:        decimal.Zero,
		Score:          score.Score,
		Standing:       score.Band,
		ReloanEligible: score.ReloanEligible,
		LoansCount:     len(history.Loans),
	}

	// Активный кредит - последний с ненулевым остатком
	for i := len(history.Loans) - 1; i >= 0; i-- {
		lh := history.Loans[i]
		position := ComputePosition(&lh.Loan, lh.Entries)
		if position.Settled() {
			continue
		}
		summary.ActiveLoan = &LoanSummary{
			ID:               lh.Loan.ID,
			Principal:        lh.Loan.Principal,
			TotalPayable:     lh.Loan.TotalPayable,
			PaymentFrequency: lh.Loan.PaymentFrequency,
			DateDisbursed:    lh.Loan.DateDisbursed,
			IsReloan:         lh.Loan.IsReloan,
			NextDue:          nextDue(lh.Entries, now),
		}
		summary.Balance = position.Balance
		summary.ProgressPct = position.ProgressPct
		return summary, nil
	}

	// Все кредиты погашены: показываем прогресс последнего
	if latest := latestLoan(*history); latest != nil {
		summary.ProgressPct = ComputePosition(&latest.Loan, latest.Entries).ProgressPct
	}
	return summary, nil
}

// nextDue возвращает первый неоплаченный взнос
func nextDue(entries []models.CollectionEntry, now time.Time) *CollectionView {
	for _, e := range entries {
		if e.Remaining().IsPositive() {
			view := newCollectionView(e, now)
			return &view
		}
	}
	return nil
}

// loadBorrowerHistory читает кредиты заемщика с графиками и платежами
func loadBorrowerHistory(db *gorm.DB, borrowerID string) (*BorrowerHistory, error) {
	var loans []models.Loan
	err := db.Where("borrower_id = ?", borrowerID).
		Order("date_disbursed ASC, created_at ASC").
		Preload("Collections", func(db *gorm.DB) *gorm.DB { return db.Order("collection_number ASC") }).
		Find(&loans).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при чтении кредитов заемщика: %w", err)
	}

	history := &BorrowerHistory{BorrowerID: borrowerID}
	if len(loans) == 0 {
		return history, nil
	}

	loanIDs := make([]string, len(loans))
	for i, l := range loans {
		loanIDs[i] = l.ID
	}

	var payments []models.Payment
	if err := db.Where("loan_id IN ?", loanIDs).Order("date_paid ASC, created_at ASC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("ошибка при чтении платежей заемщика: %w", err)
	}
	byLoan := make(map[string][]models.Payment)
	for _, p := range payments {
		byLoan[p.LoanID] = append(byLoan[p.LoanID], p)
	}

	for _, l := range loans {
		entries := l.Collections
		l.Collections = nil
		history.Loans = append(history.Loans, LoanHistory{
			Loan:     l,
			Entries:  entries,
			Payments: byLoan[l.ID],
		})
	}
	return history, nil
}

// checkReloanEligibility проверяет право на повторный кредит и возвращает последний кредит
func checkReloanEligibility(db *gorm.DB, borrowerID string, now time.Time) (*models.Loan, error) {
	history, err := loadBorrowerHistory(db, borrowerID)
	if err != nil {
		return nil, err
	}

	latest := latestLoan(*history)
	if latest == nil {
		return nil, fmt.Errorf("%w: у заемщика нет кредитов", ErrReloanNotEligible)
	}

	position := ComputePosition(&latest.Loan, latest.Entries)
	if !ScoreBorrower(*history, now).ReloanEligible {
		return nil, fmt.Errorf("%w: погашено %d%%, требуется %d%%", ErrReloanNotEligible, position.ProgressPct, ReloanProgressThreshold)
	}

	loan := latest.Loan
	return &loan, nil
}
