package services

import (
	"fmt"
	"time"

	"microlending/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LoanTerms содержит рассчитанные параметры кредита
type LoanTerms struct {
	Principal     decimal.Decimal `json:"principal"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	TermInPeriods int             `json:"term_in_periods"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
	PeriodDue     decimal.Decimal `json:"period_due"`
}

// CalculateTerms рассчитывает кредит по простой фиксированной ставке за период:
// проценты = сумма * ставка/100 * число периодов.
func CalculateTerms(principal, ratePercent decimal.Decimal, termInPeriods int) (LoanTerms, error) {
	// Проверяем параметры
	if !principal.IsPositive() {
		return LoanTerms{}, fmt.Errorf("%w: сумма кредита должна быть больше 0", ErrInvalidLoanTerms)
	}
	if !principal.Equal(principal.Round(2)) {
		return LoanTerms{}, fmt.Errorf("%w: сумма кредита указана точнее копейки", ErrInvalidLoanTerms)
	}
	if termInPeriods < 1 {
		return LoanTerms{}, fmt.Errorf("%w: срок должен быть не меньше одного периода", ErrInvalidLoanTerms)
	}
	if ratePercent.IsNegative() {
		return LoanTerms{}, fmt.Errorf("%w: ставка не может быть отрицательной", ErrInvalidLoanTerms)
	}

	term := decimal.NewFromInt(int64(termInPeriods))
	totalInterest := principal.Mul(ratePercent).Div(hundred).Mul(term).Round(2)
	totalPayable := principal.Add(totalInterest)
	periodDue := totalPayable.Div(term).Truncate(2)
	if !periodDue.IsPositive() {
		return LoanTerms{}, fmt.Errorf("%w: взнос за период меньше копейки", ErrInvalidLoanTerms)
	}

	return LoanTerms{
		Principal:     principal,
		InterestRate:  ratePercent,
		TermInPeriods: termInPeriods,
		TotalInterest: totalInterest,
		TotalPayable:  totalPayable,
		PeriodDue:     periodDue,
	}, nil
}

// NewLoanFromApplication создает кредит и его график по одобренной заявке.
// Ничего не сохраняет.
func NewLoanFromApplication(app *models.Application, disbursedAt time.Time, idempotencyKey string) (*models.Loan, error) {
	terms, err := CalculateTerms(app.Amount, app.InterestRate, app.TermInPeriods)
	if err != nil {
		return nil, err
	}

	loan := &models.Loan{
		ID:               uuid.NewString(),
		ApplicationID:    app.ID,
		IdempotencyKey:   idempotencyKey,
		BorrowerID:       app.BorrowerID,
		Principal:        terms.Principal,
		InterestRate:     terms.InterestRate,
		TermInPeriods:    terms.TermInPeriods,
		PaymentFrequency: app.PaymentFrequency,
		DateDisbursed:    disbursedAt,
		TotalInterest:    terms.TotalInterest,
		TotalPayable:     terms.TotalPayable,
		PeriodDue:        terms.PeriodDue,
		IsReloan:         app.IsReloan,
		Balance:          terms.TotalPayable,
		ProgressPct:      0,
	}

	collections, err := ScheduleCollections(loan)
	if err != nil {
		return nil, err
	}
	loan.Collections = collections

	return loan, nil
}
