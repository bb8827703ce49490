package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentFrequency представляет периодичность платежей
type PaymentFrequency string

const (
	FrequencyWeekly    PaymentFrequency = "Weekly"
	FrequencyBiWeekly  PaymentFrequency = "Bi-weekly"
	FrequencyMonthly   PaymentFrequency = "Monthly"
	FrequencyQuarterly PaymentFrequency = "Quarterly"
)

// Loan представляет выданный кредит.
// Balance и ProgressPct - кэш, пересчитываемый из графика при каждом платеже.
type Loan struct {
	ID               string            `gorm:"column:id;primaryKey;size:36" json:"id"`
	ApplicationID    string            `gorm:"column:application_id;not null;size:36;index" json:"application_id"`
	IdempotencyKey   string            `gorm:"column:idempotency_key;not null;size:64;uniqueIndex" json:"-"`
	BorrowerID       string            `gorm:"column:borrower_id;not null;size:36;index" json:"borrower_id"`
	Principal        decimal.Decimal   `gorm:"column:principal;type:decimal(20,2);not null" json:"principal"`
	InterestRate     decimal.Decimal   `gorm:"column:interest_rate;type:decimal(8,4);not null" json:"interest_rate"`
	TermInPeriods    int               `gorm:"column:term_in_periods;not null" json:"term_in_periods"`
	PaymentFrequency PaymentFrequency  `gorm:"column:payment_frequency;type:varchar(16);not null" json:"payment_frequency"`
	DateDisbursed    time.Time         `gorm:"column:date_disbursed;not null" json:"date_disbursed"`
	TotalInterest    decimal.Decimal   `gorm:"column:total_interest;type:decimal(20,2);not null" json:"total_interest"`
	TotalPayable     decimal.Decimal   `gorm:"column:total_payable;type:decimal(20,2);not null" json:"total_payable"`
	PeriodDue        decimal.Decimal   `gorm:"column:period_due;type:decimal(20,2);not null" json:"period_due"`
	IsReloan         bool              `gorm:"column:is_reloan;not null;default:false" json:"is_reloan"`
	Balance          decimal.Decimal   `gorm:"column:balance;type:decimal(20,2);not null" json:"balance"`
	ProgressPct      int               `gorm:"column:progress_pct;not null;default:0" json:"progress_pct"`
	Collections      []CollectionEntry `gorm:"foreignKey:LoanID" json:"collections,omitempty"`
	CreatedAt        time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

// TableName возвращает имя таблицы для модели Loan
func (Loan) TableName() string {
	return "loans"
}
