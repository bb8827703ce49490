package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CollectionStatus представляет статус взноса. Не хранится в базе,
// всегда вычисляется через Status.
type CollectionStatus string

const (
	CollectionUnpaid  CollectionStatus = "Unpaid"
	CollectionPartial CollectionStatus = "Partial"
	CollectionPaid    CollectionStatus = "Paid"
	CollectionOverdue CollectionStatus = "Overdue"
)

// CollectionEntry представляет один плановый взнос по кредиту
type CollectionEntry struct {
	ID               uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	LoanID           string          `gorm:"column:loan_id;not null;size:36;uniqueIndex:idx_collection_loan_number" json:"loan_id"`
	CollectionNumber int             `gorm:"column:collection_number;not null;uniqueIndex:idx_collection_loan_number" json:"collection_number"`
	ReferenceNumber  string          `gorm:"column:reference_number;not null;size:64;uniqueIndex" json:"reference_number"`
	DueDate          time.Time       `gorm:"column:due_date;not null;index" json:"due_date"`
	PeriodAmount     decimal.Decimal `gorm:"column:period_amount;type:decimal(20,2);not null" json:"period_amount"`
	PaidAmount       decimal.Decimal `gorm:"column:paid_amount;type:decimal(20,2);not null;default:0" json:"paid_amount"`
	Note             string          `gorm:"column:note;size:500" json:"note,omitempty"`
	CollectorID      string          `gorm:"column:collector_id;size:36;index" json:"collector_id,omitempty"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// TableName возвращает имя таблицы для модели CollectionEntry
func (CollectionEntry) TableName() string {
	return "collection_entries"
}

// Remaining возвращает неоплаченный остаток взноса
func (e CollectionEntry) Remaining() decimal.Decimal {
	remaining := e.PeriodAmount.Sub(e.PaidAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Status вычисляет статус взноса на момент now
func (e CollectionEntry) Status(now time.Time) CollectionStatus {
	switch {
	case e.PaidAmount.GreaterThanOrEqual(e.PeriodAmount):
		return CollectionPaid
	case e.PaidAmount.IsPositive():
		return CollectionPartial
	case now.After(e.DueDate):
		return CollectionOverdue
	default:
		return CollectionUnpaid
	}
}
