package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrAppendOnly возвращается при попытке изменить или удалить запись журнала
var ErrAppendOnly = errors.New("record is append-only")

// PaymentKind представляет вид записи о платеже
type PaymentKind string

const (
	PaymentKindPayment  PaymentKind = "Payment"  // Поступление
	PaymentKindReversal PaymentKind = "Reversal" // Сторно ранее проведенного платежа
)

// PaymentMode представляет способ оплаты
type PaymentMode string

const (
	PaymentModeCash         PaymentMode = "Cash"
	PaymentModeGCash        PaymentMode = "GCash"
	PaymentModeBankTransfer PaymentMode = "BankTransfer"
	PaymentModeCheck        PaymentMode = "Check"
)

// Payment представляет неизменяемую запись о платеже по взносу
type Payment struct {
	ID               string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	LoanID           string          `gorm:"column:loan_id;not null;size:36;index" json:"loan_id"`
	ReferenceNumber  string          `gorm:"column:reference_number;not null;size:64;index" json:"reference_number"`
	CollectionNumber int             `gorm:"column:collection_number;not null" json:"collection_number"`
	Amount           decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"` // Всегда положительная
	Kind             PaymentKind     `gorm:"column:kind;type:varchar(16);not null;default:'Payment'" json:"kind"`
	ReversalOf       *string         `gorm:"column:reversal_of;size:36;uniqueIndex" json:"reversal_of,omitempty"`
	Reason           string          `gorm:"column:reason;size:255" json:"reason,omitempty"`
	Mode             PaymentMode     `gorm:"column:mode;type:varchar(16);not null" json:"mode"`
	DatePaid         time.Time       `gorm:"column:date_paid;not null" json:"date_paid"`
	PostedBy         string          `gorm:"column:posted_by;size:36" json:"posted_by"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
}

// TableName возвращает имя таблицы для модели Payment
func (Payment) TableName() string {
	return "payments"
}

// SignedAmount возвращает сумму с учетом знака: сторно уменьшает оплату
func (p Payment) SignedAmount() decimal.Decimal {
	if p.Kind == PaymentKindReversal {
		return p.Amount.Neg()
	}
	return p.Amount
}

// BeforeUpdate запрещает изменение проведенных платежей
func (p *Payment) BeforeUpdate(tx *gorm.DB) error {
	return ErrAppendOnly
}

// BeforeDelete запрещает удаление проведенных платежей
func (p *Payment) BeforeDelete(tx *gorm.DB) error {
	return ErrAppendOnly
}
