package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditEntry представляет запись журнала переходов заявки.
// Hash связывает запись с предыдущей записью той же заявки.
type AuditEntry struct {
	ID            uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationID string            `gorm:"column:application_id;not null;size:36;index" json:"application_id"`
	ActorID       string            `gorm:"column:actor_id;not null;size:64" json:"actor_id"`
	ActorRole     Role              `gorm:"column:actor_role;type:varchar(20);not null" json:"actor_role"`
	Transition    Transition        `gorm:"column:transition;type:varchar(32);not null" json:"transition"`
	FromStatus    ApplicationStatus `gorm:"column:from_status;type:varchar(32)" json:"from_status"`
	ToStatus      ApplicationStatus `gorm:"column:to_status;type:varchar(32);not null" json:"to_status"`
	PrevHash      string            `gorm:"column:prev_hash;size:64" json:"prev_hash"`
	Hash          string            `gorm:"column:hash;not null;size:64" json:"hash"`
	CreatedAt     time.Time         `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName возвращает имя таблицы для модели AuditEntry
func (AuditEntry) TableName() string {
	return "audit_entries"
}

func (a *AuditEntry) BeforeUpdate(tx *gorm.DB) error {
	return ErrAppendOnly
}

func (a *AuditEntry) BeforeDelete(tx *gorm.DB) error {
	return ErrAppendOnly
}
