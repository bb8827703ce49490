package services

import (
	"errors"
	"fmt"
	"time"

	"microlending/models"
	"microlending/utils"

	"gorm.io/gorm"
)

// auditTimeLayout - формат времени в хеше записи. Точность до микросекунд,
// как у timestamptz в PostgreSQL.
const auditTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// appendAudit добавляет запись в журнал заявки, связывая ее хешем с предыдущей
func appendAudit(tx *gorm.DB, entry *models.AuditEntry) error {
	var prev models.AuditEntry
	err := tx.Where("application_id = ?", entry.ApplicationID).Order("id DESC").First(&prev).Error
	switch {
	case err == nil:
		entry.PrevHash = prev.Hash
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry.PrevHash = ""
	default:
		return fmt.Errorf("ошибка чтения журнала аудита: %w", err)
	}

	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)
	entry.Hash = auditHash(entry)

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("ошибка записи в журнал аудита: %w", err)
	}
	return nil
}

func auditHash(e *models.AuditEntry) string {
	return utils.ChainHash(e.PrevHash,
		e.ApplicationID,
		e.ActorID,
		string(e.ActorRole),
		string(e.Transition),
		string(e.FromStatus),
		string(e.ToStatus),
		e.CreatedAt.UTC().Format(auditTimeLayout),
	)
}

// VerifyAuditChain проверяет, что записи идут цепочкой и ни одна не изменена.
// Возвращает индекс первой испорченной записи или -1.
func VerifyAuditChain(entries []models.AuditEntry) int {
	prevHash := ""
	for i := range entries {
		e := entries[i]
		if e.PrevHash != prevHash || auditHash(&e) != e.Hash {
			return i
		}
		prevHash = e.Hash
	}
	return -1
}

// AuditTrail представляет журнал заявки с результатом проверки цепочки
type AuditTrail struct {
	ApplicationID string              `json:"application_id"`
	Entries       []models.AuditEntry `json:"entries"`
	Valid         bool                `json:"valid"`
	BrokenAt      *int                `json:"broken_at,omitempty"`
}

func newAuditTrail(applicationID string, entries []models.AuditEntry) *AuditTrail {
	trail := &AuditTrail{ApplicationID: applicationID, Entries: entries, Valid: true}
	if idx := VerifyAuditChain(entries); idx >= 0 {
		trail.Valid = false
		trail.BrokenAt = &idx
		utils.LogError("audit chain of application %s is broken at entry %d", applicationID, idx)
	}
	return trail
}
