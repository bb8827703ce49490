package services

import (
	"fmt"
	"time"

	"microlending/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actor представляет участника, выполняющего операцию
type Actor struct {
	ID   string
	Role models.Role
}

// staffRoles - роли сотрудников, которым доступны данные любых заемщиков
var staffRoles = []models.Role{models.RoleLoanOfficer, models.RoleManager, models.RoleHead}

// authorize проверяет, что роль участника входит в список
func authorize(actor Actor, roles ...models.Role) error {
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: роль %q не может выполнить операцию", ErrForbidden, actor.Role)
}

// authorizeBorrowerAccess пропускает сотрудников и самого заемщика
func authorizeBorrowerAccess(actor Actor, borrowerID string) error {
	if actor.Role == models.RoleBorrower {
		if actor.ID != borrowerID {
			return fmt.Errorf("%w: доступ к чужим данным", ErrForbidden)
		}
		return nil
	}
	return authorize(actor, staffRoles...)
}

// lockForUpdate добавляет SELECT ... FOR UPDATE там, где диалект его поддерживает
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func utcNow() time.Time {
	return time.Now().UTC()
}
