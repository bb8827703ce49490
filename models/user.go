package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Role представляет роль участника процесса
type Role string

const (
	RoleBorrower    Role = "borrower"
	RoleCollector   Role = "collector"
	RoleLoanOfficer Role = "loan_officer"
	RoleManager     Role = "manager"
	RoleHead        Role = "head"
)

// Valid сообщает, известна ли роль
func (r Role) Valid() bool {
	switch r {
	case RoleBorrower, RoleCollector, RoleLoanOfficer, RoleManager, RoleHead:
		return true
	}
	return false
}

// Borrower представляет заемщика
type Borrower struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	FirstName string    `gorm:"column:first_name;not null;size:50" json:"first_name"`
	LastName  string    `gorm:"column:last_name;not null;size:50" json:"last_name"`
	Phone     string    `gorm:"column:phone;not null;size:20" json:"phone"`
	Email     string    `gorm:"column:email;size:100;index" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Borrower) TableName() string {
	return "borrowers"
}

// BeforeCreate хук для валидации перед созданием
func (b *Borrower) BeforeCreate(tx *gorm.DB) error {
	if len(b.FirstName) < 2 || len(b.FirstName) > 50 {
		return errors.New("first name must be between 2 and 50 characters")
	}
	if len(b.LastName) < 2 || len(b.LastName) > 50 {
		return errors.New("last name must be between 2 and 50 characters")
	}
	return nil
}
