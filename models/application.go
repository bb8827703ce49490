package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanType представляет тип запрашиваемого кредита
type LoanType string

const (
	LoanTypeWithCollateral    LoanType = "WithCollateral"
	LoanTypeWithoutCollateral LoanType = "WithoutCollateral"
	LoanTypeOpenTerm          LoanType = "OpenTerm"
)

// RequiresCollateral сообщает, нужен ли залог для данного типа кредита
func (t LoanType) RequiresCollateral() bool {
	return t == LoanTypeWithCollateral
}

// MinDocuments возвращает минимальное число документов для выхода из статуса Applied
func (t LoanType) MinDocuments() int {
	if t.RequiresCollateral() {
		return 6
	}
	return 4
}

// ApplicationStatus представляет статус заявки
type ApplicationStatus string

const (
	StatusApplied          ApplicationStatus = "Applied"
	StatusPending          ApplicationStatus = "Pending"
	StatusCleared          ApplicationStatus = "Cleared"
	StatusApproved         ApplicationStatus = "Approved"
	StatusDenied           ApplicationStatus = "Denied"
	StatusDeniedByReviewer ApplicationStatus = "DeniedByReviewer"
	StatusDisbursed        ApplicationStatus = "Disbursed"
	StatusAccepted         ApplicationStatus = "Accepted"
)

// Transition представляет запрошенный переход статуса заявки
type Transition string

const (
	TransitionSubmit            Transition = "submit" // только для журнала аудита
	TransitionScheduleInterview Transition = "schedule_interview"
	TransitionDismiss           Transition = "dismiss"
	TransitionClear             Transition = "clear"
	TransitionApprove           Transition = "approve"
	TransitionDeny              Transition = "deny"
	TransitionDisburse          Transition = "disburse"
	TransitionAccept            Transition = "accept"
	TransitionAcceptReloan      Transition = "accept_reloan"
)

// Application представляет заявку на кредит
type Application struct {
	ID               string               `gorm:"column:id;primaryKey;size:36" json:"id"`
	BorrowerID       string               `gorm:"column:borrower_id;not null;size:36;index" json:"borrower_id"`
	FirstName        string               `gorm:"column:first_name;not null;size:50" json:"first_name"`
	LastName         string               `gorm:"column:last_name;not null;size:50" json:"last_name"`
	Phone            string               `gorm:"column:phone;not null;size:20" json:"phone"`
	Email            string               `gorm:"column:email;size:100" json:"email,omitempty"`
	Address          string               `gorm:"column:address;not null;size:255" json:"address"`
	BirthDate        *time.Time           `gorm:"column:birth_date" json:"birth_date,omitempty"`
	MonthlyIncome    decimal.Decimal      `gorm:"column:monthly_income;type:decimal(20,2);not null;default:0" json:"monthly_income"`
	Occupation       string               `gorm:"column:occupation;size:100" json:"occupation,omitempty"`
	LoanType         LoanType             `gorm:"column:loan_type;type:varchar(32);not null" json:"loan_type"`
	Amount           decimal.Decimal      `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	TermInPeriods    int                  `gorm:"column:term_in_periods;not null" json:"term_in_periods"`
	PaymentFrequency PaymentFrequency     `gorm:"column:payment_frequency;type:varchar(16);not null" json:"payment_frequency"`
	Purpose          string               `gorm:"column:purpose;not null;size:255" json:"purpose"`
	InterestRate     decimal.Decimal      `gorm:"column:interest_rate;type:decimal(8,4);not null" json:"interest_rate"`
	Status           ApplicationStatus    `gorm:"column:status;type:varchar(32);not null;default:'Applied';index" json:"status"`
	InterviewAt      *time.Time           `gorm:"column:interview_at" json:"interview_at,omitempty"`
	IsReloan         bool                 `gorm:"column:is_reloan;not null;default:false" json:"is_reloan"`
	PriorLoanID      *string              `gorm:"column:prior_loan_id;size:36" json:"prior_loan_id,omitempty"`
	DisbursedAt      *time.Time           `gorm:"column:disbursed_at" json:"disbursed_at,omitempty"`
	Version          int                  `gorm:"column:version;not null;default:1" json:"version"`
	Collateral       *Collateral          `gorm:"foreignKey:ApplicationID" json:"collateral,omitempty"`
	References       []CharacterReference `gorm:"foreignKey:ApplicationID" json:"references"`
	Documents        []Document           `gorm:"foreignKey:ApplicationID" json:"documents"`
	CreatedAt        time.Time            `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time            `gorm:"column:updated_at" json:"updated_at"`
}

// TableName возвращает имя таблицы для модели Application
func (Application) TableName() string {
	return "applications"
}

// Contact возвращает контакт заявителя для уведомлений
func (a Application) Contact() Contact {
	return Contact{
		Name:  a.FirstName + " " + a.LastName,
		Email: a.Email,
		Phone: a.Phone,
	}
}

// Collateral представляет залог по заявке
type Collateral struct {
	ID             uint            `gorm:"primaryKey;autoIncrement" json:"-"`
	ApplicationID  string          `gorm:"column:application_id;not null;size:36;uniqueIndex" json:"-"`
	Type           string          `gorm:"column:type;not null;size:50" json:"type"`
	Description    string          `gorm:"column:description;not null;size:255" json:"description"`
	EstimatedValue decimal.Decimal `gorm:"column:estimated_value;type:decimal(20,2);not null" json:"estimated_value"`
}

func (Collateral) TableName() string {
	return "collaterals"
}

// CharacterReference представляет поручителя заявителя
type CharacterReference struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	ApplicationID string `gorm:"column:application_id;not null;size:36;index" json:"-"`
	Name          string `gorm:"column:name;not null;size:100" json:"name"`
	Phone         string `gorm:"column:phone;not null;size:20" json:"phone"`
	Relationship  string `gorm:"column:relationship;not null;size:50" json:"relationship"`
}

func (CharacterReference) TableName() string {
	return "character_references"
}

// Document представляет ссылку на загруженный документ.
// Содержимое хранится во внешнем хранилище, здесь только путь.
type Document struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationID string    `gorm:"column:application_id;not null;size:36;index" json:"-"`
	Filename      string    `gorm:"column:filename;not null;size:255" json:"filename"`
	StoragePath   string    `gorm:"column:storage_path;not null;size:512" json:"storage_path"`
	MimeType      string    `gorm:"column:mime_type;not null;size:100" json:"mime_type"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Document) TableName() string {
	return "documents"
}

// Contact представляет адресата уведомления
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
