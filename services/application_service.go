package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"microlending/models"
	"microlending/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CollateralDTO представляет данные залога
type CollateralDTO struct {
	Type           string          `json:"type" validate:"required,max=50"`
	Description    string          `json:"description" validate:"required,max=255"`
	EstimatedValue decimal.Decimal `json:"estimated_value" validate:"required,gt=0"`
}

// ReferenceDTO представляет данные поручителя
type ReferenceDTO struct {
	Name         string `json:"name" validate:"required,min=2,max=100"`
	Phone        string `json:"phone" validate:"required,max=20"`
	Relationship string `json:"relationship" validate:"required,max=50"`
}

// DocumentDTO представляет ссылку на загруженный документ
type DocumentDTO struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	StoragePath string `json:"storage_path" validate:"required,max=512"`
	MimeType    string `json:"mime_type" validate:"required,max=100"`
}

// SubmitApplicationDTO представляет данные новой заявки
type SubmitApplicationDTO struct {
	BorrowerID       string                  `json:"borrower_id" validate:"omitempty,max=36"`
	FirstName        string                  `json:"first_name" validate:"required,min=2,max=50"`
	LastName         string                  `json:"last_name" validate:"required,min=2,max=50"`
	Phone            string                  `json:"phone" validate:"required,max=20"`
	Email            string                  `json:"email" validate:"omitempty,email"`
	Address          string                  `json:"address" validate:"required,max=255"`
	BirthDate        string                  `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	MonthlyIncome    decimal.Decimal         `json:"monthly_income" validate:"gte=0"`
	Occupation       string                  `json:"occupation" validate:"max=100"`
	LoanType         models.LoanType         `json:"loan_type" validate:"required,oneof=WithCollateral WithoutCollateral OpenTerm"`
	Amount           decimal.Decimal         `json:"amount" validate:"required,gt=0"`
	TermInPeriods    int                     `json:"term_in_periods" validate:"required,gte=1"`
	PaymentFrequency models.PaymentFrequency `json:"payment_frequency" validate:"required,oneof=Weekly Bi-weekly Monthly Quarterly"`
	Purpose          string                  `json:"purpose" validate:"required,max=255"`
	Collateral       *CollateralDTO          `json:"collateral"`
	References       []ReferenceDTO          `json:"references" validate:"required,len=3,dive"`
	Documents        []DocumentDTO           `json:"documents" validate:"dive"`
	IsReloan         bool                    `json:"is_reloan"`
}

// TransitionResult представляет результат перехода статуса
type TransitionResult struct {
	ApplicationID string                   `json:"application_id"`
	From          models.ApplicationStatus `json:"from"`
	Status        models.ApplicationStatus `json:"status"`
	Loan          *models.Loan             `json:"loan,omitempty"`
}

// ApplicationService предоставляет методы для работы с заявками
type ApplicationService struct {
	db        *gorm.DB
	validator *validator.Validate
	machine   ApplicationStateMachine
	catalog   *OfferCatalog
	locker    utils.Locker
	events    *Dispatcher
	metrics   *utils.Metrics
	now       func() time.Time
}

// NewApplicationService создает новый экземпляр ApplicationService
func NewApplicationService(db *gorm.DB, catalog *OfferCatalog, locker utils.Locker, events *Dispatcher, metrics *utils.Metrics) *ApplicationService {
	if catalog == nil {
		catalog = DefaultOfferCatalog()
	}
	if locker == nil {
		locker = utils.NewLocalLocker()
	}
	if metrics == nil {
		metrics = utils.NewMetrics()
	}
	return &ApplicationService{
		db:        db,
		validator: newValidator(),
		catalog:   catalog,
		locker:    locker,
		events:    events,
		metrics:   metrics,
		now:       utcNow,
	}
}

// SetClock подменяет источник текущего времени
func (s *ApplicationService) SetClock(now func() time.Time) {
	s.now = now
}

// Submit создает заявку в статусе Applied и возвращает ее
func (s *ApplicationService) Submit(ctx context.Context, dto SubmitApplicationDTO, actor Actor) (*models.Application, error) {
	// Проверяем роль
	if err := authorize(actor, models.RoleBorrower, models.RoleLoanOfficer, models.RoleManager); err != nil {
		return nil, err
	}

	// Валидируем DTO
	if err := validateStruct(s.validator, dto); err != nil {
		return nil, err
	}
	if err := validateLoanTypeFields(dto); err != nil {
		return nil, err
	}

	// Проверяем условия по каталогу и фиксируем ставку
	offer, err := s.catalog.Check(dto.LoanType, dto.Amount, dto.TermInPeriods, dto.PaymentFrequency)
	if err != nil {
		return nil, err
	}

	borrowerID := dto.BorrowerID
	if actor.Role == models.RoleBorrower {
		if borrowerID != "" && borrowerID != actor.ID {
			return nil, fmt.Errorf("%w: заявку можно подать только от своего имени", ErrForbidden)
		}
		borrowerID = actor.ID
	}
	if dto.IsReloan && borrowerID == "" {
		return nil, newValidationError("для повторного кредита поле borrower_id обязательно")
	}

	now := s.now()
	app := buildApplication(dto, offer, now)

	// Начинаем транзакцию
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}
	defer tx.Rollback()

	// Находим или регистрируем заемщика
	borrower, err := s.resolveBorrower(tx, borrowerID, actor, dto)
	if err != nil {
		return nil, err
	}
	app.BorrowerID = borrower.ID

	// Повторный кредит доступен только при достаточном прогрессе по последнему
	if dto.IsReloan {
		prior, err := checkReloanEligibility(tx, borrower.ID, now)
		if err != nil {
			return nil, err
		}
		app.PriorLoanID = &prior.ID
	}

	if err := tx.Create(app).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании заявки: %w", err)
	}

	if err := appendAudit(tx, &models.AuditEntry{
		ApplicationID: app.ID,
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		Transition:    models.TransitionSubmit,
		ToStatus:      models.StatusApplied,
		CreatedAt:     now,
	}); err != nil {
		return nil, err
	}

	// Подтверждаем транзакцию
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}

	utils.LogInfo("application %s submitted for borrower %s", app.ID, app.BorrowerID)
	s.events.Dispatch(applicationEvent(EventApplicationSubmitted, app, now))

	return app, nil
}

// validateLoanTypeFields проверяет, что залог указан тогда и только тогда, когда он нужен
func validateLoanTypeFields(dto SubmitApplicationDTO) error {
	if dto.LoanType.RequiresCollateral() && dto.Collateral == nil {
		return newValidationError("для кредита " + string(dto.LoanType) + " поле collateral обязательно")
	}
	if !dto.LoanType.RequiresCollateral() && dto.Collateral != nil {
		return newValidationError("для кредита " + string(dto.LoanType) + " залог не указывается")
	}
	return nil
}

func buildApplication(dto SubmitApplicationDTO, offer Offer, now time.Time) *models.Application {
	app := &models.Application{
		ID:               uuid.NewString(),
		FirstName:        dto.FirstName,
		LastName:         dto.LastName,
		Phone:            dto.Phone,
		Email:            dto.Email,
		Address:          dto.Address,
		MonthlyIncome:    dto.MonthlyIncome,
		Occupation:       dto.Occupation,
		LoanType:         dto.LoanType,
		Amount:           dto.Amount,
		TermInPeriods:    dto.TermInPeriods,
		PaymentFrequency: dto.PaymentFrequency,
		Purpose:          dto.Purpose,
		InterestRate:     offer.InterestRate,
		Status:           models.StatusApplied,
		IsReloan:         dto.IsReloan,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if dto.BirthDate != "" {
		if birth, err := time.ParseInLocation("2006-01-02", dto.BirthDate, time.UTC); err == nil {
			app.BirthDate = &birth
		}
	}
	if dto.Collateral != nil {
		app.Collateral = &models.Collateral{
			Type:           dto.Collateral.Type,
			Description:    dto.Collateral.Description,
			EstimatedValue: dto.Collateral.EstimatedValue,
		}
	}
	for _, r := range dto.References {
		app.References = append(app.References, models.CharacterReference{
			Name:         r.Name,
			Phone:        r.Phone,
			Relationship: r.Relationship,
		})
	}
	for _, d := range dto.Documents {
		app.Documents = append(app.Documents, models.Document{
			Filename:    d.Filename,
			StoragePath: d.StoragePath,
			MimeType:    d.MimeType,
			CreatedAt:   now,
		})
	}
	return app
}

// resolveBorrower возвращает существующего заемщика или регистрирует нового
func (s *ApplicationService) resolveBorrower(tx *gorm.DB, borrowerID string, actor Actor, dto SubmitApplicationDTO) (*models.Borrower, error) {
	if borrowerID != "" {
		var borrower models.Borrower
		err := tx.First(&borrower, "id = ?", borrowerID).Error
		if err == nil {
			return &borrower, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ошибка при поиске заемщика: %w", err)
		}
		// Сотрудник ссылается только на уже известного заемщика
		if actor.Role != models.RoleBorrower {
			return nil, fmt.Errorf("%w: заемщик %s", ErrNotFound, borrowerID)
		}
	} else {
		borrowerID = uuid.NewString()
	}

	borrower := &models.Borrower{
		ID:        borrowerID,
		FirstName: dto.FirstName,
		LastName:  dto.LastName,
		Phone:     dto.Phone,
		Email:     dto.Email,
	}
	if err := tx.Create(borrower).Error; err != nil {
		return nil, fmt.Errorf("ошибка при регистрации заемщика: %w", err)
	}
	return borrower, nil
}

// AttachDocument добавляет документ к заявке в статусе Applied
func (s *ApplicationService) AttachDocument(ctx context.Context, applicationID string, dto DocumentDTO, actor Actor) (*models.Application, error) {
	if err := validateStruct(s.validator, dto); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, "application:"+applicationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}
	defer tx.Rollback()

	app, err := loadApplication(lockForUpdate(tx), applicationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeBorrowerAccess(actor, app.BorrowerID); err != nil {
		return nil, err
	}
	if app.Status != models.StatusApplied {
		return nil, fmt.Errorf("%w: документы принимаются только в статусе %s", ErrInvalidTransition, models.StatusApplied)
	}

	doc := models.Document{
		ApplicationID: app.ID,
		Filename:      dto.Filename,
		StoragePath:   dto.StoragePath,
		MimeType:      dto.MimeType,
		CreatedAt:     s.now(),
	}
	if err := tx.Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("ошибка при сохранении документа: %w", err)
	}
	app.Documents = append(app.Documents, doc)

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}

	return app, nil
}

// Get возвращает заявку со всеми вложенными данными
func (s *ApplicationService) Get(ctx context.Context, applicationID string, actor Actor) (*models.Application, error) {
	app, err := loadApplication(s.db.WithContext(ctx), applicationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeBorrowerAccess(actor, app.BorrowerID); err != nil {
		return nil, err
	}
	return app, nil
}

// Transition выполняет переход статуса заявки
func (s *ApplicationService) Transition(ctx context.Context, applicationID string, dto TransitionDTO, actor Actor) (*TransitionResult, error) {
	startTime := time.Now()

	if err := validateStruct(s.validator, dto); err != nil {
		return nil, err
	}

	// Сериализуем изменения заявки
	unlock, err := s.locker.Lock(ctx, "application:"+applicationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Начинаем транзакцию
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}
	defer tx.Rollback()

	app, err := loadApplication(lockForUpdate(tx), applicationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	outcome, err := s.machine.Apply(tx, app, actor, dto, now)
	if err != nil {
		utils.LogOperation("application.transition."+string(dto.Transition), startTime, err)
		return nil, err
	}

	// Подтверждаем транзакцию
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}

	utils.LogOperation("application.transition."+string(dto.Transition), startTime, nil)
	s.metrics.RecordTransition(string(dto.Transition))
	if outcome.Loan != nil {
		s.metrics.RecordLoanGenerated()
	}
	s.events.Dispatch(outcome.Events...)

	return &TransitionResult{
		ApplicationID: app.ID,
		From:          outcome.From,
		Status:        outcome.To,
		Loan:          outcome.Loan,
	}, nil
}

// AuditTrail возвращает журнал переходов заявки и результат проверки цепочки
func (s *ApplicationService) AuditTrail(ctx context.Context, applicationID string, actor Actor) (*AuditTrail, error) {
	if err := authorize(actor, staffRoles...); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Application{}).Where("id = ?", applicationID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("ошибка при поиске заявки: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, applicationID)
	}

	var entries []models.AuditEntry
	if err := s.db.WithContext(ctx).Where("application_id = ?", applicationID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("ошибка при чтении журнала: %w", err)
	}

	return newAuditTrail(applicationID, entries), nil
}

// loadApplication читает заявку вместе с залогом, поручителями и документами
func loadApplication(db *gorm.DB, applicationID string) (*models.Application, error) {
	var app models.Application
	err := db.Preload("Collateral").
		Preload("References").
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&app, "id = ?", applicationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: заявка %s", ErrNotFound, applicationID)
		}
		return nil, fmt.Errorf("ошибка при поиске заявки: %w", err)
	}
	return &app, nil
}
