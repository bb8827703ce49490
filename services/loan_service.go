package services

import (
	"context"
	"errors"
	"fmt"

	"microlending/models"

	"gorm.io/gorm"
)

// LoanService выдает кредиты по принятым заявкам
type LoanService struct {
	db   *gorm.DB
	apps *ApplicationService
}

// NewLoanService создает новый экземпляр LoanService
func NewLoanService(db *gorm.DB, apps *ApplicationService) *LoanService {
	return &LoanService{db: db, apps: apps}
}

// GenerateLoan принимает выданную заявку и возвращает ее кредит.
// Повторный вызов возвращает уже созданный кредит, второй кредит не создается.
func (s *LoanService) GenerateLoan(ctx context.Context, applicationID string, actor Actor) (*models.Loan, error) {
	app, err := loadApplication(s.db.WithContext(ctx), applicationID)
	if err != nil {
		return nil, err
	}
	return s.accept(ctx, app, actor)
}

// GenerateReloan принимает последнюю повторную заявку заемщика.
// Если она еще не выдана, возвращается ErrInvalidTransition, более старые заявки не рассматриваются.
func (s *LoanService) GenerateReloan(ctx context.Context, borrowerID string, actor Actor) (*models.Loan, error) {
	var app models.Application
	err := s.db.WithContext(ctx).
		Where("borrower_id = ? AND is_reloan = ?", borrowerID, true).
		Order("created_at DESC").
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: у заемщика %s нет повторной заявки", ErrNotFound, borrowerID)
		}
		return nil, fmt.Errorf("ошибка при поиске повторной заявки: %w", err)
	}
	return s.accept(ctx, &app, actor)
}

func (s *LoanService) accept(ctx context.Context, app *models.Application, actor Actor) (*models.Loan, error) {
	transition := models.TransitionAccept
	if app.IsReloan {
		transition = models.TransitionAcceptReloan
	}

	// Роль проверяем до поиска существующего кредита
	if !s.apps.machine.gate.IsAllowed(actor.Role, models.StatusDisbursed, transition) {
		return nil, &TransitionError{From: app.Status, Transition: transition, Err: ErrForbidden}
	}

	if app.Status == models.StatusAccepted {
		return s.findByKey(ctx, IdempotencyKey(app))
	}

	result, err := s.apps.Transition(ctx, app.ID, TransitionDTO{Transition: transition}, actor)
	if err != nil {
		// Параллельный запрос мог принять заявку раньше нас
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, gorm.ErrDuplicatedKey) {
			if loan, findErr := s.findByKey(ctx, IdempotencyKey(app)); findErr == nil {
				return loan, nil
			}
		}
		return nil, err
	}
	return result.Loan, nil
}

// GetLoan возвращает кредит с графиком
func (s *LoanService) GetLoan(ctx context.Context, loanID string, actor Actor) (*models.Loan, error) {
	var loan models.Loan
	err := s.db.WithContext(ctx).
		Preload("Collections", func(db *gorm.DB) *gorm.DB { return db.Order("collection_number ASC") }).
		First(&loan, "id = ?", loanID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: кредит %s", ErrNotFound, loanID)
		}
		return nil, fmt.Errorf("ошибка при поиске кредита: %w", err)
	}
	if err := authorizeBorrowerAccess(actor, loan.BorrowerID); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (s *LoanService) findByKey(ctx context.Context, key string) (*models.Loan, error) {
	var loan models.Loan
	err := s.db.WithContext(ctx).
		Preload("Collections", func(db *gorm.DB) *gorm.DB { return db.Order("collection_number ASC") }).
		First(&loan, "idempotency_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: кредит по ключу %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("ошибка при поиске кредита: %w", err)
	}
	return &loan, nil
}
