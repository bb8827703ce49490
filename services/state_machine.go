package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"microlending/models"

	"gorm.io/gorm"
)

// TransitionDTO представляет запрос на переход статуса заявки
type TransitionDTO struct {
	Transition    models.Transition `json:"transition" validate:"required"`
	InterviewDate string            `json:"interview_date" validate:"omitempty,datetime=2006-01-02"`
	InterviewTime string            `json:"interview_time" validate:"omitempty,datetime=15:04"`
}

// transitionOutcome содержит результат примененного перехода
type transitionOutcome struct {
	From   models.ApplicationStatus
	To     models.ApplicationStatus
	Loan   *models.Loan
	Events []Event
}

// ApplicationStateMachine выполняет переходы заявки внутри переданной транзакции
type ApplicationStateMachine struct {
	gate RoleGate
}

// Apply проверяет и применяет переход. Заявка должна быть прочитана в той же транзакции
// вместе с документами. При ошибке ничего не меняет: вызывающий откатывает tx.
func (m ApplicationStateMachine) Apply(tx *gorm.DB, app *models.Application, actor Actor, req TransitionDTO, now time.Time) (*transitionOutcome, error) {
	from := app.Status

	// Проверяем, что переход существует для текущего статуса
	to, ok := m.gate.NextStatus(from, req.Transition)
	if !ok || !matchesReloanFlag(app, req.Transition) {
		return nil, &TransitionError{From: from, Transition: req.Transition, Err: ErrInvalidTransition}
	}

	// Проверяем роль
	if !m.gate.IsAllowed(actor.Role, from, req.Transition) {
		return nil, &TransitionError{From: from, Transition: req.Transition, Err: ErrForbidden}
	}

	updates := map[string]interface{}{
		"status":     to,
		"version":    app.Version + 1,
		"updated_at": now,
	}

	var interviewAt *time.Time
	switch req.Transition {
	case models.TransitionScheduleInterview:
		if len(app.Documents) < app.LoanType.MinDocuments() {
			return nil, newValidationError(fmt.Sprintf("для типа %s нужно минимум %d документов, загружено %d",
				app.LoanType, app.LoanType.MinDocuments(), len(app.Documents)))
		}
		at, err := parseInterview(req.InterviewDate, req.InterviewTime)
		if err != nil {
			return nil, err
		}
		interviewAt = &at
		updates["interview_at"] = at
	case models.TransitionDisburse:
		updates["disbursed_at"] = now
	}

	// Условное обновление: параллельный переход увидит другой статус или версию
	result := tx.Model(&models.Application{}).
		Where("id = ? AND status = ? AND version = ?", app.ID, from, app.Version).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("ошибка при обновлении статуса заявки: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, &TransitionError{From: from, Transition: req.Transition, Err: ErrInvalidTransition}
	}

	app.Status = to
	app.Version++
	app.UpdatedAt = now
	if interviewAt != nil {
		app.InterviewAt = interviewAt
	}
	if req.Transition == models.TransitionDisburse {
		app.DisbursedAt = &now
	}

	// Записываем переход в журнал
	if err := appendAudit(tx, &models.AuditEntry{
		ApplicationID: app.ID,
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		Transition:    req.Transition,
		FromStatus:    from,
		ToStatus:      to,
		CreatedAt:     now,
	}); err != nil {
		return nil, err
	}

	outcome := &transitionOutcome{From: from, To: to}

	switch req.Transition {
	case models.TransitionScheduleInterview:
		outcome.Events = append(outcome.Events, applicationEvent(EventInterviewScheduled, app, now))
	case models.TransitionDismiss, models.TransitionDeny:
		outcome.Events = append(outcome.Events, applicationEvent(EventApplicationDenied, app, now))
	case models.TransitionApprove:
		outcome.Events = append(outcome.Events, applicationEvent(EventApplicationApproved, app, now))
	case models.TransitionAccept, models.TransitionAcceptReloan:
		loan, err := m.createLoan(tx, app, now)
		if err != nil {
			return nil, err
		}
		outcome.Loan = loan
		event := applicationEvent(EventLoanGenerated, app, now)
		event.LoanID = loan.ID
		event.Amount = loan.Principal
		event.Balance = loan.Balance
		outcome.Events = append(outcome.Events, event)
	}

	return outcome, nil
}

// createLoan создает кредит и график взносов в транзакции перехода
func (m ApplicationStateMachine) createLoan(tx *gorm.DB, app *models.Application, now time.Time) (*models.Loan, error) {
	if app.IsReloan {
		// Повторно проверяем право на повторный кредит на момент принятия
		if _, err := checkReloanEligibility(tx, app.BorrowerID, now); err != nil {
			return nil, err
		}
	}

	disbursedAt := now
	if app.DisbursedAt != nil {
		disbursedAt = app.DisbursedAt.UTC()
	}

	loan, err := NewLoanFromApplication(app, disbursedAt, IdempotencyKey(app))
	if err != nil {
		return nil, err
	}

	// Кредит и взносы сохраняются одной вставкой с ассоциациями
	if err := tx.Create(loan).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &TransitionError{From: models.StatusDisbursed, Transition: models.TransitionAccept, Err: ErrInvalidTransition}
		}
		return nil, fmt.Errorf("ошибка при создании кредита: %w", err)
	}

	return loan, nil
}

// IdempotencyKey возвращает ключ, по которому для заявки создается не более одного кредита
func IdempotencyKey(app *models.Application) string {
	if app.IsReloan {
		return app.ID + ":reloan"
	}
	return app.ID
}

// matchesReloanFlag: accept только для обычных заявок, accept_reloan только для повторных
func matchesReloanFlag(app *models.Application, t models.Transition) bool {
	switch t {
	case models.TransitionAccept:
		return !app.IsReloan
	case models.TransitionAcceptReloan:
		return app.IsReloan
	}
	return true
}

func parseInterview(date, clock string) (time.Time, error) {
	var messages []string
	if strings.TrimSpace(date) == "" {
		messages = append(messages, "поле interview_date обязательно")
	}
	if strings.TrimSpace(clock) == "" {
		messages = append(messages, "поле interview_time обязательно")
	}
	if len(messages) > 0 {
		return time.Time{}, newValidationError(messages...)
	}

	at, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, time.UTC)
	if err != nil {
		return time.Time{}, newValidationError("неверный формат даты или времени собеседования")
	}
	return at, nil
}

func applicationEvent(t EventType, app *models.Application, now time.Time) Event {
	return Event{
		Type:          t,
		ApplicationID: app.ID,
		BorrowerID:    app.BorrowerID,
		Status:        app.Status,
		InterviewAt:   app.InterviewAt,
		Contact:       app.Contact(),
		OccurredAt:    now,
	}
}
