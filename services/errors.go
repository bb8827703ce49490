package services

import (
	"errors"
	"fmt"
	"strings"

	"microlending/models"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidLoanTerms   = errors.New("invalid loan terms")
	ErrLoanAlreadySettled = errors.New("loan already settled")
	ErrPaymentExceedsDue  = errors.New("payment exceeds remaining due")
	ErrReloanNotEligible  = errors.New("borrower is not eligible for reloan")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyReversed    = errors.New("payment already reversed")
)

// ValidationError содержит сообщения об ошибках по полям запроса
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "ошибка валидации: " + strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// TransitionError описывает отклоненный переход статуса
type TransitionError struct {
	From       models.ApplicationStatus
	Transition models.Transition
	Err        error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("переход %s из статуса %s: %v", e.Transition, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// ExceedsDueError сообщает, сколько еще можно принять по взносу или кредиту
type ExceedsDueError struct {
	Remaining decimal.Decimal
}

func (e *ExceedsDueError) Error() string {
	return fmt.Sprintf("сумма превышает остаток к оплате %s", e.Remaining.StringFixed(2))
}

func (e *ExceedsDueError) Unwrap() error {
	return ErrPaymentExceedsDue
}
