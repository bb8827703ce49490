package services

import (
	"microlending/models"
)

type transitionKey struct {
	from       models.ApplicationStatus
	transition models.Transition
}

type transitionRule struct {
	to    models.ApplicationStatus
	roles []models.Role
}

// transitionTable - единственная таблица допустимых переходов заявки
var transitionTable = map[transitionKey]transitionRule{
	{models.StatusApplied, models.TransitionScheduleInterview}: {
		to: models.StatusPending, roles: []models.Role{models.RoleLoanOfficer, models.RoleManager},
	},
	{models.StatusApplied, models.TransitionDismiss}: {
		to: models.StatusDenied, roles: []models.Role{models.RoleLoanOfficer, models.RoleManager},
	},
	{models.StatusPending, models.TransitionClear}: {
		to: models.StatusCleared, roles: []models.Role{models.RoleLoanOfficer, models.RoleManager},
	},
	{models.StatusPending, models.TransitionDismiss}: {
		to: models.StatusDenied, roles: []models.Role{models.RoleLoanOfficer, models.RoleManager},
	},
	{models.StatusCleared, models.TransitionApprove}: {
		to: models.StatusApproved, roles: []models.Role{models.RoleManager, models.RoleHead},
	},
	{models.StatusCleared, models.TransitionDeny}: {
		to: models.StatusDeniedByReviewer, roles: []models.Role{models.RoleManager, models.RoleHead},
	},
	{models.StatusApproved, models.TransitionDisburse}: {
		to: models.StatusDisbursed, roles: []models.Role{models.RoleLoanOfficer},
	},
	{models.StatusDisbursed, models.TransitionAccept}: {
		to: models.StatusAccepted, roles: []models.Role{models.RoleManager},
	},
	{models.StatusDisbursed, models.TransitionAcceptReloan}: {
		to: models.StatusAccepted, roles: []models.Role{models.RoleManager},
	},
}

// RoleGate решает, может ли роль выполнить переход из данного статуса
type RoleGate struct{}

// IsAllowed возвращает true, только если переход есть в таблице и роль входит в список.
// Неизвестные роли, статусы и переходы запрещены.
func (RoleGate) IsAllowed(role models.Role, from models.ApplicationStatus, transition models.Transition) bool {
	rule, ok := transitionTable[transitionKey{from, transition}]
	if !ok {
		return false
	}
	for _, r := range rule.roles {
		if r == role {
			return true
		}
	}
	return false
}

// NextStatus возвращает целевой статус перехода
func (RoleGate) NextStatus(from models.ApplicationStatus, transition models.Transition) (models.ApplicationStatus, bool) {
	rule, ok := transitionTable[transitionKey{from, transition}]
	return rule.to, ok
}

// AllowedTransitions возвращает переходы, доступные роли из статуса
func (g RoleGate) AllowedTransitions(role models.Role, from models.ApplicationStatus) []models.Transition {
	var result []models.Transition
	for _, t := range []models.Transition{
		models.TransitionScheduleInterview,
		models.TransitionDismiss,
		models.TransitionClear,
		models.TransitionApprove,
		models.TransitionDeny,
		models.TransitionDisburse,
		models.TransitionAccept,
		models.TransitionAcceptReloan,
	} {
		if g.IsAllowed(role, from, t) {
			result = append(result, t)
		}
	}
	return result
}
