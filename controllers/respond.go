package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"microlending/middleware"
	"microlending/services"
	"microlending/utils"

	"github.com/shopspring/decimal"
)

// ErrorResponse представляет тело ответа с ошибкой
type ErrorResponse struct {
	Error     string           `json:"error"`
	Messages  []string         `json:"messages,omitempty"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.LogError("failed to encode response: %v", err)
	}
}

// statusFor сопоставляет доменную ошибку с кодом HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrLoanAlreadySettled),
		errors.Is(err, services.ErrAlreadyReversed):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidLoanTerms),
		errors.Is(err, services.ErrPaymentExceedsDue),
		errors.Is(err, services.ErrReloanNotEligible):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		resp.Messages = verr.Messages
	}
	var exceeds *services.ExceedsDueError
	if errors.As(err, &exceeds) {
		remaining := exceeds.Remaining
		resp.Remaining = &remaining
	}

	if status == http.StatusInternalServerError {
		utils.LogError("request failed: %v", err)
		resp.Error = "Internal server error"
	}
	writeJSON(w, status, resp)
}

// decodeBody разбирает JSON тела запроса и отвечает 400 при ошибке
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

// actorFrom возвращает участника запроса или отвечает 401
func actorFrom(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return services.Actor{}, false
	}
	return actor, true
}
