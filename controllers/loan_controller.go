package controllers

import (
	"net/http"

	"microlending/services"

	"github.com/gorilla/mux"
)

// AssignCollectorRequest представляет запрос на назначение сборщика
type AssignCollectorRequest struct {
	CollectorID string `json:"collector_id"`
}

// LoanController обрабатывает запросы, связанные с кредитами
type LoanController struct {
	loans  *services.LoanService
	ledger *services.PaymentLedger
}

// NewLoanController создает новый экземпляр LoanController
func NewLoanController(loans *services.LoanService, ledger *services.PaymentLedger) *LoanController {
	return &LoanController{loans: loans, ledger: ledger}
}

// GetLoan возвращает кредит с графиком
func (c *LoanController) GetLoan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	loan, err := c.loans.GetLoan(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// ListCollections возвращает график взносов по кредиту
func (c *LoanController) ListCollections(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	entries, err := c.ledger.ListCollectionsByLoan(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// AllocatePayment распределяет платеж по взносам кредита
func (c *LoanController) AllocatePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var dto services.PostPaymentDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	result, err := c.ledger.AllocatePayment(r.Context(), mux.Vars(r)["id"], dto, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// AssignCollector назначает сборщика на все взносы кредита
func (c *LoanController) AssignCollector(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req AssignCollectorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := c.ledger.AssignCollector(r.Context(), mux.Vars(r)["id"], req.CollectorID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}
