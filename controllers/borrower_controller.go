package controllers

import (
	"net/http"

	"microlending/services"

	"github.com/gorilla/mux"
)

// BorrowerController обрабатывает запросы по заемщикам
type BorrowerController struct {
	borrowers *services.BorrowerService
	loans     *services.LoanService
}

// NewBorrowerController создает новый экземпляр BorrowerController
func NewBorrowerController(borrowers *services.BorrowerService, loans *services.LoanService) *BorrowerController {
	return &BorrowerController{borrowers: borrowers, loans: loans}
}

// Summary возвращает сводку по заемщику
func (c *BorrowerController) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	summary, err := c.borrowers.GetBorrowerSummary(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GenerateReloan выдает повторный кредит заемщику
func (c *BorrowerController) GenerateReloan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	loan, err := c.loans.GenerateReloan(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}
