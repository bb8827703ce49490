package controllers

import (
	"net/http"

	"microlending/services"

	"github.com/gorilla/mux"
)

// ApplicationController обрабатывает запросы, связанные с заявками
type ApplicationController struct {
	apps  *services.ApplicationService
	loans *services.LoanService
}

// NewApplicationController создает новый экземпляр ApplicationController
func NewApplicationController(apps *services.ApplicationService, loans *services.LoanService) *ApplicationController {
	return &ApplicationController{apps: apps, loans: loans}
}

// Submit обрабатывает подачу новой заявки
func (c *ApplicationController) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var dto services.SubmitApplicationDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	app, err := c.apps.Submit(r.Context(), dto, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// Get возвращает заявку
func (c *ApplicationController) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	app, err := c.apps.Get(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// AttachDocument добавляет документ к заявке
func (c *ApplicationController) AttachDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var dto services.DocumentDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	app, err := c.apps.AttachDocument(r.Context(), mux.Vars(r)["id"], dto, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// Transition применяет переход статуса
func (c *ApplicationController) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var dto services.TransitionDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	result, err := c.apps.Transition(r.Context(), mux.Vars(r)["id"], dto, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AuditTrail возвращает журнал заявки с результатом проверки цепочки
func (c *ApplicationController) AuditTrail(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	trail, err := c.apps.AuditTrail(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

// GenerateLoan выдает кредит по заявке
func (c *ApplicationController) GenerateLoan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	loan, err := c.loans.GenerateLoan(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}
