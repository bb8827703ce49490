package controllers

import (
	"net/http"

	"microlending/services"

	"github.com/gorilla/mux"
)

// UpdateNoteRequest представляет запрос на изменение заметки к взносу
type UpdateNoteRequest struct {
	Note string `json:"note"`
}

// CollectionController обрабатывает запросы сборщиков
type CollectionController struct {
	ledger *services.PaymentLedger
}

// NewCollectionController создает новый экземпляр CollectionController
func NewCollectionController(ledger *services.PaymentLedger) *CollectionController {
	return &CollectionController{ledger: ledger}
}

// PostPayment принимает платеж по номеру взноса
func (c *CollectionController) PostPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var dto services.PostPaymentDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	result, err := c.ledger.PostPayment(r.Context(), mux.Vars(r)["ref"], dto, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// UpdateNote меняет заметку к взносу
func (c *CollectionController) UpdateNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req UpdateNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := c.ledger.UpdateNote(r.Context(), mux.Vars(r)["ref"], req.Note, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ReversePayment сторнирует платеж
func (c *CollectionController) ReversePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var dto services.ReversePaymentDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	result, err := c.ledger.ReversePayment(r.Context(), mux.Vars(r)["id"], dto, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ListByCollector возвращает взносы, назначенные сборщику
func (c *CollectionController) ListByCollector(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	entries, err := c.ledger.ListCollectionsByCollector(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
