package controllers

import (
	"net/http"

	"microlending/models"
	"microlending/services"
	"microlending/utils"
)

// OfferController отдает каталог предложений и метрики
type OfferController struct {
	catalog *services.OfferCatalog
	metrics *utils.Metrics
}

// NewOfferController создает новый экземпляр OfferController
func NewOfferController(catalog *services.OfferCatalog, metrics *utils.Metrics) *OfferController {
	return &OfferController{catalog: catalog, metrics: metrics}
}

// Offers возвращает доступные предложения
func (c *OfferController) Offers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.catalog.Offers())
}

// Metrics возвращает снимок метрик
func (c *OfferController) Metrics(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if actor.Role != models.RoleManager && actor.Role != models.RoleHead {
		writeError(w, services.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, c.metrics.GetMetricsSnapshot())
}
