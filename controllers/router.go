package controllers

import (
	"net/http"

	"microlending/middleware"
	"microlending/services"
	"microlending/utils"

	"github.com/gorilla/mux"
)

// RouterDeps содержит зависимости HTTP API
type RouterDeps struct {
	Apps      *services.ApplicationService
	Loans     *services.LoanService
	Ledger    *services.PaymentLedger
	Borrowers *services.BorrowerService
	Catalog   *services.OfferCatalog
	Metrics   *utils.Metrics
	Limiter   *utils.RateLimiter
	JWTKey    []byte
}

// NewRouter создает роутер со всеми маршрутами API
func NewRouter(deps RouterDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.LoggingMiddleware(deps.Metrics))
	if deps.Limiter != nil {
		router.Use(middleware.RateLimit(deps.Limiter))
	}

	applications := NewApplicationController(deps.Apps, deps.Loans)
	loans := NewLoanController(deps.Loans, deps.Ledger)
	collections := NewCollectionController(deps.Ledger)
	borrowers := NewBorrowerController(deps.Borrowers, deps.Loans)
	offers := NewOfferController(deps.Catalog, deps.Metrics)

	// Публичные маршруты
	router.HandleFunc("/api/offers", offers.Offers).Methods(http.MethodGet)

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware(deps.JWTKey))

	// Заявки
	protected.HandleFunc("/applications", applications.Submit).Methods(http.MethodPost)
	protected.HandleFunc("/applications/{id}", applications.Get).Methods(http.MethodGet)
	protected.HandleFunc("/applications/{id}/documents", applications.AttachDocument).Methods(http.MethodPost)
	protected.HandleFunc("/applications/{id}/transitions", applications.Transition).Methods(http.MethodPost)
	protected.HandleFunc("/applications/{id}/audit", applications.AuditTrail).Methods(http.MethodGet)
	protected.HandleFunc("/applications/{id}/loan", applications.GenerateLoan).Methods(http.MethodPost)

	// Кредиты
	protected.HandleFunc("/loans/{id}", loans.GetLoan).Methods(http.MethodGet)
	protected.HandleFunc("/loans/{id}/collections", loans.ListCollections).Methods(http.MethodGet)
	protected.HandleFunc("/loans/{id}/payments", loans.AllocatePayment).Methods(http.MethodPost)
	protected.HandleFunc("/loans/{id}/collector", loans.AssignCollector).Methods(http.MethodPut)

	// Взносы и платежи
	protected.HandleFunc("/collections/{ref}/payments", collections.PostPayment).Methods(http.MethodPost)
	protected.HandleFunc("/collections/{ref}/note", collections.UpdateNote).Methods(http.MethodPut)
	protected.HandleFunc("/collectors/{id}/collections", collections.ListByCollector).Methods(http.MethodGet)
	protected.HandleFunc("/payments/{id}/reversal", collections.ReversePayment).Methods(http.MethodPost)

	// Заемщики
	protected.HandleFunc("/borrowers/{id}/summary", borrowers.Summary).Methods(http.MethodGet)
	protected.HandleFunc("/borrowers/{id}/reloan", borrowers.GenerateReloan).Methods(http.MethodPost)

	protected.HandleFunc("/metrics", offers.Metrics).Methods(http.MethodGet)

	return router
}
