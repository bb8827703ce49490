package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"microlending/database"
	"microlending/models"
	"microlending/utils"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testCatalogXML = `<catalog>
  <offer type="WithCollateral" rate="10">
    <amount min="1000" max="100000"/>
    <term min="1" max="24"/>
    <frequency>Weekly</frequency>
    <frequency>Bi-weekly</frequency>
    <frequency>Monthly</frequency>
    <frequency>Quarterly</frequency>
  </offer>
  <offer type="WithoutCollateral" rate="10">
    <amount min="1000" max="100000"/>
    <term min="1" max="24"/>
    <frequency>Weekly</frequency>
    <frequency>Bi-weekly</frequency>
    <frequency>Monthly</frequency>
    <frequency>Quarterly</frequency>
  </offer>
  <offer type="OpenTerm" rate="10">
    <amount min="1000" max="100000"/>
    <term min="1" max="24"/>
    <frequency>Monthly</frequency>
  </offer>
</catalog>`

var (
	officer   = Actor{ID: "officer-1", Role: models.RoleLoanOfficer}
	manager   = Actor{ID: "manager-1", Role: models.RoleManager}
	head      = Actor{ID: "head-1", Role: models.RoleHead}
	collector = Actor{ID: "collector-1", Role: models.RoleCollector}
)

// newTestDB открывает отдельную базу SQLite в памяти для теста
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

// recordingPublisher запоминает опубликованные события
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(t EventType) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []Event
	for _, e := range p.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

type testEnv struct {
	db        *gorm.DB
	apps      *ApplicationService
	loans     *LoanService
	ledger    *PaymentLedger
	borrowers *BorrowerService
	events    *Dispatcher
	published *recordingPublisher
	metrics   *utils.Metrics
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	catalog, err := ParseOfferCatalog([]byte(testCatalogXML))
	require.NoError(t, err)

	pool := utils.NewWorkerPool(1, 100)
	t.Cleanup(pool.Stop)

	env := &testEnv{
		db:        db,
		published: &recordingPublisher{},
		metrics:   utils.NewMetrics(),
		now:       time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC),
	}
	events := NewDispatcher(pool, env.published)
	env.events = events
	locker := utils.NewLocalLocker()
	clock := func() time.Time { return env.now }

	env.apps = NewApplicationService(db, catalog, locker, events, env.metrics)
	env.apps.SetClock(clock)
	env.loans = NewLoanService(db, env.apps)
	env.ledger = NewPaymentLedger(db, locker, events, env.metrics)
	env.ledger.SetClock(clock)
	env.borrowers = NewBorrowerService(db)
	env.borrowers.SetClock(clock)

	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func borrowerActor() Actor {
	return Actor{ID: uuid.NewString(), Role: models.RoleBorrower}
}

// newSubmission возвращает заполненную заявку: 10000 под 10% на 5 месяцев
func newSubmission(loanType models.LoanType) SubmitApplicationDTO {
	dto := SubmitApplicationDTO{
		FirstName:        "Maria",
		LastName:         "Santos",
		Phone:            "+639171234567",
		Email:            "maria@example.com",
		Address:          "12 Rizal St, Quezon City",
		BirthDate:        "1990-04-12",
		MonthlyIncome:    decimal.NewFromInt(25000),
		Occupation:       "Vendor",
		LoanType:         loanType,
		Amount:           decimal.NewFromInt(10000),
		TermInPeriods:    5,
		PaymentFrequency: models.FrequencyMonthly,
		Purpose:          "Store inventory",
		References: []ReferenceDTO{
			{Name: "Jose Cruz", Phone: "+639170000001", Relationship: "Neighbor"},
			{Name: "Ana Reyes", Phone: "+639170000002", Relationship: "Friend"},
			{Name: "Luis Garcia", Phone: "+639170000003", Relationship: "Cousin"},
		},
	}

	if loanType.RequiresCollateral() {
		dto.Collateral = &CollateralDTO{
			Type:           "Vehicle",
			Description:    "Motorcycle 2019",
			EstimatedValue: decimal.NewFromInt(40000),
		}
	}
	for i := 0; i < loanType.MinDocuments(); i++ {
		dto.Documents = append(dto.Documents, DocumentDTO{
			Filename:    fmt.Sprintf("doc-%d.pdf", i+1),
			StoragePath: fmt.Sprintf("uploads/doc-%d.pdf", i+1),
			MimeType:    "application/pdf",
		})
	}
	return dto
}

func interview() TransitionDTO {
	return TransitionDTO{
		Transition:    models.TransitionScheduleInterview,
		InterviewDate: "2025-01-10",
		InterviewTime: "14:30",
	}
}

// walk проводит заявку по переходам и падает на первой ошибке
func (e *testEnv) walk(t *testing.T, applicationID string, steps ...func() (TransitionDTO, Actor)) {
	t.Helper()
	for _, step := range steps {
		dto, actor := step()
		_, err := e.apps.Transition(context.Background(), applicationID, dto, actor)
		require.NoError(t, err, "transition %s", dto.Transition)
	}
}

func step(transition models.Transition, actor Actor) func() (TransitionDTO, Actor) {
	return func() (TransitionDTO, Actor) {
		return TransitionDTO{Transition: transition}, actor
	}
}

func scheduleStep() func() (TransitionDTO, Actor) {
	return func() (TransitionDTO, Actor) { return interview(), officer }
}

// disbursedApplication подает заявку и доводит ее до статуса Disbursed
func (e *testEnv) disbursedApplication(t *testing.T, dto SubmitApplicationDTO, applicant Actor) *models.Application {
	t.Helper()

	app, err := e.apps.Submit(context.Background(), dto, applicant)
	require.NoError(t, err)

	e.walk(t, app.ID,
		scheduleStep(),
		step(models.TransitionClear, officer),
		step(models.TransitionApprove, manager),
		step(models.TransitionDisburse, officer),
	)

	app, err = e.apps.Get(context.Background(), app.ID, manager)
	require.NoError(t, err)
	require.Equal(t, models.StatusDisbursed, app.Status)
	return app
}

// issuedLoan возвращает кредит по новой заявке: 10000 под 10% на 5 месяцев
func (e *testEnv) issuedLoan(t *testing.T) (*models.Loan, Actor) {
	t.Helper()
	applicant := borrowerActor()
	app := e.disbursedApplication(t, newSubmission(models.LoanTypeWithoutCollateral), applicant)
	loan, err := e.loans.GenerateLoan(context.Background(), app.ID, manager)
	require.NoError(t, err)
	return loan, applicant
}

func cash(amount int64) PostPaymentDTO {
	return PostPaymentDTO{Amount: decimal.NewFromInt(amount), Mode: models.PaymentModeCash}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
