package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"microlending/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := borrowerActor()

	app, err := env.apps.Submit(ctx, newSubmission(models.LoanTypeWithCollateral), applicant)
	require.NoError(t, err)

	assert.NotEmpty(t, app.ID)
	assert.Equal(t, models.StatusApplied, app.Status)
	assert.Equal(t, applicant.ID, app.BorrowerID)
	assert.Equal(t, "10", app.InterestRate.String())
	assert.Equal(t, 1, app.Version)

	stored, err := env.apps.Get(ctx, app.ID, applicant)
	require.NoError(t, err)
	require.NotNil(t, stored.Collateral)
	assert.Equal(t, "Vehicle", stored.Collateral.Type)
	assert.Len(t, stored.References, 3)
	assert.Len(t, stored.Documents, 6)

	var borrower models.Borrower
	require.NoError(t, env.db.First(&borrower, "id = ?", applicant.ID).Error)
	assert.Equal(t, "Maria", borrower.FirstName)

	trail, err := env.apps.AuditTrail(ctx, app.ID, officer)
	require.NoError(t, err)
	require.Len(t, trail.Entries, 1)
	assert.Equal(t, models.TransitionSubmit, trail.Entries[0].Transition)
	assert.True(t, trail.Valid)

	assert.Eventually(t, func() bool {
		return len(env.published.ofType(EventApplicationSubmitted)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSubmitApplicationValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(dto *SubmitApplicationDTO)
	}{
		{"missing collateral", func(dto *SubmitApplicationDTO) { dto.Collateral = nil }},
		{"collateral on unsecured loan", func(dto *SubmitApplicationDTO) {
			dto.LoanType = models.LoanTypeWithoutCollateral
		}},
		{"two references", func(dto *SubmitApplicationDTO) { dto.References = dto.References[:2] }},
		{"missing first name", func(dto *SubmitApplicationDTO) { dto.FirstName = "" }},
		{"bad email", func(dto *SubmitApplicationDTO) { dto.Email = "not-an-email" }},
		{"unknown loan type", func(dto *SubmitApplicationDTO) { dto.LoanType = "Payday" }},
		{"zero amount", func(dto *SubmitApplicationDTO) { dto.Amount = dec("0") }},
		{"amount above catalog", func(dto *SubmitApplicationDTO) { dto.Amount = dec("1000000") }},
		{"term above catalog", func(dto *SubmitApplicationDTO) { dto.TermInPeriods = 48 }},
		{"bad birth date", func(dto *SubmitApplicationDTO) { dto.BirthDate = "12/04/1990" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dto := newSubmission(models.LoanTypeWithCollateral)
			tt.mutate(&dto)

			_, err := env.apps.Submit(ctx, dto, borrowerActor())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.NotEmpty(t, verr.Messages)
		})
	}

	var count int64
	env.db.Model(&models.Application{}).Count(&count)
	assert.Zero(t, count)
}

func TestSubmitApplicationRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.apps.Submit(ctx, newSubmission(models.LoanTypeOpenTerm), collector)
	assert.True(t, errors.Is(err, ErrForbidden))

	// Заемщик не может подать заявку за другого
	dto := newSubmission(models.LoanTypeOpenTerm)
	dto.BorrowerID = "someone-else"
	_, err = env.apps.Submit(ctx, dto, borrowerActor())
	assert.True(t, errors.Is(err, ErrForbidden))

	// Сотрудник регистрирует нового заемщика
	app, err := env.apps.Submit(ctx, newSubmission(models.LoanTypeOpenTerm), officer)
	require.NoError(t, err)
	assert.NotEmpty(t, app.BorrowerID)

	// Ссылка на неизвестного заемщика
	dto = newSubmission(models.LoanTypeOpenTerm)
	dto.BorrowerID = "00000000-0000-0000-0000-000000000000"
	_, err = env.apps.Submit(ctx, dto, officer)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestApplicationFullWalk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := borrowerActor()

	app, err := env.apps.Submit(ctx, newSubmission(models.LoanTypeWithoutCollateral), applicant)
	require.NoError(t, err)

	result, err := env.apps.Transition(ctx, app.ID, interview(), officer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, result.From)
	assert.Equal(t, models.StatusPending, result.Status)

	env.walk(t, app.ID,
		step(models.TransitionClear, manager),
		step(models.TransitionApprove, head),
		step(models.TransitionDisburse, officer),
	)

	result, err = env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionAccept}, manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, result.Status)
	require.NotNil(t, result.Loan)

	stored, err := env.apps.Get(ctx, app.ID, manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	assert.Equal(t, 6, stored.Version)
	require.NotNil(t, stored.InterviewAt)
	assert.Equal(t, time.Date(2025, time.January, 10, 14, 30, 0, 0, time.UTC), stored.InterviewAt.UTC())
	assert.NotNil(t, stored.DisbursedAt)

	trail, err := env.apps.AuditTrail(ctx, app.ID, manager)
	require.NoError(t, err)
	assert.True(t, trail.Valid)

	var walk []models.ApplicationStatus
	for _, e := range trail.Entries {
		walk = append(walk, e.ToStatus)
	}
	assert.Equal(t, []models.ApplicationStatus{
		models.StatusApplied, models.StatusPending, models.StatusCleared,
		models.StatusApproved, models.StatusDisbursed, models.StatusAccepted,
	}, walk)

	assert.Eventually(t, func() bool {
		return len(env.published.ofType(EventInterviewScheduled)) == 1 &&
			len(env.published.ofType(EventLoanGenerated)) == 1
	}, time.Second, 10*time.Millisecond)

	interviewEvent := env.published.ofType(EventInterviewScheduled)[0]
	assert.Equal(t, "maria@example.com", interviewEvent.Contact.Email)
	require.NotNil(t, interviewEvent.InterviewAt)
}

func TestDeniedApplicationCannotBeApproved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	app, err := env.apps.Submit(ctx, newSubmission(models.LoanTypeWithoutCollateral), borrowerActor())
	require.NoError(t, err)

	result, err := env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionDismiss}, officer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, result.Status)

	_, err = env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionApprove}, manager)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, models.StatusDenied, terr.From)

	stored, err := env.apps.Get(ctx, app.ID, manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, stored.Status)

	assert.Eventually(t, func() bool {
		return len(env.published.ofType(EventApplicationDenied)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCollectorCannotApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	app, err := env.apps.Submit(ctx, newSubmission(models.LoanTypeWithoutCollateral), borrowerActor())
	require.NoError(t, err)
	env.walk(t, app.ID, scheduleStep(), step(models.TransitionClear, officer))

	_, err = env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionApprove}, collector)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForbidden))

	stored, err := env.apps.Get(ctx, app.ID, manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCleared, stored.Status)

	trail, err := env.apps.AuditTrail(ctx, app.ID, manager)
	require.NoError(t, err)
	assert.Len(t, trail.Entries, 3)
}

func TestScheduleInterviewRequirements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	applicant := borrowerActor()

	dto := newSubmission(models.LoanTypeWithCollateral)
	dto.Documents = dto.Documents[:5]
	app, err := env.apps.Submit(ctx, dto, applicant)
	require.NoError(t, err)

	// Пять документов из шести
	_, err = env.apps.Transition(ctx, app.ID, interview(), officer)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	_, err = env.apps.AttachDocument(ctx, app.ID, DocumentDTO{
		Filename: "land-title.pdf", StoragePath: "uploads/land-title.pdf", MimeType: "application/pdf",
	}, applicant)
	require.NoError(t, err)

	// Без даты собеседования
	_, err = env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionScheduleInterview}, officer)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	// Неверный формат времени
	_, err = env.apps.Transition(ctx, app.ID, TransitionDTO{
		Transition: models.TransitionScheduleInterview, InterviewDate: "2025-01-10", InterviewTime: "2pm",
	}, officer)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	result, err := env.apps.Transition(ctx, app.ID, interview(), officer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, result.Status)

	// После выхода из Applied документы не принимаются
	_, err = env.apps.AttachDocument(ctx, app.ID, DocumentDTO{
		Filename: "late.pdf", StoragePath: "uploads/late.pdf", MimeType: "application/pdf",
	}, applicant)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestIncompleteApplicationCanBeDismissed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dto := newSubmission(models.LoanTypeWithoutCollateral)
	dto.Documents = nil
	app, err := env.apps.Submit(ctx, dto, borrowerActor())
	require.NoError(t, err)

	result, err := env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionDismiss}, manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, result.Status)
}

func TestAcceptDependsOnReloanFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	app := env.disbursedApplication(t, newSubmission(models.LoanTypeWithoutCollateral), borrowerActor())

	_, err := env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionAcceptReloan}, manager)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionAccept}, officer)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestBorrowerSeesOnlyOwnApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	app, err := env.apps.Submit(ctx, newSubmission(models.LoanTypeOpenTerm), borrowerActor())
	require.NoError(t, err)

	_, err = env.apps.Get(ctx, app.ID, borrowerActor())
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = env.apps.Get(ctx, "missing", manager)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = env.apps.AuditTrail(ctx, app.ID, collector)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestAuditTrailDetectsTampering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	app, err := env.apps.Submit(ctx, newSubmission(models.LoanTypeWithoutCollateral), borrowerActor())
	require.NoError(t, err)
	env.walk(t, app.ID, scheduleStep(), step(models.TransitionClear, officer))

	// Модель запрещает изменение записей журнала
	var first models.AuditEntry
	require.NoError(t, env.db.Where("application_id = ?", app.ID).Order("id ASC").First(&first).Error)
	first.ActorID = "intruder"
	assert.ErrorIs(t, env.db.Save(&first).Error, models.ErrAppendOnly)

	trail, err := env.apps.AuditTrail(ctx, app.ID, manager)
	require.NoError(t, err)
	assert.True(t, trail.Valid)

	// Правка в обход модели ломает цепочку
	require.NoError(t, env.db.Exec("UPDATE audit_entries SET actor_id = ? WHERE id = ?", "intruder", trail.Entries[1].ID).Error)

	trail, err = env.apps.AuditTrail(ctx, app.ID, manager)
	require.NoError(t, err)
	assert.False(t, trail.Valid)
	require.NotNil(t, trail.BrokenAt)
	assert.Equal(t, 1, *trail.BrokenAt)
}

func TestConcurrentApproveAndDeny(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	app, err := env.apps.Submit(ctx, newSubmission(models.LoanTypeWithoutCollateral), borrowerActor())
	require.NoError(t, err)
	env.walk(t, app.ID, scheduleStep(), step(models.TransitionClear, officer))

	errs := make(chan error, 2)
	go func() {
		_, err := env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionApprove}, manager)
		errs <- err
	}()
	go func() {
		_, err := env.apps.Transition(ctx, app.ID, TransitionDTO{Transition: models.TransitionDeny}, head)
		errs <- err
	}()

	var succeeded, rejected int
	for i := 0; i < 2; i++ {
		if err := <-errs; err == nil {
			succeeded++
		} else if errors.Is(err, ErrInvalidTransition) {
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
}
