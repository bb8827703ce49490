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

func TestPostPaymentMarksEntryPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, _ := env.issuedLoan(t)
	ref := loan.Collections[0].ReferenceNumber

	before, err := env.ledger.ListCollectionsByLoan(ctx, loan.ID, manager)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionUnpaid, before[0].Status)

	result, err := env.ledger.PostPayment(ctx, ref, cash(3000), collector)
	require.NoError(t, err)

	assert.Equal(t, models.CollectionPaid, result.Entry.Status)
	assert.Equal(t, "3000", result.Entry.PaidAmount.String())
	assert.True(t, result.Entry.Remaining.IsZero())
	assert.Equal(t, "12000", result.Position.Balance.String())
	assert.Equal(t, 20, result.Position.ProgressPct)
	assert.Equal(t, models.PaymentKindPayment, result.Payment.Kind)
	assert.Equal(t, collector.ID, result.Payment.PostedBy)

	// Кэш кредита обновлен в той же транзакции
	var stored models.Loan
	require.NoError(t, env.db.First(&stored, "id = ?", loan.ID).Error)
	assert.Equal(t, "12000", stored.Balance.String())
	assert.Equal(t, 20, stored.ProgressPct)

	assert.Eventually(t, func() bool {
		return len(env.published.ofType(EventPaymentPosted)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPostPartialPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, _ := env.issuedLoan(t)
	ref := loan.Collections[1].ReferenceNumber

	result, err := env.ledger.PostPayment(ctx, ref, cash(1000), collector)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionPartial, result.Entry.Status)
	assert.Equal(t, "2000", result.Entry.Remaining.String())
	assert.Equal(t, "14000", result.Position.Balance.String())
	assert.Equal(t, 7, result.Position.ProgressPct)
}

func TestPostPaymentRejectsOverpayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, _ := env.issuedLoan(t)
	ref := loan.Collections[0].ReferenceNumber

	_, err := env.ledger.PostPayment(ctx, ref, cash(2000), collector)
	require.NoError(t, err)

	_, err = env.ledger.PostPayment(ctx, ref, cash(1500), collector)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPaymentExceedsDue))

	var exceeds *ExceedsDueError
	require.True(t, errors.As(err, &exceeds))
	assert.Equal(t, "1000", exceeds.Remaining.String())

	entries, err := env.ledger.ListCollectionsByLoan(ctx, loan.ID, manager)
	require.NoError(t, err)
	assert.Equal(t, "2000", entries[0].PaidAmount.String())
	assert.Equal(t, "0", entries[1].PaidAmount.String())
}

func TestPostPaymentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, applicant := env.issuedLoan(t)
	ref := loan.Collections[0].ReferenceNumber

	_, err := env.ledger.PostPayment(ctx, ref, cash(0), collector)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = env.ledger.PostPayment(ctx, ref, PostPaymentDTO{Amount: dec("-5"), Mode: models.PaymentModeCash}, collector)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = env.ledger.PostPayment(ctx, ref, PostPaymentDTO{Amount: dec("10.001"), Mode: models.PaymentModeCash}, collector)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = env.ledger.PostPayment(ctx, ref, PostPaymentDTO{Amount: dec("10"), Mode: "Crypto"}, collector)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = env.ledger.PostPayment(ctx, ref, cash(100), applicant)
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = env.ledger.PostPayment(ctx, "COL-MISSING-001", cash(100), collector)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPaymentsSettleLoanExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, _ := env.issuedLoan(t)

	var last *PostingResult
	for _, c := range loan.Collections {
		result, err := env.ledger.PostPayment(ctx, c.ReferenceNumber, cash(3000), collector)
		require.NoError(t, err)
		last = result
	}

	assert.True(t, last.Position.Balance.IsZero())
	assert.Equal(t, 100, last.Position.ProgressPct)
	assert.True(t, last.Position.Settled())

	assert.Eventually(t, func() bool {
		return len(env.published.ofType(EventLoanSettled)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPostPaymentToSettledLoan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, _ := env.issuedLoan(t)
	_, err := env.ledger.AllocatePayment(ctx, loan.ID, cash(15000), collector)
	require.NoError(t, err)

	ref := loan.Collections[4].ReferenceNumber
	_, err = env.ledger.PostPayment(ctx, ref, cash(100), collector)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoanAlreadySettled))

	entries, err := env.ledger.ListCollectionsByLoan(ctx, loan.ID, manager)
	require.NoError(t, err)
	assert.Equal(t, "3000", entries[4].PaidAmount.String())

	_, err = env.ledger.AllocatePayment(ctx, loan.ID, cash(1), collector)
	assert.True(t, errors.Is(err, ErrLoanAlreadySettled))
}

func TestAllocatePaymentAcrossEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, _ := env.issuedLoan(t)
	_, err := env.ledger.PostPayment(ctx, loan.Collections[0].ReferenceNumber, cash(1000), collector)
	require.NoError(t, err)

	result, err := env.ledger.AllocatePayment(ctx, loan.ID, cash(6500), collector)
	require.NoError(t, err)

	require.Len(t, result.Payments, 3)
	assert.Equal(t, "2000", result.Payments[0].Amount.String())
	assert.Equal(t, "3000", result.Payments[1].Amount.String())
	assert.Equal(t, "1500", result.Payments[2].Amount.String())
	assert.Equal(t, 3, result.Payments[2].CollectionNumber)

	assert.Equal(t, models.CollectionPaid, result.Entries[0].Status)
	assert.Equal(t, models.CollectionPaid, result.Entries[1].Status)
	assert.Equal(t, models.CollectionPartial, result.Entries[2].Status)
	assert.Equal(t, "7500", result.Position.Balance.String())
	assert.Equal(t, 50, result.Position.ProgressPct)

	_, err = env.ledger.AllocatePayment(ctx, loan.ID, cash(7501), collector)
	var exceeds *ExceedsDueError
	require.True(t, errors.As(err, &exceeds))
	assert.Equal(t, "7500", exceeds.Remaining.String())
}

func TestReversePayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, _ := env.issuedLoan(t)
	ref := loan.Collections[0].ReferenceNumber

	posted, err := env.ledger.PostPayment(ctx, ref, cash(3000), collector)
	require.NoError(t, err)

	_, err = env.ledger.ReversePayment(ctx, posted.Payment.ID, ReversePaymentDTO{Reason: "posted twice"}, collector)
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = env.ledger.ReversePayment(ctx, posted.Payment.ID, ReversePaymentDTO{}, manager)
	assert.True(t, errors.Is(err, ErrValidation))

	reversed, err := env.ledger.ReversePayment(ctx, posted.Payment.ID, ReversePaymentDTO{Reason: "posted twice"}, manager)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentKindReversal, reversed.Payment.Kind)
	require.NotNil(t, reversed.Payment.ReversalOf)
	assert.Equal(t, posted.Payment.ID, *reversed.Payment.ReversalOf)
	assert.Equal(t, models.CollectionUnpaid, reversed.Entry.Status)
	assert.Equal(t, "15000", reversed.Position.Balance.String())
	assert.Equal(t, 0, reversed.Position.ProgressPct)

	_, err = env.ledger.ReversePayment(ctx, posted.Payment.ID, ReversePaymentDTO{Reason: "again"}, manager)
	assert.True(t, errors.Is(err, ErrAlreadyReversed))

	_, err = env.ledger.ReversePayment(ctx, reversed.Payment.ID, ReversePaymentDTO{Reason: "undo"}, manager)
	assert.True(t, errors.Is(err, ErrValidation))

	// Исходный платеж не изменен, история содержит обе записи
	var history []models.Payment
	require.NoError(t, env.db.Where("loan_id = ?", loan.ID).Find(&history).Error)
	require.Len(t, history, 2)

	var original models.Payment
	require.NoError(t, env.db.First(&original, "id = ?", posted.Payment.ID).Error)
	assert.Equal(t, models.PaymentKindPayment, original.Kind)
	assert.Equal(t, "3000", original.Amount.String())

	assert.Equal(t, int64(1), env.metrics.PaymentsReversed)
}

func TestPaymentsAreAppendOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, _ := env.issuedLoan(t)
	posted, err := env.ledger.PostPayment(ctx, loan.Collections[0].ReferenceNumber, cash(3000), collector)
	require.NoError(t, err)

	payment := posted.Payment
	payment.Amount = dec("1")
	assert.ErrorIs(t, env.db.Save(&payment).Error, models.ErrAppendOnly)
	assert.ErrorIs(t, env.db.Delete(&payment).Error, models.ErrAppendOnly)
}

func TestCollectorAssignmentAndNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, applicant := env.issuedLoan(t)

	_, err := env.ledger.AssignCollector(ctx, loan.ID, collector.ID, collector)
	assert.True(t, errors.Is(err, ErrForbidden))

	assigned, err := env.ledger.AssignCollector(ctx, loan.ID, collector.ID, officer)
	require.NoError(t, err)
	assert.Equal(t, int64(5), assigned)

	entries, err := env.ledger.ListCollectionsByCollector(ctx, collector.ID, collector)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.True(t, entries[0].DueDate.Before(entries[4].DueDate))

	_, err = env.ledger.ListCollectionsByCollector(ctx, collector.ID, Actor{ID: "collector-2", Role: models.RoleCollector})
	assert.True(t, errors.Is(err, ErrForbidden))

	view, err := env.ledger.UpdateNote(ctx, entries[0].ReferenceNumber, "Borrower asked to come back Friday", collector)
	require.NoError(t, err)
	assert.Equal(t, "Borrower asked to come back Friday", view.Note)

	_, err = env.ledger.UpdateNote(ctx, "COL-MISSING-001", "note", collector)
	assert.True(t, errors.Is(err, ErrNotFound))

	// Сборщик видит график назначенного кредита, но не чужого
	own, err := env.ledger.ListCollectionsByLoan(ctx, loan.ID, collector)
	require.NoError(t, err)
	assert.Len(t, own, 5)
	_, err = env.ledger.ListCollectionsByLoan(ctx, loan.ID, Actor{ID: "collector-2", Role: models.RoleCollector})
	assert.True(t, errors.Is(err, ErrForbidden))

	// Заемщик видит свой график, но не чужой
	own, err = env.ledger.ListCollectionsByLoan(ctx, loan.ID, applicant)
	require.NoError(t, err)
	assert.Len(t, own, 5)
	_, err = env.ledger.ListCollectionsByLoan(ctx, loan.ID, borrowerActor())
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestCollectionBecomesOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	loan, _ := env.issuedLoan(t)
	env.advance(45 * 24 * time.Hour)

	entries, err := env.ledger.ListCollectionsByLoan(ctx, loan.ID, manager)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionOverdue, entries[0].Status)
	assert.Equal(t, models.CollectionUnpaid, entries[1].Status)

	position, err := env.ledger.Position(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "15000", position.Balance.String())
}
