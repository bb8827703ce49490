package services

import (
	"fmt"
	"strings"
	"time"

	"microlending/models"

	"github.com/shopspring/decimal"
)

// ScheduleCollections строит график взносов кредита: по одному взносу на период,
// последний взнос забирает остаток, чтобы сумма графика совпала с TotalPayable.
func ScheduleCollections(loan *models.Loan) ([]models.CollectionEntry, error) {
	if loan.TermInPeriods < 1 {
		return nil, fmt.Errorf("%w: срок должен быть не меньше одного периода", ErrInvalidLoanTerms)
	}
	if !ValidFrequency(loan.PaymentFrequency) {
		return nil, fmt.Errorf("%w: неизвестная периодичность %q", ErrInvalidLoanTerms, loan.PaymentFrequency)
	}

	prefix := strings.ToUpper(strings.ReplaceAll(loan.ID, "-", ""))
	entries := make([]models.CollectionEntry, loan.TermInPeriods)
	scheduled := decimal.Zero

	for i := 1; i <= loan.TermInPeriods; i++ {
		amount := loan.PeriodDue
		if i == loan.TermInPeriods {
			amount = loan.TotalPayable.Sub(scheduled)
		}
		scheduled = scheduled.Add(amount)

		entries[i-1] = models.CollectionEntry{
			LoanID:           loan.ID,
			CollectionNumber: i,
			ReferenceNumber:  fmt.Sprintf("COL-%s-%03d", prefix, i),
			DueDate:          DueDate(loan.DateDisbursed, loan.PaymentFrequency, i),
			PeriodAmount:     amount,
			PaidAmount:       decimal.Zero,
		}
	}

	return entries, nil
}

// ValidFrequency сообщает, поддерживается ли периодичность
func ValidFrequency(f models.PaymentFrequency) bool {
	switch f {
	case models.FrequencyWeekly, models.FrequencyBiWeekly, models.FrequencyMonthly, models.FrequencyQuarterly:
		return true
	}
	return false
}

// DueDate возвращает срок n-го взноса, отсчитанный от даты выдачи
func DueDate(disbursed time.Time, frequency models.PaymentFrequency, n int) time.Time {
	switch frequency {
	case models.FrequencyWeekly:
		return disbursed.AddDate(0, 0, 7*n)
	case models.FrequencyBiWeekly:
		return disbursed.AddDate(0, 0, 14*n)
	case models.FrequencyQuarterly:
		return addMonths(disbursed, 3*n)
	default:
		return addMonths(disbursed, n)
	}
}

// addMonths прибавляет календарные месяцы, прижимая день к концу месяца (31 января + 1 = 28/29 февраля)
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return first.AddDate(0, 0, day-1)
}
