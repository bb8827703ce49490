package services

import (
	"math"
	"sort"
	"time"

	"microlending/models"

	"github.com/shopspring/decimal"
)

// ReloanProgressThreshold - минимальный прогресс погашения последнего кредита (в процентах)
// для получения повторного кредита
const ReloanProgressThreshold = 70

// neutralScore присваивается заемщику без оцениваемых взносов
const neutralScore = 5.0

// StandingBand представляет качественную оценку заемщика
type StandingBand string

const (
	StandingGood StandingBand = "Good"
	StandingFair StandingBand = "Fair"
	StandingPoor StandingBand = "Poor"
)

// BandForScore возвращает оценку для балла
func BandForScore(score float64) StandingBand {
	switch {
	case score >= 7.5:
		return StandingGood
	case score >= 5:
		return StandingFair
	default:
		return StandingPoor
	}
}

// LoanHistory содержит кредит с графиком и всеми платежами по нему
type LoanHistory struct {
	Loan     models.Loan
	Entries  []models.CollectionEntry
	Payments []models.Payment
}

// BorrowerHistory содержит все кредиты заемщика в порядке выдачи
type BorrowerHistory struct {
	BorrowerID string
	Loans      []LoanHistory
}

// CreditScore представляет результат оценки заемщика
type CreditScore struct {
	Score          float64      `json:"score"`
	Band           StandingBand `json:"band"`
	ReloanEligible bool         `json:"reloan_eligible"`
	ScoredEntries  int          `json:"scored_entries"`
}

// LoanPosition представляет остаток и прогресс кредита, вычисленные по графику
type LoanPosition struct {
	LoanID       string          `json:"loan_id"`
	TotalPayable decimal.Decimal `json:"total_payable"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Balance      decimal.Decimal `json:"balance"`
	ProgressPct  int             `json:"progress_pct"`
}

// Settled сообщает, погашен ли кредит полностью
func (p LoanPosition) Settled() bool {
	return !p.Balance.IsPositive()
}

// ComputePosition пересчитывает остаток и прогресс по оплаченным суммам взносов
func ComputePosition(loan *models.Loan, entries []models.CollectionEntry) LoanPosition {
	paid := decimal.Zero
	for _, e := range entries {
		paid = paid.Add(e.PaidAmount)
	}

	progress := 0
	if loan.TotalPayable.IsPositive() {
		progress = int(paid.Mul(hundred).Div(loan.TotalPayable).Round(0).IntPart())
	}

	return LoanPosition{
		LoanID:       loan.ID,
		TotalPayable: loan.TotalPayable,
		TotalPaid:    paid,
		Balance:      loan.TotalPayable.Sub(paid),
		ProgressPct:  progress,
	}
}

// ScoreBorrower оценивает заемщика по истории платежей на момент now.
// Учитываются взносы, которые уже оплачены или срок которых наступил:
// полная оплата в срок - 1, полная оплата с опозданием - 0.5,
// частичная оплата - 0.25, просрочка без оплаты - 0. Балл = 10 * среднее.
func ScoreBorrower(history BorrowerHistory, now time.Time) CreditScore {
	var total float64
	scored := 0

	for _, lh := range history.Loans {
		paidAt := completionDates(lh.Payments)
		for _, e := range lh.Entries {
			weight, ok := entryWeight(e, paidAt[e.CollectionNumber], now)
			if !ok {
				continue
			}
			total += weight
			scored++
		}
	}

	score := neutralScore
	if scored > 0 {
		score = math.Round(total/float64(scored)*100) / 10
	}

	result := CreditScore{
		Score:         score,
		Band:          BandForScore(score),
		ScoredEntries: scored,
	}

	if latest := latestLoan(history); latest != nil {
		position := ComputePosition(&latest.Loan, latest.Entries)
		result.ReloanEligible = position.ProgressPct >= ReloanProgressThreshold
	}

	return result
}

func entryWeight(e models.CollectionEntry, paidAt time.Time, now time.Time) (float64, bool) {
	switch e.Status(now) {
	case models.CollectionPaid:
		if !paidAt.IsZero() && dayOf(paidAt).After(dayOf(e.DueDate)) {
			return 0.5, true
		}
		return 1, true
	case models.CollectionPartial:
		if now.After(e.DueDate) {
			return 0.25, true
		}
		return 0, false
	case models.CollectionOverdue:
		return 0, true
	}
	return 0, false
}

// completionDates возвращает для каждого взноса дату последнего действующего платежа
func completionDates(payments []models.Payment) map[int]time.Time {
	reversed := make(map[string]bool)
	for _, p := range payments {
		if p.Kind == models.PaymentKindReversal && p.ReversalOf != nil {
			reversed[*p.ReversalOf] = true
		}
	}

	dates := make(map[int]time.Time)
	for _, p := range payments {
		if p.Kind != models.PaymentKindPayment || reversed[p.ID] {
			continue
		}
		if p.DatePaid.After(dates[p.CollectionNumber]) {
			dates[p.CollectionNumber] = p.DatePaid
		}
	}
	return dates
}

// latestLoan возвращает последний выданный кредит
func latestLoan(history BorrowerHistory) *LoanHistory {
	if len(history.Loans) == 0 {
		return nil
	}
	loans := make([]*LoanHistory, len(history.Loans))
	for i := range history.Loans {
		loans[i] = &history.Loans[i]
	}
	sort.SliceStable(loans, func(i, j int) bool {
		a, b := loans[i].Loan, loans[j].Loan
		if !a.DateDisbursed.Equal(b.DateDisbursed) {
			return a.DateDisbursed.Before(b.DateDisbursed)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return loans[len(loans)-1]
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
