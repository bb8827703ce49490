package utils

import (
	"sync"
	"time"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики кредитного процесса
	Transitions      map[string]int64
	LoansGenerated   int64
	PaymentsPosted   int64
	PaymentsReversed int64
	OverdueNotices   int64

	// Метрики ошибок
	ErrorCount    int64
	LastErrorTime time.Time
	ErrorTypes    map[string]int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// NewMetrics создает пустой набор метрик
func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: make(map[string]int64),
		ErrorTypes:  make(map[string]int64),
	}
}

// GetMetrics возвращает общий экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// RecordRequest записывает метрики HTTP-запроса
func (m *Metrics) RecordRequest(duration time.Duration, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if statusCode >= 500 {
		m.FailedRequests++
	}
}

// RecordTransition записывает успешный переход статуса заявки
func (m *Metrics) RecordTransition(transition string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transitions[transition]++
}

// RecordLoanGenerated записывает выдачу кредита
func (m *Metrics) RecordLoanGenerated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoansGenerated++
}

// RecordPayment записывает проведенный платеж или сторно
func (m *Metrics) RecordPayment(reversal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reversal {
		m.PaymentsReversed++
		return
	}
	m.PaymentsPosted++
}

// RecordOverdueNotices записывает число отправленных напоминаний о просрочке
func (m *Metrics) RecordOverdueNotices(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OverdueNotices += int64(count)
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ErrorCount++
	m.LastErrorTime = time.Now()

	errorType := "unknown"
	if err != nil {
		errorType = err.Error()
	}
	m.ErrorTypes[errorType]++
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	transitions := make(map[string]int64, len(m.Transitions))
	for k, v := range m.Transitions {
		transitions[k] = v
	}
	errorTypes := make(map[string]int64, len(m.ErrorTypes))
	for k, v := range m.ErrorTypes {
		errorTypes[k] = v
	}

	return map[string]interface{}{
		"total_requests":    m.TotalRequests,
		"failed_requests":   m.FailedRequests,
		"average_latency":   m.AverageLatency.String(),
		"transitions":       transitions,
		"loans_generated":   m.LoansGenerated,
		"payments_posted":   m.PaymentsPosted,
		"payments_reversed": m.PaymentsReversed,
		"overdue_notices":   m.OverdueNotices,
		"error_count":       m.ErrorCount,
		"last_error_time":   m.LastErrorTime,
		"error_types":       errorTypes,
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.Transitions = make(map[string]int64)
	m.LoansGenerated = 0
	m.PaymentsPosted = 0
	m.PaymentsReversed = 0
	m.OverdueNotices = 0
	m.ErrorCount = 0
	m.ErrorTypes = make(map[string]int64)
}
