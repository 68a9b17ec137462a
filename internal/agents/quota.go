package agents

import (
	"sync"
	"time"
)

// QuotaStatus describes a provider's daily token allotment
type QuotaStatus struct {
	Remaining   int64     `json:"remaining"`
	Limit       int64     `json:"limit"`
	ResetAt     time.Time `json:"reset_at"`
	PercentUsed float64   `json:"percent_used"`
}

// ExhaustedQuota is reported when a provider's quota cannot be determined
func ExhaustedQuota(limit int64, resetAt time.Time) QuotaStatus {
	return QuotaStatus{Remaining: 0, Limit: limit, ResetAt: resetAt, PercentUsed: 100}
}

// QuotaTracker keeps a rolling daily token counter
type QuotaTracker struct {
	limit     int64
	now       func() time.Time
	mu        sync.Mutex
	consumed  int64
	lastReset time.Time
}

// NewQuotaTracker creates a tracker for the given daily token limit
func NewQuotaTracker(dailyLimit int64, now func() time.Time) *QuotaTracker {
	if now == nil {
		now = time.Now
	}
	return &QuotaTracker{
		limit:     dailyLimit,
		now:       now,
		lastReset: startOfDay(now()),
	}
}

// Add records tokens consumed by a successful completion
func (q *QuotaTracker) Add(tokens int) {
	if tokens <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	q.consumed += int64(tokens)
}

// Set overrides the tokens consumed today
func (q *QuotaTracker) Set(tokens int64) {
	if tokens < 0 {
		tokens = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	q.consumed = tokens
}

// Consumed returns tokens consumed since the last daily reset
func (q *QuotaTracker) Consumed() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	return q.consumed
}

// Status computes the current quota, resetting the counter first if the day advanced
func (q *QuotaTracker) Status() QuotaStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()

	resetAt := q.lastReset.AddDate(0, 0, 1)
	if q.limit <= 0 {
		return ExhaustedQuota(q.limit, resetAt)
	}

	remaining := q.limit - q.consumed
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{
		Remaining:   remaining,
		Limit:       q.limit,
		ResetAt:     resetAt,
		PercentUsed: float64(q.consumed) / float64(q.limit) * 100,
	}
}

// rollover zeroes the counter when the wall-clock date is past the stored reset date.
// Callers must hold q.mu.
func (q *QuotaTracker) rollover() {
	today := startOfDay(q.now())
	if today.After(q.lastReset) {
		q.consumed = 0
		q.lastReset = today
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
