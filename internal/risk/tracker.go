package risk

import (
	"sync"
	"time"

	"github.com/vpk404/flashloan/internal/metrics"
)

const dayLayout = "2006-01-02"

// Tracker owns the process-lifetime attempt and spend counters. The day key
// rolls over lazily on access; cumulative spend never resets. check-then-record
// runs under one mutex so concurrent cycles cannot both see a free slot.
type Tracker struct {
	mu       sync.Mutex
	attempts int
	day      string
	spentUSD float64

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now, day: time.Now().Format(dayLayout)}
}

func (t *Tracker) rollover() {
	day := t.now().Format(dayLayout)
	if day != t.day {
		t.day = day
		t.attempts = 0
	}
}

// AttemptsToday returns today's attempt count after a rollover check.
func (t *Tracker) AttemptsToday() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.attempts
}

// SpentUSD returns the cumulative gas spend for this process lifetime.
func (t *Tracker) SpentUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spentUSD
}

// RecordAttempt counts a live submission against today's quota.
func (t *Tracker) RecordAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	t.attempts++
	metrics.AttemptsToday.Set(float64(t.attempts))
}

// RecordSpend adds realized gas cost. Called for confirmed and reverted
// transactions alike; reverts still burn gas.
func (t *Tracker) RecordSpend(gasUSD float64) {
	if gasUSD <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spentUSD += gasUSD
	metrics.BudgetSpentUSD.Set(t.spentUSD)
}
