package scraper

import (
	"sync"
	"time"

	"github.com/amaumene/streamarr/internal/adjuster"
)

// Termination reasons
const (
	ReasonBudget       = "budget"
	ReasonUnresponsive = "unresponsive"
	ReasonSufficient   = "sufficient"
	ReasonCancelled    = "cancelled"
)

// terminator decides when dispatch stops before every provider finished. The
// decision is taken under its own mutex so every caller sees the same one.
type terminator struct {
	mu sync.Mutex

	now      func() time.Time
	deadline time.Time

	unresponsive bool
	minRunning   int
	patience     time.Duration
	hdCount      int

	running  map[string]time.Time
	finished int
	lowSince time.Time
	reason   string
}

func newTerminator(now func() time.Time, budget time.Duration, unresponsive bool, minRunning int, patience time.Duration, hdCount int) *terminator {
	return &terminator{
		now:          now,
		deadline:     now().Add(budget),
		unresponsive: unresponsive && minRunning > 0 && patience > 0,
		minRunning:   minRunning,
		patience:     patience,
		hdCount:      hdCount,
		running:      make(map[string]time.Time),
	}
}

func (t *terminator) started(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running[provider] = t.now()
}

func (t *terminator) done(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.running, provider)
	t.finished++
}

// check evaluates the termination predicates and returns the reason once one
// fires. The first reason sticks.
func (t *terminator) check(counters adjuster.Counters) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reason != "" {
		return t.reason
	}
	now := t.now()

	switch {
	case !now.Before(t.deadline):
		t.reason = ReasonBudget
	case t.hdCount > 0 && counters.HD() >= t.hdCount:
		t.reason = ReasonSufficient
	case t.unresponsive:
		// Only stragglers are cut: some provider must have finished already
		if t.finished == 0 || len(t.running) == 0 || len(t.running) >= t.minRunning {
			t.lowSince = time.Time{}
			break
		}
		if t.lowSince.IsZero() {
			t.lowSince = now
		}
		if now.Sub(t.lowSince) >= t.patience {
			t.reason = ReasonUnresponsive
		}
	}
	return t.reason
}

// cancel records a user cancellation unless another reason fired first
func (t *terminator) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reason == "" {
		t.reason = ReasonCancelled
	}
}

func (t *terminator) terminated() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

func (t *terminator) runningCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}
