// Package budget implements the atomic session and workspace budget
// trackers (C4): reserve-then-commit monetary caps with a single critical
// section, as required by §9's atomicity rule.
package budget

import (
	"fmt"
	"sync"
)

// Kind discriminates a CheckAndReserve outcome.
type Kind int

const (
	Allowed Kind = iota
	WarnAndAllow
	Exceeded
)

// Decision is the outcome of CheckAndReserve.
type Decision struct {
	Kind Kind

	// WarnAndAllow
	Current float64
	Max     float64
	Percent float64

	// Exceeded
	Reason    string
	Requested float64
	Available float64
}

// Config holds the caps enforced by a session Tracker.
type Config struct {
	SessionMaxUSD   float64
	PerActionMaxUSD float64 // 0 disables the per-action cap
	WarnAtPercent   float64 // 0 disables the warn threshold, e.g. 80 for 80%
}

// Snapshot is the serializable state of a Tracker, for session save/restore.
type Snapshot struct {
	SpentUSD float64
	Warned   bool
}

// Tracker is the per-session budget tracker. Safe for concurrent use;
// CheckAndReserve is a single critical section with no blocking operations
// inside the lock.
type Tracker struct {
	mu     sync.Mutex
	cfg    Config
	spent  float64
	warned bool
}

// NewTracker creates a session tracker under cfg.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// CheckAndReserve atomically checks cost against the per-action and session
// caps and, if not exceeded, adds cost to spent before releasing the lock.
func (t *Tracker) CheckAndReserve(cost float64) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.PerActionMaxUSD > 0 && cost > t.cfg.PerActionMaxUSD {
		return Decision{
			Kind:      Exceeded,
			Reason:    fmt.Sprintf("budget exceeded (per_action): requested $%.2f, available $%.2f", cost, t.cfg.PerActionMaxUSD),
			Requested: cost,
			Available: t.cfg.PerActionMaxUSD,
		}
	}

	if t.cfg.SessionMaxUSD > 0 && t.spent+cost > t.cfg.SessionMaxUSD {
		return Decision{
			Kind:      Exceeded,
			Reason:    fmt.Sprintf("budget exceeded (session): requested $%.2f, available $%.2f", cost, t.cfg.SessionMaxUSD-t.spent),
			Requested: cost,
			Available: t.cfg.SessionMaxUSD - t.spent,
		}
	}

	t.spent += cost

	if t.cfg.WarnAtPercent > 0 && t.cfg.SessionMaxUSD > 0 {
		pct := t.spent / t.cfg.SessionMaxUSD * 100
		if pct >= t.cfg.WarnAtPercent && !t.warned {
			t.warned = true
			return Decision{Kind: WarnAndAllow, Current: t.spent, Max: t.cfg.SessionMaxUSD, Percent: pct}
		}
	}

	return Decision{Kind: Allowed}
}

// RecordCost accrues an ex-post cost (e.g. tokens reported after a
// streaming response) atomically. It is never checked against the cap —
// the cap was enforced at reserve time.
func (t *Tracker) RecordCost(cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent += cost
}

// Spent returns the current accumulated spend.
func (t *Tracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// Remaining returns the remaining budget, or (0, false) if unbounded
// (SessionMaxUSD == 0 means no cap was configured).
func (t *Tracker) Remaining() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.SessionMaxUSD <= 0 {
		return 0, false
	}
	return t.cfg.SessionMaxUSD - t.spent, true
}

// Snapshot captures the tracker's state for persistence.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{SpentUSD: t.spent, Warned: t.warned}
}

// Restore replaces the tracker's state with snap.
func (t *Tracker) Restore(snap Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent = snap.SpentUSD
	t.warned = snap.Warned
}
