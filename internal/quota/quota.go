// Package quota enforces per-identity daily limits on report generation.
// Counters live in memory for the process lifetime and reset at the day
// boundary by virtue of the (identity, day) key.
package quota

import (
	"sync"
	"time"
)

// Limits holds the two daily ceilings, both must hold for work to proceed.
type Limits struct {
	Count    int
	Duration int
}

var (
	AuthenticatedLimits = Limits{Count: 20, Duration: 300}
	AnonymousLimits     = Limits{Count: 5, Duration: 80}
)

// UnitsPerItem is the estimated duration charge of a single video in a
// report. Deliberately coarse, the point is fairness not accounting.
const UnitsPerItem = 15

func EstimateDuration(items int) int {
	return items * UnitsPerItem
}

type key struct {
	identity string
	day      string
}

type usage struct {
	count    int
	duration int
}

// Gate tracks usage per (identity, calendar day).
type Gate struct {
	// Now is the clock, replaced in tests.
	Now func() time.Time

	mu    sync.Mutex
	usage map[key]*usage
}

func NewGate() *Gate {
	return &Gate{
		Now:   time.Now,
		usage: map[key]*usage{},
	}
}

func (g *Gate) keyFor(identity string, authenticated bool) key {
	class := "anon:"
	if authenticated {
		class = "auth:"
	}
	return key{
		identity: class + identity,
		day:      g.Now().UTC().Format("2006-01-02"),
	}
}

func limitsFor(authenticated bool) Limits {
	if authenticated {
		return AuthenticatedLimits
	}
	return AnonymousLimits
}

// Admit reports whether the identity has room left under both daily limits.
func (g *Gate) Admit(identity string, authenticated bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.usage[g.keyFor(identity, authenticated)]
	if u == nil {
		return true
	}

	limits := limitsFor(authenticated)
	return u.count < limits.Count && u.duration < limits.Duration
}

// Charge records items and estimated duration against the identity's day.
// The charge is atomic: when either counter would exceed its limit nothing
// is recorded and false is returned.
func (g *Gate) Charge(identity string, authenticated bool, items, duration int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := g.keyFor(identity, authenticated)
	u := g.usage[k]
	if u == nil {
		u = &usage{}
	}

	limits := limitsFor(authenticated)
	if u.count+items > limits.Count || u.duration+duration > limits.Duration {
		return false
	}

	u.count += items
	u.duration += duration
	g.usage[k] = u
	return true
}

// Usage returns today's counters for the identity.
func (g *Gate) Usage(identity string, authenticated bool) (count, duration int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.usage[g.keyFor(identity, authenticated)]
	if u == nil {
		return 0, 0
	}
	return u.count, u.duration
}
