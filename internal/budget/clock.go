// Package budget tracks the wall-clock deadline shared by every phase of one
// collection request.
//
// A Clock is created once per request with a set of named ceilings measured
// from the same start instant. Components only read it: they ask how much
// time is left under a ceiling and whether that is below their safety
// threshold, and they do so between units of work, never inside a fetch.
package budget

import (
	"time"
)

// Ceiling names used across the pipeline.
const (
	Listing    = "listing"
	Enrichment = "enrichment"
	Overall    = "overall"
)

// Clock is a start instant plus named ceilings. It is immutable after New.
type Clock struct {
	start    time.Time
	ceilings map[string]time.Duration
	now      func() time.Time
}

// New starts a clock at now() with a copy of the given ceilings.
// A nil now uses time.Now.
func New(now func() time.Time, ceilings map[string]time.Duration) *Clock {
	if now == nil {
		now = time.Now
	}
	c := &Clock{
		start:    now(),
		ceilings: make(map[string]time.Duration, len(ceilings)),
		now:      now,
	}
	for name, d := range ceilings {
		c.ceilings[name] = d
	}
	return c
}

// Elapsed is the time since the clock started.
func (c *Clock) Elapsed() time.Duration {
	return c.now().Sub(c.start)
}

// Ceiling returns the named ceiling. Unknown names resolve to the overall
// ceiling, and a clock without one is unbounded.
func (c *Clock) Ceiling(name string) (time.Duration, bool) {
	if d, ok := c.ceilings[name]; ok {
		return d, true
	}
	d, ok := c.ceilings[Overall]
	return d, ok
}

// Remaining is the ceiling minus elapsed time. It may be negative.
// The effective ceiling never exceeds the overall one.
func (c *Clock) Remaining(name string) time.Duration {
	ceiling, ok := c.Ceiling(name)
	if !ok {
		return time.Duration(1<<63 - 1)
	}
	if overall, ok := c.ceilings[Overall]; ok && overall < ceiling {
		ceiling = overall
	}
	return ceiling - c.Elapsed()
}

// ShouldStop reports whether less than threshold remains under the ceiling.
func (c *Clock) ShouldStop(name string, threshold time.Duration) bool {
	return c.Remaining(name) < threshold
}

// Fraction is the share of the named ceiling still available, clamped to [0,1].
func (c *Clock) Fraction(name string) float64 {
	ceiling, ok := c.Ceiling(name)
	if !ok || ceiling <= 0 {
		return 1
	}
	f := float64(c.Remaining(name)) / float64(ceiling)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
