package enrich

import "sync/atomic"

// Budget hands out detail lookups.
type Budget interface {
	TryAcquire() bool
	Release()
}

// Counters caps the number of detail lookups across one request. It is shared
// by every goroutine working on that request.
type Counters struct {
	used atomic.Int64
	cap  int64
}

// NewCounters allows up to limit lookups. A non-positive limit allows none.
func NewCounters(limit int) *Counters {
	return &Counters{cap: int64(limit)}
}

func (c *Counters) TryAcquire() bool {
	for {
		cur := c.used.Load()
		if cur >= c.cap {
			return false
		}
		if c.used.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (c *Counters) Release() {
	c.used.Add(-1)
}

func (c *Counters) Used() int {
	return int(c.used.Load())
}

func (c *Counters) Remaining() int {
	r := c.cap - c.used.Load()
	if r < 0 {
		return 0
	}
	return int(r)
}

type all []Budget

// All acquires from every budget or from none of them.
func All(budgets ...Budget) Budget {
	return all(budgets)
}

func (a all) TryAcquire() bool {
	for i, b := range a {
		if !b.TryAcquire() {
			for _, taken := range a[:i] {
				taken.Release()
			}
			return false
		}
	}
	return true
}

func (a all) Release() {
	for _, b := range a {
		b.Release()
	}
}
