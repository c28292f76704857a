package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) Now() time.Time          { return f.t }
func (f *fakeNow) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestClock() (*Clock, *fakeNow) {
	fn := &fakeNow{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := New(fn.Now, map[string]time.Duration{
		Listing:    10 * time.Second,
		Enrichment: 20 * time.Second,
		Overall:    25 * time.Second,
	})
	return c, fn
}

func TestRemaining(t *testing.T) {
	c, fn := newTestClock()

	assert.Equal(t, 10*time.Second, c.Remaining(Listing))
	assert.Equal(t, 25*time.Second, c.Remaining(Overall))

	fn.Advance(12 * time.Second)
	assert.Equal(t, -2*time.Second, c.Remaining(Listing), "remaining may go negative")
	assert.Equal(t, 8*time.Second, c.Remaining(Enrichment))
	assert.Equal(t, 12*time.Second, c.Elapsed())
}

func TestRemainingUnknownCeilingUsesOverall(t *testing.T) {
	c, _ := newTestClock()
	assert.Equal(t, 25*time.Second, c.Remaining("json-source"))
}

func TestRemainingCappedByOverall(t *testing.T) {
	fn := &fakeNow{t: time.Now()}
	c := New(fn.Now, map[string]time.Duration{Enrichment: time.Minute, Overall: 5 * time.Second})
	assert.Equal(t, 5*time.Second, c.Remaining(Enrichment))
}

func TestUnboundedClock(t *testing.T) {
	c := New(nil, nil)
	assert.False(t, c.ShouldStop(Overall, time.Hour))
	assert.Equal(t, 1.0, c.Fraction(Overall))
}

func TestShouldStop(t *testing.T) {
	tests := []struct {
		name      string
		advance   time.Duration
		threshold time.Duration
		want      bool
	}{
		{"fresh clock", 0, 3 * time.Second, false},
		{"just above threshold", 16 * time.Second, 3 * time.Second, false},
		{"exactly at threshold", 17 * time.Second, 3 * time.Second, false},
		{"below threshold", 18 * time.Second, 3 * time.Second, true},
		{"exhausted", time.Minute, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fn := newTestClock()
			fn.Advance(tt.advance)
			assert.Equal(t, tt.want, c.ShouldStop(Enrichment, tt.threshold))
		})
	}
}

func TestFraction(t *testing.T) {
	c, fn := newTestClock()
	assert.Equal(t, 1.0, c.Fraction(Enrichment))
	fn.Advance(10 * time.Second)
	assert.InDelta(t, 0.5, c.Fraction(Enrichment), 1e-9)
	fn.Advance(time.Minute)
	assert.Equal(t, 0.0, c.Fraction(Enrichment))
}

func TestNewCopiesCeilings(t *testing.T) {
	ceilings := map[string]time.Duration{Overall: time.Second}
	c := New(nil, ceilings)
	ceilings[Overall] = time.Hour
	d, _ := c.Ceiling(Overall)
	assert.Equal(t, time.Second, d)
}
