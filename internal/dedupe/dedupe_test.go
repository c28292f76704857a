package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/race-archive/internal/domain"
)

func rec(id, url string) *domain.Record {
	return &domain.Record{ID: id, URL: url}
}

func TestDedupeFirstWinsOrderPreserved(t *testing.T) {
	in := []*domain.Record{
		rec("a", "html-a"),
		rec("b", "html-b"),
		rec("a", "json-a"),
		nil,
		rec("c", "html-c"),
		rec("b", "json-b"),
	}
	out := Dedupe(in)

	var urls []string
	for _, r := range out {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{"html-a", "html-b", "html-c"}, urls)
}

func TestDedupeIdempotent(t *testing.T) {
	in := []*domain.Record{rec("x", "1"), rec("y", "2"), rec("x", "3"), rec("z", "4"), rec("y", "5")}
	once := Dedupe(in)
	twice := Dedupe(once)
	assert.Equal(t, once, twice)

	ids := map[string]bool{}
	for _, r := range twice {
		assert.False(t, ids[r.ID], "duplicate id %s", r.ID)
		ids[r.ID] = true
	}
}

func TestDedupeEmpty(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
}
