package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCountries = CountryRules{Home: "JP", Prefixes: []string{"GB", "FR", "HK"}}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{"2024-05", Period{2024, time.May}, false},
		{"2024/5", Period{2024, time.May}, false},
		{" 2023-12 ", Period{2023, time.December}, false},
		{"2024-13", Period{}, true},
		{"may", Period{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriodHelpers(t *testing.T) {
	p := Period{2024, time.May}
	assert.Equal(t, "2024-05", p.String())
	assert.Equal(t, "may", p.Slug())
	assert.True(t, p.Contains(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))

	ps, err := ParsePeriods("2024-05,2024-06,")
	require.NoError(t, err)
	assert.Len(t, ps, 2)
}

func TestCountryRules(t *testing.T) {
	assert.Equal(t, "GB", testCountries.Code("GB - Ascot"))
	assert.Equal(t, "FR", testCountries.Code("FR-Longchamp"))
	assert.Equal(t, "JP", testCountries.Code("US - Belmont"), "unknown prefix falls back to home")
	assert.Equal(t, "JP", testCountries.Code("Tokyo"))
	assert.Equal(t, "JP", testCountries.Code(UnknownVenue))
}

func TestRecordSetDate(t *testing.T) {
	r := NewRecord(Period{2024, time.May}, "https://races.example.com/race/1", SourceHTML)

	assert.False(t, r.SetDate(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)), "outside period")
	assert.Nil(t, r.Date)

	assert.True(t, r.SetDate(time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, r.Date)
	assert.Equal(t, "2024-05-12", r.Date.ISO)
	assert.Equal(t, "Sun, 12 May 2024", r.Date.Label)
	assert.Equal(t, 2024, r.Date.Year)
	assert.Equal(t, 5, r.Date.Month)
}

func TestRecordFinalize(t *testing.T) {
	t.Run("fallbacks", func(t *testing.T) {
		r := NewRecord(Period{2024, time.May}, "https://races.example.com/race/1", SourceHTML)
		r.Finalize(testCountries)

		require.NotNil(t, r.Date)
		assert.Equal(t, "2024-05-01", r.Date.ISO)
		assert.True(t, r.DateFallback)
		assert.True(t, r.NeedsDate())
		assert.Equal(t, UnknownVenue, r.Venue)
		assert.True(t, r.NeedsVenue())
		assert.Equal(t, 1, r.MeetingNumber)
		assert.Equal(t, "JP", r.CountryCode)
		assert.Len(t, r.ID, 16)
	})

	t.Run("stable id", func(t *testing.T) {
		a := NewRecord(Period{2024, time.May}, "https://races.example.com/race/1", SourceHTML)
		b := NewRecord(Period{2024, time.May}, "https://races.example.com/race/1?ref=x", SourceJSON)
		for _, r := range []*Record{a, b} {
			r.SetDate(time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC))
			r.SetVenue("GB - Ascot")
			r.MeetingNumber = 2
			r.Finalize(testCountries)
		}
		assert.Equal(t, a.ID, b.ID)
		assert.Equal(t, "GB", a.CountryCode)
		assert.False(t, a.NeedsDate())
		assert.False(t, a.NeedsVenue())
	})

	t.Run("unresolved records stay distinct", func(t *testing.T) {
		a := NewRecord(Period{2024, time.May}, "https://races.example.com/meeting/101", SourceHTML)
		b := NewRecord(Period{2024, time.May}, "https://races.example.com/meeting/102", SourceHTML)
		a.Finalize(testCountries)
		b.Finalize(testCountries)
		assert.NotEqual(t, a.ID, b.ID)

		c := NewRecord(Period{2024, time.May}, "https://races.example.com/meeting/101", SourceJSON)
		c.Finalize(testCountries)
		assert.Equal(t, a.ID, c.ID, "same detail URL is the same meeting")
	})

	t.Run("enrichment clears fallback", func(t *testing.T) {
		r := NewRecord(Period{2024, time.May}, "https://races.example.com/race/1", SourceHTML)
		r.Finalize(testCountries)
		before := r.ID
		require.True(t, r.SetDate(time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC)))
		r.Finalize(testCountries)
		assert.False(t, r.DateFallback)
		assert.NotEqual(t, before, r.ID)
	})
}

func TestRecordJSON(t *testing.T) {
	r := NewRecord(Period{2024, time.May}, "https://races.example.com/race/1", SourceHTML)
	r.SetVenue("Tokyo")
	r.Finalize(testCountries)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, `"venue":"Tokyo"`)
	assert.Contains(t, s, `"source":"html"`)
	assert.NotContains(t, s, "resultReport", "absent result is omitted")
	assert.NotContains(t, s, "Period")
}

func TestFilterMatch(t *testing.T) {
	r := &Record{Venue: "GB - Ascot", CountryCode: "GB"}

	var nilFilter *Filter
	assert.True(t, nilFilter.Match(r))
	assert.True(t, (&Filter{Venue: "ascot"}).Match(r))
	assert.True(t, (&Filter{Country: "gb"}).Match(r))
	assert.False(t, (&Filter{Venue: "tokyo"}).Match(r))
	assert.False(t, (&Filter{Venue: "ascot", Country: "FR"}).Match(r))
}
