package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/user/race-archive/pkg/urlutil"
)

// Source tags the upstream system that produced a record.
type Source string

const (
	SourceHTML Source = "html"
	SourceJSON Source = "json"
)

// UnknownVenue marks a venue that could not be extracted.
const UnknownVenue = "Unknown"

const dateLabelLayout = "Mon, 2 Jan 2006"

// RecordDate is a calendar date with its display forms.
type RecordDate struct {
	ISO   string `json:"iso"`
	Label string `json:"label"`
	Year  int    `json:"year"`
	Month int    `json:"month"`
}

func NewRecordDate(t time.Time) RecordDate {
	return RecordDate{
		ISO:   t.Format(time.DateOnly),
		Label: t.Format(dateLabelLayout),
		Year:  t.Year(),
		Month: int(t.Month()),
	}
}

// Time parses the ISO form back into a UTC midnight time.
func (d RecordDate) Time() time.Time {
	t, err := time.Parse(time.DateOnly, d.ISO)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Record is one race meeting as published by the archive.
// Date, Venue and ResultReport may be unset while the pipeline runs;
// Finalize fills the sanctioned fallbacks before a record is returned.
type Record struct {
	ID            string      `json:"id"`
	Date          *RecordDate `json:"date"`
	DateFallback  bool        `json:"dateFallback,omitempty"` // first-of-month placeholder, low confidence
	Venue         string      `json:"venue"`
	MeetingNumber int         `json:"meetingNumber"`
	CountryCode   string      `json:"countryCode"`
	URL           string      `json:"url"`
	ResultReport  string      `json:"resultReport,omitempty"`
	Source        Source      `json:"source"`

	Period Period `json:"-"`
}

// NewRecord creates a record for the given period and detail URL.
func NewRecord(period Period, url string, source Source) *Record {
	return &Record{
		Period: period,
		URL:    strings.TrimSpace(url),
		Source: source,
	}
}

func (r *Record) NeedsDate() bool {
	return r.Date == nil || r.DateFallback
}

func (r *Record) NeedsVenue() bool {
	v := strings.TrimSpace(r.Venue)
	return v == "" || v == UnknownVenue
}

func (r *Record) NeedsResult() bool {
	return r.ResultReport == ""
}

// SetDate assigns t if it falls inside the record's period.
// Dates outside the requested period are rejected.
func (r *Record) SetDate(t time.Time) bool {
	if t.IsZero() || !r.Period.Contains(t) {
		return false
	}
	d := NewRecordDate(t)
	r.Date = &d
	r.DateFallback = false
	return true
}

// SetVenue assigns a non-empty venue.
func (r *Record) SetVenue(v string) bool {
	v = strings.Join(strings.Fields(v), " ")
	if v == "" || v == UnknownVenue {
		return false
	}
	r.Venue = v
	return true
}

// Finalize applies the output fallbacks and derives the country code and ID.
// It is safe to call repeatedly; enrichment calls it again after filling fields.
func (r *Record) Finalize(countries CountryRules) {
	if r.Date == nil {
		d := NewRecordDate(r.Period.FirstDay())
		r.Date = &d
		r.DateFallback = true
	}
	if strings.TrimSpace(r.Venue) == "" {
		r.Venue = UnknownVenue
	}
	if r.MeetingNumber < 1 {
		r.MeetingNumber = 1
	}
	r.CountryCode = countries.Code(r.Venue)
	r.ID = DeriveID(r.Date.ISO, r.Venue, r.MeetingNumber)
	if r.DateFallback || r.Venue == UnknownVenue {
		// Placeholder fields cannot tell two meetings apart; the detail URL can.
		r.ID = urlutil.HashKey(r.ID, r.URL)[:16]
	}
}

// DeriveID builds the deterministic identity key of a meeting.
func DeriveID(isoDate, venue string, meeting int) string {
	key := urlutil.HashKey(isoDate, strings.ToLower(strings.TrimSpace(venue)), strconv.Itoa(meeting))
	return key[:16]
}

// Filter narrows the record set before enrichment.
type Filter struct {
	Venue   string `json:"venue,omitempty"`
	Country string `json:"country,omitempty"`
}

func (f *Filter) Empty() bool {
	return f == nil || (strings.TrimSpace(f.Venue) == "" && strings.TrimSpace(f.Country) == "")
}

// Match reports whether r passes the filter. A nil filter matches everything.
func (f *Filter) Match(r *Record) bool {
	if f.Empty() {
		return true
	}
	if v := strings.TrimSpace(f.Venue); v != "" && !strings.Contains(strings.ToLower(r.Venue), strings.ToLower(v)) {
		return false
	}
	if c := strings.TrimSpace(f.Country); c != "" && !strings.EqualFold(r.CountryCode, c) {
		return false
	}
	return true
}

// CollectRequest is the caller-facing input of a collection run.
type CollectRequest struct {
	Periods     []Period `json:"periods"`
	WithResults bool     `json:"with_results"`
	Filter      *Filter  `json:"filter,omitempty"`
}

// CollectResult is the deduplicated, partially enriched output of a run.
type CollectResult struct {
	Records       []*Record  `json:"records"`
	EndedEarly    bool       `json:"ended_early"`
	FailedPeriods []string   `json:"failed_periods,omitempty"`
	Summary       RunSummary `json:"summary"`
}

// RunSummary describes one collection run for the audit log.
type RunSummary struct {
	ID            string        `json:"id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Periods       []string      `json:"periods"`
	WithResults   bool          `json:"with_results"`
	Records       int           `json:"records"`
	WithResult    int           `json:"with_result"`
	DateFallbacks int           `json:"date_fallbacks"`
	UnknownVenues int           `json:"unknown_venues"`
	FailedPeriods []string      `json:"failed_periods,omitempty"`
	EndedEarly    bool          `json:"ended_early"`
}
