package extract

import (
	"regexp"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
	"2 January 2006",
	"2 Jan 2006",
	"January 2 2006",
	"Jan 2 2006",
	"Mon 2 Jan 2006",
	"Monday 2 January 2006",
	"Mon Jan 2 2006",
	"Monday January 2 2006",
	"02/01/2006",
	"2006/01/02",
}

// ParseDate reads a date in any of the formats the archive uses and returns
// the calendar day as UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	s = normalizeDate(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// FindDates scans free text for date-like fragments, in order of appearance
// per pattern: ISO first, then day-month-year, then month-day-year.
func FindDates(text string) []time.Time {
	var out []time.Time
	for _, p := range []*regexp.Regexp{isoDatePattern, dayMonthPattern, monthDayPattern} {
		for _, m := range p.FindAllString(text, -1) {
			if t, ok := ParseDate(m); ok {
				out = append(out, t)
			}
		}
	}
	return out
}

func normalizeDate(s string) string {
	s = strings.ReplaceAll(s, ",", " ")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	fields := strings.Fields(s)
	for i, f := range fields {
		f = strings.TrimSuffix(f, ".")
		if strings.EqualFold(f, "sept") {
			f = "Sep"
		}
		fields[i] = f
	}
	return strings.Join(fields, " ")
}
