package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DateStrategies finds the meeting date on a detail page. Only dates for
// which accept returns true count, so a strategy that finds an unrelated
// date (a copyright year, a "last updated" stamp) falls through to the next.
func DateStrategies(accept func(time.Time) bool) []Strategy[time.Time] {
	if accept == nil {
		accept = func(time.Time) bool { return true }
	}
	pick := func(candidates ...string) (time.Time, bool) {
		for _, c := range candidates {
			if t, ok := ParseDate(c); ok && accept(t) {
				return t, true
			}
		}
		return time.Time{}, false
	}
	return []Strategy[time.Time]{
		{Name: "time-element", Apply: func(doc *goquery.Document) (time.Time, bool) {
			var vals []string
			doc.Find("time[datetime]").Each(func(_ int, s *goquery.Selection) {
				v, _ := s.Attr("datetime")
				vals = append(vals, v)
			})
			return pick(vals...)
		}},
		{Name: "meta", Apply: func(doc *goquery.Document) (time.Time, bool) {
			var vals []string
			doc.Find(`meta[itemprop="startDate"], meta[property="event:start_date"], meta[name="race-date"], meta[name="date"]`).Each(func(_ int, s *goquery.Selection) {
				v, _ := s.Attr("content")
				vals = append(vals, v)
			})
			return pick(vals...)
		}},
		{Name: "json-ld", Apply: func(doc *goquery.Document) (time.Time, bool) {
			var vals []string
			for _, script := range scripts(doc) {
				for _, m := range jsonLDStartDatePattern.FindAllStringSubmatch(script, -1) {
					vals = append(vals, m[1])
				}
			}
			return pick(vals...)
		}},
		{Name: "heading", Apply: func(doc *goquery.Document) (time.Time, bool) {
			var found time.Time
			ok := false
			doc.Find(".race-date, .meeting-date, h1, h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				for _, t := range FindDates(s.Text()) {
					if accept(t) {
						found, ok = t, true
						return false
					}
				}
				return true
			})
			return found, ok
		}},
		{Name: "free-text", Apply: func(doc *goquery.Document) (time.Time, bool) {
			for _, t := range FindDates(bodyText(doc)) {
				if accept(t) {
					return t, true
				}
			}
			return time.Time{}, false
		}},
	}
}

// VenueStrategies finds the venue name on a detail page.
func VenueStrategies() []Strategy[string] {
	return []Strategy[string]{
		{Name: "meta", Apply: func(doc *goquery.Document) (string, bool) {
			v, _ := doc.Find(`meta[property="event:location"], meta[name="venue"]`).First().Attr("content")
			return cleanVenue(v)
		}},
		{Name: "json-ld", Apply: func(doc *goquery.Document) (string, bool) {
			for _, script := range scripts(doc) {
				if m := jsonLDLocationPattern.FindStringSubmatch(script); m != nil {
					if v, ok := cleanVenue(m[1]); ok {
						return v, true
					}
				}
			}
			return "", false
		}},
		{Name: "venue-element", Apply: func(doc *goquery.Document) (string, bool) {
			s := doc.Find(`[itemprop="location"] [itemprop="name"], [data-venue], .venue, .meeting-venue`).First()
			if v, ok := s.Attr("data-venue"); ok {
				return cleanVenue(v)
			}
			return cleanVenue(s.Text())
		}},
		{Name: "labelled-text", Apply: func(doc *goquery.Document) (string, bool) {
			return firstVenueMatch(labelledVenuePattern, bodyText(doc))
		}},
		{Name: "title", Apply: func(doc *goquery.Document) (string, bool) {
			for _, sel := range []string{"h1", "title"} {
				if v, ok := firstVenueMatch(titleVenuePattern, doc.Find(sel).First().Text()); ok {
					return v, true
				}
			}
			return "", false
		}},
	}
}

func firstVenueMatch(re *regexp.Regexp, text string) (string, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if v, ok := cleanVenue(m[1]); ok {
			return v, true
		}
	}
	return "", false
}

// cleanVenue trims label noise and rejects values that cannot be venue names.
func cleanVenue(v string) (string, bool) {
	v = collapse(v)
	v = strings.Trim(v, " -–|:,.")
	if v == "" || len(v) > 60 || strings.EqualFold(v, "unknown") {
		return "", false
	}
	if !strings.ContainsFunc(v, func(r rune) bool { return r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' }) {
		return "", false
	}
	return v, true
}
