package listing

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/race-archive/internal/domain"
	"github.com/user/race-archive/internal/extract"
	"github.com/user/race-archive/pkg/urlutil"
)

var (
	// /2024/05/12/tokyo-1 or /race/2024/5/12/gb-ascot-2/
	datedPathPattern = regexp.MustCompile(`/(\d{4})/(\d{1,2})/(\d{1,2})/([a-z0-9]+(?:-[a-z0-9]+)*?)(?:-(\d{1,2}))?/?$`)
	racePathPattern  = regexp.MustCompile(`(?i)/(?:races?|meetings?|events?|cards?)/[^/]+`)
	raceTextPattern  = regexp.MustCompile(`(?i)\b(?:race|meeting|card|results?)\b`)
	meetingPattern   = regexp.MustCompile(`(?i)\b(?:meeting|race|r)\s*(?:no\.?|#)?\s*(\d{1,2})\b`)
)

// candidate is a detail link found on a listing page, with the element it came from.
type candidate struct {
	url  string
	link *goquery.Selection
}

type linkStrategy = extract.Strategy[[]candidate]

// parser turns a month listing page into records.
type parser struct {
	base      *url.URL
	period    domain.Period
	countries domain.CountryRules
}

// linkStrategies find detail links, most specific first. The first strategy
// that finds any link defines the candidate set for the page.
func (p *parser) linkStrategies() []linkStrategy {
	return []linkStrategy{
		{Name: "dated-path", Apply: func(doc *goquery.Document) ([]candidate, bool) {
			return p.collect(doc, func(u *url.URL, _ *goquery.Selection) bool {
				return datedPathPattern.MatchString(u.Path)
			})
		}},
		{Name: "race-path", Apply: func(doc *goquery.Document) ([]candidate, bool) {
			return p.collect(doc, func(u *url.URL, _ *goquery.Selection) bool {
				return racePathPattern.MatchString(u.Path)
			})
		}},
		{Name: "link-text", Apply: func(doc *goquery.Document) ([]candidate, bool) {
			return p.collect(doc, func(_ *url.URL, s *goquery.Selection) bool {
				return raceTextPattern.MatchString(s.Text())
			})
		}},
	}
}

func (p *parser) collect(doc *goquery.Document, keep func(*url.URL, *goquery.Selection) bool) ([]candidate, bool) {
	seen := map[string]bool{}
	var out []candidate
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, err := urlutil.ToAbsoluteURL(p.base, href)
		if err != nil || seen[abs] || !urlutil.SameHost(p.base, abs) {
			return
		}
		u, err := url.Parse(abs)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !keep(u, s) {
			return
		}
		seen[abs] = true
		out = append(out, candidate{url: abs, link: s})
	})
	return out, len(out) > 0
}

// parse returns one record per detail link, with whatever date, venue and
// meeting number the URL and surrounding markup reveal.
func (p *parser) parse(doc *goquery.Document) ([]*domain.Record, string) {
	links, strategy, ok := extract.First(doc, p.linkStrategies())
	if !ok {
		return nil, ""
	}
	records := make([]*domain.Record, 0, len(links))
	for _, c := range links {
		records = append(records, p.record(c))
	}
	return records, strategy
}

func (p *parser) record(c candidate) *domain.Record {
	rec := domain.NewRecord(p.period, c.url, domain.SourceHTML)
	container := c.link.Closest("li, tr, article, .meeting, .race, .card")
	if container.Length() == 0 {
		container = c.link.Parent()
	}

	u, _ := url.Parse(c.url)
	var slugVenue string
	if m := datedPathPattern.FindStringSubmatch(u.Path); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		rec.SetDate(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC))
		slugVenue = p.venueFromSlug(m[4])
		if m[5] != "" {
			rec.MeetingNumber, _ = strconv.Atoi(m[5])
		}
	}

	if rec.Date == nil {
		p.dateFromMarkup(rec, container)
	}
	if !rec.SetVenue(venueFromMarkup(container)) {
		rec.SetVenue(slugVenue)
	}
	if rec.MeetingNumber == 0 {
		rec.MeetingNumber = meetingFromMarkup(c.link, container)
	}
	return rec
}

func (p *parser) dateFromMarkup(rec *domain.Record, container *goquery.Selection) {
	var attrs []string
	if v, ok := container.Attr("data-date"); ok {
		attrs = append(attrs, v)
	}
	container.Find("time[datetime], [data-date]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("datetime"); ok {
			attrs = append(attrs, v)
		}
		if v, ok := s.Attr("data-date"); ok {
			attrs = append(attrs, v)
		}
	})
	for _, a := range attrs {
		if t, ok := extract.ParseDate(a); ok && rec.SetDate(t) {
			return
		}
	}
	for _, t := range extract.FindDates(container.Text()) {
		if rec.SetDate(t) {
			return
		}
	}
}

func venueFromMarkup(container *goquery.Selection) string {
	if v, ok := container.Attr("data-venue"); ok {
		return v
	}
	if v, ok := container.Find("[data-venue]").First().Attr("data-venue"); ok {
		return v
	}
	return container.Find(".venue, .meeting-venue").First().Text()
}

func meetingFromMarkup(link, container *goquery.Selection) int {
	for _, s := range []*goquery.Selection{container, container.Find("[data-meeting]").First()} {
		if v, ok := s.Attr("data-meeting"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				return n
			}
		}
	}
	for _, text := range []string{link.Text(), container.Text()} {
		if m := meetingPattern.FindStringSubmatch(text); m != nil {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return n
			}
		}
	}
	return 0
}

// venueFromSlug renders "tokyo" as "Tokyo" and "gb-ascot" as "GB - Ascot"
// when GB is a known country prefix.
func (p *parser) venueFromSlug(slug string) string {
	parts := strings.Split(slug, "-")
	prefix := ""
	if len(parts) > 1 {
		for _, c := range p.countries.Prefixes {
			if strings.EqualFold(c, parts[0]) {
				prefix = strings.ToUpper(parts[0]) + " - "
				parts = parts[1:]
				break
			}
		}
	}
	for i, w := range parts {
		if w == "" {
			continue
		}
		parts[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return prefix + strings.Join(parts, " ")
}
