package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/domain"
	"github.com/user/race-archive/internal/extract"
	"github.com/user/race-archive/internal/fetch"
	"github.com/user/race-archive/internal/robots"
	"github.com/user/race-archive/pkg/urlutil"
	"go.uber.org/zap"
)

// jsonMeeting is one entry of the structured endpoint.
type jsonMeeting struct {
	Date    string          `json:"date"`
	Venue   string          `json:"venue"`
	Meeting json.Number     `json:"meeting"`
	URL     string          `json:"url"`
	Result  json.RawMessage `json:"result"`
}

// JSONSource reads the structured endpoint that some archive months are also
// published on.
type JSONSource struct {
	fetcher   fetch.Fetcher
	endpoint  *url.URL
	site      *url.URL
	agent     string
	countries domain.CountryRules
	logger    *zap.Logger
}

// NewJSONSource returns nil when no endpoint is configured.
func NewJSONSource(cfg *config.Config, f fetch.Fetcher, l *zap.Logger) (*JSONSource, error) {
	if cfg.JSONEndpoint == "" {
		return nil, nil
	}
	endpoint, err := url.Parse(cfg.JSONEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing JSON endpoint: %w", err)
	}
	site, err := url.Parse(cfg.SiteBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing site base URL: %w", err)
	}
	return &JSONSource{
		fetcher:   f,
		endpoint:  endpoint,
		site:      site,
		agent:     cfg.UserAgent,
		countries: domain.CountryRules{Home: cfg.HomeCountry, Prefixes: cfg.CountryPrefixes},
		logger:    l,
	}, nil
}

// PeriodURL is <endpoint>?year=Y&month=M.
func (s *JSONSource) PeriodURL(p domain.Period) string {
	u := *s.endpoint
	q := u.Query()
	q.Set("year", strconv.Itoa(p.Year))
	q.Set("month", strconv.Itoa(int(p.Month)))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPeriod returns the finalized JSON records of one month. Entries
// without a detail URL on the archive's host are skipped.
func (s *JSONSource) FetchPeriod(ctx context.Context, period domain.Period, rules *robots.RuleSet) ([]*domain.Record, error) {
	pageURL := s.PeriodURL(period)
	if urlutil.SameHost(s.site, pageURL) && !rules.IsAllowed(pageURL, s.agent) {
		return nil, fmt.Errorf("json %s: %w", pageURL, fetch.ErrDisallowed)
	}
	page, err := s.fetcher.Get(ctx, fetch.KindJSON, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching json listing: %w", err)
	}
	meetings, err := decodeMeetings(page.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding json listing %s: %w", pageURL, err)
	}

	records := make([]*domain.Record, 0, len(meetings))
	for _, m := range meetings {
		abs, err := urlutil.ToAbsoluteURL(s.site, m.URL)
		if m.URL == "" || err != nil || !urlutil.SameHost(s.site, abs) {
			s.logger.Debug("skipping json entry without archive url", zap.String("url", m.URL))
			continue
		}
		rec := domain.NewRecord(period, abs, domain.SourceJSON)
		if t, ok := extract.ParseDate(m.Date); ok {
			rec.SetDate(t)
		}
		rec.SetVenue(m.Venue)
		if n, err := strconv.Atoi(m.Meeting.String()); err == nil && n > 0 {
			rec.MeetingNumber = n
		}
		if report, ok := extract.NormalizeReport(string(m.Result)); ok {
			rec.ResultReport = report
		}
		rec.Finalize(s.countries)
		records = append(records, rec)
	}
	return records, nil
}

// decodeMeetings accepts a bare array or an object wrapping it under
// "meetings", "records" or "data".
func decodeMeetings(body []byte) ([]jsonMeeting, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var list []jsonMeeting
		err := json.Unmarshal(body, &list)
		return list, err
	}
	var wrapped struct {
		Meetings []jsonMeeting `json:"meetings"`
		Records  []jsonMeeting `json:"records"`
		Data     []jsonMeeting `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	switch {
	case len(wrapped.Meetings) > 0:
		return wrapped.Meetings, nil
	case len(wrapped.Records) > 0:
		return wrapped.Records, nil
	}
	return wrapped.Data, nil
}
