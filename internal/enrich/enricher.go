// Package enrich fills fields a listing page left empty by visiting the
// record's detail page.
package enrich

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/race-archive/internal/domain"
	"github.com/user/race-archive/internal/extract"
	"github.com/user/race-archive/internal/fetch"
	"github.com/user/race-archive/internal/monitoring"
	"github.com/user/race-archive/internal/robots"
	"go.uber.org/zap"
)

// DetailEnricher performs one robots-checked, short-timeout GET per call and
// never reports an error: a field it cannot find simply stays unset.
type DetailEnricher struct {
	fetcher fetch.Fetcher
	agent   string
	venues  []extract.Strategy[string]
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func NewDetailEnricher(f fetch.Fetcher, agent string, m *monitoring.Metrics, l *zap.Logger) *DetailEnricher {
	return &DetailEnricher{
		fetcher: f,
		agent:   agent,
		venues:  extract.VenueStrategies(),
		metrics: m,
		logger:  l,
	}
}

// FillDate sets rec.Date from the detail page if it is missing or a fallback.
func (e *DetailEnricher) FillDate(ctx context.Context, rec *domain.Record, rules *robots.RuleSet, budget Budget) bool {
	if !rec.NeedsDate() {
		return false
	}
	doc, ok := e.load(ctx, rec.URL, rules, budget)
	if !ok {
		return false
	}
	return e.applyDate(doc, rec)
}

// FillVenue sets rec.Venue from the detail page if it is missing or Unknown.
func (e *DetailEnricher) FillVenue(ctx context.Context, rec *domain.Record, rules *robots.RuleSet, budget Budget) bool {
	if !rec.NeedsVenue() {
		return false
	}
	doc, ok := e.load(ctx, rec.URL, rules, budget)
	if !ok {
		return false
	}
	return e.applyVenue(doc, rec)
}

// FillMissing fills date and venue from a single fetch.
func (e *DetailEnricher) FillMissing(ctx context.Context, rec *domain.Record, rules *robots.RuleSet, budget Budget) (date, venue bool) {
	if !rec.NeedsDate() && !rec.NeedsVenue() {
		return false, false
	}
	doc, ok := e.load(ctx, rec.URL, rules, budget)
	if !ok {
		return false, false
	}
	if rec.NeedsDate() {
		date = e.applyDate(doc, rec)
	}
	if rec.NeedsVenue() {
		venue = e.applyVenue(doc, rec)
	}
	return date, venue
}

func (e *DetailEnricher) applyDate(doc *goquery.Document, rec *domain.Record) bool {
	t, strategy, ok := extract.First(doc, extract.DateStrategies(func(t time.Time) bool {
		return rec.Period.Contains(t)
	}))
	if !ok || !rec.SetDate(t) {
		return false
	}
	e.logger.Debug("date filled", zap.String("url", rec.URL), zap.String("strategy", strategy))
	return true
}

func (e *DetailEnricher) applyVenue(doc *goquery.Document, rec *domain.Record) bool {
	v, strategy, ok := extract.First(doc, e.venues)
	if !ok || !rec.SetVenue(v) {
		return false
	}
	e.logger.Debug("venue filled", zap.String("url", rec.URL), zap.String("strategy", strategy))
	return true
}

func (e *DetailEnricher) load(ctx context.Context, rawURL string, rules *robots.RuleSet, budget Budget) (*goquery.Document, bool) {
	if ctx.Err() != nil || rawURL == "" {
		return nil, false
	}
	if !rules.IsAllowed(rawURL, e.agent) {
		e.metrics.IncFetch(string(fetch.KindDetail), "disallowed")
		return nil, false
	}
	if budget != nil && !budget.TryAcquire() {
		return nil, false
	}
	e.metrics.IncEnrichLookup()

	page, err := e.fetcher.Get(ctx, fetch.KindDetail, rawURL)
	if err != nil {
		e.logger.Debug("detail lookup failed", zap.String("url", rawURL), zap.Error(err))
		return nil, false
	}
	doc, err := page.Document()
	if err != nil {
		return nil, false
	}
	return doc, true
}
