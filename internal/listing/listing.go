// Package listing reads the archive's month index pages.
package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/race-archive/internal/budget"
	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/domain"
	"github.com/user/race-archive/internal/enrich"
	"github.com/user/race-archive/internal/fetch"
	"github.com/user/race-archive/internal/monitoring"
	"github.com/user/race-archive/internal/robots"
	"go.uber.org/zap"
)

// ErrMaintenance means the listing was still in maintenance after the one retry.
var ErrMaintenance = errors.New("archive under maintenance")

// Pacer spaces requests to the archive host.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetcher fetches and parses one month of the archive.
type Fetcher struct {
	fetcher       fetch.Fetcher
	enricher      *enrich.DetailEnricher
	base          *url.URL
	archiveRoot   string
	agent         string
	signatures    []string
	backoff       time.Duration
	lookupCap     int
	stopThreshold time.Duration
	countries     domain.CountryRules
	sleep         Sleeper
	metrics       *monitoring.Metrics
	logger        *zap.Logger
}

type Option func(*Fetcher)

// WithSleeper replaces the backoff wait, for tests.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) { f.sleep = s }
}

func New(cfg *config.Config, f fetch.Fetcher, enricher *enrich.DetailEnricher, m *monitoring.Metrics, l *zap.Logger, opts ...Option) (*Fetcher, error) {
	base, err := url.Parse(cfg.SiteBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing site base URL: %w", err)
	}
	lf := &Fetcher{
		fetcher:       f,
		enricher:      enricher,
		base:          base,
		archiveRoot:   strings.Trim(cfg.ArchiveRoot, "/"),
		agent:         cfg.UserAgent,
		signatures:    cfg.MaintenanceSignatures,
		backoff:       cfg.MaintenanceBackoff,
		lookupCap:     cfg.ListingLookupCap,
		stopThreshold: cfg.StopThreshold,
		countries:     domain.CountryRules{Home: cfg.HomeCountry, Prefixes: cfg.CountryPrefixes},
		sleep:         sleepContext,
		metrics:       m,
		logger:        l,
	}
	for _, opt := range opts {
		opt(lf)
	}
	return lf, nil
}

// PeriodURL is <site>/<archive-root>/<year>/<month-slug>.
func (f *Fetcher) PeriodURL(p domain.Period) string {
	u := *f.base
	parts := []string{strings.TrimRight(u.Path, "/")}
	if f.archiveRoot != "" {
		parts = append(parts, f.archiveRoot)
	}
	parts = append(parts, strconv.Itoa(p.Year), p.Slug())
	u.Path = strings.Join(parts, "/")
	u.RawQuery = ""
	return u.String()
}

// FetchPeriod returns the finalized records listed for one month. An error
// means the whole period failed and yields no records; the caller carries on
// with the other periods. pacer, when set, is waited on before every gap lookup.
func (f *Fetcher) FetchPeriod(ctx context.Context, period domain.Period, rules *robots.RuleSet, clock *budget.Clock, counters enrich.Budget, pacer Pacer) ([]*domain.Record, error) {
	pageURL := f.PeriodURL(period)
	if !rules.IsAllowed(pageURL, f.agent) {
		f.metrics.IncFetch(string(fetch.KindListing), "disallowed")
		return nil, fmt.Errorf("listing %s: %w", pageURL, fetch.ErrDisallowed)
	}

	page, err := f.fetchListing(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		return nil, fmt.Errorf("parsing listing %s: %w", pageURL, err)
	}

	p := &parser{base: f.base, period: period, countries: f.countries}
	records, strategy := p.parse(doc)
	f.logger.Debug("listing parsed",
		zap.String("period", period.String()),
		zap.String("strategy", strategy),
		zap.Int("records", len(records)),
	)

	f.resolveGaps(ctx, period, records, rules, clock, counters, pacer)
	for _, rec := range records {
		rec.Finalize(f.countries)
	}
	return records, nil
}

// fetchListing GETs the page. A maintenance signature or a 503 earns one
// fixed backoff and exactly one retry.
func (f *Fetcher) fetchListing(ctx context.Context, pageURL string) (*fetch.Page, error) {
	for attempt := 0; ; attempt++ {
		page, err := f.fetcher.Get(ctx, fetch.KindListing, pageURL)
		if !f.underMaintenance(page, err) {
			if err != nil {
				return nil, fmt.Errorf("fetching listing: %w", err)
			}
			return page, nil
		}
		if attempt > 0 {
			return nil, fmt.Errorf("listing %s: %w", pageURL, ErrMaintenance)
		}
		f.logger.Info("listing under maintenance, backing off",
			zap.String("url", pageURL),
			zap.Duration("backoff", f.backoff),
		)
		if err := f.sleep(ctx, f.backoff); err != nil {
			return nil, fmt.Errorf("waiting out maintenance: %w", err)
		}
	}
}

func (f *Fetcher) underMaintenance(page *fetch.Page, err error) bool {
	if fetch.IsStatus(err, http.StatusServiceUnavailable) {
		return true
	}
	return page != nil && page.ContainsFold(f.signatures...)
}

// resolveGaps spends at most lookupCap detail lookups on records whose date
// or venue the listing did not give.
func (f *Fetcher) resolveGaps(ctx context.Context, period domain.Period, records []*domain.Record, rules *robots.RuleSet, clock *budget.Clock, counters enrich.Budget, pacer Pacer) {
	if f.enricher == nil || f.lookupCap <= 0 {
		return
	}
	lookups := enrich.NewCounters(f.lookupCap)
	var b enrich.Budget = lookups
	if counters != nil {
		b = enrich.All(lookups, counters)
	}
	for _, rec := range records {
		if !rec.NeedsDate() && !rec.NeedsVenue() {
			continue
		}
		if lookups.Remaining() == 0 || ctx.Err() != nil {
			return
		}
		if clock != nil && clock.ShouldStop(budget.Listing, f.stopThreshold) {
			f.metrics.IncEarlyStop(budget.Listing)
			f.logger.Info("listing gap lookups stopped by budget", zap.String("period", period.String()))
			return
		}
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				return
			}
		}
		f.enricher.FillMissing(ctx, rec, rules, b)
	}
}
