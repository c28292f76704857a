// Package crawler is the caller-facing entry point: one Collect call runs the
// whole pipeline for a set of archive months inside the configured budget.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/user/race-archive/internal/budget"
	"github.com/user/race-archive/internal/cache"
	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/dedupe"
	"github.com/user/race-archive/internal/domain"
	"github.com/user/race-archive/internal/enrich"
	"github.com/user/race-archive/internal/extract"
	"github.com/user/race-archive/internal/fetch"
	"github.com/user/race-archive/internal/listing"
	"github.com/user/race-archive/internal/monitoring"
	"github.com/user/race-archive/internal/robots"
	"github.com/user/race-archive/internal/scheduler"
	"github.com/user/race-archive/pkg/urlutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNoPeriods is returned for a request without any period.
	ErrNoPeriods = errors.New("at least one period is required")
	// ErrInvalidPeriod wraps a period outside the calendar.
	ErrInvalidPeriod = errors.New("invalid period")
)

// RunStore persists run summaries.
type RunStore interface {
	SaveRun(ctx context.Context, run *domain.RunSummary) error
}

// Crawler wires the pipeline components together.
type Crawler struct {
	config    *config.Config
	base      *url.URL
	fetcher   fetch.Fetcher
	listing   *listing.Fetcher
	json      *listing.JSONSource
	enricher  *enrich.DetailEnricher
	results   *extract.ResultExtractor
	runs      RunStore
	countries domain.CountryRules
	now       func() time.Time

	listingOpts   []listing.Option
	schedulerOpts []scheduler.Option

	metrics *monitoring.Metrics
	logger  *zap.Logger
}

type Option func(*Crawler)

// WithClock replaces time.Now for the budget clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

// WithRunStore records a summary of every run.
func WithRunStore(s RunStore) Option {
	return func(c *Crawler) { c.runs = s }
}

func WithListingOptions(opts ...listing.Option) Option {
	return func(c *Crawler) { c.listingOpts = append(c.listingOpts, opts...) }
}

func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(c *Crawler) { c.schedulerOpts = append(c.schedulerOpts, opts...) }
}

func NewCrawler(cfg *config.Config, f fetch.Fetcher, rc *cache.ResultCache, m *monitoring.Metrics, l *zap.Logger, opts ...Option) (*Crawler, error) {
	base, err := url.Parse(cfg.SiteBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing site base URL: %w", err)
	}
	c := &Crawler{
		config:    cfg,
		base:      base,
		fetcher:   f,
		countries: domain.CountryRules{Home: cfg.HomeCountry, Prefixes: cfg.CountryPrefixes},
		now:       time.Now,
		metrics:   m,
		logger:    l,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.enricher = enrich.NewDetailEnricher(f, cfg.UserAgent, m, l)
	c.results = extract.NewResultExtractor(f, rc, cfg.Substitutions(), cfg.UserAgent, m, l)
	if c.listing, err = listing.New(cfg, f, c.enricher, m, l, c.listingOpts...); err != nil {
		return nil, err
	}
	if c.json, err = listing.NewJSONSource(cfg, f, l); err != nil {
		return nil, err
	}
	return c, nil
}

// Collect returns the deduplicated records of the requested periods. Only an
// invalid request is an error: failed periods, failed lookups and a budget
// that runs out all still produce a result.
func (c *Crawler) Collect(ctx context.Context, req domain.CollectRequest) (*domain.CollectResult, error) {
	periods, err := normalizePeriods(req.Periods)
	if err != nil {
		return nil, err
	}

	startedAt := c.now()
	clock := budget.New(c.now, map[string]time.Duration{
		budget.Listing:    c.config.BudgetListing,
		budget.Enrichment: c.config.BudgetEnrichment,
		budget.Overall:    c.config.BudgetOverall,
	})
	// Safety net only; the budget clock stops work at boundaries well before this.
	ctx, cancel := context.WithTimeout(ctx, c.config.BudgetOverall+c.config.ListingTimeout)
	defer cancel()

	rules := robots.Load(ctx, c.fetcher, c.base, c.logger)
	crawlDelay := rules.CrawlDelay(c.config.UserAgent)
	pacer := rate.NewLimiter(rate.Every(crawlDelay), 1)
	counters := enrich.NewCounters(c.config.DetailLookupCap)

	res := &domain.CollectResult{}
	var records []*domain.Record
	for _, p := range periods {
		if clock.ShouldStop(budget.Listing, c.config.StopThreshold) {
			res.EndedEarly = true
			c.metrics.IncEarlyStop(budget.Listing)
			c.logger.Info("listing stopped by budget", zap.String("next_period", p.String()))
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			res.EndedEarly = true
			break
		}

		recs, err := c.listing.FetchPeriod(ctx, p, rules, clock, counters, pacer)
		if err != nil {
			c.metrics.IncPeriodFailure()
			c.logger.Warn("period failed", zap.String("period", p.String()), zap.Error(err))
			res.FailedPeriods = append(res.FailedPeriods, p.String())
		}
		records = append(records, recs...)

		if c.json != nil {
			jrecs, err := c.json.FetchPeriod(ctx, p, rules)
			if err != nil {
				c.logger.Warn("json source failed", zap.String("period", p.String()), zap.Error(err))
			}
			records = append(records, jrecs...)
		}
	}

	records = dedupe.Dedupe(records)
	records = applyFilter(records, req.Filter)
	scheduler.SortRecent(records)

	if req.WithResults && len(records) > 0 {
		if c.enrichRecords(ctx, records, rules, clock, crawlDelay, counters) {
			res.EndedEarly = true
		}
		for _, r := range records {
			r.Finalize(c.countries)
		}
		records = dedupe.Dedupe(records)
		records = applyFilter(records, req.Filter)
	}

	res.Records = records
	res.Summary = c.summarize(startedAt, periods, req.WithResults, res)
	c.record(ctx, res)
	return res, nil
}

// enrichRecords runs the scheduler over the most recent records the remaining
// budget can cover and reports whether it had to stop early.
func (c *Crawler) enrichRecords(ctx context.Context, records []*domain.Record, rules *robots.RuleSet, clock *budget.Clock, crawlDelay time.Duration, counters *enrich.Counters) bool {
	coverage := int(clock.Remaining(budget.Enrichment).Seconds() * c.config.EnrichRate)
	if coverage <= 0 {
		c.metrics.IncEarlyStop(budget.Enrichment)
		return true
	}
	scheduled := records
	capped := false
	if coverage < len(records) {
		scheduled = records[:coverage:coverage]
		capped = true
	}

	sched := scheduler.New(c.config, crawlDelay, c.metrics, c.logger, c.schedulerOpts...)
	rep := sched.Run(ctx, scheduled, clock, func(ctx context.Context, rec *domain.Record) error {
		c.enricher.FillMissing(ctx, rec, rules, counters)
		if rec.NeedsResult() {
			if report, ok := c.results.Extract(ctx, rec.URL, rules); ok {
				rec.ResultReport = report
			}
		}
		return nil
	})
	c.logger.Info("enrichment finished",
		zap.Int("records", len(records)),
		zap.Int("scheduled", len(scheduled)),
		zap.Int("batches", rep.Batches),
		zap.Int("processed", rep.Processed),
		zap.Int("lookups", counters.Used()),
		zap.Bool("ended_early", rep.EndedEarly),
	)
	return rep.EndedEarly || capped
}

func (c *Crawler) summarize(startedAt time.Time, periods []domain.Period, withResults bool, res *domain.CollectResult) domain.RunSummary {
	names := make([]string, len(periods))
	for i, p := range periods {
		names[i] = p.String()
	}
	s := domain.RunSummary{
		ID:            urlutil.HashKey(startedAt.Format(time.RFC3339Nano), strings.Join(names, ","))[:16],
		StartedAt:     startedAt,
		Duration:      c.now().Sub(startedAt),
		Periods:       names,
		WithResults:   withResults,
		Records:       len(res.Records),
		FailedPeriods: res.FailedPeriods,
		EndedEarly:    res.EndedEarly,
	}
	for _, r := range res.Records {
		if r.ResultReport != "" {
			s.WithResult++
		}
		if r.DateFallback {
			s.DateFallbacks++
		}
		if r.Venue == domain.UnknownVenue {
			s.UnknownVenues++
		}
	}
	return s
}

func (c *Crawler) record(ctx context.Context, res *domain.CollectResult) {
	c.metrics.ObserveCollect(res.Summary.Duration)
	bySource := map[domain.Source]int{}
	for _, r := range res.Records {
		bySource[r.Source]++
	}
	for src, n := range bySource {
		c.metrics.AddRecords(string(src), n)
	}

	if c.runs != nil {
		// The request context may already be spent; the audit write gets its own.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := c.runs.SaveRun(saveCtx, &res.Summary); err != nil {
			c.logger.Error("failed to save run summary", zap.String("run", res.Summary.ID), zap.Error(err))
		}
	}
	c.logger.Info("collect finished",
		zap.String("run", res.Summary.ID),
		zap.Strings("periods", res.Summary.Periods),
		zap.Int("records", res.Summary.Records),
		zap.Int("with_result", res.Summary.WithResult),
		zap.Strings("failed_periods", res.FailedPeriods),
		zap.Bool("ended_early", res.EndedEarly),
		zap.Duration("took", res.Summary.Duration),
	)
}

func normalizePeriods(in []domain.Period) ([]domain.Period, error) {
	seen := map[domain.Period]bool{}
	var out []domain.Period
	for _, p := range in {
		if !p.Valid() {
			return nil, fmt.Errorf("%w %d-%02d", ErrInvalidPeriod, p.Year, int(p.Month))
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPeriods
	}
	return out, nil
}

func applyFilter(records []*domain.Record, f *domain.Filter) []*domain.Record {
	if f.Empty() {
		return records
	}
	out := records[:0:0]
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
