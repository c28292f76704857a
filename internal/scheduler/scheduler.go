// Package scheduler runs per-record enrichment work in bounded batches under
// the request's time budget.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/user/race-archive/internal/budget"
	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/domain"
	"github.com/user/race-archive/internal/monitoring"
	"go.uber.org/zap"
)

// Work enriches one record. Errors and panics are contained to that record.
type Work func(ctx context.Context, rec *domain.Record) error

// Report describes what a Run got through.
type Report struct {
	Batches    int
	Processed  int
	Failed     int
	EndedEarly bool
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Scheduler orders records most recent first and runs them in batches.
type Scheduler struct {
	maxBatch       int
	largeThreshold int
	threshold      time.Duration
	step           time.Duration
	maxThreshold   time.Duration
	crawlDelay     time.Duration
	sleep          Sleeper
	metrics        *monitoring.Metrics
	logger         *zap.Logger
}

type Option func(*Scheduler)

// WithSleeper replaces the inter-batch wait, for tests.
func WithSleeper(s Sleeper) Option {
	return func(sc *Scheduler) { sc.sleep = s }
}

func New(cfg *config.Config, crawlDelay time.Duration, m *monitoring.Metrics, l *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		maxBatch:       max(cfg.MaxBatchSize, 1),
		largeThreshold: cfg.LargePeriodThreshold,
		threshold:      cfg.StopThreshold,
		step:           cfg.StopThresholdStep,
		maxThreshold:   cfg.StopThresholdMax,
		crawlDelay:     crawlDelay,
		sleep:          sleepContext,
		metrics:        m,
		logger:         l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BatchSize derives the batch size from the crawl delay and the record count.
// A slow crawl delay halves it and unusually large sets shrink it by a third.
func (s *Scheduler) BatchSize(records int) int {
	size := s.maxBatch
	if s.crawlDelay >= 2*time.Second {
		size /= 2
	}
	if s.largeThreshold > 0 && records > s.largeThreshold {
		size = size * 2 / 3
	}
	if records > 0 && size > records {
		size = records
	}
	return max(size, 1)
}

// Threshold is the stop threshold before batch i. It grows by step per
// batch up to the maximum, so later batches need more headroom.
func (s *Scheduler) Threshold(batch int) time.Duration {
	t := s.threshold + time.Duration(batch)*s.step
	if s.maxThreshold > 0 && t > s.maxThreshold {
		t = s.maxThreshold
	}
	return t
}

// SortRecent orders records most recent first, stable for equal dates.
func SortRecent(records []*domain.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return dateKey(records[i]) > dateKey(records[j])
	})
}

func dateKey(r *domain.Record) string {
	if r.Date == nil {
		return ""
	}
	return r.Date.ISO
}

// Run processes records in place. The budget is checked only between
// batches; a batch that has started always runs to completion.
func (s *Scheduler) Run(ctx context.Context, records []*domain.Record, clock *budget.Clock, work Work) Report {
	var rep Report
	if len(records) == 0 {
		return rep
	}
	SortRecent(records)
	size := s.BatchSize(len(records))

	for start := 0; start < len(records); start += size {
		if ctx.Err() != nil || clock.ShouldStop(budget.Enrichment, s.Threshold(rep.Batches)) {
			rep.EndedEarly = true
			s.metrics.IncEarlyStop(budget.Enrichment)
			s.logger.Info("enrichment stopped by budget",
				zap.Int("batches", rep.Batches),
				zap.Int("processed", rep.Processed),
				zap.Int("remaining", len(records)-start),
			)
			return rep
		}

		end := min(start+size, len(records))
		rep.Failed += s.runBatch(ctx, records[start:end], work)
		rep.Batches++
		rep.Processed += end - start
		s.metrics.IncBatch()

		if end < len(records) {
			delay := time.Duration(float64(s.crawlDelay) * clock.Fraction(budget.Enrichment))
			if err := s.sleep(ctx, delay); err != nil {
				rep.EndedEarly = true
				return rep
			}
		}
	}
	return rep
}

// runBatch runs every member concurrently and waits for all of them. A
// member that errors or panics is logged and counted; the rest carry on.
func (s *Scheduler) runBatch(ctx context.Context, batch []*domain.Record, work Work) int {
	errs := make([]error, len(batch))
	var wg conc.WaitGroup
	for i, rec := range batch {
		wg.Go(func() {
			var pc panics.Catcher
			pc.Try(func() { errs[i] = work(ctx, rec) })
			if r := pc.Recovered(); r != nil {
				s.logger.Warn("enrichment worker panicked", zap.String("url", rec.URL), zap.String("panic", fmt.Sprint(r.Value)))
				errs[i] = r.AsError()
			}
		})
	}
	wg.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			s.logger.Debug("enrichment failed", zap.String("url", batch[i].URL), zap.Error(err))
		}
	}
	return failed
}
