package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/user/race-archive/internal/cache"
	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/crawler"
	"github.com/user/race-archive/internal/fetch"
	"github.com/user/race-archive/internal/logging"
	"github.com/user/race-archive/internal/monitoring"
	"github.com/user/race-archive/internal/proxy"
	"github.com/user/race-archive/internal/storage"
	"go.uber.org/zap"
)

var flagEnvFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "racearchive",
		Short: "Collect race meetings from the public results archive",
		Long: `racearchive crawls the month listings of the race archive, fills in
missing dates, venues and result reports, and serves the records over HTTP.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Optional env file with configuration overrides")

	cmd.AddCommand(newServeCmd(), newCollectCmd())
	return cmd
}

// app holds everything a command needs, built once from configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	crawler  *crawler.Crawler
	redis    *storage.RedisStore
	postgres *storage.PostgresStore
	browser  *fetch.BrowserFetcher
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = monitoring.NewMetrics(a.registry)

	proxyManager := proxy.NewManager(cfg.ProxyURLs, cfg.UserAgent)
	var fetcher fetch.Fetcher = fetch.NewHTTPFetcher(cfg, proxyManager, a.metrics, logger)
	if cfg.FetchMode == "browser" {
		a.browser = fetch.NewBrowserFetcher(cfg, proxyManager, fetcher, a.metrics, logger)
		fetcher = a.browser
	}

	cacheOpts := []cache.Option{cache.WithMetrics(a.metrics)}
	if cfg.RedisAddr != "" {
		a.redis = storage.NewRedisStore(cfg.RedisAddr)
		if err := a.redis.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, result cache stays in memory", zap.Error(err))
		}
		cacheOpts = append(cacheOpts, cache.WithBackend(a.redis))
	}
	resultCache := cache.New(cfg.ResultCacheTTL, logger, cacheOpts...)

	var crawlerOpts []crawler.Option
	if cfg.PostgresURL != "" {
		a.postgres, err = storage.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := a.postgres.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating postgres: %w", err)
		}
		crawlerOpts = append(crawlerOpts, crawler.WithRunStore(a.postgres))
	}

	a.crawler, err = crawler.NewCrawler(cfg, fetcher, resultCache, a.metrics, logger, crawlerOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building crawler: %w", err)
	}
	return a, nil
}

func (a *app) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
