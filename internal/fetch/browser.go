package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/monitoring"
	"github.com/user/race-archive/internal/proxy"
	"go.uber.org/zap"
)

// BrowserFetcher renders listing pages in headless Chrome for archives that
// build their month index client-side. Every other kind goes to the fallback.
type BrowserFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	fallback Fetcher
	timeout  time.Duration
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

func NewBrowserFetcher(cfg *config.Config, pm *proxy.Manager, fallback Fetcher, m *monitoring.Metrics, l *zap.Logger) *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if p := pm.Next(); p != nil {
		opts = append(opts, chromedp.ProxyServer(p.String()))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &BrowserFetcher{
		allocCtx: allocCtx,
		cancel:   cancel,
		fallback: fallback,
		timeout:  cfg.ListingTimeout,
		metrics:  m,
		logger:   l,
	}
}

func (b *BrowserFetcher) Get(ctx context.Context, kind Kind, rawURL string) (*Page, error) {
	if kind != KindListing {
		return b.fallback.Get(ctx, kind, rawURL)
	}

	taskCtx, taskCancel := chromedp.NewContext(b.allocCtx)
	defer taskCancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, b.timeout)
	defer timeoutCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		b.metrics.IncFetch(string(kind), "error")
		return nil, fmt.Errorf("rendering %s: %w", rawURL, err)
	}
	b.metrics.IncFetch(string(kind), "ok")
	b.logger.Debug("rendered", zap.String("url", rawURL), zap.Int("bytes", len(html)))
	return &Page{URL: rawURL, StatusCode: http.StatusOK, Body: []byte(html)}, nil
}

// Close shuts down the browser allocator.
func (b *BrowserFetcher) Close() {
	b.cancel()
}
