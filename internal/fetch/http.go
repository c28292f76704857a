package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/monitoring"
	"github.com/user/race-archive/internal/proxy"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

// HTTPFetcher fetches pages over plain HTTP.
type HTTPFetcher struct {
	client       *http.Client
	proxyManager *proxy.Manager
	timeouts     Timeouts
	metrics      *monitoring.Metrics
	logger       *zap.Logger
}

// TimeoutsFromConfig builds the per-kind deadlines.
func TimeoutsFromConfig(cfg *config.Config) Timeouts {
	return Timeouts{
		KindListing: cfg.ListingTimeout,
		KindJSON:    cfg.ListingTimeout,
		KindDetail:  cfg.DetailTimeout,
		KindResult:  cfg.DetailTimeout,
		KindRobots:  cfg.RobotsTimeout,
	}
}

func NewHTTPFetcher(cfg *config.Config, pm *proxy.Manager, m *monitoring.Metrics, l *zap.Logger) *HTTPFetcher {
	if pm == nil {
		pm = proxy.NewManager(cfg.ProxyURLs, cfg.UserAgent)
	}
	tr := &http.Transport{
		Proxy:               pm.ProxyFunc(),
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &HTTPFetcher{
		client:       &http.Client{Transport: tr},
		proxyManager: pm,
		timeouts:     TimeoutsFromConfig(cfg),
		metrics:      m,
		logger:       l,
	}
}

// Get performs a single GET bounded by the timeout for kind. It never retries.
func (f *HTTPFetcher) Get(ctx context.Context, kind Kind, rawURL string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.For(kind))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.proxyManager.UserAgent())
	req.Header.Set("Accept", acceptFor(kind))
	req.Header.Set("Accept-Language", "en-GB,en;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.IncFetch(string(kind), "error")
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		f.metrics.IncFetch(string(kind), "error")
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	page := &Page{URL: rawURL, StatusCode: resp.StatusCode, Body: body}
	f.logger.Debug("fetched",
		zap.String("kind", string(kind)),
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.metrics.IncFetch(string(kind), "status")
		return page, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	f.metrics.IncFetch(string(kind), "ok")
	return page, nil
}

func acceptFor(kind Kind) string {
	switch kind {
	case KindJSON:
		return "application/json"
	case KindRobots:
		return "text/plain"
	default:
		return "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
	}
}
