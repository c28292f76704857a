package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/domain"
	"github.com/user/race-archive/internal/monitoring"
	"go.uber.org/zap"
)

// Collector runs one collection request.
type Collector interface {
	Collect(ctx context.Context, req domain.CollectRequest) (*domain.CollectResult, error)
}

// RunLister lists stored run summaries.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
}

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	collector  Collector
	runs       RunLister
	checks     map[string]Pinger
	gatherer   prometheus.Gatherer
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewServer builds the server. runs may be nil when no run store is
// configured; checks names the dependencies /api/health probes.
func NewServer(cfg *config.Config, c Collector, runs RunLister, checks map[string]Pinger, g prometheus.Gatherer, m *monitoring.Metrics, l *zap.Logger) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	s := &Server{
		config:    cfg,
		collector: c,
		runs:      runs,
		checks:    checks,
		gatherer:  g,
		metrics:   m,
		logger:    l,
	}
	s.router = s.setupRouter()
	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.requestTimeout() + 5*time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestTimeout leaves room for a full collection run.
func (s *Server) requestTimeout() time.Duration {
	return s.config.BudgetOverall + s.config.ListingTimeout + 5*time.Second
}
