package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/crawler"
	"github.com/user/race-archive/internal/domain"
	"github.com/user/race-archive/internal/monitoring"
	"go.uber.org/zap/zaptest"
)

type fakeCollector struct {
	got domain.CollectRequest
	res *domain.CollectResult
	err error
}

func (f *fakeCollector) Collect(ctx context.Context, req domain.CollectRequest) (*domain.CollectResult, error) {
	f.got = req
	return f.res, f.err
}

type fakeRuns struct {
	runs  []domain.RunSummary
	limit int
}

func (f *fakeRuns) RecentRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	f.limit = limit
	return f.runs, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, c Collector, runs RunLister, checks map[string]Pinger) (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	cfg := &config.Config{ServerPort: "0", BudgetOverall: 25 * time.Second, ListingTimeout: 8 * time.Second}
	return NewServer(cfg, c, runs, checks, reg, monitoring.NewMetrics(reg), zaptest.NewLogger(t)), reg
}

func do(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleRecords(t *testing.T) {
	date := domain.NewRecordDate(time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC))
	fc := &fakeCollector{res: &domain.CollectResult{
		Records: []*domain.Record{{ID: "abc", Date: &date, Venue: "Tokyo", MeetingNumber: 1, CountryCode: "JP", URL: "https://races.example.com/race/1", ResultReport: "3-7-1", Source: domain.SourceHTML}},
	}}
	s, _ := newTestServer(t, fc, nil, nil)

	rec := do(t, s, "/api/records?periods=2024-05,2024-06&results=true&country=GB")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	assert.Equal(t, []domain.Period{{Year: 2024, Month: time.May}, {Year: 2024, Month: time.June}}, fc.got.Periods)
	assert.True(t, fc.got.WithResults)
	require.NotNil(t, fc.got.Filter)
	assert.Equal(t, "GB", fc.got.Filter.Country)

	var body struct {
		Records []map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Records, 1)
	assert.Equal(t, "3-7-1", body.Records[0]["resultReport"])
	assert.Equal(t, "html", body.Records[0]["source"])
}

func TestHandleRecordsBadRequests(t *testing.T) {
	s, _ := newTestServer(t, &fakeCollector{err: crawler.ErrNoPeriods}, nil, nil)
	for _, target := range []string{
		"/api/records",
		"/api/records?periods=may",
		"/api/records?periods=2024-05&results=maybe",
	} {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, s, target).Code)
		})
	}
}

func TestHandleRecordsCollectorFailure(t *testing.T) {
	s, _ := newTestServer(t, &fakeCollector{err: errors.New("boom")}, nil, nil)
	assert.Equal(t, http.StatusInternalServerError, do(t, s, "/api/records?period=2024-05").Code)
}

func TestHandleRuns(t *testing.T) {
	s, _ := newTestServer(t, &fakeCollector{}, nil, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s, "/api/runs").Code)

	runs := &fakeRuns{runs: []domain.RunSummary{{ID: "r1", Periods: []string{"2024-05"}}}}
	s, _ = newTestServer(t, &fakeCollector{}, runs, nil)
	rec := do(t, s, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runs.limit)
	assert.Contains(t, rec.Body.String(), `"id":"r1"`)

	assert.Equal(t, http.StatusBadRequest, do(t, s, "/api/runs?limit=0").Code)
}

func TestHandleHealthCheck(t *testing.T) {
	s, _ := newTestServer(t, &fakeCollector{}, nil, map[string]Pinger{"redis": pinger{}})
	rec := do(t, s, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"healthy"`)

	s, _ = newTestServer(t, &fakeCollector{}, nil, map[string]Pinger{"postgres": pinger{err: errors.New("down")}})
	rec = do(t, s, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":"unhealthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeCollector{}, nil, nil)
	do(t, s, "/api/health")

	rec := do(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `racearchive_http_requests_total{code="2xx",method="GET",route="/api/health"} 1`)
}
