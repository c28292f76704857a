package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/race-archive/internal/cache"
	"github.com/user/race-archive/internal/config"
	"github.com/user/race-archive/internal/fetch"
	"github.com/user/race-archive/internal/proxy"
	"github.com/user/race-archive/internal/robots"
	"go.uber.org/zap/zaptest"
)

const testAgent = "race-archive-test/1.0"

type resultSite struct {
	srv   *httptest.Server
	hits  map[string]*atomic.Int32
	pages map[string]string
}

func newResultSite(t *testing.T, pages map[string]string) *resultSite {
	s := &resultSite{hits: map[string]*atomic.Int32{}, pages: pages}
	for p := range pages {
		s.hits[p] = &atomic.Int32{}
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := s.pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		s.hits[r.URL.Path].Add(1)
		w.Write([]byte(body))
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *resultSite) count(path string) int32 {
	return s.hits[path].Load()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newExtractor(t *testing.T, clk *fakeClock) *ResultExtractor {
	cfg := &config.Config{UserAgent: testAgent, DetailTimeout: time.Second}
	f := fetch.NewHTTPFetcher(cfg, proxy.NewManager(nil, testAgent), nil, zaptest.NewLogger(t))
	c := cache.New(time.Hour, zaptest.NewLogger(t), cache.WithClock(clk.now))
	subs := [][2]string{{"/race/", "/result/"}, {"/race/", "/results/"}}
	return NewResultExtractor(f, c, subs, testAgent, nil, zaptest.NewLogger(t))
}

func TestCandidates(t *testing.T) {
	e := newExtractor(t, &fakeClock{t: time.Now()})
	got := e.Candidates("https://races.example.com/race/2024/05/12/tokyo-1?x=1")
	assert.Equal(t, []string{
		"https://races.example.com/result/2024/05/12/tokyo-1?x=1",
		"https://races.example.com/results/2024/05/12/tokyo-1?x=1",
		"https://races.example.com/race/2024/05/12/tokyo-1?x=1",
	}, got)

	assert.Equal(t, []string{"https://races.example.com/meeting/9"}, e.Candidates("https://races.example.com/meeting/9"))
}

func TestExtractUsesCacheWithinTTL(t *testing.T) {
	site := newResultSite(t, map[string]string{
		"/result/2024/05/12/tokyo-1": `<html><body><div id="result">3 - 7 - 1</div></body></html>`,
	})
	clk := &fakeClock{t: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	e := newExtractor(t, clk)
	ctx := context.Background()
	detail := site.srv.URL + "/race/2024/05/12/tokyo-1"

	report, ok := e.Extract(ctx, detail, robots.AllowAll())
	require.True(t, ok)
	assert.Equal(t, "3-7-1", report)
	assert.EqualValues(t, 1, site.count("/result/2024/05/12/tokyo-1"))

	clk.t = clk.t.Add(30 * time.Minute)
	report, ok = e.Extract(ctx, detail, robots.AllowAll())
	require.True(t, ok)
	assert.Equal(t, "3-7-1", report)
	assert.EqualValues(t, 1, site.count("/result/2024/05/12/tokyo-1"), "served from cache within TTL")

	clk.t = clk.t.Add(time.Hour)
	_, ok = e.Extract(ctx, detail, robots.AllowAll())
	require.True(t, ok)
	assert.EqualValues(t, 2, site.count("/result/2024/05/12/tokyo-1"), "refetched after expiry")
}

func TestExtractCachesAbsence(t *testing.T) {
	site := newResultSite(t, map[string]string{
		"/race/2024/05/12/kyoto-2": `<html><body><p>Card only.</p></body></html>`,
	})
	e := newExtractor(t, &fakeClock{t: time.Now()})
	ctx := context.Background()
	detail := site.srv.URL + "/race/2024/05/12/kyoto-2"

	_, ok := e.Extract(ctx, detail, robots.AllowAll())
	assert.False(t, ok)
	assert.EqualValues(t, 1, site.count("/race/2024/05/12/kyoto-2"))

	_, ok = e.Extract(ctx, detail, robots.AllowAll())
	assert.False(t, ok)
	assert.EqualValues(t, 1, site.count("/race/2024/05/12/kyoto-2"), "cached none is not refetched")
}

func TestExtractRespectsRobots(t *testing.T) {
	site := newResultSite(t, map[string]string{
		"/result/2024/05/12/hanshin-1": `<div id="result">1-2-3</div>`,
		"/race/2024/05/12/hanshin-1":   `<p>Result: 4-5-6</p>`,
	})
	rules, err := robots.Parse([]byte("User-agent: *\nDisallow: /result/\n"))
	require.NoError(t, err)

	e := newExtractor(t, &fakeClock{t: time.Now()})
	report, ok := e.Extract(context.Background(), site.srv.URL+"/race/2024/05/12/hanshin-1", rules)
	require.True(t, ok)
	assert.Equal(t, "4-5-6", report)
	assert.EqualValues(t, 0, site.count("/result/2024/05/12/hanshin-1"))
}

func TestExtractDoesNotCacheNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	clk := &fakeClock{t: time.Now()}
	e := newExtractor(t, clk)
	_, ok := e.Extract(context.Background(), base+"/race/1", robots.AllowAll())
	assert.False(t, ok)

	_, cached := e.cache.Get(context.Background(), base+"/race/1")
	assert.False(t, cached)
}

func TestExtractStopsOnCancelledContext(t *testing.T) {
	site := newResultSite(t, map[string]string{"/race/1": `<div id="result">1-2-3</div>`})
	e := newExtractor(t, &fakeClock{t: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := e.Extract(ctx, site.srv.URL+"/race/1", robots.AllowAll())
	assert.False(t, ok)
	assert.EqualValues(t, 0, site.count("/race/1"))
}
