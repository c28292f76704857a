package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/race-archive/internal/cache"
	"github.com/user/race-archive/internal/fetch"
	"github.com/user/race-archive/internal/monitoring"
	"github.com/user/race-archive/internal/robots"
	"go.uber.org/zap"
)

// ResultStrategies finds the finishing order on a result page, in priority order.
func ResultStrategies() []Strategy[string] {
	return []Strategy[string]{
		{Name: "embedded-data", Apply: func(doc *goquery.Document) (string, bool) {
			for _, script := range scripts(doc) {
				for _, m := range embeddedResultPattern.FindAllStringSubmatch(script, -1) {
					if r, ok := NormalizeReport(m[1]); ok {
						return r, true
					}
				}
			}
			return "", false
		}},
		{Name: "result-region", Apply: func(doc *goquery.Document) (string, bool) {
			var report string
			doc.Find(`[data-result], #result, .race-result, .finish-order`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				candidate, ok := s.Attr("data-result")
				if !ok || strings.TrimSpace(candidate) == "" {
					candidate = s.Text()
				}
				if r, ok := NormalizeReport(candidate); ok {
					report = r
					return false
				}
				return true
			})
			return report, report != ""
		}},
		{Name: "sub-event", Apply: func(doc *goquery.Document) (string, bool) {
			var report string
			doc.Find(".sub-event, .race-leg, .heat").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				candidate := s.Find(".result, .placings, .order").First().Text()
				if r, ok := NormalizeReport(candidate); ok {
					report = r
					return false
				}
				return true
			})
			return report, report != ""
		}},
		{Name: "free-text", Apply: func(doc *goquery.Document) (string, bool) {
			text := bodyText(doc)
			for _, m := range labelledResultPattern.FindAllStringSubmatch(text, -1) {
				if r, ok := NormalizeReport(m[1]); ok {
					return r, true
				}
			}
			for _, m := range bareSequencePattern.FindAllString(text, -1) {
				if r, ok := NormalizeReport(m); ok {
					return r, true
				}
			}
			return "", false
		}},
	}
}

// ResultExtractor determines the result report of a record, consulting the
// process-wide cache first and writing every outcome back to it.
type ResultExtractor struct {
	fetcher       fetch.Fetcher
	cache         *cache.ResultCache
	substitutions [][2]string
	agent         string
	strategies    []Strategy[string]
	metrics       *monitoring.Metrics
	logger        *zap.Logger
}

func NewResultExtractor(f fetch.Fetcher, c *cache.ResultCache, substitutions [][2]string, agent string, m *monitoring.Metrics, l *zap.Logger) *ResultExtractor {
	return &ResultExtractor{
		fetcher:       f,
		cache:         c,
		substitutions: substitutions,
		agent:         agent,
		strategies:    ResultStrategies(),
		metrics:       m,
		logger:        l,
	}
}

// Candidates lists the URLs that may carry the result of the record at
// rawURL: each historical path substitution that applies, then rawURL itself.
func (e *ResultExtractor) Candidates(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return []string{rawURL}
	}
	seen := map[string]bool{}
	var out []string
	for _, sub := range e.substitutions {
		if !strings.Contains(u.Path, sub[0]) {
			continue
		}
		derived := *u
		derived.Path = strings.Replace(u.Path, sub[0], sub[1], 1)
		derived.RawPath = ""
		s := derived.String()
		if !seen[s] && s != rawURL {
			seen[s] = true
			out = append(out, s)
		}
	}
	return append(out, rawURL)
}

// Extract returns the result report for the record at rawURL. Failures are
// soft: the report is simply not determined. A definitive absence is cached;
// an attempt cut short by cancellation or by network errors on every
// candidate is not.
func (e *ResultExtractor) Extract(ctx context.Context, rawURL string, rules *robots.RuleSet) (string, bool) {
	if report, ok := e.cache.Get(ctx, rawURL); ok {
		return report, report != ""
	}

	conclusive := false
	for _, candidate := range e.Candidates(rawURL) {
		if ctx.Err() != nil {
			return "", false
		}
		if !rules.IsAllowed(candidate, e.agent) {
			e.metrics.IncFetch(string(fetch.KindResult), "disallowed")
			conclusive = true
			continue
		}
		page, err := e.fetcher.Get(ctx, fetch.KindResult, candidate)
		if err != nil {
			if page != nil {
				conclusive = true // the server answered, just not with a result page
			}
			e.logger.Debug("result candidate failed", zap.String("url", candidate), zap.Error(err))
			continue
		}
		conclusive = true
		doc, err := page.Document()
		if err != nil {
			continue
		}
		if report, strategy, ok := First(doc, e.strategies); ok {
			e.logger.Debug("result found",
				zap.String("url", rawURL),
				zap.String("page", candidate),
				zap.String("strategy", strategy),
				zap.String("report", report),
			)
			e.cache.Set(ctx, rawURL, report)
			return report, true
		}
	}

	if conclusive && ctx.Err() == nil {
		e.cache.Set(ctx, rawURL, "")
	}
	return "", false
}
