// Package robots loads and evaluates the archive's robots.txt.
package robots

import (
	"context"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/user/race-archive/internal/fetch"
	"github.com/user/race-archive/pkg/urlutil"
	"go.uber.org/zap"
)

// DefaultCrawlDelay applies when robots.txt does not set one.
const DefaultCrawlDelay = time.Second

// RuleSet is the parsed policy for one request. It is never mutated after
// Load returns and is safe to share between goroutines.
type RuleSet struct {
	data *robotstxt.RobotsData // nil means allow everything
}

// AllowAll is the permissive rule set used whenever robots.txt is unusable.
func AllowAll() *RuleSet {
	return &RuleSet{}
}

// Parse builds a rule set from a robots.txt body.
func Parse(body []byte) (*RuleSet, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, err
	}
	return &RuleSet{data: data}, nil
}

// Load fetches <base>/robots.txt. It never fails: network errors, timeouts,
// non-2xx responses and unparseable bodies all yield AllowAll.
func Load(ctx context.Context, f fetch.Fetcher, base *url.URL, logger *zap.Logger) *RuleSet {
	robotsURL := (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}).String()

	page, err := f.Get(ctx, fetch.KindRobots, robotsURL)
	if err != nil {
		logger.Info("robots.txt unavailable, allowing all", zap.String("url", robotsURL), zap.Error(err))
		return AllowAll()
	}
	rules, err := Parse(page.Body)
	if err != nil {
		logger.Warn("robots.txt unparseable, allowing all", zap.String("url", robotsURL), zap.Error(err))
		return AllowAll()
	}
	return rules
}

// IsAllowed applies the group for agent (or "*") to the URL path.
// The longest matching prefix decides; equal lengths go to the rule declared first.
func (r *RuleSet) IsAllowed(rawURL, agent string) bool {
	if r == nil || r.data == nil {
		return true
	}
	group := r.data.FindGroup(agent)
	if group == nil {
		return true
	}
	return group.Test(urlutil.PathOf(rawURL))
}

// CrawlDelay is the declared delay for agent, or DefaultCrawlDelay.
func (r *RuleSet) CrawlDelay(agent string) time.Duration {
	if r == nil || r.data == nil {
		return DefaultCrawlDelay
	}
	group := r.data.FindGroup(agent)
	if group == nil || group.CrawlDelay <= 0 {
		return DefaultCrawlDelay
	}
	return group.CrawlDelay
}
