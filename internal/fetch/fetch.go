// Package fetch performs the outbound GETs of the pipeline.
//
// Every request carries the configured identifying User-Agent and a timeout
// chosen by the kind of page being fetched. The transport itself has no
// default timeout; deadlines come only from the request context.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Kind identifies what a fetch is for. It selects the timeout and labels metrics.
type Kind string

const (
	KindListing Kind = "listing"
	KindDetail  Kind = "detail"
	KindResult  Kind = "result"
	KindRobots  Kind = "robots"
	KindJSON    Kind = "json"
)

// ErrDisallowed is returned when robots.txt forbids a URL. Callers check it
// before fetching; it is never the result of a network round trip.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Page is a fetched response body.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Document parses the body as HTML.
func (p *Page) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
}

// ContainsFold reports whether any of the needles appears in the body, ignoring case.
func (p *Page) ContainsFold(needles ...string) bool {
	if p == nil || len(p.Body) == 0 {
		return false
	}
	body := strings.ToLower(string(p.Body))
	for _, n := range needles {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && strings.Contains(body, n) {
			return true
		}
	}
	return false
}

// Fetcher performs one GET. On a non-2xx response the page is returned
// together with a *StatusError so callers can still inspect the body.
type Fetcher interface {
	Get(ctx context.Context, kind Kind, rawURL string) (*Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, kind Kind, rawURL string) (*Page, error)

func (f FetcherFunc) Get(ctx context.Context, kind Kind, rawURL string) (*Page, error) {
	return f(ctx, kind, rawURL)
}

// Timeouts maps each kind to its per-request deadline.
type Timeouts map[Kind]time.Duration

// For returns the timeout for kind, falling back to the detail timeout.
func (t Timeouts) For(kind Kind) time.Duration {
	if d, ok := t[kind]; ok && d > 0 {
		return d
	}
	if d, ok := t[KindDetail]; ok && d > 0 {
		return d
	}
	return 5 * time.Second
}
