package proxy

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Manager hands out the outbound proxy for each request, rotating sequentially,
// and carries the identifying User-Agent every request is sent with.
type Manager struct {
	proxies    []*url.URL
	userAgent  string
	mu         sync.Mutex
	proxyIndex int
}

// NewManager parses the configured proxy URLs. Unparseable or empty entries are skipped.
func NewManager(proxyURLs []string, userAgent string) *Manager {
	m := &Manager{userAgent: strings.TrimSpace(userAgent)}
	for _, raw := range proxyURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		m.proxies = append(m.proxies, u)
	}
	return m
}

// Len is the number of usable proxies.
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	return len(m.proxies)
}

// Next returns the next proxy in rotation, or nil when none are configured.
func (m *Manager) Next() *url.URL {
	if m.Len() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return p
}

// ProxyFunc adapts the rotation for http.Transport.Proxy.
// Without configured proxies it falls back to the environment.
func (m *Manager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	if m.Len() == 0 {
		return http.ProxyFromEnvironment
	}
	return func(*http.Request) (*url.URL, error) {
		return m.Next(), nil
	}
}

// UserAgent is the same honest agent string for every request.
func (m *Manager) UserAgent() string {
	if m == nil {
		return ""
	}
	return m.userAgent
}
