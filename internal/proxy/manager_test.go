package proxy

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRotatesProxies(t *testing.T) {
	m := NewManager([]string{"http://p1:8000", " ", "://bad", "http://p2:8000"}, "agent/1.0")
	require.Equal(t, 2, m.Len())

	assert.Equal(t, "p1:8000", m.Next().Host)
	assert.Equal(t, "p2:8000", m.Next().Host)
	assert.Equal(t, "p1:8000", m.Next().Host)
}

func TestManagerProxyFunc(t *testing.T) {
	m := NewManager([]string{"http://p1:8000"}, "agent/1.0")
	u, err := m.ProxyFunc()(httptest.NewRequest("GET", "http://example.com", nil))
	require.NoError(t, err)
	assert.Equal(t, "p1:8000", u.Host)
}

func TestManagerWithoutProxies(t *testing.T) {
	m := NewManager(nil, "  agent/1.0 ")
	assert.Nil(t, m.Next())
	assert.NotNil(t, m.ProxyFunc())
	assert.Equal(t, "agent/1.0", m.UserAgent())

	var nilManager *Manager
	assert.Equal(t, 0, nilManager.Len())
	assert.Equal(t, "", nilManager.UserAgent())
}
