package protocol

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New("http://localhost:8000",
		WithAcceptHeader("application/json"),
		WithContentTypeHeader("application/json"),
		WithUserAgent("swarm"),
	)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", c.BaseURL())
	assert.Equal(t, "application/json", c.Headers().Get("Accept"))
	assert.Equal(t, "application/json", c.Headers().Get("Content-Type"))
	assert.Equal(t, "swarm", c.Headers().Get("User-Agent"))

	h := c.Headers()
	h.Set("Accept", "text/plain")
	assert.Equal(t, "application/json", c.Headers().Get("Accept"), "headers must not be shared")
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "ftp://host", "http://", "::bad"} {
		_, err := New(raw)
		assert.Error(t, err, raw)
	}
}

func TestMerge_RequestWins(t *testing.T) {
	c, err := New("http://localhost:8000", WithHeader("Accept", "application/json"), WithHeader("X-Env", "test"))
	require.NoError(t, err)

	req := http.Header{}
	req.Set("accept", "text/csv")
	req.Set("Authorization", "Bearer t")

	merged := c.Merge(req)
	assert.Equal(t, "text/csv", merged.Get("Accept"))
	assert.Equal(t, "Bearer t", merged.Get("Authorization"))
	assert.Equal(t, "test", merged.Get("X-Env"))
	assert.Equal(t, "application/json", c.Headers().Get("Accept"))
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base  string
		path  string
		query url.Values
		want  string
	}{
		{"http://localhost:8000", "/auth", nil, "http://localhost:8000/auth"},
		{"http://localhost:8000/", "me", nil, "http://localhost:8000/me"},
		{"http://localhost:8000/api/", "/data/users", nil, "http://localhost:8000/api/data/users"},
		{"http://localhost:8000", "/data/users", url.Values{"value": {"42"}}, "http://localhost:8000/data/users?value=42"},
		{"http://localhost:8000", "/search?q=a", url.Values{"n": {"1"}}, "http://localhost:8000/search?n=1&q=a"},
		{"http://localhost:8000", "https://other.example/x", nil, "https://other.example/x"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c, err := New(tt.base)
			require.NoError(t, err)
			got, err := c.ResolveURL(tt.path, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
