// Package protocol holds the shared HTTP defaults applied to every request
// of a simulation.
package protocol

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Config is the base URL and default headers shared read-only by all
// virtual users. It is immutable once built.
type Config struct {
	baseURL *url.URL
	headers http.Header
}

// Option configures a Config.
type Option func(*Config)

// WithHeader sets a default header.
func WithHeader(name, value string) Option {
	return func(c *Config) {
		c.headers.Set(name, value)
	}
}

// WithAcceptHeader sets the default Accept header.
func WithAcceptHeader(value string) Option { return WithHeader("Accept", value) }

// WithContentTypeHeader sets the default Content-Type header.
func WithContentTypeHeader(value string) Option { return WithHeader("Content-Type", value) }

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(value string) Option { return WithHeader("User-Agent", value) }

// New builds a protocol configuration. The base URL must be absolute.
func New(baseURL string, opts ...Option) (*Config, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}

	c := &Config{baseURL: u, headers: make(http.Header)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the base URL as configured.
func (c *Config) BaseURL() string { return c.baseURL.String() }

// Headers returns a copy of the default headers.
func (c *Config) Headers() http.Header { return c.headers.Clone() }

// Merge returns the default headers overlaid with the request headers.
// A request header replaces the default of the same canonical name.
func (c *Config) Merge(request http.Header) http.Header {
	out := c.headers.Clone()
	for name, values := range request {
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}

// ResolveURL joins the base URL and path and appends the query. A path that
// is already an absolute URL is used as-is.
func (c *Config) ResolveURL(path string, query url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}

	var u url.URL
	if ref.IsAbs() {
		u = *ref
	} else {
		u = *c.baseURL
		if u.Path == "" {
			u.Path = "/" + strings.TrimLeft(ref.Path, "/")
		} else {
			u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
		}
		u.RawPath = ""
		u.RawQuery = ref.RawQuery
		u.Fragment = ""
	}

	if len(query) > 0 {
		q := u.Query()
		for name, values := range query {
			for _, v := range values {
				q.Add(name, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
