// Package transport sends resolved requests over a pooled HTTP client.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/wesleyorama2/swarm/internal/check"
)

// ErrTimeout is matched by errors for requests that ran past their timeout.
var ErrTimeout = errors.New("request timed out")

// Config controls the shared connection pool.
type Config struct {
	// Timeout applies to requests without their own timeout.
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	// MaxConnsPerHost limits the total connections per host, 0 is unlimited.
	MaxConnsPerHost int
	IdleConnTimeout time.Duration

	DisableKeepAlives  bool
	InsecureSkipVerify bool
}

// DefaultConfig returns defaults sized for load generation.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Request is a fully resolved request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// Timeout overrides Config.Timeout when positive.
	Timeout time.Duration
}

// Timing breaks a request down into connection phases.
type Timing struct {
	Start           time.Time
	DNSLookup       time.Duration
	TCPConnect      time.Duration
	TLSHandshake    time.Duration
	TimeToFirstByte time.Duration
	ContentTransfer time.Duration
	Total           time.Duration
}

// Response is a received response with its timing.
type Response struct {
	check.Response
	Timing Timing
}

// Client is safe for concurrent use by all virtual users.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// New creates a client with its own connection pool.
func New(cfg Config) *Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		ForceAttemptHTTP2:   true,
	}
	if cfg.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Client{
		http: &http.Client{
			Transport: tr,
			// redirects are part of the scenario, not the transport
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: cfg.Timeout,
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Do sends the request and reads the whole body.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	tr := newTrace(time.Now())
	httpReq, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, tr.clientTrace()), req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, values := range req.Header {
		httpReq.Header[name] = values
	}
	if host := req.Header.Get("Host"); host != "" {
		httpReq.Host = host
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		tr.finish()
		return nil, classify(ctx, err, timeout)
	}
	defer httpResp.Body.Close()

	transferStart := time.Now()
	data, err := io.ReadAll(httpResp.Body)
	timing := tr.finish()
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("read body: %w", err), timeout)
	}
	timing.ContentTransfer = time.Since(transferStart)
	timing.Total = time.Since(timing.Start)

	return &Response{
		Response: check.Response{
			Status:   httpResp.StatusCode,
			Header:   httpResp.Header,
			Body:     data,
			Duration: timing.Total,
		},
		Timing: timing,
	}, nil
}

func classify(ctx context.Context, err error, timeout time.Duration) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return err
}

// trace records phase durations for one request. The transport runs dial
// callbacks on its own goroutine, possibly after the request was served by
// another connection; callbacks after GotConn or finish are dropped.
type trace struct {
	mu       sync.Mutex
	t        Timing
	gotConn  bool
	finished bool

	dnsStart, connectStart, tlsStart time.Time
	lastPhaseEnd                     time.Time
}

func newTrace(start time.Time) *trace {
	return &trace{t: Timing{Start: start}, lastPhaseEnd: start}
}

// dial runs fn for connection setup callbacks belonging to this request.
func (tr *trace) dial(fn func(now time.Time)) {
	now := time.Now()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.finished || tr.gotConn {
		return
	}
	fn(now)
}

// finish stops recording and returns a copy of the timing.
func (tr *trace) finish() Timing {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.finished = true
	return tr.t
}

// TimeToFirstByte is measured from the end of the last completed connection
// phase. A reused connection has no connection phases.
func (tr *trace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			tr.dial(func(now time.Time) { tr.dnsStart = now })
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			tr.dial(func(now time.Time) {
				tr.lastPhaseEnd = now
				tr.t.DNSLookup = now.Sub(tr.dnsStart)
			})
		},
		ConnectStart: func(string, string) {
			tr.dial(func(now time.Time) { tr.connectStart = now })
		},
		ConnectDone: func(_, _ string, err error) {
			tr.dial(func(now time.Time) {
				if err == nil && !tr.connectStart.IsZero() {
					tr.lastPhaseEnd = now
					tr.t.TCPConnect = now.Sub(tr.connectStart)
				}
			})
		},
		TLSHandshakeStart: func() {
			tr.dial(func(now time.Time) { tr.tlsStart = now })
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			tr.dial(func(now time.Time) {
				if err == nil && !tr.tlsStart.IsZero() {
					tr.lastPhaseEnd = now
					tr.t.TLSHandshake = now.Sub(tr.tlsStart)
				}
			})
		},
		GotConn: func(info httptrace.GotConnInfo) {
			now := time.Now()
			tr.mu.Lock()
			defer tr.mu.Unlock()
			if tr.finished {
				return
			}
			tr.gotConn = true
			if info.Reused {
				tr.t.DNSLookup, tr.t.TCPConnect, tr.t.TLSHandshake = 0, 0, 0
				tr.lastPhaseEnd = now
			}
		},
		GotFirstResponseByte: func() {
			now := time.Now()
			tr.mu.Lock()
			defer tr.mu.Unlock()
			if !tr.finished {
				tr.t.TimeToFirstByte = now.Sub(tr.lastPhaseEnd)
			}
		},
	}
}
