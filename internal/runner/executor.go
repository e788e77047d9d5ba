package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/swarm/internal/check"
	"github.com/wesleyorama2/swarm/internal/logging"
	"github.com/wesleyorama2/swarm/internal/protocol"
	"github.com/wesleyorama2/swarm/internal/report"
	"github.com/wesleyorama2/swarm/internal/scenario"
	"github.com/wesleyorama2/swarm/internal/session"
	"github.com/wesleyorama2/swarm/internal/transport"
)

// Transport sends resolved requests. *transport.Client implements it.
type Transport interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Outcome summarizes one user's walk.
type Outcome struct {
	UserID   int64
	Actions  int
	Failures int
	Duration time.Duration
	// Stopped is set when the walk ended early, by policy or cancellation.
	Stopped bool
}

// Executor interprets the scenario graph. One Executor is shared by every
// user; all per-user state lives in the VirtualUser.
type Executor struct {
	Graph     *scenario.Graph
	Protocol  *protocol.Config
	Transport Transport
	Sink      report.Sink
	Policy    Policy
	Logger    *zap.Logger
}

var errStop = errors.New("stop walk")

type walk struct {
	e   *Executor
	u   *VirtualUser
	log *zap.Logger
	out Outcome
}

// Run walks the root sequence for u and returns when it is exhausted, when
// StopOnFailure ends it, or when ctx is cancelled.
func (e *Executor) Run(ctx context.Context, u *VirtualUser) Outcome {
	sink := e.Sink
	if sink == nil {
		sink = report.Discard
	}
	w := &walk{
		e:   e,
		u:   u,
		log: logging.OrNop(e.Logger).With(zap.Int64("user", u.ID)),
		out: Outcome{UserID: u.ID},
	}

	start := time.Now()
	sink.Record(report.Record{Kind: report.KindUserStart, UserID: u.ID, Start: start})

	if err := w.node(ctx, e.Graph.Root()); err != nil {
		w.out.Stopped = true
	}

	w.out.Duration = time.Since(start)
	end := report.Record{Kind: report.KindUserEnd, UserID: u.ID, Start: start, Duration: w.out.Duration, Outcome: report.OutcomePass}
	if w.out.Failures > 0 {
		end.Outcome = report.OutcomeFail
	}
	sink.Record(end)
	return w.out
}

func (w *walk) record(r report.Record) {
	if w.e.Sink != nil {
		w.e.Sink.Record(r)
	}
}

func (w *walk) node(ctx context.Context, n scenario.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch n := n.(type) {
	case *scenario.Sequence:
		for _, child := range n.Nodes {
			if err := w.node(ctx, child); err != nil {
				return err
			}
		}
		return nil
	case *scenario.Request:
		return w.request(ctx, n)
	case *scenario.Pause:
		return w.pause(ctx, n)
	case *scenario.Exec:
		for _, b := range n.With {
			v, err := b.Value.Resolve(w.u.Session)
			if err != nil {
				return w.stepFailed("exec "+n.Chain, fmt.Errorf("binding %s: %w", b.Key, err))
			}
			w.u.Session.Set(b.Key, v)
		}
		chain, _ := w.e.Graph.Chain(n.Chain)
		return w.node(ctx, chain)
	case *scenario.Assign:
		v, err := n.Value.Resolve(w.u.Session)
		if err != nil {
			return w.stepFailed("assign "+n.Key, err)
		}
		w.u.Session.Set(n.Key, v)
		return nil
	case *scenario.Repeat:
		for i := 0; i < n.Times; i++ {
			if n.Counter != "" {
				w.u.Session.Set(n.Counter, session.Int(int64(i)))
			}
			if err := w.node(ctx, n.Body); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown node %T", n)
}

// stepFailed counts a failed non-request step and applies the policy.
func (w *walk) stepFailed(action string, err error) error {
	w.out.Failures++
	w.log.Debug("step failed", zap.String("action", action), zap.Error(err))
	if w.e.Policy == StopOnFailure {
		return errStop
	}
	return nil
}

func (w *walk) pause(ctx context.Context, p *scenario.Pause) error {
	d := p.Min
	if p.Max > p.Min {
		span := int((p.Max - p.Min) / time.Microsecond)
		d += time.Duration(w.u.Session.Rand().IntRange(0, span)) * time.Microsecond
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (w *walk) request(ctx context.Context, r *scenario.Request) error {
	label := w.label(r)
	w.u.position = label
	w.out.Actions++
	start := time.Now()

	req, err := w.resolve(r)
	if err != nil {
		return w.fail(report.Record{Action: label, Start: start}, fmt.Sprintf("request not sent: %v", err))
	}

	resp, err := w.e.Transport.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.fail(report.Record{Action: label, Start: start, Duration: time.Since(start)}, err.Error())
	}

	res := check.Run(&resp.Response, r.Checks, w.u.Session)
	rec := report.Record{
		Kind:     report.KindRequest,
		UserID:   w.u.ID,
		Action:   label,
		Start:    start,
		Duration: resp.Timing.Total,
		Status:   resp.Status,
		Bytes:    int64(len(resp.Body)),
	}
	if !res.Passed {
		w.log.Debug("checks failed", zap.String("action", label), zap.String("details", res.Details()))
		return w.fail(rec, res.Reason())
	}
	rec.Outcome = report.OutcomePass
	w.record(rec)
	return nil
}

// label resolves placeholders in an explicit request name, so one chain
// reported per kind gets one action per kind. Unresolvable names are kept
// as written.
func (w *walk) label(r *scenario.Request) string {
	if r.Name == "" || !strings.Contains(r.Name, "{{") {
		return r.Label()
	}
	t, err := scenario.ParseTemplate(r.Name)
	if err != nil {
		return r.Name
	}
	v, err := t.Resolve(w.u.Session)
	if err != nil {
		return r.Name
	}
	return v.String()
}

func (w *walk) fail(rec report.Record, reason string) error {
	rec.Kind = report.KindRequest
	rec.UserID = w.u.ID
	rec.Outcome = report.OutcomeFail
	rec.FailureReason = reason
	w.record(rec)

	w.out.Failures++
	w.log.Debug("request failed", zap.String("action", rec.Action), zap.Int("status", rec.Status), zap.String("reason", reason))
	if w.e.Policy == StopOnFailure {
		return errStop
	}
	return nil
}

func (w *walk) resolve(r *scenario.Request) (*transport.Request, error) {
	s := w.u.Session

	path, err := r.Path.Resolve(s)
	if err != nil {
		return nil, fmt.Errorf("path: %w", err)
	}

	headers := make(http.Header, len(r.Headers))
	for _, h := range r.Headers {
		v, err := h.Value.Resolve(s)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", h.Name, err)
		}
		headers.Set(h.Name, v.String())
	}

	var query url.Values
	if len(r.Query) > 0 {
		query = make(url.Values, len(r.Query))
		for _, p := range r.Query {
			v, err := p.Value.Resolve(s)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", p.Name, err)
			}
			query.Add(p.Name, v.String())
		}
	}

	target, err := w.e.Protocol.ResolveURL(path.String(), query)
	if err != nil {
		return nil, err
	}

	var body []byte
	if r.Body != nil {
		v, err := r.Body.Resolve(s)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		if v.Kind() == session.KindBytes {
			body = v.Bytes()
		} else {
			body = []byte(v.String())
		}
	}

	return &transport.Request{
		Method:  strings.ToUpper(r.Method),
		URL:     target,
		Header:  w.e.Protocol.Merge(headers),
		Body:    body,
		Timeout: r.Timeout,
	}, nil
}
