// Package simulation runs a compiled simulation end to end: it injects users
// on the profile's schedule, walks the scenario for each of them, folds the
// request records into statistics and evaluates the assertions.
//
// Example usage:
//
//	compiled, _ := config.Load("simulation.yaml")
//	sim := simulation.New(compiled, simulation.Options{Logger: logger})
//	result, _ := sim.Run(context.Background())
//	result.Summary().Write(os.Stdout)
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/swarm/internal/config"
	"github.com/wesleyorama2/swarm/internal/injection"
	"github.com/wesleyorama2/swarm/internal/logging"
	"github.com/wesleyorama2/swarm/internal/report"
	"github.com/wesleyorama2/swarm/internal/runner"
	"github.com/wesleyorama2/swarm/internal/transport"
)

// Options tune a run without changing the simulation itself.
type Options struct {
	Logger *zap.Logger
	// Sinks receive every record in addition to the built-in aggregator.
	Sinks []report.Sink
	// Transport replaces the pooled HTTP client built from the simulation.
	Transport runner.Transport
	// Clock drives the injection schedule; nil is the wall clock.
	Clock injection.Clock
	// ProgressInterval logs a progress line at this period; 0 disables it.
	ProgressInterval time.Duration
	// OnProgress, when set, receives the same snapshots as the progress log.
	OnProgress func(*report.Snapshot)
}

// Simulation is a compiled simulation bound to its run options.
type Simulation struct {
	compiled *config.Compiled
	opts     Options

	mu      sync.Mutex
	running bool
}

// Result is the outcome of a run.
type Result struct {
	RunID      string                   `json:"runId"`
	Name       string                   `json:"name"`
	StartTime  time.Time                `json:"startTime"`
	EndTime    time.Time                `json:"endTime"`
	Snapshot   *report.Snapshot         `json:"metrics"`
	Assertions []report.AssertionResult `json:"assertions,omitempty"`
	// Stopped counts users whose walk ended early.
	Stopped int64 `json:"usersStopped"`
	// Delayed counts spawns held back by the concurrent user limit.
	Delayed int64 `json:"spawnsDelayed"`
	// Cancelled is set when the run was interrupted before the last spawn.
	Cancelled bool `json:"cancelled"`
}

// Passed reports whether every assertion held and the run was not cancelled.
func (r *Result) Passed() bool {
	return !r.Cancelled && r.Summary().Passed()
}

// Summary returns the printable end-of-run report.
func (r *Result) Summary() *report.Summary {
	return &report.Summary{Name: r.Name, Snapshot: r.Snapshot, Assertions: r.Assertions}
}

// New binds c to opts.
func New(c *config.Compiled, opts Options) *Simulation {
	return &Simulation{compiled: c, opts: opts}
}

// Run executes the simulation and blocks until every launched user has
// finished. Cancelling ctx stops the injection and interrupts running users;
// the partial result is still returned with Cancelled set.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, errors.New("simulation is already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	c := s.compiled
	if c == nil || c.Graph == nil || c.Profile == nil || c.Protocol == nil {
		return nil, errors.New("simulation is not compiled")
	}

	runID := uuid.NewString()
	log := logging.OrNop(s.opts.Logger).With(zap.String("run", runID), zap.String("simulation", c.Name))

	tr := s.opts.Transport
	if tr == nil {
		client := transport.New(c.Transport)
		defer client.Close()
		tr = client
	}

	agg := report.NewAggregator()
	sinks := append([]report.Sink{agg}, s.opts.Sinks...)
	exec := &runner.Executor{
		Graph:     c.Graph,
		Protocol:  c.Protocol,
		Transport: tr,
		Sink:      report.WithRunID(runID, report.Multi(sinks...)),
		Policy:    c.Policy,
		Logger:    log,
	}
	sched := &injection.Scheduler{
		Profile:       c.Profile,
		Clock:         s.opts.Clock,
		MaxConcurrent: c.MaxConcurrentUsers,
		Logger:        log,
	}

	log.Info("simulation started",
		zap.String("scenario", c.Graph.Name()),
		zap.String("baseUrl", c.Protocol.BaseURL()),
		zap.Int("users", c.Profile.Users()),
		zap.Stringer("policy", c.Policy))

	start := time.Now()
	stopProgress := s.progress(log, agg, sched)

	var stopped atomic.Int64
	runErr := sched.Run(ctx, func(ctx context.Context, sp injection.Spawn) {
		u := runner.NewVirtualUser(sp.Index+1, sp.Offset, c.Seed)
		if out := exec.Run(ctx, u); out.Stopped {
			stopped.Add(1)
		}
	})
	sched.Wait()
	stopProgress()

	res := &Result{
		RunID:     runID,
		Name:      c.Name,
		StartTime: start,
		EndTime:   time.Now(),
		Snapshot:  agg.Snapshot(),
		Stopped:   stopped.Load(),
		Delayed:   sched.Delayed(),
		Cancelled: runErr != nil || ctx.Err() != nil,
	}
	res.Assertions = report.EvaluateAll(c.Assertions, res.Snapshot)

	fields := []zap.Field{
		zap.Int64("requests", res.Snapshot.Requests),
		zap.Int64("failed", res.Snapshot.Failed),
		zap.Duration("elapsed", res.EndTime.Sub(start)),
		zap.Int64("usersStopped", res.Stopped),
		zap.Bool("cancelled", res.Cancelled),
	}
	for _, a := range res.Assertions {
		if !a.Passed {
			log.Warn("assertion failed", zap.String("assertion", a.Expression), zap.String("actual", a.Actual))
		}
	}
	log.Info("simulation finished", fields...)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return res, fmt.Errorf("injection failed: %w", runErr)
	}
	return res, nil
}

// progress starts the periodic progress reporter and returns its stop
// function.
func (s *Simulation) progress(log *zap.Logger, agg *report.Aggregator, sched *injection.Scheduler) func() {
	if s.opts.ProgressInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.opts.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				snap := agg.Snapshot()
				log.Info("progress",
					zap.Int64("requests", snap.Requests),
					zap.Int64("failed", snap.Failed),
					zap.Int64("activeUsers", sched.Active()),
					zap.Int64("spawned", sched.Spawned()),
					zap.Float64("rps", snap.RPS))
				if s.opts.OnProgress != nil {
					s.opts.OnProgress(snap)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
