package injection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wesleyorama2/swarm/internal/logging"
)

// Clock is the time source of a Scheduler.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// SpawnFunc runs one user. It is called on a new goroutine per spawn.
type SpawnFunc func(ctx context.Context, s Spawn)

// Event describes a user launch.
type Event struct {
	Spawn
	// At is when the user was launched.
	At time.Time
	// Late is how far behind its offset the launch happened.
	Late time.Duration
}

// Scheduler launches users at the offsets of a profile. It never waits for a
// user to finish before launching the next one.
type Scheduler struct {
	Profile *Profile
	Clock   Clock
	// MaxConcurrent caps the users alive at once; 0 is unlimited. At the cap
	// spawns are delayed until a user finishes, never dropped.
	MaxConcurrent int64
	Logger        *zap.Logger
	// OnSpawn, when set, is called synchronously for every launch.
	OnSpawn func(Event)

	wg      sync.WaitGroup
	active  atomic.Int64
	spawned atomic.Int64
	delayed atomic.Int64
}

// Run launches every spawn of the schedule and returns once the last one
// has been launched, or with ctx's error when cancelled first. Users already
// launched keep ctx; call Wait to block until they finish.
func (s *Scheduler) Run(ctx context.Context, fn SpawnFunc) error {
	clock := s.Clock
	if clock == nil {
		clock = RealClock
	}
	log := logging.OrNop(s.Logger)

	var sem *semaphore.Weighted
	if s.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(s.MaxConcurrent)
	}

	schedule := s.Profile.Schedule()
	log.Info("injection started",
		zap.Int("users", len(schedule)),
		zap.Duration("duration", s.Profile.Duration()),
		zap.Int64("maxConcurrent", s.MaxConcurrent))

	start := clock.Now()
	for _, sp := range schedule {
		if wait := sp.Offset - clock.Now().Sub(start); wait > 0 {
			select {
			case <-ctx.Done():
				log.Info("injection cancelled", zap.Int64("spawned", s.spawned.Load()))
				return ctx.Err()
			case <-clock.After(wait):
			}
		}
		if err := ctx.Err(); err != nil {
			log.Info("injection cancelled", zap.Int64("spawned", s.spawned.Load()))
			return err
		}

		if sem != nil && !sem.TryAcquire(1) {
			s.delayed.Add(1)
			log.Warn("spawn delayed: concurrent user limit reached",
				zap.Int64("user", sp.Index+1),
				zap.Int64("limit", s.MaxConcurrent),
				zap.Duration("offset", sp.Offset))
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
		}

		now := clock.Now()
		s.spawned.Add(1)
		s.active.Add(1)
		s.wg.Add(1)
		go func(sp Spawn) {
			defer func() {
				s.active.Add(-1)
				if sem != nil {
					sem.Release(1)
				}
				s.wg.Done()
			}()
			fn(ctx, sp)
		}(sp)

		if s.OnSpawn != nil {
			late := now.Sub(start) - sp.Offset
			if late < 0 {
				late = 0
			}
			s.OnSpawn(Event{Spawn: sp, At: now, Late: late})
		}
	}

	log.Info("injection finished", zap.Int64("spawned", s.spawned.Load()), zap.Int64("delayed", s.delayed.Load()))
	return nil
}

// Wait blocks until every launched user has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Active returns the number of users currently running.
func (s *Scheduler) Active() int64 { return s.active.Load() }

// Spawned returns the number of users launched so far.
func (s *Scheduler) Spawned() int64 { return s.spawned.Load() }

// Delayed returns how many spawns waited for a free slot.
func (s *Scheduler) Delayed() int64 { return s.delayed.Load() }
