package injection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClock jumps forward on every After call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func TestScheduler_OpenModel(t *testing.T) {
	p, err := NewProfile(AtOnce{Count: 1}, RampUsers{Count: 4, During: 4 * time.Second})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	release := make(chan struct{})

	var mu sync.Mutex
	var events []Event
	s := &Scheduler{
		Profile: p,
		Clock:   clock,
		OnSpawn: func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	}

	// no user finishes before the whole schedule is launched
	err = s.Run(context.Background(), func(ctx context.Context, sp Spawn) { <-release })
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.Spawned())
	assert.Equal(t, int64(5), s.Active())

	close(release)
	s.Wait()
	assert.Zero(t, s.Active())

	require.Len(t, events, 5)
	var got []time.Duration
	for _, e := range events {
		got = append(got, e.At.Sub(start))
		assert.Zero(t, e.Late)
	}
	assert.Equal(t, []time.Duration{0, 0, time.Second, 2 * time.Second, 3 * time.Second}, got)
}

func TestScheduler_ConcurrencyLimitDelaysSpawns(t *testing.T) {
	p, err := NewProfile(AtOnce{Count: 4})
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	s := &Scheduler{Profile: p, MaxConcurrent: 2, Logger: zap.New(core)}

	release := make(chan struct{})
	var mu sync.Mutex
	var ran []int64
	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), func(ctx context.Context, sp Spawn) {
			<-release
			mu.Lock()
			ran = append(ran, sp.Index)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool { return s.Delayed() == 1 && s.Active() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), s.Spawned())
	assert.Equal(t, 1, logs.FilterMessage("spawn delayed: concurrent user limit reached").Len())

	close(release)
	require.NoError(t, <-done)
	s.Wait()

	assert.Equal(t, int64(4), s.Spawned())
	assert.Len(t, ran, 4, "delayed spawns are not dropped")
	assert.GreaterOrEqual(t, s.Delayed(), int64(1))
}

func TestScheduler_Cancel(t *testing.T) {
	p, err := NewProfile(RampUsers{Count: 10, During: 10 * time.Second})
	require.NoError(t, err)

	s := &Scheduler{Profile: p}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = s.Run(ctx, func(ctx context.Context, sp Spawn) {})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	s.Wait()
	assert.Equal(t, int64(1), s.Spawned())
}

func TestScheduler_RealClockOffsets(t *testing.T) {
	p, err := NewProfile(AtOnce{Count: 1}, RampUsers{Count: 2, During: 100 * time.Millisecond})
	require.NoError(t, err)

	var mu sync.Mutex
	var at []time.Duration
	start := time.Now()
	s := &Scheduler{Profile: p}
	err = s.Run(context.Background(), func(ctx context.Context, sp Spawn) {
		mu.Lock()
		at = append(at, time.Since(start))
		mu.Unlock()
	})
	require.NoError(t, err)
	s.Wait()

	require.Len(t, at, 3)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}
