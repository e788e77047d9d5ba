// Package injection turns an injection profile into spawn times and
// launches virtual users at those times on an open workload model.
package injection

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidStep is matched by every step validation error.
var ErrInvalidStep = errors.New("invalid workload step")

// StepError reports an invalid step of a profile.
type StepError struct {
	Index   int
	Step    Step
	Message string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("invalid workload step %d (%s): %s", e.Index, e.Step, e.Message)
}

func (e *StepError) Is(target error) bool { return target == ErrInvalidStep }

// Step is one injection step. Steps run back to back: each starts where the
// previous one ended.
type Step interface {
	fmt.Stringer
	// Validate checks the step in isolation.
	Validate() error
	// offsets returns the spawn offsets relative to the step start and the
	// step length.
	offsets() ([]time.Duration, time.Duration)
}

// AtOnce spawns Count users at the step start.
type AtOnce struct {
	Count int
}

func (s AtOnce) String() string { return fmt.Sprintf("atOnce(%d)", s.Count) }

func (s AtOnce) Validate() error {
	if s.Count < 0 {
		return fmt.Errorf("%w: user count cannot be negative", ErrInvalidStep)
	}
	return nil
}

func (s AtOnce) offsets() ([]time.Duration, time.Duration) {
	return make([]time.Duration, s.Count), 0
}

// RampUsers spawns Count users evenly over During: user i starts at
// i*During/Count.
type RampUsers struct {
	Count  int
	During time.Duration
}

func (s RampUsers) String() string { return fmt.Sprintf("rampUsers(%d, %s)", s.Count, s.During) }

func (s RampUsers) Validate() error {
	if s.Count < 0 {
		return fmt.Errorf("%w: user count cannot be negative", ErrInvalidStep)
	}
	if s.During <= 0 {
		return fmt.Errorf("%w: ramp duration must be positive", ErrInvalidStep)
	}
	return nil
}

func (s RampUsers) offsets() ([]time.Duration, time.Duration) {
	return spread(s.Count, s.During), s.During
}

// NothingFor delays the next step.
type NothingFor struct {
	During time.Duration
}

func (s NothingFor) String() string { return fmt.Sprintf("nothingFor(%s)", s.During) }

func (s NothingFor) Validate() error {
	if s.During < 0 {
		return fmt.Errorf("%w: pause cannot be negative", ErrInvalidStep)
	}
	return nil
}

func (s NothingFor) offsets() ([]time.Duration, time.Duration) { return nil, s.During }

// ConstantRate spawns Rate users per second for During, evenly spaced.
// The user count is floor(Rate * During). A product within float error of
// an integer counts as that integer, so 0.57/s for 100s is 57 users.
type ConstantRate struct {
	Rate   float64
	During time.Duration
}

func (s ConstantRate) String() string {
	return fmt.Sprintf("constantRate(%g/s, %s)", s.Rate, s.During)
}

func (s ConstantRate) Validate() error {
	if s.Rate < 0 || math.IsNaN(s.Rate) || math.IsInf(s.Rate, 0) {
		return fmt.Errorf("%w: rate must be a non-negative number", ErrInvalidStep)
	}
	if s.During <= 0 {
		return fmt.Errorf("%w: rate duration must be positive", ErrInvalidStep)
	}
	return nil
}

func (s ConstantRate) Users() int {
	n := s.Rate * s.During.Seconds()
	if r := math.Round(n); math.Abs(n-r) <= 1e-9*math.Max(1, r) {
		return int(r)
	}
	return int(math.Floor(n))
}

func (s ConstantRate) offsets() ([]time.Duration, time.Duration) {
	return spread(s.Users(), s.During), s.During
}

// spread returns n offsets i*d/n, computed without overflow.
func spread(n int, d time.Duration) []time.Duration {
	out := make([]time.Duration, n)
	if n == 0 {
		return out
	}
	step, rem := d/time.Duration(n), d%time.Duration(n)
	for i := range out {
		out[i] = step*time.Duration(i) + rem*time.Duration(i)/time.Duration(n)
	}
	return out
}
