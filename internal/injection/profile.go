package injection

import (
	"errors"
	"strings"
	"time"
)

// Spawn is one scheduled user start.
type Spawn struct {
	// Index is the 0-based position in the whole schedule. User ids are
	// Index+1.
	Index int64
	// Step is the index of the step that produced the spawn.
	Step int
	// Offset from the run start.
	Offset time.Duration
}

// Profile is an ordered, validated list of steps.
type Profile struct {
	steps []Step
}

// NewProfile validates every step and returns the profile. All invalid steps
// are reported.
func NewProfile(steps ...Step) (*Profile, error) {
	var errs []error
	for i, s := range steps {
		if s == nil {
			errs = append(errs, &StepError{Index: i, Step: AtOnce{}, Message: "nil step"})
			continue
		}
		if err := s.Validate(); err != nil {
			msg := strings.TrimPrefix(err.Error(), ErrInvalidStep.Error()+": ")
			errs = append(errs, &StepError{Index: i, Step: s, Message: msg})
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Profile{steps: append([]Step(nil), steps...)}, nil
}

// Steps returns a copy of the steps.
func (p *Profile) Steps() []Step { return append([]Step(nil), p.steps...) }

// Schedule computes every spawn in offset order. It is pure: the same
// profile always yields the same schedule.
func (p *Profile) Schedule() []Spawn {
	var out []Spawn
	var t0 time.Duration
	var index int64
	for i, s := range p.steps {
		offsets, length := s.offsets()
		for _, off := range offsets {
			out = append(out, Spawn{Index: index, Step: i, Offset: t0 + off})
			index++
		}
		t0 += length
	}
	return out
}

// Duration is the sum of the step lengths.
func (p *Profile) Duration() time.Duration {
	var d time.Duration
	for _, s := range p.steps {
		_, length := s.offsets()
		d += length
	}
	return d
}

// Users is the total number of spawns.
func (p *Profile) Users() int {
	n := 0
	for _, s := range p.steps {
		offsets, _ := s.offsets()
		n += len(offsets)
	}
	return n
}
