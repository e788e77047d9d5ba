// Package report defines the records a simulation emits and the sinks that
// consume them.
package report

import (
	"sync"
	"time"
)

// Kind identifies what a record describes.
type Kind string

const (
	KindRequest   Kind = "request"
	KindUserStart Kind = "user-start"
	KindUserEnd   Kind = "user-end"
)

// Outcome is the result of a request.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
)

// Record is one reporting event.
type Record struct {
	RunID         string        `json:"runId"`
	Kind          Kind          `json:"kind"`
	UserID        int64         `json:"userId"`
	Action        string        `json:"action,omitempty"`
	Start         time.Time     `json:"start"`
	Duration      time.Duration `json:"duration"`
	Outcome       Outcome       `json:"outcome,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
	Status        int           `json:"status,omitempty"`
	Bytes         int64         `json:"bytes,omitempty"`
}

// Failed reports whether the record is a failed request.
func (r Record) Failed() bool { return r.Outcome == OutcomeFail }

// Sink consumes records. Sinks are shared by all users and must be safe for
// concurrent use.
type Sink interface {
	Record(Record)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Record)

func (f SinkFunc) Record(r Record) { f(r) }

// Discard drops every record.
var Discard Sink = SinkFunc(func(Record) {})

type multi []Sink

func (m multi) Record(r Record) {
	for _, s := range m {
		s.Record(r)
	}
}

// Multi fans a record out to every sink in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// WithRunID stamps every record with the run id before forwarding it.
func WithRunID(runID string, next Sink) Sink {
	return SinkFunc(func(r Record) {
		r.RunID = runID
		next.Record(r)
	})
}

// Channel forwards records to ch. The send blocks when ch is full.
func Channel(ch chan<- Record) Sink {
	return SinkFunc(func(r Record) { ch <- r })
}

// Collector keeps every record in memory.
type Collector struct {
	mu      sync.Mutex
	records []Record
}

// NewCollector creates an empty collector.
func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Record(r Record) {
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
}

// Records returns a copy of the collected records in arrival order.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Requests returns the request records of one user in arrival order.
func (c *Collector) Requests(userID int64) []Record {
	var out []Record
	for _, r := range c.Records() {
		if r.Kind == KindRequest && r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}
