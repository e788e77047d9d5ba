// Package scenario defines the immutable scenario graph virtual users walk.
//
// A graph is built once, validated, and then shared read-only by every
// user. Nodes never hold per-user state; anything that varies per user is
// an Expr resolved against that user's session.
package scenario

import (
	"time"

	"github.com/wesleyorama2/swarm/internal/check"
)

// Kind identifies a node variant.
type Kind string

const (
	KindRequest  Kind = "request"
	KindPause    Kind = "pause"
	KindSequence Kind = "sequence"
	KindExec     Kind = "exec"
	KindAssign   Kind = "assign"
	KindRepeat   Kind = "repeat"
)

// Node is one scenario action. The variants are Request, Pause, Sequence,
// Exec, Assign and Repeat.
type Node interface {
	Kind() Kind
	node()
}

// Header is a request header whose value may depend on the session.
type Header struct {
	Name  string
	Value Expr
}

// Param is a query parameter whose value may depend on the session.
type Param struct {
	Name  string
	Value Expr
}

// Request issues one HTTP request and runs its checks on the response.
type Request struct {
	Name    string
	Method  string
	Path    Expr
	Headers []Header
	Query   []Param
	// Body is nil for requests without a body.
	Body   Expr
	Checks []check.Check
	// Timeout overrides the transport timeout when positive.
	Timeout time.Duration
}

func (*Request) Kind() Kind { return KindRequest }
func (*Request) node()      {}

// Pause suspends the user. The delay is fixed when Max <= Min and uniformly
// random in [Min, Max] otherwise.
type Pause struct {
	Min time.Duration
	Max time.Duration
}

// Fixed returns a pause of exactly d.
func Fixed(d time.Duration) *Pause { return &Pause{Min: d} }

// Between returns a pause drawn uniformly from [min, max].
func Between(min, max time.Duration) *Pause { return &Pause{Min: min, Max: max} }

func (*Pause) Kind() Kind { return KindPause }
func (*Pause) node()      {}

// Sequence runs its nodes in order.
type Sequence struct {
	Name  string
	Nodes []Node
}

// Seq builds an anonymous sequence.
func Seq(nodes ...Node) *Sequence { return &Sequence{Nodes: nodes} }

func (*Sequence) Kind() Kind { return KindSequence }
func (*Sequence) node()      {}

// Binding sets a session key before a chain runs.
type Binding struct {
	Key   string
	Value Expr
}

// Exec inlines a named chain. Its bindings are written into the shared
// session first, which is how one chain is reused for several resource kinds.
type Exec struct {
	Chain string
	With  []Binding
}

func (*Exec) Kind() Kind { return KindExec }
func (*Exec) node()      {}

// Assign stores a derived value in the session.
type Assign struct {
	Key   string
	Value Expr
}

func (*Assign) Kind() Kind { return KindAssign }
func (*Assign) node()      {}

// Repeat runs Body Times times. When Counter is set the 0-based iteration
// index is stored under that key.
type Repeat struct {
	Times   int
	Counter string
	Body    Node
}

func (*Repeat) Kind() Kind { return KindRepeat }
func (*Repeat) node()      {}

// Label returns the name reported for a request.
func (r *Request) Label() string {
	if r.Name != "" {
		return r.Name
	}
	if t, ok := r.Path.(*Template); ok {
		return r.Method + " " + t.raw()
	}
	return r.Method
}
