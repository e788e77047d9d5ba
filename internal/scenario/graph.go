package scenario

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrInvalidGraph is matched by every graph construction error.
var ErrInvalidGraph = errors.New("invalid scenario graph")

// GraphError describes one problem found while validating a graph.
type GraphError struct {
	// Path locates the node, e.g. "root[3]" or "chains.crud[0]".
	Path    string
	Message string
}

func (e *GraphError) Error() string {
	if e.Path == "" {
		return "invalid scenario graph: " + e.Message
	}
	return fmt.Sprintf("invalid scenario graph at %s: %s", e.Path, e.Message)
}

func (e *GraphError) Is(target error) bool { return target == ErrInvalidGraph }

// Graph is a validated, read-only scenario.
type Graph struct {
	name   string
	root   *Sequence
	chains map[string]*Sequence
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NewGraph validates root and the named chains and returns the graph.
// Every problem found is reported; chain reference cycles are reported with
// the cycle path. The graph holds its own copy of the nodes, so later
// changes to root or chains do not reach it.
func NewGraph(name string, root *Sequence, chains map[string]*Sequence) (*Graph, error) {
	var errs []error
	if name == "" {
		errs = append(errs, &GraphError{Message: "scenario name is required"})
	}
	if root == nil || len(root.Nodes) == 0 {
		errs = append(errs, &GraphError{Path: "root", Message: "scenario has no actions"})
	}

	copied := make(map[string]*Sequence, len(chains))
	for k, v := range chains {
		copied[k] = copySequence(v)
	}
	root = copySequence(root)
	g := &Graph{name: name, root: root, chains: copied}

	if root != nil {
		errs = append(errs, g.checkNode("root", root)...)
	}
	for _, chainName := range g.ChainNames() {
		errs = append(errs, g.checkNode("chains."+chainName, g.chains[chainName])...)
	}
	if err := g.checkCycles(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

// Name returns the scenario name.
func (g *Graph) Name() string { return g.name }

// Root returns the root sequence.
//
// The returned nodes belong to the graph and must not be modified.
func (g *Graph) Root() *Sequence { return g.root }

// Chain returns a named chain.
func (g *Graph) Chain(name string) (*Sequence, bool) {
	c, ok := g.chains[name]
	return c, ok
}

// ChainNames returns the chain names in sorted order.
func (g *Graph) ChainNames() []string {
	names := make([]string, 0, len(g.chains))
	for n := range g.chains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (g *Graph) checkNode(path string, n Node) []error {
	var errs []error
	add := func(msg string, args ...any) {
		errs = append(errs, &GraphError{Path: path, Message: fmt.Sprintf(msg, args...)})
	}

	switch n := n.(type) {
	case nil:
		add("nil node")
	case *Sequence:
		if n == nil {
			add("nil sequence")
			break
		}
		for i, child := range n.Nodes {
			errs = append(errs, g.checkNode(fmt.Sprintf("%s[%d]", path, i), child)...)
		}
	case *Request:
		if !validMethods[strings.ToUpper(n.Method)] {
			add("invalid HTTP method %q", n.Method)
		}
		if n.Path == nil {
			add("request path is required")
		}
		for i, c := range n.Checks {
			if c.Extractor == nil {
				add("check %d has no extractor", i)
			}
		}
		if n.Timeout < 0 {
			add("timeout cannot be negative")
		}
	case *Pause:
		if n.Min < 0 || n.Max < 0 {
			add("pause cannot be negative")
		}
	case *Exec:
		if _, ok := g.chains[n.Chain]; !ok {
			add("unknown chain %q", n.Chain)
		}
		for _, b := range n.With {
			if b.Key == "" || b.Value == nil {
				add("binding needs a key and a value")
			}
		}
	case *Assign:
		if n.Key == "" || n.Value == nil {
			add("assign needs a key and a value")
		}
	case *Repeat:
		if n.Times < 0 {
			add("repeat count cannot be negative")
		}
		errs = append(errs, g.checkNode(path+".body", n.Body)...)
	default:
		add("unknown node type %T", n)
	}
	return errs
}

func copySequence(s *Sequence) *Sequence {
	if s == nil {
		return nil
	}
	c := &Sequence{Name: s.Name, Nodes: make([]Node, len(s.Nodes))}
	for i, n := range s.Nodes {
		c.Nodes[i] = copyNode(n)
	}
	return c
}

// copyNode copies n and the slices it owns. Expressions and checks are
// immutable and shared. Typed nil nodes are returned unchanged so
// validation still reports them.
func copyNode(n Node) Node {
	switch n := n.(type) {
	case *Sequence:
		if n != nil {
			return copySequence(n)
		}
	case *Request:
		if n != nil {
			c := *n
			c.Headers = slices.Clone(n.Headers)
			c.Query = slices.Clone(n.Query)
			c.Checks = slices.Clone(n.Checks)
			return &c
		}
	case *Pause:
		if n != nil {
			c := *n
			return &c
		}
	case *Exec:
		if n != nil {
			c := *n
			c.With = slices.Clone(n.With)
			return &c
		}
	case *Assign:
		if n != nil {
			c := *n
			return &c
		}
	case *Repeat:
		if n != nil {
			c := *n
			c.Body = copyNode(n.Body)
			return &c
		}
	}
	return n
}

// checkCycles runs a depth-first search over chain references starting at
// the root and at every chain.
func (g *Graph) checkCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.chains))
	var stack []string

	var visit func(chain string) error
	var walk func(n Node) error

	walk = func(n Node) error {
		switch n := n.(type) {
		case *Sequence:
			if n == nil {
				return nil
			}
			for _, child := range n.Nodes {
				if err := walk(child); err != nil {
					return err
				}
			}
		case *Repeat:
			return walk(n.Body)
		case *Exec:
			if _, ok := g.chains[n.Chain]; ok {
				return visit(n.Chain)
			}
		}
		return nil
	}

	visit = func(chain string) error {
		switch state[chain] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, c := range stack {
				if c == chain {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, stack[start:]...), chain)
			return &GraphError{Path: "chains." + chain, Message: "cyclic chain reference " + strings.Join(cycle, " -> ")}
		}
		state[chain] = visiting
		stack = append(stack, chain)
		if err := walk(g.chains[chain]); err != nil {
			return err
		}
		stack = stack[:len(stack)-1]
		state[chain] = done
		return nil
	}

	if g.root != nil {
		if err := walk(g.root); err != nil {
			return err
		}
	}
	for _, name := range g.ChainNames() {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
