package graph

import (
	"fmt"
	"sort"
	"time"
)

// Defaults applied when a bound is left unset.
const (
	DefaultStepLimit  = 25
	DefaultMaxRetries = 3
)

// NodeOption configures a node registration.
type NodeOption func(*nodeSpec)

// Owns declares the result keys the node may write. Writes outside this
// set are rejected at runtime, and two nodes may not own the same key.
func Owns(keys ...ResultKey) NodeOption {
	return func(s *nodeSpec) { s.owns = append(s.owns, keys...) }
}

// Reads declares result keys the node requires to be populated. Build
// rejects the graph if any path can reach the node without all of them
// having been written.
func Reads(keys ...ResultKey) NodeOption {
	return func(s *nodeSpec) { s.reads = append(s.reads, keys...) }
}

// NodeTimeout overrides the executor's default per-node deadline for this
// node only.
func NodeTimeout(d time.Duration) NodeOption {
	return func(s *nodeSpec) { s.timeout = d }
}

type nodeSpec struct {
	id      string
	node    Node
	router  Router
	owns    []ResultKey
	reads   []ResultKey
	timeout time.Duration
}

// LoopEdge is a named back edge with a retry budget. The executor counts
// traversals per run and refuses the edge once the budget is spent.
type LoopEdge struct {
	Name       string
	From       string
	To         string
	MaxRetries int
}

// Graph is a validated, immutable topology. Build it once and share it
// across executors; it holds no per-run state.
type Graph struct {
	entry    string
	nodes    map[string]*nodeSpec
	succ     map[string]map[string]bool
	loops    map[string]map[string]*LoopEdge
	warnings []string
}

// Entry returns the entry node's identifier.
func (g *Graph) Entry() string { return g.entry }

// Warnings returns non-fatal findings from validation, currently nodes
// that no path from the entry can reach.
func (g *Graph) Warnings() []string { return g.warnings }

// Builder accumulates a graph definition. All structural checks run in
// Build; the Add and Set methods only record.
type Builder struct {
	entry string
	nodes map[string]*nodeSpec
	order []string
	succ  map[string]map[string]bool
	loops map[string]map[string]*LoopEdge
	errs  []error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]*nodeSpec),
		succ:  make(map[string]map[string]bool),
		loops: make(map[string]map[string]*LoopEdge),
	}
}

// AddNode registers a node under a unique identifier.
func (b *Builder) AddNode(id string, n Node, opts ...NodeOption) *Builder {
	if _, dup := b.nodes[id]; dup {
		b.errs = append(b.errs, configErrorf("nodes", "duplicate node %q", id))
		return b
	}
	spec := &nodeSpec{id: id, node: n}
	for _, opt := range opts {
		opt(spec)
	}
	b.nodes[id] = spec
	b.order = append(b.order, id)
	return b
}

// SetEntry names the node every run starts at.
func (b *Builder) SetEntry(id string) *Builder {
	b.entry = id
	return b
}

// AddEdge declares that from's router may continue to to.
func (b *Builder) AddEdge(from, to string) *Builder {
	if b.succ[from] == nil {
		b.succ[from] = make(map[string]bool)
	}
	b.succ[from][to] = true
	return b
}

// AddLoopEdge declares a named retry edge from from back to to, with at
// most maxRetries traversals per run. A maxRetries of zero or below means
// DefaultMaxRetries.
func (b *Builder) AddLoopEdge(from, to, name string, maxRetries int) *Builder {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	b.AddEdge(from, to)
	if b.loops[from] == nil {
		b.loops[from] = make(map[string]*LoopEdge)
	}
	b.loops[from][to] = &LoopEdge{Name: name, From: from, To: to, MaxRetries: maxRetries}
	return b
}

// SetRouter attaches the router consulted after id's node runs.
func (b *Builder) SetRouter(id string, r Router) *Builder {
	if spec, ok := b.nodes[id]; ok {
		spec.router = r
	} else {
		b.errs = append(b.errs, configErrorf("routers", "router for unknown node %q", id))
	}
	return b
}

// Build validates the accumulated definition and returns the immutable
// graph. Any violation rejects the definition as a whole.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if b.entry == "" {
		return nil, configErrorf("entry", "no entry node set")
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, configErrorf("entry", "entry node %q not registered", b.entry)
	}
	for from, tos := range b.succ {
		if _, ok := b.nodes[from]; !ok {
			return nil, configErrorf("edges", "edge from unknown node %q", from)
		}
		for to := range tos {
			if _, ok := b.nodes[to]; !ok {
				return nil, configErrorf("edges", "edge %q -> %q targets unknown node", from, to)
			}
		}
	}
	owners := make(map[ResultKey]string)
	for _, id := range b.order {
		spec := b.nodes[id]
		if spec.router == nil {
			return nil, configErrorf("routers", "node %q has no router", id)
		}
		for _, k := range spec.owns {
			if prev, taken := owners[k]; taken && prev != id {
				return nil, configErrorf("ownership", "key %q owned by both %q and %q", k, prev, id)
			}
			owners[k] = id
		}
	}
	if err := b.checkReads(); err != nil {
		return nil, err
	}
	g := &Graph{
		entry: b.entry,
		nodes: b.nodes,
		succ:  b.succ,
		loops: b.loops,
	}
	for _, id := range b.order {
		if !b.reachable()[id] {
			g.warnings = append(g.warnings, fmt.Sprintf("node %q is unreachable from entry %q", id, b.entry))
		}
	}
	return g, nil
}

func (b *Builder) reachable() map[string]bool {
	seen := map[string]bool{b.entry: true}
	queue := []string{b.entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for to := range b.succ[id] {
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	return seen
}

type keySet map[ResultKey]bool

func (s keySet) clone() keySet {
	out := make(keySet, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func (s keySet) equal(other keySet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other[k] {
			return false
		}
	}
	return true
}

// checkReads runs a forward must-be-written analysis. A key reaches a node
// only if every declared path into that node has written it; the set
// available after a node is the set before it plus the node's own keys.
// Iterates to a fixpoint since loop edges make the graph cyclic.
func (b *Builder) checkReads() error {
	universe := make(keySet)
	for _, spec := range b.nodes {
		for _, k := range spec.owns {
			universe[k] = true
		}
	}
	pred := make(map[string][]string)
	for from, tos := range b.succ {
		for to := range tos {
			pred[to] = append(pred[to], from)
		}
	}
	in := make(map[string]keySet, len(b.nodes))
	out := make(map[string]keySet, len(b.nodes))
	for id := range b.nodes {
		in[id] = universe.clone()
		out[id] = universe.clone()
	}
	in[b.entry] = make(keySet)

	for changed := true; changed; {
		changed = false
		for _, id := range b.order {
			spec := b.nodes[id]
			avail := universe.clone()
			if id == b.entry {
				avail = make(keySet)
			} else {
				for _, p := range pred[id] {
					next := make(keySet)
					for k := range avail {
						if out[p][k] {
							next[k] = true
						}
					}
					avail = next
				}
				if len(pred[id]) == 0 {
					avail = make(keySet)
				}
			}
			after := avail.clone()
			for _, k := range spec.owns {
				after[k] = true
			}
			if !avail.equal(in[id]) || !after.equal(out[id]) {
				in[id], out[id] = avail, after
				changed = true
			}
		}
	}

	reach := b.reachable()
	for _, id := range b.order {
		if !reach[id] {
			continue
		}
		spec := b.nodes[id]
		var missing []string
		for _, k := range spec.reads {
			if !in[id][k] {
				missing = append(missing, string(k))
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return configErrorf("reads", "node %q reads %v, not written on every path reaching it", id, missing)
		}
	}
	return nil
}
