package graph

import "context"

// Node is one unit of work in the workflow graph.
//
// A node reads the current State, performs at most one outbound call to an
// external collaborator (LLM completion, query execution), and returns its
// output as a NodeResult. Nodes are independent: they know nothing about
// each other, and collaborators are injected at construction time so each
// node is testable with fakes.
//
// Contract:
//   - state is a read-only view; a node must never mutate it. All writes
//     travel back through NodeResult.Delta, restricted to the keys the
//     node's registration declared with Owns.
//   - A node signals failure through NodeResult.Err and never panics past
//     its own boundary (the Executor recovers panics and records them as
//     failures, so State is always inspectable after a step).
//   - A long-running node may push partial output to sink while its
//     collaborator call is streaming; chunks are forwarded to the run's
//     stream consumer in emission order, unbuffered and unreordered.
type Node interface {
	Run(ctx context.Context, state State, sink StreamSink) NodeResult
}

// NodeResult is the output of one node invocation.
type NodeResult struct {
	// Delta is the partial state update to merge. Zero value means the
	// node derived nothing (legal for failure results).
	Delta Delta

	// Err reports node failure. The Executor converts it into
	// State.Error; it never propagates as an exception out of the run
	// loop.
	Err error
}

// NodeFunc adapts a plain function to the Node interface.
//
//	intent := graph.NodeFunc(func(ctx context.Context, s graph.State, _ graph.StreamSink) graph.NodeResult {
//	    return graph.NodeResult{Delta: graph.Delta{Intent: graph.StringOf("query")}}
//	})
type NodeFunc func(ctx context.Context, state State, sink StreamSink) NodeResult

// Run implements Node.
func (f NodeFunc) Run(ctx context.Context, state State, sink StreamSink) NodeResult {
	return f(ctx, state, sink)
}

// DetailedError is implemented by collaborator errors that carry a raw
// detail payload beyond their message. The Executor copies the detail into
// ErrorRecord.RawDetail so repair nodes can see the collaborator's full
// complaint.
type DetailedError interface {
	error
	Detail() string
}
