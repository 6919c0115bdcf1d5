package graph

import (
	"sync"
	"sync/atomic"
)

// StreamSink receives partial output chunks from the node currently
// executing. The Executor binds a sink to each invocation, so a node only
// pushes text; the node identifier is attached by the engine.
//
// Chunk delivery is synchronous and order-preserving: the consumer sees
// chunks exactly in emission order, and chunks already emitted survive a
// later failure of the same node.
type StreamSink interface {
	Push(text string)
}

// ChunkHandler is the host-facing streaming callback: it receives every
// chunk a node emits, tagged with the emitting node's identifier, in
// emission order, before the run completes.
type ChunkHandler func(nodeID, text string)

// boundSink attaches a node identifier to pushed chunks and forwards them
// to the run's ChunkHandler. When the executor abandons a timed-out node
// it disarms the sink, so the node's goroutine cannot reach the handler
// after the step is over.
type boundSink struct {
	nodeID   string
	fn       ChunkHandler
	disarmed atomic.Bool
}

func (b *boundSink) Push(text string) {
	if b.fn != nil && !b.disarmed.Load() {
		b.fn(b.nodeID, text)
	}
}

func (b *boundSink) disarm() { b.disarmed.Store(true) }

// NullSink discards all chunks. Used for non-streaming runs.
type NullSink struct{}

// Push implements StreamSink.
func (NullSink) Push(string) {}

// Chunk is one streamed fragment as seen by a ChannelSink consumer.
type Chunk struct {
	NodeID string
	Text   string
}

// ChannelSink adapts the callback seam to a channel, for consumers that
// want to range over chunks (e.g. a server-sent-events endpoint).
//
//	sink := graph.NewChannelSink(64)
//	go func() {
//	    defer sink.Close()
//	    final, _ = exec.RunStream(ctx, input, sink.Handler())
//	}()
//	for c := range sink.Chunks() {
//	    write(c.NodeID, c.Text)
//	}
type ChannelSink struct {
	ch       chan Chunk
	closeOne sync.Once
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{ch: make(chan Chunk, buffer)}
}

// Handler returns a ChunkHandler that sends into the sink's channel.
// The send blocks when the buffer is full, which back-pressures the
// emitting node; order is preserved either way.
func (c *ChannelSink) Handler() ChunkHandler {
	return func(nodeID, text string) {
		c.ch <- Chunk{NodeID: nodeID, Text: text}
	}
}

// Chunks returns the receive side of the sink.
func (c *ChannelSink) Chunks() <-chan Chunk { return c.ch }

// Close closes the channel. Call it after the run returns; closing twice
// is safe.
func (c *ChannelSink) Close() {
	c.closeOne.Do(func() { close(c.ch) })
}
