package graph

import (
	"time"

	"github.com/querylab/biflow/graph/emit"
	"github.com/querylab/biflow/graph/store"
)

// Option configures an Executor.
type Option func(*Executor)

// WithStepLimit caps the number of node invocations per run. Exceeding it
// terminates the run as failed. Zero or below restores DefaultStepLimit.
func WithStepLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.stepLimit = n
		}
	}
}

// WithNodeTimeout sets the default per-node deadline. Individual nodes can
// override it via the NodeTimeout registration option. Zero disables the
// default deadline.
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Executor) { e.nodeTimeout = d }
}

// WithEmitter installs an observability emitter. Defaults to emit.Null.
func WithEmitter(em emit.Emitter) Option {
	return func(e *Executor) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithMetrics installs a Prometheus metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithArchive installs a run archive. Terminal runs are saved best effort;
// archive failures are emitted as events, never surfaced from Run.
func WithArchive(a store.Archive) Option {
	return func(e *Executor) { e.archive = a }
}
