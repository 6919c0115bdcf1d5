package graph

import (
	"errors"
	"fmt"
)

// ErrNodeTimeout is the cause recorded when a node invocation exceeds its
// per-node deadline. It never surfaces from Run; the executor converts it
// into an ErrorRecord on the state.
var ErrNodeTimeout = errors.New("node invocation timed out")

// ErrNodePanic is the cause recorded when a node invocation panics.
var ErrNodePanic = errors.New("node invocation panicked")

// ConfigError reports an invalid graph definition detected by Build. The
// graph is rejected as a whole; no partial graph is returned alongside one.
type ConfigError struct {
	Check string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("graph config: %s: %s", e.Check, e.Msg)
}

func configErrorf(check, format string, args ...any) *ConfigError {
	return &ConfigError{Check: check, Msg: fmt.Sprintf(format, args...)}
}

// EngineError reports an engine-level fault during a run: a contract
// violation the topology validation could not catch statically, such as a
// router naming an undeclared edge or a node writing outside its declared
// keys. It is the only class of error Run returns; domain failures travel
// through the state instead.
type EngineError struct {
	NodeID string
	Msg    string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: node %q: %s", e.NodeID, e.Msg)
}

func engineErrorf(nodeID, format string, args ...any) *EngineError {
	return &EngineError{NodeID: nodeID, Msg: fmt.Sprintf(format, args...)}
}
