package graph

// Decision is a router's verdict after a node finishes: either continue to
// a named node or terminate the run with an outcome and reason.
type Decision struct {
	Next     string
	Terminal bool
	Outcome  Outcome
	Reason   string
}

// Goto continues execution at the named node.
func Goto(node string) Decision { return Decision{Next: node} }

// Finish terminates the run successfully.
func Finish() Decision {
	return Decision{Terminal: true, Outcome: OutcomeSucceeded, Reason: ReasonCompleted}
}

// Terminate ends the run with an explicit outcome and reason.
func Terminate(outcome Outcome, reason string) Decision {
	return Decision{Terminal: true, Outcome: outcome, Reason: reason}
}

// Unhandled terminates the run because no branch matched the state.
func Unhandled() Decision {
	return Terminate(OutcomeUnhandledIntent, ReasonUnhandled)
}

// Exhausted terminates the run because a loop edge's retry bound was spent.
func Exhausted() Decision {
	return Terminate(OutcomeRetriesExhausted, ReasonExhausted)
}

// Router decides what happens after its node's invocation has been applied
// to the state. Deciders must be pure: same state in, same decision out,
// no side effects and no external calls.
type Router interface {
	Decide(state State) Decision
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(State) Decision

// Decide implements Router.
func (f RouterFunc) Decide(s State) Decision { return f(s) }

// Static always continues to the same node. It is the router for plain
// chain segments.
func Static(next string) Router {
	return RouterFunc(func(State) Decision { return Goto(next) })
}

// End always finishes the run successfully. It is the router for the last
// node of a chain.
func End() Router {
	return RouterFunc(func(State) Decision { return Finish() })
}

// FanOut selects a branch by a state-derived label. A label with no entry
// in Branches terminates the run as unhandled, so misclassified input ends
// cleanly instead of executing an arbitrary default path.
type FanOut struct {
	Select   func(State) string
	Branches map[string]string
}

// Decide implements Router.
func (f FanOut) Decide(s State) Decision {
	label := f.Select(s)
	if next, ok := f.Branches[label]; ok {
		return Goto(next)
	}
	return Unhandled()
}

// ErrorLoop routes back to a repair node while the state carries an error
// record, delegating to Next otherwise. The error check always runs before
// the inner router, so a failed step never fans out on stale fields.
//
// The router only names the loop edge; the Executor owns the retry
// counter and enforces the bound, terminating the run itself once the
// edge has been taken MaxRetries times.
type ErrorLoop struct {
	Edge       string
	Repair     string
	MaxRetries int
	Next       Router
}

// Decide implements Router.
func (e ErrorLoop) Decide(s State) Decision {
	if s.Error != nil {
		max := e.MaxRetries
		if max <= 0 {
			max = DefaultMaxRetries
		}
		if s.RetryCounts[e.Edge] >= max {
			return Exhausted()
		}
		return Goto(e.Repair)
	}
	return e.Next.Decide(s)
}
