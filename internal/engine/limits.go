package engine

import (
	"fmt"
	"time"
)

// LimitPolicy is a per-node declarative budget. A zero value for any field
// means unbounded. Policies are immutable for the lifetime of one execution
// and are only ever evaluated by the node that owns them; no node inspects an
// ancestor's or descendant's policy.
type LimitPolicy struct {
	MaxDepth      int
	MaxIterations int
	MaxDuration   time.Duration
	MaxChildren   int
}

// IterationState carries the running counters a node's own recursion loop
// passes into limit evaluation. It is never supplied externally.
type IterationState struct {
	// Depth is the derivation depth of the context the node executes under.
	Depth int
	// Iterations counts child executions (or loop passes) started so far.
	Iterations int
	// Children counts distinct children executed in the current pass.
	Children int
	// Elapsed is wall-clock time since the node's execute began.
	Elapsed time.Duration
}

// Decision is the outcome of a limit evaluation.
type Decision struct {
	Halt   bool
	Reason string
}

var proceed = Decision{}

// Evaluate checks the running counters against the policy. It is a pure
// function: identical inputs always produce the identical decision.
func (p LimitPolicy) Evaluate(st IterationState) Decision {
	if p.MaxDepth > 0 && st.Depth > p.MaxDepth {
		return Decision{Halt: true, Reason: fmt.Sprintf("max_depth %d exceeded at depth %d", p.MaxDepth, st.Depth)}
	}
	if p.MaxIterations > 0 && st.Iterations >= p.MaxIterations {
		return Decision{Halt: true, Reason: fmt.Sprintf("max_iterations %d reached", p.MaxIterations)}
	}
	if p.MaxChildren > 0 && st.Children >= p.MaxChildren {
		return Decision{Halt: true, Reason: fmt.Sprintf("max_children %d reached", p.MaxChildren)}
	}
	if p.MaxDuration > 0 && st.Elapsed >= p.MaxDuration {
		return Decision{Halt: true, Reason: fmt.Sprintf("max_duration %s exceeded after %s", p.MaxDuration, st.Elapsed)}
	}
	return proceed
}
