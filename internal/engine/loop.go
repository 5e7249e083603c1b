package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/flowtree/internal/ctxlog"
)

// KindLoop is the structural node kind for condition-bounded iteration.
const KindLoop = "loop"

// Operator compares a loop's observed output value against a reference.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpLessThan    Operator = "less_than"
	OpGreaterThan Operator = "greater_than"
)

// Condition is the loop termination predicate, evaluated against the body's
// merged outputs after each pass. Path is a dotted output path (namespaced by
// the body's child identifiers).
type Condition struct {
	Path  string
	Op    Operator
	Value any
}

// Validate rejects malformed conditions at construction time so a bad loop
// never starts executing.
func (c Condition) Validate() error {
	if c.Path == "" {
		return errors.New("loop condition requires a path")
	}
	switch c.Op {
	case OpEquals, OpNotEquals, OpLessThan, OpGreaterThan:
		return nil
	default:
		return fmt.Errorf("loop condition requires one of equals, not_equals, less_than, greater_than; got %q", c.Op)
	}
}

// met evaluates the condition against one pass's outputs. An unresolvable
// path or a non-numeric operand for an ordering comparison is an error; the
// message names the path, operator, and the actual value and type observed.
func (c Condition) met(outputs map[string]any) (bool, error) {
	v, ok := lookupOutput(outputs, c.Path)
	if !ok {
		return false, fmt.Errorf("condition path not found: path=%q operator=%s", c.Path, c.Op)
	}
	switch c.Op {
	case OpEquals:
		return looseEqual(v, c.Value), nil
	case OpNotEquals:
		return !looseEqual(v, c.Value), nil
	}

	lhs, lok := toFloat(v)
	rhs, rok := toFloat(c.Value)
	if !lok || !rok {
		return false, fmt.Errorf("condition type mismatch: path=%q operator=%s actual_value=%v actual_type=%T ref=%v",
			c.Path, c.Op, v, v, c.Value)
	}
	if c.Op == OpLessThan {
		return lhs < rhs, nil
	}
	return lhs > rhs, nil
}

// LoopNode re-executes one inner pipeline until its condition holds, bounded
// by the loop's own LimitPolicy. MaxIterations counts body passes. Outputs of
// the latest pass win; metrics accumulate across passes.
type LoopNode struct {
	id     string
	limits LimitPolicy
	body   Node
	cond   Condition
}

// NewLoop constructs a loop node. The condition is validated here, before any
// execution can begin.
func NewLoop(id string, limits LimitPolicy, body Node, cond Condition) (*LoopNode, error) {
	if body == nil {
		return nil, fmt.Errorf("loop %q requires a body", id)
	}
	if err := cond.Validate(); err != nil {
		return nil, fmt.Errorf("loop %q: %w", id, err)
	}
	return &LoopNode{id: id, limits: limits, body: body, cond: cond}, nil
}

func (n *LoopNode) ID() string   { return n.id }
func (n *LoopNode) Kind() string { return KindLoop }

// EvaluateLimits applies the loop's own policy to its pass counters.
func (n *LoopNode) EvaluateLimits(st IterationState) Decision {
	return n.limits.Evaluate(st)
}

// Execute runs body passes until the condition holds, a limit halts the loop,
// or the body reports failure. Limits are re-evaluated before every pass.
func (n *LoopNode) Execute(ctx context.Context, env *Context) (u *Updates) {
	logger := ctxlog.FromContext(ctx).With("node", n.id, "kind", KindLoop)
	span, ctx := beginSpan(ctx, n.id, KindLoop)
	u = NewUpdates()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Loop execution panicked.", "cause", r)
			u = failure(u, recovered(r))
		}
		span.End(string(u.Status()), u.Snapshot())
	}()

	local := env.Derive(nil)
	if d := n.EvaluateLimits(IterationState{Depth: local.Depth()}); d.Halt {
		logger.Warn("Limit reached before first pass.", "reason", d.Reason)
		return limitHalt(u, d.Reason)
	}
	u.AddMetric("node_calls", 1)

	start := time.Now()
	for pass := 0; ; pass++ {
		st := IterationState{Depth: local.Depth(), Iterations: pass, Elapsed: time.Since(start)}
		if d := n.EvaluateLimits(st); d.Halt {
			logger.Warn("Loop halted by its limit policy.", "reason", d.Reason, "passes", pass)
			return limitHalt(u, d.Reason)
		}

		logger.Info("🔁 Starting loop pass", "pass", pass+1)
		bodyCtx := local.Derive(map[string]any{"pass": pass + 1})
		bu := n.body.Execute(ctx, bodyCtx)
		u.Merge(n.body.ID(), bu)

		switch bu.Status() {
		case StatusFailed:
			logger.Warn("Loop body failed.", "pass", pass+1)
			u.SetStatus(StatusFailed)
			return u
		case StatusLimitExceeded:
			logger.Warn("Loop body halted on its own limit.", "pass", pass+1)
			return limitHalt(u, fmt.Sprintf("body %q halted on its own limit", n.body.ID()))
		}

		done, err := n.cond.met(bu.Outputs())
		if err != nil {
			logger.Error("Loop condition evaluation failed.", "error", err)
			return failure(u, err.Error())
		}
		if done {
			logger.Info("🏁 Loop condition met", "passes", pass+1)
			return u
		}
	}
}

// lookupOutput resolves a dotted path against merged outputs. Namespaced
// output keys are flat ("counter.value"), so the longest matching flat key is
// tried first and any remaining segments navigate into nested mappings.
func lookupOutput(outputs map[string]any, path string) (any, bool) {
	if v, ok := outputs[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	for i := len(parts) - 1; i > 0; i-- {
		key := strings.Join(parts[:i], ".")
		if v, ok := outputs[key]; ok {
			return navigate(v, parts[i:])
		}
	}
	return nil, false
}

func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
