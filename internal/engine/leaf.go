package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/flowtree/internal/ctxlog"
)

// LeafNode invokes exactly one external tool and translates its structured
// result into Updates. It never derives child contexts. A leaf's policy is
// typically just MaxDuration, enforced both as a context deadline on the tool
// call and as a wall-clock check afterwards.
type LeafNode struct {
	id     string
	kind   string
	limits LimitPolicy
	params map[string]any
	run    ToolFunc
}

// NewLeaf constructs a leaf node around a tool invocation.
func NewLeaf(id, kind string, limits LimitPolicy, params map[string]any, run ToolFunc) *LeafNode {
	return &LeafNode{id: id, kind: kind, limits: limits, params: params, run: run}
}

func (n *LeafNode) ID() string   { return n.id }
func (n *LeafNode) Kind() string { return n.kind }

// EvaluateLimits applies the leaf's own policy to the supplied counters.
func (n *LeafNode) EvaluateLimits(st IterationState) Decision {
	return n.limits.Evaluate(st)
}

// Execute resolves parameters against the environment, invokes the tool once,
// and converts the outcome. Tool errors and panics become status failed; they
// do not cross the Node boundary.
func (n *LeafNode) Execute(ctx context.Context, env *Context) (u *Updates) {
	logger := ctxlog.FromContext(ctx).With("node", n.id, "kind", n.kind)
	span, ctx := beginSpan(ctx, n.id, n.kind)
	u = NewUpdates()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Tool invocation panicked.", "cause", r)
			u = failure(u, recovered(r))
		}
		span.End(string(u.Status()), u.Snapshot())
	}()

	start := time.Now()
	if d := n.EvaluateLimits(IterationState{Depth: env.Depth()}); d.Halt {
		logger.Warn("Limit reached before tool invocation.", "reason", d.Reason)
		return limitHalt(u, d.Reason)
	}
	u.AddMetric("node_calls", 1)

	logger.Info("▶️ Invoking tool")
	params := resolveBindings(env, n.params)

	toolCtx := ctx
	if n.limits.MaxDuration > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, n.limits.MaxDuration)
		defer cancel()
	}

	res, err := n.run(toolCtx, params)
	elapsed := time.Since(start)
	if err != nil {
		// A deadline the leaf imposed itself is a limit outcome, not a tool
		// failure.
		if n.limits.MaxDuration > 0 && (errors.Is(err, context.DeadlineExceeded) || elapsed >= n.limits.MaxDuration) {
			logger.Warn("Tool invocation hit the node's duration limit.", "elapsed", elapsed)
			return limitHalt(u, fmt.Sprintf("max_duration %s exceeded after %s", n.limits.MaxDuration, elapsed))
		}
		logger.Error("Tool invocation failed.", "error", err)
		return failure(u, err.Error())
	}
	if d := n.EvaluateLimits(IterationState{Depth: env.Depth(), Elapsed: elapsed}); d.Halt {
		logger.Warn("Limit reached during tool invocation.", "reason", d.Reason)
		return limitHalt(u, d.Reason)
	}

	if res != nil {
		for name, v := range res.Outputs {
			u.SetOutput(name, v)
		}
		for key, v := range res.Metrics {
			u.AddMetric(key, v)
		}
	}
	logger.Info("✅ Tool finished", "duration", elapsed)
	return u
}
