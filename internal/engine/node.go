package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/flowtree/internal/execlog"
)

// Node is the polymorphic unit of execution. A pipeline is itself a Node
// whose children are Nodes, which is what makes the whole tree recursively
// composable.
//
// Execute is the sole side-effecting operation. Implementations must call
// EvaluateLimits before doing any work and again before every recursive step,
// must return status limit_exceeded (executing nothing further) when it
// halts, and must convert any internal failure into status failed rather
// than letting it escape the Node boundary.
type Node interface {
	ID() string
	Kind() string

	// EvaluateLimits is a pure, deterministic function of the node's own
	// LimitPolicy and the counters its own loop maintains.
	EvaluateLimits(st IterationState) Decision

	// Execute runs the node under the given environment and returns its
	// accumulated result. It never returns an error and never panics across
	// the boundary.
	Execute(ctx context.Context, env *Context) *Updates
}

// FailurePolicy controls how a pipeline reacts to a failed child.
type FailurePolicy string

const (
	// FailFast stops iterating at the first failed child. This is the default.
	FailFast FailurePolicy = "fail_fast"
	// ContinueOnFailure records the failure and proceeds to remaining children.
	ContinueOnFailure FailurePolicy = "continue"
)

// ToolResult is the structured outcome of one external tool invocation.
// Tools report failure through the error return of a ToolFunc, never by
// panicking; the leaf converts either into its Updates.
type ToolResult struct {
	Outputs map[string]any
	Metrics map[string]float64
}

// ToolFunc invokes one external collaborator (template render, LLM call,
// shell command) with resolved parameters.
type ToolFunc func(ctx context.Context, params map[string]any) (*ToolResult, error)

// Child pairs a node with the per-child bindings and dependency edges its
// parent pipeline declared for it. Bindings are resolved against the
// pipeline-local context when the child's own context is derived.
type Child struct {
	Node      Node
	Bindings  map[string]any
	DependsOn []string
}

// beginSpan opens a trace span linked to the caller's span and returns a
// context under which the node's children will link to this one.
func beginSpan(ctx context.Context, nodeID, kind string) (*execlog.Span, context.Context) {
	log := execlog.FromContext(ctx)
	span := log.Begin(execlog.SpanFromContext(ctx), nodeID, kind)
	return span, execlog.WithSpan(ctx, span)
}

// resolveBindings materializes declared bindings against an environment.
// String values of the form "${path}" are replaced by the context value at
// that dotted path; an unresolvable reference keeps its literal form so the
// consumer can surface a meaningful failure. All other values pass through.
func resolveBindings(env *Context, declared map[string]any) map[string]any {
	if len(declared) == 0 {
		return nil
	}
	out := make(map[string]any, len(declared))
	for name, v := range declared {
		out[name] = resolveValue(env, v)
	}
	return out
}

func resolveValue(env *Context, v any) any {
	switch val := v.(type) {
	case string:
		if ref, ok := refPath(val); ok {
			if resolved, found := env.Resolve(ref); found {
				return resolved
			}
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			out[k] = resolveValue(env, nested)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, nested := range val {
			out[i] = resolveValue(env, nested)
		}
		return out
	default:
		return v
	}
}

func refPath(s string) (string, bool) {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") && len(s) > 3 {
		return s[2 : len(s)-1], true
	}
	return "", false
}

// failure stamps an accumulator as failed with a summarized reason. The
// reason lands in outputs so parents (and the trace) can inspect it; it is
// never re-raised.
func failure(u *Updates, reason string) *Updates {
	u.SetOutput("error", reason)
	u.SetStatus(StatusFailed)
	return u
}

// limitHalt stamps an accumulator as halted by the owning node's policy.
func limitHalt(u *Updates, reason string) *Updates {
	u.SetOutput("limit", reason)
	u.SetStatus(StatusLimitExceeded)
	return u
}

// recovered formats a recovered panic value for the failure channel.
func recovered(r any) string {
	return fmt.Sprintf("panic: %v", r)
}
