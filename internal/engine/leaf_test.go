package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okTool(outputs map[string]any, metrics map[string]float64) ToolFunc {
	return func(context.Context, map[string]any) (*ToolResult, error) {
		return &ToolResult{Outputs: outputs, Metrics: metrics}, nil
	}
}

func TestLeafExecuteSuccess(t *testing.T) {
	leaf := NewLeaf("render", "template", LimitPolicy{}, nil,
		okTool(map[string]any{"text": "hi"}, map[string]float64{"tokens": 3}))

	u := leaf.Execute(context.Background(), NewContext(nil))

	assert.Equal(t, StatusOK, u.Status())
	v, ok := u.Output("text")
	require.True(t, ok)
	assert.Equal(t, "hi", v)
	assert.Equal(t, 3.0, u.Metric("tokens"))
	assert.Equal(t, 1.0, u.Metric("node_calls"))
}

func TestLeafExecuteResolvesParams(t *testing.T) {
	var seen map[string]any
	leaf := NewLeaf("greet", "print", LimitPolicy{}, map[string]any{
		"message": "${vars.greeting}",
		"literal": "unchanged",
		"missing": "${vars.absent}",
	}, func(_ context.Context, params map[string]any) (*ToolResult, error) {
		seen = params
		return &ToolResult{}, nil
	})

	env := NewContext(map[string]any{"vars": map[string]any{"greeting": "hello"}})
	u := leaf.Execute(context.Background(), env)

	require.Equal(t, StatusOK, u.Status())
	assert.Equal(t, "hello", seen["message"])
	assert.Equal(t, "unchanged", seen["literal"])
	// Unresolvable references keep their literal form.
	assert.Equal(t, "${vars.absent}", seen["missing"])
}

func TestLeafExecuteToolError(t *testing.T) {
	leaf := NewLeaf("broken", "shell", LimitPolicy{}, nil,
		func(context.Context, map[string]any) (*ToolResult, error) {
			return nil, errors.New("command not found")
		})

	u := leaf.Execute(context.Background(), NewContext(nil))

	assert.Equal(t, StatusFailed, u.Status())
	reason, ok := u.Output("error")
	require.True(t, ok)
	assert.Contains(t, reason, "command not found")
}

func TestLeafExecuteToolPanic(t *testing.T) {
	leaf := NewLeaf("explosive", "shell", LimitPolicy{}, nil,
		func(context.Context, map[string]any) (*ToolResult, error) {
			panic("boom")
		})

	var u *Updates
	require.NotPanics(t, func() {
		u = leaf.Execute(context.Background(), NewContext(nil))
	})
	assert.Equal(t, StatusFailed, u.Status())
	reason, _ := u.Output("error")
	assert.Contains(t, reason, "boom")
}

func TestLeafExecuteDepthLimit(t *testing.T) {
	called := false
	leaf := NewLeaf("deep", "print", LimitPolicy{MaxDepth: 1}, nil,
		func(context.Context, map[string]any) (*ToolResult, error) {
			called = true
			return &ToolResult{}, nil
		})

	env := NewContext(nil).Derive(nil).Derive(nil)
	u := leaf.Execute(context.Background(), env)

	assert.Equal(t, StatusLimitExceeded, u.Status())
	assert.False(t, called, "tool must not run after a limit halt")
	assert.Equal(t, 0.0, u.Metric("node_calls"))
}

func TestLeafExecuteDurationLimit(t *testing.T) {
	leaf := NewLeaf("slow", "shell", LimitPolicy{MaxDuration: 20 * time.Millisecond}, nil,
		func(ctx context.Context, _ map[string]any) (*ToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	u := leaf.Execute(context.Background(), NewContext(nil))
	assert.Equal(t, StatusLimitExceeded, u.Status())
}
