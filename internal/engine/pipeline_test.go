package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTool counts invocations and remembers the order of node calls.
type recordingTool struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingTool) leaf(id string, result *ToolResult, err error) Child {
	return Child{Node: NewLeaf(id, "stub", LimitPolicy{}, nil,
		func(context.Context, map[string]any) (*ToolResult, error) {
			r.mu.Lock()
			r.calls = append(r.calls, id)
			r.mu.Unlock()
			return result, err
		})}
}

func (r *recordingTool) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func mustPipeline(t *testing.T, id string, limits LimitPolicy, children []Child, policy FailurePolicy, parallel bool) *PipelineNode {
	t.Helper()
	p, err := NewPipeline(id, limits, nil, children, policy, parallel)
	require.NoError(t, err)
	return p
}

func TestPipelineExecutesChildrenInDeclarationOrder(t *testing.T) {
	rec := &recordingTool{}
	p := mustPipeline(t, "root", LimitPolicy{}, []Child{
		rec.leaf("a", &ToolResult{Outputs: map[string]any{"v": 1}}, nil),
		rec.leaf("b", &ToolResult{Outputs: map[string]any{"v": 2}}, nil),
		rec.leaf("c", nil, nil),
	}, FailFast, false)

	u := p.Execute(context.Background(), NewContext(nil))

	assert.Equal(t, StatusOK, u.Status())
	assert.Equal(t, []string{"a", "b", "c"}, rec.order())
	v, ok := u.Output("a.v")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = u.Output("b.v")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestPipelineTopologicalOrderWithDeclarationTieBreak(t *testing.T) {
	rec := &recordingTool{}
	fetch := rec.leaf("fetch", nil, nil)
	render := rec.leaf("render", nil, nil)
	render.DependsOn = []string{"publish"}
	publish := rec.leaf("publish", nil, nil)
	publish.DependsOn = []string{"fetch"}

	p := mustPipeline(t, "root", LimitPolicy{}, []Child{render, publish, fetch}, FailFast, false)
	u := p.Execute(context.Background(), NewContext(nil))

	assert.Equal(t, StatusOK, u.Status())
	assert.Equal(t, []string{"fetch", "publish", "render"}, rec.order())
}

func TestPipelineFailFastDefault(t *testing.T) {
	rec := &recordingTool{}
	p := mustPipeline(t, "root", LimitPolicy{}, []Child{
		rec.leaf("one", nil, nil),
		rec.leaf("two", nil, errors.New("tool exploded")),
		rec.leaf("three", nil, nil),
	}, FailFast, false)

	u := p.Execute(context.Background(), NewContext(nil))

	assert.Equal(t, StatusFailed, u.Status())
	assert.Equal(t, []string{"one", "two"}, rec.order(), "third child must never execute")
	reason, ok := u.Output("two.error")
	require.True(t, ok)
	assert.Contains(t, reason, "tool exploded")
}

func TestPipelineContinueOnFailure(t *testing.T) {
	rec := &recordingTool{}
	p := mustPipeline(t, "root", LimitPolicy{}, []Child{
		rec.leaf("one", nil, nil),
		rec.leaf("two", nil, errors.New("tool exploded")),
		rec.leaf("three", &ToolResult{Outputs: map[string]any{"v": "present"}}, nil),
	}, ContinueOnFailure, false)

	u := p.Execute(context.Background(), NewContext(nil))

	// Failure is remembered even though iteration continued.
	assert.Equal(t, StatusFailed, u.Status())
	assert.Equal(t, []string{"one", "two", "three"}, rec.order())
	v, ok := u.Output("three.v")
	require.True(t, ok)
	assert.Equal(t, "present", v)
}

func TestPipelineMaxIterations(t *testing.T) {
	rec := &recordingTool{}
	children := []Child{
		rec.leaf("c1", nil, nil),
		rec.leaf("c2", nil, nil),
		rec.leaf("c3", nil, nil),
		rec.leaf("c4", nil, nil),
		rec.leaf("c5", nil, nil),
	}
	p := mustPipeline(t, "root", LimitPolicy{MaxIterations: 2}, children, FailFast, false)

	u := p.Execute(context.Background(), NewContext(nil))

	assert.Equal(t, StatusLimitExceeded, u.Status())
	assert.Equal(t, []string{"c1", "c2"}, rec.order(), "exactly two child executions")
	// Updates from the children that did run are preserved: the pipeline's
	// own call plus two leaf calls.
	assert.Equal(t, 3.0, u.Metric("node_calls"))
}

func TestPipelineHaltBeforeAnyWork(t *testing.T) {
	rec := &recordingTool{}
	deep := mustPipeline(t, "deep", LimitPolicy{MaxDepth: 1}, []Child{rec.leaf("b", nil, nil)}, FailFast, false)

	// The pipeline derives its local context, so executing at depth 1
	// already exceeds MaxDepth 1.
	u := deep.Execute(context.Background(), NewContext(nil).Derive(nil))

	assert.Equal(t, StatusLimitExceeded, u.Status())
	assert.Empty(t, rec.order(), "no children execute after a pre-work halt")
	assert.Equal(t, 0.0, u.Metric("node_calls"), "updates are empty apart from the halt reason")
}

func TestPipelineMaxChildren(t *testing.T) {
	rec := &recordingTool{}
	p := mustPipeline(t, "root", LimitPolicy{MaxChildren: 2}, []Child{
		rec.leaf("a", nil, nil),
		rec.leaf("b", nil, nil),
		rec.leaf("c", nil, nil),
	}, FailFast, false)

	u := p.Execute(context.Background(), NewContext(nil))

	assert.Equal(t, StatusLimitExceeded, u.Status())
	assert.Equal(t, []string{"a", "b"}, rec.order())
}

func TestPipelineChildPanicDoesNotEscape(t *testing.T) {
	panicky := Child{Node: NewLeaf("bad", "stub", LimitPolicy{}, nil,
		func(context.Context, map[string]any) (*ToolResult, error) {
			panic("child blew up")
		})}
	p := mustPipeline(t, "root", LimitPolicy{}, []Child{panicky}, FailFast, false)

	var u *Updates
	require.NotPanics(t, func() {
		u = p.Execute(context.Background(), NewContext(nil))
	})
	assert.Equal(t, StatusFailed, u.Status())
}

func TestPipelineNestedAggregation(t *testing.T) {
	rec := &recordingTool{}
	inner := mustPipeline(t, "inner", LimitPolicy{}, []Child{
		rec.leaf("leaf", &ToolResult{
			Outputs: map[string]any{"text": "deep"},
			Metrics: map[string]float64{"tokens": 5},
		}, nil),
	}, FailFast, false)

	outer := mustPipeline(t, "outer", LimitPolicy{}, []Child{{Node: inner}}, FailFast, false)
	u := outer.Execute(context.Background(), NewContext(nil))

	require.Equal(t, StatusOK, u.Status())
	v, ok := u.Output("inner.leaf.text")
	require.True(t, ok)
	assert.Equal(t, "deep", v)
	assert.Equal(t, 5.0, u.Metric("tokens"))
	// node_calls: inner pipeline + its leaf, plus the outer pipeline itself.
	assert.Equal(t, 3.0, u.Metric("node_calls"))
}

func TestPipelineSiblingContextIsolation(t *testing.T) {
	var second any
	writer := Child{
		Node: NewLeaf("writer", "stub", LimitPolicy{}, map[string]any{"v": "${name}"},
			okTool(nil, nil)),
		Bindings: map[string]any{"name": "local-to-writer"},
	}
	reader := Child{Node: NewLeaf("reader", "stub", LimitPolicy{}, map[string]any{"v": "${name}"},
		func(_ context.Context, params map[string]any) (*ToolResult, error) {
			second = params["v"]
			return &ToolResult{}, nil
		})}

	p := mustPipeline(t, "root", LimitPolicy{}, []Child{writer, reader}, FailFast, false)
	u := p.Execute(context.Background(), NewContext(map[string]any{"name": "root"}))

	require.Equal(t, StatusOK, u.Status())
	assert.Equal(t, "root", second, "sibling must not observe another child's local bindings")
}

func TestPipelineParallelStages(t *testing.T) {
	rec := &recordingTool{}
	a := rec.leaf("a", &ToolResult{Metrics: map[string]float64{"m": 1}}, nil)
	b := rec.leaf("b", &ToolResult{Metrics: map[string]float64{"m": 2}}, nil)
	last := rec.leaf("last", &ToolResult{Metrics: map[string]float64{"m": 4}}, nil)
	last.DependsOn = []string{"a", "b"}

	p := mustPipeline(t, "root", LimitPolicy{}, []Child{a, b, last}, FailFast, true)
	u := p.Execute(context.Background(), NewContext(nil))

	require.Equal(t, StatusOK, u.Status())
	order := rec.order()
	require.Len(t, order, 3)
	assert.Equal(t, "last", order[2], "dependent stage runs after its dependencies")
	assert.Equal(t, 7.0, u.Metric("m"), "metric totals independent of interleaving")
}

func TestPipelineParallelFailFastStopsLaterStages(t *testing.T) {
	rec := &recordingTool{}
	boom := rec.leaf("boom", nil, errors.New("nope"))
	after := rec.leaf("after", nil, nil)
	after.DependsOn = []string{"boom"}

	p := mustPipeline(t, "root", LimitPolicy{}, []Child{boom, after}, FailFast, true)
	u := p.Execute(context.Background(), NewContext(nil))

	assert.Equal(t, StatusFailed, u.Status())
	assert.Equal(t, []string{"boom"}, rec.order())
}

func TestNewPipelineRejectsBadDependencies(t *testing.T) {
	rec := &recordingTool{}
	t.Run("unknown reference", func(t *testing.T) {
		c := rec.leaf("a", nil, nil)
		c.DependsOn = []string{"ghost"}
		_, err := NewPipeline("root", LimitPolicy{}, nil, []Child{c}, FailFast, false)
		assert.ErrorContains(t, err, "unknown node")
	})

	t.Run("cycle", func(t *testing.T) {
		x := rec.leaf("x", nil, nil)
		x.DependsOn = []string{"y"}
		y := rec.leaf("y", nil, nil)
		y.DependsOn = []string{"x"}
		_, err := NewPipeline("root", LimitPolicy{}, nil, []Child{x, y}, FailFast, false)
		assert.ErrorContains(t, err, "cycle")
	})
}
