package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/flowtree/internal/ctxlog"
	"github.com/vk/flowtree/internal/dag"
)

// KindPipeline is the structural node kind for composite pipelines.
const KindPipeline = "pipeline"

// PipelineNode executes an ordered collection of child nodes as one logical
// unit while itself satisfying the Node contract, so pipelines nest
// arbitrarily. Children run in declaration order, or in stable topological
// order (declaration-order tie-break) when depends_on edges are present.
type PipelineNode struct {
	id        string
	limits    LimitPolicy
	vars      map[string]any
	children  []Child
	order     []int
	stages    [][]int
	onFailure FailurePolicy
	parallel  bool
}

// NewPipeline constructs a composite node. Child ordering is fixed here once,
// so repeated executions (e.g. under a loop) are reproducible. Unknown or
// cyclic dependencies are construction-time errors.
func NewPipeline(id string, limits LimitPolicy, vars map[string]any, children []Child, onFailure FailurePolicy, parallel bool) (*PipelineNode, error) {
	ids := make([]string, len(children))
	deps := make(map[string][]string, len(children))
	for i, c := range children {
		ids[i] = c.Node.ID()
		if len(c.DependsOn) > 0 {
			deps[ids[i]] = c.DependsOn
		}
	}
	order, err := dag.Order(ids, deps)
	if err != nil {
		return nil, err
	}
	stages, err := dag.Stages(ids, deps)
	if err != nil {
		return nil, err
	}
	if onFailure == "" {
		onFailure = FailFast
	}
	return &PipelineNode{
		id:        id,
		limits:    limits,
		vars:      vars,
		children:  children,
		order:     order,
		stages:    stages,
		onFailure: onFailure,
		parallel:  parallel,
	}, nil
}

func (n *PipelineNode) ID() string   { return n.id }
func (n *PipelineNode) Kind() string { return KindPipeline }

// EvaluateLimits applies the pipeline's own policy to its loop counters.
func (n *PipelineNode) EvaluateLimits(st IterationState) Decision {
	return n.limits.Evaluate(st)
}

// Execute drives the recursion: derive the pipeline-local context, check
// limits, then for each child in order re-check limits, derive the child
// context, execute, and merge the returned Updates immediately. The final
// status is failed if any child failed, else limit_exceeded if this node's
// own policy halted the iteration, else ok.
func (n *PipelineNode) Execute(ctx context.Context, env *Context) (u *Updates) {
	logger := ctxlog.FromContext(ctx).With("node", n.id, "kind", KindPipeline)
	span, ctx := beginSpan(ctx, n.id, KindPipeline)
	u = NewUpdates()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline execution panicked.", "cause", r)
			u = failure(u, recovered(r))
		}
		span.End(string(u.Status()), u.Snapshot())
	}()

	local := env.Derive(resolveBindings(env, n.vars))
	if d := n.EvaluateLimits(IterationState{Depth: local.Depth()}); d.Halt {
		logger.Warn("Limit reached before executing children.", "reason", d.Reason)
		return limitHalt(u, d.Reason)
	}
	u.AddMetric("node_calls", 1)

	logger.Info("▶️ Starting pipeline", "children", len(n.children), "parallel", n.parallel)
	var anyFailed bool
	var haltReason string
	if n.parallel {
		anyFailed, haltReason = n.runStages(ctx, local, u)
	} else {
		anyFailed, haltReason = n.runSequential(ctx, local, u)
	}

	switch {
	case anyFailed:
		u.SetStatus(StatusFailed)
		logger.Warn("🏁 Pipeline finished with failures.")
	case haltReason != "":
		limitHalt(u, haltReason)
		logger.Warn("🏁 Pipeline halted by its limit policy.", "reason", haltReason)
	default:
		logger.Info("🏁 Pipeline finished")
	}
	return u
}

func (n *PipelineNode) runSequential(ctx context.Context, local *Context, u *Updates) (anyFailed bool, haltReason string) {
	logger := ctxlog.FromContext(ctx).With("node", n.id)
	start := time.Now()
	iterations, executed := 0, 0

	for _, idx := range n.order {
		child := n.children[idx]
		st := IterationState{
			Depth:      local.Depth(),
			Iterations: iterations,
			Children:   executed,
			Elapsed:    time.Since(start),
		}
		if d := n.EvaluateLimits(st); d.Halt {
			return anyFailed, d.Reason
		}

		cu := n.executeChild(ctx, local, child)
		iterations++
		executed++
		u.Merge(child.Node.ID(), cu)

		switch cu.Status() {
		case StatusFailed:
			anyFailed = true
			if n.onFailure == FailFast {
				logger.Warn("Child failed, stopping pipeline.", "child", child.Node.ID())
				return anyFailed, ""
			}
			logger.Warn("Child failed, continuing per policy.", "child", child.Node.ID())
		case StatusLimitExceeded:
			// The child's own budget tripped. That is its local decision; it
			// is visible in the merged outputs and does not halt this node.
			logger.Warn("Child halted on its own limit.", "child", child.Node.ID())
		}
	}
	return anyFailed, ""
}

// runStages executes dependency levels in order, children within one level
// concurrently. The merge into the shared accumulator is serialized by the
// accumulator's own lock, and metric merge is commutative, so aggregate
// totals do not depend on goroutine interleaving.
func (n *PipelineNode) runStages(ctx context.Context, local *Context, u *Updates) (anyFailed bool, haltReason string) {
	logger := ctxlog.FromContext(ctx).With("node", n.id)
	start := time.Now()
	iterations, executed := 0, 0
	var mu sync.Mutex

	for _, stage := range n.stages {
		var launch []Child
		for _, idx := range stage {
			st := IterationState{
				Depth:      local.Depth(),
				Iterations: iterations,
				Children:   executed,
				Elapsed:    time.Since(start),
			}
			if d := n.EvaluateLimits(st); d.Halt {
				haltReason = d.Reason
				break
			}
			launch = append(launch, n.children[idx])
			iterations++
			executed++
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, child := range launch {
			child := child
			g.Go(func() error {
				cu := n.executeChild(gctx, local, child)
				u.Merge(child.Node.ID(), cu)
				if cu.Status() == StatusFailed {
					mu.Lock()
					anyFailed = true
					mu.Unlock()
					logger.Warn("Child failed.", "child", child.Node.ID())
				}
				return nil
			})
		}
		// Children report outcomes through Updates, not errors.
		_ = g.Wait()

		if haltReason != "" {
			return anyFailed, haltReason
		}
		if anyFailed && n.onFailure == FailFast {
			logger.Warn("Stage had failures, stopping pipeline.")
			return anyFailed, ""
		}
	}
	return anyFailed, ""
}

// executeChild derives the child's context and runs it, catching any panic a
// non-conforming node might let escape. Failure communication between nodes
// is exclusively the returned status.
func (n *PipelineNode) executeChild(ctx context.Context, local *Context, child Child) (cu *Updates) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Child execution panicked.", "child", child.Node.ID(), "cause", r)
			cu = failure(NewUpdates(), recovered(r))
		}
	}()
	childCtx := local.Derive(resolveBindings(local, child.Bindings))
	return child.Node.Execute(ctx, childCtx)
}
