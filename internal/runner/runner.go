// Package runner is the minimal top-level driver: it owns the root context
// and the single Execute call on the root node. All recursion, limit, and
// merge behavior lives behind the Node contract so it stays testable without
// this package.
package runner

import (
	"context"

	"github.com/vk/flowtree/internal/ctxlog"
	"github.com/vk/flowtree/internal/engine"
	"github.com/vk/flowtree/internal/execlog"
)

// Result is what one complete run produces: the root node's final Updates and
// the execution trace.
type Result struct {
	Updates *engine.Updates
	Log     *execlog.Log
}

// Run builds the root context from the initial bindings, executes the root
// node exactly once, flushes the trace, and returns both. The trace log may
// be nil, in which case the run is simply unrecorded.
func Run(ctx context.Context, root engine.Node, initial map[string]any, log *execlog.Log) *Result {
	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Starting run", "root", root.ID(), "run_id", log.RunID())

	ctx = execlog.WithLog(ctx, log)
	rootCtx := engine.NewContext(initial)
	updates := root.Execute(ctx, rootCtx)
	log.Flush()

	logger.Info("🏁 Run finished", "status", updates.Status())
	return &Result{Updates: updates, Log: log}
}
