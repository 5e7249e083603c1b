package app

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/flowtree/internal/ctxlog"
	"github.com/vk/flowtree/internal/engine"
	"github.com/vk/flowtree/internal/execlog"
	"github.com/vk/flowtree/internal/runner"
)

// Run executes the loaded pipeline once and returns its final status. The
// returned error covers infrastructure problems only (e.g. an unwritable
// trace file); workflow failure is expressed through the status.
func (a *App) Run(ctx context.Context, appConfig *Config) (engine.Status, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if appConfig.HealthcheckPort > 0 {
		a.startHealthcheckServer(appConfig.HealthcheckPort)
	}

	a.logger.Debug("Building node tree from config model...")
	root, err := a.registry.Build(a.model.Pipeline)
	if err != nil {
		return engine.StatusFailed, fmt.Errorf("failed to build node tree: %w", err)
	}

	log := execlog.New()
	var sink *os.File
	if appConfig.TraceOut != "" {
		sink, err = os.Create(appConfig.TraceOut)
		if err != nil {
			return engine.StatusFailed, fmt.Errorf("failed to create trace file: %w", err)
		}
		defer sink.Close()
		log, err = execlog.NewWithSink(sink)
		if err != nil {
			return engine.StatusFailed, fmt.Errorf("failed to initialize trace stream: %w", err)
		}
	}

	initial := map[string]any{"vars": a.model.Vars}
	if len(appConfig.Inputs) > 0 {
		inputs := make(map[string]any, len(appConfig.Inputs))
		for k, v := range appConfig.Inputs {
			inputs[k] = v
		}
		initial["inputs"] = inputs
	}

	result := runner.Run(ctx, root, initial, log)
	a.metrics.observe(result.Log.Entries())

	status := result.Updates.Status()
	if appConfig.TraceOut != "" {
		a.logger.Info("Execution trace written.", "path", appConfig.TraceOut, "run_id", result.Log.RunID())
	}
	a.logger.Info("Final status.", "status", status, "metrics", result.Updates.Snapshot().Metrics)

	a.logger.Debug("App.Run method finished.")
	return status, nil
}
