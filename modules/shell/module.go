// Package shell provides the shell-execution tool. A non-zero exit code is a
// structured result, not a tool error, so pipelines can inspect it and
// decide; only a failure to start the process at all is reported as an error.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/vk/flowtree/internal/ctxlog"
	"github.com/vk/flowtree/internal/engine"
	"github.com/vk/flowtree/internal/registry"
)

// Input is the typed parameter contract for the shell tool.
type Input struct {
	Command string            `flow:"command,required"`
	Dir     string            `flow:"dir"`
	Env     map[string]string `flow:"env"`
}

// Module registers the shell tool.
type Module struct{}

// Register wires the tool into the registry under kind "shell".
func (Module) Register(r *registry.Registry) {
	r.RegisterTool("shell", &registry.RegisteredTool{
		NewInput: func() any { return new(Input) },
		Fn:       run,
	})
}

func run(ctx context.Context, input *Input) (*engine.ToolResult, error) {
	logger := ctxlog.FromContext(ctx).With("tool", "shell")
	logger.Debug("Running command.", "command", input.Command)

	cmd := exec.CommandContext(ctx, "sh", "-c", input.Command)
	cmd.Dir = input.Dir
	for k, v := range input.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("starting command: %w", err)
		}
		exitCode = exitErr.ExitCode()
		logger.Warn("Command exited non-zero.", "exit_code", exitCode)
	}

	return &engine.ToolResult{
		Outputs: map[string]any{
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
			"exit_code": exitCode,
		},
		Metrics: map[string]float64{"commands_run": 1},
	}, nil
}
