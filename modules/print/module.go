// Package print provides a debugging tool that echoes a message into its
// outputs and the log.
package print

import (
	"context"

	"github.com/vk/flowtree/internal/ctxlog"
	"github.com/vk/flowtree/internal/engine"
	"github.com/vk/flowtree/internal/registry"
)

// Input is the typed parameter contract for the print tool.
type Input struct {
	Message string `flow:"message,required"`
}

// Module registers the print tool.
type Module struct{}

// Register wires the tool into the registry under kind "print".
func (Module) Register(r *registry.Registry) {
	r.RegisterTool("print", &registry.RegisteredTool{
		NewInput: func() any { return new(Input) },
		Fn:       run,
	})
}

func run(ctx context.Context, input *Input) (*engine.ToolResult, error) {
	ctxlog.FromContext(ctx).Info("🖨️ "+input.Message, "tool", "print")
	return &engine.ToolResult{
		Outputs: map[string]any{"message": input.Message},
	}, nil
}
