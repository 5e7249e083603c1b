// Package template provides the template-rendering tool: it renders a
// text/template source against the node's resolved bindings.
package template

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/vk/flowtree/internal/engine"
	"github.com/vk/flowtree/internal/registry"
)

// Input is the typed parameter contract for the template tool.
type Input struct {
	Template string         `flow:"template,required"`
	Vars     map[string]any `flow:"vars"`
}

// Module registers the template tool.
type Module struct{}

// Register wires the tool into the registry under kind "template".
func (Module) Register(r *registry.Registry) {
	r.RegisterTool("template", &registry.RegisteredTool{
		NewInput: func() any { return new(Input) },
		Fn:       render,
	})
}

func render(_ context.Context, input *Input) (*engine.ToolResult, error) {
	tmpl, err := template.New("node").Option("missingkey=error").Parse(input.Template)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, input.Vars); err != nil {
		return nil, fmt.Errorf("rendering template: %w", err)
	}
	return &engine.ToolResult{
		Outputs: map[string]any{"text": out.String()},
		Metrics: map[string]float64{"rendered_bytes": float64(out.Len())},
	}, nil
}
