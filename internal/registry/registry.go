// Package registry maps declarative node kinds onto Go constructors and tool
// handlers for a single application instance. Construction from configuration
// goes through registered factories and tagged kinds, never runtime lookup of
// arbitrary code.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/vk/flowtree/internal/engine"
)

// Module is the interface all tool modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredTool holds the Go parts of one leaf tool: an optional typed input
// constructor and the handler function. Fn must have the signature
//
//	func(ctx context.Context, input *T) (*engine.ToolResult, error)
//
// where *T is the value NewInput returns. With NewInput nil, Fn takes the raw
// parameter map instead of a typed input.
type RegisteredTool struct {
	NewInput func() any
	Fn       any
}

// Registry holds all registered tool handlers for one application instance.
type Registry struct {
	tools map[string]*RegisteredTool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*RegisteredTool)}
}

// RegisterTool registers a leaf tool handler under a kind name. Registering
// the same name twice is a programmer error.
func (r *Registry) RegisterTool(name string, tool *RegisteredTool) {
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tool handler with name '%s' already registered", name))
	}
	slog.Debug("Registering tool handler.", "name", name)
	r.tools[name] = tool
}

// Tool returns the handler registered for a kind, if any.
func (r *Registry) Tool(name string) (*RegisteredTool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Kinds returns the registered tool kind names.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Invoke decodes resolved parameters into the tool's input struct and calls
// the handler. Decode failures are reported as tool errors so the leaf can
// convert them into its failure status.
func (t *RegisteredTool) Invoke(ctx context.Context, params map[string]any) (*engine.ToolResult, error) {
	if t.NewInput == nil {
		fn, ok := t.Fn.(func(context.Context, map[string]any) (*engine.ToolResult, error))
		if !ok {
			return nil, fmt.Errorf("tool handler has no input struct and an unsupported signature")
		}
		return fn(ctx, params)
	}

	input := t.NewInput()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           input,
		WeaklyTypedInput: true,
		TagName:          "flow",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(params); err != nil {
		return nil, fmt.Errorf("decoding tool parameters: %w", err)
	}

	fn := reflect.ValueOf(t.Fn)
	results := fn.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(input)})
	res, _ := results[0].Interface().(*engine.ToolResult)
	if errv := results[1].Interface(); errv != nil {
		return res, errv.(error)
	}
	return res, nil
}

// InputType returns the reflect type of the tool's input struct, or nil when
// the tool takes the raw parameter map.
func (t *RegisteredTool) InputType() reflect.Type {
	if t.NewInput == nil {
		return nil
	}
	return reflect.TypeOf(t.NewInput()).Elem()
}
