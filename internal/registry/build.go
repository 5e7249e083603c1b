package registry

import (
	"context"
	"fmt"

	"github.com/vk/flowtree/internal/config"
	"github.com/vk/flowtree/internal/engine"
)

// Build constructs the executable node tree from a validated spec tree.
// Structural kinds (pipeline, loop) recurse into their children; every other
// kind must name a registered tool and becomes a leaf. Children are owned
// exclusively by their parent, so the result is a tree by construction.
func (r *Registry) Build(spec *config.NodeSpec) (engine.Node, error) {
	switch spec.Kind {
	case engine.KindPipeline:
		return r.buildPipeline(spec)
	case engine.KindLoop:
		return r.buildLoop(spec)
	default:
		return r.buildLeaf(spec)
	}
}

func (r *Registry) buildPipeline(spec *config.NodeSpec) (engine.Node, error) {
	limits, err := spec.Limits.Policy()
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", spec.ID, err)
	}
	policy, err := spec.FailurePolicy()
	if err != nil {
		return nil, err
	}

	children := make([]engine.Child, 0, len(spec.Nodes))
	for _, childSpec := range spec.Nodes {
		child, err := r.Build(childSpec)
		if err != nil {
			return nil, err
		}
		children = append(children, engine.Child{
			Node:      child,
			Bindings:  childSpec.Bindings,
			DependsOn: childSpec.DependsOn,
		})
	}

	node, err := engine.NewPipeline(spec.ID, limits, spec.Vars, children, policy, spec.Parallel)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", spec.ID, err)
	}
	return node, nil
}

func (r *Registry) buildLoop(spec *config.NodeSpec) (engine.Node, error) {
	limits, err := spec.Limits.Policy()
	if err != nil {
		return nil, fmt.Errorf("loop %q: %w", spec.ID, err)
	}
	cond, err := spec.Until.Condition()
	if err != nil {
		return nil, fmt.Errorf("loop %q: %w", spec.ID, err)
	}

	// The loop body is an implicit pipeline over the loop's children.
	bodySpec := &config.NodeSpec{
		ID:        spec.ID + ".body",
		Kind:      engine.KindPipeline,
		Vars:      spec.Vars,
		Nodes:     spec.Nodes,
		OnFailure: spec.OnFailure,
		Parallel:  spec.Parallel,
	}
	body, err := r.buildPipeline(bodySpec)
	if err != nil {
		return nil, err
	}
	return engine.NewLoop(spec.ID, limits, body, cond)
}

func (r *Registry) buildLeaf(spec *config.NodeSpec) (engine.Node, error) {
	tool, ok := r.Tool(spec.Kind)
	if !ok {
		return nil, fmt.Errorf("node %q: unknown kind %q", spec.ID, spec.Kind)
	}
	limits, err := spec.Limits.Policy()
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", spec.ID, err)
	}
	run := func(ctx context.Context, params map[string]any) (*engine.ToolResult, error) {
		return tool.Invoke(ctx, params)
	}
	return engine.NewLeaf(spec.ID, spec.Kind, limits, spec.Params, run), nil
}
