// Package schema performs construction-time validation of a loaded pipeline
// model against the registered tools. Validation failures are configuration
// errors raised before any execution begins, never runtime statuses.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/flowtree/internal/config"
	"github.com/vk/flowtree/internal/ctxlog"
	"github.com/vk/flowtree/internal/dag"
	"github.com/vk/flowtree/internal/engine"
	"github.com/vk/flowtree/internal/registry"
)

// Validate walks the spec tree and checks structural shape, kind resolution,
// dependency edges, loop conditions, limit specs, and parameter parity
// between each leaf and its registered tool's input struct.
func Validate(ctx context.Context, model *config.Model, r *registry.Registry) error {
	logger := ctxlog.FromContext(ctx)
	if model.Pipeline == nil {
		return fmt.Errorf("document has no pipeline")
	}

	var errs []string
	walk(model.Pipeline, r, map[string]bool{}, &errs)
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Configuration validation passed.")
	return nil
}

func walk(spec *config.NodeSpec, r *registry.Registry, ancestors map[string]bool, errs *[]string) {
	if spec.ID == "" {
		*errs = append(*errs, "node with empty id")
		return
	}
	// Reusing an ancestor's id would make the trace ambiguous and is the
	// declarative shape a self-referential inclusion would take.
	if ancestors[spec.ID] {
		*errs = append(*errs, fmt.Sprintf("node %q: id already used by an enclosing node", spec.ID))
		return
	}

	if _, err := spec.Limits.Policy(); err != nil {
		*errs = append(*errs, fmt.Sprintf("node %q: %v", spec.ID, err))
	}
	if _, err := spec.FailurePolicy(); err != nil {
		*errs = append(*errs, err.Error())
	}

	switch spec.Kind {
	case engine.KindPipeline:
		validateComposite(spec, errs)
		if spec.Until != nil {
			*errs = append(*errs, fmt.Sprintf("pipeline %q: until is only valid on loop nodes", spec.ID))
		}
	case engine.KindLoop:
		validateComposite(spec, errs)
		if _, err := spec.Until.Condition(); err != nil {
			*errs = append(*errs, fmt.Sprintf("loop %q: %v", spec.ID, err))
		}
	default:
		validateLeaf(spec, r, errs)
	}

	if len(spec.Nodes) > 0 {
		ancestors[spec.ID] = true
		for _, child := range spec.Nodes {
			walk(child, r, ancestors, errs)
		}
		delete(ancestors, spec.ID)
	}
}

func validateComposite(spec *config.NodeSpec, errs *[]string) {
	if len(spec.Nodes) == 0 {
		*errs = append(*errs, fmt.Sprintf("%s %q: requires at least one child node", spec.Kind, spec.ID))
		return
	}
	ids := make([]string, len(spec.Nodes))
	deps := make(map[string][]string)
	for i, child := range spec.Nodes {
		ids[i] = child.ID
		if len(child.DependsOn) > 0 {
			deps[child.ID] = child.DependsOn
		}
	}
	if _, err := dag.Order(ids, deps); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s %q: %v", spec.Kind, spec.ID, err))
	}
}

func validateLeaf(spec *config.NodeSpec, r *registry.Registry, errs *[]string) {
	if len(spec.Nodes) > 0 {
		*errs = append(*errs, fmt.Sprintf("node %q: kind %q cannot have child nodes", spec.ID, spec.Kind))
	}
	if spec.Until != nil {
		*errs = append(*errs, fmt.Sprintf("node %q: until is only valid on loop nodes", spec.ID))
	}
	tool, ok := r.Tool(spec.Kind)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("node %q: unknown kind %q", spec.ID, spec.Kind))
		return
	}
	validateParams(spec, tool, errs)
}

// validateParams performs a parity check between the declared parameters and
// the tool's Go input struct, in both directions: unknown parameter names are
// rejected, and fields tagged required must be supplied.
func validateParams(spec *config.NodeSpec, tool *registry.RegisteredTool, errs *[]string) {
	inputType := tool.InputType()
	if inputType == nil {
		return
	}

	declared := make(map[string]bool)
	required := make(map[string]bool)
	for i := 0; i < inputType.NumField(); i++ {
		field := inputType.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("flow")
		parts := strings.Split(tag, ",")
		name := parts[0]
		if name == "" || name == "-" {
			continue
		}
		declared[name] = true
		for _, opt := range parts[1:] {
			if opt == "required" {
				required[name] = true
			}
		}
	}

	for name := range spec.Params {
		if !declared[name] {
			*errs = append(*errs, fmt.Sprintf("node %q: kind %q does not accept parameter %q", spec.ID, spec.Kind, name))
		}
	}
	for name := range required {
		if _, ok := spec.Params[name]; !ok {
			*errs = append(*errs, fmt.Sprintf("node %q: kind %q requires parameter %q", spec.ID, spec.Kind, name))
		}
	}
}
