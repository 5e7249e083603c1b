package config

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/flowtree/internal/engine"
)

// Version is the document format version this engine accepts. Loading
// rejects any other value.
const Version = "v2"

// Loader turns one or more document paths into a validated Model. Later
// documents deep-merge over earlier ones.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Model is the loaded, merged pipeline document.
type Model struct {
	Version  string                    `yaml:"version"`
	Vars     map[string]any            `yaml:"vars"`
	Defaults map[string]map[string]any `yaml:"defaults"`
	Pipeline *NodeSpec                 `yaml:"pipeline"`
}

// NodeSpec describes one node of the tree: a structural kind (pipeline,
// loop) or a tool-backed leaf kind.
type NodeSpec struct {
	ID        string         `yaml:"id"`
	Kind      string         `yaml:"kind"`
	Params    map[string]any `yaml:"params"`
	Bindings  map[string]any `yaml:"bindings"`
	DependsOn []string       `yaml:"depends_on"`
	Limits    *LimitSpec     `yaml:"limits"`
	OnFailure string         `yaml:"on_failure"`
	Parallel  bool           `yaml:"parallel"`
	Vars      map[string]any `yaml:"vars"`
	Nodes     []*NodeSpec    `yaml:"nodes"`
	Until     *ConditionSpec `yaml:"until"`
}

// LimitSpec is the declarative form of a LimitPolicy. Durations are Go
// duration strings ("30s", "2m").
type LimitSpec struct {
	MaxDepth      int    `yaml:"max_depth"`
	MaxIterations int    `yaml:"max_iterations"`
	MaxDuration   string `yaml:"max_duration"`
	MaxChildren   int    `yaml:"max_children"`
}

// Policy converts the spec into an engine policy.
func (l *LimitSpec) Policy() (engine.LimitPolicy, error) {
	if l == nil {
		return engine.LimitPolicy{}, nil
	}
	p := engine.LimitPolicy{
		MaxDepth:      l.MaxDepth,
		MaxIterations: l.MaxIterations,
		MaxChildren:   l.MaxChildren,
	}
	if l.MaxDuration != "" {
		d, err := time.ParseDuration(l.MaxDuration)
		if err != nil {
			return engine.LimitPolicy{}, fmt.Errorf("invalid max_duration %q: %w", l.MaxDuration, err)
		}
		p.MaxDuration = d
	}
	return p, nil
}

// ConditionSpec is the declarative loop termination predicate. Exactly one
// operator field must be set.
type ConditionSpec struct {
	Path        string `yaml:"path"`
	Equals      any    `yaml:"equals"`
	NotEquals   any    `yaml:"not_equals"`
	LessThan    any    `yaml:"less_than"`
	GreaterThan any    `yaml:"greater_than"`
}

// Condition converts the spec into an engine condition. Ambiguous or missing
// operators are construction-time errors.
func (c *ConditionSpec) Condition() (engine.Condition, error) {
	if c == nil {
		return engine.Condition{}, fmt.Errorf("loop requires an until condition")
	}
	cond := engine.Condition{Path: c.Path}
	set := 0
	if c.Equals != nil {
		cond.Op, cond.Value = engine.OpEquals, c.Equals
		set++
	}
	if c.NotEquals != nil {
		cond.Op, cond.Value = engine.OpNotEquals, c.NotEquals
		set++
	}
	if c.LessThan != nil {
		cond.Op, cond.Value = engine.OpLessThan, c.LessThan
		set++
	}
	if c.GreaterThan != nil {
		cond.Op, cond.Value = engine.OpGreaterThan, c.GreaterThan
		set++
	}
	if set != 1 {
		return engine.Condition{}, fmt.Errorf("until condition requires exactly one operator, got %d", set)
	}
	return cond, cond.Validate()
}

// FailurePolicy maps the document value onto the engine policy, defaulting
// to fail-fast.
func (s *NodeSpec) FailurePolicy() (engine.FailurePolicy, error) {
	switch s.OnFailure {
	case "", string(engine.FailFast):
		return engine.FailFast, nil
	case string(engine.ContinueOnFailure):
		return engine.ContinueOnFailure, nil
	default:
		return "", fmt.Errorf("node %q: unknown on_failure policy %q", s.ID, s.OnFailure)
	}
}
