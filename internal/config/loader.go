package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk/flowtree/internal/ctxlog"
)

// YAMLLoader loads pipeline documents from YAML files.
type YAMLLoader struct{}

// NewYAMLLoader returns the standard document loader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

// Load reads each path, deep-merges the raw documents left to right, checks
// the format version, and decodes the result into the typed model. Per-kind
// defaults are folded into node params here so the rest of the system never
// sees partially-configured nodes.
func (l *YAMLLoader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no configuration paths given")
	}

	merged := map[string]any{}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		logger.Debug("Document parsed.", "path", path)
		merged = DeepMerge(merged, doc)
	}

	version, _ := merged["version"].(string)
	if version != Version {
		return nil, fmt.Errorf("unsupported document version %q, engine supports %q", version, Version)
	}

	// Round-trip through YAML to decode the merged mapping into the model.
	buf, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("re-encoding merged document: %w", err)
	}
	model := &Model{}
	if err := yaml.Unmarshal(buf, model); err != nil {
		return nil, fmt.Errorf("decoding merged document: %w", err)
	}
	if model.Pipeline == nil {
		return nil, fmt.Errorf("document has no pipeline")
	}

	applyDefaults(model.Pipeline, model.Defaults)
	logger.Debug("Configuration loaded into unified model.", "root", model.Pipeline.ID)
	return model, nil
}

func applyDefaults(spec *NodeSpec, defaults map[string]map[string]any) {
	if spec == nil {
		return
	}
	if kindDefaults, ok := defaults[spec.Kind]; ok {
		spec.Params = DeepMerge(kindDefaults, spec.Params)
	}
	for _, child := range spec.Nodes {
		applyDefaults(child, defaults)
	}
}
