package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeepMergeMapsRecurse(t *testing.T) {
	base := map[string]any{
		"vars": map[string]any{"region": "eu", "tier": "dev"},
		"keep": 1,
	}
	override := map[string]any{
		"vars": map[string]any{"tier": "prod"},
	}

	out := DeepMerge(base, override)

	vars := out["vars"].(map[string]any)
	assert.Equal(t, "eu", vars["region"], "untouched nested key survives")
	assert.Equal(t, "prod", vars["tier"], "override wins on conflict")
	assert.Equal(t, 1, out["keep"])
}

func TestDeepMergeListsReplaceWholesale(t *testing.T) {
	base := map[string]any{"steps": []any{"a", "b", "c"}}
	override := map[string]any{"steps": []any{"x"}}

	out := DeepMerge(base, override)
	assert.Equal(t, []any{"x"}, out["steps"])
}

func TestDeepMergeScalarOverMap(t *testing.T) {
	base := map[string]any{"v": map[string]any{"nested": true}}
	override := map[string]any{"v": "flat"}

	out := DeepMerge(base, override)
	assert.Equal(t, "flat", out["v"], "type change in override replaces the base value")
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"m": map[string]any{"k": "base"}}
	override := map[string]any{"m": map[string]any{"k": "over"}}

	_ = DeepMerge(base, override)

	assert.Equal(t, "base", base["m"].(map[string]any)["k"])
	assert.Equal(t, "over", override["m"].(map[string]any)["k"])
}
