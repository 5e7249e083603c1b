package config

// DeepMerge merges override into base and returns the result without
// modifying either input. Mappings merge recursively; lists and scalars from
// the override replace the base value wholesale.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		bm, baseIsMap := out[k].(map[string]any)
		om, overrideIsMap := v.(map[string]any)
		if baseIsMap && overrideIsMap {
			out[k] = DeepMerge(bm, om)
			continue
		}
		out[k] = v
	}
	return out
}
