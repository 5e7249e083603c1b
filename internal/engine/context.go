package engine

import "strings"

// Context is the hierarchically scoped read environment passed into every
// node execution. A derived context layers local bindings over a read-only
// back-reference to the context it was derived from; name lookup checks the
// local layer first and then walks the parent chain. A context is never
// mutated after derivation, so it needs no synchronization.
//
// Depth is threaded explicitly rather than inferred from the call stack, so
// that limit evaluation stays a pure function of values the owning node holds.
type Context struct {
	bindings map[string]any
	parent   *Context
	depth    int
}

// NewContext creates a root context from the supplied initial bindings.
func NewContext(bindings map[string]any) *Context {
	return &Context{bindings: copyBindings(bindings)}
}

// Derive creates a child context one level deeper, overlaying local bindings.
// The receiver is not modified.
func (c *Context) Derive(local map[string]any) *Context {
	return &Context{
		bindings: copyBindings(local),
		parent:   c,
		depth:    c.depth + 1,
	}
}

// Depth returns how many derivations separate this context from the root.
func (c *Context) Depth() int {
	return c.depth
}

// Lookup resolves a single name, local bindings first, then the parent chain.
func (c *Context) Lookup(name string) (any, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		if v, ok := cur.bindings[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Resolve resolves a dotted path such as "vars.greeting" or "render.text".
// The first segment is looked up through the context chain; the remaining
// segments navigate nested mappings.
func (c *Context) Resolve(path string) (any, bool) {
	parts := strings.Split(path, ".")
	v, ok := c.Lookup(parts[0])
	if !ok {
		return nil, false
	}
	return navigate(v, parts[1:])
}

func navigate(v any, parts []string) (any, bool) {
	for _, p := range parts {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

func copyBindings(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
