package engine

import (
	"sync"

	"github.com/vk/flowtree/internal/execlog"
)

// Status is the sole cross-node outcome signal.
type Status string

const (
	StatusOK            Status = "ok"
	StatusFailed        Status = "failed"
	StatusLimitExceeded Status = "limit_exceeded"
)

// Updates is the result accumulator owned by exactly one node execution.
// Metrics are mutated through AddMetric only, which is additive; that is the
// sole sanctioned metrics channel — there is no shared metrics state anywhere
// in the engine. Methods are safe for concurrent use so a pipeline running
// independent children in parallel can merge into one accumulator.
type Updates struct {
	mu      sync.Mutex
	metrics map[string]float64
	outputs map[string]any
	status  Status
}

// NewUpdates creates an empty accumulator with status ok.
func NewUpdates() *Updates {
	return &Updates{
		metrics: make(map[string]float64),
		outputs: make(map[string]any),
		status:  StatusOK,
	}
}

// AddMetric accumulates delta onto the named metric. Values are never
// overwritten or decremented through any other path.
func (u *Updates) AddMetric(key string, delta float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.metrics[key] += delta
}

// Metric returns the current value of a metric (zero if absent).
func (u *Updates) Metric(key string) float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.metrics[key]
}

// SetOutput records a named output value.
func (u *Updates) SetOutput(name string, v any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.outputs[name] = v
}

// Output returns a named output value.
func (u *Updates) Output(name string) (any, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	v, ok := u.outputs[name]
	return v, ok
}

// Outputs returns a copy of all outputs.
func (u *Updates) Outputs() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]any, len(u.outputs))
	for k, v := range u.outputs {
		out[k] = v
	}
	return out
}

// SetStatus sets the execution status.
func (u *Updates) SetStatus(s Status) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = s
}

// Status returns the execution status.
func (u *Updates) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// Merge folds a child's result into this accumulator: outputs are namespaced
// by the child identifier to avoid collisions, metrics are summed. Merge is
// associative and commutative with respect to metric totals, so the order in
// which sibling results arrive does not affect aggregates. The child's status
// is deliberately not merged; the caller decides how a child outcome affects
// its own.
func (u *Updates) Merge(childID string, child *Updates) {
	childMetrics := make(map[string]float64, len(child.metrics))
	childOutputs := make(map[string]any, len(child.outputs))
	child.mu.Lock()
	for k, v := range child.metrics {
		childMetrics[k] = v
	}
	for k, v := range child.outputs {
		childOutputs[k] = v
	}
	child.mu.Unlock()

	u.mu.Lock()
	defer u.mu.Unlock()
	for k, v := range childMetrics {
		u.metrics[k] += v
	}
	for k, v := range childOutputs {
		u.outputs[childID+"."+k] = v
	}
}

// Snapshot captures the accumulator for the execution log.
func (u *Updates) Snapshot() *execlog.UpdatesSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	snap := &execlog.UpdatesSnapshot{
		Metrics: make(map[string]float64, len(u.metrics)),
		Outputs: make(map[string]any, len(u.outputs)),
		Status:  string(u.status),
	}
	for k, v := range u.metrics {
		snap.Metrics[k] = v
	}
	for k, v := range u.outputs {
		snap.Outputs[k] = v
	}
	return snap
}
