package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatesAddMetric(t *testing.T) {
	u := NewUpdates()
	u.AddMetric("tokens", 10)
	u.AddMetric("tokens", 5)
	assert.Equal(t, 15.0, u.Metric("tokens"))
	assert.Equal(t, 0.0, u.Metric("absent"))
}

func TestUpdatesMergeNamespacesOutputs(t *testing.T) {
	parent := NewUpdates()
	parent.SetOutput("own", "value")

	child := NewUpdates()
	child.SetOutput("text", "rendered")
	parent.Merge("render", child)

	v, ok := parent.Output("render.text")
	require.True(t, ok)
	assert.Equal(t, "rendered", v)
	_, ok = parent.Output("text")
	assert.False(t, ok, "child output must not land unnamespaced")
	_, ok = parent.Output("own")
	assert.True(t, ok)
}

func TestUpdatesMergeSumsMetrics(t *testing.T) {
	parent := NewUpdates()
	a := NewUpdates()
	a.AddMetric("tokens", 7)
	b := NewUpdates()
	b.AddMetric("tokens", 3)
	b.AddMetric("calls", 1)

	parent.Merge("a", a)
	parent.Merge("b", b)

	assert.Equal(t, 10.0, parent.Metric("tokens"))
	assert.Equal(t, 1.0, parent.Metric("calls"))
}

func TestUpdatesMergeOrderIndependent(t *testing.T) {
	mk := func() (*Updates, *Updates, *Updates) {
		a := NewUpdates()
		a.AddMetric("m", 1)
		b := NewUpdates()
		b.AddMetric("m", 2)
		c := NewUpdates()
		c.AddMetric("m", 4)
		return a, b, c
	}

	first := NewUpdates()
	a, b, c := mk()
	first.Merge("a", a)
	first.Merge("b", b)
	first.Merge("c", c)

	second := NewUpdates()
	a, b, c = mk()
	second.Merge("c", c)
	second.Merge("a", a)
	second.Merge("b", b)

	assert.Equal(t, first.Metric("m"), second.Metric("m"))
	assert.Equal(t, 7.0, first.Metric("m"))
}

func TestUpdatesMergeDoesNotTouchStatus(t *testing.T) {
	parent := NewUpdates()
	child := NewUpdates()
	child.SetStatus(StatusFailed)
	parent.Merge("child", child)
	assert.Equal(t, StatusOK, parent.Status())
}

func TestUpdatesSnapshotIsACopy(t *testing.T) {
	u := NewUpdates()
	u.AddMetric("m", 1)
	u.SetOutput("o", "v")
	snap := u.Snapshot()

	u.AddMetric("m", 1)
	u.SetOutput("o", "changed")

	assert.Equal(t, 1.0, snap.Metrics["m"])
	assert.Equal(t, "v", snap.Outputs["o"])
	assert.Equal(t, string(StatusOK), snap.Status)
}
