package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesOutput(t *testing.T) {
	res, err := run(context.Background(), &Input{Command: "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Outputs["stdout"])
	assert.Equal(t, 0, res.Outputs["exit_code"])
	assert.Equal(t, 1.0, res.Metrics["commands_run"])
}

func TestRunNonZeroExitIsStructured(t *testing.T) {
	res, err := run(context.Background(), &Input{Command: "echo oops >&2; exit 3"})
	require.NoError(t, err, "a non-zero exit is a result, not a tool error")
	assert.Equal(t, 3, res.Outputs["exit_code"])
	assert.Equal(t, "oops\n", res.Outputs["stderr"])
}

func TestRunHonorsDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	res, err := run(context.Background(), &Input{
		Command: "pwd; printf %s \"$FLOW_TEST\"",
		Dir:     dir,
		Env:     map[string]string{"FLOW_TEST": "wired"},
	})
	require.NoError(t, err)
	stdout := res.Outputs["stdout"].(string)
	assert.Contains(t, stdout, dir)
	assert.Contains(t, stdout, "wired")
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := run(ctx, &Input{Command: "sleep 10"})
	if err == nil {
		assert.NotEqual(t, 0, res.Outputs["exit_code"])
	}
}
