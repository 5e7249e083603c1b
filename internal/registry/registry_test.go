package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/flowtree/internal/engine"
)

type echoInput struct {
	Message string `flow:"message,required"`
	Repeat  int    `flow:"repeat"`
}

func echoTool() *RegisteredTool {
	return &RegisteredTool{
		NewInput: func() any { return &echoInput{} },
		Fn: func(_ context.Context, in *echoInput) (*engine.ToolResult, error) {
			if in.Message == "fail" {
				return nil, errors.New("asked to fail")
			}
			n := in.Repeat
			if n == 0 {
				n = 1
			}
			out := ""
			for i := 0; i < n; i++ {
				out += in.Message
			}
			return &engine.ToolResult{Outputs: map[string]any{"echo": out}}, nil
		},
	}
}

func TestRegisterToolPanicsOnDuplicate(t *testing.T) {
	r := New()
	r.RegisterTool("echo", echoTool())
	assert.PanicsWithValue(t, "tool handler with name 'echo' already registered", func() {
		r.RegisterTool("echo", echoTool())
	})
}

func TestToolLookup(t *testing.T) {
	r := New()
	r.RegisterTool("echo", echoTool())

	_, ok := r.Tool("echo")
	assert.True(t, ok)
	_, ok = r.Tool("absent")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"echo"}, r.Kinds())
}

func TestInvokeDecodesTypedInput(t *testing.T) {
	tool := echoTool()

	res, err := tool.Invoke(context.Background(), map[string]any{"message": "hi", "repeat": 2})
	require.NoError(t, err)
	assert.Equal(t, "hihi", res.Outputs["echo"])
}

func TestInvokeWeaklyTypedDecode(t *testing.T) {
	tool := echoTool()

	// YAML scalars often arrive as strings; decoding is tolerant of that.
	res, err := tool.Invoke(context.Background(), map[string]any{"message": "a", "repeat": "3"})
	require.NoError(t, err)
	assert.Equal(t, "aaa", res.Outputs["echo"])
}

func TestInvokePropagatesHandlerError(t *testing.T) {
	tool := echoTool()
	_, err := tool.Invoke(context.Background(), map[string]any{"message": "fail"})
	assert.ErrorContains(t, err, "asked to fail")
}

func TestInvokeRawMapTool(t *testing.T) {
	tool := &RegisteredTool{
		Fn: func(_ context.Context, params map[string]any) (*engine.ToolResult, error) {
			return &engine.ToolResult{Outputs: params}, nil
		},
	}
	res, err := tool.Invoke(context.Background(), map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", res.Outputs["k"])

	bad := &RegisteredTool{Fn: func() {}}
	_, err = bad.Invoke(context.Background(), nil)
	assert.ErrorContains(t, err, "unsupported signature")
}

func TestInputType(t *testing.T) {
	assert.Equal(t, "echoInput", echoTool().InputType().Name())
	raw := &RegisteredTool{Fn: func(context.Context, map[string]any) (*engine.ToolResult, error) { return nil, nil }}
	assert.Nil(t, raw.InputType())
}
