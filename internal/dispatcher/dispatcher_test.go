package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atworkflow/engine/internal/runtime"
)

func TestRegisterAndDispatch(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", func(_ context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		return runtime.HandlerOutput{Handle: "out", Output: in.Input}
	})

	assert.True(t, r.IsRegistered("echo"))

	out, err := r.Dispatch(context.Background(), "echo", &runtime.ExecutionContext{}, runtime.HandlerInput{Input: map[string]interface{}{"x": 1}})
	require.NoError(t, err)
	assert.Equal(t, "out", out.Handle)
	assert.Equal(t, 1, out.Output["x"])
}

func TestDispatchUnknownNodeTypeErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), "does_not_exist", &runtime.ExecutionContext{}, runtime.HandlerInput{})
	assert.Error(t, err)
}

func TestRegisterReplacesExistingHandler(t *testing.T) {
	r := NewRegistry()
	r.Register("t", func(_ context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		return runtime.HandlerOutput{Handle: "first"}
	})
	r.Register("t", func(_ context.Context, _ *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput {
		return runtime.HandlerOutput{Handle: "second"}
	})

	out, err := r.Dispatch(context.Background(), "t", &runtime.ExecutionContext{}, runtime.HandlerInput{})
	require.NoError(t, err)
	assert.Equal(t, "second", out.Handle)
}
