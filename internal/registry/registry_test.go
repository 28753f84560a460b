package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Value string `json:"value"`
}

func echoHandler(_ context.Context, _ *ServiceContext, args json.RawMessage) (any, error) {
	var a echoArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return a.Value, nil
}

func TestBuilder_RegisterAndDispatch(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Register("echo", "echoes its input", echoArgs{}, CapNone, echoHandler))

	reg := b.Build()
	assert.Equal(t, []string{"echo"}, reg.Names())

	tool, ok := reg.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "echoes its input", tool.Description)
	require.NotNil(t, tool.Schema)

	result, err := reg.Dispatch(context.Background(), nil, "echo", json.RawMessage(`{"value":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

func TestBuilder_RejectsDuplicateName(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Register("echo", "first", echoArgs{}, CapNone, echoHandler))
	err := b.Register("echo", "second", echoArgs{}, CapNone, echoHandler)
	require.Error(t, err)
}

func TestRegistry_DispatchUnknownTool(t *testing.T) {
	reg := NewBuilder().Build()
	_, err := reg.Dispatch(context.Background(), nil, "does_not_exist", nil)
	require.Error(t, err)
}

func TestBuilder_Build_IsIndependentOfLaterRegisters(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Register("echo", "echoes", echoArgs{}, CapNone, echoHandler))
	reg := b.Build()

	// Registering on the builder after Build must not affect the already
	// frozen Registry.
	require.NoError(t, b.Register("second", "second tool", echoArgs{}, CapNone, echoHandler))
	assert.Equal(t, []string{"echo"}, reg.Names())
}

func TestBuilder_Register_NilArgsSampleSkipsSchema(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Register("noargs", "takes nothing", nil, CapNone, echoHandler))
	reg := b.Build()
	tool, ok := reg.Lookup("noargs")
	require.True(t, ok)
	assert.Nil(t, tool.Schema)
}
