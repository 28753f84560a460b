package bridgeerr

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_IsMatchesKind(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, Timeout, "call definition")

	assert.True(t, errors.Is(err, Timeout))
	assert.False(t, errors.Is(err, Internal))
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "call definition")
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, Timeout, "unused"))
}

func TestNewAndNewf(t *testing.T) {
	err := New(ValidationError, "missing field")
	assert.True(t, errors.Is(err, ValidationError))

	errf := Newf(ToolUnknown, "no tool named %q", "frobnicate")
	assert.True(t, errors.Is(errf, ToolUnknown))
	assert.Contains(t, errf.Error(), "frobnicate")
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf(New(ImporterConflict, "still imported"))
	assert.True(t, ok)
	assert.Equal(t, ImporterConflict, k)

	k, ok = KindOf(errors.New("plain error, no taxonomy"))
	assert.False(t, ok)
	assert.Equal(t, Internal, k)
}

func TestStackTrace(t *testing.T) {
	err := Wrap(pkgerrors.New("inner"), Internal, "outer")
	st := StackTrace(err)
	require.NotNil(t, st)
	assert.NotEmpty(t, st)
}

func TestStackTrace_NoStackTracer(t *testing.T) {
	assert.Nil(t, StackTrace(errors.New("no stack here")))
}
