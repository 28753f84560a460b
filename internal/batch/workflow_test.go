package batch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ResolvesInputAndPriorStepResults(t *testing.T) {
	var seenArgs []map[string]any
	dispatch := func(_ context.Context, tool string, args map[string]any, dryRun bool) (any, error) {
		seenArgs = append(seenArgs, args)
		if tool == "find_definition" {
			return map[string]any{"line": float64(42)}, nil
		}
		return "ok", nil
	}

	wf := Workflow{
		Name: "rename-flow",
		Steps: []WorkflowStep{
			{ID: "find", Tool: "find_definition", ArgsTmpl: json.RawMessage(`{"filePath": {{input.filePath}}}`)},
			{ID: "rename", Tool: "rename_symbol", ArgsTmpl: json.RawMessage(`{"line": {{find.result.line}}, "newName": {{input.newName}}}`)},
		},
	}

	results, err := Run(context.Background(), wf, map[string]any{"filePath": "main.go", "newName": "Foo"}, dispatch)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)

	require.Len(t, seenArgs, 2)
	assert.Equal(t, "main.go", seenArgs[0]["filePath"])
	assert.Equal(t, float64(42), seenArgs[1]["line"])
	assert.Equal(t, "Foo", seenArgs[1]["newName"])
}

func TestRun_UnresolvedPathFailsBeforeDispatch(t *testing.T) {
	called := false
	dispatch := func(context.Context, string, map[string]any, bool) (any, error) {
		called = true
		return nil, nil
	}

	wf := Workflow{Steps: []WorkflowStep{
		{ID: "step1", Tool: "noop", ArgsTmpl: json.RawMessage(`{"x": {{input.missing.deeper}}}`)},
	}}

	_, err := Run(context.Background(), wf, map[string]any{"present": true}, dispatch)
	require.Error(t, err)
	assert.False(t, called)
}

func TestRun_StopsAfterStepFailureButReturnsNoTopLevelError(t *testing.T) {
	dispatch := func(_ context.Context, tool string, _ map[string]any, _ bool) (any, error) {
		if tool == "bad" {
			return nil, assert.AnError
		}
		return "ok", nil
	}

	wf := Workflow{Steps: []WorkflowStep{
		{ID: "a", Tool: "bad", ArgsTmpl: json.RawMessage(`{}`)},
		{ID: "b", Tool: "good", ArgsTmpl: json.RawMessage(`{}`)},
	}}

	results, err := Run(context.Background(), wf, nil, dispatch)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestResolveIntoArgs(t *testing.T) {
	out, err := ResolveIntoArgs([]byte(`{"a":1}`), "b", "value")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":"value"}`, string(out))
}
