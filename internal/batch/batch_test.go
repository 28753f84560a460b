package batch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingDispatch(calls *[]string, mu *sync.Mutex, fail map[string]bool) Dispatch {
	return func(_ context.Context, tool string, args map[string]any, _ bool) (any, error) {
		mu.Lock()
		*calls = append(*calls, tool)
		mu.Unlock()
		if fail[tool] {
			return nil, errors.New("simulated failure: " + tool)
		}
		return args, nil
	}
}

func TestExecuteSequential_StopsOnErrorByDefault(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	e := New(recordingDispatch(&calls, &mu, map[string]bool{"b": true}), nil)

	ops := []Operation{{Tool: "a", ID: "1"}, {Tool: "b", ID: "2"}, {Tool: "c", ID: "3"}}
	results, err := e.Execute(context.Background(), ops, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.True(t, results[2].Skipped)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestExecuteSequential_ContinuesWhenStopOnErrorFalse(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	e := New(recordingDispatch(&calls, &mu, map[string]bool{"b": true}), nil)

	ops := []Operation{{Tool: "a"}, {Tool: "b"}, {Tool: "c"}}
	results, err := e.Execute(context.Background(), ops, Options{StopOnError: false})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.False(t, results[2].Skipped)
	assert.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestExecuteParallel_RunsAllDespiteFailures(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	e := New(recordingDispatch(&calls, &mu, map[string]bool{"b": true}), nil)

	ops := []Operation{{Tool: "a", ID: "1"}, {Tool: "b", ID: "2"}, {Tool: "c", ID: "3"}}
	results, err := e.Execute(context.Background(), ops, Options{Parallel: true})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, calls)
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestExecute_AtomicWithoutRunnerFails(t *testing.T) {
	e := New(func(context.Context, string, map[string]any, bool) (any, error) { return nil, nil }, nil)
	_, err := e.Execute(context.Background(), []Operation{{Tool: "a"}}, Options{Atomic: true})
	require.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.StopOnError)
	assert.False(t, opts.Atomic)
	assert.False(t, opts.Parallel)
	assert.False(t, opts.DryRun)
}
