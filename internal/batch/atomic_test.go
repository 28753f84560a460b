package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbridge/symbridge/internal/config"
	"github.com/symbridge/symbridge/internal/edit"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/lsp"
	"github.com/symbridge/symbridge/internal/pathutil"
	"github.com/symbridge/symbridge/internal/protocol"
)

type fakePreview struct {
	edit  protocol.WorkspaceEdit
	moves []MoveIntent
}

func (f fakePreview) PreviewEdit() protocol.WorkspaceEdit { return f.edit }
func (f fakePreview) PreviewMoves() []MoveIntent          { return f.moves }

func TestAtomicRunner_AbortsBeforeAnyDiskChangeOnDryRunFailure(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.go")
	require.NoError(t, os.WriteFile(oldPath, []byte("package old"), 0o644))

	dispatch := func(_ context.Context, tool string, _ map[string]any, dryRun bool) (any, error) {
		require.True(t, dryRun)
		if tool == "fail_step" {
			return nil, assert.AnError
		}
		return fakePreview{moves: []MoveIntent{{OldPath: oldPath, NewPath: filepath.Join(dir, "new.go")}}}, nil
	}

	runner := NewAtomicRunner(dispatch, nil)
	ops := []Operation{{Tool: "rename_file"}, {Tool: "fail_step"}}
	_, err := runner.Run(context.Background(), ops, false)
	require.Error(t, err)

	// The first step's previewed move must not have been performed.
	_, statErr := os.Stat(oldPath)
	assert.NoError(t, statErr)
}

func TestAtomicRunner_DryRunPerformsNoMoves(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.go")
	require.NoError(t, os.WriteFile(oldPath, []byte("package old"), 0o644))
	newPath := filepath.Join(dir, "new.go")

	dispatch := func(_ context.Context, _ string, _ map[string]any, dryRun bool) (any, error) {
		require.True(t, dryRun)
		return fakePreview{moves: []MoveIntent{{OldPath: oldPath, NewPath: newPath}}}, nil
	}

	runner := NewAtomicRunner(dispatch, nil)
	results, err := runner.Run(context.Background(), []Operation{{Tool: "rename_file"}}, true)
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, statErr := os.Stat(oldPath)
	assert.NoError(t, statErr)
	_, statErr = os.Stat(newPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAtomicRunner_CommitsMovesWhenNotDryRun(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.go")
	require.NoError(t, os.WriteFile(oldPath, []byte("package old"), 0o644))
	newPath := filepath.Join(dir, "new.go")

	dispatch := func(_ context.Context, _ string, _ map[string]any, dryRun bool) (any, error) {
		require.True(t, dryRun)
		return fakePreview{moves: []MoveIntent{{OldPath: oldPath, NewPath: newPath}}}, nil
	}

	runner := NewAtomicRunner(dispatch, nil)
	results, err := runner.Run(context.Background(), []Operation{{Tool: "rename_file"}}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, statErr := os.Stat(newPath)
	assert.NoError(t, statErr)
	_, statErr = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(statErr))
}

// TestAtomicRunner_CommitsRealEditResult dispatches through a real
// edit.Engine, the same dispatch shape main.go wires into NewAtomicRunner,
// rather than the fakePreview fixture above — proving *edit.Result itself
// satisfies Previewable and a step's dry-run preview actually reaches disk.
func TestAtomicRunner_CommitsRealEditResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package old\n"), 0o644))
	uri := pathutil.ToURI(path)

	sup := lsp.NewSupervisor(&config.Config{}, logging.New(logging.Config{}))
	engine := edit.New(sup, logging.New(logging.Config{}))

	we := protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{
		uri: {{
			Range:   protocol.Range{Start: protocol.Position{Line: 0, Character: 8}, End: protocol.Position{Line: 0, Character: 11}},
			NewText: "new",
		}},
	}}

	dispatch := func(ctx context.Context, _ string, _ map[string]any, dryRun bool) (any, error) {
		return engine.Apply(ctx, we, edit.Options{ValidateBeforeApply: true, DryRun: dryRun})
	}

	runner := NewAtomicRunner(dispatch, engine)
	_, err := runner.Run(context.Background(), []Operation{{Tool: "apply_workspace_edit"}}, false)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package new\n", string(data))
}
