package filemove

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/config"
	"github.com/symbridge/symbridge/internal/edit"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/lsp"
)

func newTestMover(t *testing.T, root string) *Mover {
	t.Helper()
	sup := lsp.NewSupervisor(&config.Config{}, logging.New(logging.Config{}))
	eng := edit.New(sup, logging.New(logging.Config{}))
	m := New(nil, eng, logging.New(logging.Config{}))
	m.Root = root
	return m
}

func TestRenameFile_RewritesGoImporter(t *testing.T) {
	// The lexical Go matcher (this package's resolvesTo/specifierMapper) compares
	// an import's last dot-separated segment against the moved file's base
	// name, so the import literal here is deliberately just that base name
	// rather than a realistic slash-separated Go import path.
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "old"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "new"), 0o755))

	movedFile := filepath.Join(root, "pkg", "old", "thing.go")
	require.NoError(t, os.WriteFile(movedFile, []byte("package old\n\nfunc Thing() {}\n"), 0o644))

	importer := filepath.Join(root, "pkg", "caller.go")
	require.NoError(t, os.WriteFile(importer, []byte(`package pkg

import "thing"

func main() {
	thing.Use()
}
`), 0o644))

	m := newTestMover(t, root)
	newFile := filepath.Join(root, "pkg", "new", "renamed.go")

	// Force skips the cycle guard: the importer lives directly in "pkg",
	// an ancestor of the destination "pkg/new", which the lexical guard
	// would otherwise flag as a would-be cycle.
	result, err := m.RenameFile(context.Background(), movedFile, newFile, Options{Force: true})
	require.NoError(t, err)

	_, statErr := os.Stat(movedFile)
	assert.True(t, os.IsNotExist(statErr), "old path must no longer exist after a non-dry-run move")
	_, statErr = os.Stat(newFile)
	assert.NoError(t, statErr, "new path must exist after the move")

	assert.Contains(t, result.ImportersEdited, importer)
	assert.GreaterOrEqual(t, result.EditCount, 1)

	data, err := os.ReadFile(importer)
	require.NoError(t, err)
	assert.Contains(t, string(data), `import "renamed"`)
}

func TestRenameFile_DryRunLeavesDiskUntouched(t *testing.T) {
	root := t.TempDir()
	movedFile := filepath.Join(root, "thing.go")
	require.NoError(t, os.WriteFile(movedFile, []byte("package root\n"), 0o644))

	m := newTestMover(t, root)
	newFile := filepath.Join(root, "renamed.go")

	result, err := m.RenameFile(context.Background(), movedFile, newFile, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, movedFile, result.OldPath)
	assert.Equal(t, newFile, result.NewPath)

	_, err = os.Stat(movedFile)
	assert.NoError(t, err, "dry run must not move the file")
	_, err = os.Stat(newFile)
	assert.True(t, os.IsNotExist(err))
}

func TestRenameFile_NoImportersSkipsEditorEntirely(t *testing.T) {
	root := t.TempDir()
	movedFile := filepath.Join(root, "lonely.go")
	require.NoError(t, os.WriteFile(movedFile, []byte("package root\n"), 0o644))

	m := newTestMover(t, root)
	newFile := filepath.Join(root, "moved.go")

	result, err := m.RenameFile(context.Background(), movedFile, newFile, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.ImportersEdited)
	assert.Equal(t, 0, result.EditCount)

	_, err = os.Stat(newFile)
	assert.NoError(t, err)
}

func TestFindImportersOf_UsesRootWhenSet(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "target.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("package a\n"), 0o644))

	importer := filepath.Join(root, "b", "caller.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(importer), 0o755))
	require.NoError(t, os.WriteFile(importer, []byte(`package b

import "target"

func f() { _ = target.X }
`), 0o644))

	m := newTestMover(t, root)
	importers, err := m.FindImportersOf(context.Background(), target)
	require.NoError(t, err)
	assert.Contains(t, importers, importer)
}

func TestGuardAgainstCycle_RejectsMoveIntoImporterAncestor(t *testing.T) {
	importer := filepath.Join("/repo", "b", "caller.go")
	err := guardAgainstCycle(filepath.Join("/repo", "b", "moved.go"), []string{importer})
	require.Error(t, err)
	kind, ok := bridgeerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, bridgeerr.WouldCreateCycle, kind)
}

func TestGuardAgainstCycle_ImporterNestedUnderDestinationIsFine(t *testing.T) {
	importer := filepath.Join("/repo", "pkg", "sub", "caller.go")
	err := guardAgainstCycle(filepath.Join("/repo", "pkg", "moved.go"), []string{importer})
	assert.NoError(t, err)
}

func TestCommonAncestor_SameDirectory(t *testing.T) {
	a := filepath.Join("/repo", "pkg", "old.go")
	b := filepath.Join("/repo", "pkg", "new.go")
	assert.Equal(t, filepath.Join("/repo", "pkg"), commonAncestor(a, b))
}

func TestCommonAncestor_DivergingPaths(t *testing.T) {
	a := filepath.Join("/repo", "pkg", "old", "old.go")
	b := filepath.Join("/repo", "pkg", "new", "new.go")
	assert.Equal(t, filepath.Join("/repo", "pkg"), commonAncestor(a, b))
}
