package edit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbridge/symbridge/internal/config"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/lsp"
	"github.com/symbridge/symbridge/internal/pathutil"
	"github.com/symbridge/symbridge/internal/protocol"
)

func newTestEngine() *Engine {
	sup := lsp.NewSupervisor(&config.Config{}, logging.New(logging.Config{}))
	return New(sup, logging.New(logging.Config{}))
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func rangeAt(line, startChar, endChar uint32) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: startChar},
		End:   protocol.Position{Line: line, Character: endChar},
	}
}

func TestApply_SimpleReplace(t *testing.T) {
	e := newTestEngine()
	path := writeTempFile(t, "line one\nline two\nline three")
	uri := pathutil.ToURI(path)

	edit := protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{
		uri: {{Range: rangeAt(1, 0, 8), NewText: "replaced"}},
	}}

	result, err := e.Apply(context.Background(), edit, Options{ValidateBeforeApply: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.EditCount)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nreplaced\nline three", string(data))
}

func TestApply_DryRunDoesNotWrite(t *testing.T) {
	e := newTestEngine()
	path := writeTempFile(t, "line one\nline two")
	uri := pathutil.ToURI(path)

	edit := protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{
		uri: {{Range: rangeAt(0, 0, 4), NewText: "LINE"}},
	}}

	result, err := e.Apply(context.Background(), edit, Options{DryRun: true})
	require.NoError(t, err)
	require.Len(t, result.DryRun, 1)
	assert.Contains(t, result.DryRun[0].UnifiedDiff, "LINE")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(data))
}

func TestApply_RejectsOverlappingEdits(t *testing.T) {
	e := newTestEngine()
	path := writeTempFile(t, "abcdef")
	uri := pathutil.ToURI(path)

	edit := protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{
		uri: {
			{Range: rangeAt(0, 0, 3), NewText: "xyz"},
			{Range: rangeAt(0, 2, 5), NewText: "qq"},
		},
	}}

	_, err := e.Apply(context.Background(), edit, Options{ValidateBeforeApply: true})
	require.Error(t, err)
}

func TestApply_RejectsEditsOnMissingFile(t *testing.T) {
	e := newTestEngine()
	missing := filepath.Join(t.TempDir(), "does-not-exist.go")
	uri := pathutil.ToURI(missing)

	edit := protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{
		uri: {{Range: rangeAt(0, 0, 0), NewText: "x"}},
	}}
	_, err := e.Apply(context.Background(), edit, Options{})
	require.Error(t, err)
}

func TestApply_EmptyEditIsRejected(t *testing.T) {
	e := newTestEngine()
	_, err := e.Apply(context.Background(), protocol.WorkspaceEdit{}, Options{})
	require.Error(t, err)
}

func TestApply_RollsBackOnSecondFileFailure(t *testing.T) {
	e := newTestEngine()
	goodPath := writeTempFile(t, "keep me")
	goodURI := pathutil.ToURI(goodPath)
	missingURI := pathutil.ToURI(filepath.Join(t.TempDir(), "missing.go"))

	edit := protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{
		goodURI:    {{Range: rangeAt(0, 0, 4), NewText: "KEEP"}},
		missingURI: {{Range: rangeAt(0, 0, 0), NewText: "x"}},
	}}

	_, err := e.Apply(context.Background(), edit, Options{})
	require.Error(t, err)

	data, readErr := os.ReadFile(goodPath)
	require.NoError(t, readErr)
	assert.Equal(t, "keep me", string(data), "the first file's edit must not survive when a later file fails")
}

func TestApply_DocumentChangesTakesPrecedenceOverChanges(t *testing.T) {
	e := newTestEngine()
	path := writeTempFile(t, "hello world")
	uri := pathutil.ToURI(path)

	edit := protocol.WorkspaceEdit{
		Changes: map[protocol.DocumentUri][]protocol.TextEdit{
			uri: {{Range: rangeAt(0, 0, 5), NewText: "SHOULD_NOT_APPLY"}},
		},
		DocumentChanges: []protocol.DocumentChange{
			{TextDocumentEdit: &protocol.TextDocumentEdit{
				TextDocument: protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri}},
				Edits:        []protocol.TextEdit{{Range: rangeAt(0, 6, 11), NewText: "there"}},
			}},
		},
	}

	result, err := e.Apply(context.Background(), edit, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.EditCount)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(data))
}
