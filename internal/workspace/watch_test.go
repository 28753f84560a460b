package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbridge/symbridge/internal/logging"
)

func TestMatchesAny_SimpleGlob(t *testing.T) {
	assert.True(t, matchesAny("/a/b/main.go", []string{"*.go"}))
	assert.False(t, matchesAny("/a/b/main.go", []string{"*.ts"}))
}

func TestMatchesAny_DoubleStarPrefix(t *testing.T) {
	assert.True(t, matchesAny("/a/b/c/index.ts", []string{"**/*.ts"}))
}

func TestMatchesAny_NoPatternsMatchesNothingExplicitly(t *testing.T) {
	assert.False(t, matchesAny("/a/b/main.go", nil))
}

func TestWatcher_EventsReportsWriteUnderWatchedDir(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "watched.go")
	require.NoError(t, os.WriteFile(target, []byte("package root\n"), 0o644))

	w, err := NewWatcher([]string{root}, logging.New(logging.Config{}))
	require.NoError(t, err)
	defer w.Close()

	events := make(chan ChangeEvent, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Events(ctx, []string{"*.go"}, func(ev ChangeEvent) { events <- ev })

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(target, []byte("package root\n\nfunc f() {}\n"), 0o644))

	select {
	case ev := <-events:
		assert.Equal(t, target, ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a watched-file write event")
	}
}

func TestWatcher_AddRecursive_SkipsGitignoredDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("ignored/\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ignored"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "kept"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept", "a.go"), []byte("package kept\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ignored", "b.go"), []byte("package ignored\n"), 0o644))

	w, err := NewWatcher(nil, logging.New(logging.Config{}))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddRecursive(root, true))

	events := make(chan ChangeEvent, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Events(ctx, nil, func(ev ChangeEvent) { events <- ev })

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept", "a.go"), []byte("package kept\n\nfunc g() {}\n"), 0o644))

	select {
	case ev := <-events:
		assert.Contains(t, ev.Path, "kept")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write event under the non-ignored directory")
	}
}
