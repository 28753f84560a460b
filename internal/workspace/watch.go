package workspace

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/symbridge/symbridge/internal/logging"
)

// Watcher reports filesystem change events, filtered by
// didChangeWatchedFiles-style glob patterns, to the callback passed to
// Events. It does not itself notify any LSP server; forwarding an event to a
// server's registration is up to that callback.
type Watcher struct {
	fsw *fsnotify.Watcher
	log logging.Logger
}

// ChangeEvent is one filesystem change to report to a watching server.
type ChangeEvent struct {
	Path string
	Op   fsnotify.Op
}

// NewWatcher starts an fsnotify watcher rooted at dirs.
func NewWatcher(dirs []string, log logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		_ = fsw.Add(d)
	}
	return &Watcher{fsw: fsw, log: logging.ForComponent(log, "workspace")}, nil
}

// AddRecursive watches root and every non-ignored directory that directly
// contains a file Scan finds; a directory holding no files of its own is not
// watched.
func (w *Watcher) AddRecursive(root string, useGitignore bool) error {
	ig := (*Ignorer)(nil)
	if useGitignore {
		ig = NewIgnorer(root)
	}
	files, err := Scan(root, useGitignore)
	if err != nil {
		return err
	}
	seen := map[string]bool{root: true}
	if err := w.fsw.Add(root); err != nil {
		w.log.Debug("watch root failed for {Dir}: {Error}", root, err)
	}
	for _, f := range files {
		dir := filepath.Dir(filepath.Join(root, f))
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if ig != nil {
			rel, _ := filepath.Rel(root, dir)
			if ig.Ignored(rel, true) {
				continue
			}
		}
		if err := w.fsw.Add(dir); err != nil {
			w.log.Debug("watch dir failed for {Dir}: {Error}", dir, err)
		}
	}
	return nil
}

// Events runs until ctx is cancelled, calling onChange for every
// create/write/rename/remove event whose path matches one of patterns
// (simple "*.ext" globs, the common case for didChangeWatchedFiles
// registrations; see spec.md §4.2's fileWatchers table).
func (w *Watcher) Events(ctx context.Context, patterns []string, onChange func(ChangeEvent)) {
	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if len(patterns) > 0 && !matchesAny(ev.Name, patterns) {
				continue
			}
			onChange(ChangeEvent{Path: ev.Name, Op: ev.Op})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warning("fsnotify error: {Error}", err)
		}
	}
}

func matchesAny(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if strings.Contains(p, "**") {
			suffix := strings.TrimPrefix(p, "**/")
			if ok, _ := filepath.Match(suffix, base); ok {
				return true
			}
		}
	}
	return false
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }
