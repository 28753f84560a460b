// Package edit implements atomic multi-file WorkspaceEdit application (C6):
// normalize, pre-validate, snapshot, apply, LSP resync, and rollback on any
// failure, adapted from the teacher's single-file ApplyTextEdits into a
// whole-edit transaction over every touched file.
package edit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/lsp"
	"github.com/symbridge/symbridge/internal/pathutil"
	"github.com/symbridge/symbridge/internal/protocol"
	"github.com/symbridge/symbridge/internal/symbols"
)

// Options controls how Apply carries out a WorkspaceEdit (spec.md §4.5).
type Options struct {
	ValidateBeforeApply bool
	DryRun               bool
	CreateBackupFiles    bool
}

// DefaultOptions matches spec.md §4.5's defaults.
func DefaultOptions() Options {
	return Options{ValidateBeforeApply: true}
}

// FileDiff is one file's dry-run preview.
type FileDiff struct {
	Path       string
	UnifiedDiff string
}

// Result reports what Apply did.
type Result struct {
	ModifiedFiles []string
	EditCount     int
	DryRun        []FileDiff
	// Edit is the normalized WorkspaceEdit Apply wrote (or would write, for
	// a dry run) — what a batch_execute atomic step's preview contributes to
	// the combined commit (spec.md §4.8).
	Edit protocol.WorkspaceEdit
}

// MoveIntent is one file-move a step's dry run plans to carry out, reported
// alongside any WorkspaceEdit it also produces so an atomic batch_execute
// step can aggregate both into one transaction (spec.md §4.8).
type MoveIntent struct {
	OldPath string
	NewPath string
}

// Previewable is the contract a tool's dry-run result must satisfy to
// participate in an atomic batch: it must expose the WorkspaceEdit and any
// file moves it would make, without having made them yet.
type Previewable interface {
	PreviewEdit() protocol.WorkspaceEdit
	PreviewMoves() []MoveIntent
}

// PreviewEdit reports the WorkspaceEdit Apply wrote or previewed.
func (r *Result) PreviewEdit() protocol.WorkspaceEdit { return r.Edit }

// PreviewMoves is always empty for a plain edit.Apply; Result never moves
// files on its own.
func (r *Result) PreviewMoves() []MoveIntent { return nil }

// Engine applies WorkspaceEdits to disk and keeps the owning language
// servers' document sync state consistent with what it wrote.
type Engine struct {
	supervisor *lsp.Supervisor
	log        logging.Logger

	lockMu sync.Mutex
	locked map[string]bool
}

// New builds an Engine bound to supervisor for resync/lookup.
func New(supervisor *lsp.Supervisor, log logging.Logger) *Engine {
	return &Engine{
		supervisor: supervisor,
		log:        logging.ForComponent(log, "edit"),
		locked:     make(map[string]bool),
	}
}

type fileChange struct {
	path       string
	original   string
	next       string
	edits      []protocol.TextEdit
	wasOpen    bool
	prevVer    int32
	server     *lsp.ServerState
	uri        protocol.DocumentUri
}

// Apply normalizes, validates, snapshots, applies, resyncs, and (on
// failure) rolls back edit against disk, per spec.md §4.5.
func (e *Engine) Apply(ctx context.Context, edit protocol.WorkspaceEdit, opts Options) (*Result, error) {
	changes := normalize(edit)
	if changes.Len() == 0 {
		return nil, bridgeerr.New(bridgeerr.ValidationError, "workspace edit has no changes")
	}

	paths := make([]string, 0, changes.Len())
	for pair := changes.Oldest(); pair != nil; pair = pair.Next() {
		paths = append(paths, pathutil.ToPath(pair.Key))
	}
	if err := e.acquireLocks(paths); err != nil {
		return nil, err
	}
	defer e.releaseLocks(paths)

	fcs := make([]*fileChange, 0, changes.Len())
	for pair := changes.Oldest(); pair != nil; pair = pair.Next() {
		fc, err := e.prepare(pair.Key, pair.Value, opts)
		if err != nil {
			return nil, err
		}
		fcs = append(fcs, fc)
	}

	if opts.DryRun {
		result := &Result{Edit: protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{}}}
		for pair := changes.Oldest(); pair != nil; pair = pair.Next() {
			result.Edit.Changes[pair.Key] = pair.Value
		}
		for _, fc := range fcs {
			result.ModifiedFiles = append(result.ModifiedFiles, fc.path)
			result.EditCount += len(fc.edits)
			result.DryRun = append(result.DryRun, FileDiff{Path: fc.path, UnifiedDiff: unifiedDiff(fc.path, fc.original, fc.next)})
		}
		return result, nil
	}

	applied := make([]*fileChange, 0, len(fcs))
	var applyErr error
	for _, fc := range fcs {
		if err := e.writeAtomic(fc, opts.CreateBackupFiles); err != nil {
			applyErr = err
			break
		}
		applied = append(applied, fc)
	}
	if applyErr != nil {
		e.rollback(ctx, applied)
		return nil, applyErr
	}

	for _, fc := range applied {
		e.resync(ctx, fc)
	}

	result := &Result{Edit: protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{}}}
	count := 0
	for _, fc := range applied {
		result.ModifiedFiles = append(result.ModifiedFiles, fc.path)
		result.Edit.Changes[fc.uri] = fc.edits
		count += len(fc.edits)
	}
	result.EditCount = count
	return result, nil
}

// normalize collapses both WorkspaceEdit shapes into one deterministically
// ordered map, preserving DocumentChanges order when present and falling
// back to sorted URIs for the legacy Changes-only shape, so downstream
// apply/rollback order is reproducible across runs (useful for dry-run
// transcripts and for tests).
func normalize(edit protocol.WorkspaceEdit) *orderedmap.OrderedMap[protocol.DocumentUri, []protocol.TextEdit] {
	om := orderedmap.New[protocol.DocumentUri, []protocol.TextEdit]()

	if len(edit.DocumentChanges) > 0 {
		for _, dc := range edit.DocumentChanges {
			if dc.TextDocumentEdit == nil {
				continue
			}
			uri := dc.TextDocumentEdit.TextDocument.URI
			existing, _ := om.Get(uri)
			om.Set(uri, append(existing, dc.TextDocumentEdit.Edits...))
		}
		return om
	}

	uris := make([]string, 0, len(edit.Changes))
	for uri := range edit.Changes {
		uris = append(uris, string(uri))
	}
	sort.Strings(uris)
	for _, uri := range uris {
		om.Set(protocol.DocumentUri(uri), edit.Changes[protocol.DocumentUri(uri)])
	}
	return om
}

func (e *Engine) acquireLocks(paths []string) error {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	for _, p := range paths {
		if e.locked[p] {
			return bridgeerr.Newf(bridgeerr.ConcurrentEdit, "file %q is already being edited by another call", p)
		}
	}
	for _, p := range paths {
		e.locked[p] = true
	}
	return nil
}

func (e *Engine) releaseLocks(paths []string) {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	for _, p := range paths {
		delete(e.locked, p)
	}
}

// prepare reads, validates, and computes the post-edit text for one file
// without writing anything.
func (e *Engine) prepare(uri protocol.DocumentUri, edits []protocol.TextEdit, opts Options) (*fileChange, error) {
	path := pathutil.ToPath(uri)

	info, err := os.Stat(path)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.ValidationError, fmt.Sprintf("file %q does not exist", path))
	}
	if info.IsDir() {
		return nil, bridgeerr.Newf(bridgeerr.ValidationError, "%q is a directory", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.ValidationError, fmt.Sprintf("cannot read %q", path))
	}
	original := string(raw)

	if opts.ValidateBeforeApply {
		if err := validateEdits(original, edits); err != nil {
			return nil, err
		}
	}

	next, err := splice(original, edits)
	if err != nil {
		return nil, err
	}

	ext := pathutil.Ext(path)
	fc := &fileChange{path: path, original: original, next: next, edits: edits, uri: uri}
	if st, ok := e.supervisor.Lookup(ext); ok {
		if ver, open := st.IsOpen(uri); open {
			fc.server = st
			fc.wasOpen = true
			fc.prevVer = ver
		}
	}
	return fc, nil
}

// validateEdits checks byte-extent bounds and pairwise non-overlap, per
// spec.md §4.5 step 2.
func validateEdits(text string, edits []protocol.TextEdit) error {
	type span struct {
		start, end int
	}
	spans := make([]span, 0, len(edits))
	for _, ed := range edits {
		start, err := pathutil.Offset(text, int(ed.Range.Start.Line), int(ed.Range.Start.Character))
		if err != nil {
			return bridgeerr.Wrap(err, bridgeerr.RangeOutOfBounds, "edit start position")
		}
		end, err := pathutil.Offset(text, int(ed.Range.End.Line), int(ed.Range.End.Character))
		if err != nil {
			return bridgeerr.Wrap(err, bridgeerr.RangeOutOfBounds, "edit end position")
		}
		if end < start {
			return bridgeerr.New(bridgeerr.RangeOutOfBounds, "edit end precedes start")
		}
		spans = append(spans, span{start, end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return bridgeerr.New(bridgeerr.OverlappingEdits, "two edits overlap within the same file")
		}
	}
	return nil
}

// splice applies edits (order-independent; sorted internally descending by
// start position so earlier offsets remain valid as later splices land)
// against text and returns the resulting content.
func splice(text string, edits []protocol.TextEdit) (string, error) {
	type resolved struct {
		start, end int
		newText    string
	}
	resolvedEdits := make([]resolved, 0, len(edits))
	for _, ed := range edits {
		start, err := pathutil.Offset(text, int(ed.Range.Start.Line), int(ed.Range.Start.Character))
		if err != nil {
			return "", bridgeerr.Wrap(err, bridgeerr.RangeOutOfBounds, "edit start position")
		}
		end, err := pathutil.Offset(text, int(ed.Range.End.Line), int(ed.Range.End.Character))
		if err != nil {
			return "", bridgeerr.Wrap(err, bridgeerr.RangeOutOfBounds, "edit end position")
		}
		resolvedEdits = append(resolvedEdits, resolved{start, end, ed.NewText})
	}
	sort.Slice(resolvedEdits, func(i, j int) bool { return resolvedEdits[i].start > resolvedEdits[j].start })

	var b strings.Builder
	b.WriteString(text)
	result := b.String()
	for _, r := range resolvedEdits {
		result = result[:r.start] + r.newText + result[r.end:]
	}
	return result, nil
}

// writeAtomic writes fc.next to fc.path via write-temp-then-rename, matching
// spec.md §4.5 step 4's atomicity requirement.
func (e *Engine) writeAtomic(fc *fileChange, backup bool) error {
	if backup {
		if err := os.WriteFile(fc.path+".bak", []byte(fc.original), 0o644); err != nil {
			return bridgeerr.Wrap(err, bridgeerr.Internal, "write backup file")
		}
	}

	dir := filepath.Dir(fc.path)
	tmp, err := os.CreateTemp(dir, ".symbridge-edit-*")
	if err != nil {
		return bridgeerr.Wrap(err, bridgeerr.Internal, "create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(fc.next); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return bridgeerr.Wrap(err, bridgeerr.Internal, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return bridgeerr.Wrap(err, bridgeerr.Internal, "close temp file")
	}
	if info, err := os.Stat(fc.path); err == nil {
		_ = os.Chmod(tmpPath, info.Mode())
	}
	if err := os.Rename(tmpPath, fc.path); err != nil {
		os.Remove(tmpPath)
		return bridgeerr.Wrap(err, bridgeerr.Internal, "rename temp file into place")
	}
	return nil
}

// resync pushes the new content to fc's server if the file was already
// open there; files not previously open are left for the next operation to
// open lazily (spec.md §4.5 step 5).
func (e *Engine) resync(ctx context.Context, fc *fileChange) {
	if fc.server == nil || !fc.wasOpen {
		return
	}
	if err := fc.server.ChangeDocument(ctx, fc.uri, fc.next, fc.prevVer+1); err != nil {
		e.log.Warning("failed to resync {URI} after edit: {Error}", fc.uri, err)
	}
}

// rollback restores every already-applied file's original bytes and undoes
// any LSP resync, per spec.md §4.5 step 6.
func (e *Engine) rollback(ctx context.Context, applied []*fileChange) {
	for _, fc := range applied {
		if err := os.WriteFile(fc.path, []byte(fc.original), 0o644); err != nil {
			e.log.Error("rollback failed to restore {Path}: {Error}", fc.path, err)
		}
		if fc.server == nil {
			continue
		}
		if fc.wasOpen {
			if err := fc.server.ChangeDocument(ctx, fc.uri, fc.original, fc.prevVer+1); err != nil {
				e.log.Warning("rollback resync failed for {URI}: {Error}", fc.uri, err)
			}
		}
	}
}

func unifiedDiff(path, before, after string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("(failed to render diff for %s: %v)", path, err)
	}
	return text
}

// ApplyRename is a convenience wrapper used by C5's rename tools: it
// collapses a rename's WorkspaceEdit via symbols.CollapseWorkspaceEdit and
// applies it through the same transactional path as any other edit.
func (e *Engine) ApplyRename(ctx context.Context, res *symbols.RenameResult, opts Options) (*Result, error) {
	edit := protocol.WorkspaceEdit{Changes: res.Changes}
	return e.Apply(ctx, edit, opts)
}
