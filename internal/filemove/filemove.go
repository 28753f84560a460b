// Package filemove implements the cross-language file/directory rename
// orchestrator (C9): importer discovery, a circular-dependency guard, new
// import specifier computation per language, and atomic application of
// the resulting move-plus-edit as one aggregate WorkspaceEdit through C6.
// The teacher has no analogous feature; this is built fresh on top of C6
// (internal/edit), C7 (internal/importgraph), and C8
// (internal/importrewrite), reusing the teacher's filepath.Abs-everywhere
// discipline for path comparisons.
package filemove

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/edit"
	"github.com/symbridge/symbridge/internal/importgraph"
	"github.com/symbridge/symbridge/internal/importrewrite"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/pathutil"
	"github.com/symbridge/symbridge/internal/protocol"
	"github.com/symbridge/symbridge/internal/symbols"
	"github.com/symbridge/symbridge/internal/workspace"
)

// Options controls renameFile (spec.md §4.7).
type Options struct {
	DryRun       bool
	UseGitignore bool
	// Force skips the cycle guard, reporting the move as if it were safe.
	// Off by default; spec.md §5 lists *ImporterConflict*/*WouldCreateCycle*
	// as the default outcome.
	Force bool
}

// Result reports what RenameFile did (or would do, for a dry run).
type Result struct {
	OldPath         string
	NewPath         string
	ImportersEdited []string
	EditCount       int
	Edit            protocol.WorkspaceEdit
	// Moves is every individual file move this result represents — one
	// entry for a single-file rename, one per contained file for a
	// directory rename — so an atomic batch_execute step can commit them
	// itself (spec.md §4.8).
	Moves []edit.MoveIntent
}

// PreviewEdit reports the import-specifier rewrites this move would make.
func (r *Result) PreviewEdit() protocol.WorkspaceEdit { return r.Edit }

// PreviewMoves reports the file move(s) this result represents.
func (r *Result) PreviewMoves() []edit.MoveIntent { return r.Moves }

// Mover ties the importer scan, cycle guard, and specifier rewrite to C6's
// transactional apply.
type Mover struct {
	symbols *symbols.Service
	editor  *edit.Engine
	log     logging.Logger
	// Root bounds the importer scan for operations (delete_file's
	// importer check) that have no destination path to derive a common
	// ancestor from. Renames still use commonAncestor(oldAbs, newAbs).
	Root string
}

// New builds a Mover over the shared symbol service (for dead-code
// reference counting) and edit engine (for applying the aggregate edit).
func New(symbolService *symbols.Service, editor *edit.Engine, log logging.Logger) *Mover {
	return &Mover{symbols: symbolService, editor: editor, log: logging.ForComponent(log, "filemove")}
}

// FindImportersOf returns every file under Mover's Root (or path's own
// directory, if Root is unset) that imports path — the importer check
// delete_file runs before removing a file (spec.md §6: "fails with an
// itemized importer list unless force").
func (m *Mover) FindImportersOf(ctx context.Context, path string) ([]string, error) {
	abs, err := pathutil.Canonical(path)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.ValidationError, "resolve path")
	}
	root := m.Root
	if root == "" {
		root = filepath.Dir(abs)
	}
	importers, err := findImporters(root, abs, true)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "scan importers")
	}
	return importers, nil
}

// RenameFile moves oldPath to newPath, rewriting every importer's
// specifier to match, per spec.md §4.7. Directories are moved leaves-first,
// running the single-file move (renameOneFile) for each contained file
// before the directory itself is removed.
func (m *Mover) RenameFile(ctx context.Context, oldPath, newPath string, opts Options) (*Result, error) {
	oldAbs, err := pathutil.Canonical(oldPath)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.ValidationError, "resolve old path")
	}
	newAbs, err := pathutil.Canonical(newPath)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.ValidationError, "resolve new path")
	}

	info, err := os.Stat(oldAbs)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.ValidationError, "stat old path")
	}
	if info.IsDir() {
		return m.renameDir(ctx, oldAbs, newAbs, opts)
	}
	return m.renameOneFile(ctx, oldAbs, newAbs, opts)
}

func (m *Mover) renameDir(ctx context.Context, oldAbs, newAbs string, opts Options) (*Result, error) {
	files, err := workspace.Scan(oldAbs, opts.UseGitignore)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "scan directory to move")
	}
	// Leaves-first: deepest paths (most path separators, then reverse
	// lexical order) first, so a nested directory's files are relocated before its
	// parent directory entry is considered settled.
	sort.Slice(files, func(i, j int) bool {
		di, dj := strings.Count(files[i], string(filepath.Separator)), strings.Count(files[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return files[i] > files[j]
	})

	agg := &Result{OldPath: oldAbs, NewPath: newAbs, Edit: protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{}}}
	for _, rel := range files {
		oldFile := filepath.Join(oldAbs, rel)
		newFile := filepath.Join(newAbs, rel)
		res, err := m.renameOneFile(ctx, oldFile, newFile, opts)
		if err != nil {
			return nil, err
		}
		agg.ImportersEdited = append(agg.ImportersEdited, res.ImportersEdited...)
		agg.EditCount += res.EditCount
		agg.Moves = append(agg.Moves, res.Moves...)
		for uri, edits := range res.Edit.Changes {
			agg.Edit.Changes[uri] = append(agg.Edit.Changes[uri], edits...)
		}
	}
	if !opts.DryRun {
		if err := os.RemoveAll(oldAbs); err != nil {
			m.log.Warning("failed to remove emptied directory {Dir}: {Error}", oldAbs, err)
		}
	}
	return agg, nil
}

func (m *Mover) renameOneFile(ctx context.Context, oldAbs, newAbs string, opts Options) (*Result, error) {
	rootDir := commonAncestor(oldAbs, newAbs)

	importers, err := findImporters(rootDir, oldAbs, opts.UseGitignore)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "scan importers")
	}

	if !opts.Force && filepath.Dir(oldAbs) != filepath.Dir(newAbs) {
		if err := guardAgainstCycle(newAbs, importers); err != nil {
			return nil, err
		}
	}

	edits := make(map[protocol.DocumentUri][]protocol.TextEdit)
	var edited []string
	editCount := 0
	for _, imp := range importers {
		content, err := os.ReadFile(imp)
		if err != nil {
			continue
		}
		res := importrewrite.Rewrite(imp, string(content), specifierMapper(imp, oldAbs, newAbs))
		if !res.Success || res.EditsApplied == 0 {
			continue
		}
		edits[pathutil.ToURI(imp)] = []protocol.TextEdit{{
			Range:   fullFileRange(string(content)),
			NewText: res.Content,
		}}
		edited = append(edited, imp)
		editCount += res.EditsApplied
	}

	result := &Result{
		OldPath:         oldAbs,
		NewPath:         newAbs,
		ImportersEdited: edited,
		EditCount:       editCount,
		Edit:            protocol.WorkspaceEdit{Changes: edits},
		Moves:           []edit.MoveIntent{{OldPath: oldAbs, NewPath: newAbs}},
	}

	if opts.DryRun {
		return result, nil
	}

	if err := moveFile(oldAbs, newAbs); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "move file on disk")
	}

	if len(edits) > 0 {
		if _, err := m.editor.Apply(ctx, result.Edit, edit.Options{ValidateBeforeApply: true}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func moveFile(oldAbs, newAbs string) error {
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(oldAbs)
	if err != nil {
		return err
	}
	info, err := os.Stat(oldAbs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(newAbs, data, info.Mode()); err != nil {
		return err
	}
	return os.Remove(oldAbs)
}

// commonAncestor returns the longest common ancestor directory of a and b,
// one level up if their immediate directories differ (spec.md §4.7 step 1).
func commonAncestor(a, b string) string {
	da, db := filepath.Dir(a), filepath.Dir(b)
	if da == db {
		return da
	}
	pa := strings.Split(filepath.ToSlash(da), "/")
	pb := strings.Split(filepath.ToSlash(db), "/")
	n := len(pa)
	if len(pb) < n {
		n = len(pb)
	}
	i := 0
	for i < n && pa[i] == pb[i] {
		i++
	}
	if i == 0 || (i == 1 && pa[0] == "") {
		return string(filepath.Separator)
	}
	return filepath.FromSlash(strings.Join(pa[:i], "/"))
}

// findImporters scans rootDir for every source file whose C7 import list
// references oldAbs.
func findImporters(rootDir, oldAbs string, useGitignore bool) ([]string, error) {
	files, err := workspace.Scan(rootDir, useGitignore)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rel := range files {
		abs := filepath.Join(rootDir, rel)
		if abs == oldAbs {
			continue
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		imports, lang := importgraph.Extract(abs, string(content))
		if lang == importgraph.LangNone || len(imports) == 0 {
			continue
		}
		for _, imp := range imports {
			if resolvesTo(abs, imp.Raw, lang, oldAbs) {
				out = append(out, abs)
				break
			}
		}
	}
	return out, nil
}

// resolvesTo reports whether imp, written inside fromFile, refers to
// target. TS/JS relative specifiers are resolved against fromFile's
// directory; every other language dialect is compared by its trailing
// module-path segment against target's module path derived from its file
// name, which is the best a purely lexical (non-typechecking) importer
// scan can do without a build-system-specific resolver.
func resolvesTo(fromFile, raw string, lang importgraph.Language, target string) bool {
	if lang == importgraph.LangTSJS {
		if !strings.HasPrefix(raw, ".") {
			return false
		}
		resolved := filepath.Clean(filepath.Join(filepath.Dir(fromFile), filepath.FromSlash(raw)))
		targetNoExt := strings.TrimSuffix(target, filepath.Ext(target))
		return resolved == target || resolved == targetNoExt
	}

	base := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
	sep := "."
	if lang == importgraph.LangRust {
		sep = "::"
	}
	segs := strings.Split(raw, sep)
	if lang == importgraph.LangRuby || lang == importgraph.LangPHP {
		return strings.HasSuffix(strings.TrimSuffix(raw, filepath.Ext(raw)), base)
	}
	return len(segs) > 0 && segs[len(segs)-1] == base
}

// specifierMapper returns the importrewrite.Mapping that rewrites imp's
// specifier to point at newAbs instead of oldAbs, for the file at
// importerPath.
func specifierMapper(importerPath, oldAbs, newAbs string) importrewrite.Mapping {
	return func(imp importgraph.Import, lang importgraph.Language) (string, bool) {
		switch lang {
		case importgraph.LangTSJS:
			return importrewrite.RelativeSpecifier(imp.Raw, filepath.Dir(importerPath), oldAbs, newAbs,
				filepath.ToSlash,
				func(dir, rel string) string { return filepath.Clean(filepath.Join(dir, filepath.FromSlash(rel))) },
				func(base, target string) (string, error) { return filepath.Rel(base, target) },
			)
		default:
			oldBase := strings.TrimSuffix(filepath.Base(oldAbs), filepath.Ext(oldAbs))
			newBase := strings.TrimSuffix(filepath.Base(newAbs), filepath.Ext(newAbs))
			if !resolvesTo(importerPath, imp.Raw, lang, oldAbs) {
				return "", false
			}
			switch lang {
			case importgraph.LangRust:
				return importrewrite.PathModule(imp.Raw, oldBase, newBase, "::")
			case importgraph.LangRuby, importgraph.LangPHP:
				return importrewrite.PathModule(imp.Raw, oldBase, newBase, "/")
			default:
				return importrewrite.DottedModule(imp.Raw, oldBase, newBase)
			}
		}
	}
}

// guardAgainstCycle rejects the move unless every importer lives strictly
// below the destination directory: an importer in the destination
// directory itself, above it, or beside it is rejected (spec.md §4.7
// step 3).
func guardAgainstCycle(newAbs string, importers []string) error {
	newDir := filepath.Dir(newAbs)
	for _, imp := range importers {
		importerDir := filepath.Dir(imp)
		rel, err := filepath.Rel(newDir, importerDir)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if rel == "." || strings.HasPrefix(rel, "..") {
			return bridgeerr.Newf(bridgeerr.WouldCreateCycle,
				"importer %q is not below destination directory %q; choose a destination that is an ancestor of every importer's directory", imp, newDir)
		}
	}
	return nil
}

func fullFileRange(text string) protocol.Range {
	lines := strings.Split(text, "\n")
	lastLine := len(lines) - 1
	lastCol := len([]rune(lines[lastLine]))
	return protocol.Range{
		Start: protocol.Position{Line: 0, Character: 0},
		End:   protocol.Position{Line: uint32(lastLine), Character: uint32(lastCol)},
	}
}

// exportableKinds are the symbol kinds dead-code analysis considers,
// per spec.md §4.7.
var exportableKinds = map[protocol.SymbolKind]bool{
	protocol.Class:    true,
	protocol.Method:   true,
	protocol.Function:  true,
	protocol.Variable:  true,
}

// DeadSymbol is one symbol found with fewer references than the configured
// threshold.
type DeadSymbol struct {
	Name       string
	Kind       protocol.SymbolKind
	Path       string
	References int
}

// FindDeadCode reports every exportable-kind symbol across files whose
// reference count (excluding its own declaration) is below threshold,
// optionally skipping files matched by testFilePattern (e.g. "*_test.go",
// "*.test.ts").
func (m *Mover) FindDeadCode(ctx context.Context, files []string, threshold int, testFilePattern string) ([]DeadSymbol, error) {
	if threshold <= 0 {
		threshold = 1
	}
	var out []DeadSymbol
	for _, path := range files {
		if testFilePattern != "" {
			if ok, _ := filepath.Match(testFilePattern, filepath.Base(path)); ok {
				continue
			}
		}
		matches, err := m.symbols.ListSymbols(ctx, path)
		if err != nil {
			continue
		}
		seen := make(map[string]bool)
		for _, sym := range matches {
			if !exportableKinds[sym.Kind] || sym.Name == "" {
				continue
			}
			key := fmt.Sprintf("%s@%d:%d", sym.Name, sym.Position.Line, sym.Position.Character)
			if seen[key] {
				continue
			}
			seen[key] = true

			refs, err := m.symbols.FindReferences(ctx, path, sym.Position, false)
			if err != nil {
				continue
			}
			if len(refs) < threshold {
				out = append(out, DeadSymbol{Name: sym.Name, Kind: sym.Kind, Path: path, References: len(refs)})
			}
		}
	}
	return out, nil
}
