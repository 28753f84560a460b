// Package importrewrite rewrites import/require/use specifiers in place
// after a file or directory move (C8), given a remapping computed by the
// caller (normally internal/filemove). It reuses internal/importgraph's
// per-language Import records — each carrying the byte offsets of the raw
// specifier — so a rewrite is a surgical splice rather than a reprint of
// the whole statement, preserving the surrounding formatting spec.md §4.6
// requires.
package importrewrite

import (
	"sort"
	"strings"

	"github.com/symbridge/symbridge/internal/importgraph"
)

// Result is the outcome of rewriting one file's imports.
type Result struct {
	// Success is false only when a replacement would corrupt offsets
	// (overlapping Import ranges); in every other case rewriting is
	// best-effort and partial matches still count as success.
	Success bool
	// Content is the rewritten source. Equal to the input when EditsApplied
	// is 0.
	Content string
	// EditsApplied counts how many Import specifiers were replaced.
	EditsApplied int
}

// Mapping resolves an import's raw specifier (as extracted by
// internal/importgraph) to its replacement, or ("", false) to leave it
// untouched. The caller supplies this — specifier resolution is
// language-and-project-specific (relative path math for TS/JS, package
// path math for Go, dotted-module math for Python/Java/C#) and belongs to
// internal/filemove, which knows the old and new locations of the moved
// file and the mover's own file path relative to each import site.
type Mapping func(imp importgraph.Import, lang importgraph.Language) (newRaw string, ok bool)

// Rewrite extracts every import in text (via internal/importgraph, so the
// two stay in lock-step) and replaces each one resolve maps to a new
// specifier, preserving everything else in the file byte-for-byte.
func Rewrite(path, text string, resolve Mapping) Result {
	imports, lang := importgraph.Extract(path, text)
	if len(imports) == 0 {
		return Result{Success: true, Content: text, EditsApplied: 0}
	}

	type splice struct {
		start, end int
		newText    string
	}
	var splices []splice
	for _, imp := range imports {
		newRaw, ok := resolve(imp, lang)
		if !ok || newRaw == imp.Raw {
			continue
		}
		splices = append(splices, splice{start: imp.Start, end: imp.End, newText: newRaw})
	}
	if len(splices) == 0 {
		return Result{Success: true, Content: text, EditsApplied: 0}
	}

	sort.Slice(splices, func(i, j int) bool { return splices[i].start < splices[j].start })
	for i := 1; i < len(splices); i++ {
		if splices[i].start < splices[i-1].end {
			// Overlapping Import ranges should be impossible (the extractors
			// never emit nested specifiers), but refuse rather than corrupt
			// the file if one ever does.
			return Result{Success: false, Content: text, EditsApplied: 0}
		}
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, sp := range splices {
		b.WriteString(text[cursor:sp.start])
		b.WriteString(sp.newText)
		cursor = sp.end
	}
	b.WriteString(text[cursor:])

	return Result{Success: true, Content: b.String(), EditsApplied: len(splices)}
}

// RelativeSpecifier rewrites a relative TS/JS-style specifier ("./a/b",
// "../c") so it still points at target's new location from the
// perspective of a file living at fromDir. A specifier that omits the
// target's TS/JS extension ("./util" for util.ts) also matches. Non-relative
// specifiers (package imports, bare module names) yield ("", false) so
// callers can skip them without a separate "is relative" check.
func RelativeSpecifier(raw string, fromDir, oldTarget, newTarget string, toSlash func(string) string, resolve func(dir, rel string) string, rel func(base, target string) (string, error)) (string, bool) {
	if !strings.HasPrefix(raw, ".") {
		return "", false
	}
	absOld := resolve(fromDir, raw)
	if absOld != oldTarget && !isWithin(absOld, oldTarget) {
		if absOld != stripKnownExt(oldTarget) {
			return "", false
		}
		oldTarget, newTarget = stripKnownExt(oldTarget), stripKnownExt(newTarget)
	}
	suffix := strings.TrimPrefix(absOld, oldTarget)
	absNew := newTarget + suffix
	relPath, err := rel(fromDir, absNew)
	if err != nil {
		return "", false
	}
	slashed := toSlash(relPath)
	if !strings.HasPrefix(slashed, ".") {
		slashed = "./" + slashed
	}
	return stripKnownExt(slashed), true
}

func isWithin(path, dir string) bool {
	return strings.HasPrefix(path, dir+"/") || path == dir
}

func stripKnownExt(specifier string) string {
	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"} {
		if strings.HasSuffix(specifier, ext) {
			return strings.TrimSuffix(specifier, ext)
		}
	}
	return specifier
}

// DottedModule rewrites a dotted module path (Python, Java, C#) when it
// equals oldModule or is a sub-path of it (oldModule + "." + rest),
// replacing the oldModule prefix with newModule. Used for languages whose
// import form names a module/package path rather than a relative file path.
func DottedModule(raw, oldModule, newModule string) (string, bool) {
	if raw == oldModule {
		return newModule, true
	}
	prefix := oldModule + "."
	if strings.HasPrefix(raw, prefix) {
		return newModule + "." + strings.TrimPrefix(raw, prefix), true
	}
	return "", false
}

// PathModule rewrites a slash- or namespace-separated module path (Go
// import path, Rust "::" path, Ruby/PHP require path) using the same
// prefix-or-equals rule as DottedModule, parameterized on the separator.
func PathModule(raw, oldModule, newModule, sep string) (string, bool) {
	if raw == oldModule {
		return newModule, true
	}
	prefix := oldModule + sep
	if strings.HasPrefix(raw, prefix) {
		return newModule + sep + strings.TrimPrefix(raw, prefix), true
	}
	return "", false
}
