// Package importgraph extracts import/require/use statements per source
// file across the eight languages spec.md §4.6 names (C7). Each extractor
// returns a list of Import records; internal/importrewrite consumes the same
// per-language dispatch to rewrite them after a file move.
package importgraph

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Import is one resolved import/require/use statement found in a file.
type Import struct {
	// Raw is the module specifier exactly as written (e.g. "./a/b",
	// "a.b.c", "a::b::c").
	Raw string
	// Line is the 0-indexed line the statement starts on.
	Line int
	// Start, End are the byte offsets of Raw within the source text, so the
	// rewriter can splice a replacement specifier without re-parsing the
	// statement around it.
	Start, End int
}

// Language identifies which extractor/rewriter pair to use. It is distinct
// from pathutil.LanguageID (the LSP languageId) because several LSP
// languageIds collapse into a single import dialect here.
type Language string

const (
	LangTSJS   Language = "tsjs"
	LangPython Language = "python"
	LangGo     Language = "go"
	LangRust   Language = "rust"
	LangJava   Language = "java"
	LangCSharp Language = "csharp"
	LangRuby   Language = "ruby"
	LangPHP    Language = "php"
	LangNone   Language = ""
)

// LanguageFor maps a lowercase, dot-less file extension to the import
// dialect used to parse and rewrite it (spec.md §4.6).
func LanguageFor(ext string) Language {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "ts", "tsx", "js", "jsx", "mjs", "cjs":
		return LangTSJS
	case "py":
		return LangPython
	case "go":
		return LangGo
	case "rs":
		return LangRust
	case "java":
		return LangJava
	case "cs":
		return LangCSharp
	case "rb":
		return LangRuby
	case "php":
		return LangPHP
	default:
		return LangNone
	}
}

// Extract returns every import found in text for the language path's
// extension maps to. Returns (nil, LangNone) for unrecognized extensions.
func Extract(path, text string) ([]Import, Language) {
	lang := LanguageFor(strings.TrimPrefix(filepath.Ext(path), "."))
	switch lang {
	case LangTSJS:
		return extractTSJS(text), lang
	case LangPython:
		return extractRegex(text, pythonImportRe), lang
	case LangGo:
		return extractGo(text), lang
	case LangRust:
		return extractRegex(text, rustImportRe), lang
	case LangJava:
		return extractRegex(text, javaImportRe), lang
	case LangCSharp:
		return extractRegex(text, csharpImportRe), lang
	case LangRuby:
		return extractRegex(text, rubyImportRe), lang
	case LangPHP:
		return extractRegex(text, phpImportRe), lang
	default:
		return nil, LangNone
	}
}

// Anchored, line-start regexes with whitespace tolerance, per spec.md §4.6's
// "For languages other than TS/JS/JSX/TSX/MJS/CJS, extraction uses anchored
// regexes at line start with whitespace tolerance."
var (
	pythonImportRe = regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`)
	rustImportRe   = regexp.MustCompile(`(?m)^\s*(?:use\s+([\w:]+)|mod\s+(\w+))\s*;?`)
	javaImportRe   = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.]+(?:\.\*)?)\s*;`)
	csharpImportRe = regexp.MustCompile(`(?m)^\s*using\s+(?:\w+\s*=\s*)?([\w.]+)\s*;`)
	rubyImportRe   = regexp.MustCompile(`(?m)^\s*(?:require_relative|require|load)\s+["']([^"']+)["']`)
	phpImportRe    = regexp.MustCompile(`(?m)^\s*(?:use\s+([\w\\]+)\s*;|(?:require|include)(?:_once)?\s*\(?\s*["']([^"']+)["'])`)
)

func extractRegex(text string, re *regexp.Regexp) []Import {
	var out []Import
	lineOf := newLineIndex(text)
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		start, end, ok := firstNonEmptyGroup(m)
		if !ok {
			continue
		}
		out = append(out, Import{Raw: text[start:end], Line: lineOf(m[0]), Start: start, End: end})
	}
	return out
}

func firstNonEmptyGroup(m []int) (start, end int, ok bool) {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] < 0 {
			continue
		}
		if m[i+1] > m[i] {
			return m[i], m[i+1], true
		}
	}
	return 0, 0, false
}

// newLineIndex returns a function converting a byte offset to its 0-indexed
// line number, built once per extraction pass rather than rescanning per
// match.
func newLineIndex(text string) func(offset int) int {
	starts := []int{0}
	for i, r := range text {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return func(offset int) int {
		lo, hi := 0, len(starts)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if starts[mid] <= offset {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return lo
	}
}

// goSingleImportRe matches a single-import line and goGroupStartRe the
// opening of a grouped import block; extractGo scans the grouped body
// itself with goGroupLineRe.
var (
	goSingleImportRe = regexp.MustCompile(`(?m)^\s*import\s+"([^"]+)"`)
	goGroupStartRe   = regexp.MustCompile(`(?m)^\s*import\s*\(`)
	goGroupLineRe    = regexp.MustCompile(`(?m)^\s*(?:\w+\s+)?"([^"]+)"`)
)

// extractGo handles Go's two import forms (spec.md §4.6): a single
// `import "pkg"` line, and a parenthesized `import ( "pkg" ... )` block.
func extractGo(text string) []Import {
	lineOf := newLineIndex(text)
	var out []Import
	for _, m := range goSingleImportRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, Import{Raw: text[m[2]:m[3]], Line: lineOf(m[0]), Start: m[2], End: m[3]})
	}

	loc := goGroupStartRe.FindStringIndex(text)
	if loc == nil {
		return out
	}
	closeIdx := strings.Index(text[loc[1]:], ")")
	if closeIdx < 0 {
		return out
	}
	body := text[loc[1] : loc[1]+closeIdx]
	bodyStart := loc[1]
	for _, m := range goGroupLineRe.FindAllStringSubmatchIndex(body, -1) {
		out = append(out, Import{Raw: body[m[2]:m[3]], Line: lineOf(bodyStart + m[0]), Start: bodyStart + m[2], End: bodyStart + m[3]})
	}
	return out
}
