package importgraph

import "strings"

// extractTSJS finds ES6 import/export-from specifiers, CommonJS require(...)
// calls, and dynamic import(...) calls in TypeScript/JavaScript source,
// using a small brace/string/comment-aware tokenizer rather than a full
// parser (see DESIGN.md: no JS/TS AST library exists anywhere in the
// example pack). It tracks just enough state — string delimiters and
// line/block comments — to avoid matching the keywords inside them.
func extractTSJS(text string) []Import {
	var out []Import
	lineOf := newLineIndex(text)
	n := len(text)

	for i := 0; i < n; i++ {
		c := text[i]

		switch {
		case c == '/' && i+1 < n && text[i+1] == '/':
			i = skipLineComment(text, i)
			continue
		case c == '/' && i+1 < n && text[i+1] == '*':
			i = skipBlockComment(text, i)
			continue
		case c == '"' || c == '\'' || c == '`':
			i = skipString(text, i, c)
			continue
		}

		if isWordBoundaryStart(text, i) {
			if spec, end, ok := matchKeywordSpecifier(text, i, "import"); ok {
				out = append(out, Import{Raw: spec.raw, Line: lineOf(spec.start), Start: spec.start, End: spec.end})
				i = end - 1
				continue
			}
			if spec, end, ok := matchKeywordSpecifier(text, i, "export"); ok {
				out = append(out, Import{Raw: spec.raw, Line: lineOf(spec.start), Start: spec.start, End: spec.end})
				i = end - 1
				continue
			}
			if spec, end, ok := matchCallSpecifier(text, i, "require"); ok {
				out = append(out, Import{Raw: spec.raw, Line: lineOf(spec.start), Start: spec.start, End: spec.end})
				i = end - 1
				continue
			}
		}
	}
	return out
}

type specifier struct {
	raw        string
	start, end int
}

func isWordBoundaryStart(text string, i int) bool {
	if i == 0 {
		return true
	}
	prev := text[i-1]
	return !(isIdentByte(prev))
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// matchKeywordSpecifier recognizes `import ... from "spec"` / `export ...
// from "spec"` / bare `import "spec"`, returning the quoted specifier and
// the index just past its closing quote.
func matchKeywordSpecifier(text string, i int, keyword string) (specifier, int, bool) {
	if !strings.HasPrefix(text[i:], keyword) {
		return specifier{}, 0, false
	}
	rest := i + len(keyword)
	if rest < len(text) && isIdentByte(text[rest]) {
		return specifier{}, 0, false
	}

	lineEnd := strings.IndexByte(text[i:], '\n')
	searchEnd := len(text)
	if lineEnd >= 0 {
		// import/export statements may span lines when they have a brace
		// list; scan forward to the statement-ending semicolon or quote
		// that appears after a "from" keyword, bounded generously.
		if idx := strings.Index(text[i:], "from"); idx >= 0 && idx < 2000 {
			searchEnd = i + idx + len("from") + 200
			if searchEnd > len(text) {
				searchEnd = len(text)
			}
		} else if keyword == "import" {
			searchEnd = i + lineEnd
		}
	}

	window := text[i:searchEnd]
	qStart := strings.IndexAny(window, `"'`)
	if qStart < 0 {
		return specifier{}, 0, false
	}
	q := window[qStart]
	rawStart := i + qStart + 1
	qEndRel := strings.IndexByte(text[rawStart:searchEnd], q)
	if qEndRel < 0 {
		return specifier{}, 0, false
	}
	rawEnd := rawStart + qEndRel
	return specifier{raw: text[rawStart:rawEnd], start: rawStart, end: rawEnd}, rawEnd + 1, true
}

// matchCallSpecifier recognizes `require("spec")` and `import("spec")` call
// forms.
func matchCallSpecifier(text string, i int, keyword string) (specifier, int, bool) {
	if !strings.HasPrefix(text[i:], keyword) {
		return specifier{}, 0, false
	}
	j := i + len(keyword)
	for j < len(text) && text[j] == ' ' {
		j++
	}
	if j >= len(text) || text[j] != '(' {
		return specifier{}, 0, false
	}
	j++
	for j < len(text) && text[j] == ' ' {
		j++
	}
	if j >= len(text) || (text[j] != '"' && text[j] != '\'') {
		return specifier{}, 0, false
	}
	q := text[j]
	rawStart := j + 1
	qEndRel := strings.IndexByte(text[rawStart:], q)
	if qEndRel < 0 {
		return specifier{}, 0, false
	}
	rawEnd := rawStart + qEndRel
	closeParen := strings.IndexByte(text[rawEnd:], ')')
	if closeParen < 0 {
		return specifier{}, 0, false
	}
	return specifier{raw: text[rawStart:rawEnd], start: rawStart, end: rawEnd}, rawEnd + closeParen + 1, true
}

func skipLineComment(text string, i int) int {
	end := strings.IndexByte(text[i:], '\n')
	if end < 0 {
		return len(text)
	}
	return i + end
}

func skipBlockComment(text string, i int) int {
	end := strings.Index(text[i+2:], "*/")
	if end < 0 {
		return len(text)
	}
	return i + 2 + end + 1
}

func skipString(text string, i int, quote byte) int {
	for j := i + 1; j < len(text); j++ {
		if text[j] == '\\' {
			j++
			continue
		}
		if text[j] == quote {
			return j
		}
	}
	return len(text)
}
