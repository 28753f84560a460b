// Package pathutil centralizes the file:// <-> filesystem path conversions
// and 1-indexed human <-> 0-indexed LSP position conversions that the
// teacher scattered as inline "file://"+path / strings.TrimPrefix calls
// across internal/tools/*.go (C1 in the component design).
package pathutil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/symbridge/symbridge/internal/protocol"
)

// ToURI converts an absolute filesystem path to a file:// URI. On Windows,
// the drive letter is preserved after the third slash (file:///C:/...).
func ToURI(path string) protocol.DocumentUri {
	abs := path
	if !filepath.IsAbs(abs) {
		if a, err := filepath.Abs(abs); err == nil {
			abs = a
		}
	}
	slashed := filepath.ToSlash(abs)
	if runtime.GOOS == "windows" || hasWindowsDrive(slashed) {
		if !strings.HasPrefix(slashed, "/") {
			slashed = "/" + slashed
		}
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return protocol.DocumentUri(u.String())
}

// ToPath converts a file:// URI back to a canonical filesystem path.
func ToPath(uri protocol.DocumentUri) string {
	s := string(uri)
	if u, err := url.Parse(s); err == nil && u.Scheme == "file" {
		p := u.Path
		if hasWindowsDrive(strings.TrimPrefix(p, "/")) {
			p = strings.TrimPrefix(p, "/")
		}
		return filepath.FromSlash(p)
	}
	return filepath.FromSlash(strings.TrimPrefix(s, "file://"))
}

func hasWindowsDrive(p string) bool {
	return len(p) >= 2 && p[1] == ':' && isASCIILetter(p[0])
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Canonical returns an absolute, cleaned path for comparison and as the
// fixed point of the P2 URI round-trip property.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// HumanPosition is a 1-indexed (line, character) position, the form used at
// the MCP tool boundary (spec.md §3).
type HumanPosition struct {
	Line      int
	Character int
}

// ToLSP converts a 1-indexed human position to a 0-indexed LSP position.
// Character offsets at this layer are counted in runes; UTF16ColumnOf
// converts a rune column to the LSP UTF-16 code-unit column when the exact
// column matters (multi-byte characters before the target column).
func ToLSP(h HumanPosition) protocol.Position {
	line := h.Line - 1
	char := h.Character - 1
	if line < 0 {
		line = 0
	}
	if char < 0 {
		char = 0
	}
	return protocol.Position{Line: uint32(line), Character: uint32(char)}
}

// ToHuman converts a 0-indexed LSP position to a 1-indexed human position.
func ToHuman(p protocol.Position) HumanPosition {
	return HumanPosition{Line: int(p.Line) + 1, Character: int(p.Character) + 1}
}

// UTF16ColumnOf returns the 0-indexed UTF-16 code-unit offset of the rune
// column runeCol (0-indexed) within line. LSP character offsets are defined
// in UTF-16 code units (not bytes, not runes), so a line containing
// characters outside the Basic Multilingual Plane needs this accounting to
// land on the right column; golang.org/x/text/encoding/unicode gives us a
// UTF-8 -> UTF-16 transformer to count code units without hand-rolling
// surrogate-pair arithmetic.
func UTF16ColumnOf(line string, runeCol int) int {
	runes := []rune(line)
	if runeCol > len(runes) {
		runeCol = len(runes)
	}
	prefix := string(runes[:runeCol])

	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	encoded, _, err := transform.String(enc.NewEncoder(), prefix)
	if err != nil {
		// Fall back to rune count, which is correct for BMP-only text.
		return runeCol
	}
	return len(encoded) / 2
}

// RuneColumnOf is the inverse of UTF16ColumnOf: given a line and a 0-indexed
// UTF-16 code-unit column, returns the corresponding rune column.
func RuneColumnOf(line string, utf16Col int) int {
	runes := []rune(line)
	units := 0
	for i, r := range runes {
		if units >= utf16Col {
			return i
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return len(runes)
}

// LanguageID maps a lowercase, dot-less file extension to its LSP languageId
// (spec.md §6, the authoritative extension -> languageId table).
func LanguageID(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "ts":
		return "typescript"
	case "tsx":
		return "typescriptreact"
	case "js", "mjs", "cjs":
		return "javascript"
	case "jsx":
		return "javascriptreact"
	case "py":
		return "python"
	case "go":
		return "go"
	case "rs":
		return "rust"
	case "java", "jar", "class":
		return "java"
	case "cpp", "hpp":
		return "cpp"
	case "c", "h":
		return "c"
	case "rb":
		return "ruby"
	case "php":
		return "php"
	case "cs":
		return "csharp"
	case "kt":
		return "kotlin"
	case "swift":
		return "swift"
	default:
		return "plaintext"
	}
}

// Ext returns the lowercase, dot-less extension of path, matching the
// normalization spec.md §3 requires for ServerConfig.Extensions.
func Ext(path string) string {
	e := filepath.Ext(path)
	return strings.ToLower(strings.TrimPrefix(e, "."))
}

// Offset converts a 0-indexed LSP Position within text to a byte offset,
// the form the edit engine needs to splice newText into a file's raw bytes
// (spec.md §4.5 step 4). pos.Character is a UTF-16 code-unit column and is
// converted back to a rune, then byte, offset via RuneColumnOf.
func Offset(text string, line int, utf16Char int) (int, error) {
	lines := strings.SplitAfter(text, "\n")
	if line < 0 {
		return 0, fmt.Errorf("negative line %d", line)
	}
	if line >= len(lines) {
		if line == len(lines) && utf16Char == 0 {
			return len(text), nil
		}
		return 0, fmt.Errorf("line %d out of range (file has %d lines)", line, len(lines))
	}

	offset := 0
	for i := 0; i < line; i++ {
		offset += len(lines[i])
	}

	rawLine := strings.TrimSuffix(lines[line], "\n")
	rawLine = strings.TrimSuffix(rawLine, "\r")

	runes := []rune(rawLine)
	runeCol := RuneColumnOf(rawLine, utf16Char)
	if runeCol > len(runes) {
		runeCol = len(runes)
	}
	offset += len(string(runes[:runeCol]))
	return offset, nil
}
