package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURIRoundTrip(t *testing.T) {
	path := "/tmp/workspace/main.go"
	uri := ToURI(path)
	assert.Equal(t, "file:///tmp/workspace/main.go", string(uri))
	assert.Equal(t, path, ToPath(uri))
}

func TestToURI_RelativeBecomesAbsolute(t *testing.T) {
	uri := ToURI("relative/file.go")
	assert.Contains(t, string(uri), "file://")
	assert.NotContains(t, string(uri), "relative/file.go\x00")
}

func TestCanonical(t *testing.T) {
	abs, err := Canonical("/tmp/a/../b/file.go")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/b/file.go", abs)
}

func TestPositionConversion(t *testing.T) {
	lsp := ToLSP(HumanPosition{Line: 1, Character: 1})
	assert.Equal(t, uint32(0), lsp.Line)
	assert.Equal(t, uint32(0), lsp.Character)

	human := ToHuman(lsp)
	assert.Equal(t, HumanPosition{Line: 1, Character: 1}, human)
}

func TestToLSP_ClampsNegative(t *testing.T) {
	lsp := ToLSP(HumanPosition{Line: 0, Character: 0})
	assert.Equal(t, uint32(0), lsp.Line)
	assert.Equal(t, uint32(0), lsp.Character)
}

func TestUTF16ColumnOf_BMPOnly(t *testing.T) {
	line := "hello world"
	assert.Equal(t, 5, UTF16ColumnOf(line, 5))
}

func TestUTF16ColumnOf_SurrogatePair(t *testing.T) {
	// U+1F600 (grinning face) is outside the BMP and encodes as a UTF-16
	// surrogate pair, so it counts as two code units.
	line := "a\U0001F600b"
	assert.Equal(t, 1, UTF16ColumnOf(line, 1))
	assert.Equal(t, 3, UTF16ColumnOf(line, 2))
	assert.Equal(t, 4, UTF16ColumnOf(line, 3))
}

func TestRuneColumnOf_IsInverseOfUTF16ColumnOf(t *testing.T) {
	line := "a\U0001F600b"
	for runeCol := 0; runeCol <= len([]rune(line)); runeCol++ {
		utf16Col := UTF16ColumnOf(line, runeCol)
		assert.Equal(t, runeCol, RuneColumnOf(line, utf16Col))
	}
}

func TestLanguageID(t *testing.T) {
	cases := map[string]string{
		"ts":      "typescript",
		".tsx":    "typescriptreact",
		"JS":      "javascript",
		"mjs":     "javascript",
		"py":      "python",
		"go":      "go",
		"unknown": "plaintext",
	}
	for ext, want := range cases {
		assert.Equal(t, want, LanguageID(ext), "ext=%s", ext)
	}
}

func TestExt(t *testing.T) {
	assert.Equal(t, "go", Ext("/a/b/main.GO"))
	assert.Equal(t, "", Ext("/a/b/Makefile"))
}

func TestOffset(t *testing.T) {
	text := "line one\nline two\nline three"
	off, err := Offset(text, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, len("line one\n")+5, off)
}

func TestOffset_EndOfFile(t *testing.T) {
	text := "abc\ndef"
	off, err := Offset(text, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, len(text), off)
}

func TestOffset_OutOfRange(t *testing.T) {
	_, err := Offset("abc", 5, 0)
	require.Error(t, err)
}

func TestOffset_NegativeLine(t *testing.T) {
	_, err := Offset("abc", -1, 0)
	require.Error(t, err)
}
