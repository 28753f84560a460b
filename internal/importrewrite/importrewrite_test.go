package importrewrite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbridge/symbridge/internal/importgraph"
)

func TestRewrite_SplicesWithoutReformatting(t *testing.T) {
	text := "package main\n\nimport \"old/pkg\"\n\nfunc main() {}\n"
	resolve := func(imp importgraph.Import, lang importgraph.Language) (string, bool) {
		if imp.Raw == "old/pkg" {
			return "new/pkg", true
		}
		return "", false
	}

	res := Rewrite("main.go", text, resolve)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.EditsApplied)
	assert.Equal(t, "package main\n\nimport \"new/pkg\"\n\nfunc main() {}\n", res.Content)
}

func TestRewrite_NoMatchingImportsLeavesTextUnchanged(t *testing.T) {
	text := "package main\n\nimport \"unrelated/pkg\"\n"
	resolve := func(importgraph.Import, importgraph.Language) (string, bool) { return "", false }

	res := Rewrite("main.go", text, resolve)
	require.True(t, res.Success)
	assert.Equal(t, 0, res.EditsApplied)
	assert.Equal(t, text, res.Content)
}

func TestRewrite_NoImportsAtAll(t *testing.T) {
	text := "plain text with no imports"
	res := Rewrite("notes.txt", text, func(importgraph.Import, importgraph.Language) (string, bool) { return "", false })
	assert.True(t, res.Success)
	assert.Equal(t, text, res.Content)
}

func TestRewrite_MultipleSplicesPreserveOrder(t *testing.T) {
	text := "import (\n\t\"a/one\"\n\t\"a/two\"\n)\n"
	resolve := func(imp importgraph.Import, _ importgraph.Language) (string, bool) {
		switch imp.Raw {
		case "a/one":
			return "b/one", true
		case "a/two":
			return "b/two", true
		}
		return "", false
	}
	res := Rewrite("x.go", text, resolve)
	require.True(t, res.Success)
	assert.Equal(t, 2, res.EditsApplied)
	assert.Equal(t, "import (\n\t\"b/one\"\n\t\"b/two\"\n)\n", res.Content)
}

func TestDottedModule(t *testing.T) {
	newRaw, ok := DottedModule("pkg.old", "pkg.old", "pkg.new")
	require.True(t, ok)
	assert.Equal(t, "pkg.new", newRaw)

	newRaw, ok = DottedModule("pkg.old.sub", "pkg.old", "pkg.new")
	require.True(t, ok)
	assert.Equal(t, "pkg.new.sub", newRaw)

	_, ok = DottedModule("other.module", "pkg.old", "pkg.new")
	assert.False(t, ok)
}

func TestPathModule(t *testing.T) {
	newRaw, ok := PathModule("a::b::c", "a::b", "x::y", "::")
	require.True(t, ok)
	assert.Equal(t, "x::y::c", newRaw)

	_, ok = PathModule("unrelated::path", "a::b", "x::y", "::")
	assert.False(t, ok)
}

func TestRelativeSpecifier(t *testing.T) {
	toSlash := filepath.ToSlash
	resolveFn := func(dir, rel string) string { return filepath.Clean(filepath.Join(dir, rel)) }
	relFn := func(base, target string) (string, error) { return filepath.Rel(base, target) }

	newRaw, ok := RelativeSpecifier("./old", "/proj/src", "/proj/src/old", "/proj/src/moved/old", toSlash, resolveFn, relFn)
	require.True(t, ok)
	assert.Equal(t, "./moved/old", newRaw)
}

func TestRelativeSpecifier_NonRelativeIsSkipped(t *testing.T) {
	toSlash := filepath.ToSlash
	resolveFn := func(dir, rel string) string { return filepath.Clean(filepath.Join(dir, rel)) }
	relFn := func(base, target string) (string, error) { return filepath.Rel(base, target) }

	_, ok := RelativeSpecifier("some-package", "/proj/src", "/proj/src/old", "/proj/src/moved/old", toSlash, resolveFn, relFn)
	assert.False(t, ok)
}
