// Package workspace provides .gitignore-aware directory scanning and
// file-watch registration fan-out. The scanner backs C9's importer
// enumeration (spec.md §4.7 step 2) and the workspace-symbol preloading
// path that starts language servers for every extension found under a
// root before the first workspace/symbol search. No .gitignore-matching
// library turned up anywhere in the example pack, so this uses stdlib
// regexp/path matching only (see DESIGN.md).
package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ignoreRule is one compiled .gitignore line.
type ignoreRule struct {
	re      *regexp.Regexp
	negate  bool
	dirOnly bool
}

// Ignorer matches paths against the accumulated .gitignore rules found
// while walking a tree, most-specific (deepest) directory's rules applied
// last so they can override an ancestor's.
type Ignorer struct {
	root  string
	rules map[string][]ignoreRule // directory (relative to root) -> its rules
}

// NewIgnorer loads every .gitignore file under root, indexed by the
// directory it was found in.
func NewIgnorer(root string) *Ignorer {
	ig := &Ignorer{root: root, rules: make(map[string][]ignoreRule)}
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.Name() != ".gitignore" {
			return nil
		}
		rel, relErr := filepath.Rel(root, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		ig.rules[filepath.ToSlash(rel)] = parseGitignore(path)
		return nil
	})
	return ig
}

func parseGitignore(path string) []ignoreRule {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var rules []ignoreRule
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		negate := strings.HasPrefix(trimmed, "!")
		if negate {
			trimmed = trimmed[1:]
		}
		dirOnly := strings.HasSuffix(trimmed, "/")
		trimmed = strings.TrimSuffix(trimmed, "/")
		trimmed = strings.TrimPrefix(trimmed, "/")

		re, err := globToRegexp(trimmed)
		if err != nil {
			continue
		}
		rules = append(rules, ignoreRule{re: re, negate: negate, dirOnly: dirOnly})
	}
	return rules
}

// globToRegexp converts a .gitignore glob pattern (supporting *, **, ?) into
// an anchored regexp matched against a path relative to the .gitignore's
// directory.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '|', '^', '$', '{', '}', '[', ']', '\\':
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		default:
			b.WriteRune(runes[i])
		}
	}
	b.WriteString("(/.*)?$")
	return regexp.Compile(b.String())
}

// Ignored reports whether relPath (slash-separated, relative to root)
// should be skipped, applying every ancestor directory's .gitignore rules
// in root-to-leaf order so deeper rules can re-include a path an ancestor
// excluded.
func (ig *Ignorer) Ignored(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	if base := filepath.Base(relPath); base == ".git" {
		return true
	}

	dirs := []string{""}
	parts := strings.Split(filepath.Dir(relPath), "/")
	cur := ""
	for _, p := range parts {
		if p == "." || p == "" {
			continue
		}
		if cur == "" {
			cur = p
		} else {
			cur = cur + "/" + p
		}
		dirs = append(dirs, cur)
	}

	ignored := false
	for _, dir := range dirs {
		rules, ok := ig.rules[dir]
		if !ok {
			continue
		}
		testPath := relPath
		if dir != "" {
			testPath = strings.TrimPrefix(relPath, dir+"/")
		}
		for _, r := range rules {
			if r.dirOnly && !isDir && !strings.Contains(testPath, "/") {
				continue
			}
			if r.re.MatchString(testPath) {
				ignored = !r.negate
			}
		}
	}
	return ignored
}

// Scan walks root and returns every regular file's path (relative to root,
// OS-separated), honoring .gitignore when useGitignore is true.
func Scan(root string, useGitignore bool) ([]string, error) {
	var ig *Ignorer
	if useGitignore {
		ig = NewIgnorer(root)
	}

	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if ig != nil && ig.Ignored(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}

// ExtensionsUnder returns the set of lowercase, dot-less extensions present
// among the files Scan finds under root, used to decide which language
// servers to preload before a workspace-wide symbol search.
func ExtensionsUnder(root string, useGitignore bool) (map[string]bool, error) {
	files, err := Scan(root, useGitignore)
	if err != nil {
		return nil, err
	}
	exts := make(map[string]bool)
	for _, f := range files {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f), "."))
		if ext != "" {
			exts[ext] = true
		}
	}
	return exts, nil
}
