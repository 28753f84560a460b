// Package symbols implements symbol lookup and position-robust resolution
// (C5): document/workspace symbol search, name+kind matching with a
// kind-less fallback, and rename delegation with response-shape
// normalization.
package symbols

import (
	"context"
	"strings"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/lsp"
	"github.com/symbridge/symbridge/internal/pathutil"
	"github.com/symbridge/symbridge/internal/protocol"
)

// Match is one symbol-name match inside a document, with the position
// refined to the symbol name's actual offset on its line (flat
// SymbolInformation results only carry the start of the enclosing
// declaration, not the name itself).
type Match struct {
	Name     string
	Kind     protocol.SymbolKind
	Range    protocol.Range
	Position protocol.Position
	// FallbackFromKind is set when the caller's requested kind produced no
	// match and Match instead reports every name match regardless of kind.
	FallbackFromKind bool
}

// Service resolves symbols against whichever server a file's extension
// routes to.
type Service struct {
	supervisor *lsp.Supervisor
	docs       *Opener
}

// Opener abstracts "make sure this file is open against its server and
// return its current text", which both Service and the edit engine need but
// which belongs logically to C4's bookkeeping, not here.
type Opener interface {
	Ensure(ctx context.Context, path string) (*lsp.ServerState, protocol.DocumentUri, string, error)
}

// New builds a Service over supervisor, using opener to guarantee a file is
// open (and up to date) before issuing any symbol request against it.
func New(supervisor *lsp.Supervisor, opener Opener) *Service {
	return &Service{supervisor: supervisor, docs: opener}
}

// FindSymbolMatches loads document symbols for path and returns every one
// named exactly name. If kind is non-nil and produces no match, it retries
// without the kind filter and sets FallbackFromKind on every result
// (spec.md §4.4).
func (s *Service) FindSymbolMatches(ctx context.Context, path, name string, kind *protocol.SymbolKind) ([]Match, error) {
	st, uri, text, err := s.docs.Ensure(ctx, path)
	if err != nil {
		return nil, err
	}

	var raw any
	if err := st.Call(ctx, lsp.DefaultCallTimeout, "textDocument/documentSymbol",
		protocol.DocumentSymbolParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}}, &raw); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "documentSymbol request")
	}

	flat := flattenSymbolResult(raw, text)

	matches := filterByName(flat, name, kind)
	if len(matches) == 0 && kind != nil {
		matches = filterByName(flat, name, nil)
		for i := range matches {
			matches[i].FallbackFromKind = true
		}
	}
	return matches, nil
}

// ListSymbols loads every document symbol in path, regardless of name or
// kind, flattened to one slice (hierarchical children included). Used by
// the get_document_symbols tool and by C9's dead-code analysis to find
// every exportable-kind declaration in a file.
func (s *Service) ListSymbols(ctx context.Context, path string) ([]Match, error) {
	st, uri, text, err := s.docs.Ensure(ctx, path)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := st.Call(ctx, lsp.DefaultCallTimeout, "textDocument/documentSymbol",
		protocol.DocumentSymbolParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}}, &raw); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "documentSymbol request")
	}
	return flattenSymbolResult(raw, text), nil
}

func filterByName(flat []Match, name string, kind *protocol.SymbolKind) []Match {
	var out []Match
	for _, m := range flat {
		if m.Name != name {
			continue
		}
		if kind != nil && m.Kind != *kind {
			continue
		}
		out = append(out, m)
	}
	return out
}

// flattenSymbolResult decodes the dynamically-shaped documentSymbol result
// (hierarchical []DocumentSymbol, or flat []SymbolInformation) into a single
// flat slice, refining flat results' position to the name's column on its
// declaration line (the server only gives the start of the whole
// declaration for SymbolInformation).
func flattenSymbolResult(raw any, text string) []Match {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	lines := strings.Split(text, "\n")

	if isDocumentSymbolShape(items[0]) {
		var out []Match
		for _, it := range items {
			out = append(out, flattenDocumentSymbol(it, "")...)
		}
		return out
	}

	var out []Match
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		kindF, _ := m["kind"].(float64)
		loc, _ := m["location"].(map[string]any)
		rng := decodeRange(loc["range"])
		out = append(out, Match{
			Name:     name,
			Kind:     protocol.SymbolKind(int(kindF)),
			Range:    rng,
			Position: refinePosition(lines, rng.Start, name),
		})
	}
	return out
}

func isDocumentSymbolShape(first any) bool {
	m, ok := first.(map[string]any)
	if !ok {
		return false
	}
	_, hasSelectionRange := m["selectionRange"]
	return hasSelectionRange
}

func flattenDocumentSymbol(raw any, containerPrefix string) []Match {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	name, _ := m["name"].(string)
	kindF, _ := m["kind"].(float64)
	selRange := decodeRange(m["selectionRange"])
	rng := decodeRange(m["range"])

	out := []Match{{
		Name:     name,
		Kind:     protocol.SymbolKind(int(kindF)),
		Range:    rng,
		Position: selRange.Start,
	}}
	if children, ok := m["children"].([]any); ok {
		for _, c := range children {
			out = append(out, flattenDocumentSymbol(c, containerPrefix+name+".")...)
		}
	}
	return out
}

func decodeRange(raw any) protocol.Range {
	m, ok := raw.(map[string]any)
	if !ok {
		return protocol.Range{}
	}
	return protocol.Range{
		Start: decodePosition(m["start"]),
		End:   decodePosition(m["end"]),
	}
}

func decodePosition(raw any) protocol.Position {
	m, ok := raw.(map[string]any)
	if !ok {
		return protocol.Position{}
	}
	line, _ := m["line"].(float64)
	char, _ := m["character"].(float64)
	return protocol.Position{Line: uint32(line), Character: uint32(char)}
}

// refinePosition scans decl's line for name's rune offset, converts it to a
// UTF-16 column, and returns a position pointing at the name itself rather
// than the start of the whole declaration.
func refinePosition(lines []string, declStart protocol.Position, name string) protocol.Position {
	if int(declStart.Line) >= len(lines) || name == "" {
		return declStart
	}
	line := lines[declStart.Line]
	idx := strings.Index(line, name)
	if idx < 0 {
		return declStart
	}
	runeCol := len([]rune(line[:idx]))
	return protocol.Position{
		Line:      declStart.Line,
		Character: uint32(pathutil.UTF16ColumnOf(line, runeCol)),
	}
}

// FindDefinition delegates to textDocument/definition, normalizing the
// result (single Location, array, or null) to a list.
func (s *Service) FindDefinition(ctx context.Context, path string, pos protocol.Position) ([]protocol.Location, error) {
	st, uri, _, err := s.docs.Ensure(ctx, path)
	if err != nil {
		return nil, err
	}
	if !st.HasCapability("definitionProvider") {
		return nil, bridgeerr.New(bridgeerr.CapabilityUnsupported, "server does not support go-to-definition")
	}
	var raw any
	if err := st.Call(ctx, lsp.DefaultCallTimeout, "textDocument/definition",
		protocol.DefinitionParams{TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri}, Position: pos,
		}}, &raw); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "definition request")
	}
	return normalizeLocations(raw), nil
}

// FindReferences delegates to textDocument/references.
func (s *Service) FindReferences(ctx context.Context, path string, pos protocol.Position, includeDeclaration bool) ([]protocol.Location, error) {
	st, uri, _, err := s.docs.Ensure(ctx, path)
	if err != nil {
		return nil, err
	}
	if !st.HasCapability("referencesProvider") {
		return nil, bridgeerr.New(bridgeerr.CapabilityUnsupported, "server does not support find-references")
	}
	var raw []protocol.Location
	err = st.Call(ctx, lsp.DefaultCallTimeout, "textDocument/references",
		protocol.ReferenceParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{
				TextDocument: protocol.TextDocumentIdentifier{URI: uri}, Position: pos,
			},
			Context: protocol.ReferenceContext{IncludeDeclaration: includeDeclaration},
		}, &raw)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "references request")
	}
	return raw, nil
}

func normalizeLocations(raw any) []protocol.Location {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]protocol.Location, 0, len(v))
		for _, it := range v {
			if m, ok := it.(map[string]any); ok {
				out = append(out, decodeLocation(m))
			}
		}
		return out
	case map[string]any:
		return []protocol.Location{decodeLocation(v)}
	default:
		return nil
	}
}

func decodeLocation(m map[string]any) protocol.Location {
	uri, _ := m["uri"].(string)
	return protocol.Location{URI: protocol.DocumentUri(uri), Range: decodeRange(m["range"])}
}

// RenameResult is the normalized WorkspaceEdit-shaped result of a rename,
// always reported as the legacy {changes} map regardless of which shape the
// server returned (spec.md §4.4).
type RenameResult struct {
	Changes map[protocol.DocumentUri][]protocol.TextEdit
}

// RenameAt sends textDocument/rename at pos and normalizes the response.
func (s *Service) RenameAt(ctx context.Context, path string, pos protocol.Position, newName string) (*RenameResult, error) {
	st, uri, _, err := s.docs.Ensure(ctx, path)
	if err != nil {
		return nil, err
	}
	if !st.HasCapability("renameProvider") {
		return nil, bridgeerr.New(bridgeerr.CapabilityUnsupported, "server does not support rename")
	}

	var edit protocol.WorkspaceEdit
	err = st.Call(ctx, lsp.DefaultCallTimeout, "textDocument/rename",
		protocol.RenameParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{
				TextDocument: protocol.TextDocumentIdentifier{URI: uri}, Position: pos,
			},
			NewName: newName,
		}, &edit)
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "rename request")
	}
	return &RenameResult{Changes: CollapseWorkspaceEdit(edit)}, nil
}

// CollapseWorkspaceEdit merges a WorkspaceEdit's legacy Changes map and
// modern DocumentChanges slice into one {uri: edits} map, aggregating edits
// per URI when a server reports only the modern shape.
func CollapseWorkspaceEdit(edit protocol.WorkspaceEdit) map[protocol.DocumentUri][]protocol.TextEdit {
	out := make(map[protocol.DocumentUri][]protocol.TextEdit, len(edit.Changes))
	for uri, edits := range edit.Changes {
		out[uri] = append(out[uri], edits...)
	}
	for _, dc := range edit.DocumentChanges {
		if dc.TextDocumentEdit == nil {
			continue
		}
		uri := dc.TextDocumentEdit.TextDocument.URI
		out[uri] = append(out[uri], dc.TextDocumentEdit.Edits...)
	}
	return out
}

// PositionVariant is one candidate position tried by MultiPositionRename.
type PositionVariant struct {
	Label    string
	Position protocol.Position
}

// Variants returns the position itself plus the line±1/col±1 candidates
// spec.md §4.4 allows a caller to retry through when the exact column may be
// off by one due to tab/indentation ambiguity.
func Variants(pos protocol.Position) []PositionVariant {
	variants := []PositionVariant{{"exact", pos}}
	if pos.Line > 0 {
		variants = append(variants, PositionVariant{"line-1", protocol.Position{Line: pos.Line - 1, Character: pos.Character}})
	}
	variants = append(variants, PositionVariant{"line+1", protocol.Position{Line: pos.Line + 1, Character: pos.Character}})
	if pos.Character > 0 {
		variants = append(variants, PositionVariant{"char-1", protocol.Position{Line: pos.Line, Character: pos.Character - 1}})
	}
	variants = append(variants, PositionVariant{"char+1", protocol.Position{Line: pos.Line, Character: pos.Character + 1}})
	return variants
}

// RenameAtFuzzy tries RenameAt at pos and, if it yields no changes, retries
// the line±1/col±1 variants in order, returning the first non-empty result
// and which variant produced it. Only the rename_symbol tool calls it; other
// callers use RenameAt, which tries the exact position only.
func (s *Service) RenameAtFuzzy(ctx context.Context, path string, pos protocol.Position, newName string) (*RenameResult, string, error) {
	var lastErr error
	for _, v := range Variants(pos) {
		res, err := s.RenameAt(ctx, path, v.Position, newName)
		if err != nil {
			lastErr = err
			continue
		}
		if len(res.Changes) > 0 {
			return res, v.Label, nil
		}
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", bridgeerr.New(bridgeerr.ValidationError, "rename produced no changes at any candidate position")
}

// SearchWorkspace issues workspace/symbol against every running server
// (or a single one, if restrictTo is non-nil) and aggregates results.
func (s *Service) SearchWorkspace(ctx context.Context, query string, restrictTo *lsp.ServerState) ([]protocol.SymbolInformation, error) {
	targets := []*lsp.ServerState{restrictTo}
	if restrictTo == nil {
		targets = s.supervisor.Servers()
	}

	var all []protocol.SymbolInformation
	for _, st := range targets {
		if st == nil || !st.HasCapability("workspaceSymbolProvider") {
			continue
		}
		var results []protocol.SymbolInformation
		if err := st.Call(ctx, lsp.DefaultCallTimeout, "workspace/symbol", protocol.WorkspaceSymbolParams{Query: query}, &results); err != nil {
			continue
		}
		all = append(all, results...)
	}
	return all, nil
}
