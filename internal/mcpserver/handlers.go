// Package mcpserver wires internal/registry's tool table into
// github.com/metoro-io/mcp-golang, exactly as the teacher's tools.go wires
// its own per-tool functions into the same library, generalized from one
// language server to whichever the supervisor routes a file to.
//
// Each tool's business logic lives as a registry.Handler — a function of
// (ctx, ServiceContext, json.RawMessage) — registered once into a
// registry.Builder in RegisterAll below. That same Handler backs two call
// paths: the static, typed mcp-golang registration built in server.go (the
// ordinary MCP tool surface an agent calls directly), and
// internal/batch.Executor's dynamic per-operation dispatch for
// batch_execute, where a sub-operation's tool name isn't known until the
// batch is submitted. Keeping the logic in one place means batch_execute
// can never drift from what calling the tool directly does.
package mcpserver

import (
	"context"
	"encoding/json"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/symbridge/symbridge/internal/batch"
	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/edit"
	"github.com/symbridge/symbridge/internal/filemove"
	"github.com/symbridge/symbridge/internal/lsp"
	"github.com/symbridge/symbridge/internal/pathutil"
	"github.com/symbridge/symbridge/internal/protocol"
	"github.com/symbridge/symbridge/internal/registry"
	"github.com/symbridge/symbridge/internal/workspace"
)

func decodeArgs(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return bridgeerr.Wrap(err, bridgeerr.ValidationError, "decode tool arguments")
	}
	return nil
}

func humanPos(line, character int) protocol.Position {
	return pathutil.ToLSP(pathutil.HumanPosition{Line: line, Character: character})
}

func editOptionsFor(dryRun bool) edit.Options {
	return edit.Options{ValidateBeforeApply: true, DryRun: dryRun}
}

// RegisterAll adds every tool named in spec.md §6 (plus find_dead_code) to
// b, tagged with the capability its handler needs from a ServiceContext.
func RegisterAll(b *registry.Builder) error {
	type entry struct {
		name, desc string
		sample     any
		cap        registry.Capability
		handler    registry.Handler
	}
	entries := []entry{
		{"find_definition", "Find the definition of a symbol, resolved by name (and optional kind) within a file.", FindDefinitionArgs{}, registry.CapSymbol, handleFindDefinition},
		{"find_references", "Find every reference to a symbol, resolved by name (and optional kind) within a file.", FindReferencesArgs{}, registry.CapSymbol, handleFindReferences},
		{"rename_symbol", "Rename a symbol, resolved by name (and optional kind) within a file, across the workspace, retrying at neighboring positions if the exact one doesn't resolve.", RenameSymbolArgs{}, registry.CapSymbol, handleRenameSymbol},
		{"rename_symbol_strict", "Rename the symbol at a given 1-indexed file position without rename_symbol's name-resolution or position-fuzzing fallback.", RenameSymbolStrictArgs{}, registry.CapSymbol, handleRenameSymbolStrict},
		{"get_diagnostics", "Get diagnostics (errors, warnings) for a file.", FilePathArgs{}, registry.CapDiagnostic, handleGetDiagnostics},
		{"get_document_symbols", "List every symbol declared in a file.", FilePathArgs{}, registry.CapSymbol, handleGetDocumentSymbols},
		{"search_workspace_symbols", "Search for symbols by name across the whole workspace.", SearchWorkspaceSymbolsArgs{}, registry.CapSymbol, handleSearchWorkspaceSymbols},
		{"get_hover", "Get hover information (type, docs) at a given 1-indexed file position.", PositionArgs{}, registry.CapIntelligence, handleGetHover},
		{"get_completions", "Get completion suggestions at a given 1-indexed file position.", PositionArgs{}, registry.CapIntelligence, handleGetCompletions},
		{"get_signature_help", "Get signature help (parameter hints) at a given 1-indexed file position.", PositionArgs{}, registry.CapIntelligence, handleGetSignatureHelp},
		{"prepare_call_hierarchy", "Prepare call hierarchy items for the symbol at a given 1-indexed file position.", PositionArgs{}, registry.CapHierarchy, handlePrepareCallHierarchy},
		{"get_call_hierarchy_incoming_calls", "Get incoming calls for a call hierarchy item previously returned by prepare_call_hierarchy.", CallHierarchyItemArgs{}, registry.CapHierarchy, handleIncomingCalls},
		{"get_call_hierarchy_outgoing_calls", "Get outgoing calls for a call hierarchy item previously returned by prepare_call_hierarchy.", CallHierarchyItemArgs{}, registry.CapHierarchy, handleOutgoingCalls},
		{"rename_file", "Rename or move a file or directory, rewriting every importer's import specifier to match.", RenameFileArgs{}, registry.CapFile, handleRenameFile},
		{"create_file", "Create a new file with the given content.", CreateFileArgs{}, registry.CapFile, handleCreateFile},
		{"delete_file", "Delete a file, refusing unless force is set or nothing imports it.", DeleteFileArgs{}, registry.CapFile, handleDeleteFile},
		{"apply_workspace_edit", "Apply a caller-supplied WorkspaceEdit across one or more files atomically.", ApplyWorkspaceEditArgs{}, registry.CapFile, handleApplyWorkspaceEdit},
		{"restart_server", "Restart the language server responsible for a given file extension.", RestartServerArgs{}, registry.CapLSP, handleRestartServer},
		{"batch_execute", "Run a list of tool invocations sequentially, in parallel, atomically, or as a dry run.", BatchExecuteArgs{}, registry.CapServiceContext, handleBatchExecute},
		{"find_dead_code", "Report exportable-kind symbols in the given files with fewer references than a threshold.", FindDeadCodeArgs{}, registry.CapIntelligence, handleFindDeadCode},
	}
	for _, e := range entries {
		if err := b.Register(e.name, e.desc, e.sample, e.cap, e.handler); err != nil {
			return err
		}
	}
	return nil
}

// resolveSymbolPosition resolves a name(+optional kind) lookup to the single
// position findSymbolMatches reports for it (spec.md §4.4), surfacing an
// ambiguous-match error if more than one symbol shares the name and kind
// filter, and the kind-fallback warning when the requested kind produced no
// match.
func resolveSymbolPosition(ctx context.Context, sc *registry.ServiceContext, filePath, symbolName, symbolKind string) (protocol.Position, bool, error) {
	kind, err := parseSymbolKind(symbolKind)
	if err != nil {
		return protocol.Position{}, false, err
	}
	matches, err := sc.Symbols.FindSymbolMatches(ctx, filePath, symbolName, kind)
	if err != nil {
		return protocol.Position{}, false, err
	}
	if len(matches) == 0 {
		return protocol.Position{}, false, bridgeerr.Newf(bridgeerr.ValidationError, "no symbol named %q found in %s", symbolName, filePath)
	}
	if len(matches) > 1 {
		return protocol.Position{}, false, bridgeerr.Newf(bridgeerr.ValidationError, "%d symbols named %q found in %s; narrow with symbolKind", len(matches), symbolName, filePath)
	}
	return matches[0].Position, matches[0].FallbackFromKind, nil
}

type symbolLookupResponse struct {
	FallbackFromKind bool `json:"fallbackFromKind,omitempty"`
	Result           any  `json:"result"`
}

func handleFindDefinition(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a FindDefinitionArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	pos, fallback, err := resolveSymbolPosition(ctx, sc, a.FilePath, a.SymbolName, a.SymbolKind)
	if err != nil {
		return nil, err
	}
	result, err := sc.Symbols.FindDefinition(ctx, a.FilePath, pos)
	if err != nil {
		return nil, err
	}
	return symbolLookupResponse{FallbackFromKind: fallback, Result: result}, nil
}

func handleFindReferences(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a FindReferencesArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	pos, fallback, err := resolveSymbolPosition(ctx, sc, a.FilePath, a.SymbolName, a.SymbolKind)
	if err != nil {
		return nil, err
	}
	result, err := sc.Symbols.FindReferences(ctx, a.FilePath, pos, a.IncludeDeclaration)
	if err != nil {
		return nil, err
	}
	return symbolLookupResponse{FallbackFromKind: fallback, Result: result}, nil
}

type renameResponse struct {
	MatchedPosition  string `json:"matchedPosition,omitempty"`
	FallbackFromKind bool   `json:"fallbackFromKind,omitempty"`
	Result           any    `json:"result"`
}

// PreviewEdit and PreviewMoves let renameResponse participate in an atomic
// batch_execute step (internal/batch.Previewable) by delegating to the
// *edit.Result it wraps.
func (r renameResponse) PreviewEdit() protocol.WorkspaceEdit {
	if res, ok := r.Result.(*edit.Result); ok {
		return res.PreviewEdit()
	}
	return protocol.WorkspaceEdit{}
}

func (r renameResponse) PreviewMoves() []edit.MoveIntent {
	if res, ok := r.Result.(*edit.Result); ok {
		return res.PreviewMoves()
	}
	return nil
}

func handleRenameSymbol(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a RenameSymbolArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	pos, fallback, err := resolveSymbolPosition(ctx, sc, a.FilePath, a.SymbolName, a.SymbolKind)
	if err != nil {
		return nil, err
	}
	res, matched, err := sc.Symbols.RenameAtFuzzy(ctx, a.FilePath, pos, a.NewName)
	if err != nil {
		return nil, err
	}
	applied, err := sc.Editor.ApplyRename(ctx, res, editOptionsFor(a.DryRun))
	if err != nil {
		return nil, err
	}
	return renameResponse{MatchedPosition: matched, FallbackFromKind: fallback, Result: applied}, nil
}

func handleRenameSymbolStrict(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a RenameSymbolStrictArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	res, err := sc.Symbols.RenameAt(ctx, a.FilePath, humanPos(a.Line, a.Character), a.NewName)
	if err != nil {
		return nil, err
	}
	return sc.Editor.ApplyRename(ctx, res, editOptionsFor(a.DryRun))
}

func handleGetDiagnostics(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a FilePathArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	st, uri, _, err := sc.Supervisor.Ensure(ctx, a.FilePath)
	if err != nil {
		return nil, err
	}
	return st.Diagnostics(ctx, uri)
}

func handleGetDocumentSymbols(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a FilePathArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return sc.Symbols.ListSymbols(ctx, a.FilePath)
}

// preloadWorkspaceServers scans the workspace for the extensions actually
// present (honoring .gitignore) and starts each one's server in parallel, so
// search_workspace_symbols searches every language present instead of only
// whatever servers an earlier call happened to start (spec.md §4.2).
func preloadWorkspaceServers(ctx context.Context, sc *registry.ServiceContext) {
	exts, err := workspace.ExtensionsUnder(sc.Supervisor.WorkspaceDir(), true)
	if err != nil {
		return
	}
	var g errgroup.Group
	for ext := range exts {
		ext := ext
		g.Go(func() error {
			_, _ = sc.Supervisor.ServerFor(ctx, ext)
			return nil
		})
	}
	_ = g.Wait()
}

func handleSearchWorkspaceSymbols(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a SearchWorkspaceSymbolsArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	preloadWorkspaceServers(ctx, sc)
	return sc.Symbols.SearchWorkspace(ctx, a.Query, nil)
}

// lspCallAtPosition opens path against whichever server its extension
// routes to, checks that it advertises capability (spec.md §8 P10: fail
// with CapabilityUnsupported rather than send an unsupported request),
// builds params via the caller's buildParams (given the resulting
// textDocument identifier), and decodes the raw JSON result generically —
// hover/completion/signatureHelp/call-hierarchy results vary per server and
// aren't worth a bespoke Go type apiece when the tool's job is simply to
// relay them to the agent as-is.
func lspCallAtPosition(ctx context.Context, sc *registry.ServiceContext, path, capability, method string, buildParams func(protocol.TextDocumentIdentifier) any) (any, error) {
	st, uri, _, err := sc.Supervisor.Ensure(ctx, path)
	if err != nil {
		return nil, err
	}
	if !st.HasCapability(capability) {
		return nil, bridgeerr.New(bridgeerr.CapabilityUnsupported, "server does not support "+method)
	}
	params := buildParams(protocol.TextDocumentIdentifier{URI: uri})
	var result any
	if err := st.Call(ctx, lsp.DefaultCallTimeout, method, params, &result); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, method+" request")
	}
	return result, nil
}

func handleGetHover(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a PositionArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return lspCallAtPosition(ctx, sc, a.FilePath, "hoverProvider", "textDocument/hover", func(td protocol.TextDocumentIdentifier) any {
		return protocol.TextDocumentPositionParams{TextDocument: td, Position: humanPos(a.Line, a.Character)}
	})
}

func handleGetCompletions(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a PositionArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return lspCallAtPosition(ctx, sc, a.FilePath, "completionProvider", "textDocument/completion", func(td protocol.TextDocumentIdentifier) any {
		return protocol.CompletionParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: td, Position: humanPos(a.Line, a.Character)},
		}
	})
}

func handleGetSignatureHelp(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a PositionArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return lspCallAtPosition(ctx, sc, a.FilePath, "signatureHelpProvider", "textDocument/signatureHelp", func(td protocol.TextDocumentIdentifier) any {
		return protocol.TextDocumentPositionParams{TextDocument: td, Position: humanPos(a.Line, a.Character)}
	})
}

func handlePrepareCallHierarchy(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a PositionArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return lspCallAtPosition(ctx, sc, a.FilePath, "callHierarchyProvider", "textDocument/prepareCallHierarchy", func(td protocol.TextDocumentIdentifier) any {
		return protocol.TextDocumentPositionParams{TextDocument: td, Position: humanPos(a.Line, a.Character)}
	})
}

func handleIncomingCalls(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a CallHierarchyItemArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	st, ok := sc.Supervisor.Lookup(pathutil.Ext(a.FilePath))
	if !ok {
		return nil, bridgeerr.New(bridgeerr.NoServerForExtension, "no running server for this call hierarchy item")
	}
	if !st.HasCapability("callHierarchyProvider") {
		return nil, bridgeerr.New(bridgeerr.CapabilityUnsupported, "server does not support call hierarchy")
	}
	var result any
	if err := st.Call(ctx, lsp.DefaultCallTimeout, "callHierarchy/incomingCalls", map[string]any{"item": a.Item}, &result); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "incomingCalls request")
	}
	return result, nil
}

func handleOutgoingCalls(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a CallHierarchyItemArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	st, ok := sc.Supervisor.Lookup(pathutil.Ext(a.FilePath))
	if !ok {
		return nil, bridgeerr.New(bridgeerr.NoServerForExtension, "no running server for this call hierarchy item")
	}
	if !st.HasCapability("callHierarchyProvider") {
		return nil, bridgeerr.New(bridgeerr.CapabilityUnsupported, "server does not support call hierarchy")
	}
	var result any
	if err := st.Call(ctx, lsp.DefaultCallTimeout, "callHierarchy/outgoingCalls", map[string]any{"item": a.Item}, &result); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "outgoingCalls request")
	}
	return result, nil
}

func handleRenameFile(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a RenameFileArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return sc.Mover.RenameFile(ctx, a.OldPath, a.NewPath, filemove.Options{DryRun: a.DryRun, UseGitignore: true, Force: a.Force})
}

func handleCreateFile(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a CreateFileArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	if err := os.WriteFile(a.FilePath, []byte(a.Content), 0o644); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "create file")
	}
	return map[string]string{"path": a.FilePath}, nil
}

func handleDeleteFile(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a DeleteFileArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	if !a.Force {
		importers, err := sc.Mover.FindImportersOf(ctx, a.FilePath)
		if err != nil {
			return nil, err
		}
		if len(importers) > 0 {
			return nil, bridgeerr.Newf(bridgeerr.ImporterConflict, "%d file(s) still import %s; pass force to delete anyway: %v", len(importers), a.FilePath, importers)
		}
	}
	if err := os.Remove(a.FilePath); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "delete file")
	}
	return map[string]string{"path": a.FilePath}, nil
}

func handleApplyWorkspaceEdit(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a ApplyWorkspaceEditArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	return sc.Editor.Apply(ctx, a.Edit, editOptionsFor(a.DryRun))
}

func handleRestartServer(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a RestartServerArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	st, err := sc.Supervisor.Restart(ctx, a.Extension)
	if err != nil {
		return nil, err
	}
	return map[string]string{"status": st.Status().String()}, nil
}

func handleBatchExecute(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a BatchExecuteArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	ops := make([]batch.Operation, len(a.Operations))
	for i, o := range a.Operations {
		ops[i] = batch.Operation{Tool: o.Tool, Args: o.Args, ID: o.ID}
	}
	opts := batch.DefaultOptions()
	if a.Options != nil {
		opts = *a.Options
	}
	return sc.Batch.Execute(ctx, ops, opts)
}

func handleFindDeadCode(ctx context.Context, sc *registry.ServiceContext, raw json.RawMessage) (any, error) {
	var a FindDeadCodeArgs
	if err := decodeArgs(raw, &a); err != nil {
		return nil, err
	}
	threshold := a.Threshold
	if threshold <= 0 {
		threshold = 1
	}
	return sc.Mover.FindDeadCode(ctx, a.Files, threshold, a.TestFilePattern)
}
