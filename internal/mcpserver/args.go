package mcpserver

import (
	"encoding/json"
	"strings"

	"github.com/symbridge/symbridge/internal/batch"
	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/protocol"
)

// FilePathArgs is the argument shape shared by every tool that only needs a
// target file (spec.md §6).
type FilePathArgs struct {
	FilePath string `json:"filePath" jsonschema:"required,description=Absolute or workspace-relative path to the file"`
}

// PositionArgs adds a 1-indexed (line, character) position to FilePathArgs
// — the MCP boundary's position convention (spec.md §3).
type PositionArgs struct {
	FilePath  string `json:"filePath" jsonschema:"required,description=Absolute or workspace-relative path to the file"`
	Line      int    `json:"line" jsonschema:"required,description=1-indexed line number"`
	Character int    `json:"character" jsonschema:"required,description=1-indexed character column"`
}

// SymbolLookupArgs is the name+kind shape shared by find_definition,
// find_references, and rename_symbol: they resolve a position via
// symbols.Service.FindSymbolMatches (spec.md §4.4) rather than taking one
// directly, unlike rename_symbol_strict's RenameSymbolStrictArgs.
type SymbolLookupArgs struct {
	FilePath   string `json:"filePath" jsonschema:"required,description=Absolute or workspace-relative path to the file"`
	SymbolName string `json:"symbolName" jsonschema:"required,description=Exact name of the symbol to resolve"`
	SymbolKind string `json:"symbolKind,omitempty" jsonschema:"description=Optional LSP symbol kind (e.g. Function, Class, Variable) narrowing the match; falls back to every name match if it finds none"`
}

// FindDefinitionArgs is find_definition's argument shape.
type FindDefinitionArgs = SymbolLookupArgs

// FindReferencesArgs is find_references' argument shape.
type FindReferencesArgs struct {
	FilePath           string `json:"filePath" jsonschema:"required,description=Absolute or workspace-relative path to the file"`
	SymbolName         string `json:"symbolName" jsonschema:"required,description=Exact name of the symbol to resolve"`
	SymbolKind         string `json:"symbolKind,omitempty" jsonschema:"description=Optional LSP symbol kind (e.g. Function, Class, Variable) narrowing the match; falls back to every name match if it finds none"`
	IncludeDeclaration bool   `json:"includeDeclaration" jsonschema:"default=true,description=Whether to include the symbol's own declaration in the results"`
}

// RenameSymbolArgs is rename_symbol's argument shape: resolves a position by
// name+kind, then renames with rename_symbol's position-fuzzing fallback.
type RenameSymbolArgs struct {
	FilePath   string `json:"filePath" jsonschema:"required,description=Absolute or workspace-relative path to the file"`
	SymbolName string `json:"symbolName" jsonschema:"required,description=Exact name of the symbol to rename"`
	SymbolKind string `json:"symbolKind,omitempty" jsonschema:"description=Optional LSP symbol kind (e.g. Function, Class, Variable) narrowing the match; falls back to every name match if it finds none"`
	NewName    string `json:"newName" jsonschema:"required,description=The new name for the symbol"`
	DryRun     bool   `json:"dryRun" jsonschema:"default=false,description=Preview the edit without writing to disk"`
}

// RenameSymbolStrictArgs is rename_symbol_strict's argument shape: a literal
// 1-indexed position, with none of rename_symbol's name-resolution or
// position-fuzzing.
type RenameSymbolStrictArgs struct {
	FilePath  string `json:"filePath" jsonschema:"required,description=Absolute or workspace-relative path to the file"`
	Line      int    `json:"line" jsonschema:"required,description=1-indexed line number"`
	Character int    `json:"character" jsonschema:"required,description=1-indexed character column"`
	NewName   string `json:"newName" jsonschema:"required,description=The new name for the symbol"`
	DryRun    bool   `json:"dryRun" jsonschema:"default=false,description=Preview the edit without writing to disk"`
}

// parseSymbolKind maps a symbolKind argument's name (matched
// case-insensitively against the LSP SymbolKind constant names) to its
// protocol.SymbolKind value. Returns nil, nil for an empty string.
func parseSymbolKind(name string) (*protocol.SymbolKind, error) {
	if name == "" {
		return nil, nil
	}
	kinds := map[string]protocol.SymbolKind{
		"file": protocol.File, "module": protocol.Module, "namespace": protocol.Namespace,
		"package": protocol.Package, "class": protocol.Class, "method": protocol.Method,
		"property": protocol.Property, "field": protocol.Field, "constructor": protocol.Constructor,
		"enum": protocol.Enum, "interface": protocol.Interface, "function": protocol.Function,
		"variable": protocol.Variable, "constant": protocol.Constant, "string": protocol.String,
		"number": protocol.Number, "boolean": protocol.Boolean, "array": protocol.Array,
		"object": protocol.Object, "key": protocol.Key, "null": protocol.Null,
		"enummember": protocol.EnumMember, "struct": protocol.Struct, "event": protocol.Event,
		"operator": protocol.Operator, "typeparameter": protocol.TypeParameter,
	}
	k, ok := kinds[strings.ToLower(name)]
	if !ok {
		return nil, bridgeerr.Newf(bridgeerr.ValidationError, "unknown symbol kind %q", name)
	}
	return &k, nil
}

// SearchWorkspaceSymbolsArgs is search_workspace_symbols' argument shape.
type SearchWorkspaceSymbolsArgs struct {
	Query string `json:"query" jsonschema:"required,description=Symbol name (or substring, server-dependent) to search for"`
}

// CallHierarchyItemArgs is the argument shape for the two
// get_call_hierarchy_*_calls tools: the file the item came from (for
// extension-based server routing) and the CallHierarchyItem value
// prepare_call_hierarchy previously returned.
type CallHierarchyItemArgs struct {
	FilePath string          `json:"filePath" jsonschema:"required,description=The file the call hierarchy item was resolved from"`
	Item     json.RawMessage `json:"item" jsonschema:"required,description=The CallHierarchyItem object returned by prepare_call_hierarchy"`
}

// RenameFileArgs is rename_file's argument shape.
type RenameFileArgs struct {
	OldPath string `json:"oldPath" jsonschema:"required,description=Current path of the file or directory"`
	NewPath string `json:"newPath" jsonschema:"required,description=Destination path"`
	DryRun  bool   `json:"dryRun" jsonschema:"default=false,description=Preview the move and import rewrites without touching disk"`
	Force   bool   `json:"force" jsonschema:"default=false,description=Skip the circular-import guard"`
}

// CreateFileArgs is create_file's argument shape.
type CreateFileArgs struct {
	FilePath string `json:"filePath" jsonschema:"required,description=Path of the file to create"`
	Content  string `json:"content" jsonschema:"description=Initial file content"`
}

// DeleteFileArgs is delete_file's argument shape.
type DeleteFileArgs struct {
	FilePath string `json:"filePath" jsonschema:"required,description=Path of the file to delete"`
	Force    bool   `json:"force" jsonschema:"default=false,description=Delete even if other files still import it"`
}

// ApplyWorkspaceEditArgs is apply_workspace_edit's argument shape.
type ApplyWorkspaceEditArgs struct {
	Edit   protocol.WorkspaceEdit `json:"edit" jsonschema:"required,description=The WorkspaceEdit to apply"`
	DryRun bool                   `json:"dryRun" jsonschema:"default=false,description=Preview the edit without writing to disk"`
}

// RestartServerArgs is restart_server's argument shape.
type RestartServerArgs struct {
	Extension string `json:"extension" jsonschema:"required,description=File extension (without a leading dot) identifying which configured server to restart"`
}

// BatchOperationArgs is one entry of batch_execute's operations array
// (spec.md §4.8).
type BatchOperationArgs struct {
	Tool string         `json:"tool" jsonschema:"required,description=Name of the tool to invoke"`
	Args map[string]any `json:"args" jsonschema:"description=Arguments for the tool, matching its own argument schema"`
	ID   string         `json:"id" jsonschema:"description=Caller-supplied identifier correlating this operation's result"`
}

// BatchExecuteArgs is batch_execute's argument shape.
type BatchExecuteArgs struct {
	Operations []BatchOperationArgs `json:"operations" jsonschema:"required,description=The operations to run"`
	Options    *batch.Options       `json:"options,omitempty" jsonschema:"description=atomic, parallel, dryRun, stopOnError"`
}

// FindDeadCodeArgs is find_dead_code's argument shape.
type FindDeadCodeArgs struct {
	Files           []string `json:"files" jsonschema:"required,description=Files to analyze"`
	Threshold       int      `json:"threshold" jsonschema:"default=1,description=Minimum reference count a symbol must have to not be reported"`
	TestFilePattern string   `json:"testFilePattern,omitempty" jsonschema:"description=Glob pattern matched against each file's base name (filepath.Match syntax such as *_test.go); matching files are excluded from analysis"`
}
