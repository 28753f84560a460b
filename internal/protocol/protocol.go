// Package protocol defines the subset of Language Server Protocol wire types
// that the bridge needs to initialize, query, and edit through a language
// server. It intentionally mirrors the shapes the LSP spec defines rather
// than inventing a friendlier model — that translation happens one layer up,
// in internal/symbols and internal/edit.
package protocol

import "encoding/json"

// DocumentUri is a file:// (or other scheme) URI identifying a text document.
type DocumentUri string

// URI is a generic LSP URI, used for workspace folders and similar.
type URI string

// Position is zero-indexed (line, character), with character counted in
// UTF-16 code units per the LSP spec.
type Position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

// Range is a half-open [Start, End) range within a document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range inside a specific document.
type Location struct {
	URI   DocumentUri `json:"uri"`
	Range Range       `json:"range"`
}

// TextDocumentIdentifier identifies a document without a version.
type TextDocumentIdentifier struct {
	URI DocumentUri `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a specific version of a document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int32 `json:"version"`
}

// TextDocumentItem is the full content of an opened document.
type TextDocumentItem struct {
	URI        DocumentUri `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int32       `json:"version"`
	Text       string      `json:"text"`
}

// TextEdit is a single textual change within a document.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// TextDocumentEdit groups TextEdits against a specific document version.
type TextDocumentEdit struct {
	TextDocument VersionedTextDocumentIdentifier `json:"textDocument"`
	Edits        []TextEdit                      `json:"edits"`
}

// DocumentChangeKind distinguishes the union members of DocumentChanges.
type DocumentChangeKind int

const (
	DocumentChangeEdit DocumentChangeKind = iota
	DocumentChangeCreate
	DocumentChangeRename
	DocumentChangeDelete
)

// DocumentChange is the union member of WorkspaceEdit.documentChanges: a
// TextDocumentEdit, or a CreateFile/RenameFile/DeleteFile resource operation.
// Only one of the pointer fields is set, matching the LSP union shape.
type DocumentChange struct {
	TextDocumentEdit *TextDocumentEdit `json:"-"`
	CreateFile       *CreateFile       `json:"-"`
	RenameFile       *RenameFile       `json:"-"`
	DeleteFile       *DeleteFile       `json:"-"`
}

// CreateFile is a resource operation creating a new file.
type CreateFile struct {
	Kind string      `json:"kind"`
	URI  DocumentUri `json:"uri"`
}

// RenameFile is a resource operation renaming a file.
type RenameFile struct {
	Kind   string      `json:"kind"`
	OldURI DocumentUri `json:"oldUri"`
	NewURI DocumentUri `json:"newUri"`
}

// DeleteFile is a resource operation deleting a file.
type DeleteFile struct {
	Kind string      `json:"kind"`
	URI  DocumentUri `json:"uri"`
}

// MarshalJSON renders whichever union member is set.
func (d DocumentChange) MarshalJSON() ([]byte, error) {
	switch {
	case d.TextDocumentEdit != nil:
		return json.Marshal(d.TextDocumentEdit)
	case d.CreateFile != nil:
		return json.Marshal(d.CreateFile)
	case d.RenameFile != nil:
		return json.Marshal(d.RenameFile)
	case d.DeleteFile != nil:
		return json.Marshal(d.DeleteFile)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON sniffs the "kind" discriminator (resource ops) or the
// presence of "textDocument"+"edits" (a TextDocumentEdit) to pick the union
// member, since LSP does not tag document changes with an explicit type.
func (d *DocumentChange) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind         string          `json:"kind"`
		TextDocument json.RawMessage `json:"textDocument"`
		Edits        json.RawMessage `json:"edits"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Kind {
	case "create":
		var v CreateFile
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		d.CreateFile = &v
		return nil
	case "rename":
		var v RenameFile
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		d.RenameFile = &v
		return nil
	case "delete":
		var v DeleteFile
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		d.DeleteFile = &v
		return nil
	default:
		if probe.TextDocument != nil {
			var v TextDocumentEdit
			if err := json.Unmarshal(data, &v); err != nil {
				return err
			}
			d.TextDocumentEdit = &v
			return nil
		}
	}
	return nil
}

// WorkspaceEdit describes changes to many resources. Both legacy (Changes)
// and modern (DocumentChanges) shapes may be populated by a server; the edit
// engine normalizes to Changes before applying (spec §3, §4.5).
type WorkspaceEdit struct {
	Changes         map[DocumentUri][]TextEdit `json:"changes,omitempty"`
	DocumentChanges []DocumentChange           `json:"documentChanges,omitempty"`
}

// DiagnosticSeverity is the LSP severity enum.
type DiagnosticSeverity int

const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// Diagnostic is a single error/warning/info/hint reported against a range.
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	Code     json.RawMessage    `json:"code,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
}

// SymbolKind is the LSP symbol-kind enum (26 values).
type SymbolKind int

const (
	File SymbolKind = iota + 1
	Module
	Namespace
	Package
	Class
	Method
	Property
	Field
	Constructor
	Enum
	Interface
	Function
	Variable
	Constant
	String
	Number
	Boolean
	Array
	Object
	Key
	Null
	EnumMember
	Struct
	Event
	Operator
	TypeParameter
)

// DocumentSymbol is the hierarchical symbol shape.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is the flat symbol shape.
type SymbolInformation struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Location      Location   `json:"location"`
	ContainerName string     `json:"containerName,omitempty"`
}

// --- Requests/notifications used by the bridge ---

type InitializeParams struct {
	ProcessID             int32                  `json:"processId,omitempty"`
	ClientInfo            *ClientInfo            `json:"clientInfo,omitempty"`
	RootURI               DocumentUri            `json:"rootUri,omitempty"`
	Capabilities          ClientCapabilities     `json:"capabilities"`
	InitializationOptions any                    `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder      `json:"workspaceFolders,omitempty"`
	Trace                 TraceValue             `json:"trace,omitempty"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type WorkspaceFolder struct {
	URI  URI    `json:"uri"`
	Name string `json:"name"`
}

type TraceValue string

const (
	TraceOff     TraceValue = "off"
	TraceMessage TraceValue = "messages"
	TraceVerbose TraceValue = "verbose"
)

type ClientCapabilities struct {
	Workspace    WorkspaceClientCapabilities    `json:"workspace"`
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
}

type WorkspaceClientCapabilities struct {
	ApplyEdit              bool                                   `json:"applyEdit"`
	WorkspaceEdit          *WorkspaceEditClientCapabilities        `json:"workspaceEdit,omitempty"`
	DidChangeConfiguration DidChangeConfigurationClientCapabilities `json:"didChangeConfiguration"`
	DidChangeWatchedFiles  DidChangeWatchedFilesClientCapabilities  `json:"didChangeWatchedFiles"`
	Symbol                 *WorkspaceSymbolClientCapabilities      `json:"symbol,omitempty"`
	WorkspaceFolders       bool                                   `json:"workspaceFolders"`
}

type WorkspaceEditClientCapabilities struct {
	DocumentChanges bool `json:"documentChanges"`
}

type DidChangeConfigurationClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type DidChangeWatchedFilesClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type ClientSymbolKindOptions struct {
	ValueSet []SymbolKind `json:"valueSet,omitempty"`
}

type WorkspaceSymbolClientCapabilities struct {
	DynamicRegistration bool                     `json:"dynamicRegistration"`
	SymbolKind          *ClientSymbolKindOptions `json:"symbolKind,omitempty"`
}

type TextDocumentClientCapabilities struct {
	Synchronization    *TextDocumentSyncClientCapabilities   `json:"synchronization,omitempty"`
	Rename             *RenameClientCapabilities             `json:"rename,omitempty"`
	DocumentSymbol     DocumentSymbolClientCapabilities       `json:"documentSymbol"`
	CodeLens           *CodeLensClientCapabilities            `json:"codeLens,omitempty"`
	PublishDiagnostics PublishDiagnosticsClientCapabilities    `json:"publishDiagnostics"`
	Definition         *DefinitionClientCapabilities          `json:"definition,omitempty"`
	References         *ReferencesClientCapabilities          `json:"references,omitempty"`
	Hover              *HoverClientCapabilities               `json:"hover,omitempty"`
	Completion         *CompletionClientCapabilities          `json:"completion,omitempty"`
	SignatureHelp      *SignatureHelpClientCapabilities       `json:"signatureHelp,omitempty"`
	CallHierarchy      *CallHierarchyClientCapabilities       `json:"callHierarchy,omitempty"`
	Diagnostic         *DiagnosticClientCapabilities          `json:"diagnostic,omitempty"`
}

type TextDocumentSyncClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
	WillSave            bool `json:"willSave"`
	WillSaveWaitUntil   bool `json:"willSaveWaitUntil"`
	DidSave             bool `json:"didSave"`
}

type RenameClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
	PrepareSupport      bool `json:"prepareSupport"`
}

type DocumentSymbolClientCapabilities struct {
	DynamicRegistration                bool                     `json:"dynamicRegistration"`
	HierarchicalDocumentSymbolSupport bool                     `json:"hierarchicalDocumentSymbolSupport"`
	SymbolKind                         *ClientSymbolKindOptions `json:"symbolKind,omitempty"`
}

type CodeLensClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type DiagnosticsCapabilities struct {
	RelatedInformation bool `json:"relatedInformation"`
}

type PublishDiagnosticsClientCapabilities struct {
	DiagnosticsCapabilities
	VersionSupport bool `json:"versionSupport"`
}

type DefinitionClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type ReferencesClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type HoverClientCapabilities struct {
	DynamicRegistration bool     `json:"dynamicRegistration"`
	ContentFormat       []string `json:"contentFormat,omitempty"`
}

type CompletionClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type SignatureHelpClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type CallHierarchyClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type DiagnosticClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ClientInfo        `json:"serverInfo,omitempty"`
}

// ServerCapabilities is kept as raw JSON at the transport boundary and never
// decoded into a fixed struct: internal/lsp's ServerState.HasCapability walks
// it with gjson by arbitrary dotted path, which a struct can't statically
// express for every server combination.
type ServerCapabilities json.RawMessage

func (s *ServerCapabilities) UnmarshalJSON(data []byte) error {
	*s = append((*s)[:0], data...)
	return nil
}

func (s ServerCapabilities) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

type InitializedParams struct{}

// --- Document sync ---

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type TextDocumentContentChangeWholeDocument struct {
	Text string `json:"text"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier          `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeWholeDocument `json:"contentChanges"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type PublishDiagnosticsParams struct {
	URI         DocumentUri  `json:"uri"`
	Version     int32        `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// --- Diagnostics (pull) ---

type DocumentDiagnosticParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type DocumentDiagnosticReportKind string

const (
	DiagnosticReportFull      DocumentDiagnosticReportKind = "full"
	DiagnosticReportUnchanged DocumentDiagnosticReportKind = "unchanged"
)

type DocumentDiagnosticReport struct {
	Kind  DocumentDiagnosticReportKind `json:"kind"`
	Items []Diagnostic                `json:"items,omitempty"`
}

// --- Symbols ---

type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type WorkspaceSymbolParams struct {
	Query string `json:"query"`
}

// --- Definition / references ---

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type DefinitionParams struct {
	TextDocumentPositionParams
}

type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

// --- Rename ---

type RenameParams struct {
	TextDocumentPositionParams
	NewName string `json:"newName"`
}

// --- Hover / completion / signature help ---

type HoverParams struct {
	TextDocumentPositionParams
}

type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type Hover struct {
	Contents MarkupContent `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

type CompletionParams struct {
	TextDocumentPositionParams
	Context *CompletionContext `json:"context,omitempty"`
}

type CompletionContext struct {
	TriggerCharacter string `json:"triggerCharacter,omitempty"`
}

type CompletionItem struct {
	Label  string `json:"label"`
	Kind   int    `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

type SignatureHelpParams struct {
	TextDocumentPositionParams
	Context *SignatureHelpContext `json:"context,omitempty"`
}

type SignatureHelpContext struct {
	TriggerCharacter string `json:"triggerCharacter,omitempty"`
}

type ParameterInformation struct {
	Label string `json:"label"`
}

type SignatureInformation struct {
	Label         string                 `json:"label"`
	Documentation string                 `json:"documentation,omitempty"`
	Parameters    []ParameterInformation `json:"parameters,omitempty"`
}

type SignatureHelp struct {
	Signatures      []SignatureInformation `json:"signatures"`
	ActiveSignature int                    `json:"activeSignature,omitempty"`
	ActiveParameter int                    `json:"activeParameter,omitempty"`
}

// --- Call hierarchy ---

type CallHierarchyPrepareParams struct {
	TextDocumentPositionParams
}

type CallHierarchyItem struct {
	Name           string     `json:"name"`
	Kind           SymbolKind `json:"kind"`
	URI            DocumentUri `json:"uri"`
	Range          Range      `json:"range"`
	SelectionRange Range      `json:"selectionRange"`
	Detail         string     `json:"detail,omitempty"`
}

type CallHierarchyIncomingCallsParams struct {
	Item CallHierarchyItem `json:"item"`
}

type CallHierarchyIncomingCall struct {
	From       CallHierarchyItem `json:"from"`
	FromRanges []Range           `json:"fromRanges"`
}

type CallHierarchyOutgoingCallsParams struct {
	Item CallHierarchyItem `json:"item"`
}

type CallHierarchyOutgoingCall struct {
	To         CallHierarchyItem `json:"to"`
	FromRanges []Range           `json:"fromRanges"`
}

// --- workspace/applyEdit (server → client) ---

type ApplyWorkspaceEditParams struct {
	Label string        `json:"label,omitempty"`
	Edit  WorkspaceEdit `json:"edit"`
}

type ApplyWorkspaceEditResult struct {
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failureReason,omitempty"`
}

// --- client/registerCapability (server → client) ---

type Registration struct {
	ID              string `json:"id"`
	Method          string `json:"method"`
	RegisterOptions any    `json:"registerOptions,omitempty"`
}

type RegistrationParams struct {
	Registrations []Registration `json:"registrations"`
}

type FileSystemWatcher struct {
	GlobPattern string `json:"globPattern"`
	Kind        int    `json:"kind,omitempty"`
}

type DidChangeWatchedFilesRegistrationOptions struct {
	Watchers []FileSystemWatcher `json:"watchers"`
}

// --- workspace/didChangeWorkspaceFolders ---

type WorkspaceFoldersChangeEvent struct {
	Added   []WorkspaceFolder `json:"added"`
	Removed []WorkspaceFolder `json:"removed"`
}

type DidChangeWorkspaceFoldersParams struct {
	Event WorkspaceFoldersChangeEvent `json:"event"`
}

// --- window/showMessage, window/logMessage (server → client) ---

type MessageType int

const (
	MessageError MessageType = iota + 1
	MessageWarning
	MessageInfo
	MessageLog
)

type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// --- code lens ---

type CodeLensParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type Command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

type CodeLens struct {
	Range   Range    `json:"range"`
	Command *Command `json:"command,omitempty"`
	Data    any      `json:"data,omitempty"`
}

type ExecuteCommandParams struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}
