package lsp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/config"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/pathutil"
	"github.com/symbridge/symbridge/internal/protocol"
)

func readFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Status is the lifecycle state of one supervised server process.
type Status int

const (
	StatusStarting Status = iota
	StatusReady
	StatusRestarting
	StatusCrashed
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusReady:
		return "ready"
	case StatusRestarting:
		return "restarting"
	case StatusCrashed:
		return "crashed"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ServerState is one running (or restarting) language server and everything
// the bridge knows about it: its capabilities, its open documents, and its
// diagnostics cache (C4).
type ServerState struct {
	key string
	cfg config.ServerConfig
	log logging.Logger

	mu           sync.RWMutex
	client       *Client
	caps         protocol.ServerCapabilities
	status       Status
	restartCount int
	watchers     []protocol.FileSystemWatcher

	docs *docCache
}

// Key is the canonical serverKey for this server (spec.md §4.2).
func (s *ServerState) Key() string { return s.key }

// Extensions lists the file extensions routed to this server.
func (s *ServerState) Extensions() []string { return s.cfg.Extensions }

func (s *ServerState) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Status reports the server's current lifecycle state.
func (s *ServerState) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Call issues a request against this server's process, bounded by timeout.
func (s *ServerState) Call(ctx context.Context, timeout time.Duration, method string, params any, result any) error {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return bridgeerr.New(bridgeerr.ConnectionLost, "server not started")
	}
	return client.Call(ctx, timeout, method, params, result)
}

// Notify issues a one-way notification against this server's process.
func (s *ServerState) Notify(ctx context.Context, method string, params any) error {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return bridgeerr.New(bridgeerr.ConnectionLost, "server not started")
	}
	return client.Notify(ctx, method, params)
}

// OpenDocument exposes the document-sync bookkeeping in docsync.go to
// callers outside the lsp package (the edit engine and file-move
// orchestrator both need to push resynced content after a disk write).
func (s *ServerState) OpenDocument(ctx context.Context, uri protocol.DocumentUri, languageID, text string, version int32) error {
	return s.openDocument(ctx, uri, languageID, text, version)
}

// ChangeDocument re-pushes text for an already-open document under a bumped
// version number.
func (s *ServerState) ChangeDocument(ctx context.Context, uri protocol.DocumentUri, text string, version int32) error {
	return s.changeDocument(ctx, uri, text, version)
}

// CloseDocument sends textDocument/didClose and forgets the document.
func (s *ServerState) CloseDocument(ctx context.Context, uri protocol.DocumentUri) error {
	return s.closeDocument(ctx, uri)
}

// IsOpen reports whether uri is currently tracked as open against this
// server, along with its last-synced version.
func (s *ServerState) IsOpen(uri protocol.DocumentUri) (version int32, ok bool) {
	d, ok := s.docs.get(uri)
	if !ok {
		return 0, false
	}
	return d.version, true
}

// CachedText returns the text last pushed for uri, if it is open.
func (s *ServerState) CachedText(uri protocol.DocumentUri) (text string, version int32, ok bool) {
	d, ok := s.docs.get(uri)
	if !ok {
		return "", 0, false
	}
	return d.text, d.version, true
}

// HasCapability walks a dotted path into the server's cached
// InitializeResult.capabilities (e.g. "documentSymbolProvider" or
// "renameProvider.prepareProvider"), the way the bridge decides whether a
// tool call is even worth attempting before it spends a round trip on it.
// The capabilities document varies in shape per server, so it is walked as
// raw JSON with gjson rather than unpacked into a static struct.
func (s *ServerState) HasCapability(path string) bool {
	s.mu.RLock()
	raw := []byte(s.caps)
	s.mu.RUnlock()
	if len(raw) == 0 {
		return false
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return false
	}
	switch res.Type {
	case gjson.False:
		return false
	default:
		return true
	}
}

// Supervisor spawns, initializes, routes to, restarts, and tears down the
// fleet of language servers described by a Config (C3). It is the one place
// that knows the process-level identity of a server; every other component
// talks to a *ServerState.
type Supervisor struct {
	log logging.Logger
	cfg *config.Config
	sem *semaphore.Weighted

	onDiagnostics func(*ServerState, protocol.DocumentUri)
	onFileWatch   func(*ServerState, string, []protocol.FileSystemWatcher)

	mu      sync.Mutex
	servers map[string]*ServerState
}

// MaxConcurrentServers bounds how many language server processes may be
// live at once (spec.md §4.1).
const MaxConcurrentServers = 8

// NewSupervisor builds a Supervisor for cfg. Servers are started lazily, the
// first time a document of a routed extension is touched.
func NewSupervisor(cfg *config.Config, log logging.Logger) *Supervisor {
	return &Supervisor{
		log:     logging.ForComponent(log, "supervisor"),
		cfg:     cfg,
		sem:     semaphore.NewWeighted(MaxConcurrentServers),
		servers: make(map[string]*ServerState),
	}
}

// WorkspaceDir returns the workspace root servers are configured against, so
// callers can scan it (e.g. to preload servers before a workspace-wide
// search) without reaching into config directly.
func (s *Supervisor) WorkspaceDir() string {
	return s.cfg.WorkspaceDir
}

// OnDiagnostics registers the callback invoked whenever a server publishes
// diagnostics for a document (wired to the docsync cache by the caller).
func (s *Supervisor) OnDiagnostics(fn func(*ServerState, protocol.DocumentUri)) {
	s.onDiagnostics = fn
}

// OnFileWatchRegistration registers the callback invoked when a server asks
// the client (us) to watch files on its behalf via client/registerCapability.
func (s *Supervisor) OnFileWatchRegistration(fn func(*ServerState, string, []protocol.FileSystemWatcher)) {
	s.onFileWatch = fn
}

// Ensure makes sure path is open (or resynced to its current on-disk
// content) against the server its extension routes to, returning that
// server, the document's URI, and the text now known to be pushed.
// Ensure is the single choke point C5/C6/C9 use to guarantee "prepareFile"
// semantics before issuing any symbol, edit, or rename request, matching the
// teacher's OpenFile-before-request pattern in each tools/*.go handler.
func (s *Supervisor) Ensure(ctx context.Context, path string) (*ServerState, protocol.DocumentUri, string, error) {
	ext := pathutil.Ext(path)
	st, err := s.ServerFor(ctx, ext)
	if err != nil {
		return nil, "", "", err
	}

	abs, err := pathutil.Canonical(path)
	if err != nil {
		return nil, "", "", bridgeerr.Wrap(err, bridgeerr.ValidationError, "resolve path")
	}
	data, err := readFile(abs)
	if err != nil {
		return nil, "", "", bridgeerr.Wrap(err, bridgeerr.ValidationError, "read file")
	}
	text := string(data)
	uri := pathutil.ToURI(abs)

	if cached, version, open := st.CachedText(uri); open {
		if cached == text {
			return st, uri, text, nil
		}
		if err := st.ChangeDocument(ctx, uri, text, version+1); err != nil {
			return nil, "", "", err
		}
		return st, uri, text, nil
	}
	if err := st.OpenDocument(ctx, uri, pathutil.LanguageID(ext), text, 1); err != nil {
		return nil, "", "", err
	}
	return st, uri, text, nil
}

// Lookup returns the already-running server for ext without starting one,
// for callers like the edit engine's LSP resync step that must only touch
// servers a file is already open against (spec.md §4.5 step 5: "for files
// not previously open, the next operation will open them lazily").
func (s *Supervisor) Lookup(ext string) (*ServerState, bool) {
	sc, ok := s.cfg.ServerFor(ext)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.servers[sc.Key()]
	return st, ok
}

// ServerFor returns the (possibly freshly started) server responsible for
// ext, per spec.md §4.2's "first in config order wins" routing rule.
func (s *Supervisor) ServerFor(ctx context.Context, ext string) (*ServerState, error) {
	sc, ok := s.cfg.ServerFor(ext)
	if !ok {
		return nil, bridgeerr.Newf(bridgeerr.NoServerForExtension, "no server configured for extension %q", ext)
	}
	return s.serverFor(ctx, sc)
}

func (s *Supervisor) serverFor(ctx context.Context, sc config.ServerConfig) (*ServerState, error) {
	key := sc.Key()

	s.mu.Lock()
	if existing, ok := s.servers[key]; ok {
		s.mu.Unlock()
		if existing.Status() == StatusCrashed {
			return s.restart(ctx, existing)
		}
		return existing, nil
	}
	s.mu.Unlock()

	return s.start(ctx, sc)
}

func (s *Supervisor) start(ctx context.Context, sc config.ServerConfig) (*ServerState, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.AtCapacity, "waiting for a free server slot")
	}

	st := &ServerState{
		key:    sc.Key(),
		cfg:    sc,
		log:    logging.ForComponent(s.log, sc.Command[0]),
		status: StatusStarting,
		docs:   newDocCache(),
	}

	s.mu.Lock()
	s.servers[st.key] = st
	s.mu.Unlock()

	if err := s.spawnAndInitialize(ctx, st); err != nil {
		s.sem.Release(1)
		st.setStatus(StatusCrashed)
		return nil, err
	}

	if iv := sc.RestartInterval(); iv > 0 {
		go s.restartOnInterval(st, iv)
	}
	go s.watchCrash(st)

	return st, nil
}

func (s *Supervisor) spawnAndInitialize(ctx context.Context, st *ServerState) error {
	client, err := NewClient(ctx, st.cfg.Command, st.cfg.RootDir, st.log)
	if err != nil {
		return bridgeerr.Wrap(err, bridgeerr.ServerCrashed, "spawn server process")
	}
	s.wireHandlers(st, client)

	var result protocol.InitializeResult
	params := initializeParams(st.cfg.RootDir, st.cfg.InitializationOptions)
	if err := client.Call(ctx, 30*time.Second, "initialize", params, &result); err != nil {
		_ = client.Kill()
		return bridgeerr.Wrap(err, bridgeerr.ServerCrashed, "initialize")
	}
	if err := client.Notify(ctx, "initialized", protocol.InitializedParams{}); err != nil {
		s.log.Warning("initialized notification failed for {Server}: {Error}", st.cfg.Command[0], err)
	}
	s.primeWorkspace(ctx, st, client)

	st.mu.Lock()
	st.client = client
	st.caps = result.Capabilities
	st.mu.Unlock()
	st.setStatus(StatusReady)

	s.log.Information("started {Server} for extensions {Extensions} (pid via {Command})",
		st.cfg.Command[0], st.cfg.Extensions, st.cfg.Command)
	return nil
}

// primeWorkspace sends one explicit workspace/didChangeWorkspaceFolders
// notification announcing the server's own root as newly added. TypeScript's
// language server only populates its workspace-symbol index once it has seen
// a workspace folder announced this way; the source worked around that by
// opening an arbitrary file first as a side effect of its first real
// request. Open Question decision: an explicit notification sent once at
// startup is less surprising than a side-channel file-open and costs one
// extra round trip only at initialization.
func (s *Supervisor) primeWorkspace(ctx context.Context, st *ServerState, client *Client) {
	if st.cfg.RootDir == "" {
		return
	}
	uri := pathutil.ToURI(st.cfg.RootDir)
	params := protocol.DidChangeWorkspaceFoldersParams{
		Event: protocol.WorkspaceFoldersChangeEvent{
			Added: []protocol.WorkspaceFolder{{URI: protocol.URI(uri), Name: filepath.Base(st.cfg.RootDir)}},
		},
	}
	if err := client.Notify(ctx, "workspace/didChangeWorkspaceFolders", params); err != nil {
		s.log.Warning("workspace priming notification failed for {Server}: {Error}", st.cfg.Command[0], err)
	}
}

func (s *Supervisor) wireHandlers(st *ServerState, client *Client) {
	client.OnNotification("textDocument/publishDiagnostics", func(raw json.RawMessage) {
		var p protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(raw, &p); err != nil {
			st.log.Warning("malformed publishDiagnostics: {Error}", err)
			return
		}
		st.docs.setDiagnostics(p.URI, p.Diagnostics)
		if s.onDiagnostics != nil {
			s.onDiagnostics(st, p.URI)
		}
	})
	client.OnNotification("window/logMessage", func(raw json.RawMessage) {
		var p protocol.LogMessageParams
		if err := json.Unmarshal(raw, &p); err == nil {
			st.log.Debug("{Server} log: {Message}", st.cfg.Command[0], p.Message)
		}
	})
	client.OnNotification("window/showMessage", func(raw json.RawMessage) {
		var p protocol.ShowMessageParams
		if err := json.Unmarshal(raw, &p); err == nil {
			st.log.Information("{Server} message: {Message}", st.cfg.Command[0], p.Message)
		}
	})

	client.OnRequest("workspace/configuration", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return []map[string]any{{}}, nil
	})
	client.OnRequest("client/registerCapability", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p protocol.RegistrationParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "unmarshal registerCapability")
		}
		for _, reg := range p.Registrations {
			if reg.Method != "workspace/didChangeWatchedFiles" {
				continue
			}
			optsJSON, err := json.Marshal(reg.RegisterOptions)
			if err != nil {
				continue
			}
			var opts protocol.DidChangeWatchedFilesRegistrationOptions
			if err := json.Unmarshal(optsJSON, &opts); err != nil {
				continue
			}
			st.mu.Lock()
			st.watchers = append(st.watchers, opts.Watchers...)
			st.mu.Unlock()
			if s.onFileWatch != nil {
				s.onFileWatch(st, reg.ID, opts.Watchers)
			}
		}
		return nil, nil
	})
	client.OnRequest("workspace/applyEdit", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p protocol.ApplyWorkspaceEditParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "unmarshal applyEdit")
		}
		// The bridge exposes server-initiated workspace edits as informational
		// only: they are logged, not mutated onto disk, since C6 owns every
		// disk write the bridge makes and a server-pushed edit would bypass
		// its snapshot/rollback contract.
		st.log.Information("{Server} requested workspace/applyEdit ({Label}); not applied automatically", st.cfg.Command[0], p.Label)
		return protocol.ApplyWorkspaceEditResult{Applied: false, FailureReason: "bridge applies edits only via apply_workspace_edit"}, nil
	})
}

func (s *Supervisor) watchCrash(st *ServerState) {
	err := <-st.client.Done()
	if st.Status() == StatusStopped {
		return
	}
	st.setStatus(StatusCrashed)
	s.log.Warning("{Server} exited unexpectedly: {Error}", st.cfg.Command[0], err)
}

func (s *Supervisor) restartOnInterval(st *ServerState, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if st.Status() == StatusStopped {
			return
		}
		s.log.Information("restarting {Server} on its {Interval} schedule", st.cfg.Command[0], interval)
		if _, err := s.restart(context.Background(), st); err != nil {
			s.log.Error("scheduled restart of {Server} failed: {Error}", st.cfg.Command[0], err)
		}
	}
}

// restart tears down st's process (if still alive) and respawns it in
// place, replaying every document that was open beforehand so the new
// process ends up in the same state (spec.md §4.3). The *ServerState
// pointer identity is preserved so callers holding it keep working.
func (s *Supervisor) restart(ctx context.Context, st *ServerState) (*ServerState, error) {
	st.setStatus(StatusRestarting)

	st.mu.Lock()
	oldClient := st.client
	st.mu.Unlock()
	if oldClient != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_ = oldClient.Shutdown(shutdownCtx)
		cancel()
	}

	open := st.docs.snapshotOpen()

	if err := s.spawnAndInitialize(ctx, st); err != nil {
		st.setStatus(StatusCrashed)
		return nil, bridgeerr.Wrap(err, bridgeerr.ServerRestarted, "restart failed")
	}

	st.mu.Lock()
	st.restartCount++
	st.mu.Unlock()

	for uri, doc := range open {
		if err := st.openDocument(ctx, uri, pathutil.LanguageID(pathutil.Ext(pathutil.ToPath(uri))), doc.text, doc.version); err != nil {
			s.log.Warning("failed to re-open {URI} after restart: {Error}", uri, err)
		}
	}

	return st, nil
}

// Restart forces a restart of the server responsible for ext, regardless of
// its current status — the explicit restart_server tool (spec.md §6), as
// opposed to restart()'s own crash-triggered use.
func (s *Supervisor) Restart(ctx context.Context, ext string) (*ServerState, error) {
	st, ok := s.Lookup(ext)
	if !ok {
		return nil, bridgeerr.Newf(bridgeerr.NoServerForExtension, "no running server for extension %q", ext)
	}
	return s.restart(ctx, st)
}

// Servers returns a snapshot of every currently known server, for
// diagnostics and shutdown.
func (s *Supervisor) Servers() []*ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ServerState, 0, len(s.servers))
	for _, st := range s.servers {
		out = append(out, st)
	}
	return out
}

// Shutdown gracefully stops every running server.
func (s *Supervisor) Shutdown(ctx context.Context) {
	for _, st := range s.Servers() {
		st.setStatus(StatusStopped)
		st.mu.RLock()
		client := st.client
		st.mu.RUnlock()
		if client == nil {
			continue
		}
		if err := client.Shutdown(ctx); err != nil {
			s.log.Warning("shutdown of {Server} did not complete cleanly: {Error}", st.cfg.Command[0], err)
		}
		s.sem.Release(1)
	}
}
