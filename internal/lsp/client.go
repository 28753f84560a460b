// Package lsp implements the server supervisor (C3) and document sync cache
// (C4): spawning and initializing language server processes, routing by
// file extension, restarting and recovering them, and keeping each
// server's view of open files and diagnostics in sync with disk.
package lsp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/protocol"
	"github.com/symbridge/symbridge/internal/rpc"
)

// Default per-request timeouts (spec.md §4.1).
const (
	DefaultCallTimeout     = 5 * time.Second
	HoverTimeout           = 30 * time.Second
	DiagnosticIdleMaxWait  = 5 * time.Second
	DiagnosticIdleWindow   = 300 * time.Millisecond
	DiagnosticRetryMaxWait = 3 * time.Second
	DiagnosticRetryWindow  = 300 * time.Millisecond
)

// Client owns one language server process and its protocol connection.
// Everything above the wire (capability caching, open-file bookkeeping,
// diagnostics) lives on the owning serverState; Client only knows how to
// talk to the process.
type Client struct {
	log logging.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	codec  *rpc.Codec
	waitCh chan error
}

// NewClient spawns command (argv[0] is the binary, the rest are arguments)
// with cwd as its working directory and wires its stdio to a Content-Length
// framed Codec.
func NewClient(ctx context.Context, command []string, cwd string, log logging.Logger) (*Client, error) {
	if len(command) == 0 {
		return nil, bridgeerr.New(bridgeerr.ValidationError, "empty server command")
	}
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "create stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "create stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, bridgeerr.Wrap(err, bridgeerr.Internal, fmt.Sprintf("start %s", command[0]))
	}

	c := &Client{
		log:    log,
		cmd:    cmd,
		stdin:  stdin,
		waitCh: make(chan error, 1),
	}
	c.codec = rpc.NewCodec(stdout, stdin, rpc.FramingContentLength, log)

	go c.drainStderr(stderr, command[0])
	go c.watchProcess()

	return c, nil
}

func (c *Client) drainStderr(stderr io.Reader, name string) {
	scanner := bufio.NewScanner(stderr)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		c.log.Debug("{Server} stderr: {Line}", name, scanner.Text())
	}
}

func (c *Client) watchProcess() {
	err := c.cmd.Wait()
	c.waitCh <- err
	c.codec.Close(bridgeerr.Wrap(err, bridgeerr.ServerCrashed, "server process exited"))
}

// Done returns a channel that delivers the process's exit error once it
// terminates, for crash detection by the supervisor.
func (c *Client) Done() <-chan error { return c.waitCh }

// Call issues a request bounded by timeout.
func (c *Client) Call(ctx context.Context, timeout time.Duration, method string, params any, result any) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.codec.Call(cctx, method, params, result)
}

// Notify issues a one-way notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	return c.codec.Notify(ctx, method, params)
}

// OnNotification registers a handler for a server-initiated notification.
func (c *Client) OnNotification(method string, h rpc.NotificationHandler) {
	c.codec.OnNotification(method, h)
}

// OnRequest registers a handler for a server-initiated request.
func (c *Client) OnRequest(method string, h rpc.RequestHandler) {
	c.codec.OnRequest(method, h)
}

// Kill forcibly terminates the process, for use after a graceful shutdown
// timeout.
func (c *Client) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}

// Shutdown performs the LSP shutdown/exit sequence and waits (bounded) for
// the process to exit, killing it if it doesn't.
func (c *Client) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Call(shutdownCtx, 2*time.Second, "shutdown", nil, nil); err != nil {
		c.log.Debug("shutdown request failed (continuing): {Error}", err)
	}
	exitCtx, exitCancel := context.WithTimeout(ctx, 1*time.Second)
	defer exitCancel()
	if err := c.Notify(exitCtx, "exit", nil); err != nil {
		c.log.Debug("exit notification failed (continuing): {Error}", err)
	}
	_ = c.stdin.Close()

	select {
	case <-c.waitCh:
		return nil
	case <-time.After(2 * time.Second):
		if err := c.Kill(); err != nil {
			return bridgeerr.Wrap(err, bridgeerr.Internal, "kill unresponsive server")
		}
		return nil
	}
}

var startPID = os.Getpid

// clientCapabilities is the ClientCapabilities document sent with every
// initialize request, generalized from the teacher's single hardcoded
// capability set to every symbol kind and the diagnostic pull model.
func clientCapabilities() protocol.ClientCapabilities {
	kinds := make([]protocol.SymbolKind, 0, 26)
	for k := protocol.File; k <= protocol.TypeParameter; k++ {
		kinds = append(kinds, k)
	}
	return protocol.ClientCapabilities{
		Workspace: protocol.WorkspaceClientCapabilities{
			ApplyEdit:     true,
			WorkspaceEdit: &protocol.WorkspaceEditClientCapabilities{DocumentChanges: true},
			Symbol: &protocol.WorkspaceSymbolClientCapabilities{
				SymbolKind: &protocol.ClientSymbolKindOptions{ValueSet: kinds},
			},
			DidChangeWatchedFiles: protocol.DidChangeWatchedFilesClientCapabilities{DynamicRegistration: true},
			WorkspaceFolders:      true,
		},
		TextDocument: protocol.TextDocumentClientCapabilities{
			Synchronization: &protocol.TextDocumentSyncClientCapabilities{DidSave: true},
			Rename:          &protocol.RenameClientCapabilities{},
			DocumentSymbol: protocol.DocumentSymbolClientCapabilities{
				HierarchicalDocumentSymbolSupport: true,
				SymbolKind:                        &protocol.ClientSymbolKindOptions{ValueSet: kinds},
			},
			CodeLens:           &protocol.CodeLensClientCapabilities{},
			PublishDiagnostics: protocol.PublishDiagnosticsClientCapabilities{},
			Definition:         &protocol.DefinitionClientCapabilities{},
			References:         &protocol.ReferencesClientCapabilities{},
			Hover:              &protocol.HoverClientCapabilities{ContentFormat: []string{"markdown", "plaintext"}},
			Completion:         &protocol.CompletionClientCapabilities{},
			SignatureHelp:      &protocol.SignatureHelpClientCapabilities{},
			CallHierarchy:      &protocol.CallHierarchyClientCapabilities{},
			Diagnostic:         &protocol.DiagnosticClientCapabilities{},
		},
	}
}

// initializeParams builds the initialize request body for rootDir, with the
// given server-specific initializationOptions passed through opaque.
func initializeParams(rootDir string, opts map[string]any) protocol.InitializeParams {
	rootURI := "file://" + rootDir
	var initOpts any
	if len(opts) > 0 {
		initOpts = opts
	}
	return protocol.InitializeParams{
		ProcessID:  int32(startPID()),
		ClientInfo: &protocol.ClientInfo{Name: "symbridge", Version: "0.1.0"},
		RootURI:    protocol.DocumentUri(rootURI),
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{URI: protocol.URI(rootURI), Name: rootDir},
		},
		Capabilities:          clientCapabilities(),
		InitializationOptions: initOpts,
		Trace:                 protocol.TraceOff,
	}
}
