package lsp

import (
	"context"
	"sync"
	"time"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/pathutil"
	"github.com/symbridge/symbridge/internal/protocol"
)

// openDoc is one document's sync state as the bridge sees it: the text it
// last pushed to the server, the version number that text was pushed under,
// and the diagnostics (if any) the server has since published for it.
type openDoc struct {
	text    string
	version int32
	diags   []protocol.Diagnostic
	diagSet bool
	synced  time.Time
}

// docCache is the per-server document sync cache (C4): it is the single
// source of truth for which files are open against a given server, what
// version they are at, and the most recent diagnostics received for them.
type docCache struct {
	mu   sync.RWMutex
	open map[protocol.DocumentUri]*openDoc
}

func newDocCache() *docCache {
	return &docCache{open: make(map[protocol.DocumentUri]*openDoc)}
}

func (c *docCache) get(uri protocol.DocumentUri) (*openDoc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.open[uri]
	return d, ok
}

func (c *docCache) setDiagnostics(uri protocol.DocumentUri, diags []protocol.Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.open[uri]
	if !ok {
		d = &openDoc{}
		c.open[uri] = d
	}
	d.diags = diags
	d.diagSet = true
}

// snapshotOpen returns a shallow copy of every currently open document, used
// to replay didOpen after a server restart.
func (c *docCache) snapshotOpen() map[protocol.DocumentUri]openDoc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[protocol.DocumentUri]openDoc, len(c.open))
	for uri, d := range c.open {
		out[uri] = *d
	}
	return out
}

// openDocument sends textDocument/didOpen (or, if already open, didChange)
// and records the new state in the cache (spec.md §4.3).
func (st *ServerState) openDocument(ctx context.Context, uri protocol.DocumentUri, languageID, text string, version int32) error {
	if _, ok := st.docs.get(uri); ok {
		return st.changeDocument(ctx, uri, text, version)
	}

	params := protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: languageID,
			Version:    version,
			Text:       text,
		},
	}
	if err := st.client.Notify(ctx, "textDocument/didOpen", params); err != nil {
		return bridgeerr.Wrap(err, bridgeerr.ConnectionLost, "didOpen")
	}

	st.docs.mu.Lock()
	st.docs.open[uri] = &openDoc{text: text, version: version, synced: time.Now()}
	st.docs.mu.Unlock()
	return nil
}

// changeDocument sends a whole-document textDocument/didChange, bumping the
// version. The bridge always resyncs with the entire file content rather
// than incremental ranges, since every edit path (C6, C9) already has the
// full post-edit text in hand.
func (st *ServerState) changeDocument(ctx context.Context, uri protocol.DocumentUri, text string, version int32) error {
	params := protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeWholeDocument{{Text: text}},
	}
	if err := st.client.Notify(ctx, "textDocument/didChange", params); err != nil {
		return bridgeerr.Wrap(err, bridgeerr.ConnectionLost, "didChange")
	}

	st.docs.mu.Lock()
	d, ok := st.docs.open[uri]
	if !ok {
		d = &openDoc{}
		st.docs.open[uri] = d
	}
	d.text = text
	d.version = version
	d.diagSet = false
	d.synced = time.Now()
	st.docs.mu.Unlock()
	return nil
}

// closeDocument sends textDocument/didClose and forgets the document.
func (st *ServerState) closeDocument(ctx context.Context, uri protocol.DocumentUri) error {
	params := protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}}
	err := st.client.Notify(ctx, "textDocument/didClose", params)
	st.docs.mu.Lock()
	delete(st.docs.open, uri)
	st.docs.mu.Unlock()
	if err != nil {
		return bridgeerr.Wrap(err, bridgeerr.ConnectionLost, "didClose")
	}
	return nil
}

// Diagnostics retrieves diagnostics for uri using the three-tier strategy of
// spec.md §4.4: return the push-model cache immediately if the server has
// ever published for this document; otherwise try the pull model
// (textDocument/diagnostic); and if the server supports neither, issue a
// no-op edit to the already-open document to provoke a push, and wait out a
// short idle window for one to arrive. A document that is not open fails
// with ValidationError; this method does not open it.
func (st *ServerState) Diagnostics(ctx context.Context, uri protocol.DocumentUri) ([]protocol.Diagnostic, error) {
	if d, ok := st.docs.get(uri); ok && d.diagSet {
		return d.diags, nil
	}

	if st.HasCapability("diagnosticProvider") {
		var report protocol.DocumentDiagnosticReport
		err := st.client.Call(ctx, DefaultCallTimeout, "textDocument/diagnostic",
			protocol.DocumentDiagnosticParams{TextDocument: protocol.TextDocumentIdentifier{URI: uri}}, &report)
		if err == nil {
			st.docs.setDiagnostics(uri, report.Items)
			return report.Items, nil
		}
		st.log.Debug("pull diagnostics failed for {URI}, falling back to push wait: {Error}", uri, err)
	}

	return st.waitForPushedDiagnostics(ctx, uri)
}

// waitForPushedDiagnostics nudges a push-only server into publishing by
// sending a version-bumped no-op didChange (identical text, new version
// number) and then polls the cache for an idle window, the same trick the
// teacher's GetDiagnosticsForFile used before a hard timeout.
func (st *ServerState) waitForPushedDiagnostics(ctx context.Context, uri protocol.DocumentUri) ([]protocol.Diagnostic, error) {
	d, ok := st.docs.get(uri)
	if !ok {
		return nil, bridgeerr.Newf(bridgeerr.ValidationError, "document %s is not open", uri)
	}
	_ = st.changeDocument(ctx, uri, d.text, d.version+1)

	deadline := time.Now().Add(DiagnosticIdleMaxWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, bridgeerr.Wrap(ctx.Err(), bridgeerr.Timeout, "waiting for diagnostics")
		case <-time.After(DiagnosticIdleWindow):
		}
		cur, ok := st.docs.get(uri)
		if ok && cur.diagSet && time.Since(cur.synced) >= DiagnosticIdleWindow {
			return cur.diags, nil
		}
	}
	if cur, ok := st.docs.get(uri); ok && cur.diagSet {
		return cur.diags, nil
	}
	return nil, bridgeerr.New(bridgeerr.Timeout, "no diagnostics published within idle window")
}
