package lsp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/symbridge/symbridge/internal/config"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/protocol"
)

func TestStatus_String(t *testing.T) {
	cases := map[Status]string{
		StatusStarting:   "starting",
		StatusReady:      "ready",
		StatusRestarting: "restarting",
		StatusCrashed:    "crashed",
		StatusStopped:    "stopped",
		Status(99):       "unknown",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}

func newBareServerState(caps string) *ServerState {
	return &ServerState{
		key:  "gopls",
		cfg:  config.ServerConfig{Extensions: []string{"go"}},
		log:  logging.New(logging.Config{}),
		caps: protocol.ServerCapabilities(caps),
		docs: newDocCache(),
	}
}

func TestServerState_KeyAndExtensions(t *testing.T) {
	st := newBareServerState(`{}`)
	assert.Equal(t, "gopls", st.Key())
	assert.Equal(t, []string{"go"}, st.Extensions())
}

func TestServerState_StatusRoundTrip(t *testing.T) {
	st := newBareServerState(`{}`)
	assert.Equal(t, StatusStarting, st.Status())
	st.setStatus(StatusReady)
	assert.Equal(t, StatusReady, st.Status())
}

func TestServerState_HasCapability_TopLevelAndNested(t *testing.T) {
	st := newBareServerState(`{
		"documentSymbolProvider": true,
		"renameProvider": {"prepareProvider": true},
		"codeLensProvider": false
	}`)
	assert.True(t, st.HasCapability("documentSymbolProvider"))
	assert.True(t, st.HasCapability("renameProvider.prepareProvider"))
	assert.False(t, st.HasCapability("codeLensProvider"))
	assert.False(t, st.HasCapability("definitionProvider"), "missing key must report false")
}

func TestServerState_HasCapability_EmptyCapsAlwaysFalse(t *testing.T) {
	st := newBareServerState(``)
	assert.False(t, st.HasCapability("anything"))
}

func TestServerState_CallWithoutClientFails(t *testing.T) {
	st := newBareServerState(`{}`)
	err := st.Call(context.Background(), 0, "textDocument/hover", nil, nil)
	assert.Error(t, err)
}

func TestServerState_IsOpenAndCachedText_AfterOpenDocument(t *testing.T) {
	st := newBareServerState(`{}`)
	uri := protocol.DocumentUri("file:///a.go")
	st.docs.open[uri] = &openDoc{text: "package a\n", version: 3}

	version, ok := st.IsOpen(uri)
	assert.True(t, ok)
	assert.Equal(t, int32(3), version)

	text, version, ok := st.CachedText(uri)
	assert.True(t, ok)
	assert.Equal(t, "package a\n", text)
	assert.Equal(t, int32(3), version)

	_, ok = st.IsOpen("file:///missing.go")
	assert.False(t, ok)
}

func TestSupervisor_Lookup_FalseWhenNoServerConfigured(t *testing.T) {
	sup := NewSupervisor(&config.Config{}, logging.New(logging.Config{}))
	_, ok := sup.Lookup("go")
	assert.False(t, ok)
}

func TestSupervisor_Lookup_FalseBeforeServerStarted(t *testing.T) {
	sup := NewSupervisor(&config.Config{Servers: []config.ServerConfig{
		{Extensions: []string{"go"}, Command: []string{"gopls"}},
	}}, logging.New(logging.Config{}))
	_, ok := sup.Lookup("go")
	assert.False(t, ok, "a configured-but-never-started server must not be returned by Lookup")
}
