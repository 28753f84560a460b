package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, workspace, body string) string {
	t.Helper()
	path := filepath.Join(workspace, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_NormalizesExtensionsAndRootDir(t *testing.T) {
	ws := t.TempDir()
	path := writeConfig(t, ws, `{
		"servers": [
			{"extensions": [".GO", "Go"], "command": ["echo"]}
		]
	}`)

	cfg, err := Load(path, ws)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, []string{"go", "go"}, cfg.Servers[0].Extensions)

	absWs, err := filepath.Abs(ws)
	require.NoError(t, err)
	assert.Equal(t, absWs, cfg.Servers[0].RootDir)
}

func TestLoad_MissingCommandFails(t *testing.T) {
	ws := t.TempDir()
	path := writeConfig(t, ws, `{"servers": [{"extensions": ["go"], "command": []}]}`)
	_, err := Load(path, ws)
	require.Error(t, err)
}

func TestLoad_MissingExtensionsFails(t *testing.T) {
	ws := t.TempDir()
	path := writeConfig(t, ws, `{"servers": [{"extensions": [], "command": ["echo"]}]}`)
	_, err := Load(path, ws)
	require.Error(t, err)
}

func TestLoad_UnknownCommandFails(t *testing.T) {
	ws := t.TempDir()
	path := writeConfig(t, ws, `{"servers": [{"extensions": ["go"], "command": ["definitely-not-a-real-binary-xyz"]}]}`)
	_, err := Load(path, ws)
	require.Error(t, err)
}

func TestLoad_RestartIntervalTooSmallFails(t *testing.T) {
	ws := t.TempDir()
	path := writeConfig(t, ws, `{"servers": [{"extensions": ["go"], "command": ["echo"], "restartIntervalMinutes": 0.01}]}`)
	_, err := Load(path, ws)
	require.Error(t, err)
}

func TestServerConfig_Key(t *testing.T) {
	s := ServerConfig{Command: []string{"gopls", "-mode=stdio"}}
	assert.Equal(t, `["gopls","-mode=stdio"]`, s.Key())
}

func TestServerConfig_RestartInterval(t *testing.T) {
	s := ServerConfig{RestartIntervalMinutes: 2}
	assert.Equal(t, 2*time.Minute, s.RestartInterval())

	s.RestartIntervalMinutes = 0
	assert.Equal(t, time.Duration(0), s.RestartInterval())
}

func TestConfig_ServerFor_FirstMatchWins(t *testing.T) {
	ws := t.TempDir()
	path := writeConfig(t, ws, `{
		"servers": [
			{"extensions": ["go"], "command": ["echo"]},
			{"extensions": ["go", "ts"], "command": ["echo", "second"]}
		]
	}`)
	cfg, err := Load(path, ws)
	require.NoError(t, err)

	s, ok := cfg.ServerFor(".GO")
	require.True(t, ok)
	assert.Equal(t, []string{"echo"}, s.Command)
}

func TestConfig_ServerFor_NoMatch(t *testing.T) {
	ws := t.TempDir()
	path := writeConfig(t, ws, `{"servers": [{"extensions": ["go"], "command": ["echo"]}]}`)
	cfg, err := Load(path, ws)
	require.NoError(t, err)

	_, ok := cfg.ServerFor("rs")
	assert.False(t, ok)
}

func TestDefaultConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/ws", ".symbridge", "config.json"), DefaultConfigPath("/ws"))
}
