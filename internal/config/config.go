// Package config loads and validates the bridge's JSON configuration file
// (spec.md §6): a list of language server definitions keyed by file
// extension, plus the workspace root they apply to.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ServerConfig is one entry of the "servers" array (spec.md §3).
type ServerConfig struct {
	Extensions             []string       `json:"extensions"`
	Command                []string       `json:"command"`
	RootDir                string         `json:"rootDir,omitempty"`
	RestartIntervalMinutes float64        `json:"restartIntervalMinutes,omitempty"`
	InitializationOptions  map[string]any `json:"initializationOptions,omitempty"`
}

// Key is the canonical identity of a ServerConfig: the JSON-encoded command
// array, matching spec.md §4.2's "serverKey is the JSON-encoded command array".
func (s ServerConfig) Key() string {
	b, _ := json.Marshal(s.Command)
	return string(b)
}

// RestartInterval returns the configured restart interval, or zero if restarts
// are disabled.
func (s ServerConfig) RestartInterval() time.Duration {
	if s.RestartIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(s.RestartIntervalMinutes * float64(time.Minute))
}

// Config is the top-level document at <workspace>/.symbridge/config.json.
type Config struct {
	WorkspaceDir string         `json:"-"`
	Servers      []ServerConfig `json:"servers"`
}

// DefaultConfigPath returns the conventional config path for a workspace
// (spec.md §6).
func DefaultConfigPath(workspaceDir string) string {
	return filepath.Join(workspaceDir, ".symbridge", "config.json")
}

// Load reads and validates the config file at path. workspaceDir is
// required: an empty workspaceDir is rejected with a config error rather
// than derived from path.
func Load(path string, workspaceDir string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var doc struct {
		Servers []ServerConfig `json:"servers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg := &Config{WorkspaceDir: workspaceDir, Servers: doc.Servers}
	if err := cfg.normalizeAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalizeAndValidate() error {
	if c.WorkspaceDir == "" {
		return fmt.Errorf("config error: workspaceDir is required")
	}
	abs, err := filepath.Abs(c.WorkspaceDir)
	if err != nil {
		return fmt.Errorf("config error: failed to resolve workspaceDir %q: %w", c.WorkspaceDir, err)
	}
	c.WorkspaceDir = abs
	if info, err := os.Stat(c.WorkspaceDir); err != nil || !info.IsDir() {
		return fmt.Errorf("config error: workspaceDir %q does not exist or is not a directory", c.WorkspaceDir)
	}

	for i := range c.Servers {
		s := &c.Servers[i]
		if len(s.Command) == 0 {
			return fmt.Errorf("config error: server at index %d has no command", i)
		}
		if len(s.Extensions) == 0 {
			return fmt.Errorf("config error: server %q has no extensions", strings.Join(s.Command, " "))
		}
		for j, ext := range s.Extensions {
			s.Extensions[j] = strings.ToLower(strings.TrimPrefix(ext, "."))
		}
		if s.RestartIntervalMinutes != 0 && s.RestartIntervalMinutes < 0.1 {
			return fmt.Errorf("config error: restartIntervalMinutes for %q must be >= 0.1 or omitted", s.Command[0])
		}
		if s.RootDir == "" {
			s.RootDir = c.WorkspaceDir
		} else if !filepath.IsAbs(s.RootDir) {
			s.RootDir = filepath.Join(c.WorkspaceDir, s.RootDir)
		}
		if _, err := exec.LookPath(s.Command[0]); err != nil {
			if !filepath.IsAbs(s.Command[0]) {
				return fmt.Errorf("config error: command %q for server index %d not found in PATH: %w", s.Command[0], i, err)
			}
			if _, statErr := os.Stat(s.Command[0]); statErr != nil {
				return fmt.Errorf("config error: command %q for server index %d not found: %w", s.Command[0], i, statErr)
			}
		}
	}
	return nil
}

// ServerFor returns the first ServerConfig whose Extensions contains ext
// (lowercased, dot-less), matching spec.md §4.2's "first in config order
// wins" routing rule.
func (c *Config) ServerFor(ext string) (ServerConfig, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, s := range c.Servers {
		for _, e := range s.Extensions {
			if e == ext {
				return s, true
			}
		}
	}
	return ServerConfig{}, false
}
