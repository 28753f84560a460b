// Package logging builds the single process-wide mtlog logger instance and
// hands out component-scoped children via ForContext, so no package ever
// reaches for a log.Printf or a package-level singleton (spec.md §9).
package logging

import (
	"os"

	"github.com/willibrandon/mtlog"
	"github.com/willibrandon/mtlog/core"
	"github.com/willibrandon/mtlog/sinks"
)

// Logger is the structured logger interface threaded through every
// subsystem as a constructor argument, never as an ambient global.
type Logger = core.Logger

// Config controls how the root logger is built.
type Config struct {
	// Debug enables Verbose/Debug level output; otherwise Information is the floor.
	Debug bool
}

// New builds the root logger. Called exactly once, from main.
func New(cfg Config) Logger {
	level := core.InformationLevel
	if cfg.Debug {
		level = core.DebugLevel
	}
	// stdio MCP hosts (and LSP servers' own stdio) own stdout; all logging
	// goes to stderr so it never corrupts a framed protocol stream.
	return mtlog.New(
		mtlog.WithSink(sinks.NewConsoleSinkWithWriter(os.Stderr)),
		mtlog.WithMinimumLevel(level),
	)
}

// ForComponent returns a child logger tagging every event with the
// component name, e.g. ForComponent(root, "supervisor").
func ForComponent(l Logger, name string) Logger {
	return l.ForContext("component", name)
}
