package registry

import (
	"github.com/symbridge/symbridge/internal/batch"
	"github.com/symbridge/symbridge/internal/edit"
	"github.com/symbridge/symbridge/internal/filemove"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/lsp"
	"github.com/symbridge/symbridge/internal/symbols"
)

// ServiceContext bundles every service a handler might need to resolve its
// declared Capability against. §9's REDESIGN FLAGS calls out the source's
// process-wide singletons (package-level lspClients map, a single global
// server struct reused by every handler) for replacement with an explicit,
// injectable value: every handler receives the ServiceContext it runs
// against as an argument instead of depending on hidden package state.
type ServiceContext struct {
	Supervisor *lsp.Supervisor
	Symbols    *symbols.Service
	Editor     *edit.Engine
	Mover      *filemove.Mover
	Batch      *batch.Executor
	Log        logging.Logger
}
