// Command symbridge is the MCP server entrypoint: it loads the bridge
// configuration, starts one supervised language server per configured
// command, wires the symbol/edit/file-move/batch services together behind
// a tool registry, and serves the MCP tool surface over stdio until a
// signal, the parent process, or an internal error ends it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/symbridge/symbridge/internal/batch"
	"github.com/symbridge/symbridge/internal/config"
	"github.com/symbridge/symbridge/internal/edit"
	"github.com/symbridge/symbridge/internal/filemove"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/lsp"
	"github.com/symbridge/symbridge/internal/mcpserver"
	"github.com/symbridge/symbridge/internal/registry"
	"github.com/symbridge/symbridge/internal/symbols"
)

var debug = os.Getenv("DEBUG") != ""

func main() {
	var workspaceDir, configPath string
	flag.StringVar(&workspaceDir, "workspace", ".", "Path to the workspace directory")
	flag.StringVar(&configPath, "config", "", "Path to the configuration JSON file (default: <workspace>/.symbridge/config.json)")
	flag.Parse()

	log := logging.New(logging.Config{Debug: debug})

	absWorkspace, err := os.Getwd()
	if err != nil {
		log.Error("failed to resolve working directory: {Error}", err)
		os.Exit(1)
	}
	if workspaceDir != "." {
		absWorkspace = workspaceDir
	}
	if configPath == "" {
		configPath = config.DefaultConfigPath(absWorkspace)
	}

	cfg, err := config.Load(configPath, absWorkspace)
	if err != nil {
		log.Error("failed to load configuration from {Path}: {Error}", configPath, err)
		os.Exit(1)
	}

	app, err := newApp(cfg, log)
	if err != nil {
		log.Error("failed to build server: {Error}", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Parent process monitoring: hosts that launch this process over stdio
	// (Claude Desktop among them) don't reliably kill their MCP server
	// children, so a missed signal would otherwise leave an orphaned
	// supervisor running indefinitely.
	parentDeath := make(chan struct{})
	go func() {
		ppid := os.Getppid()
		if debug {
			log.Debug("monitoring parent process {Pid}", ppid)
		}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				currentPpid := os.Getppid()
				if currentPpid != ppid && (currentPpid == 1 || ppid == 1) {
					log.Information("parent process {Ppid} terminated (current {CurrentPpid}), initiating shutdown", ppid, currentPpid)
					close(parentDeath)
					return
				}
			case <-done:
				return
			}
		}
	}()

	go func() {
		select {
		case sig := <-sigChan:
			log.Information("received signal {Signal}", sig)
			cleanup(app, done)
		case <-parentDeath:
			cleanup(app, done)
		}
	}()

	if err := app.start(); err != nil {
		log.Error("server error: {Error}", err)
		cleanup(app, done)
		os.Exit(1)
	}

	<-done
	log.Information("shutdown complete")
	os.Exit(0)
}

// app wires every component together (spec.md §1's bridge), replacing the
// teacher's single-language server struct (lspClients map, mcpServer
// field) with the supervisor/registry split the REDESIGN FLAGS call for.
type app struct {
	cfg        *config.Config
	log        logging.Logger
	supervisor *lsp.Supervisor
	mcp        *mcpserver.Server
	ctx        context.Context
	cancel     context.CancelFunc
}

func newApp(cfg *config.Config, log logging.Logger) (*app, error) {
	ctx, cancel := context.WithCancel(context.Background())

	supervisor := lsp.NewSupervisor(cfg, log)
	symbolSvc := symbols.New(supervisor, supervisor)
	editor := edit.New(supervisor, log)
	mover := filemove.New(symbolSvc, editor, log)
	mover.Root = cfg.WorkspaceDir

	builder := registry.NewBuilder()
	if err := mcpserver.RegisterAll(builder); err != nil {
		cancel()
		return nil, err
	}
	reg := builder.Build()

	sc := &registry.ServiceContext{
		Supervisor: supervisor,
		Symbols:    symbolSvc,
		Editor:     editor,
		Mover:      mover,
		Log:        log,
	}

	dispatch := func(ctx context.Context, tool string, args map[string]any, dryRun bool) (any, error) {
		argsWithDryRun := make(map[string]any, len(args)+1)
		for k, v := range args {
			argsWithDryRun[k] = v
		}
		if _, has := argsWithDryRun["dryRun"]; !has {
			argsWithDryRun["dryRun"] = dryRun
		}
		raw, err := json.Marshal(argsWithDryRun)
		if err != nil {
			return nil, err
		}
		return reg.Dispatch(ctx, sc, tool, raw)
	}
	atomicRunner := batch.NewAtomicRunner(dispatch, editor)
	sc.Batch = batch.New(dispatch, atomicRunner)

	mcpSrv := mcpserver.New(stdio.NewStdioServerTransport(), reg, sc, log)

	return &app{cfg: cfg, log: log, supervisor: supervisor, mcp: mcpSrv, ctx: ctx, cancel: cancel}, nil
}

func (a *app) start() error {
	for _, svc := range a.cfg.Servers {
		if _, err := a.supervisor.ServerFor(a.ctx, svc.Extensions[0]); err != nil {
			a.log.Warning("failed to start server for {Command}: {Error}", svc.Command, err)
		}
	}
	if err := a.mcp.RegisterAll(); err != nil {
		return err
	}
	return a.mcp.Serve()
}

func cleanup(a *app, done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.supervisor.Shutdown(ctx)
	a.cancel()
	select {
	case <-done:
	default:
		close(done)
	}
}
