package mcpserver

import (
	"context"
	"encoding/json"

	mcp_golang "github.com/metoro-io/mcp-golang"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/logging"
	"github.com/symbridge/symbridge/internal/registry"
)

// Server binds a registry.Registry and ServiceContext to an mcp-golang
// Server, registering every tool with a typed argument struct the way the
// teacher's registerTools does it one RegisterTool call at a time — the
// tag-driven schema style mcp-golang's own reflection expects stays
// unchanged; what differs is that each handler body is now one line
// delegating into the shared registry.Dispatch instead of duplicating
// logic per tool.
type Server struct {
	mcp *mcp_golang.Server
	reg *registry.Registry
	sc  *registry.ServiceContext
	log logging.Logger
}

// New builds a Server. transport is whatever mcp-golang transport the
// caller constructed (main.go passes a stdio transport).
func New(transport mcp_golang.Transport, reg *registry.Registry, sc *registry.ServiceContext, log logging.Logger) *Server {
	return &Server{
		mcp: mcp_golang.NewServer(transport),
		reg: reg,
		sc:  sc,
		log: logging.ForComponent(log, "mcpserver"),
	}
}

// bind registers one tool by name with a statically typed argument struct
// A, delegating the call to s.reg.Dispatch so the exact same handler also
// backs internal/batch's dynamic per-operation dispatch.
func bind[A any](s *Server, name, description string) error {
	return s.mcp.RegisterTool(name, description, func(args A) (*mcp_golang.ToolResponse, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, bridgeerr.Wrap(err, bridgeerr.ValidationError, "marshal tool arguments")
		}
		result, err := s.reg.Dispatch(context.Background(), s.sc, name, raw)
		if err != nil {
			return nil, err
		}
		text, err := json.Marshal(result)
		if err != nil {
			return nil, bridgeerr.Wrap(err, bridgeerr.Internal, "marshal tool result")
		}
		return mcp_golang.NewToolResponse(mcp_golang.NewTextContent(string(text))), nil
	})
}

// RegisterAll registers the full MCP tool surface (spec.md §6 plus
// find_dead_code) against the underlying mcp-golang server. The
// descriptions and required/required-capability wiring live in
// registry.Registry already (built via RegisterAll in handlers.go); this
// pass only needs each tool's static argument type, since mcp-golang
// generates its JSON schema from that type via reflection.
func (s *Server) RegisterAll() error {
	type regFn func(s *Server) error
	tools := map[string]regFn{
		"find_definition":                   func(s *Server) error { return bind[FindDefinitionArgs](s, "find_definition", desc(s, "find_definition")) },
		"find_references":                   func(s *Server) error { return bind[FindReferencesArgs](s, "find_references", desc(s, "find_references")) },
		"rename_symbol":                     func(s *Server) error { return bind[RenameSymbolArgs](s, "rename_symbol", desc(s, "rename_symbol")) },
		"rename_symbol_strict":              func(s *Server) error { return bind[RenameSymbolStrictArgs](s, "rename_symbol_strict", desc(s, "rename_symbol_strict")) },
		"get_diagnostics":                   func(s *Server) error { return bind[FilePathArgs](s, "get_diagnostics", desc(s, "get_diagnostics")) },
		"get_document_symbols":               func(s *Server) error { return bind[FilePathArgs](s, "get_document_symbols", desc(s, "get_document_symbols")) },
		"search_workspace_symbols":          func(s *Server) error { return bind[SearchWorkspaceSymbolsArgs](s, "search_workspace_symbols", desc(s, "search_workspace_symbols")) },
		"get_hover":                         func(s *Server) error { return bind[PositionArgs](s, "get_hover", desc(s, "get_hover")) },
		"get_completions":                   func(s *Server) error { return bind[PositionArgs](s, "get_completions", desc(s, "get_completions")) },
		"get_signature_help":                func(s *Server) error { return bind[PositionArgs](s, "get_signature_help", desc(s, "get_signature_help")) },
		"prepare_call_hierarchy":            func(s *Server) error { return bind[PositionArgs](s, "prepare_call_hierarchy", desc(s, "prepare_call_hierarchy")) },
		"get_call_hierarchy_incoming_calls": func(s *Server) error {
			return bind[CallHierarchyItemArgs](s, "get_call_hierarchy_incoming_calls", desc(s, "get_call_hierarchy_incoming_calls"))
		},
		"get_call_hierarchy_outgoing_calls": func(s *Server) error {
			return bind[CallHierarchyItemArgs](s, "get_call_hierarchy_outgoing_calls", desc(s, "get_call_hierarchy_outgoing_calls"))
		},
		"rename_file":          func(s *Server) error { return bind[RenameFileArgs](s, "rename_file", desc(s, "rename_file")) },
		"create_file":          func(s *Server) error { return bind[CreateFileArgs](s, "create_file", desc(s, "create_file")) },
		"delete_file":          func(s *Server) error { return bind[DeleteFileArgs](s, "delete_file", desc(s, "delete_file")) },
		"apply_workspace_edit": func(s *Server) error { return bind[ApplyWorkspaceEditArgs](s, "apply_workspace_edit", desc(s, "apply_workspace_edit")) },
		"restart_server":       func(s *Server) error { return bind[RestartServerArgs](s, "restart_server", desc(s, "restart_server")) },
		"batch_execute":        func(s *Server) error { return bind[BatchExecuteArgs](s, "batch_execute", desc(s, "batch_execute")) },
		"find_dead_code":       func(s *Server) error { return bind[FindDeadCodeArgs](s, "find_dead_code", desc(s, "find_dead_code")) },
	}
	for _, name := range s.reg.Names() {
		fn, ok := tools[name]
		if !ok {
			return bridgeerr.Newf(bridgeerr.Internal, "tool %q is registered but has no mcp-golang binding", name)
		}
		if err := fn(s); err != nil {
			return bridgeerr.Wrap(err, bridgeerr.Internal, "register tool \""+name+"\"")
		}
	}
	return nil
}

func desc(s *Server, name string) string {
	t, ok := s.reg.Lookup(name)
	if !ok {
		return ""
	}
	return t.Description
}

// Serve blocks, handling MCP requests until the transport closes.
func (s *Server) Serve() error {
	return s.mcp.Serve()
}
