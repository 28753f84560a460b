// Package registry implements the builder-style tool registry (C11):
// duplicate-name rejection, a required-capability tag per handler, and a
// uniform response/error shape. It replaces the teacher's one-shot
// registerTools method (§9 "dynamic registry via module side-effects" →
// explicit builder) with an explicit Builder that every tool is added to
// before the MCP server starts serving, so the full tool surface — and
// any name collision — is known at startup rather than discovered at the
// first call.
package registry

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/symbridge/symbridge/internal/bridgeerr"
)

// Capability is the service a handler needs from the ServiceContext
// (spec.md §4.9's requiredService enum).
type Capability string

const (
	CapSymbol         Capability = "symbol"
	CapFile            Capability = "file"
	CapDiagnostic       Capability = "diagnostic"
	CapIntelligence    Capability = "intelligence"
	CapHierarchy       Capability = "hierarchy"
	CapLSP              Capability = "lsp"
	CapServiceContext  Capability = "serviceContext"
	CapNone             Capability = "none"
)

// Handler is a tool's implementation. args is the raw JSON argument object,
// passed through undecoded; the handler decodes it into its own typed struct.
// Result is marshaled into the uniform {content:[{type:"text",text}]}
// response shape by Registry.Dispatch's caller (internal/mcpserver).
type Handler func(ctx context.Context, sc *ServiceContext, args json.RawMessage) (any, error)

// Tool is one registered entry: name, description, required capability,
// a cached JSON schema for its argument struct, and its handler.
type Tool struct {
	Name        string
	Description string
	Required    Capability
	Schema      *jsonschema.Schema
	Handler     Handler
}

// Registry is the process-wide tool table, built once at startup via
// Builder and read-only thereafter (§9 "process-wide singletons" →
// injected ServiceContext: the Registry itself has no mutable state once
// Build returns, only the per-call ServiceContext varies).
type Registry struct {
	tools map[string]Tool
	order []string
}

// Names returns every registered tool name in registration order — the
// order the MCP tool surface is advertised in.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch passes args unchanged to the tool's handler and invokes it, wrapping
// an unknown tool name as *ToolUnknown (spec.md §7).
func (r *Registry) Dispatch(ctx context.Context, sc *ServiceContext, name string, args json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, bridgeerr.Newf(bridgeerr.ToolUnknown, "no tool registered with name %q", name)
	}
	return t.Handler(ctx, sc, args)
}

// Builder accumulates tools before Build freezes them into a Registry.
// Using a builder rather than registering tools as a side effect of
// package import (the pattern the source used) means every tool name
// collision is caught at startup, in one place, instead of silently
// shadowing a handler at runtime.
type Builder struct {
	tools map[string]Tool
	order []string
}

// NewBuilder starts an empty tool builder.
func NewBuilder() *Builder {
	return &Builder{tools: make(map[string]Tool)}
}

// Register adds one tool. argsSample is a zero-value (or representative)
// instance of the handler's argument struct, reflected into a JSON schema
// via invopop/jsonschema and cached on Tool.Schema for documentation and
// introspection; Dispatch does not validate args against it.
// Registering the same name twice is an error, not a silent overwrite.
func (b *Builder) Register(name, description string, argsSample any, required Capability, handler Handler) error {
	if _, exists := b.tools[name]; exists {
		return bridgeerr.Newf(bridgeerr.Internal, "tool %q registered twice", name)
	}
	if argsSample != nil && reflect.ValueOf(argsSample).Kind() == reflect.Ptr {
		argsSample = reflect.ValueOf(argsSample).Elem().Interface()
	}

	var schema *jsonschema.Schema
	if argsSample != nil {
		r := &jsonschema.Reflector{DoNotReference: true}
		schema = r.Reflect(argsSample)
	}

	b.tools[name] = Tool{Name: name, Description: description, Required: required, Schema: schema, Handler: handler}
	b.order = append(b.order, name)
	return nil
}

// Build freezes the accumulated tools into a Registry.
func (b *Builder) Build() *Registry {
	tools := make(map[string]Tool, len(b.tools))
	for k, v := range b.tools {
		tools[k] = v
	}
	order := make([]string, len(b.order))
	copy(order, b.order)
	return &Registry{tools: tools, order: order}
}
