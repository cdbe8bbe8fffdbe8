package cwt

import (
	"context"
	"fmt"

	"github.com/corvee/cwt/diag"
	"github.com/corvee/cwt/internal/registry"
	"github.com/corvee/cwt/internal/store"
)

// Symbol is one declared instance of a schema type somewhere in the
// workspace.
type Symbol struct {
	Name string
	Type string
	Doc  string
	Path string
	Span diag.Span
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption interface {
	apply(*workspaceConfig)
}

type workspaceConfig struct {
	opts []store.Option
}

type workspaceOptionFunc func(*workspaceConfig)

func (f workspaceOptionFunc) apply(c *workspaceConfig) { f(c) }

// WithWorkspaceLocalisation supplies the localisation oracle consulted
// by every validation pass.
func WithWorkspaceLocalisation(fn LocalisationFunc) WorkspaceOption {
	return workspaceOptionFunc(func(c *workspaceConfig) {
		c.opts = append(c.opts, store.WithLocalisation(locAdapter{fn}))
	})
}

// WithWorkspaceUnexpectedKeySeverity overrides the default warning for
// keys the schema has no rule for.
func WithWorkspaceUnexpectedKeySeverity(sev diag.Severity) WorkspaceOption {
	return workspaceOptionFunc(func(c *workspaceConfig) {
		c.opts = append(c.opts, store.WithUnexpectedKeySeverity(sev))
	})
}

// WithWorkspaceIgnoreUnexpectedKeys suppresses diagnostics for keys the
// schema has no rule for.
func WithWorkspaceIgnoreUnexpectedKeys() WorkspaceOption {
	return workspaceOptionFunc(func(c *workspaceConfig) {
		c.opts = append(c.opts, store.WithIgnoreUnexpectedKeys())
	})
}

// Workspace serves live editing: it caches parsed documents, keeps the
// cross-file symbol index current and revalidates changed documents in
// the background. All methods are safe for concurrent use.
type Workspace struct {
	reg   *registry.Registry
	store *store.Store
}

// NewWorkspace starts an empty workspace validating against schema.
func NewWorkspace(schema *Schema, opts ...WorkspaceOption) (*Workspace, error) {
	var cfg workspaceConfig
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	reg := registry.New()
	if err := reg.Replace(schema.files...); err != nil {
		return nil, fmt.Errorf("new workspace: %w", err)
	}
	return &Workspace{reg: reg, store: store.New(reg, cfg.opts...)}, nil
}

// Open registers a document.
func (ws *Workspace) Open(path, text string) { ws.store.Open(path, text) }

// Change replaces a document's text and schedules revalidation. An
// in-flight validation of the previous text is superseded.
func (ws *Workspace) Change(path, text string) { ws.store.Change(path, text) }

// Close drops a document and its symbols.
func (ws *Workspace) Close(path string) { ws.store.Close(path) }

// Diagnostics blocks until the document's current revision is
// validated, then returns its diagnostics.
func (ws *Workspace) Diagnostics(path string) []diag.Diagnostic {
	return ws.store.Diagnostics(path)
}

// Scan bulk-loads a workspace, parsing and validating documents in
// parallel. Symbols publish before any validation starts, so forward
// references between files resolve regardless of order.
func (ws *Workspace) Scan(ctx context.Context, texts map[string]string) error {
	return ws.store.Scan(ctx, texts)
}

// Completions lists the declared instance names of a type, sorted.
func (ws *Workspace) Completions(typeName string) []string {
	return ws.store.SymbolNames(typeName)
}

// Lookup finds the workspace declarations of one instance name.
func (ws *Workspace) Lookup(typeName, name string) []Symbol {
	found := ws.store.LookupSymbol(typeName, name)
	out := make([]Symbol, len(found))
	for i, sym := range found {
		out[i] = Symbol{Name: sym.Name, Type: sym.Type, Doc: sym.Doc, Path: sym.Path, Span: sym.Span}
	}
	return out
}

// ReplaceSchema swaps in a new schema generation and revalidates every
// open document. On error the previous schema keeps serving.
func (ws *Workspace) ReplaceSchema(schema *Schema) error {
	return ws.store.ReplaceSchema(schema.files...)
}
