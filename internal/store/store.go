// Package store is the incremental analysis layer. It caches one
// parsed document per open file, revalidates on change, and keeps the
// workspace symbol index current. Validation runs off the caller's
// goroutine with at most one pass in flight per document; a stale pass
// is cancelled and its result discarded rather than racing an older
// diagnostic set into view.
package store

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/corvee/cwt/diag"
	"github.com/corvee/cwt/internal/ast"
	"github.com/corvee/cwt/internal/cwtschema"
	"github.com/corvee/cwt/internal/parser"
	"github.com/corvee/cwt/internal/registry"
	"github.com/corvee/cwt/internal/symbols"
	"github.com/corvee/cwt/internal/validator"
)

// Option configures a Store.
type Option interface {
	apply(*Store)
}

type optionFunc func(*Store)

func (f optionFunc) apply(s *Store) { f(s) }

// WithLocalisation supplies the localisation oracle passed to every
// validation pass.
func WithLocalisation(o validator.LocalisationOracle) Option {
	return optionFunc(func(s *Store) { s.loc = o })
}

// WithUnexpectedKeySeverity overrides the default warning for keys the
// schema has no rule for.
func WithUnexpectedKeySeverity(sev diag.Severity) Option {
	return optionFunc(func(s *Store) {
		s.valOpts = append(s.valOpts, validator.WithUnexpectedKeySeverity(sev))
	})
}

// WithIgnoreUnexpectedKeys suppresses diagnostics for keys the schema
// has no rule for.
func WithIgnoreUnexpectedKeys() Option {
	return optionFunc(func(s *Store) {
		s.valOpts = append(s.valOpts, validator.WithIgnoreUnexpectedKeys())
	})
}

// Store is safe for concurrent use.
type Store struct {
	reg     *registry.Registry
	idx     *symbols.Index
	loc     validator.LocalisationOracle
	valOpts []validator.Option

	mu   sync.Mutex
	docs map[string]*document
}

type document struct {
	path string

	mu        sync.Mutex
	cond      *sync.Cond
	text      string
	revision  uint64
	root      *ast.Block
	parseOnly []diag.Diagnostic
	diags     []diag.Diagnostic
	published uint64
	running   bool
	closed    bool
}

func New(reg *registry.Registry, opts ...Option) *Store {
	s := &Store{
		reg:  reg,
		idx:  symbols.NewIndex(),
		docs: make(map[string]*document),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Open registers a document and starts its first validation.
func (s *Store) Open(path, text string) {
	d := s.update(path, text)
	s.kick(d)
}

// Change replaces a document's text. The revision bump cancels any
// in-flight validation of the previous text.
func (s *Store) Change(path, text string) {
	d := s.update(path, text)
	s.kick(d)
}

// Close drops a document and its symbols.
func (s *Store) Close(path string) {
	s.mu.Lock()
	d, ok := s.docs[path]
	delete(s.docs, path)
	s.mu.Unlock()
	if !ok {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	s.idx.RemoveDocument(path)
}

// Diagnostics blocks until the document's current revision has a
// completed validation and returns its diagnostics. The result always
// reflects the most recently completed pass, never a stale one.
func (s *Store) Diagnostics(path string) []diag.Diagnostic {
	s.mu.Lock()
	d, ok := s.docs[path]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.published != d.revision && !d.closed {
		d.cond.Wait()
	}
	return append([]diag.Diagnostic(nil), d.diags...)
}

// Document returns the cached text, AST and revision for a path.
func (s *Store) Document(path string) (text string, root *ast.Block, revision uint64, ok bool) {
	s.mu.Lock()
	d, found := s.docs[path]
	s.mu.Unlock()
	if !found {
		return "", nil, 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text, d.root, d.revision, true
}

// SymbolNames lists declared instance names of a type for completion.
func (s *Store) SymbolNames(typeName string) []string {
	return s.idx.Names(typeName)
}

// LookupSymbol finds the declarations of one instance name.
func (s *Store) LookupSymbol(typeName, name string) []symbols.Symbol {
	return s.idx.Lookup(typeName, name)
}

// ReplaceSchema installs a new schema generation, rebuilds the symbol
// index wholesale and revalidates every open document. On error the
// old snapshot and all published diagnostics stay as they were.
func (s *Store) ReplaceSchema(files ...*cwtschema.File) error {
	if err := s.reg.Replace(files...); err != nil {
		return err
	}

	s.mu.Lock()
	docs := make([]*document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.Unlock()

	s.idx.Clear()
	snap := s.reg.Snapshot()
	for _, d := range docs {
		d.mu.Lock()
		d.revision++
		if typ := typeForPath(snap, d.path); typ != nil {
			s.idx.ReplaceDocument(d.path, symbols.Extract(d.path, d.root, typ))
		}
		d.cond.Broadcast()
		d.mu.Unlock()
	}
	for _, d := range docs {
		s.kick(d)
	}
	return nil
}

// Scan bulk-loads a workspace: all documents parse and publish their
// symbols first, then validate in parallel, so cross-file references
// resolve regardless of load order.
func (s *Store) Scan(ctx context.Context, texts map[string]string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for path, text := range texts {
		path, text := path, text
		g.Go(func() error {
			s.update(path, text)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, ctx = errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for path := range texts {
		path := path
		g.Go(func() error {
			s.mu.Lock()
			d := s.docs[path]
			s.mu.Unlock()
			if d != nil {
				s.kick(d)
				s.Diagnostics(path)
			}
			return ctx.Err()
		})
	}
	return g.Wait()
}

// update parses the new text, bumps the revision and republishes the
// document's symbols. Symbols go out at parse time, decoupled from
// validation, so no document's references ever wait on another
// document's validation outcome.
func (s *Store) update(path, text string) *document {
	s.mu.Lock()
	d, ok := s.docs[path]
	if !ok {
		d = &document{path: path}
		d.cond = sync.NewCond(&d.mu)
		s.docs[path] = d
	}
	s.mu.Unlock()

	root, parseDiags := parser.Parse(text)
	snap := s.reg.Snapshot()

	// The index update happens under the document lock so symbol
	// publication lands in revision order; a slower older update can
	// never overwrite a newer document's symbols.
	d.mu.Lock()
	d.text = text
	d.root = root
	d.parseOnly = parseDiags
	d.revision++
	if typ := typeForPath(snap, path); typ != nil {
		s.idx.ReplaceDocument(path, symbols.Extract(path, root, typ))
	} else {
		s.idx.ReplaceDocument(path, nil)
	}
	d.cond.Broadcast()
	d.mu.Unlock()
	return d
}

// kick ensures a validation worker is running for the document.
func (s *Store) kick(d *document) {
	d.mu.Lock()
	start := !d.running && !d.closed
	if start {
		d.running = true
	}
	d.mu.Unlock()
	if start {
		go s.run(d)
	}
}

// run is the per-document validation loop. It repeats until the
// published diagnostics match the current revision; a pass whose
// revision went stale mid-walk aborts at the next block boundary and
// the loop starts over on the new text.
func (s *Store) run(d *document) {
	for {
		d.mu.Lock()
		if d.closed || d.published == d.revision {
			d.running = false
			d.cond.Broadcast()
			d.mu.Unlock()
			return
		}
		rev := d.revision
		root := d.root
		parseDiags := d.parseOnly
		d.mu.Unlock()

		snap := s.reg.Snapshot()
		var valDiags []diag.Diagnostic
		var err error
		if typ := typeForPath(snap, d.path); typ != nil {
			opts := []validator.Option{
				validator.WithSymbols(s.idx),
				validator.WithCancelled(func() bool { return d.currentRevision() != rev }),
			}
			opts = append(opts, s.valOpts...)
			if s.loc != nil {
				opts = append(opts, validator.WithLocalisation(s.loc))
			}
			valDiags, err = validator.New(snap, opts...).ValidateFile(typ, root)
		}

		d.mu.Lock()
		if err == nil && d.revision == rev && !d.closed {
			d.diags = append(append([]diag.Diagnostic(nil), parseDiags...), valDiags...)
			d.published = rev
			d.cond.Broadcast()
		}
		d.mu.Unlock()
	}
}

func (d *document) currentRevision() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

// typeForPath resolves which schema type owns a document by its
// declared path pattern; the longest matching pattern wins.
func typeForPath(snap *registry.Snapshot, docPath string) *registry.Type {
	slashed := strings.ToLower(strings.ReplaceAll(docPath, "\\", "/"))
	var best *registry.Type
	for _, name := range snap.TypeNames() {
		typ, _ := snap.Type(name)
		if typ.Path == "" {
			continue
		}
		pattern := strings.ToLower(strings.Trim(typ.Path, "/"))
		if strings.Contains(slashed, pattern) {
			if best == nil || len(pattern) > len(strings.ToLower(best.Path)) {
				best = typ
			}
		}
	}
	return best
}
