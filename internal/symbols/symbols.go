// Package symbols maintains the workspace-wide declaration index.
// Extraction is decoupled from validation: a document's symbols are
// published as soon as it parses, so cross-file reference checks never
// wait on another document's validation.
package symbols

import (
	"sort"
	"strings"
	"sync"

	"github.com/corvee/cwt/diag"
	"github.com/corvee/cwt/internal/ast"
	"github.com/corvee/cwt/internal/registry"
)

// Symbol is one declared instance of a schema type.
type Symbol struct {
	Name string
	Type string
	Doc  string
	Path string
	Span diag.Span
}

// Index is safe for concurrent use. Updates replace one document's
// symbols at a time and never block readers of other documents.
type Index struct {
	mu     sync.RWMutex
	byType map[string]map[string][]Symbol
	byDoc  map[string][]Symbol
}

func NewIndex() *Index {
	return &Index{
		byType: make(map[string]map[string][]Symbol),
		byDoc:  make(map[string][]Symbol),
	}
}

// ReplaceDocument swaps the symbols owned by path in one step.
func (x *Index) ReplaceDocument(path string, syms []Symbol) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(path)
	for _, sym := range syms {
		names := x.byType[strings.ToLower(sym.Type)]
		if names == nil {
			names = make(map[string][]Symbol)
			x.byType[strings.ToLower(sym.Type)] = names
		}
		folded := strings.ToLower(sym.Name)
		names[folded] = append(names[folded], sym)
	}
	x.byDoc[path] = syms
}

// RemoveDocument drops everything owned by path.
func (x *Index) RemoveDocument(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(path)
	delete(x.byDoc, path)
}

func (x *Index) removeLocked(path string) {
	for _, sym := range x.byDoc[path] {
		names := x.byType[strings.ToLower(sym.Type)]
		folded := strings.ToLower(sym.Name)
		kept := names[folded][:0]
		for _, s := range names[folded] {
			if s.Path != path {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(names, folded)
		} else {
			names[folded] = kept
		}
	}
}

// Has reports whether any document declares name as an instance of the
// given type. Both arguments fold case.
func (x *Index) Has(typeName, name string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byType[strings.ToLower(typeName)][strings.ToLower(name)]) > 0
}

// Lookup returns every declaration of name under the given type.
func (x *Index) Lookup(typeName, name string) []Symbol {
	x.mu.RLock()
	defer x.mu.RUnlock()
	found := x.byType[strings.ToLower(typeName)][strings.ToLower(name)]
	return append([]Symbol(nil), found...)
}

// Names lists the declared instance names of a type, sorted, for
// completion candidates.
func (x *Index) Names(typeName string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	names := x.byType[strings.ToLower(typeName)]
	out := make([]string, 0, len(names))
	for _, syms := range names {
		if len(syms) > 0 {
			out = append(out, syms[0].Name)
		}
	}
	sort.Strings(out)
	return out
}

// Clear empties the index, used on schema reload before a full rescan.
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.byType = make(map[string]map[string][]Symbol)
	x.byDoc = make(map[string][]Symbol)
}

// Extract pulls the declared instances of typ out of a parsed file.
// Each top-level block entry is one instance; the instance name is the
// entry key unless the type declares a name_field.
func Extract(path string, root *ast.Block, typ *registry.Type) []Symbol {
	var syms []Symbol
	for i := range root.Entries {
		entry := &root.Entries[i]
		blk, ok := entry.Value.(*ast.Block)
		if !ok {
			continue
		}
		name := entry.Key.Text
		if typ.NameField != "" {
			if named, ok := blk.Find(typ.NameField); ok {
				if s, ok := named.Value.(*ast.Scalar); ok {
					name = s.Text
				}
			}
		}
		sym := Symbol{Name: name, Type: typ.Name, Path: path, Span: entry.Key.Sp}
		if c := leadingDoc(entry); c != "" {
			sym.Doc = c
		}
		syms = append(syms, sym)
	}
	return syms
}

func leadingDoc(entry *ast.Entry) string {
	var docs []string
	for _, c := range entry.Leading {
		if c.Marker == 3 {
			docs = append(docs, c.Text)
		}
	}
	return strings.Join(docs, "\n")
}
