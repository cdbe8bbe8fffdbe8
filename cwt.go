// Package cwt analyzes Clausewitz-style game script. It parses mod
// files into trees, validates them against CWT schema definitions and
// diffs two trees structurally. The Workspace type adds the
// incremental layer used by editor front ends.
package cwt

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/corvee/cwt/diag"
	"github.com/corvee/cwt/internal/ast"
	"github.com/corvee/cwt/internal/cwtschema"
	"github.com/corvee/cwt/internal/diff"
	"github.com/corvee/cwt/internal/parser"
	"github.com/corvee/cwt/internal/registry"
	"github.com/corvee/cwt/internal/validator"
)

// Schema is a loaded, immutable set of CWT definitions.
type Schema struct {
	files []*cwtschema.File
	snap  *registry.Snapshot
}

// LoadSchema parses schema sources keyed by name and builds the
// definition set. Any syntax error or non-terminating alias fails the
// whole load.
func LoadSchema(sources map[string]string) (*Schema, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	files := make([]*cwtschema.File, 0, len(names))
	for _, name := range names {
		file, err := cwtschema.Parse(name, sources[name])
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		files = append(files, file)
	}
	snap, err := registry.Build(files...)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return &Schema{files: files, snap: snap}, nil
}

// LoadSchemaFS loads every .cwt file under root.
func LoadSchemaFS(fsys fs.FS, root string) (*Schema, error) {
	sources := make(map[string]string)
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(p), ".cwt") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", p, err)
		}
		sources[p] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", root, err)
	}
	return LoadSchema(sources)
}

// TypeNames lists the schema's declared types, sorted.
func (s *Schema) TypeNames() []string {
	names := s.snap.TypeNames()
	sort.Strings(names)
	return names
}

// EnumValues returns the members of a declared enum, or nil.
func (s *Schema) EnumValues(name string) []string {
	return s.snap.EnumValues(name)
}

// LocalisationFunc answers whether a localisation key exists. The
// host application supplies it; the engine never reads localisation
// files itself.
type LocalisationFunc func(key string) bool

type locAdapter struct{ fn LocalisationFunc }

func (a locAdapter) HasKey(key string) bool { return a.fn(key) }

// ValidateOption configures a one-shot validation.
type ValidateOption interface {
	apply(*validateConfig)
}

type validateConfig struct {
	opts []validator.Option
}

type validateOptionFunc func(*validateConfig)

func (f validateOptionFunc) apply(c *validateConfig) { f(c) }

// WithLocalisation supplies the localisation oracle.
func WithLocalisation(fn LocalisationFunc) ValidateOption {
	return validateOptionFunc(func(c *validateConfig) {
		c.opts = append(c.opts, validator.WithLocalisation(locAdapter{fn}))
	})
}

// WithUnexpectedKeySeverity overrides the default warning for keys the
// schema has no rule for.
func WithUnexpectedKeySeverity(sev diag.Severity) ValidateOption {
	return validateOptionFunc(func(c *validateConfig) {
		c.opts = append(c.opts, validator.WithUnexpectedKeySeverity(sev))
	})
}

// WithIgnoreUnexpectedKeys suppresses diagnostics for keys the schema
// has no rule for.
func WithIgnoreUnexpectedKeys() ValidateOption {
	return validateOptionFunc(func(c *validateConfig) {
		c.opts = append(c.opts, validator.WithIgnoreUnexpectedKeys())
	})
}

// Validate parses src and checks it against the named schema type.
// Parse problems and rule violations both come back as diagnostics;
// the error is reserved for an unknown type name.
func Validate(schema *Schema, typeName, src string, opts ...ValidateOption) ([]diag.Diagnostic, error) {
	typ, ok := schema.snap.Type(typeName)
	if !ok {
		return nil, fmt.Errorf("validate: unknown type %q", typeName)
	}
	var cfg validateConfig
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	root, diags := parser.Parse(src)
	valDiags, err := validator.New(schema.snap, cfg.opts...).ValidateFile(typ, root)
	if err != nil {
		return nil, err
	}
	return append(diags, valDiags...), nil
}

// ChangeKind classifies a diff entry.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Changed
)

func (k ChangeKind) String() string { return diff.Kind(k).String() }

// Change is one entry of a structural changeset, with values rendered
// back to canonical one-line script.
type Change struct {
	Kind ChangeKind
	Path string
	Old  string
	New  string
}

// Diff structurally compares two script sources. Formatting and
// whitespace differences never count as changes.
func Diff(aSrc, bSrc string) ([]Change, error) {
	a, err := parseClean("left", aSrc)
	if err != nil {
		return nil, err
	}
	b, err := parseClean("right", bSrc)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, c := range diff.Blocks(a, b) {
		out := Change{Kind: ChangeKind(c.Kind), Path: c.Path}
		if c.Old != nil {
			out.Old = ast.Render(c.Old)
		}
		if c.New != nil {
			out.New = ast.Render(c.New)
		}
		changes = append(changes, out)
	}
	return changes, nil
}

func parseClean(side, src string) (*ast.Block, error) {
	root, diags := parser.Parse(src)
	if len(diags) > 0 {
		return nil, fmt.Errorf("parse %s input: %s", side, diags[0].Message)
	}
	return root, nil
}
