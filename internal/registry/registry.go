// Package registry indexes parsed schema definitions by name and serves
// them to validation workers as immutable snapshots. A reload installs
// a whole new snapshot or leaves the previous one in place, never a
// partial mix.
package registry

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/corvee/cwt/internal/cwtschema"
)

// Type is a fully merged definition: the declaration from a types
// section joined with its top-level shape block.
type Type struct {
	Name         string
	Path         string
	NameField    string
	Subtypes     []cwtschema.Subtype
	Localisation []cwtschema.LocRequirement
	Options      cwtschema.Options
	Fields       []cwtschema.Field
}

// Snapshot is an immutable generation of the schema. Readers hold one
// snapshot for the duration of a validation pass.
type Snapshot struct {
	types   map[string]*Type
	enums   map[string]*enumSet
	aliases map[string][]cwtschema.Alias

	// expansions caches, per category, the rule set an unbound
	// alias_match_left block expands to, so validation never rebuilds
	// it per occurrence.
	expansions map[string][]cwtschema.Field
}

type enumSet struct {
	def     *cwtschema.Enum
	members map[string]bool
}

// Build merges parsed schema files into a snapshot. Alias categories
// whose every fragment forwards into another alias without a terminal
// rule are rejected here rather than recursing at validation time.
func Build(files ...*cwtschema.File) (*Snapshot, error) {
	snap := &Snapshot{
		types:   make(map[string]*Type),
		enums:   make(map[string]*enumSet),
		aliases: make(map[string][]cwtschema.Alias),
	}

	for _, file := range files {
		for i := range file.Types {
			decl := &file.Types[i]
			folded := strings.ToLower(decl.Name)
			if _, ok := snap.types[folded]; ok {
				return nil, fmt.Errorf("build schema: type %q declared twice", decl.Name)
			}
			snap.types[folded] = &Type{
				Name:         decl.Name,
				Path:         decl.Path,
				NameField:    decl.NameField,
				Subtypes:     append([]cwtschema.Subtype(nil), decl.Subtypes...),
				Localisation: decl.Localisation,
				Options:      decl.Options,
			}
		}
		for i := range file.Enums {
			enum := &file.Enums[i]
			members := make(map[string]bool, len(enum.Values))
			for _, v := range enum.Values {
				members[strings.ToLower(v)] = true
			}
			snap.enums[strings.ToLower(enum.Name)] = &enumSet{def: enum, members: members}
		}
		for _, alias := range file.Aliases {
			folded := strings.ToLower(alias.Category)
			snap.aliases[folded] = append(snap.aliases[folded], alias)
		}
	}

	// Shapes may live in a different file than their declaration, so
	// they attach after everything is collected.
	for _, file := range files {
		for i := range file.Shapes {
			shape := &file.Shapes[i]
			typ, ok := snap.types[strings.ToLower(shape.TypeName)]
			if !ok {
				return nil, fmt.Errorf("build schema: shape %q has no type declaration", shape.TypeName)
			}
			typ.Fields = append(typ.Fields, shape.Fields...)
			for subName, fields := range shape.Subtypes {
				sub := typ.subtype(subName)
				if sub == nil {
					typ.Subtypes = append(typ.Subtypes, cwtschema.Subtype{Name: subName})
					sub = &typ.Subtypes[len(typ.Subtypes)-1]
				}
				sub.Fields = append(sub.Fields, fields...)
			}
		}
	}

	if err := checkAliasTermination(snap.aliases); err != nil {
		return nil, err
	}

	snap.expansions = make(map[string][]cwtschema.Field, len(snap.aliases))
	for category := range snap.aliases {
		snap.expansions[category] = []cwtschema.Field{{
			Key:     "alias_name[" + category + "]",
			KeyKind: cwtschema.KeyAliasName,
			KeyRef:  category,
			Value:   cwtschema.ValueSpec{Kind: cwtschema.ValueAliasMatchLeft, Ref: category},
			Card:    cwtschema.Cardinality{Min: 0, Unbounded: true, Explicit: true},
		}}
	}
	return snap, nil
}

func (t *Type) subtype(name string) *cwtschema.Subtype {
	for i := range t.Subtypes {
		if strings.EqualFold(t.Subtypes[i].Name, name) {
			return &t.Subtypes[i]
		}
	}
	return nil
}

// checkAliasTermination verifies every alias category can bottom out in
// a rule that is not itself a bare alias forward. Nesting through a
// block is terminal: block depth is bounded by the script AST, only a
// scalar alias_match_left fragment re-expands unconditionally.
func checkAliasTermination(aliases map[string][]cwtschema.Alias) error {
	terminal := make(map[string]bool, len(aliases))

	for changed := true; changed; {
		changed = false
		for category, list := range aliases {
			if terminal[category] {
				continue
			}
			for _, alias := range list {
				v := alias.Field.Value
				if v.Kind != cwtschema.ValueAliasMatchLeft || terminal[strings.ToLower(v.Ref)] {
					terminal[category] = true
					changed = true
					break
				}
			}
		}
	}

	for category := range aliases {
		if !terminal[category] {
			return fmt.Errorf("build schema: alias category %q never terminates", category)
		}
	}
	return nil
}

// Type looks up a merged type definition by name, folding case.
func (s *Snapshot) Type(name string) (*Type, bool) {
	t, ok := s.types[strings.ToLower(name)]
	return t, ok
}

// TypeNames returns the declared type names in no particular order.
func (s *Snapshot) TypeNames() []string {
	names := make([]string, 0, len(s.types))
	for _, t := range s.types {
		names = append(names, t.Name)
	}
	return names
}

// EnumHas reports whether value is a member of the named enum. The
// second result is false when the enum itself is unknown.
func (s *Snapshot) EnumHas(name, value string) (member, known bool) {
	set, ok := s.enums[strings.ToLower(name)]
	if !ok {
		return false, false
	}
	return set.members[strings.ToLower(value)], true
}

// EnumValues returns the declared members of an enum.
func (s *Snapshot) EnumValues(name string) []string {
	set, ok := s.enums[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return set.def.Values
}

// Aliases returns the fragments registered under a category.
func (s *Snapshot) Aliases(category string) []cwtschema.Alias {
	return s.aliases[strings.ToLower(category)]
}

// MatchLeftExpansion returns the cached expansion of an unbound
// alias_match_left over a block, or nil for an unknown category.
func (s *Snapshot) MatchLeftExpansion(category string) []cwtschema.Field {
	return s.expansions[strings.ToLower(category)]
}

// Registry hands out the current snapshot. Replacement is atomic and
// wholesale; it starts empty.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

func New() *Registry {
	r := &Registry{}
	empty, _ := Build()
	r.current.Store(empty)
	return r
}

// Snapshot returns the current generation.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Replace builds a snapshot from files and installs it. On error the
// previous snapshot stays in place.
func (r *Registry) Replace(files ...*cwtschema.File) error {
	snap, err := Build(files...)
	if err != nil {
		return err
	}
	r.current.Store(snap)
	return nil
}
