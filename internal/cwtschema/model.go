// Package cwtschema parses CWT schema text into a definition model.
// Schema files reuse the script front end: the shape declarations are
// ordinary blocks, and the metadata lives in `##` directive comments
// and `###` doc comments attached to entries.
package cwtschema

import (
	"github.com/corvee/cwt/diag"
	"github.com/corvee/cwt/internal/interner"
)

// Cardinality is the declared occurrence range for a key within its
// enclosing block. The zero value means "defaulted", which validation
// treats as exactly one.
type Cardinality struct {
	Min       int
	Max       int
	Unbounded bool // max is infinite
	Soft      bool // ~ prefix, violations downgrade to warnings
	Explicit  bool // declared via a directive rather than defaulted
}

// Default is the implicit range for rules with no cardinality directive.
func DefaultCardinality() Cardinality {
	return Cardinality{Min: 1, Max: 1}
}

// Contains reports whether count falls inside the range.
func (c Cardinality) Contains(count int) bool {
	if count < c.Min {
		return false
	}
	return c.Unbounded || count <= c.Max
}

// KeyKind classifies how a rule's key matches script keys.
type KeyKind int

const (
	KeyLiteral   KeyKind = iota // exact, case-insensitive
	KeyScalar                   // `scalar`, matches any key
	KeyEnum                     // `enum[name]`, matches any member
	KeyTypeRef                  // `<type>`, matches any declared instance
	KeyAliasName                // `alias_name[category]`, matches any alias in the category
)

// ValueKind classifies a rule's expected value. The set is closed and
// the validator dispatches over it exhaustively.
type ValueKind int

const (
	ValueLiteral ValueKind = iota // exact string
	ValueBool                     // yes / no
	ValueInt
	ValueFloat
	ValueScalar // any scalar
	ValueLocalisation
	ValueFilepath
	ValueEnum           // enum[name] membership
	ValueTypeRef        // <type> instance reference
	ValueScopeRef       // scope[kind] reference into the current scope
	ValueAliasMatchLeft // alias_match_left[category]
	ValueBlock          // nested rules
)

// NumRange bounds int[a..b] and float[a..b] value specs.
type NumRange struct {
	Lo, Hi float64
}

// ValueSpec describes one legal value shape for a rule.
type ValueSpec struct {
	Kind  ValueKind
	Ref   string    // literal text, enum name, type name, or alias category
	Range *NumRange // optional bound for int/float
	Block []Field   // rules for ValueBlock
}

// Options carries directive metadata attached to a rule or type.
type Options struct {
	ReplaceScope  map[string]string
	PushScope     string
	Severity      diag.Severity
	SeveritySet   bool
	TypeKeyFilter []string
	StartsWith    string
}

// Field is one schema rule: a key pattern, an expected value, a
// cardinality range, and directive options. KeySym is set for literal
// keys so matching against script entries is a symbol compare.
type Field struct {
	Key     string
	KeyKind KeyKind
	KeyRef  string // enum name, type name, or alias category for pattern keys
	KeySym  interner.Sym
	Value   ValueSpec
	Card    Cardinality
	Options Options
	Doc     string
	Span    diag.Span
}

// Predicate narrows a subtype by inspecting a block's own entries.
// An empty Value tests presence only.
type Predicate struct {
	Key    string
	Value  string
	Negate bool
}

// Subtype conditionally extends a type's rule set. Predicates and key
// filters all have to hold for the subtype to match.
type Subtype struct {
	Name          string
	Predicates    []Predicate
	TypeKeyFilter []string
	StartsWith    string
	Fields        []Field
}

// LocRequirement names a localisation key derived from the instance
// name ($ is replaced by the type key).
type LocRequirement struct {
	Name     string
	Pattern  string
	Required bool
	Subtype  string // restricts the requirement to one subtype
}

// TypeDecl is a `type[name]` declaration from a `types = { ... }`
// section: where instances live and how they are discriminated. The
// shape itself arrives separately as a top-level type-named block.
type TypeDecl struct {
	Name         string
	Path         string
	NameField    string
	Subtypes     []Subtype
	Localisation []LocRequirement
	Options      Options
	Span         diag.Span
}

// Shape is a top-level type-named block giving the rules for a type's
// instances. Subtype sections inside the shape carry conditional rules.
type Shape struct {
	TypeName string
	Fields   []Field
	Subtypes map[string][]Field
	Span     diag.Span
}

// Alias is a reusable rule fragment addressed as category:name.
type Alias struct {
	Category string
	Name     string
	Field    Field
}

// Enum is a closed set of string literals. Membership tests fold case.
type Enum struct {
	Name   string
	Values []string
	Span   diag.Span
}

// File is the parse result for one schema source file.
type File struct {
	Name    string
	Types   []TypeDecl
	Shapes  []Shape
	Enums   []Enum
	Aliases []Alias
}
