// Package ast defines the tree produced by parsing Clausewitz script:
// blocks of key/operator/value entries mixed with bare array items.
// The variant set is closed; consumers dispatch with type switches.
package ast

import (
	"strings"

	"github.com/corvee/cwt/diag"
	"github.com/corvee/cwt/internal/interner"
)

// Operator qualifies the relation between a key and its value.
type Operator int

const (
	OpEquals Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpPlusEquals
	OpMinusEquals
	OpMultiplyEquals
	OpConditionalAssign
)

// String returns the operator's source spelling.
func (o Operator) String() string {
	switch o {
	case OpEquals:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpPlusEquals:
		return "+="
	case OpMinusEquals:
		return "-="
	case OpMultiplyEquals:
		return "*="
	case OpConditionalAssign:
		return "?="
	default:
		return "="
	}
}

// Value is a parsed script value: *Block, *Scalar, *Color, or *Maths.
// The set is closed.
type Value interface {
	Span() diag.Span
	value()
}

// Scalar is any non-block value: identifiers, quoted strings, numbers,
// dates, yes/no, and @define references. Semantic typing is the
// validator's job, not the parser's.
type Scalar struct {
	Text   string
	Quoted bool
	Sp     diag.Span
}

func (s *Scalar) Span() diag.Span { return s.Sp }
func (s *Scalar) value()          {}

// Color is an rgb/hsv color literal like `rgb { 1 2 3 }`.
type Color struct {
	Model      string // "rgb" or "hsv"
	Components []string
	Sp         diag.Span
}

func (c *Color) Span() diag.Span { return c.Sp }
func (c *Color) value()          {}

// Maths is an inline maths expression `@[ ... ]`, kept as raw text.
type Maths struct {
	Expr string
	Sp   diag.Span
}

func (m *Maths) Span() diag.Span { return m.Sp }
func (m *Maths) value()          {}

// Comment is a preserved comment with its marker depth: 1 for `#`,
// 2 for `##` directives, 3 for `###` doc comments.
type Comment struct {
	Marker int
	Text   string // text after the marker, without leading space
	Sp     diag.Span
}

// Entry is one `key op value` assignment inside a block.
// Leading comments are preserved because `##` directives carry schema
// metadata the CWT reader must see. KeySym is the interned key, set by
// the parser; key equality across the workspace is a symbol compare.
type Entry struct {
	Key      Scalar
	KeySym   interner.Sym
	Op       Operator
	Value    Value
	Leading  []Comment
	Trailing *Comment
}

// Block is an ordered sequence of entries and bare items. A block whose
// entries are empty and items are non-empty is the script form of an array.
// Keys may repeat; order is preserved.
type Block struct {
	Entries []Entry
	Items   []Value
	Sp      diag.Span
}

func (b *Block) Span() diag.Span { return b.Sp }
func (b *Block) value()          {}

// Find returns the first entry whose key equals name, case-insensitively.
func (b *Block) Find(name string) (*Entry, bool) {
	sym := interner.Intern(name)
	for i := range b.Entries {
		e := &b.Entries[i]
		if keyIs(e, name, sym) {
			return e, true
		}
	}
	return nil, false
}

// FindAll returns all entries whose key equals name, case-insensitively,
// in source order.
func (b *Block) FindAll(name string) []*Entry {
	sym := interner.Intern(name)
	var out []*Entry
	for i := range b.Entries {
		e := &b.Entries[i]
		if keyIs(e, name, sym) {
			out = append(out, e)
		}
	}
	return out
}

// keyIs compares by symbol; entries built without one fold the text.
func keyIs(e *Entry, name string, sym interner.Sym) bool {
	if e.KeySym != interner.None {
		return e.KeySym == sym
	}
	return strings.EqualFold(e.Key.Text, name)
}

// Equal reports structural equality of two values, ignoring spans,
// comments, and source formatting.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case *Scalar:
		bv, ok := b.(*Scalar)
		return ok && av.Text == bv.Text
	case *Color:
		bv, ok := b.(*Color)
		if !ok || av.Model != bv.Model || len(av.Components) != len(bv.Components) {
			return false
		}
		for i := range av.Components {
			if av.Components[i] != bv.Components[i] {
				return false
			}
		}
		return true
	case *Maths:
		bv, ok := b.(*Maths)
		return ok && av.Expr == bv.Expr
	case *Block:
		bv, ok := b.(*Block)
		if !ok {
			return false
		}
		return blockEqual(av, bv)
	default:
		return false
	}
}

func blockEqual(a, b *Block) bool {
	if len(a.Entries) != len(b.Entries) || len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Entries {
		ae, be := &a.Entries[i], &b.Entries[i]
		if !strings.EqualFold(ae.Key.Text, be.Key.Text) || ae.Op != be.Op || !Equal(ae.Value, be.Value) {
			return false
		}
	}
	for i := range a.Items {
		if !Equal(a.Items[i], b.Items[i]) {
			return false
		}
	}
	return true
}
