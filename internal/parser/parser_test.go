package parser

import (
	"testing"

	"github.com/corvee/cwt/internal/ast"
)

func TestParseSimpleEntry(t *testing.T) {
	root, diags := Parse(`cost = 100`)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	if len(root.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(root.Entries))
	}
	e := root.Entries[0]
	if e.Key.Text != "cost" || e.Op != ast.OpEquals {
		t.Fatalf("unexpected entry %q %v", e.Key.Text, e.Op)
	}
	s, ok := e.Value.(*ast.Scalar)
	if !ok || s.Text != "100" {
		t.Fatalf("expected scalar 100, got %#v", e.Value)
	}
}

func TestParseNestedBlocks(t *testing.T) {
	src := `
building = {
	cost = 100
	modifier = {
		pop_growth = 0.05
	}
}
`
	root, diags := Parse(src)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	building, ok := root.Entries[0].Value.(*ast.Block)
	if !ok {
		t.Fatalf("expected block value, got %#v", root.Entries[0].Value)
	}
	if len(building.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(building.Entries))
	}
	modifier, ok := building.Entries[1].Value.(*ast.Block)
	if !ok {
		t.Fatalf("expected nested block, got %#v", building.Entries[1].Value)
	}
	if modifier.Entries[0].Key.Text != "pop_growth" {
		t.Fatalf("unexpected nested key %q", modifier.Entries[0].Key.Text)
	}
}

func TestParseOperators(t *testing.T) {
	src := `
a = 1
b != 2
c > 3
d >= 4
e < 5
f <= 6
g += 7
h -= 8
i *= 9
j ?= 10
k == 11
`
	root, diags := Parse(src)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	want := []ast.Operator{
		ast.OpEquals,
		ast.OpNotEqual,
		ast.OpGreaterThan,
		ast.OpGreaterThanOrEqual,
		ast.OpLessThan,
		ast.OpLessThanOrEqual,
		ast.OpPlusEquals,
		ast.OpMinusEquals,
		ast.OpMultiplyEquals,
		ast.OpConditionalAssign,
		ast.OpEquals,
	}
	if len(root.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(root.Entries))
	}
	for i, op := range want {
		if root.Entries[i].Op != op {
			t.Errorf("entry %d: expected %v, got %v", i, op, root.Entries[i].Op)
		}
	}
}

func TestParseArrayItems(t *testing.T) {
	root, diags := Parse(`tags = { alpha beta "gamma delta" 42 }`)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	blk := root.Entries[0].Value.(*ast.Block)
	if len(blk.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(blk.Items))
	}
	third := blk.Items[2].(*ast.Scalar)
	if third.Text != "gamma delta" || !third.Quoted {
		t.Fatalf("unexpected third item %#v", third)
	}
}

func TestParseColor(t *testing.T) {
	root, diags := Parse(`color = rgb { 255 128 0 }`)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	c, ok := root.Entries[0].Value.(*ast.Color)
	if !ok {
		t.Fatalf("expected color, got %#v", root.Entries[0].Value)
	}
	if c.Model != "rgb" || len(c.Components) != 3 || c.Components[1] != "128" {
		t.Fatalf("unexpected color %#v", c)
	}
}

func TestParseColorAsItem(t *testing.T) {
	root, diags := Parse(`colors = { rgb { 1 2 3 } hsv { 0.5 0.5 0.5 } }`)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	blk := root.Entries[0].Value.(*ast.Block)
	if len(blk.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(blk.Items))
	}
	if blk.Items[0].(*ast.Color).Model != "rgb" || blk.Items[1].(*ast.Color).Model != "hsv" {
		t.Fatalf("unexpected items %#v", blk.Items)
	}
}

func TestParseMaths(t *testing.T) {
	root, diags := Parse(`value = @[ base * 2 ]`)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	m, ok := root.Entries[0].Value.(*ast.Maths)
	if !ok {
		t.Fatalf("expected maths, got %#v", root.Entries[0].Value)
	}
	if m.Expr != "base * 2" {
		t.Fatalf("unexpected expression %q", m.Expr)
	}
}

func TestParseDefineReference(t *testing.T) {
	root, diags := Parse(`cost = @base_cost`)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	s := root.Entries[0].Value.(*ast.Scalar)
	if s.Text != "@base_cost" {
		t.Fatalf("unexpected scalar %q", s.Text)
	}
}

func TestParseComments(t *testing.T) {
	src := `
# above the entry
cost = 100 # trailing
next = 200
`
	root, diags := Parse(src)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	e := root.Entries[0]
	if len(e.Leading) != 1 || e.Leading[0].Text != "above the entry" {
		t.Fatalf("unexpected leading comments %#v", e.Leading)
	}
	if e.Trailing == nil || e.Trailing.Text != "trailing" {
		t.Fatalf("unexpected trailing comment %#v", e.Trailing)
	}
	if len(root.Entries[1].Leading) != 0 {
		t.Fatalf("trailing comment leaked onto next entry: %#v", root.Entries[1].Leading)
	}
}

func TestParseDirectiveCommentMarkers(t *testing.T) {
	src := `
## cardinality = 0..1
### Documentation line.
hidden = yes
`
	root, diags := Parse(src)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	e := root.Entries[0]
	if len(e.Leading) != 2 {
		t.Fatalf("expected 2 leading comments, got %d", len(e.Leading))
	}
	if e.Leading[0].Marker != 2 || e.Leading[0].Text != "cardinality = 0..1" {
		t.Fatalf("unexpected directive comment %#v", e.Leading[0])
	}
	if e.Leading[1].Marker != 3 {
		t.Fatalf("unexpected doc comment marker %d", e.Leading[1].Marker)
	}
}

func TestParseRepeatedKeys(t *testing.T) {
	root, diags := Parse("tag = a\ntag = b\ntag = c\n")
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	if len(root.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(root.Entries))
	}
	matches := root.FindAll("tag")
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
}

func TestParseRecoversFromMissingValue(t *testing.T) {
	src := `
outer = {
	broken =
}
ok = 1
`
	root, diags := Parse(src)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", diags)
	}
	if len(root.Entries) != 2 || root.Entries[1].Key.Text != "ok" {
		t.Fatalf("expected recovery onto ok entry, got %#v", root.Entries)
	}
	outer := root.Entries[0].Value.(*ast.Block)
	if len(outer.Entries) != 0 {
		t.Fatalf("broken entry should be dropped, got %#v", outer.Entries)
	}
}

func TestParseRecoversFromUnexpectedClosingBrace(t *testing.T) {
	src := `
}
ok = 1
`
	root, diags := Parse(src)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", diags)
	}
	if len(root.Entries) != 1 || root.Entries[0].Key.Text != "ok" {
		t.Fatalf("expected recovery onto ok entry, got %#v", root.Entries)
	}
}

func TestParseMissingClosingBrace(t *testing.T) {
	root, diags := Parse(`outer = { inner = 1`)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", diags)
	}
	blk, ok := root.Entries[0].Value.(*ast.Block)
	if !ok || len(blk.Entries) != 1 {
		t.Fatalf("expected partial block with inner entry, got %#v", root.Entries[0].Value)
	}
}

func TestParseOneDiagnosticPerBadRegion(t *testing.T) {
	src := `
garbage ! ! !
ok = 1
more ! !
fine = 2
`
	root, diags := Parse(src)
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d: %v", len(diags), diags)
	}
	if len(root.Entries) != 2 {
		t.Fatalf("expected 2 surviving entries, got %d", len(root.Entries))
	}
	if root.Entries[0].Key.Text != "ok" || root.Entries[1].Key.Text != "fine" {
		t.Fatalf("unexpected surviving entries %#v", root.Entries)
	}
}

func TestParseSpansNested(t *testing.T) {
	src := `outer = {
	inner = 1
}`
	root, diags := Parse(src)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	outer := root.Entries[0].Value.(*ast.Block)
	inner := outer.Entries[0]
	if !outer.Span().Contains(inner.Key.Sp) {
		t.Fatalf("outer span %v should contain inner key span %v", outer.Span(), inner.Key.Sp)
	}
	if !root.Span().Contains(outer.Span()) {
		t.Fatalf("root span %v should contain outer span %v", root.Span(), outer.Span())
	}
	if outer.Span().End.Line != 3 {
		t.Fatalf("expected block to end on line 3, got %d", outer.Span().End.Line)
	}
}

func TestParseEmptyInput(t *testing.T) {
	root, diags := Parse("")
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	if len(root.Entries) != 0 || len(root.Items) != 0 {
		t.Fatalf("expected empty root, got %#v", root)
	}
}
