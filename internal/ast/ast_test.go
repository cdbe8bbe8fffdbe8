package ast

import "testing"

func scalar(text string) *Scalar { return &Scalar{Text: text} }

func TestOperatorString(t *testing.T) {
	cases := map[Operator]string{
		OpEquals:             "=",
		OpNotEqual:           "!=",
		OpGreaterThan:        ">",
		OpGreaterThanOrEqual: ">=",
		OpLessThan:           "<",
		OpLessThanOrEqual:    "<=",
		OpPlusEquals:         "+=",
		OpMinusEquals:        "-=",
		OpMultiplyEquals:     "*=",
		OpConditionalAssign:  "?=",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Fatalf("Operator(%d).String() = %q, want %q", int(op), got, want)
		}
	}
}

func TestEqualScalars(t *testing.T) {
	if !Equal(scalar("yes"), scalar("yes")) {
		t.Fatalf("identical scalars unequal")
	}
	if Equal(scalar("yes"), scalar("no")) {
		t.Fatalf("different scalars equal")
	}
	if Equal(scalar("x"), &Block{}) {
		t.Fatalf("scalar equal to block")
	}
}

func TestEqualBlocksIgnoresSpans(t *testing.T) {
	a := &Block{Entries: []Entry{
		{Key: Scalar{Text: "cost"}, Op: OpEquals, Value: scalar("100")},
		{Key: Scalar{Text: "upkeep"}, Op: OpLessThanOrEqual, Value: scalar("2")},
	}}
	b := &Block{Entries: []Entry{
		{Key: Scalar{Text: "COST"}, Op: OpEquals, Value: scalar("100")},
		{Key: Scalar{Text: "upkeep"}, Op: OpLessThanOrEqual, Value: scalar("2")},
	}}
	if !Equal(a, b) {
		t.Fatalf("blocks differing only in key case should be equal")
	}

	b.Entries[1].Op = OpEquals
	if Equal(a, b) {
		t.Fatalf("operator change not detected")
	}
}

func TestEqualItems(t *testing.T) {
	a := &Block{Items: []Value{scalar("energy"), scalar("minerals")}}
	b := &Block{Items: []Value{scalar("energy"), scalar("minerals")}}
	if !Equal(a, b) {
		t.Fatalf("identical item blocks unequal")
	}
	b.Items[1] = scalar("food")
	if Equal(a, b) {
		t.Fatalf("item change not detected")
	}
}

func TestFindAll(t *testing.T) {
	blk := &Block{Entries: []Entry{
		{Key: Scalar{Text: "hidden"}, Value: scalar("yes")},
		{Key: Scalar{Text: "cost"}, Value: scalar("5")},
		{Key: Scalar{Text: "Hidden"}, Value: scalar("no")},
	}}
	all := blk.FindAll("hidden")
	if len(all) != 2 {
		t.Fatalf("FindAll(hidden) = %d entries, want 2", len(all))
	}
	if _, ok := blk.Find("missing"); ok {
		t.Fatalf("Find(missing) unexpectedly succeeded")
	}
}

func TestRender(t *testing.T) {
	blk := &Block{
		Entries: []Entry{
			{Key: Scalar{Text: "cost"}, Op: OpEquals, Value: scalar("100")},
			{Key: Scalar{Text: "name"}, Op: OpEquals, Value: &Scalar{Text: "Mining Hub", Quoted: true}},
		},
		Items: []Value{scalar("alpha")},
	}
	got := Render(blk)
	want := `{ cost = 100 name = "Mining Hub" alpha }`
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}

	color := &Color{Model: "rgb", Components: []string{"255", "0", "0"}}
	if got := Render(color); got != "rgb { 255 0 0 }" {
		t.Fatalf("Render(color) = %q", got)
	}

	maths := &Maths{Expr: " 1 + 2 "}
	if got := Render(maths); got != "@[ 1 + 2 ]" {
		t.Fatalf("Render(maths) = %q", got)
	}
}
