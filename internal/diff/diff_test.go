package diff

import (
	"testing"

	"github.com/corvee/cwt/internal/ast"
	"github.com/corvee/cwt/internal/parser"
)

func mustParse(t *testing.T, src string) *ast.Block {
	t.Helper()
	root, diags := parser.Parse(src)
	if len(diags) != 0 {
		t.Fatalf("parse: %v", diags)
	}
	return root
}

func TestDiffEqualTreesWhitespaceInsensitive(t *testing.T) {
	a := mustParse(t, "mine = {\n\tcost = 100\n\ttags = { a b }\n}\n")
	b := mustParse(t, "  mine={ cost=100   tags = {  a   b } }  ")
	if changes := Blocks(a, b); len(changes) != 0 {
		t.Fatalf("expected empty changeset, got %v", changes)
	}
}

func TestDiffChangedScalar(t *testing.T) {
	a := mustParse(t, `mine = { cost = 100 }`)
	b := mustParse(t, `mine = { cost = 200 }`)
	changes := Blocks(a, b)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %v", changes)
	}
	c := changes[0]
	if c.Kind != Changed || c.Path != "mine/cost" {
		t.Fatalf("unexpected change %#v", c)
	}
	if ast.Render(c.Old) != "100" || ast.Render(c.New) != "200" {
		t.Fatalf("unexpected values %s -> %s", ast.Render(c.Old), ast.Render(c.New))
	}
}

func TestDiffAddedAndRemoved(t *testing.T) {
	a := mustParse(t, `mine = { cost = 100 }`)
	b := mustParse(t, `mine = { upkeep = 5 }`)
	changes := Blocks(a, b)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %v", changes)
	}
	if changes[0].Kind != Removed || changes[0].Path != "mine/cost" {
		t.Fatalf("unexpected first change %#v", changes[0])
	}
	if changes[1].Kind != Added || changes[1].Path != "mine/upkeep" {
		t.Fatalf("unexpected second change %#v", changes[1])
	}
}

func TestDiffChangedOperator(t *testing.T) {
	a := mustParse(t, `mine = { cost > 5 }`)
	b := mustParse(t, `mine = { cost >= 5 }`)
	if ast.Equal(a, b) {
		t.Fatal("trees with different operators must not be structurally equal")
	}
	changes := Blocks(a, b)
	if len(changes) != 1 {
		t.Fatalf("operator change must produce a change, got %v", changes)
	}
	c := changes[0]
	if c.Kind != Changed || c.Path != "mine/cost" {
		t.Fatalf("unexpected change %#v", c)
	}
}

func TestDiffReorderedUniqueKeysIsEmpty(t *testing.T) {
	a := mustParse(t, `mine = { cost = 100 upkeep = 5 }`)
	b := mustParse(t, `mine = { upkeep = 5 cost = 100 }`)
	if changes := Blocks(a, b); len(changes) != 0 {
		t.Fatalf("reordering unique keys must be no change, got %v", changes)
	}
}

func TestDiffRepeatedKeysPairByOccurrence(t *testing.T) {
	a := mustParse(t, "tag = alpha\ntag = beta\n")
	b := mustParse(t, "tag = beta\ntag = alpha\n")
	changes := Blocks(a, b)
	if len(changes) != 2 {
		t.Fatalf("reordered homonymous keys pair positionally, got %v", changes)
	}
	for _, c := range changes {
		if c.Kind != Changed {
			t.Fatalf("expected Changed entries only, got %#v", c)
		}
	}
	if changes[0].Path != "tag#0" || changes[1].Path != "tag#1" {
		t.Fatalf("unexpected paths %q %q", changes[0].Path, changes[1].Path)
	}
}

func TestDiffRepeatedKeyCountChange(t *testing.T) {
	a := mustParse(t, "tag = alpha\n")
	b := mustParse(t, "tag = alpha\ntag = beta\n")
	changes := Blocks(a, b)
	if len(changes) != 1 || changes[0].Kind != Added {
		t.Fatalf("expected single Added, got %v", changes)
	}
}

func TestDiffNestedBlocksRecurse(t *testing.T) {
	a := mustParse(t, `mine = { modifier = { factor = 1.0 scale = 2 } }`)
	b := mustParse(t, `mine = { modifier = { factor = 0.5 scale = 2 } }`)
	changes := Blocks(a, b)
	if len(changes) != 1 {
		t.Fatalf("expected 1 nested change, got %v", changes)
	}
	if changes[0].Path != "mine/modifier/factor" {
		t.Fatalf("unexpected path %q", changes[0].Path)
	}
}

func TestDiffShapeChange(t *testing.T) {
	a := mustParse(t, `mine = { cost = 100 }`)
	b := mustParse(t, `mine = { cost = { base = 100 } }`)
	changes := Blocks(a, b)
	if len(changes) != 1 || changes[0].Kind != Changed {
		t.Fatalf("scalar to block is one Changed entry, got %v", changes)
	}
}

func TestDiffItems(t *testing.T) {
	a := mustParse(t, `tags = { alpha beta }`)
	b := mustParse(t, `tags = { alpha gamma delta }`)
	changes := Blocks(a, b)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %v", changes)
	}
	if changes[0].Kind != Changed || ast.Render(changes[0].New) != "gamma" {
		t.Fatalf("unexpected first change %#v", changes[0])
	}
	if changes[1].Kind != Added || ast.Render(changes[1].New) != "delta" {
		t.Fatalf("unexpected second change %#v", changes[1])
	}
}

func TestDiffSymmetry(t *testing.T) {
	a := mustParse(t, `
mine = { cost = 100 tier = 1 }
farm = { cost = 20 }
tag = alpha
tag = beta
`)
	b := mustParse(t, `
mine = { cost = 150 }
spaceport = { cost = 900 }
tag = beta
`)
	forward := Blocks(a, b)
	backward := Blocks(b, a)
	if len(forward) != len(backward) {
		t.Fatalf("changesets differ in size: %v vs %v", forward, backward)
	}

	count := func(changes []Change, kind Kind) map[string]int {
		out := make(map[string]int)
		for _, c := range changes {
			if c.Kind == kind {
				out[c.Path]++
			}
		}
		return out
	}
	fAdded, bRemoved := count(forward, Added), count(backward, Removed)
	if len(fAdded) != len(bRemoved) {
		t.Fatalf("Added/Removed are not mirror images: %v vs %v", fAdded, bRemoved)
	}
	for path, n := range fAdded {
		if bRemoved[path] != n {
			t.Fatalf("path %q: forward Added %d, backward Removed %d", path, n, bRemoved[path])
		}
	}
	fRemoved, bAdded := count(forward, Removed), count(backward, Added)
	for path, n := range fRemoved {
		if bAdded[path] != n {
			t.Fatalf("path %q: forward Removed %d, backward Added %d", path, n, bAdded[path])
		}
	}
}
