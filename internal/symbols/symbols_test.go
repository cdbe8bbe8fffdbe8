package symbols

import (
	"fmt"
	"sync"
	"testing"

	"github.com/corvee/cwt/internal/parser"
	"github.com/corvee/cwt/internal/registry"
)

func TestReplaceAndLookup(t *testing.T) {
	idx := NewIndex()
	idx.ReplaceDocument("a.txt", []Symbol{
		{Name: "power_plant", Type: "building", Path: "a.txt"},
		{Name: "mine", Type: "building", Path: "a.txt"},
	})
	idx.ReplaceDocument("b.txt", []Symbol{
		{Name: "farm", Type: "building", Path: "b.txt"},
	})

	if !idx.Has("building", "POWER_PLANT") {
		t.Fatal("lookup should fold case")
	}
	if idx.Has("building", "spaceport") {
		t.Fatal("unexpected symbol")
	}
	names := idx.Names("building")
	want := []string{"farm", "mine", "power_plant"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestReplaceSwapsOwnedSymbols(t *testing.T) {
	idx := NewIndex()
	idx.ReplaceDocument("a.txt", []Symbol{{Name: "mine", Type: "building", Path: "a.txt"}})
	idx.ReplaceDocument("a.txt", []Symbol{{Name: "farm", Type: "building", Path: "a.txt"}})

	if idx.Has("building", "mine") {
		t.Fatal("stale symbol survived replacement")
	}
	if !idx.Has("building", "farm") {
		t.Fatal("new symbol missing")
	}
}

func TestRemoveDocumentKeepsOtherOwners(t *testing.T) {
	idx := NewIndex()
	idx.ReplaceDocument("a.txt", []Symbol{{Name: "mine", Type: "building", Path: "a.txt"}})
	idx.ReplaceDocument("b.txt", []Symbol{{Name: "mine", Type: "building", Path: "b.txt"}})

	idx.RemoveDocument("a.txt")
	found := idx.Lookup("building", "mine")
	if len(found) != 1 || found[0].Path != "b.txt" {
		t.Fatalf("expected b.txt declaration to survive, got %#v", found)
	}

	idx.RemoveDocument("b.txt")
	if idx.Has("building", "mine") {
		t.Fatal("symbol survived removal of both owners")
	}
}

func TestExtract(t *testing.T) {
	root, diags := parser.Parse(`
### Generates energy.
power_plant = {
	cost = 100
}
mine = {
	cost = 50
}
not_a_block = 3
`)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	typ := &registry.Type{Name: "building"}
	syms := Extract("buildings.txt", root, typ)
	if len(syms) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(syms))
	}
	if syms[0].Name != "power_plant" || syms[0].Type != "building" || syms[0].Path != "buildings.txt" {
		t.Fatalf("unexpected symbol %#v", syms[0])
	}
	if syms[0].Doc != "Generates energy." {
		t.Fatalf("expected doc comment, got %q", syms[0].Doc)
	}
	if syms[0].Span.Start.Line != 3 {
		t.Fatalf("expected span on line 3, got %d", syms[0].Span.Start.Line)
	}
}

func TestExtractNameField(t *testing.T) {
	root, _ := parser.Parse(`
event_one = {
	id = "colony.1"
}
`)
	typ := &registry.Type{Name: "event", NameField: "id"}
	syms := Extract("events.txt", root, typ)
	if len(syms) != 1 || syms[0].Name != "colony.1" {
		t.Fatalf("expected name from name_field, got %#v", syms)
	}
}

func TestIndexConcurrent(t *testing.T) {
	idx := NewIndex()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			path := fmt.Sprintf("doc_%d.txt", w)
			for i := 0; i < 50; i++ {
				idx.ReplaceDocument(path, []Symbol{
					{Name: fmt.Sprintf("sym_%d", w), Type: "building", Path: path},
				})
				idx.Has("building", "sym_0")
				idx.Names("building")
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 8; w++ {
		if !idx.Has("building", fmt.Sprintf("sym_%d", w)) {
			t.Fatalf("missing symbol for worker %d", w)
		}
	}
}
