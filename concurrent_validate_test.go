package cwt

import (
	"fmt"
	"sync"
	"testing"

	"github.com/corvee/cwt/diag"
)

// A loaded Schema is immutable and must serve concurrent one-shot
// validations without interference.
func TestConcurrentValidate(t *testing.T) {
	schema := loadSchema(t)

	valid := `mine = { cost = 100 produces = energy }`
	invalid := `mine = { cost = 100 produces = unobtainium }`

	const workers = 16
	const rounds = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				wantBad := (w+i)%2 == 0
				src := valid
				if wantBad {
					src = invalid
				}
				diags, err := Validate(schema, "building", src)
				if err != nil {
					errs <- err
					return
				}
				if wantBad && (len(diags) != 1 || diags[0].Code != diag.CodeUnknownEnumValue) {
					errs <- fmt.Errorf("worker %d round %d: unexpected diagnostics %v", w, i, diags)
					return
				}
				if !wantBad && len(diags) != 0 {
					errs <- fmt.Errorf("worker %d round %d: unexpected diagnostics %v", w, i, diags)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

// Concurrent edits to distinct documents must publish diagnostics for
// each document's latest revision only.
func TestConcurrentWorkspaceEdits(t *testing.T) {
	ws := newWorkspace(t)

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			path := fmt.Sprintf("common/buildings/%d.txt", w)
			ws.Open(path, fmt.Sprintf("b%d = { cost = broken }", w))
			for i := 0; i < 25; i++ {
				ws.Change(path, fmt.Sprintf("b%d = { cost = %d }", w, i))
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		path := fmt.Sprintf("common/buildings/%d.txt", w)
		if diags := ws.Diagnostics(path); len(diags) != 0 {
			t.Fatalf("%s: expected clean final revision, got %v", path, diags)
		}
	}
}
