// Package interner maps identifiers to small integer symbols. Script
// keys are case-insensitive, so lookups fold case while the first-seen
// spelling is kept for display.
package interner

import (
	"strings"
	"sync"
)

// Sym identifies an interned string. The zero value is never issued.
type Sym uint32

// None is the absent symbol.
const None Sym = 0

// Interner is safe for concurrent use.
type Interner struct {
	mu    sync.RWMutex
	syms  map[string]Sym
	names []string
}

func New() *Interner {
	return &Interner{
		syms: make(map[string]Sym),
		// index 0 is reserved for None
		names: make([]string, 1),
	}
}

// Intern returns the symbol for s, issuing a new one on first sight.
func (in *Interner) Intern(s string) Sym {
	folded := strings.ToLower(s)

	in.mu.RLock()
	sym, ok := in.syms[folded]
	in.mu.RUnlock()
	if ok {
		return sym
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if sym, ok := in.syms[folded]; ok {
		return sym
	}
	sym = Sym(len(in.names))
	in.syms[folded] = sym
	in.names = append(in.names, s)
	return sym
}

// Lookup returns the symbol for s without interning, or None.
func (in *Interner) Lookup(s string) Sym {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.syms[strings.ToLower(s)]
}

// Name returns the first-seen spelling for sym.
func (in *Interner) Name(sym Sym) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(sym) >= len(in.names) {
		return ""
	}
	return in.names[sym]
}

// Len reports how many symbols have been issued.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.names) - 1
}

// shared is the process-wide interner. Entries are never evicted, so
// its size is bounded by the number of distinct identifiers seen, not
// by document count.
var shared = New()

// Intern interns s in the process-wide interner.
func Intern(s string) Sym { return shared.Intern(s) }

// Name returns the first-seen spelling of sym in the process-wide
// interner.
func Name(sym Sym) string { return shared.Name(sym) }
