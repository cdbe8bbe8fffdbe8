// Package diff structurally compares two script trees and reports a
// minimal changeset. Repeated keys pair up by order of occurrence
// among same-named siblings, so reordering a block of unique keys is
// no change at all.
package diff

import (
	"strconv"
	"strings"

	"github.com/corvee/cwt/internal/ast"
)

// Kind classifies one change.
type Kind int

const (
	Added Kind = iota
	Removed
	Changed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// Change is one entry of a changeset. Old is nil for additions and New
// is nil for removals.
type Change struct {
	Kind Kind
	Path string
	Key  string
	Old  ast.Value
	New  ast.Value
}

// Blocks diffs two trees of the same schema type.
func Blocks(a, b *ast.Block) []Change {
	return diffBlocks(nil, a, b)
}

func diffBlocks(path []string, a, b *ast.Block) []Change {
	var changes []Change

	for _, key := range keyOrder(a, b) {
		as := a.FindAll(key)
		bs := b.FindAll(key)
		n := len(as)
		if len(bs) > n {
			n = len(bs)
		}
		for i := 0; i < n; i++ {
			elem := occurrence(key, i, len(as), len(bs))
			switch {
			case i >= len(bs):
				changes = append(changes, Change{
					Kind: Removed,
					Path: joinPath(path, elem),
					Key:  key,
					Old:  as[i].Value,
				})
			case i >= len(as):
				changes = append(changes, Change{
					Kind: Added,
					Path: joinPath(path, elem),
					Key:  key,
					New:  bs[i].Value,
				})
			case as[i].Op != bs[i].Op:
				// Operators are part of an entry's identity; a bare
				// operator change is a change even when the value holds.
				changes = append(changes, Change{
					Kind: Changed,
					Path: joinPath(path, elem),
					Key:  key,
					Old:  as[i].Value,
					New:  bs[i].Value,
				})
			default:
				changes = append(changes, diffValues(append(path, elem), key, as[i].Value, bs[i].Value)...)
			}
		}
	}

	changes = append(changes, diffItems(path, a.Items, b.Items)...)
	return changes
}

func diffValues(path []string, key string, old, new ast.Value) []Change {
	if ast.Equal(old, new) {
		return nil
	}
	oldBlk, oldIsBlock := old.(*ast.Block)
	newBlk, newIsBlock := new.(*ast.Block)
	if oldIsBlock && newIsBlock {
		return diffBlocks(path, oldBlk, newBlk)
	}
	return []Change{{
		Kind: Changed,
		Path: strings.Join(path, "/"),
		Key:  key,
		Old:  old,
		New:  new,
	}}
}

// diffItems compares bare array items element-wise; the pairing rule is
// positional, same as for repeated keys.
func diffItems(path []string, as, bs []ast.Value) []Change {
	var changes []Change
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= len(bs):
			changes = append(changes, Change{
				Kind: Removed,
				Path: strings.Join(path, "/"),
				Old:  as[i],
			})
		case i >= len(as):
			changes = append(changes, Change{
				Kind: Added,
				Path: strings.Join(path, "/"),
				New:  bs[i],
			})
		case !ast.Equal(as[i], bs[i]):
			changes = append(changes, Change{
				Kind: Changed,
				Path: strings.Join(path, "/"),
				Old:  as[i],
				New:  bs[i],
			})
		}
	}
	return changes
}

// keyOrder lists the distinct keys of both blocks, folded, in order of
// first appearance in a and then b.
func keyOrder(a, b *ast.Block) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, blk := range []*ast.Block{a, b} {
		for i := range blk.Entries {
			key := blk.Entries[i].Key.Text
			folded := strings.ToLower(key)
			if !seen[folded] {
				seen[folded] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}

func occurrence(key string, i, na, nb int) string {
	if na <= 1 && nb <= 1 {
		return key
	}
	return key + "#" + strconv.Itoa(i)
}

func joinPath(path []string, elem string) string {
	if len(path) == 0 {
		return elem
	}
	return strings.Join(path, "/") + "/" + elem
}
