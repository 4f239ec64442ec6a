// block_index_test.go - BST consistency (every node reachable from a
// page's tree root satisfies the BST ordering invariant over (cs_base,
// phys) after any sequence of Insert/removeFromTree) and lookup soundness
// (Lookup never returns a block whose (cs_base, phys) doesn't match the
// query, given the key-checking validity predicate every real caller
// supplies - dispatch.go's findOrCreateBlock).
package dynarec

import "testing"

func newIndexFixture(t *testing.T, n int) (*BlockIndex, *BlockStorage) {
	t.Helper()
	mem := newFakeMemory(PageSize * 4)
	index := NewBlockIndex(mem)
	arena := newTestArena(t, n)
	storage := NewBlockStorage(n, arena, index, mem)
	return index, storage
}

func alwaysValid(*CodeBlock) bool { return true }

// matchKey is the kind of validity predicate every real Lookup caller
// supplies (dispatch.go's findOrCreateBlock): Lookup's hash-table fast path
// only keys on phys, so soundness depends on this check, not on Lookup
// itself.
func matchKey(cs CSBase, phys GuestPhys) func(*CodeBlock) bool {
	return func(b *CodeBlock) bool { return b.csBase == cs && b.phys == phys }
}

func insertBlock(t *testing.T, index *BlockIndex, s *BlockStorage, cs CSBase, phys GuestPhys) uint16 {
	t.Helper()
	idx, err := s.NewBlock()
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	b := s.Get(idx)
	b.csBase = cs
	b.phys = phys
	index.Insert(s, idx)
	return idx
}

// inorderKeys walks the BST rooted at root, asserting strict ascending key
// order, and returns the visited keys.
func inorderKeys(t *testing.T, index *BlockIndex, s *BlockStorage, root uint16) []uint64 {
	t.Helper()
	var keys []uint64
	var walk func(uint16)
	walk = func(n uint16) {
		if n == invalidBlock {
			return
		}
		b := s.Get(n)
		walk(b.treeLeft)
		k := index.key(b)
		if len(keys) > 0 && keys[len(keys)-1] >= k {
			t.Errorf("BST ordering violated: key %d appears after %d in-order", k, keys[len(keys)-1])
		}
		keys = append(keys, k)
		walk(b.treeRight)
	}
	walk(root)
	return keys
}

func TestBlockIndexBSTConsistencyAfterInsertsAndDeletes(t *testing.T) {
	index, s := newIndexFixture(t, 16)
	phys := GuestPhys(0x2000)
	var ids []uint16
	css := []CSBase{5, 1, 9, 3, 7, 2, 8, 0, 4, 6}
	for _, cs := range css {
		ids = append(ids, insertBlock(t, index, s, cs, phys))
	}

	root := *index.treeRootField(phys)
	keys := inorderKeys(t, index, s, root)
	if len(keys) != len(css) {
		t.Fatalf("in-order walk visited %d nodes, want %d", len(keys), len(css))
	}

	// Delete the root (cs=5) and then an interior node with two children
	// (cs=3), re-checking BST ordering after each.
	index.removeFromTree(s, ids[0])
	root = *index.treeRootField(phys)
	inorderKeys(t, index, s, root)

	index.removeFromTree(s, ids[3])
	root = *index.treeRootField(phys)
	remaining := inorderKeys(t, index, s, root)
	if len(remaining) != len(css)-2 {
		t.Errorf("in-order walk visited %d nodes after 2 deletes, want %d", len(remaining), len(css)-2)
	}
}

func TestBlockIndexLookupSoundnessRejectsWrongKey(t *testing.T) {
	index, s := newIndexFixture(t, 8)
	idx := insertBlock(t, index, s, 1, 0x3000)
	insertBlock(t, index, s, 2, 0x3000)

	got := index.Lookup(s, 1, 0x3000, matchKey(1, 0x3000))
	if got != idx {
		t.Fatalf("Lookup(cs=1) = %d, want %d", got, idx)
	}

	got = index.Lookup(s, 99, 0x3000, matchKey(99, 0x3000))
	if got != invalidBlock {
		t.Errorf("Lookup(cs=99) = %d, want invalidBlock (no block carries that key)", got)
	}

	got = index.Lookup(s, 5, 0x4000, matchKey(5, 0x4000)) // different page entirely
	if got != invalidBlock {
		t.Errorf("Lookup on an unrelated page = %d, want invalidBlock", got)
	}
}

func TestBlockIndexLookupHonorsValidityPredicate(t *testing.T) {
	index, s := newIndexFixture(t, 8)
	idx := insertBlock(t, index, s, 1, 0x5000)

	rejectAll := func(*CodeBlock) bool { return false }
	if got := index.Lookup(s, 1, 0x5000, rejectAll); got != invalidBlock {
		t.Errorf("Lookup with a rejecting predicate = %d, want invalidBlock", got)
	}
	if got := index.Lookup(s, 1, 0x5000, alwaysValid); got != idx {
		t.Errorf("Lookup with an accepting predicate = %d, want %d", got, idx)
	}
}

func TestBlockIndexLookupPromotesTreeHitToHash(t *testing.T) {
	index, s := newIndexFixture(t, 8)
	idx := insertBlock(t, index, s, 1, 0x6000)

	if index.Candidate(0x6000) != invalidBlock {
		t.Fatalf("hash candidate should start empty before any lookup promotes it")
	}
	if got := index.Lookup(s, 1, 0x6000, matchKey(1, 0x6000)); got != idx {
		t.Fatalf("Lookup = %d, want %d", got, idx)
	}
	if index.Candidate(0x6000) != idx {
		t.Errorf("Candidate(phys) = %d after a tree hit, want %d (promoted)", index.Candidate(0x6000), idx)
	}
}

func TestBlockIndexRemoveFromTreeUnlinksCompletely(t *testing.T) {
	index, s := newIndexFixture(t, 8)
	idx := insertBlock(t, index, s, 1, 0x7000)
	index.removeFromTree(s, idx)

	if got := index.Lookup(s, 1, 0x7000, alwaysValid); got != invalidBlock {
		t.Errorf("Lookup after removeFromTree = %d, want invalidBlock", got)
	}
	if root := *index.treeRootField(0x7000); root != invalidBlock {
		t.Errorf("tree root = %d after deleting its only node, want invalidBlock", root)
	}
}
