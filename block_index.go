// block_index.go - the two-tier block lookup.
//
// Tier 1 is a flat direct-mapped hash table, `[HashSize]uint16`, keyed by
// a dense physical address - a single-slot cache, not a chained resizable
// map, since a dense key needs no collision chain. Tier 2 is a per-page
// binary search tree keyed by the 64-bit composite (cs_base, phys) key
// from address_types.go.
package dynarec

// BlockIndex is the hash+BST lookup structure.
type BlockIndex struct {
	hashTable []uint16 // len HashSize, entries are block indices or invalidBlock
	pages     MemorySystem
}

// NewBlockIndex constructs an index whose hash table is sized HashSize.
func NewBlockIndex(pages MemorySystem) *BlockIndex {
	bi := &BlockIndex{hashTable: make([]uint16, HashSize), pages: pages}
	return bi
}

func hash(phys GuestPhys) uint32 { return uint32(phys) & HashMask }

// invalidateHash clears the hash slot for phys if a block is cached there;
// callers also look it up by tree so a stale pointer is harmless except as
// a wasted validity check, but clearing keeps Lookup from reporting a
// freed index.
func (bi *BlockIndex) invalidateHash(phys GuestPhys) {
	bi.hashTable[hash(phys)] = invalidBlock
}

// Candidate returns the hash-table's current guess for phys, without
// validating it; callers must run the validity predicate (dispatch.go's
// findOrCreateBlock) before trusting it.
func (bi *BlockIndex) Candidate(phys GuestPhys) uint16 {
	return bi.hashTable[hash(phys)]
}

// promote makes idx the hash-table's winner for phys, the single-slot
// cache update that follows a tree hit.
func (bi *BlockIndex) promote(phys GuestPhys, idx uint16) {
	bi.hashTable[hash(phys)] = idx
}

// treeRootField returns a pointer to the BST root word for phys's owning
// page, so callers can both read and (via insert/remove) rewrite it.
func (bi *BlockIndex) treeRootField(phys GuestPhys) *uint16 {
	return &bi.pages.PageFor(phys).headTree[0]
}

// Lookup performs the two-tier search: the hash candidate first, falling
// back to the page's BST, promoting a tree hit back into the hash slot.
func (bi *BlockIndex) Lookup(s *BlockStorage, csBase CSBase, phys GuestPhys, valid func(*CodeBlock) bool) uint16 {
	if cand := bi.Candidate(phys); cand != invalidBlock {
		if b := s.Get(cand); valid(b) {
			return cand
		}
	}
	root := *bi.treeRootField(phys)
	idx := bi.treeSearch(s, root, treeKey(csBase, phys))
	if idx != invalidBlock && valid(s.Get(idx)) {
		bi.promote(phys, idx)
		return idx
	}
	return invalidBlock
}

func (bi *BlockIndex) key(b *CodeBlock) uint64 { return treeKey(b.csBase, b.phys) }

func (bi *BlockIndex) treeSearch(s *BlockStorage, root uint16, key uint64) uint16 {
	cur := root
	for cur != invalidBlock {
		b := s.Get(cur)
		k := bi.key(b)
		switch {
		case key == k:
			return cur
		case key < k:
			cur = b.treeLeft
		default:
			cur = b.treeRight
		}
	}
	return invalidBlock
}

// Insert adds idx (already populated with csBase/phys) into the BST owning
// its primary page. Textbook unbalanced BST insertion.
func (bi *BlockIndex) Insert(s *BlockStorage, idx uint16) {
	b := s.Get(idx)
	rootField := bi.treeRootField(b.phys)
	key := bi.key(b)

	if *rootField == invalidBlock {
		*rootField = idx
		b.treeParent = invalidBlock
		return
	}
	cur := *rootField
	for {
		cb := s.Get(cur)
		ck := bi.key(cb)
		if key < ck {
			if cb.treeLeft == invalidBlock {
				cb.treeLeft = idx
				b.treeParent = cur
				return
			}
			cur = cb.treeLeft
		} else {
			if cb.treeRight == invalidBlock {
				cb.treeRight = idx
				b.treeParent = cur
				return
			}
			cur = cb.treeRight
		}
	}
}

// removeFromTree deletes idx from the BST owning its primary page, using
// the "replace with in-order successor from the right subtree" rule and
// re-parenting children, re-rooting the page when idx is the root.
func (bi *BlockIndex) removeFromTree(s *BlockStorage, idx uint16) {
	b := s.Get(idx)
	rootField := bi.treeRootField(b.phys)
	*rootField = bi.deleteNode(s, *rootField, idx)
}

func (bi *BlockIndex) deleteNode(s *BlockStorage, root, target uint16) uint16 {
	if root == invalidBlock {
		return invalidBlock
	}
	rb := s.Get(root)
	tb := s.Get(target)
	rk, tk := bi.key(rb), bi.key(tb)

	switch {
	case tk < rk:
		rb.treeLeft = bi.deleteNode(s, rb.treeLeft, target)
		if rb.treeLeft != invalidBlock {
			s.Get(rb.treeLeft).treeParent = root
		}
		return root
	case tk > rk:
		rb.treeRight = bi.deleteNode(s, rb.treeRight, target)
		if rb.treeRight != invalidBlock {
			s.Get(rb.treeRight).treeParent = root
		}
		return root
	case root != target:
		// Same key, different node: Insert routes equal keys to the right
		// subtree, so the actual target (if present) lives there.
		rb.treeRight = bi.deleteNode(s, rb.treeRight, target)
		if rb.treeRight != invalidBlock {
			s.Get(rb.treeRight).treeParent = root
		}
		return root
	default:
		// root == target.
		if rb.treeLeft == invalidBlock {
			child := rb.treeRight
			if child != invalidBlock {
				s.Get(child).treeParent = rb.treeParent
			}
			return child
		}
		if rb.treeRight == invalidBlock {
			child := rb.treeLeft
			if child != invalidBlock {
				s.Get(child).treeParent = rb.treeParent
			}
			return child
		}
		// Two children: find the in-order successor (leftmost node of
		// the right subtree), splice it into root's place.
		succ := rb.treeRight
		for s.Get(succ).treeLeft != invalidBlock {
			succ = s.Get(succ).treeLeft
		}
		rb.treeRight = bi.deleteNode(s, rb.treeRight, succ)
		if rb.treeRight != invalidBlock {
			s.Get(rb.treeRight).treeParent = succ
		}
		sb := s.Get(succ)
		sb.treeLeft = rb.treeLeft
		if sb.treeLeft != invalidBlock {
			s.Get(sb.treeLeft).treeParent = succ
		}
		sb.treeRight = rb.treeRight
		if sb.treeRight != invalidBlock {
			s.Get(sb.treeRight).treeParent = succ
		}
		sb.treeParent = rb.treeParent
		return succ
	}
}
