// block_storage.go - C3: the fixed CodeBlock pool, free list, per-page BST,
// and per-page doubly-linked page lists.
//
// Follows the pointer-index discipline already established in
// exec_arena.go: all intra-pool references are 16-bit indices, never Go
// pointers, so removal is O(1) and a forced eviction pass never needs
// pointer fixup.
package dynarec

// BlockStorage owns the fixed codeblock[BLOCK_SIZE] arena.
type BlockStorage struct {
	blocks   []CodeBlock
	freeHead uint16
	arena    *ExecArena

	// index is consulted so delete_block can unlink the block from the
	// hash table's single-slot cache and the per-page BST (C4).
	index *BlockIndex
	// pages maps a physical page number to its Page metadata, supplied by
	// the consuming emulator (collaborators.go).
	pages MemorySystem

	rng func(n int) int
}

// NewBlockStorage reserves n CodeBlock slots; slot 0 is the permanent
// INVALID sentinel and is never handed out.
func NewBlockStorage(n int, arena *ExecArena, index *BlockIndex, pages MemorySystem) *BlockStorage {
	if n < 2 {
		n = 2
	}
	s := &BlockStorage{
		blocks: make([]CodeBlock, n),
		arena:  arena,
		index:  index,
		pages:  pages,
		rng:    randIntn,
	}
	s.blocks[invalidBlock].flags = FlagInFreeList
	for i := 1; i < n; i++ {
		s.blocks[i].flags = FlagInFreeList
		if i == n-1 {
			s.blocks[i].treeParent = invalidBlock
		} else {
			s.blocks[i].treeParent = uint16(i + 1)
		}
	}
	if n > 1 {
		s.freeHead = 1
	}
	return s
}

// Get returns a pointer to block idx's storage. Callers must not retain it
// across a NewBlock/DeleteBlock call that could reuse the slot.
func (s *BlockStorage) Get(idx uint16) *CodeBlock { return &s.blocks[idx] }

// NewBlock unlinks a slot from the free list, zeroes it, and returns its
// index. Mirrors new_block().
func (s *BlockStorage) NewBlock() (uint16, error) {
	if s.freeHead == invalidBlock {
		return invalidBlock, newError(KindOutOfMemory, "BlockStorage.NewBlock", "block pool exhausted")
	}
	idx := s.freeHead
	s.freeHead = s.blocks[idx].treeParent
	s.blocks[idx] = CodeBlock{}
	return idx, nil
}

// DeleteBlock removes idx from its BST and page list(s), frees its exec
// chain, and returns the slot to the free list. Mirrors delete_block(b).
func (s *BlockStorage) DeleteBlock(idx uint16) {
	if idx == invalidBlock {
		return
	}
	b := &s.blocks[idx]
	if b.flags.has(FlagInFreeList) {
		return
	}

	if s.index != nil {
		// The BST threads only through the block's primary page.
		s.index.removeFromTree(s, idx)
	}
	for page := 0; page < b.pageCount(); page++ {
		s.unlinkFromPageList(idx, page)
	}
	if s.index != nil {
		s.index.invalidateHash(b.phys)
		if b.flags.has(FlagHasPage2) {
			s.index.invalidateHash(b.phys2)
		}
	}

	s.arena.Free(b.headExecBlock)

	*b = CodeBlock{flags: FlagInFreeList}
	b.treeParent = s.freeHead
	s.freeHead = idx
}

// unlinkFromPageList removes idx from the doubly-linked list rooted at its
// owning Page's listHead[role].
func (s *BlockStorage) unlinkFromPageList(idx uint16, role int) {
	b := &s.blocks[idx]
	phys := b.phys
	if role == 1 {
		phys = b.phys2
	}
	page := s.pages.PageFor(phys)
	if page == nil {
		return
	}

	prev, next := b.pageListPrev[role], b.pageListNext[role]
	if prev != invalidBlock {
		s.linkNext(prev, role, next)
	} else {
		page.listHead[role] = next
	}
	if next != invalidBlock {
		s.linkPrev(next, role, prev)
	}
}

func (s *BlockStorage) linkNext(idx uint16, role int, next uint16) {
	s.blocks[idx].pageListNext[role] = next
}

func (s *BlockStorage) linkPrev(idx uint16, role int, prev uint16) {
	s.blocks[idx].pageListPrev[role] = prev
}

// LinkIntoPageList prepends idx to its owning page's block list for the
// given role (0 = primary page, 1 = secondary page), called by the
// translator during block_init.
func (s *BlockStorage) LinkIntoPageList(idx uint16, role int, page *Page) {
	head := page.listHead[role]
	b := &s.blocks[idx]
	b.pageListPrev[role] = invalidBlock
	b.pageListNext[role] = head
	if head != invalidBlock {
		s.blocks[head].pageListPrev[role] = idx
	}
	page.listHead[role] = idx
}

// PurgePurgableList walks every occupied block with FlagInDirtyList set
// and FlagWasRecompiled clear, deleting each. Mirrors purge_purgable_list():
// these are blocks that were marked stale by a flush, then
// marked-but-not-recompiled again before anyone re-ran them.
func (s *BlockStorage) PurgePurgableList() {
	for i := range s.blocks {
		idx := uint16(i)
		b := &s.blocks[idx]
		if b.flags.has(FlagInFreeList) {
			continue
		}
		if b.flags.has(FlagInDirtyList) && !b.flags.has(FlagWasRecompiled) {
			s.DeleteBlock(idx)
		}
	}
}

// DeleteRandomBlock implements the Evictor interface C1 uses for forced
// eviction (delete_random_block): pick one random occupied slot and delete
// it, or report no progress when every slot is free already. Each call
// deletes exactly one block and does not consult minExecBlocks;
// ExecArena.evict repeats the call until its free list is non-empty.
func (s *BlockStorage) DeleteRandomBlock(minExecBlocks int) bool {
	occupied := make([]uint16, 0, len(s.blocks))
	for i := 1; i < len(s.blocks); i++ {
		if !s.blocks[i].flags.has(FlagInFreeList) {
			occupied = append(occupied, uint16(i))
		}
	}
	if len(occupied) == 0 {
		return false
	}
	victim := occupied[s.rng(len(occupied))]
	s.DeleteBlock(victim)
	return true
}

// Reset deletes every occupied block, returning the pool to its initial
// all-free state. Used by codegen_reset (dynarec.go).
func (s *BlockStorage) Reset() {
	for i := 1; i < len(s.blocks); i++ {
		s.DeleteBlock(uint16(i))
	}
}

// conservationCount returns the number of occupied (non-free) slots, used
// by tests asserting the block-pool-conservation property (free + in-use
// slots always sum to the pool size).
func (s *BlockStorage) conservationCount() int {
	n := 0
	for i := 1; i < len(s.blocks); i++ {
		if !s.blocks[i].flags.has(FlagInFreeList) {
			n++
		}
	}
	return n
}
