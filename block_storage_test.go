// block_storage_test.go - block pool conservation (every slot is either
// free or occupied by exactly one block, and occupied-count plus
// free-count always equals the pool size minus the reserved sentinel slot),
// plus page-list and purge-list bookkeeping.
package dynarec

import "testing"

func newTestStorage(t *testing.T, n int) (*BlockStorage, *fakeMemory, *BlockIndex) {
	t.Helper()
	mem := newFakeMemory(PageSize * 4)
	index := NewBlockIndex(mem)
	arena := newTestArena(t, n)
	s := NewBlockStorage(n, arena, index, mem)
	return s, mem, index
}

func TestBlockStoragePoolConservation(t *testing.T) {
	const n = 6
	s, _, _ := newTestStorage(t, n)
	if got := s.conservationCount(); got != 0 {
		t.Fatalf("conservationCount = %d, want 0 on a fresh pool", got)
	}

	var live []uint16
	for i := 0; i < n-1; i++ { // slot 0 is the reserved sentinel
		idx, err := s.NewBlock()
		if err != nil {
			t.Fatalf("NewBlock #%d: %v", i, err)
		}
		live = append(live, idx)
	}
	if got := s.conservationCount(); got != n-1 {
		t.Errorf("conservationCount = %d, want %d (pool fully occupied)", got, n-1)
	}
	if _, err := s.NewBlock(); err == nil {
		t.Error("expected NewBlock to fail once the pool is exhausted")
	}

	for _, idx := range live {
		s.DeleteBlock(idx)
	}
	if got := s.conservationCount(); got != 0 {
		t.Errorf("conservationCount = %d, want 0 after deleting every block", got)
	}
}

func TestBlockStorageNewBlockIsZeroed(t *testing.T) {
	s, _, _ := newTestStorage(t, 4)
	idx, err := s.NewBlock()
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	b := s.Get(idx)
	b.startPC = 0x1234
	b.flags = FlagWasRecompiled
	s.DeleteBlock(idx)

	idx2, err := s.NewBlock()
	if err != nil {
		t.Fatalf("NewBlock reuse: %v", err)
	}
	b2 := s.Get(idx2)
	if b2.startPC != 0 || b2.flags.has(FlagWasRecompiled) {
		t.Errorf("reused slot not zeroed: startPC=%#x flags=%v", b2.startPC, b2.flags)
	}
}

func TestBlockStoragePageListLinkAndUnlink(t *testing.T) {
	s, mem, _ := newTestStorage(t, 4)
	idxA, _ := s.NewBlock()
	idxB, _ := s.NewBlock()
	s.Get(idxA).phys = 0x1000
	s.Get(idxB).phys = 0x1000
	page := mem.PageFor(0x1000)

	s.LinkIntoPageList(idxA, 0, page)
	s.LinkIntoPageList(idxB, 0, page)
	if page.listHead[0] != idxB {
		t.Fatalf("listHead[0] = %d, want %d (most recently linked)", page.listHead[0], idxB)
	}
	if s.Get(idxB).pageListNext[0] != idxA {
		t.Errorf("pageListNext[0] of %d = %d, want %d", idxB, s.Get(idxB).pageListNext[0], idxA)
	}
	if s.Get(idxA).pageListPrev[0] != idxB {
		t.Errorf("pageListPrev[0] of %d = %d, want %d", idxA, s.Get(idxA).pageListPrev[0], idxB)
	}

	s.DeleteBlock(idxB)
	if page.listHead[0] != idxA {
		t.Errorf("listHead[0] = %d after deleting the head, want %d", page.listHead[0], idxA)
	}
	if s.Get(idxA).pageListPrev[0] != invalidBlock {
		t.Errorf("pageListPrev[0] of remaining block = %d, want invalidBlock", s.Get(idxA).pageListPrev[0])
	}
}

func TestBlockStoragePurgePurgableList(t *testing.T) {
	s, _, _ := newTestStorage(t, 4)
	idx, _ := s.NewBlock()
	s.Get(idx).flags = FlagInDirtyList // marked but never recompiled

	s.PurgePurgableList()
	if got := s.conservationCount(); got != 0 {
		t.Errorf("conservationCount = %d, want 0; purge should delete marked-only blocks", got)
	}
}

func TestBlockStoragePurgePurgableListSparesCompiledBlocks(t *testing.T) {
	s, _, _ := newTestStorage(t, 4)
	idx, _ := s.NewBlock()
	s.Get(idx).flags = FlagInDirtyList | FlagWasRecompiled

	s.PurgePurgableList()
	if got := s.conservationCount(); got != 1 {
		t.Errorf("conservationCount = %d, want 1; a recompiled block must survive the purge", got)
	}
}

func TestBlockStorageReset(t *testing.T) {
	s, _, _ := newTestStorage(t, 6)
	for i := 0; i < 4; i++ {
		if _, err := s.NewBlock(); err != nil {
			t.Fatalf("NewBlock: %v", err)
		}
	}
	s.Reset()
	if got := s.conservationCount(); got != 0 {
		t.Errorf("conservationCount = %d, want 0 after Reset", got)
	}
}

func TestBlockStorageDeleteRandomBlockNoProgressWhenEmpty(t *testing.T) {
	s, _, _ := newTestStorage(t, 4)
	if s.DeleteRandomBlock(1) {
		t.Error("DeleteRandomBlock should report no progress when nothing is occupied")
	}
}

func TestBlockStorageDeleteRandomBlockDeletesOneOccupiedSlot(t *testing.T) {
	s, _, _ := newTestStorage(t, 4)
	s.NewBlock()
	s.NewBlock()
	before := s.conservationCount()

	if !s.DeleteRandomBlock(1) {
		t.Fatal("DeleteRandomBlock should make progress while occupied slots remain")
	}
	if got := s.conservationCount(); got != before-1 {
		t.Errorf("conservationCount = %d, want %d after deleting one random block", got, before-1)
	}
}
