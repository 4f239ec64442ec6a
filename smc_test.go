// smc_test.go - cache coherence: for any sequence of compile, guest-write,
// execute, a write landing within a compiled block's tracked instruction
// footprint must force that block out before it runs again; a write
// elsewhere on the same page must not.
package dynarec

import "testing"

func newSMCFixture(t *testing.T, n int) (*SMC, *BlockStorage, *BlockIndex, *fakeMemory) {
	t.Helper()
	mem := newFakeMemory(PageSize * 4)
	index := NewBlockIndex(mem)
	arena := newTestArena(t, n)
	storage := NewBlockStorage(n, arena, index, mem)
	smc := NewSMC(mem)
	return smc, storage, index, mem
}

// compileFakeBlock mimics BlockInit + the walk's MarkCodePresent call for a
// single-instruction block occupying [phys, phys+length) on its primary
// page, without going through the real translator (which would require
// driving host code emission).
func compileFakeBlock(t *testing.T, smc *SMC, s *BlockStorage, index *BlockIndex, mem *fakeMemory, cs CSBase, phys GuestPhys, length int) uint16 {
	t.Helper()
	idx, err := s.NewBlock()
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	b := s.Get(idx)
	b.csBase = cs
	b.phys = phys
	b.headExecBlock = invalidExecBlock
	b.flags |= FlagWasRecompiled
	index.Insert(s, idx)
	s.LinkIntoPageList(idx, 0, mem.PageFor(phys))
	smc.MarkCodePresent(b, 0, phys, length)
	return idx
}

func TestSMCWriteOutsideFootprintDoesNotInvalidate(t *testing.T) {
	smc, storage, index, mem := newSMCFixture(t, 8)
	const phys = GuestPhys(0x1000) // page 1, offset 0
	idx := compileFakeBlock(t, smc, storage, index, mem, 1, phys, 4)

	smc.NotifyWrite(phys+64, 1) // a different 64-byte subregion
	if ok := smc.ReconcileBlock(storage, idx); !ok {
		t.Fatal("ReconcileBlock reported the block invalid after an unrelated write")
	}
	if storage.Get(idx).flags.has(FlagInFreeList) {
		t.Error("block was deleted by a write outside its tracked footprint")
	}
}

func TestSMCWriteInsideFootprintInvalidates(t *testing.T) {
	smc, storage, index, mem := newSMCFixture(t, 8)
	const phys = GuestPhys(0x1000)
	idx := compileFakeBlock(t, smc, storage, index, mem, 1, phys, 4)

	smc.NotifyWrite(phys+1, 1) // inside [phys, phys+4)
	ok := smc.ReconcileBlock(storage, idx)
	if ok {
		t.Error("ReconcileBlock reported the block still valid after a write inside its footprint")
	}
	if !storage.Get(idx).flags.has(FlagInFreeList) {
		t.Error("block should have been deleted by CheckFlush")
	}
}

func TestSMCCheckFlushDeletesIntersectingBlocksOnly(t *testing.T) {
	smc, storage, index, mem := newSMCFixture(t, 8)
	const phys = GuestPhys(0x1000)
	hit := compileFakeBlock(t, smc, storage, index, mem, 1, phys, 4)
	miss := compileFakeBlock(t, smc, storage, index, mem, 2, phys+256, 4) // subregion 4

	smc.NotifyWrite(phys, 1)
	page := mem.PageFor(phys)
	smc.CheckFlush(storage, page, 0)

	if !storage.Get(hit).flags.has(FlagInFreeList) {
		t.Error("block overlapping the write was not deleted")
	}
	if storage.Get(miss).flags.has(FlagInFreeList) {
		t.Error("block in a different subregion was deleted by an unrelated write")
	}
}

func TestSMCCheckFlushClearsDirtyMasks(t *testing.T) {
	smc, storage, _, mem := newSMCFixture(t, 8)
	const phys = GuestPhys(0x1000)
	page := mem.PageFor(phys)
	smc.NotifyWrite(phys, 4)
	if page.dirtyMask == 0 {
		t.Fatal("NotifyWrite should have set the coarse dirty mask")
	}

	smc.CheckFlush(storage, page, 0)
	if page.dirtyMask != 0 {
		t.Error("CheckFlush should clear the page's dirty mask once done")
	}
}

func TestSMCReconcileDowngradesMarkedSurvivor(t *testing.T) {
	smc, storage, index, mem := newSMCFixture(t, 8)
	const phys = GuestPhys(0x1000)
	idx := compileFakeBlock(t, smc, storage, index, mem, 1, phys, 4)
	b := storage.Get(idx)
	b.flags |= FlagInDirtyList // "marked" pending a future CheckFlush purge

	if ok := smc.ReconcileBlock(storage, idx); !ok {
		t.Fatal("ReconcileBlock should not invalidate a block with no intersecting write")
	}
	if b.flags.has(FlagWasRecompiled) {
		t.Error("a marked-and-dirty-listed survivor should be downgraded off WAS_RECOMPILED")
	}
	if !b.flags.has(FlagByteMask) {
		t.Error("first downgrade should escalate to BYTE_MASK tracking")
	}

	// A second reconcile with FlagInDirtyList still set escalates again, to
	// NO_IMMEDIATES.
	b.flags |= FlagInDirtyList
	if ok := smc.ReconcileBlock(storage, idx); !ok {
		t.Fatal("ReconcileBlock should still accept the block on the second escalation")
	}
	if !b.flags.has(FlagNoImmediates) {
		t.Error("second downgrade should escalate to NO_IMMEDIATES")
	}
}

func TestSMCByteMaskBlockTracksPerByteFootprint(t *testing.T) {
	smc, storage, index, mem := newSMCFixture(t, 8)
	const phys = GuestPhys(0x1000)
	idx, err := storage.NewBlock()
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	b := storage.Get(idx)
	b.csBase = 1
	b.phys = phys
	b.headExecBlock = invalidExecBlock
	b.flags |= FlagWasRecompiled | FlagByteMask
	index.Insert(storage, idx)
	storage.LinkIntoPageList(idx, 0, mem.PageFor(phys))
	smc.MarkCodePresent(b, 0, phys, 2) // instruction bytes at offsets [0,2)

	// A write to offset 3, in the same 64-byte subregion but not one of the
	// instruction's own bytes, must not invalidate a byte-mask block.
	smc.NotifyWrite(phys+3, 1)
	if ok := smc.ReconcileBlock(storage, idx); !ok {
		t.Error("a byte-mask block must tolerate a same-subregion write outside its exact bytes")
	}

	smc.NotifyWrite(phys, 1) // overlaps the instruction's own first byte
	if ok := smc.ReconcileBlock(storage, idx); ok {
		t.Error("a byte-mask block must still invalidate on a write to its own bytes")
	}
}
