// smc.go - self-modifying-code coherence protocol: mark_code_present, the
// write-side dirty routing, check_flush, and the revalidation policy
// (WAS_RECOMPILED downgrade, BYTE_MASK -> NO_IMMEDIATES escalation) a
// candidate block goes through before the dispatcher will run it.
//
// Grounded on 86Box's codegen_mark_code_present/codegen_check_flush
// (codegen.h, 386_dynarec.c) for the bit math and policy ordering.
package dynarec

// SMC owns the per-page metadata lookups the coherence protocol needs;
// BlockStorage is passed per call rather than held.
type SMC struct {
	pages MemorySystem
}

// NewSMC binds the coherence protocol to the emulator's page metadata
// provider.
func NewSMC(pages MemorySystem) *SMC { return &SMC{pages: pages} }

// MarkCodePresent records that block's role-th page (0=primary, 1=
// secondary) has instruction bytes at guest physical [phys, phys+length),
// mirroring codegen_mark_code_present. It sets the block's own page_mask,
// points dirtyMaskAt at the word a future write would dirty, and ORs the
// owning page's code_present_mask (the coarse or the per-byte one, by the
// block's granularity). Block lookup does not read code_present_mask.
func (s *SMC) MarkCodePresent(b *CodeBlock, role int, phys GuestPhys, length int) {
	page := s.pages.PageFor(phys)
	off := PageOffset(phys)

	if b.flags.has(FlagByteMask) {
		page.markFinePresent(off, length)
		sr := subregionOf(off)
		// A BYTE_MASK block's footprint is bounded (MaxBlockSourceBytesFine)
		// to stay within one subregion, so the block's own mask tracks
		// bit-per-byte within that subregion, not bit-per-subregion like
		// the coarse case.
		for x := off; x < off+uint32(length); x++ {
			b.pageMask[role] |= 1 << byteBitOf(x)
		}
		page.ensureByteMasks()
		b.dirtyMaskAt[role] = &page.byteDirtyMask[sr]
		return
	}

	page.markCoarsePresent(off, length)
	spanSubregions(off, length, func(sr uint32) {
		b.pageMask[role] |= 1 << sr
	})
	b.dirtyMaskAt[role] = &page.dirtyMask
}

// NotifyWrite routes a guest write through the dirty-mask side of the
// protocol: every write_ram_page-equivalent entry point in the embedding
// emulator must call this before (or as part of) storing, so that both
// granularities of resident block see the invalidation regardless of
// which one they were compiled with, since code and data often share
// pages.
func (s *SMC) NotifyWrite(phys GuestPhys, length int) {
	page := s.pages.PageFor(phys)
	off := PageOffset(phys)
	page.markCoarseDirty(off, length)
	page.markFineDirty(off, length)
}

// CheckFlush walks the page's block list for the given role and deletes
// every block whose page_mask intersects its tracked dirty word. Every
// block that survives the pass is marked FlagInDirtyList, so it is a flush
// candidate the next time this page is checked; a block that was already
// marked from a prior pass is downgraded from WAS_RECOMPILED back to
// merely "marked", per ReconcileBlock's escalation policy. Then clears the
// page's dirty masks. Mirrors codegen_check_flush.
func (s *SMC) CheckFlush(storage *BlockStorage, page *Page, role int) {
	idx := page.listHead[role]
	for idx != invalidBlock {
		b := storage.Get(idx)
		next := b.pageListNext[role]
		if b.dirtyMaskAt[role] != nil && b.pageMask[role]&*b.dirtyMaskAt[role] != 0 {
			storage.DeleteBlock(idx)
		} else {
			if b.flags.has(FlagInDirtyList) {
				b.flags &^= FlagWasRecompiled
			}
			b.flags |= FlagInDirtyList
		}
		idx = next
	}
	page.clearDirty()
}

// ReconcileBlock runs the per-candidate revalidation policy: if idx's
// page_mask intersects its tracked dirty word on either page, flush that
// page and report invalid if idx itself was removed. A block that
// survives with FlagInDirtyList still set is
// downgraded from WAS_RECOMPILED back to merely "marked", and its SMC
// granularity escalates: BYTE_MASK if it wasn't set, NO_IMMEDIATES if it
// already was. Returns false iff idx is no longer a usable candidate.
func (s *SMC) ReconcileBlock(storage *BlockStorage, idx uint16) bool {
	b := storage.Get(idx)
	for role := 0; role < b.pageCount(); role++ {
		if b.dirtyMaskAt[role] == nil || b.pageMask[role]&*b.dirtyMaskAt[role] == 0 {
			continue
		}
		phys := b.phys
		if role == 1 {
			phys = b.phys2
		}
		s.CheckFlush(storage, s.pages.PageFor(phys), role)
		if b.flags.has(FlagInFreeList) {
			return false
		}
	}

	if b.flags.has(FlagInDirtyList) {
		b.flags &^= FlagWasRecompiled
		if b.flags.has(FlagByteMask) {
			b.flags |= FlagNoImmediates
		} else {
			b.flags |= FlagByteMask
		}
	}
	return true
}
