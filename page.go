// page.go - per-page SMC metadata bit math for the Page type.
//
// The coarse/fine subregion math below mirrors 86Box's
// PAGE_MASK_SHIFT/PAGE_MASK_MASK scheme from codegen.h, adapted to the
// dedicated byte-granularity arrays types.go declares
// (byteCodePresentMask/byteDirtyMask, 64 words of 64 bits each covering
// one 4 KiB page byte-for-bit) rather than 86Box's trick of reusing the
// coarse word's 64 bits as a byte mask within one 64-byte subregion.
package dynarec

const (
	// subregionShift/subregionMask convert a page-relative byte offset to
	// the 64-byte subregion it falls in, used by both granularities: the
	// coarse mask's bit index directly, and the fine mask's word index.
	subregionShift = 6
	subregionMask  = 63
)

// subregionOf returns the 64-byte subregion index (0..63) a page-relative
// offset falls in.
func subregionOf(pageOffset uint32) uint32 { return (pageOffset >> subregionShift) & subregionMask }

// byteBitOf returns the bit within its subregion's fine-mask word a
// page-relative offset corresponds to.
func byteBitOf(pageOffset uint32) uint32 { return pageOffset & subregionMask }

// spanSubregions calls f once for every 64-byte subregion the half-open
// byte range [start, start+length) touches.
func spanSubregions(start uint32, length int, f func(subregion uint32)) {
	if length <= 0 {
		return
	}
	end := start + uint32(length) - 1
	for sr := subregionOf(start); ; sr++ {
		f(sr)
		if sr == subregionOf(end) {
			return
		}
	}
}

// markCoarsePresent ORs in the page's coarse code_present_mask bit for
// every subregion [start, start+length) touches.
func (p *Page) markCoarsePresent(start uint32, length int) {
	spanSubregions(start, length, func(sr uint32) {
		p.codePresentMask |= 1 << sr
	})
}

// markFinePresent ORs in the page's fine byte_code_present_mask bits for
// every byte [start, start+length) touches, allocating the fine arrays on
// first use.
func (p *Page) markFinePresent(start uint32, length int) {
	p.ensureByteMasks()
	if length <= 0 {
		return
	}
	for off := start; off < start+uint32(length); off++ {
		p.byteCodePresentMask[subregionOf(off)] |= 1 << byteBitOf(off)
	}
}

// markCoarseDirty ORs in the page's coarse dirty_mask bit for every
// subregion a guest write to [start, start+length) touches.
func (p *Page) markCoarseDirty(start uint32, length int) {
	spanSubregions(start, length, func(sr uint32) {
		p.dirtyMask |= 1 << sr
	})
}

// markFineDirty ORs in the page's fine byte_dirty_mask bits for every byte
// a guest write to [start, start+length) touches.
func (p *Page) markFineDirty(start uint32, length int) {
	p.ensureByteMasks()
	if length <= 0 {
		return
	}
	for off := start; off < start+uint32(length); off++ {
		p.byteDirtyMask[subregionOf(off)] |= 1 << byteBitOf(off)
	}
}

// clearDirty zeroes both the coarse and fine dirty masks, called after
// check_flush has removed every block the current dirty state invalidates.
func (p *Page) clearDirty() {
	p.dirtyMask = 0
	for i := range p.byteDirtyMask {
		p.byteDirtyMask[i] = 0
	}
}
