// sse_amd64.go - scalar SSE helpers for the amd64 backend: MOVSD/MOVSS
// loads and stores between XMM registers and memory, and MOVQ between XMM
// and general-purpose registers. The host load/store trampolines
// (trampolines.go) do not call them: their float32/float64 routines move
// the raw bit pattern through the integer load/store path. No
// integer-to-double conversion or packed-vector arithmetic is provided.
package dynarec

// sseOps is the amd64-only extension HostCodeGen doesn't expose to the
// other two backends; no other file in this core calls SSE().
type sseOps struct{ b *amd64Backend }

func (b *amd64Backend) SSE() sseOps { return sseOps{b} }

// LoadSD emits MOVSD xmm, [base+disp32] (F2 0F 10 /r), loading a 64-bit
// double from guest memory.
func (s sseOps) LoadSD(dst Register, base Register, offset int32) {
	e := s.b.e
	e.Ensure(10)
	e.EmitU8(0xF2)
	if dst.Encoding >= 8 || base.Encoding >= 8 {
		e.EmitU8(rex(false, dst.Encoding >= 8, false, base.Encoding >= 8))
	}
	e.EmitU8(0x0F)
	e.EmitU8(0x10)
	s.b.emitBaseDisp32(dst, base)
	e.EmitU32(uint32(offset))
}

// StoreSD emits MOVSD [base+disp32], xmm (F2 0F 11 /r).
func (s sseOps) StoreSD(base Register, offset int32, src Register) {
	e := s.b.e
	e.Ensure(10)
	e.EmitU8(0xF2)
	if src.Encoding >= 8 || base.Encoding >= 8 {
		e.EmitU8(rex(false, src.Encoding >= 8, false, base.Encoding >= 8))
	}
	e.EmitU8(0x0F)
	e.EmitU8(0x11)
	s.b.emitBaseDisp32(src, base)
	e.EmitU32(uint32(offset))
}

// LoadSS is LoadSD's 32-bit (float) counterpart (F3 0F 10 /r).
func (s sseOps) LoadSS(dst Register, base Register, offset int32) {
	e := s.b.e
	e.Ensure(10)
	e.EmitU8(0xF3)
	if dst.Encoding >= 8 || base.Encoding >= 8 {
		e.EmitU8(rex(false, dst.Encoding >= 8, false, base.Encoding >= 8))
	}
	e.EmitU8(0x0F)
	e.EmitU8(0x10)
	s.b.emitBaseDisp32(dst, base)
	e.EmitU32(uint32(offset))
}

// StoreSS is StoreSD's 32-bit counterpart (F3 0F 11 /r).
func (s sseOps) StoreSS(base Register, offset int32, src Register) {
	e := s.b.e
	e.Ensure(10)
	e.EmitU8(0xF3)
	if src.Encoding >= 8 || base.Encoding >= 8 {
		e.EmitU8(rex(false, src.Encoding >= 8, false, base.Encoding >= 8))
	}
	e.EmitU8(0x0F)
	e.EmitU8(0x11)
	s.b.emitBaseDisp32(src, base)
	e.EmitU32(uint32(offset))
}

// MovqXmmToGPR emits MOVQ r64, xmm (66 REX.W 0F 7E /r).
func (s sseOps) MovqXmmToGPR(dst Register, src Register) {
	e := s.b.e
	e.Ensure(5)
	e.EmitU8(0x66)
	e.EmitU8(rex(true, src.Encoding >= 8, false, dst.Encoding >= 8))
	e.EmitU8(0x0F)
	e.EmitU8(0x7E)
	e.EmitU8(modRegDirect | (src.Encoding&7)<<3 | (dst.Encoding & 7))
}

// MovqGPRToXmm emits MOVQ xmm, r64 (66 REX.W 0F 6E /r).
func (s sseOps) MovqGPRToXmm(dst Register, src Register) {
	e := s.b.e
	e.Ensure(5)
	e.EmitU8(0x66)
	e.EmitU8(rex(true, dst.Encoding >= 8, false, src.Encoding >= 8))
	e.EmitU8(0x0F)
	e.EmitU8(0x6E)
	e.EmitU8(modRegDirect | (dst.Encoding&7)<<3 | (src.Encoding & 7))
}
