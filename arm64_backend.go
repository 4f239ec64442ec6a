// arm64_backend.go - the ARM64 HostCodeGen backend.
//
// MOVZ/MOVK immediate loading, the ORR-with-XZR move idiom, SUBS-with-XZR
// compare idiom, B.cond/B branch encoding, wired onto the Emitter cursor and
// Register-struct operand contract - no string-keyed symbol table or
// relocation bookkeeping, since this core never links a symbol table; every
// branch target is either a known host address
// (EmitChainJump, CallHost) or a later-patched offset within the same
// emitted stream (JumpCond/JumpUncond).
package dynarec

import "unsafe"

type arm64Backend struct {
	e *Emitter
}

// NewARM64Backend constructs the ARM64 HostCodeGen.
func NewARM64Backend() HostCodeGen { return &arm64Backend{} }

func (b *arm64Backend) Arch() HostArch    { return ArchARM64 }
func (b *arm64Backend) Attach(e *Emitter) { b.e = e }

func (b *arm64Backend) emitWord(instr uint32) {
	b.e.Ensure(4)
	b.e.EmitU32(instr)
}

// emitWordAt is emitWord but returns the host address the word was written
// at, for later patching by PatchJump.
func (b *arm64Backend) emitWordAt(instr uint32) *byte {
	b.e.Ensure(4)
	p := b.e.HostAddr()
	b.e.EmitU32(instr)
	return p
}

func sf(r Register) uint32 {
	if r.Size == 64 {
		return 1
	}
	return 0
}

// MovRegToReg emits ORR Xd, XZR, Xm - the ARM64 register-move idiom, since
// ARM64 has no plain MOV Rd, Rm opcode.
func (b *arm64Backend) MovRegToReg(dst, src Register) {
	base := uint32(0x2A0003E0)
	if dst.Size == 64 {
		base = 0xAA0003E0
	}
	b.emitWord(base | uint32(src.Encoding&31)<<16 | uint32(dst.Encoding&31))
}

// MovImm64 materializes a full 64-bit immediate with MOVZ followed by up to
// three MOVK instructions, one per 16-bit chunk.
func (b *arm64Backend) MovImm64(dst Register, imm uint64) {
	rd := uint32(dst.Encoding & 31)
	b.emitWord(0xD2800000 | uint32(imm&0xFFFF)<<5 | rd)
	for hw := uint32(1); hw < 4; hw++ {
		chunk := uint32((imm >> (hw * 16)) & 0xFFFF)
		if chunk == 0 {
			continue
		}
		b.emitWord(0xF2800000 | hw<<21 | chunk<<5 | rd)
	}
}

// addrToScratch materializes base+offset into x16, for load/store
// displacements outside LDR/STR's 12-bit scaled-immediate range.
func (b *arm64Backend) addrToScratch(base Register, offset int32) Register {
	scratch := arm64Registers["x16"]
	if offset >= 0 && offset <= 4095 {
		b.emitWord(0x91000000 | uint32(offset&0xFFF)<<10 | uint32(base.Encoding&31)<<5 | uint32(scratch.Encoding&31))
	} else if offset < 0 && -offset <= 4095 {
		b.emitWord(0xD1000000 | uint32((-offset)&0xFFF)<<10 | uint32(base.Encoding&31)<<5 | uint32(scratch.Encoding&31))
	} else {
		b.MovImm64(scratch, uint64(int64(offset)))
		b.emitWord(0x8B000000 | uint32(scratch.Encoding&31)<<16 | uint32(base.Encoding&31)<<5 | uint32(scratch.Encoding&31))
	}
	return scratch
}

func (b *arm64Backend) LoadMem(dst Register, base Register, offset int32) {
	addr := b.addrToScratch(base, offset)
	op := uint32(0xF9400000) // LDR Xt, [Xn]
	if dst.Size != 64 {
		op = 0xB9400000 // LDR Wt, [Xn]
	}
	b.emitWord(op | uint32(addr.Encoding&31)<<5 | uint32(dst.Encoding&31))
}

func (b *arm64Backend) StoreMem(base Register, offset int32, src Register) {
	addr := b.addrToScratch(base, offset)
	op := uint32(0xF9000000) // STR Xt, [Xn]
	if src.Size != 64 {
		op = 0xB9000000 // STR Wt, [Xn]
	}
	b.emitWord(op | uint32(addr.Encoding&31)<<5 | uint32(src.Encoding&31))
}

func (b *arm64Backend) AddRegToReg(dst, src Register) {
	op := uint32(0x0B000000)
	if dst.Size == 64 {
		op = 0x8B000000
	}
	b.emitWord(op | uint32(src.Encoding&31)<<16 | uint32(dst.Encoding&31)<<5 | uint32(dst.Encoding&31))
}

func (b *arm64Backend) SubRegToReg(dst, src Register) {
	op := uint32(0x4B000000)
	if dst.Size == 64 {
		op = 0xCB000000
	}
	b.emitWord(op | uint32(src.Encoding&31)<<16 | uint32(dst.Encoding&31)<<5 | uint32(dst.Encoding&31))
}

func (b *arm64Backend) AndRegToReg(dst, src Register) {
	op := uint32(0x0A000000)
	if dst.Size == 64 {
		op = 0x8A000000
	}
	b.emitWord(op | uint32(src.Encoding&31)<<16 | uint32(dst.Encoding&31)<<5 | uint32(dst.Encoding&31))
}

func (b *arm64Backend) OrRegToReg(dst, src Register) {
	op := uint32(0x2A000000)
	if dst.Size == 64 {
		op = 0xAA000000
	}
	b.emitWord(op | uint32(src.Encoding&31)<<16 | uint32(dst.Encoding&31)<<5 | uint32(dst.Encoding&31))
}

func (b *arm64Backend) XorRegToReg(dst, src Register) {
	op := uint32(0x4A000000)
	if dst.Size == 64 {
		op = 0xCA000000
	}
	b.emitWord(op | uint32(src.Encoding&31)<<16 | uint32(dst.Encoding&31)<<5 | uint32(dst.Encoding&31))
}

// NotReg emits MVN Xd, Xd (ORN Xd, XZR, Xd).
func (b *arm64Backend) NotReg(dst Register) {
	op := uint32(0x2A2003E0)
	if dst.Size == 64 {
		op = 0xAA2003E0
	}
	b.emitWord(op | uint32(dst.Encoding&31)<<16 | uint32(dst.Encoding&31))
}

// NegReg emits NEG Xd, Xd (SUB Xd, XZR, Xd).
func (b *arm64Backend) NegReg(dst Register) {
	op := uint32(0x4B0003E0)
	if dst.Size == 64 {
		op = 0xCB0003E0
	}
	b.emitWord(op | uint32(dst.Encoding&31)<<16 | uint32(dst.Encoding&31))
}

// shiftReg materializes count into x16 and emits the register-shift form
// (LSLV/LSRV), avoiding ARM64's awkward UBFM-based immediate shift encoding
// for a count known only at translate time.
func (b *arm64Backend) shiftReg(opcode uint32, dst Register, count uint8) {
	scratch := arm64Registers["x16"]
	b.MovImm64(scratch, uint64(count))
	base := uint32(0x1AC00000) | opcode
	if dst.Size == 64 {
		base = 0x9AC00000 | opcode
	}
	b.emitWord(base | uint32(scratch.Encoding&31)<<16 | uint32(dst.Encoding&31)<<5 | uint32(dst.Encoding&31))
}

func (b *arm64Backend) ShlImm(dst Register, count uint8) { b.shiftReg(0x2000, dst, count) } // LSLV
func (b *arm64Backend) ShrImm(dst Register, count uint8) { b.shiftReg(0x2400, dst, count) } // LSRV

// CmpRegToReg emits SUBS XZR, Xn, Xm (CMP Xn, Xm).
func (b *arm64Backend) CmpRegToReg(a, b2 Register) {
	op := uint32(0x6B000000)
	if a.Size == 64 {
		op = 0xEB000000
	}
	b.emitWord(op | uint32(b2.Encoding&31)<<16 | uint32(a.Encoding&31)<<5 | 31)
}

// CmpImm32 materializes imm into x16 when it exceeds the 12-bit immediate
// range SUBS can encode directly.
func (b *arm64Backend) CmpImm32(a Register, imm int32) {
	if imm >= 0 && imm <= 4095 {
		op := uint32(0x71000000)
		if a.Size == 64 {
			op = 0xF1000000
		}
		b.emitWord(op | uint32(imm&0xFFF)<<10 | uint32(a.Encoding&31)<<5 | 31)
		return
	}
	scratch := arm64Registers["x16"]
	b.MovImm64(scratch, uint64(int64(imm)))
	b.CmpRegToReg(a, scratch)
}

// MovzxByte emits UXTB Wd, Wn (UBFM Wd, Wn, #0, #7); writing the 32-bit
// form zeroes the upper 32 bits of Xd for free.
func (b *arm64Backend) MovzxByte(dst, src Register) {
	b.emitWord(0x53001C00 | uint32(src.Encoding&31)<<5 | uint32(dst.Encoding&31))
}

func armCondCode(c Cond) uint32 {
	switch c {
	case CondEqual:
		return 0x0
	case CondNotEqual:
		return 0x1
	case CondCarry:
		return 0x2
	case CondNotCarry:
		return 0x3
	case CondOverflow:
		return 0x6
	case CondNotOverflow:
		return 0x7
	case CondLess:
		return 0xB
	case CondGreaterEqual:
		return 0xA
	case CondLessEqual:
		return 0xD
	case CondGreater:
		return 0xC
	default:
		return 0x0
	}
}

// JumpCond emits B.cond with a zero placeholder offset. ARM64 has no
// short/long pair of branch forms (B.cond carries a 19-bit and B a 26-bit
// word-granular offset), so preferShort is accepted for interface symmetry
// with the other backends and otherwise ignored.
func (b *arm64Backend) JumpCond(e *Emitter, cond Cond, preferShort bool) (*byte, bool) {
	field := b.emitWordAt(0x54000000 | armCondCode(cond))
	return field, false
}

func (b *arm64Backend) JumpUncond(e *Emitter, preferShort bool) (*byte, bool) {
	field := b.emitWordAt(0x14000000)
	return field, false
}

func readWord(p *byte) uint32 {
	b := (*[4]byte)(unsafe.Pointer(p))
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func writeWord(p *byte, v uint32) {
	b := (*[4]byte)(unsafe.Pointer(p))
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// PatchJump rewrites the immediate field of a previously emitted B.cond or B
// in place, identifying which form it is from the opcode bits already
// written at the site (B.cond's top byte is always 0x54).
func (b *arm64Backend) PatchJump(field *byte, short bool, disp int32) {
	existing := readWord(field)
	instrs := uint32(disp / 4)
	if existing&0xFF000000 == 0x54000000 {
		writeWord(field, (existing &^ 0x00FFFFE0)|((instrs&0x7FFFF)<<5))
		return
	}
	writeWord(field, (existing &^ 0x03FFFFFF)|(instrs&0x03FFFFFF))
}

// EmitChainJump writes an unconditional B to a known host address, patching
// its own just-written word immediately since the target is already known.
// The word is written straight into the jump reserve, without Ensure.
func (b *arm64Backend) EmitChainJump(e *Emitter, target *byte) {
	field := e.HostAddr()
	e.EmitU32(0x14000000)
	disp := ptrDiff(target, field)
	b.PatchJump(field, false, int32(disp))
}

// CallHost loads target into x16 (never a guest-register-cache register)
// and issues BLR, ARM64's register-indirect call - the equivalent of the
// amd64 backend's CALL r11 and for the same reason: BL's displacement is
// limited to +-128MiB, far short of covering an arbitrary Go heap address.
func (b *arm64Backend) CallHost(e *Emitter, target uintptr) {
	scratch := arm64Registers["x16"]
	b.MovImm64(scratch, uint64(target))
	b.emitWord(0xD63F0000 | uint32(scratch.Encoding&31)<<5)
}

// Push emits STR Xt, [SP, #-16]! (pre-indexed), keeping SP 16-byte aligned
// even though only 8 bytes are live, since ARM64 requires SP alignment at
// any point it's used as a base register.
func (b *arm64Backend) Push(r Register) {
	b.emitWord(0xF81F0FE0 | uint32(r.Encoding&31))
}

// Pop emits LDR Xt, [SP], #16 (post-indexed).
func (b *arm64Backend) Pop(r Register) {
	b.emitWord(0xF84107E0 | uint32(r.Encoding&31))
}

func (b *arm64Backend) Ret() {
	b.emitWord(0xD65F03C0)
}
