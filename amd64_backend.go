// amd64_backend.go - the primary HostCodeGen backend.
//
// One file holds the REX-prefix/ModR/M-byte encoders for every x86-64
// operation this core emits, taking reg.go Register values and writing
// through an Emitter cursor. Every CallHost target is a fixed host
// address known at emission time, so there is no symbol/relocation
// bookkeeping to carry - no PIE or Windows-PE call variants, no linker
// symbols.
package dynarec

// amd64 ModR/M mod field for register-direct addressing.
const modRegDirect = 0xC0

type amd64Backend struct {
	e *Emitter
}

// NewAMD64Backend constructs the amd64 HostCodeGen.
func NewAMD64Backend() HostCodeGen { return &amd64Backend{} }

func (b *amd64Backend) Arch() HostArch  { return ArchAMD64 }
func (b *amd64Backend) Attach(e *Emitter) { b.e = e }

func rex(w, r, x, rm bool) uint8 {
	v := uint8(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if rm {
		v |= 0x01
	}
	return v
}

// needsRex reports whether a REX prefix is structurally required even with
// w=false: either operand is an extended register (R8-R15).
func needsRex(regs ...Register) bool {
	for _, r := range regs {
		if r.Encoding >= 8 {
			return true
		}
	}
	return false
}

func (b *amd64Backend) emitRegReg(opcode byte, dst, src Register) {
	w := dst.Size == 64 || src.Size == 64
	if w || needsRex(dst, src) {
		b.e.EmitU8(rex(w, src.Encoding >= 8, false, dst.Encoding >= 8))
	}
	b.e.EmitU8(opcode)
	b.e.EmitU8(modRegDirect | (src.Encoding&7)<<3 | (dst.Encoding & 7))
}

func (b *amd64Backend) MovRegToReg(dst, src Register) {
	b.e.Ensure(4)
	b.emitRegReg(0x89, dst, src)
}

// MovImm64 emits MOV r64, imm64 (REX.W + B8+r + 8-byte immediate), the
// only move form that can materialize a full 64-bit host address (used to
// build CallHost's target register and to load guest-register-cache base
// pointers).
func (b *amd64Backend) MovImm64(dst Register, imm uint64) {
	b.e.Ensure(10)
	b.e.EmitU8(rex(true, false, false, dst.Encoding >= 8))
	b.e.EmitU8(0xB8 + dst.Encoding&7)
	b.e.EmitU64(imm)
}

// sib/modrm helper for [base + disp32] addressing. rsp/r12 (encoding&7==4)
// require an explicit SIB byte with no index; this core only ever needs a
// plain base.
func (b *amd64Backend) emitBaseDisp32(regField Register, base Register) {
	b.e.EmitU8(0x80 | (regField.Encoding&7)<<3 | (base.Encoding & 7))
	if base.Encoding&7 == 4 {
		b.e.EmitU8(0x24) // SIB: scale=0, index=none, base=rsp/r12
	}
}

func (b *amd64Backend) LoadMem(dst Register, base Register, offset int32) {
	b.e.Ensure(9)
	w := dst.Size == 64
	b.e.EmitU8(rex(w, dst.Encoding >= 8, false, base.Encoding >= 8))
	b.e.EmitU8(0x8B)
	b.emitBaseDisp32(dst, base)
	b.e.EmitU32(uint32(offset))
}

func (b *amd64Backend) StoreMem(base Register, offset int32, src Register) {
	b.e.Ensure(9)
	w := src.Size == 64
	b.e.EmitU8(rex(w, src.Encoding >= 8, false, base.Encoding >= 8))
	b.e.EmitU8(0x89)
	b.emitBaseDisp32(src, base)
	b.e.EmitU32(uint32(offset))
}

func (b *amd64Backend) AddRegToReg(dst, src Register) { b.e.Ensure(4); b.emitRegReg(0x01, dst, src) }
func (b *amd64Backend) SubRegToReg(dst, src Register) { b.e.Ensure(4); b.emitRegReg(0x29, dst, src) }
func (b *amd64Backend) AndRegToReg(dst, src Register) { b.e.Ensure(4); b.emitRegReg(0x21, dst, src) }
func (b *amd64Backend) OrRegToReg(dst, src Register)  { b.e.Ensure(4); b.emitRegReg(0x09, dst, src) }
func (b *amd64Backend) XorRegToReg(dst, src Register) { b.e.Ensure(4); b.emitRegReg(0x31, dst, src) }
func (b *amd64Backend) CmpRegToReg(a, b2 Register)    { b.e.Ensure(4); b.emitRegReg(0x39, a, b2) }

// groupImm32 emits the 0x81 /digit id group (ADD/SUB/AND/OR/XOR/CMP with a
// 32-bit immediate) against dst.
func (b *amd64Backend) groupImm32(digit uint8, dst Register, imm int32) {
	b.e.Ensure(7)
	w := dst.Size == 64
	if w || needsRex(dst) {
		b.e.EmitU8(rex(w, false, false, dst.Encoding >= 8))
	}
	b.e.EmitU8(0x81)
	b.e.EmitU8(modRegDirect | digit<<3 | (dst.Encoding & 7))
	b.e.EmitU32(uint32(imm))
}

func (b *amd64Backend) AddImm32(dst Register, imm int32) { b.groupImm32(0, dst, imm) }
func (b *amd64Backend) SubImm32(dst Register, imm int32) { b.groupImm32(5, dst, imm) }
func (b *amd64Backend) CmpImm32(a Register, imm int32)    { b.groupImm32(7, a, imm) }

// group1F7 emits the F7 /digit unary group (NOT/NEG).
func (b *amd64Backend) group1F7(digit uint8, dst Register) {
	b.e.Ensure(3)
	w := dst.Size == 64
	if w || needsRex(dst) {
		b.e.EmitU8(rex(w, false, false, dst.Encoding >= 8))
	}
	b.e.EmitU8(0xF7)
	b.e.EmitU8(modRegDirect | digit<<3 | (dst.Encoding & 7))
}

func (b *amd64Backend) NotReg(dst Register) { b.group1F7(2, dst) }
func (b *amd64Backend) NegReg(dst Register) { b.group1F7(3, dst) }

// shiftImm emits the C1 /digit ib group (SHL/SHR by an immediate count).
func (b *amd64Backend) shiftImm(digit uint8, dst Register, count uint8) {
	b.e.Ensure(4)
	w := dst.Size == 64
	if w || needsRex(dst) {
		b.e.EmitU8(rex(w, false, false, dst.Encoding >= 8))
	}
	b.e.EmitU8(0xC1)
	b.e.EmitU8(modRegDirect | digit<<3 | (dst.Encoding & 7))
	b.e.EmitU8(count)
}

func (b *amd64Backend) ShlImm(dst Register, count uint8) { b.shiftImm(4, dst, count) }
func (b *amd64Backend) ShrImm(dst Register, count uint8) { b.shiftImm(5, dst, count) }

func (b *amd64Backend) MovzxByte(dst, src Register) {
	b.e.Ensure(4)
	b.e.EmitU8(rex(dst.Size == 64, dst.Encoding >= 8, false, src.Encoding >= 8))
	b.e.EmitU8(0x0F)
	b.e.EmitU8(0xB6)
	b.e.EmitU8(modRegDirect | (dst.Encoding&7)<<3 | (src.Encoding & 7))
}

// condCode maps a backend-neutral Cond to the x86 Jcc low nibble.
func condCode(c Cond) uint8 {
	switch c {
	case CondEqual:
		return 0x4
	case CondNotEqual:
		return 0x5
	case CondLess:
		return 0xC
	case CondGreaterEqual:
		return 0xD
	case CondLessEqual:
		return 0xE
	case CondGreater:
		return 0xF
	case CondCarry:
		return 0x2
	case CondNotCarry:
		return 0x3
	case CondOverflow:
		return 0x0
	case CondNotOverflow:
		return 0x1
	default:
		return 0x4
	}
}

func (b *amd64Backend) JumpCond(e *Emitter, cond Cond, preferShort bool) (*byte, bool) {
	if preferShort {
		e.Ensure(2)
		e.EmitU8(0x70 | condCode(cond))
		return e.Branch8(), true
	}
	e.Ensure(6)
	e.EmitU8(0x0F)
	e.EmitU8(0x80 | condCode(cond))
	return e.Branch32(), false
}

func (b *amd64Backend) JumpUncond(e *Emitter, preferShort bool) (*byte, bool) {
	if preferShort {
		e.Ensure(2)
		e.EmitU8(0xEB)
		return e.Branch8(), true
	}
	e.Ensure(5)
	e.EmitU8(0xE9)
	return e.Branch32(), false
}

// PatchJump takes disp measured from the displacement field itself, as every
// caller computes it, and stores it relative to the byte immediately past
// the field, where x86 measures branch displacements from.
func (b *amd64Backend) PatchJump(field *byte, short bool, disp int32) {
	if short {
		PatchBranch8(field, int8(disp-1))
		return
	}
	PatchBranch32(field, disp-4)
}

// EmitChainJump writes a near JMP rel32 from the cursor's current position
// to target, computed relative to the byte immediately past the operand.
func (b *amd64Backend) EmitChainJump(e *Emitter, target *byte) {
	e.EmitU8(0xE9)
	field := e.Branch32()
	disp := ptrDiff(target, field) - 4
	PatchBranch32(field, int32(disp))
}

// CallHost loads target into a scratch register (r11, never a guest-
// register-cache or calling-convention register) and issues a register-
// indirect call. A call rel32 would require the host heap and the exec
// arena to stay within 2 GiB of each other for the lifetime of the
// process; Go's garbage-collected heap gives no such guarantee, so every
// host call is indirect through a materialized absolute address.
func (b *amd64Backend) CallHost(e *Emitter, target uintptr) {
	scratch := amd64Registers["r11"]
	e.Ensure(10)
	b.MovImm64(scratch, uint64(target))
	e.Ensure(3)
	e.EmitU8(rex(false, false, false, true))
	e.EmitU8(0xFF)
	e.EmitU8(modRegDirect | 2<<3 | (scratch.Encoding & 7))
}

func (b *amd64Backend) Push(r Register) {
	b.e.Ensure(2)
	if r.Encoding >= 8 {
		b.e.EmitU8(rex(false, false, false, true))
	}
	b.e.EmitU8(0x50 + r.Encoding&7)
}

func (b *amd64Backend) Pop(r Register) {
	b.e.Ensure(2)
	if r.Encoding >= 8 {
		b.e.EmitU8(rex(false, false, false, true))
	}
	b.e.EmitU8(0x58 + r.Encoding&7)
}

func (b *amd64Backend) Ret() {
	b.e.Ensure(1)
	b.e.EmitU8(0xC3)
}
