// backend.go - the HostCodeGen interface every host architecture backend
// implements. All three backends implement the same interface uniformly;
// none is a special case, each simply has its own file
// (amd64_backend.go, arm64_backend.go, riscv64_backend.go).
package dynarec

// Cond is a branch condition, independent of host encoding.
type Cond int

const (
	CondAlways Cond = iota
	CondEqual
	CondNotEqual
	CondLess
	CondLessEqual
	CondGreater
	CondGreaterEqual
	CondCarry
	CondNotCarry
	CondOverflow
	CondNotOverflow
)

// HostCodeGen is the per-operation encoder contract: a write cursor
// (Emitter) plus per-operation helpers that call Ensure with their
// worst-case size before appending bytes. All register operands are
// passed as Register values (reg.go) since the translator always knows
// which physical register it is emitting against.
type HostCodeGen interface {
	Arch() HostArch

	// Attach binds the backend to the cursor it writes through; called
	// once by NewEmitter.
	Attach(e *Emitter)

	// EmitChainJump writes an unconditional jump from the current cursor
	// position to the host address target, used when Ensure must cross
	// into a freshly allocated ExecMemBlock.
	EmitChainJump(e *Emitter, target *byte)

	MovRegToReg(dst, src Register)
	MovImm64(dst Register, imm uint64)
	LoadMem(dst Register, base Register, offset int32)
	StoreMem(base Register, offset int32, src Register)

	AddRegToReg(dst, src Register)
	AddImm32(dst Register, imm int32)
	SubRegToReg(dst, src Register)
	SubImm32(dst Register, imm int32)
	AndRegToReg(dst, src Register)
	OrRegToReg(dst, src Register)
	XorRegToReg(dst, src Register)
	NotReg(dst Register)
	NegReg(dst Register)
	ShlImm(dst Register, count uint8)
	ShrImm(dst Register, count uint8)

	CmpRegToReg(a, b Register)
	CmpImm32(a Register, imm int32)
	MovzxByte(dst, src Register)

	// JumpCond emits a conditional branch with a placeholder displacement:
	// the backend's short encoding when preferShort is set and the backend
	// has one, otherwise the long form. Short forms must only be requested
	// once the measured distance is known to fit. Returns the patch site and
	// whether the short form was used, so the caller can patch it once the
	// target is known.
	JumpCond(e *Emitter, cond Cond, preferShort bool) (field *byte, short bool)
	JumpUncond(e *Emitter, preferShort bool) (field *byte, short bool)
	PatchJump(field *byte, short bool, disp int32)

	// CallHost emits a call to a fixed host function pointer, used by the
	// translator to invoke interpretive opcode handlers and by the
	// trampolines (C8) to fall back to interpretive memory functions.
	CallHost(e *Emitter, target uintptr)

	Push(r Register)
	Pop(r Register)
	Ret()
}
