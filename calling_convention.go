// calling_convention.go - register preservation around a CallHost
// invocation.
//
// PrepareCall saves whichever caller-saved registers are live before a
// call and restores them after. This core only ever calls fixed Go
// function pointers (interpretive opcode handlers, memory trampolines)
// through CallHost, and the only registers a translated block cannot
// afford to lose are whichever physical registers it is using as the
// guest-register cache at that point in the block - so this reduces to
// "push what's live, call, pop it back", via the uniform Push/Pop every
// HostCodeGen backend already implements. This core never crosses a host
// ABI boundary other than its own generated code calling back into the Go
// runtime, which Go's ABI handles via CallHost's register-indirect call
// alone.
package dynarec

// CallSiteManager saves and restores the translator's live physical
// registers around a CallHost.
type CallSiteManager struct {
	backend HostCodeGen
	saved   []Register
	stack   *StackValidator
}

// NewCallSiteManager binds a manager to the backend whose Push/Pop it will
// drive. The returned manager always carries an enabled StackValidator;
// VerboseMode only adds a stderr trace of each push and pop it records.
func NewCallSiteManager(backend HostCodeGen) *CallSiteManager {
	return &CallSiteManager{backend: backend, stack: NewStackValidator()}
}

// PrepareCall pushes every live register the translator is still tracking,
// in order, so RestoreAfterCall can pop them back in the reverse order.
func (m *CallSiteManager) PrepareCall(e *Emitter, live []Register) {
	m.saved = append(m.saved[:0], live...)
	for _, r := range m.saved {
		m.backend.Push(r)
		m.stack.Push(r)
	}
}

// RestoreAfterCall pops the registers PrepareCall saved, in LIFO order.
func (m *CallSiteManager) RestoreAfterCall(e *Emitter) {
	for i := len(m.saved) - 1; i >= 0; i-- {
		m.backend.Pop(m.saved[i])
		m.stack.Pop(m.saved[i])
	}
	m.saved = m.saved[:0]
}

// integerArgOrder lists the first integer argument registers of each
// host's native C calling convention (System V AMD64 / AAPCS64 / RISC-V
// LP64D), in order. The translator (C6) uses this to place a handler
// call's (index, fetchdat, pc) triple before a CallHost, matching what
// the architecture's handler_trampoline_<arch>.s assembly shim reads them
// back out of on the other side.
func integerArgOrder(arch HostArch) []string {
	switch arch {
	case ArchAMD64:
		return []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
	case ArchARM64:
		return []string{"x0", "x1", "x2", "x3", "x4", "x5"}
	case ArchRISCV64:
		return []string{"a0", "a1", "a2", "a3", "a4", "a5"}
	default:
		return nil
	}
}

// ArgRegister returns the nth (0-based) integer argument register for
// arch, per integerArgOrder.
func ArgRegister(arch HostArch, n int) Register {
	names := integerArgOrder(arch)
	r, _ := GetRegister(arch, names[n])
	return r
}

// ReturnRegister returns the integer return-value register for arch
// (System V AMD64: RAX; AAPCS64: X0; RISC-V LP64D: A0), used to read a
// handler call's nextPC result back out of.
func ReturnRegister(arch HostArch) Register {
	switch arch {
	case ArchAMD64:
		r, _ := GetRegister(arch, "rax")
		return r
	case ArchARM64:
		r, _ := GetRegister(arch, "x0")
		return r
	case ArchRISCV64:
		r, _ := GetRegister(arch, "a0")
		return r
	default:
		return Register{}
	}
}

// SecondReturnRegister is ReturnRegister's pair (RDX/X1/A1), used for a
// handler call's blockEnd result.
func SecondReturnRegister(arch HostArch) Register {
	switch arch {
	case ArchAMD64:
		r, _ := GetRegister(arch, "rdx")
		return r
	case ArchARM64:
		r, _ := GetRegister(arch, "x1")
		return r
	case ArchRISCV64:
		r, _ := GetRegister(arch, "a1")
		return r
	default:
		return Register{}
	}
}
