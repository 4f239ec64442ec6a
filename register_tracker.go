// register_tracker.go - scratch/guest-register-cache allocation bookkeeping
// for the translator (C6).
//
// A reservation table plus an allocation stack so the two-pass translator
// can hand out a host register for a guest value and know it won't be
// silently reused for something else mid-block. A single register-name-
// keyed table parameterized by HostArch, since all three backends need the
// same discipline. No console dumps - this core has no interactive
// compiler session to print them to - but the pressure statistics
// themselves (GetRegisterPressure) are kept, for a caller deciding when to
// spill a guest register to its cache slot in memory instead of keeping it
// pinned; translator.go does not consult them.
package dynarec

// RegisterTracker tracks which host registers are currently allocated to a
// translated block's guest-register cache or scratch use.
type RegisterTracker struct {
	arch     HostArch
	inUse    map[string]bool
	purpose  map[string]string
	reserved map[string]bool
	stack    []string
	maxUsed  int
}

// NewRegisterTracker creates a tracker for arch, reserving the registers
// every block depends on (see reservedRegisters): the host stack/frame
// pointer, the link register where the ISA has one, and the register Go's
// runtime dedicates to the current goroutine's g pointer.
func NewRegisterTracker(arch HostArch) *RegisterTracker {
	rt := &RegisterTracker{
		arch:     arch,
		inUse:    make(map[string]bool),
		purpose:  make(map[string]string),
		reserved: make(map[string]bool),
	}
	for _, name := range reservedRegisters(arch) {
		rt.reserved[name] = true
	}
	return rt
}

// reservedRegisters withholds, on top of the host frame/stack pointer, the
// register Go's own runtime permanently dedicates to the current
// goroutine's g pointer on each architecture (amd64: R14, arm64: X28,
// riscv64: X27/S11). Generated code runs on the calling goroutine's own
// stack and must leave that register untouched, or the Go function a
// CallHost trampoline (trampoline_entry.go) calls into will read a
// corrupt g and crash in its stack-growth prologue.
func reservedRegisters(arch HostArch) []string {
	switch arch {
	case ArchAMD64:
		return []string{"rsp", "rbp", "r14"}
	case ArchARM64:
		return []string{"sp", "x29", "x30", "x28"}
	case ArchRISCV64:
		return []string{"sp", "ra", "s0", "s11"}
	default:
		return nil
	}
}

func callerSavedOrder(arch HostArch) []string {
	switch arch {
	case ArchAMD64:
		return []string{"rax", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "r11"}
	case ArchARM64:
		return []string{"x0", "x1", "x2", "x3", "x9", "x10", "x11", "x12", "x13", "x14", "x15"}
	case ArchRISCV64:
		return []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7", "t3", "t4", "t5", "t6"}
	default:
		return nil
	}
}

func calleeSavedOrder(arch HostArch) []string {
	switch arch {
	case ArchAMD64:
		return []string{"rbx", "r12", "r13", "r15"}
	case ArchARM64:
		return []string{"x19", "x20", "x21", "x22", "x23", "x24", "x25", "x26", "x27"}
	case ArchRISCV64:
		return []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10"}
	default:
		return nil
	}
}

// ReserveRegister marks name as never auto-allocated, e.g. a register a
// caller wants pinned to a specific guest register permanently.
func (rt *RegisterTracker) ReserveRegister(name string) { rt.reserved[name] = true }

func (rt *RegisterTracker) allocFrom(candidates []string, purpose string) (Register, bool) {
	for _, name := range candidates {
		if rt.inUse[name] || rt.reserved[name] {
			continue
		}
		rt.inUse[name] = true
		rt.purpose[name] = purpose
		rt.stack = append(rt.stack, name)
		if len(rt.inUse) > rt.maxUsed {
			rt.maxUsed = len(rt.inUse)
		}
		r, _ := GetRegister(rt.arch, name)
		return r, true
	}
	return Register{}, false
}

// Alloc allocates a caller-saved register first, falling back to
// callee-saved registers when none remain.
func (rt *RegisterTracker) Alloc(purpose string) (Register, bool) {
	if r, ok := rt.allocFrom(callerSavedOrder(rt.arch), purpose); ok {
		return r, true
	}
	return rt.allocFrom(calleeSavedOrder(rt.arch), purpose)
}

// AllocCalleeSaved allocates only from the callee-saved set, for values
// (e.g. loop counters, the guest-register-cache base pointer) that must
// survive a CallHost.
func (rt *RegisterTracker) AllocCalleeSaved(purpose string) (Register, bool) {
	return rt.allocFrom(calleeSavedOrder(rt.arch), purpose)
}

// AllocSpecific allocates exactly name, failing if it's in use or reserved.
func (rt *RegisterTracker) AllocSpecific(name string, purpose string) (Register, bool) {
	if rt.inUse[name] || rt.reserved[name] {
		return Register{}, false
	}
	rt.inUse[name] = true
	rt.purpose[name] = purpose
	rt.stack = append(rt.stack, name)
	if len(rt.inUse) > rt.maxUsed {
		rt.maxUsed = len(rt.inUse)
	}
	return GetRegister(rt.arch, name)
}

// Free releases a register back to the pool.
func (rt *RegisterTracker) Free(r Register) {
	delete(rt.inUse, r.Name)
	delete(rt.purpose, r.Name)
	for i := len(rt.stack) - 1; i >= 0; i-- {
		if rt.stack[i] == r.Name {
			rt.stack = append(rt.stack[:i], rt.stack[i+1:]...)
			break
		}
	}
}

// LiveCallerSaved returns the currently allocated caller-saved registers,
// in allocation order, for CallSiteManager.PrepareCall to preserve across
// a CallHost. Callee-saved allocations (e.g. the translator's
// block-resume-pc cache) already survive a call under the host ABI and
// need no explicit save.
func (rt *RegisterTracker) LiveCallerSaved() []Register {
	callerSet := make(map[string]bool)
	for _, n := range callerSavedOrder(rt.arch) {
		callerSet[n] = true
	}
	var out []Register
	for _, name := range rt.stack {
		if callerSet[name] {
			r, _ := GetRegister(rt.arch, name)
			out = append(out, r)
		}
	}
	return out
}

// InUse reports whether name is currently allocated.
func (rt *RegisterTracker) InUse(name string) bool { return rt.inUse[name] }

// Purpose returns the label Alloc/AllocSpecific was called with for name.
func (rt *RegisterTracker) Purpose(name string) string { return rt.purpose[name] }

// RegisterTrackerState is a snapshot for save/restore across a nested
// translation scope (e.g. a two-pass re-walk that must undo speculative
// allocation).
type RegisterTrackerState struct {
	inUse   map[string]bool
	purpose map[string]string
}

func (rt *RegisterTracker) SaveState() *RegisterTrackerState {
	s := &RegisterTrackerState{inUse: make(map[string]bool), purpose: make(map[string]string)}
	for k, v := range rt.inUse {
		s.inUse[k] = v
	}
	for k, v := range rt.purpose {
		s.purpose[k] = v
	}
	return s
}

func (rt *RegisterTracker) RestoreState(s *RegisterTrackerState) {
	rt.inUse = make(map[string]bool, len(s.inUse))
	rt.purpose = make(map[string]string, len(s.purpose))
	for k, v := range s.inUse {
		rt.inUse[k] = v
	}
	for k, v := range s.purpose {
		rt.purpose[k] = v
	}
}

// Reset clears all non-reserved allocations.
func (rt *RegisterTracker) Reset() {
	rt.inUse = make(map[string]bool)
	rt.purpose = make(map[string]string)
	rt.stack = nil
}

// RegisterPressureStats summarizes how much of the register file a block
// in progress has committed, for a caller deciding when to spill a
// guest-register-cache entry back to memory (the translator does not read
// it).
type RegisterPressureStats struct {
	CurrentUsed  int
	MaxUsed      int
	TotalRegs    int
	Pressure     float64
	IsSpillHeavy bool
}

func (rt *RegisterTracker) GetRegisterPressure() RegisterPressureStats {
	total := len(callerSavedOrder(rt.arch)) + len(calleeSavedOrder(rt.arch))
	current := len(rt.inUse)
	pressure := 0.0
	if total > 0 {
		pressure = float64(current) / float64(total)
	}
	return RegisterPressureStats{
		CurrentUsed:  current,
		MaxUsed:      rt.maxUsed,
		TotalRegs:    total,
		Pressure:     pressure,
		IsSpillHeavy: pressure > 0.8,
	}
}
