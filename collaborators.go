// collaborators.go - the Go interfaces the core consumes from the rest of
// the emulator. Defining these as interfaces rather than importing a
// concrete emulator package keeps the core testable standalone;
// dynarec_fakes_test.go supplies minimal fakes for each.
package dynarec

// MMU resolves guest linear addresses to physical addresses.
type MMU interface {
	// GetPhys resolves virt to a physical address, setting abrt and
	// returning ok=false on a guest page fault.
	GetPhys(virt GuestLinear) (phys GuestPhys, ok bool)
	// GetPhysNoAbort is the non-faulting variant used for speculative
	// lookups (e.g. probing the second page of a two-page block).
	GetPhysNoAbort(virt GuestLinear) (phys GuestPhys, ok bool)
}

// MemorySystem is the interpretive memory layer: the host's view of guest
// RAM, plus the fast read used by the interpreter path, plus the per-page
// metadata this core's SMC protocol (C5) and block index (C4) attach
// themselves to.
type MemorySystem interface {
	// FastReadL fetches one 32-bit guest-linear-addressed word for the
	// interpreter path; may set abrt on fault.
	FastReadL(addr GuestLinear) (uint32, bool)

	ReadB(addr GuestLinear) (uint8, bool)
	ReadW(addr GuestLinear) (uint16, bool)
	ReadL(addr GuestLinear) (uint32, bool)
	ReadQ(addr GuestLinear) (uint64, bool)
	WriteB(addr GuestLinear, v uint8) bool
	WriteW(addr GuestLinear, v uint16) bool
	WriteL(addr GuestLinear, v uint32) bool
	WriteQ(addr GuestLinear, v uint64) bool

	// PageFor returns the stable *Page metadata for a physical address's
	// containing page, creating it on first reference. Never nil.
	PageFor(phys GuestPhys) *Page
}

// Handler is one guest opcode's interpretive semantic function, matching
// the shape of an x86_opcodes[] entry: it consumes already-fetched operand
// bytes and the PC at decode time, executes the instruction's effect on
// CPU/memory state, and returns the PC to resume at plus whether the
// instruction ends the current block (a compiled block then exits to the
// dispatcher right after the call).
type Handler func(fetchdat uint32, pc GuestLinear) (nextPC GuestLinear, blockEnd bool)

// OpcodeTable is the guest instruction decoder the translator and
// dispatcher consult: a table of 1024 function pointers indexed by
// (opcode | op32_flag) & 0x3ff.
type OpcodeTable interface {
	// Handler returns the interpretive handler for a decoded opcode index
	// (already combined with the op32 flag and masked to 0x3ff by the
	// caller) and whether the translator's fast-path inliner recognizes
	// it (mov/add/simple arithmetic between registers).
	Handler(opcodeIndex uint16) (h Handler, fastPathable bool)
}

// InstructionFetcher decodes the guest instruction at pc far enough for
// the translator's walk to drive generate_call and its block-end
// predicates: the opcode index already combined with the op32 flag and
// masked to 0x3ff (matching OpcodeTable.Handler's argument), the raw
// operand bytes already fetched (fetchdat), the PC to resume at, and
// whether this instruction sets cpu_block_end.
type InstructionFetcher interface {
	Fetch(pc GuestLinear) (opcodeIndex uint16, fetchdat uint32, nextPC GuestLinear, blockEnd bool, ok bool)
}

// FastPathEmitter is an optional OpcodeTable capability: an opcode index
// OpcodeTable.Handler reported fastPathable for can supply a generic
// inline host-code emission instead of a CallHost to the interpretive
// handler. Decoding which guest operands the fast path applies to is
// entirely the collaborator's concern - this core only offers the hook,
// inlining a fast path when the opcode is on the fast-path list.
// EmitFastPath returns false to fall back to the normal interpretive call
// for this instruction after all.
type FastPathEmitter interface {
	EmitFastPath(backend HostCodeGen, e *Emitter, regs *RegisterTracker, opcodeIndex uint16) bool
}

// CPUState exposes the guest program-counter and mode bits the dispatch
// loop needs to find the next block and choose interpret-vs-cached,
// without this core owning any guest register state itself - guest state
// lives entirely with the embedding emulator; Handler closures mutate it
// directly.
type CPUState interface {
	// PC is the guest linear address of the next instruction/block; the
	// dispatcher resolves it with phys := MMU.GetPhys(PC()) and looks the
	// block up by (CSBase(), phys).
	PC() GuestLinear
	// SetPC writes back the guest linear address a block or interpreted
	// instruction exited at, so the dispatch loop's next iteration (and
	// any Handler it calls) sees a consistent cpu_state.pc.
	SetPC(pc GuestLinear)
	CSBase() CSBase
	// Status captures the CPU-state flag subset a candidate CodeBlock is
	// validated against (types.go's StatusMask).
	Status() uint32
	// CacheDisabled reports CR0.CD set or the single-step trap flag
	// active, either of which forces the interpreter path for this
	// iteration.
	CacheDisabled() bool
}

// InterruptController is the PIC/NMI/trap surface the dispatch loop polls
// at block boundaries.
type InterruptController interface {
	// TrapPending reports whether the single-step trap flag was latched
	// during the block just executed.
	TrapPending() bool
	// NMIPending reports a pending, unmasked NMI.
	NMIPending() bool
	// MaskablePending reports the PIC has an interrupt ready and IF=1;
	// Accept() performs the INTA cycle and returns the vector.
	MaskablePending() bool
	Accept() (vector uint8)
	// PModeInt synthesizes an interrupt/exception at the given vector,
	// as the dispatcher does for INT 1 (trap), INT 2 (NMI), and abort
	// escalation.
	PModeInt(vector uint8, software bool)
	// DoAbort invokes the guest's abort handler for the given fault
	// code; returning true signals a double/triple fault that the
	// dispatcher must escalate.
	DoAbort(code uint32) (tripleFault bool)
	// SoftReset performs softresetx86(): flush every block and reset
	// guest state, used on triple fault.
	SoftReset()
}

// PlatformMemory is the shape of an opaque executable-memory provider
// (platform-specific page-granularity mmap). This core's own ExecArena
// (exec_arena.go) implements its allocator directly via
// golang.org/x/sys/unix.Mmap; NewDynarec does not consult a
// PlatformMemory, so one placed in Collaborators.Platform is not used to
// back the arena.
type PlatformMemory interface {
	Mmap(size int, executable bool) ([]byte, error)
	Munmap(b []byte) error
}

// Collaborators bundles every interface the core needs from its host, so
// construction (dynarec.go) takes one struct instead of five parameters.
type Collaborators struct {
	MMU      MMU
	Memory   MemorySystem
	Opcodes  OpcodeTable
	Irq      InterruptController
	Platform PlatformMemory // optional; not consulted - the core always uses its own ExecArena

	// Status is the guest-CPU-model-specific subset of status bits a
	// candidate CodeBlock is validated against (types.go's StatusMask). A
	// zero value tracks no bits, so every block with matching (cs_base,
	// phys) is considered a hit whatever status it was compiled under -
	// correct for a guest mode that never changes operand/stack-size
	// defaults mid-run. For one that does, a zero value lets a block
	// compiled under one status run under another; SMC.ReconcileBlock only
	// catches code whose bytes changed.
	Status StatusMask
}
