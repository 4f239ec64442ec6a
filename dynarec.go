// dynarec.go - top-level wiring: Dynarec owns every component's instance
// and exposes the core operations at the package boundary
// (codegen_init/close/reset, exec, codegen_check_flush, codegen_delete_block,
// codegen_flush, codegen_timing_set).
//
// The construction order (arena before index before storage before SMC
// before translator before trampolines) follows the dependency order each component's own doc
// comment already states. The three atomic fields hold abrt/NMI-pending/
// interrupt-pending: cross-thread signals a host I/O thread sets directly
// and the dispatch loop polls every block boundary - these genuinely cross
// goroutines, so sync/atomic is the minimum that's actually correct; no
// third-party queue or pubsub fits a single three-flag handshake better.
package dynarec

import "sync/atomic"

// Config bundles Dynarec's construction-time sizing knobs. A zero Config
// uses every component's documented default.
type Config struct {
	Arch          HostArch
	BlockPoolSize int
	ExecBlocks    int
	ExecBlockSize uint32
	TimingProfile string
}

// Dynarec is one emulated CPU's dynamic-recompilation core.
type Dynarec struct {
	arena       *ExecArena
	storage     *BlockStorage
	index       *BlockIndex
	smc         *SMC
	translator  *Translator
	registry    *handlerRegistry
	tlb         *TLB
	trampolines *Trampolines
	backend     HostCodeGen

	collab Collaborators
	cpu    CPUState
	fetch  InstructionFetcher
	timing *TimingProfile

	// Cross-thread signals an embedding emulator's I/O/interrupt-delivery
	// goroutine sets directly; the dispatch loop (dispatch.go) polls them
	// at every block boundary. It clears abrt and nmiPending as it acts on
	// them; intPending stays latched until ClearIntPending.
	abrt       atomic.Bool
	nmiPending atomic.Bool
	intPending atomic.Bool
}

// NewDynarec constructs one core. fetch and fast are the collaborators
// that have no natural home inside Collaborators (collaborators.go) since
// an embedding emulator may want several Dynarec cores sharing one
// Collaborators bundle but each with its own decode/fast-path strategy.
func NewDynarec(collab Collaborators, cpu CPUState, fetch InstructionFetcher, fast FastPathEmitter, cfg Config) (*Dynarec, error) {
	arch := cfg.Arch
	if arch == ArchUnknown {
		arch = DefaultHostArch()
	}
	backend, err := newBackend(arch)
	if err != nil {
		return nil, err
	}

	poolSize := cfg.BlockPoolSize
	if poolSize == 0 {
		poolSize = DefaultBlockPoolSize
	}
	execBlocks := cfg.ExecBlocks
	if execBlocks == 0 {
		execBlocks = poolSize
	}
	blockSize := cfg.ExecBlockSize
	if blockSize == 0 {
		blockSize = DefaultExecBlockSize
	}

	arena, err := NewExecArena(execBlocks, blockSize, jumpReserve)
	if err != nil {
		return nil, err
	}

	index := NewBlockIndex(collab.Memory)
	storage := NewBlockStorage(poolSize, arena, index, collab.Memory)
	arena.SetEvictor(storage)
	smc := NewSMC(collab.Memory)

	registry := newHandlerRegistry()
	activeRegistry = registry

	translator := NewTranslator(storage, index, arena, smc,
		collab.MMU, collab.Memory, fetch, collab.Opcodes, fast, collab.Irq, backend, registry)

	tlb := NewTLB()
	trampolines, err := BuildTrampolines(arena, backend, registry, collab.Memory, tlb)
	if err != nil {
		arena.Close()
		return nil, err
	}

	profileName := cfg.TimingProfile
	if profileName == "" {
		profileName = TimingProfileName()
	}

	d := &Dynarec{
		arena:       arena,
		storage:     storage,
		index:       index,
		smc:         smc,
		translator:  translator,
		registry:    registry,
		tlb:         tlb,
		trampolines: trampolines,
		backend:     backend,
		collab:      collab,
		cpu:         cpu,
		fetch:       fetch,
		timing:      LookupTimingProfile(profileName),
	}
	return d, nil
}

func newBackend(arch HostArch) (HostCodeGen, error) {
	switch arch {
	case ArchAMD64:
		return NewAMD64Backend(), nil
	case ArchARM64:
		return NewARM64Backend(), nil
	case ArchRISCV64:
		return NewRISCV64Backend(), nil
	default:
		return nil, newError(KindBadBackend, "NewDynarec", "no HostCodeGen backend for %s", arch)
	}
}

// Close releases the arena's mmap'd backing memory. codegen_close().
func (d *Dynarec) Close() error { return d.arena.Close() }

// Reset deletes every compiled block, returning the core to its
// just-constructed state. codegen_reset().
func (d *Dynarec) Reset() { d.storage.Reset() }

// TLB returns the core's guest-virtual-page fast-path table, for the
// embedding MMU to populate via MapPage/Unmap as it establishes or
// invalidates guest page mappings.
func (d *Dynarec) TLB() *TLB { return d.tlb }

// Trampolines returns the twelve host load/store entry points (C8), for a
// FastPathEmitter to CallHost against when inlining a guest memory access.
func (d *Dynarec) Trampolines() *Trampolines { return d.trampolines }

// SetAbort latches the abrt signal, matching 86Box's cpu_state.abrt being
// set from inside a fault handler the dispatch loop has not yet unwound
// to. Cleared automatically once the dispatch loop acts on it.
func (d *Dynarec) SetAbort()        { d.abrt.Store(true) }
func (d *Dynarec) SetNMIPending()   { d.nmiPending.Store(true) }
func (d *Dynarec) SetIntPending()   { d.intPending.Store(true) }
func (d *Dynarec) ClearIntPending() { d.intPending.Store(false) }

// CodegenCheckFlush forces a coherence pass over the page containing phys,
// for an embedding emulator whose own write path (DMA, a debugger write)
// bypasses MemorySystem.Write{B,W,L,Q} and therefore SMC.NotifyWrite.
// Mirrors codegen_check_flush. Both page-role lists are walked since a
// page can simultaneously be one block's primary page and another
// block's secondary page.
func (d *Dynarec) CodegenCheckFlush(phys GuestPhys) {
	page := d.collab.Memory.PageFor(phys)
	d.smc.CheckFlush(d.storage, page, 0)
	d.smc.CheckFlush(d.storage, page, 1)
}

// CodegenDeleteBlock deletes one compiled block by pool index, for a
// debugger or a cache-size policy that wants to evict a specific block
// rather than a random one.
func (d *Dynarec) CodegenDeleteBlock(idx uint16) { d.storage.DeleteBlock(idx) }

// CodegenFlush deletes every compiled block. Distinct from Reset only in
// name, kept so callers can spell the codegen_flush operation directly.
func (d *Dynarec) CodegenFlush() { d.storage.Reset() }

// CodegenTimingSet installs a named timing profile (timing.go),
// unconditionally overriding the X86DYNAREC_TIMING startup default.
func (d *Dynarec) CodegenTimingSet(name string) { d.timing = LookupTimingProfile(name) }
