// translator.go - the two-pass translator.
//
// block_init allocates or recycles a CodeBlock and links it into the block
// index and page lists; the walk drives generate_call per decoded guest
// instruction, marking SMC presence and, in the record-and-emit pass,
// compiling a CallHost to the instruction's interpretive handler through
// the fixed trampoline (trampoline_entry.go); block_end_recompile emits the
// exit thunk and flushes the host instruction cache; the cheaper block_end
// leaves a block walked-but-not-compiled "marked" for a later pass to
// upgrade. The phase ordering follows 86Box's 386_dynarec.c block loop
// (codegen_block_init / codegen_generate_call / codegen_block_end_recompile
// / codegen_block_end around its dispatch while(!cpu_block_end) loops); the
// host-code emission itself follows calling_convention.go's and
// register_tracker.go's conventions.
package dynarec

// Translator drives C6 against one HostCodeGen backend. One Translator is
// built per Dynarec core (dynarec.go); its RegisterTracker and
// CallSiteManager are reset between blocks since the core compiles one
// block at a time, on a single emulation thread.
type Translator struct {
	storage *BlockStorage
	index   *BlockIndex
	arena   *ExecArena
	smc     *SMC

	mmu     MMU
	memory  MemorySystem
	fetch   InstructionFetcher
	opcodes OpcodeTable
	fast    FastPathEmitter // optional; nil if the collaborator offers none
	irq     InterruptController

	backend  HostCodeGen
	regs     *RegisterTracker
	calls    *CallSiteManager
	registry *handlerRegistry
}

// NewTranslator binds the translator to the core's storage, index, arena,
// and SMC state, plus the collaborators its walk consults. fast and irq
// may be nil.
func NewTranslator(storage *BlockStorage, index *BlockIndex, arena *ExecArena, smc *SMC,
	mmu MMU, memory MemorySystem, fetch InstructionFetcher, opcodes OpcodeTable,
	fast FastPathEmitter, irq InterruptController, backend HostCodeGen, registry *handlerRegistry) *Translator {
	return &Translator{
		storage: storage, index: index, arena: arena, smc: smc,
		mmu: mmu, memory: memory, fetch: fetch, opcodes: opcodes, fast: fast, irq: irq,
		backend:  backend,
		regs:     NewRegisterTracker(backend.Arch()),
		calls:    NewCallSiteManager(backend),
		registry: registry,
	}
}

// BlockInit allocates a CodeBlock for (csBase, phys), captures the guest
// status subset the caller validates future candidates against, and links
// it into the primary page's tree and block list. Mirrors
// block_init(phys_addr); the dispatcher has already resolved phys via
// MMU.GetPhys before calling this.
func (t *Translator) BlockInit(startPC GuestLinear, csBase CSBase, phys GuestPhys, status uint32) (uint16, error) {
	idx, err := t.storage.NewBlock()
	if err != nil {
		return invalidBlock, err
	}
	b := t.storage.Get(idx)
	b.startPC = startPC
	b.csBase = csBase
	b.phys = phys
	b.status = status
	b.headExecBlock = invalidExecBlock

	t.index.Insert(t.storage, idx)
	t.storage.LinkIntoPageList(idx, 0, t.memory.PageFor(phys))
	return idx, nil
}

// CompileBlock runs the record-and-emit pass: walk the guest instructions
// from idx's start_pc, emitting a handler call (or inlined fast path) for
// each, then finalize with block_end_recompile.
func (t *Translator) CompileBlock(idx uint16) error {
	b := t.storage.Get(idx)
	e, err := NewEmitter(t.arena, idx, t.backend)
	if err != nil {
		return err
	}
	t.regs.Reset()
	pcReg, ok := t.regs.AllocCalleeSaved("block-resume-pc")
	if !ok {
		return newError(KindInternal, "Translator.CompileBlock", "no callee-saved register free for block-resume-pc cache")
	}

	exitSites, err := t.walk(e, b, pcReg)
	if err != nil {
		return err
	}
	t.finalizeExit(e, pcReg, exitSites)
	return t.blockEndRecompile(e, idx)
}

// MarkBlock runs the cheaper walk-without-emitting pass: it still marks
// SMC presence and grows HAS_PAGE2 membership as the candidate's
// instruction footprint is discovered, but emits no host code. Mirrors
// block_end() - the block is left "marked" so a later dispatcher pass that
// re-observes this address can upgrade it to WAS_RECOMPILED via
// CompileBlock.
func (t *Translator) MarkBlock(idx uint16) error {
	b := t.storage.Get(idx)
	_, err := t.walk(nil, b, Register{})
	return err
}

// walk performs the shared instruction loop generate_call drives: fetch,
// resolve phys, route HAS_PAGE2 membership, mark SMC presence, and - when
// e is non-nil - emit the instruction's handler call. Returns the patch
// sites collected for the exit thunk a non-nil e will later need.
func (t *Translator) walk(e *Emitter, b *CodeBlock, pcReg Register) ([]patchSite, error) {
	maxBytes := MaxBlockSourceBytes
	if b.flags.has(FlagByteMask) {
		maxBytes = MaxBlockSourceBytesFine
	}

	var exitSites []patchSite
	pc := b.startPC
	sourceBytes := 0
	primaryPage := PageOf(b.phys)
	secondPageUsed := b.flags.has(FlagHasPage2)

	for {
		opcodeIndex, fetchdat, nextPC, instrEnd, ok := t.fetch.Fetch(pc)
		if !ok {
			break // abort mid-decode: end the block here, as if it had reached its natural end
		}
		phys, ok := t.mmu.GetPhys(pc)
		if !ok {
			break
		}
		length := int(nextPC) - int(pc)
		if length <= 0 {
			length = 1
		}

		role := 0
		if PageOf(phys) != primaryPage {
			if !secondPageUsed {
				// The non-faulting lookup mirrors 86Box's own deferred
				// second-page resolution: a real page fault here must not
				// abort a block the guest PC hasn't actually reached yet.
				phys2, ok2 := t.mmu.GetPhysNoAbort(pc)
				if !ok2 {
					break
				}
				b.phys2 = phys2
				b.flags |= FlagHasPage2
				t.storage.LinkIntoPageList(indexOfBlock(t.storage, b), 1, t.memory.PageFor(phys2))
				secondPageUsed = true
			} else if phys2Page := PageOf(b.phys2); PageOf(phys) != phys2Page {
				break // a third distinct page ends the block
			}
			role = 1
		}

		t.smc.MarkCodePresent(b, role, phys, length)

		if e != nil {
			inlined := false
			handler, fastPathable := t.opcodes.Handler(opcodeIndex)
			if fastPathable && t.fast != nil {
				inlined = t.fast.EmitFastPath(t.backend, e, t.regs, opcodeIndex)
			}
			if inlined {
				t.backend.MovImm64(pcReg, uint64(nextPC))
			} else {
				site := t.emitHandlerCall(e, handler, opcodeIndex, fetchdat, pc, pcReg)
				exitSites = append(exitSites, site)
			}
		}

		sourceBytes += length
		pc = nextPC

		if instrEnd || sourceBytes >= maxBytes || t.interruptPending() {
			break
		}
	}
	return exitSites, nil
}

// interruptPending reports whether the irq collaborator has a trap or NMI
// latched, one of the walk's block-end conditions; nil-safe since irq is
// optional.
func (t *Translator) interruptPending() bool {
	if t.irq == nil {
		return false
	}
	return t.irq.TrapPending() || t.irq.NMIPending()
}

// indexOfBlock recovers b's pool index by scanning the pool for the slot
// at b's address; BlockStorage's backing array never reallocates (it is a
// fixed pool), so that address comparison holds for the lifetime of the
// process.
func indexOfBlock(s *BlockStorage, b *CodeBlock) uint16 {
	for i := range s.blocks {
		if &s.blocks[i] == b {
			return uint16(i)
		}
	}
	return invalidBlock
}

// emitHandlerCall compiles one generate_call: register h with the active
// handler registry, stage (index, fetchdat, pc) into the host's native
// integer argument registers per calling_convention.go, CallHost the fixed
// trampoline, cache the returned next-PC into pcReg, and leave a long-form
// conditional jump (taken when the handler reports blockEnd) whose target
// the caller patches once the exit thunk's address is known; the distance
// to the exit thunk is not known yet, so no short form is requested.
func (t *Translator) emitHandlerCall(e *Emitter, h Handler, opcodeIndex uint16, fetchdat uint32, pc GuestLinear, pcReg Register) patchSite {
	arch := t.backend.Arch()
	index := t.registry.register(h)

	live := t.regs.LiveCallerSaved()
	t.calls.PrepareCall(e, live)

	t.backend.MovImm64(ArgRegister(arch, 0), uint64(index))
	t.backend.MovImm64(ArgRegister(arch, 1), uint64(fetchdat))
	t.backend.MovImm64(ArgRegister(arch, 2), uint64(pc))
	t.backend.CallHost(e, handlerTrampolineAddr())

	t.calls.RestoreAfterCall(e)

	t.backend.MovRegToReg(pcReg, ReturnRegister(arch))

	t.backend.CmpImm32(SecondReturnRegister(arch), 0)
	field, short := t.backend.JumpCond(e, CondNotEqual, false)
	return patchSite{ptr: field, short: short}
}

// finalizeExit patches every early-exit site the walk collected to land
// here, then emits the block's single exit path: load the cached next-PC
// into the return-value register and return to the dispatcher. Mirrors the
// tail of block_end_recompile.
func (t *Translator) finalizeExit(e *Emitter, pcReg Register, exitSites []patchSite) {
	exitAddr := e.HostAddr()
	for _, site := range exitSites {
		t.backend.PatchJump(site.ptr, site.short, int32(ptrDiff(exitAddr, site.ptr)))
	}
	t.backend.MovRegToReg(ReturnRegister(t.backend.Arch()), pcReg)
	t.backend.Ret()
}

// blockEndRecompile finalizes a freshly compiled block: records its entry
// point, flags it WAS_RECOMPILED, clears IN_DIRTY_LIST (a block that just
// recompiled is no longer merely "marked"), and flushes the host
// instruction cache over its whole exec-block chain so the bytes just
// written are safe to execute.
func (t *Translator) blockEndRecompile(e *Emitter, idx uint16) error {
	b := t.storage.Get(idx)
	b.headExecBlock = e.HeadBlock()
	b.dataPtr = ExecOffset(t.arena.Offset(b.headExecBlock))
	b.flags |= FlagWasRecompiled
	b.flags &^= FlagInDirtyList
	t.arena.CleanBlocks(e.HeadBlock())
	return nil
}
