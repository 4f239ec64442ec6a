// dispatch.go - C7: the dispatch loop.
//
// Grounded on 86Box's exec386()/execx86() outer loop (386_dynarec.c /
// 386_common.c): spend a caller-given cycle budget one step at a time
// (the budget is not split into real-time periods), each step resolving
// the current (cs_base, phys) into a candidate
// block - interpreting directly when the guest has disabled the code
// cache, otherwise looking up or building a compiled block and running it
// - then servicing the abort/trap/NMI/interrupt events that block's
// execution may have raised, in the fixed priority order 86Box itself
// uses. The per-block cycle accounting follows timing.go.
package dynarec

import "unsafe"

// Exec runs the core for approximately cycles guest cycles, charging each
// block or interpreted instruction against the budget per the active
// TimingProfile, and returns once the budget is exhausted. The caller (an
// embedding emulator's own scheduler) decides how exec's real-time period
// maps to guest cycles; this core only consumes the budget it is given.
func (d *Dynarec) Exec(cycles int) {
	budget := cycles
	for budget > 0 {
		spent := d.runOnce()
		if spent <= 0 {
			spent = 1 // guarantee forward progress even on a degenerate zero-cost step
		}
		budget -= spent
	}
}

// runOnce executes one step - either a single interpreted instruction or
// one compiled block - and handles the post-step event order. Returns the
// cycles to charge against Exec's budget.
func (d *Dynarec) runOnce() int {
	pc := d.cpu.PC()
	phys, ok := d.collab.MMU.GetPhys(pc)
	if !ok {
		d.abrt.Store(true)
		return d.servicePostStep()
	}

	var cost int
	if d.cpu.CacheDisabled() {
		cost = d.interpretOne(pc)
	} else {
		cost = d.runCached(pc, phys)
	}
	return cost + d.servicePostStep()
}

// interpretOne runs exactly one guest instruction through the
// interpretive OpcodeTable directly, bypassing the translator entirely -
// the path taken while CR0.CD is set or a single-step trap is pending.
func (d *Dynarec) interpretOne(pc GuestLinear) int {
	opcodeIndex, fetchdat, _, blockEnd, ok := d.fetch.Fetch(pc)
	if !ok {
		d.abrt.Store(true)
		return d.timing.Opcode
	}
	handler, _ := d.collab.Opcodes.Handler(opcodeIndex)
	resumePC, handlerEnd := handler(fetchdat, pc)
	d.cpu.SetPC(resumePC)
	return d.timing.cost(blockEnd || handlerEnd)
}

// runCached resolves (cs_base, phys) to a compiled or markable block,
// compiling it on first encounter, running it through the host-code entry
// point on a cache hit, and writing the guest PC back from the block's
// exit value (mirrors codegen_block_init / codegen_generate_call /
// codegen_block_end_recompile).
func (d *Dynarec) runCached(pc GuestLinear, phys GuestPhys) int {
	csBase := d.cpu.CSBase()
	status := d.cpu.Status()
	idx := d.findOrCreateBlock(pc, csBase, phys, status)
	if idx == invalidBlock {
		d.abrt.Store(true)
		return d.timing.BlockStart
	}

	b := d.storage.Get(idx)
	cost := d.timing.BlockStart

	if !b.flags.has(FlagWasRecompiled) {
		if err := d.translator.CompileBlock(idx); err != nil {
			// Compilation failed (out of exec memory with no eviction
			// progress, corrupt metadata): leave the block merely marked
			// and fall back to interpreting this one instruction, so a
			// transient resource shortage degrades speed rather than
			// correctness.
			return cost + d.interpretOne(pc)
		}
		b = d.storage.Get(idx)
	}

	entry := d.arena.HostAddr(b.dataPtr)
	nextPC := GuestLinear(callCompiledBlockAsm(uintptr(unsafe.Pointer(entry))))
	d.cpu.SetPC(nextPC)
	cost += d.timing.BlockEnd
	return cost
}

// findOrCreateBlock looks up a usable candidate via the two-tier index
// (C4), reconciling it against SMC state (C5), or allocates and inserts a
// fresh one (block_init) when no candidate survives.
func (d *Dynarec) findOrCreateBlock(pc GuestLinear, csBase CSBase, phys GuestPhys, status uint32) uint16 {
	mask := d.collab.Status
	valid := func(b *CodeBlock) bool {
		if b.csBase != csBase || b.startPC != pc {
			return false
		}
		if b.status&mask.Flags != status&mask.Flags {
			return false
		}
		// Mask bits are a superset requirement, not equality: the block is
		// still usable if its compiled-time bits cover every Mask bit the
		// current cpu status has set, even if the block also carries Mask
		// bits the cpu no longer has.
		if b.status&status&mask.Mask != status&mask.Mask {
			return false
		}
		return true
	}

	idx := d.index.Lookup(d.storage, csBase, phys, valid)
	if idx != invalidBlock && !d.smc.ReconcileBlock(d.storage, idx) {
		idx = invalidBlock
	}
	if idx != invalidBlock {
		return idx
	}

	idx, err := d.translator.BlockInit(pc, csBase, phys, status)
	if err != nil {
		return invalidBlock
	}
	return idx
}

// servicePostStep runs the fixed-priority event check after every step:
// abort (with triple-fault escalation), trap flag, NMI, then a pending
// maskable interrupt if the guest has IF=1 - matching 86Box's own
// post-block handling in execx86(). Returns
// any additional cycle cost the event itself incurs (zero if nothing was
// pending).
func (d *Dynarec) servicePostStep() int {
	irq := d.collab.Irq
	if irq == nil {
		return 0
	}

	cost := 0
	if d.abrt.Load() {
		d.abrt.Store(false)
		if tripleFault := irq.DoAbort(0); tripleFault {
			irq.SoftReset()
		}
		cost += d.timing.JumpCycles
	}
	if irq.TrapPending() {
		irq.PModeInt(1, false)
		cost += d.timing.JumpCycles
	}
	if d.nmiPending.Load() && irq.NMIPending() {
		d.nmiPending.Store(false)
		irq.PModeInt(2, false)
		cost += d.timing.JumpCycles
	}
	if d.intPending.Load() && irq.MaskablePending() {
		vector := irq.Accept()
		irq.PModeInt(vector, false)
		cost += d.timing.JumpCycles
	}
	return cost
}

