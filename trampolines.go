// trampolines.go - C8: the host load/store trampolines.
//
// Emitted once, at core construction, into the first exec block: twelve
// small fixed routines (byte/word/long/quad load+store, plus float32/
// float64 load+store reusing the long/quad bit patterns, since this core
// has no FPU semantics of its own to apply to them) that test a
// process-wide TLB array before falling back to the interpretive memory
// layer. Grounded directly on 86Box's readlookup2/writelookup2 test and on
// the same generic call-bridge trampoline_entry.go already built for C6's
// handler calls, reused here unchanged for the slow-path fallback.
//
// The translator itself never calls these: they exist for an embedding
// FastPathEmitter (collaborators.go) to CallHost directly when inlining a
// guest memory access, instead of falling back to a full interpretive
// handler call. A trampoline leaves its result in ReturnRegister and an
// abrt flag (0 ok, 1 fault) in SecondReturnRegister, in the same
// convention calling_convention.go already defines for handler calls; it
// is the FastPathEmitter's responsibility to branch to the block's exit
// path on a nonzero abrt flag, exactly as emitHandlerCall does.
package dynarec

import "unsafe"

// tlbBits covers the full 32-bit guest virtual address space at 4 KiB
// page granularity (32 - 12 = 20 bits).
const tlbBits = 20
const tlbSize = 1 << tlbBits
const tlbMask = tlbSize - 1

// tlbUnmapped is the "no fast-path base" sentinel, matching 86Box's use of
// -1 in readlookup2/writelookup2.
var tlbUnmapped = ^uintptr(0)

// TLB is the core-owned process-wide fast-path lookup the twelve
// trampolines index directly: one host base pointer per guest virtual
// page, for reads and (separately, since a read-only page leaves the
// write slot unmapped) writes.
type TLB struct {
	read  []uintptr
	write []uintptr
}

// NewTLB allocates both arrays, every entry starting unmapped.
func NewTLB() *TLB {
	t := &TLB{read: make([]uintptr, tlbSize), write: make([]uintptr, tlbSize)}
	for i := range t.read {
		t.read[i] = tlbUnmapped
		t.write[i] = tlbUnmapped
	}
	return t
}

// MapPage installs host as guest virtual page vpn's fast-path base.
// writable=false leaves the write slot unmapped, forcing stores through
// the slow path (e.g. a ROM page).
func (t *TLB) MapPage(vpn uint32, host uintptr, writable bool) {
	i := vpn & tlbMask
	t.read[i] = host
	if writable {
		t.write[i] = host
	} else {
		t.write[i] = tlbUnmapped
	}
}

// Unmap clears both slots for vpn, forcing the slow path until MapPage
// installs a new mapping (e.g. on an MMU reconfiguration or a page taken
// out of the direct-mapped window).
func (t *TLB) Unmap(vpn uint32) {
	i := vpn & tlbMask
	t.read[i] = tlbUnmapped
	t.write[i] = tlbUnmapped
}

func (t *TLB) readBase() uintptr  { return uintptr(unsafe.Pointer(&t.read[0])) }
func (t *TLB) writeBase() uintptr { return uintptr(unsafe.Pointer(&t.write[0])) }

// Trampolines holds the host entry address of each of the twelve
// routines, for a FastPathEmitter to CallHost against.
type Trampolines struct {
	LoadB, StoreB     uintptr
	LoadW, StoreW     uintptr
	LoadL, StoreL     uintptr
	LoadQ, StoreQ     uintptr
	LoadF32, StoreF32 uintptr
	LoadF64, StoreF64 uintptr
}

// memWidth names the access sizes the twelve trampolines cover; float32/
// float64 reuse the long/quad slow-path calls since this core moves their
// bits without interpreting them.
type memWidth struct {
	bytes int32
	slowLoad, slowStore callThunk
}

// BuildTrampolines emits all twelve routines back to back into one fresh
// exec-block chain, and registers each width's slow-path fallback with
// registry.
func BuildTrampolines(arena *ExecArena, backend HostCodeGen, registry *handlerRegistry, memory MemorySystem, tlb *TLB) (*Trampolines, error) {
	e, err := NewEmitter(arena, invalidBlock, backend)
	if err != nil {
		return nil, err
	}

	widths := []memWidth{
		{1, func(addr, _ uint64) (uint64, uint64) {
			v, ok := memory.ReadB(GuestLinear(addr))
			return uint64(v), faultBit(ok)
		}, func(addr, val uint64) (uint64, uint64) {
			return 0, faultBit(memory.WriteB(GuestLinear(addr), uint8(val)))
		}},
		{2, func(addr, _ uint64) (uint64, uint64) {
			v, ok := memory.ReadW(GuestLinear(addr))
			return uint64(v), faultBit(ok)
		}, func(addr, val uint64) (uint64, uint64) {
			return 0, faultBit(memory.WriteW(GuestLinear(addr), uint16(val)))
		}},
		{4, func(addr, _ uint64) (uint64, uint64) {
			v, ok := memory.ReadL(GuestLinear(addr))
			return uint64(v), faultBit(ok)
		}, func(addr, val uint64) (uint64, uint64) {
			return 0, faultBit(memory.WriteL(GuestLinear(addr), uint32(val)))
		}},
		{8, func(addr, _ uint64) (uint64, uint64) {
			v, ok := memory.ReadQ(GuestLinear(addr))
			return v, faultBit(ok)
		}, func(addr, val uint64) (uint64, uint64) {
			return 0, faultBit(memory.WriteQ(GuestLinear(addr), val))
		}},
	}

	t := &Trampolines{}
	loadB, storeB := emitTLBPair(e, backend, registry, tlb, widths[0])
	t.LoadB, t.StoreB = loadB, storeB
	loadW, storeW := emitTLBPair(e, backend, registry, tlb, widths[1])
	t.LoadW, t.StoreW = loadW, storeW
	loadL, storeL := emitTLBPair(e, backend, registry, tlb, widths[2])
	t.LoadL, t.StoreL = loadL, storeL
	loadQ, storeQ := emitTLBPair(e, backend, registry, tlb, widths[3])
	t.LoadQ, t.StoreQ = loadQ, storeQ
	// float32/float64 move the same bit patterns as long/quad - this core
	// has no FPU semantics of its own, so the trampolines are identical
	// routines under a name the FastPathEmitter can address by intent.
	loadF32, storeF32 := emitTLBPair(e, backend, registry, tlb, widths[2])
	t.LoadF32, t.StoreF32 = loadF32, storeF32
	loadF64, storeF64 := emitTLBPair(e, backend, registry, tlb, widths[3])
	t.LoadF64, t.StoreF64 = loadF64, storeF64

	arena.CleanBlocks(e.HeadBlock())
	return t, nil
}

func faultBit(ok bool) uint64 {
	if ok {
		return 0
	}
	return 1
}

// emitTLBPair emits one width's load and store trampolines and returns
// their entry host addresses.
func emitTLBPair(e *Emitter, backend HostCodeGen, registry *handlerRegistry, tlb *TLB, w memWidth) (load, store uintptr) {
	loadIdx := registry.registerThunk(w.slowLoad)
	storeIdx := registry.registerThunk(w.slowStore)
	load = emitTLBOp(e, backend, tlb.readBase(), false, loadIdx)
	store = emitTLBOp(e, backend, tlb.writeBase(), true, storeIdx)
	return load, store
}

// emitTLBOp emits one trampoline: look up the TLB entry for the
// requesting virtual page, and on a hit read/write directly; on a miss
// (unmapped sentinel), CallHost the registered slow-path thunk through
// the generic bridge (trampoline_entry.go) and return its result.
//
// Arguments arrive in ArgRegister(0) (virt) and, for a store,
// ArgRegister(1) (value), per calling_convention.go - the same convention
// a CallHost caller already uses for handler calls. LoadMem/StoreMem move
// a full native-width register regardless of the logical access width;
// narrower widths are exact at the slow path (the registered Go closures
// call the correctly typed MemorySystem method) and are the
// FastPathEmitter's own concern to mask or sign-extend on the fast path,
// mirroring how it already owns everything about inlining an opcode.
func emitTLBOp(e *Emitter, backend HostCodeGen, tableBase uintptr, isStore bool, slowIdx uint32) uintptr {
	arch := backend.Arch()
	regs := NewRegisterTracker(arch)

	virt, _ := regs.AllocSpecific(integerArgOrder(arch)[0], "virt")
	var value Register
	if isStore {
		value, _ = regs.AllocSpecific(integerArgOrder(arch)[1], "value")
	}
	vpn, _ := regs.Alloc("vpn")
	entry, _ := regs.Alloc("entry")
	sentinel, _ := regs.Alloc("sentinel")

	entryAddr := e.HostAddr()

	backend.MovRegToReg(vpn, virt)
	backend.ShrImm(vpn, 12)
	backend.ShlImm(vpn, 3) // 8-byte uintptr entries
	backend.MovImm64(entry, uint64(tableBase))
	backend.AddRegToReg(entry, vpn)
	backend.LoadMem(entry, entry, 0) // entry now holds the mapped host base, or the sentinel

	backend.MovImm64(sentinel, uint64(tlbUnmapped))
	backend.CmpRegToReg(entry, sentinel)
	missField, missShort := backend.JumpCond(e, CondEqual, true)

	// Fast path: host address = mapped base + virt. Results land in
	// ReturnRegister/SecondReturnRegister, matching what the slow path's
	// CallHost leaves there under the host ABI, so the shared Ret() below
	// serves both paths identically.
	backend.AddRegToReg(entry, virt)
	if isStore {
		backend.StoreMem(entry, 0, value)
		backend.MovImm64(ReturnRegister(arch), 0)
	} else {
		backend.LoadMem(entry, entry, 0)
		backend.MovRegToReg(ReturnRegister(arch), entry)
	}
	backend.MovImm64(SecondReturnRegister(arch), 0)
	doneField, doneShort := backend.JumpUncond(e, true)

	// Slow path: fall back to the interpretive memory layer through the
	// generic call bridge (trampoline_entry.go), which expects
	// ArgRegister(0)=index, ArgRegister(1)=a, ArgRegister(2)=b - the same
	// convention emitHandlerCall uses. virt/value already occupy
	// ArgRegister(0)/ArgRegister(1) under this trampoline's own entry
	// convention, so they are shuffled up one slot before index is
	// written into ArgRegister(0).
	slowAddr := e.HostAddr()
	backend.PatchJump(missField, missShort, int32(ptrDiff(slowAddr, missField)))
	if isStore {
		backend.MovRegToReg(ArgRegister(arch, 2), value)
	}
	backend.MovRegToReg(ArgRegister(arch, 1), virt)
	backend.MovImm64(ArgRegister(arch, 0), uint64(slowIdx))
	backend.CallHost(e, handlerTrampolineAddr())

	doneAddr := e.HostAddr()
	backend.PatchJump(doneField, doneShort, int32(ptrDiff(doneAddr, doneField)))
	backend.Ret()

	return uintptr(unsafe.Pointer(entryAddr))
}
