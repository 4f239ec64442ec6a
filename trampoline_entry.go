// trampoline_entry.go - the single fixed host-callable entry point
// generated code uses to invoke an interpretive opcode handler
// (generate_call), and the registry that resolves a block's compiled-in
// handler index back to the Handler closure the embedding emulator
// registered.
//
// Go closures are not C-ABI call targets, so JIT'd code never calls a
// Handler directly. Instead every generate_call compiles to a CallHost of
// one fixed trampoline (handlerTrampolineAMD64/ARM64/RISCV64, implemented
// in the matching handler_trampoline_<arch>.s), which reads its arguments
// out of the registers calling_convention.go's integerArgOrder assigns
// them to (the host's native System V AMD64 / AAPCS64 / RISC-V integer
// argument registers), bridges into a normal Go call, and leaves its two
// results in that convention's return registers.
//
// Grounded on the general technique Go's own runtime uses for its
// hand-written ABI0 assembly entry points: fixed-width integer arguments
// passed through stack slots, the g register left untouched throughout
// (see register_tracker.go's reservedRegisters).
package dynarec

// callThunk is the generic shape every registry entry reduces to: two
// uint64 inputs, two uint64 outputs. Both opcode-handler calls
// (translator.go's generate_call) and the memory trampolines' slow-path
// fallback (trampolines.go) share this one registry and the one
// assembly bridge below - the bridge only moves fixed-width integers
// between calling conventions, so it does not need to know which
// closure shape it is actually carrying.
type callThunk func(a, b uint64) (uint64, uint64)

// handlerRegistry resolves the small integer index a compiled block
// carries (its generate_call's opcode argument, or a trampoline's fixed
// slow-path index) back to the Go closure that does the real work.
type handlerRegistry struct {
	thunks []callThunk
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{thunks: make([]callThunk, 0, 1024)}
}

// register appends h, wrapped as a generic thunk, and returns the index
// generated code will pass back to dispatchHandlerCall to identify it.
func (r *handlerRegistry) register(h Handler) uint32 {
	return r.registerThunk(func(fetchdat, pc uint64) (uint64, uint64) {
		next, end := h(uint32(fetchdat), GuestLinear(pc))
		blockEnd := uint64(0)
		if end {
			blockEnd = 1
		}
		return uint64(next), blockEnd
	})
}

// registerThunk appends a raw generic thunk (used by trampolines.go's
// fixed memory-slow-path entries) and returns its index.
func (r *handlerRegistry) registerThunk(t callThunk) uint32 {
	r.thunks = append(r.thunks, t)
	return uint32(len(r.thunks) - 1)
}

// activeRegistry is the registry the architecture-specific trampoline
// consults. Exactly one Dynarec runs per process (a single emulation
// thread), so a package-level pointer avoids threading a context pointer
// through the hand-written assembly shim's own limited register budget.
var activeRegistry *handlerRegistry

// dispatchHandlerCall is what every architecture's assembly trampoline
// ultimately calls into ordinary Go code to do: look up the registered
// thunk by index and run it. Its parameters and results are all uint64 so
// each trampoline's stack-slot arithmetic is fixed-width and
// architecture-independent - no slot has to account for a narrower
// type's natural alignment. The name is kept from when this only served
// opcode handlers; it now also serves trampolines.go's memory slow path.
func dispatchHandlerCall(index, a, b uint64) (uint64, uint64) {
	return activeRegistry.thunks[uint32(index)](a, b)
}

// handlerTrampolineAddr returns the fixed host address the translator
// (C6) passes to CallHost for every generate_call. Each GOARCH's own
// handler_trampoline_<arch>.go supplies the implementation, resolved via
// reflect since the architecture-specific assembly function has no Go
// body to invoke directly from this package - only an entry address.
// Exactly one implementation is compiled into any given build, matching
// the host it runs on.
