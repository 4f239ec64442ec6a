// block_entry.go - the dispatch loop's (C7) entry point into a compiled
// block, the mirror image of trampoline_entry.go's handler-call bridge:
// there, JIT'd code calls back into Go; here, ordinary Go code calls into
// JIT'd code. Grounded on the same technique as trampoline_entry.go, in
// the other direction - Go cannot call a raw uintptr as a function value
// without an assembly shim (callCompiledBlockAsm, one per
// block_entry_<arch>.s), since the Go calling convention has no way to
// express "call whatever code is at this address" from pure Go source.
//
// A compiled block never clobbers the reserved registers (register_tracker.go:
// the host stack/frame pointer and Go's own g register) and always exits
// through HostCodeGen.Ret(), leaving the resumed guest PC in
// ReturnRegister - exactly the value an ordinary function return yields,
// so no further register shuffling is needed on the way back into Go.
package dynarec

// callCompiledBlockAsm calls the compiled block whose first instruction
// is at entry, returning the guest linear address it exited at (the
// block's cached next-PC, written by Translator.finalizeExit).
func callCompiledBlockAsm(entry uintptr) uint64
