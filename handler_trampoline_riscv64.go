// handler_trampoline_riscv64.go - declares the assembly-implemented
// C-ABI entry point generated riscv64 code calls into (see
// handler_trampoline_riscv64.s and trampoline_entry.go).
package dynarec

import "reflect"

// handlerTrampolineRISCV64 has no Go body; its machine code lives in
// handler_trampoline_riscv64.s. See handlerTrampolineAMD64's comment -
// the same "address only, never called as Go" contract applies here.
func handlerTrampolineRISCV64()

func handlerTrampolineAddr() uintptr {
	return reflect.ValueOf(handlerTrampolineRISCV64).Pointer()
}
