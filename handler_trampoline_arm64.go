// handler_trampoline_arm64.go - declares the assembly-implemented C-ABI
// entry point generated arm64 code calls into (see
// handler_trampoline_arm64.s and trampoline_entry.go).
package dynarec

import "reflect"

// handlerTrampolineARM64 has no Go body; its machine code lives in
// handler_trampoline_arm64.s. See handlerTrampolineAMD64's comment - the
// same "address only, never called as Go" contract applies here.
func handlerTrampolineARM64()

func handlerTrampolineAddr() uintptr {
	return reflect.ValueOf(handlerTrampolineARM64).Pointer()
}
