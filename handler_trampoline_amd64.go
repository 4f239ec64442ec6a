// handler_trampoline_amd64.go - declares the assembly-implemented C-ABI
// entry point generated amd64 code calls into (see
// handler_trampoline_amd64.s and trampoline_entry.go).
package dynarec

import "reflect"

// handlerTrampolineAMD64 has no Go body; its machine code lives in
// handler_trampoline_amd64.s. It is never invoked through an ordinary Go
// call expression - only CallHost's register-indirect CALL reaches it -
// so its declared signature exists purely so reflect can report its entry
// address.
func handlerTrampolineAMD64()

func handlerTrampolineAddr() uintptr {
	return reflect.ValueOf(handlerTrampolineAMD64).Pointer()
}
