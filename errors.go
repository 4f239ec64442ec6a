// errors.go - the core's error taxonomy.
//
// Most error conditions are resolved internally and never surface as a Go
// error at all (out-of-exec-memory triggers forced eviction, stale blocks
// trigger check_flush, emitter overflow triggers a chaining jump). Only the
// unrecoverable cases - metadata corruption, a nil index where the
// invariants guarantee non-nil, a host backend that can't be constructed -
// ever leave the core as an error or panic.
package dynarec

import "fmt"

// ErrorKind classifies a DynarecError by which class of failure it
// corresponds to.
type ErrorKind int

const (
	// KindInternal covers invariant violations: corrupted metadata, a nil
	// index the caller should never have been able to produce. These are
	// bugs in the core itself, not in guest behavior.
	KindInternal ErrorKind = iota
	// KindOutOfMemory signals the exec arena could not be constructed
	// (mmap failure) or a forced eviction pass made no progress.
	KindOutOfMemory
	// KindEmitterOverflow signals an emitted operation's worst-case size
	// could not be satisfied even after allocating a fresh exec block.
	KindEmitterOverflow
	// KindBadBackend signals a host architecture with no HostCodeGen
	// implementation was requested.
	KindBadBackend
)

func (k ErrorKind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindOutOfMemory:
		return "out of memory"
	case KindEmitterOverflow:
		return "emitter overflow"
	case KindBadBackend:
		return "unsupported host backend"
	default:
		return "unknown"
	}
}

// DynarecError is the only error type the core returns. Guest-visible
// faults (page faults, GP faults, double faults) are not DynarecErrors -
// they are recorded in the abrt word (see dynarec.go) and handled by the
// dispatch loop without ever becoming a Go error.
type DynarecError struct {
	Kind    ErrorKind
	Op      string // component/operation that raised it, e.g. "ExecArena.allocate"
	Message string
}

func (e *DynarecError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func newError(kind ErrorKind, op, format string, args ...any) *DynarecError {
	return &DynarecError{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}
