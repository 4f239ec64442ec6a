// config.go - process-wide knobs read once at startup: verbose debug
// logging and the timing profile selector.
//
// Uses github.com/xyproto/env/v2 for environment-variable configuration;
// VerboseMode is the package-level flag StackValidator reads.
package dynarec

import "github.com/xyproto/env/v2"

// VerboseMode makes StackValidator echo each push/pop it records to
// stderr; the bookkeeping itself runs either way. Read from
// X86DYNAREC_VERBOSE at startup (off when unset); callers or tests may
// also set it.
var VerboseMode = env.Bool("X86DYNAREC_VERBOSE")

// TimingProfileName returns the profile named by X86DYNAREC_TIMING, or ""
// if unset, in which case Dynarec falls back to TimingPentium.
func TimingProfileName() string {
	return env.Str("X86DYNAREC_TIMING")
}
