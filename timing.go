// timing.go - per-CPU cycle-cost tables consulted by the translator and
// dispatcher to accumulate block cycle cost. Profile selection can be
// overridden at runtime via X86DYNAREC_TIMING, following the same
// environment-variable convention as config.go's verbose flag.
package dynarec

// TimingProfile is a vtable of {start, prefix, opcode, block_start,
// block_end, jump_cycles} cycle counts the dispatcher charges against its
// budget at the named point.
type TimingProfile struct {
	Name string

	Start      int // cost of entering a new block (pipeline refill)
	Prefix     int // cost per instruction prefix byte
	Opcode     int // base cost per decoded opcode
	BlockStart int // cost of block_init's bookkeeping
	BlockEnd   int // cost of block_end_recompile's exit thunk
	JumpCycles int // cost of a taken branch (additional pipeline flush)
}

// Named profiles covering the 386/486/Pentium/K6/WinChip-class targets;
// the numbers are illustrative relative weights, not cycle-accurate to any
// real silicon, since this core's own scope stops at being a cost model
// the dispatcher can charge against a cycle budget.
var (
	Timing386 = TimingProfile{
		Name: "386", Start: 8, Prefix: 2, Opcode: 6, BlockStart: 3, BlockEnd: 2, JumpCycles: 5,
	}
	Timing486 = TimingProfile{
		Name: "486", Start: 6, Prefix: 1, Opcode: 4, BlockStart: 2, BlockEnd: 2, JumpCycles: 3,
	}
	TimingPentium = TimingProfile{
		Name: "pentium", Start: 4, Prefix: 1, Opcode: 2, BlockStart: 1, BlockEnd: 1, JumpCycles: 2,
	}
	TimingK6 = TimingProfile{
		Name: "k6", Start: 3, Prefix: 1, Opcode: 2, BlockStart: 1, BlockEnd: 1, JumpCycles: 2,
	}
	TimingWinChip = TimingProfile{
		Name: "winchip", Start: 5, Prefix: 1, Opcode: 3, BlockStart: 2, BlockEnd: 1, JumpCycles: 4,
	}
)

// timingProfiles indexes the named profiles for codegen_timing_set(name)
// and the X86DYNAREC_TIMING environment override (config.go).
var timingProfiles = map[string]*TimingProfile{
	"386":     &Timing386,
	"486":     &Timing486,
	"pentium": &TimingPentium,
	"k6":      &TimingK6,
	"winchip": &TimingWinChip,
}

// LookupTimingProfile resolves a profile name (case-sensitive, matching
// TimingProfile.Name) falling back to TimingPentium when name is unknown
// or empty - the dispatcher always has a usable profile.
func LookupTimingProfile(name string) *TimingProfile {
	if p, ok := timingProfiles[name]; ok {
		return p
	}
	return &TimingPentium
}

// cost estimates one instruction's charge against the cycle budget: the
// opcode's base cost plus a jump surcharge when it ends the block. The
// dispatcher (C7) calls this once per interpreted instruction
// (interpretOne); a compiled block is charged BlockStart + BlockEnd
// instead. The translator itself stays ignorant of timing so a profile
// swap never forces a recompile.
func (p *TimingProfile) cost(blockEnd bool) int {
	c := p.Opcode
	if blockEnd {
		c += p.JumpCycles
	}
	return c
}
