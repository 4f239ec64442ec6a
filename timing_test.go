// timing_test.go - timing.go's profile lookup and per-instruction cost
// model.
package dynarec

import "testing"

func TestLookupTimingProfileKnownNames(t *testing.T) {
	cases := map[string]*TimingProfile{
		"386":     &Timing386,
		"486":     &Timing486,
		"pentium": &TimingPentium,
		"k6":      &TimingK6,
		"winchip": &TimingWinChip,
	}
	for name, want := range cases {
		got := LookupTimingProfile(name)
		if got != want {
			t.Errorf("LookupTimingProfile(%q) = %p, want %p", name, got, want)
		}
	}
}

func TestLookupTimingProfileFallsBackToPentium(t *testing.T) {
	for _, name := range []string{"", "bogus", "PENTIUM"} {
		got := LookupTimingProfile(name)
		if got != &TimingPentium {
			t.Errorf("LookupTimingProfile(%q) = %q, want the pentium fallback", name, got.Name)
		}
	}
}

func TestTimingProfileCost(t *testing.T) {
	p := &TimingProfile{Opcode: 2, JumpCycles: 5}
	if got := p.cost(false); got != 2 {
		t.Errorf("cost(false) = %d, want 2", got)
	}
	if got := p.cost(true); got != 7 {
		t.Errorf("cost(true) = %d, want 7 (opcode + jump surcharge)", got)
	}
}
