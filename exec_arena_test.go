// exec_arena_test.go - allocator conservation (every ExecMemBlock is
// either free or owned by exactly one chain, and the free count plus
// allocated count always equals NumBlocks) and forced-eviction liveness
// (Allocate succeeds whenever at least one eviction round can free a
// block).
package dynarec

import "testing"

func newTestArena(t *testing.T, n int) *ExecArena {
	t.Helper()
	a, err := NewExecArena(n, DefaultExecBlockSize, 16)
	if err != nil {
		t.Fatalf("NewExecArena: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestExecArenaAllocateFreeConservation(t *testing.T) {
	a := newTestArena(t, 8)
	if got := a.FreeCount(); got != 8 {
		t.Fatalf("FreeCount = %d, want 8", got)
	}

	var allocated []uint16
	for i := 0; i < 5; i++ {
		idx, err := a.Allocate(invalidExecBlock, uint16(i))
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		allocated = append(allocated, idx)
	}
	if got := a.FreeCount(); got != 3 {
		t.Errorf("FreeCount = %d, want 3 after 5 allocations out of 8", got)
	}

	for _, idx := range allocated {
		a.Free(idx)
	}
	if got := a.FreeCount(); got != 8 {
		t.Errorf("FreeCount = %d, want 8 after freeing every allocation", got)
	}
}

func TestExecArenaAllocateChains(t *testing.T) {
	a := newTestArena(t, 4)
	head, err := a.Allocate(invalidExecBlock, 1)
	if err != nil {
		t.Fatalf("Allocate head: %v", err)
	}
	second, err := a.Allocate(head, 1)
	if err != nil {
		t.Fatalf("Allocate chained: %v", err)
	}
	if a.Next(head) != second {
		t.Errorf("Next(head) = %d, want %d", a.Next(head), second)
	}
	if got := a.FreeCount(); got != 2 {
		t.Errorf("FreeCount = %d, want 2 after a 2-block chain out of 4", got)
	}

	a.Free(head)
	if got := a.FreeCount(); got != 4 {
		t.Errorf("FreeCount = %d, want 4 after freeing the whole chain from its head", got)
	}
}

func TestExecArenaAllocateFailsWithNoEvictor(t *testing.T) {
	a := newTestArena(t, 1)
	if _, err := a.Allocate(invalidExecBlock, 0); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	if _, err := a.Allocate(invalidExecBlock, 1); err == nil {
		t.Error("expected an error once the pool is exhausted and no evictor is installed")
	}
}

// fakeEvictor frees a fixed set of exec-block chains on demand, simulating
// C3's DeleteRandomBlock.
type fakeEvictor struct {
	arena   *ExecArena
	heads   []uint16
	refused bool
}

func (e *fakeEvictor) DeleteRandomBlock(minExecBlocks int) bool {
	if e.refused || len(e.heads) == 0 {
		return false
	}
	head := e.heads[0]
	e.heads = e.heads[1:]
	e.arena.Free(head)
	return true
}

func TestExecArenaForcedEvictionLiveness(t *testing.T) {
	a := newTestArena(t, 2)
	first, err := a.Allocate(invalidExecBlock, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	second, err := a.Allocate(invalidExecBlock, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got := a.FreeCount(); got != 0 {
		t.Fatalf("FreeCount = %d, want 0 (pool exhausted)", got)
	}

	ev := &fakeEvictor{arena: a, heads: []uint16{first, second}}
	a.SetEvictor(ev)

	idx, err := a.Allocate(invalidExecBlock, 2)
	if err != nil {
		t.Fatalf("Allocate after installing an evictor: %v", err)
	}
	if idx != first {
		t.Errorf("Allocate returned %d, want the just-evicted block %d", idx, first)
	}
}

func TestExecArenaForcedEvictionGivesUpWhenNothingIsEligible(t *testing.T) {
	a := newTestArena(t, 1)
	if _, err := a.Allocate(invalidExecBlock, 0); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	a.SetEvictor(&fakeEvictor{arena: a, refused: true})

	if _, err := a.Allocate(invalidExecBlock, 1); err == nil {
		t.Error("expected an error when the evictor can make no progress")
	}
}

func TestExecArenaOffsetAndHostAddr(t *testing.T) {
	a := newTestArena(t, 3)
	idx, err := a.Allocate(invalidExecBlock, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	off := a.Offset(idx)
	ptr := a.HostAddr(ExecOffset(off))
	if ptr == nil {
		t.Fatal("HostAddr returned nil")
	}
	// Writing through the host pointer must land inside the slice GetPtr
	// reports for the same block.
	*ptr = 0x90
	buf := a.GetPtr(idx)
	if buf[0] != 0x90 {
		t.Errorf("GetPtr(idx)[0] = %#x, want 0x90 written through HostAddr", buf[0])
	}
}
