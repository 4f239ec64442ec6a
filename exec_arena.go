// exec_arena.go - C1: the executable-memory allocator.
//
// A fixed pool of ExecMemBlocks backed by one mmap'd PROT_EXEC region. Blocks
// are handed out from a singly linked free list; when the free list runs dry,
// allocate() asks its evictor (published by C3, see block_storage.go) to free
// up space by deleting a randomly chosen owning CodeBlock.
//
// The arena backs the host's own JIT buffer directly, calling
// golang.org/x/sys/unix.Mmap rather than encoding a syscall into generated
// code.
package dynarec

import (
	"math/rand"

	"golang.org/x/sys/unix"
)

// invalidExecBlock is the sentinel "no block" index, matching the
// INVALID-index convention used throughout the core's index arenas.
const invalidExecBlock uint16 = 0xffff

// ExecMemBlock is one unit of executable backing memory.
type ExecMemBlock struct {
	offset      uint32 // byte offset into the arena
	owner       uint16 // owning CodeBlock index, or invalidExecBlock
	next        uint16 // next link in a free-list or owned chain
	usableBytes uint32 // bytes available before the chaining-jump reserve
}

// Evictor is the callback C3 publishes so the allocator can force room when
// its free list is empty, without C1 importing the block-storage package's
// internal state directly.
type Evictor interface {
	// DeleteRandomBlock deletes one randomly chosen occupied CodeBlock slot
	// per call, or reports that no slot is eligible for eviction.
	// BlockStorage's implementation does not consult minExecBlocks; evict
	// repeats the call until the free list is non-empty.
	DeleteRandomBlock(minExecBlocks int) (progressed bool)
}

// ExecArena is the fixed mmap'd pool of ExecMemBlocks. EXEC_BLOCK_SIZE is
// slightly under 1 KiB by convention, to limit instruction-cache aliasing;
// callers that need to exercise forced eviction construct a small pool
// directly via NewExecArena.
type ExecArena struct {
	mem       []byte
	blocks    []ExecMemBlock
	blockSize uint32
	jumpSize  uint32 // reserve held back from usableBytes for the chaining jump
	freeHead  uint16
	evictor   Evictor
}

// DefaultExecBlockSize is slightly under 1 KiB.
const DefaultExecBlockSize = 960

// NewExecArena reserves n blocks of blockSize bytes of PROT_EXEC memory.
// jumpReserve bytes of each block are held back from ensure()'s view of
// "usable" so a chaining jump always fits (see emitter.go).
func NewExecArena(n int, blockSize uint32, jumpReserve uint32) (*ExecArena, error) {
	if n <= 0 {
		return nil, newError(KindInternal, "NewExecArena", "n must be positive, got %d", n)
	}
	if jumpReserve >= blockSize {
		return nil, newError(KindInternal, "NewExecArena", "jump reserve %d >= block size %d", jumpReserve, blockSize)
	}
	total := int(blockSize) * n
	mem, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, newError(KindOutOfMemory, "NewExecArena", "mmap %d bytes: %v", total, err)
	}

	a := &ExecArena{
		mem:       mem,
		blocks:    make([]ExecMemBlock, n),
		blockSize: blockSize,
		jumpSize:  jumpReserve,
	}
	for i := range a.blocks {
		a.blocks[i] = ExecMemBlock{
			offset:      uint32(i) * blockSize,
			owner:       invalidExecBlock,
			usableBytes: blockSize - jumpReserve,
		}
		if i == len(a.blocks)-1 {
			a.blocks[i].next = invalidExecBlock
		} else {
			a.blocks[i].next = uint16(i + 1)
		}
	}
	a.freeHead = 0
	return a, nil
}

// Close releases the backing mmap, so tests (and codegen_close) don't leak
// host address space across repeated arena construction.
func (a *ExecArena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

// SetEvictor installs the forced-eviction callback. Called once during
// core construction (dynarec.go), after both C1 and C3 exist.
func (a *ExecArena) SetEvictor(e Evictor) { a.evictor = e }

// Allocate returns the index of a free ExecMemBlock, forcing eviction if
// necessary, and (if parent != invalidExecBlock) splices it onto the end of
// parent's chain. Mirrors allocate(parent, code_block_id).
func (a *ExecArena) Allocate(parent uint16, owner uint16) (uint16, error) {
	if a.freeHead == invalidExecBlock {
		if err := a.evict(); err != nil {
			return invalidExecBlock, err
		}
	}

	idx := a.freeHead
	a.freeHead = a.blocks[idx].next
	a.blocks[idx].owner = owner
	a.blocks[idx].next = invalidExecBlock

	if parent != invalidExecBlock {
		tail := parent
		for a.blocks[tail].next != invalidExecBlock {
			tail = a.blocks[tail].next
		}
		a.blocks[tail].next = idx
	}
	return idx, nil
}

// evict repeatedly asks the evictor to free a randomly chosen occupied
// CodeBlock until the free list is non-empty. Expected O(arena_used /
// free_bytes) attempts under the allocator's liveness invariant; each round
// the evictor is asked for one block's worth of exec memory so genuine
// unavailability (everything pinned) is detected rather than looping
// forever.
func (a *ExecArena) evict() error {
	if a.evictor == nil {
		return newError(KindOutOfMemory, "ExecArena.Allocate", "free list empty and no evictor installed")
	}
	for a.freeHead == invalidExecBlock {
		if !a.evictor.DeleteRandomBlock(1) {
			return newError(KindOutOfMemory, "ExecArena.Allocate", "no exec block is eligible for eviction")
		}
	}
	return nil
}

// Free walks the chain rooted at head, returns every link to the free list,
// and clears each link's owner. Mirrors free(block).
func (a *ExecArena) Free(head uint16) {
	if head == invalidExecBlock {
		return
	}
	cur := head
	for cur != invalidExecBlock {
		next := a.blocks[cur].next
		a.blocks[cur].owner = invalidExecBlock
		a.blocks[cur].next = a.freeHead
		a.freeHead = cur
		cur = next
	}
}

// GetPtr returns the host-writable/executable slice backing block idx,
// sized to its usable extent (blockSize minus the chaining-jump reserve).
// Mirrors get_ptr(block).
func (a *ExecArena) GetPtr(idx uint16) []byte {
	b := &a.blocks[idx]
	return a.mem[b.offset : b.offset+b.usableBytes : b.offset+a.blockSize]
}

// FullExtent returns the entire backing region for block idx, including the
// chaining-jump reserve - used as the emitter's cursor buffer and by
// CleanBlocks, which must flush the whole range a compiler might have
// written (the jump itself lives past usableBytes).
func (a *ExecArena) FullExtent(idx uint16) []byte {
	b := &a.blocks[idx]
	return a.mem[b.offset : b.offset+a.blockSize]
}

// Offset returns block idx's byte offset within the arena's backing mmap,
// the value a CodeBlock's data_ptr records as its compiled entry point:
// compilation always begins at the very start of a block's first
// ExecMemBlock.
func (a *ExecArena) Offset(idx uint16) uint32 { return a.blocks[idx].offset }

// HostAddr returns the absolute host address of arena byte offset off, for
// the dispatcher (C7) to jump into a compiled block's entry point.
func (a *ExecArena) HostAddr(off ExecOffset) *byte { return &a.mem[off] }

// Next returns the chain successor of idx, or invalidExecBlock at the end.
func (a *ExecArena) Next(idx uint16) uint16 { return a.blocks[idx].next }

// UsableSize returns the usable byte count of block idx (blockSize minus
// the chaining-jump reserve), the `limit` the emitter cursor enforces.
func (a *ExecArena) UsableSize(idx uint16) uint32 { return a.blocks[idx].usableBytes }

// CleanBlocks walks the chain rooted at head and, on hosts with split I/D
// caches, issues the instruction-cache flush required before the written
// bytes are safe to execute. amd64 has a coherent I-cache and needs no
// action; arm64's flush lives in icache_arm64.go (flushICache), called from
// here for every link's full extent. Mirrors clean_blocks(block).
func (a *ExecArena) CleanBlocks(head uint16) {
	if !hostNeedsICacheFlush() {
		return
	}
	cur := head
	for cur != invalidExecBlock {
		flushICache(a.FullExtent(cur))
		cur = a.blocks[cur].next
	}
}

// NumBlocks reports the arena's fixed pool size, N_EXEC_BLOCKS.
func (a *ExecArena) NumBlocks() int { return len(a.blocks) }

// FreeCount walks the free list and counts it; used by tests asserting the
// allocator-conservation property (free + in-use blocks always sum to the
// pool size). O(N) - a test helper, not a hot path.
func (a *ExecArena) FreeCount() int {
	n := 0
	for cur := a.freeHead; cur != invalidExecBlock; cur = a.blocks[cur].next {
		n++
	}
	return n
}

// randIntn is a package-level indirection so tests can make eviction choice
// deterministic without threading a *rand.Rand through every call site.
var randIntn = rand.Intn
