// types.go - the core data model: CodeBlock, Page, and the bit flags and
// pool-size constants shared across components. Every intra-core
// reference is a 16-bit index into a fixed array, never a pointer.
package dynarec

// invalidBlock is the sentinel CodeBlock index; index 0 of the block pool
// is permanently reserved for it.
const invalidBlock uint16 = 0

// Pool sizing constants. HashSize is fixed; the block pool's capacity is
// DefaultBlockPoolSize unless NewDynarec's Config.BlockPoolSize
// (dynarec.go) overrides it.
const (
	// HashSize is the size of the direct-mapped block hash table.
	HashSize = 0x20000
	// HashMask masks a physical address down to a hash-table index.
	HashMask = HashSize - 1

	// DefaultBlockPoolSize is codeblock[BLOCK_SIZE]'s default capacity.
	DefaultBlockPoolSize = 1 << 16

	// PageSize is the guest physical page granularity the SMC coherence
	// protocol and block index operate on.
	PageSize = 4096

	// MaxBlockSourceBytes bounds a block's walked guest-instruction bytes
	// at coarse (64-byte) granularity.
	MaxBlockSourceBytes = 4000
	// MaxBlockSourceBytesFine is the tighter bound used once a block is
	// flagged BYTE_MASK, so the block's footprint stays within one
	// 64-byte sub-region.
	MaxBlockSourceBytesFine = 103
)

// BlockFlags is the bitset a CodeBlock carries.
type BlockFlags uint16

const (
	FlagHasFPU BlockFlags = 1 << iota
	// FlagStaticTop marks that the block was compiled assuming a specific
	// FPU top-of-stack value (Top field below is meaningful iff set).
	FlagStaticTop
	// FlagWasRecompiled marks the block has actual emitted host code,
	// versus merely being "marked" (discovered but not yet compiled).
	FlagWasRecompiled
	// FlagInFreeList marks a pool slot as unoccupied; mutually exclusive
	// with every other flag.
	FlagInFreeList
	// FlagHasPage2 marks a block whose instruction bytes cross a guest
	// page boundary, so it has membership in two page lists.
	FlagHasPage2
	// FlagByteMask selects byte-granularity (fine) SMC tracking for this
	// block instead of the default 64-byte (coarse) tracking.
	FlagByteMask
	// FlagInDirtyList marks the block as present on its page's dirty
	// list, a candidate for purge_purgable_list.
	FlagInDirtyList
	// FlagNoImmediates forbids inlined immediate constants in this
	// block's compiled code, because a prior compilation at this address
	// was invalidated by a guest write that rewrote an immediate in
	// place (the BYTE_MASK -> NO_IMMEDIATES escalation).
	FlagNoImmediates
)

func (f BlockFlags) has(bit BlockFlags) bool { return f&bit != 0 }

// CodeBlock is the unit of translation.
type CodeBlock struct {
	// Identity.
	startPC GuestLinear
	csBase  CSBase
	phys    GuestPhys
	phys2   GuestPhys // valid iff flags.has(FlagHasPage2)
	status  uint32    // captured CPU-state flag subset, see dispatch.go's findOrCreateBlock
	flags   BlockFlags
	top     uint8 // FPU top-of-stack, meaningful iff FlagStaticTop

	// Block-storage (C3) arena links.
	treeParent, treeLeft, treeRight uint16
	pageListPrev, pageListNext      [2]uint16 // [0]=primary page, [1]=secondary page

	// SMC coherence (C5) masks: bit i covers 64 bytes (coarse) or 1 byte
	// (fine, when FlagByteMask is set) of instruction footprint.
	pageMask    [2]uint64
	dirtyMaskAt [2]*uint64 // points into the owning Page's dirty mask word

	// Host code emitter (C2) output.
	dataPtr       ExecOffset
	headExecBlock uint16
}

func (b *CodeBlock) free() bool { return b.flags.has(FlagInFreeList) }

// pageCount returns how many guest pages this block's instruction bytes
// touch: 1 normally, 2 when FlagHasPage2 is set.
func (b *CodeBlock) pageCount() int {
	if b.flags.has(FlagHasPage2) {
		return 2
	}
	return 1
}

// StatusFlags/StatusMask classify which bits of the captured CPU status
// word matter for validity. They are supplied by the
// consuming emulator via Collaborators (collaborators.go) because their
// exact bit layout is specific to the guest CPU model, not to this core;
// a zero-value default (no bits tracked) is used when the collaborator
// does not override it, so the core still compiles and tests standalone.
type StatusMask struct {
	// Flags captures bits whose change mandates recompilation (operand-
	// size default, stack-size default, etc.) - a one-bit difference here
	// always invalidates the candidate.
	Flags uint32
	// Mask captures bits checked one way only: a candidate stays valid
	// while every Mask bit set in the current CPU status is also set in
	// its captured status; Mask bits the block carries that the CPU has
	// since cleared do not invalidate it.
	Mask uint32
}

// Page is per-4-KiB-physical-page metadata. Its lifetime is
// owned by the consuming emulator's MMU, not by this core; the core only
// requires MemorySystem.PageFor to hand back a stable *Page per physical
// page (collaborators.go).
type Page struct {
	headTree [2]uint16 // BST root for blocks whose primary/secondary page this is... primary only uses [0]
	listHead [2]uint16 // doubly-linked block lists, indexed by page role (primary=0, secondary=1)

	codePresentMask uint64
	dirtyMask       uint64

	// Fine-grained variants, lazily allocated: one bit per byte within
	// the page (512 bytes of metadata), used only by blocks flagged
	// FlagByteMask.
	byteCodePresentMask []uint64 // len 64 when allocated (512 bytes / 8)
	byteDirtyMask       []uint64
}

func (p *Page) ensureByteMasks() {
	if p.byteCodePresentMask == nil {
		p.byteCodePresentMask = make([]uint64, PageSize/8/8)
		p.byteDirtyMask = make([]uint64, PageSize/8/8)
	}
}
