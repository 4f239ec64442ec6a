// emitter.go - C2: the host code emitter's write cursor.
//
// A cursor that can cross ExecMemBlock boundaries mid-stream by drawing a
// new block from C1 and splicing in a chaining jump.
package dynarec

import "unsafe"

// jumpReserve is the worst-case size of a host unconditional-jump
// encoding, held back from each ExecMemBlock's usable size so ensure()
// never has to re-measure it mid-allocation. 5 bytes covers amd64's E9
// rel32; arm64/riscv64 branches are narrower but share the same reserve
// for simplicity: limit is the current ExecMemBlock's usable size minus
// this reserve.
const jumpReserve = 5

// patchSite is a displacement field an emitted branch left for later
// patching, as an absolute host address plus its encoded width. Pinning
// the absolute address (rather than a (block, offset) pair) means a
// subsequent ensure() that moves the cursor to a new block can never
// invalidate an already-returned patch site: any displacement computed
// against position must survive a subsequent ensure, by pinning the
// field's absolute host address.
type patchSite struct {
	ptr   *byte
	short bool // true: 8-bit displacement; false: 32-bit
}

// Emitter is the mutable byte cursor (data_ptr, position, limit) used to
// write host code into an ExecMemBlock chain.
type Emitter struct {
	arena *ExecArena

	block    uint16 // current ExecMemBlock index
	head     uint16 // first ExecMemBlock of the block under compilation
	buf      []byte // FullExtent(block): writes past limit land in the chaining-jump reserve
	position int
	limit    int

	backend HostCodeGen
}

// NewEmitter allocates the first ExecMemBlock for a fresh CodeBlock and
// returns a cursor positioned at its start. parent is invalidExecBlock for
// a block's first emitter.
func NewEmitter(arena *ExecArena, owner uint16, backend HostCodeGen) (*Emitter, error) {
	idx, err := arena.Allocate(invalidExecBlock, owner)
	if err != nil {
		return nil, err
	}
	e := &Emitter{arena: arena, block: idx, head: idx, backend: backend}
	e.resetCursor()
	backend.Attach(e)
	return e, nil
}

func (e *Emitter) resetCursor() {
	e.buf = e.arena.FullExtent(e.block)
	e.position = 0
	e.limit = int(e.arena.UsableSize(e.block))
}

// HeadBlock returns the first ExecMemBlock of the chain, the value stored
// as a CodeBlock's head_exec_block field.
func (e *Emitter) HeadBlock() uint16 { return e.head }

// Position returns the current write offset within the active block.
func (e *Emitter) Position() int { return e.position }

// HostAddr returns the absolute host address of the byte at the current
// cursor position, suitable for computing a call/jump displacement.
func (e *Emitter) HostAddr() *byte { return &e.buf[e.position] }

// Ensure guarantees at least n bytes are available before the chaining-
// jump reserve, allocating a new ExecMemBlock and emitting the chaining
// jump first if not. Mirrors ensure(n).
func (e *Emitter) Ensure(n int) error {
	if e.position+n <= e.limit {
		return nil
	}
	return e.allocateNewBlock(n)
}

// allocateNewBlock draws a new ExecMemBlock from C1, emits an unconditional
// jump from the current cursor to the new block's start, then redirects
// the cursor. Mirrors codegen_allocate_new_block.
func (e *Emitter) allocateNewBlock(n int) error {
	newIdx, err := e.arena.Allocate(e.head, e.arena.blocks[e.head].owner)
	if err != nil {
		return err
	}
	target := e.arena.GetPtr(newIdx)
	e.backend.EmitChainJump(e, &target[0])
	e.block = newIdx
	e.resetCursor()
	if n > e.limit {
		return newError(KindEmitterOverflow, "Emitter.Ensure", "requested %d bytes exceeds block capacity %d", n, e.limit)
	}
	return nil
}

func (e *Emitter) EmitU8(v uint8) {
	e.buf[e.position] = v
	e.position++
}

func (e *Emitter) EmitU16(v uint16) {
	e.EmitU8(uint8(v))
	e.EmitU8(uint8(v >> 8))
}

func (e *Emitter) EmitU32(v uint32) {
	e.EmitU16(uint16(v))
	e.EmitU16(uint16(v >> 16))
}

func (e *Emitter) EmitU64(v uint64) {
	e.EmitU32(uint32(v))
	e.EmitU32(uint32(v >> 32))
}

func (e *Emitter) EmitBytes(bs []byte) {
	for _, b := range bs {
		e.EmitU8(b)
	}
}

// Branch8 returns a pointer to a just-emitted 8-bit displacement field the
// caller must patch once its target is known.
func (e *Emitter) Branch8() *byte {
	p := &e.buf[e.position]
	e.EmitU8(0)
	return p
}

// Branch32 returns a pointer to a just-emitted little-endian 32-bit
// displacement field.
func (e *Emitter) Branch32() *byte {
	p := &e.buf[e.position]
	e.EmitU32(0)
	return p
}

// PatchBranch8 writes a signed 8-bit displacement into a field returned by
// Branch8. The caller must have verified the displacement fits.
func PatchBranch8(field *byte, disp int8) {
	*field = uint8(disp)
}

// ptrDiff returns b-a as a signed byte distance between two addresses
// inside the same (or chained) executable arena.
func ptrDiff(b, a *byte) int {
	return int(uintptr(unsafe.Pointer(b))) - int(uintptr(unsafe.Pointer(a)))
}

// PatchBranch32 writes a signed 32-bit little-endian displacement into a
// field returned by Branch32.
func PatchBranch32(field *byte, disp int32) {
	p := (*[4]byte)(unsafe.Pointer(field))
	u := uint32(disp)
	p[0] = uint8(u)
	p[1] = uint8(u >> 8)
	p[2] = uint8(u >> 16)
	p[3] = uint8(u >> 24)
}
