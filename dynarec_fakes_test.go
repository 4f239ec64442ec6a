// dynarec_fakes_test.go - minimal collaborator fakes shared by this
// package's tests, implementing the interfaces collaborators.go defines
// (MMU, MemorySystem, OpcodeTable, InstructionFetcher, InterruptController,
// CPUState) against flat guest RAM with an identity linear-to-physical
// mapping. Small purpose-built test doubles, no mocking framework (none is
// in go.mod).
package dynarec

// fakeMemory is flat guest RAM plus the Page metadata MemorySystem.PageFor
// must hand back stably.
type fakeMemory struct {
	ram   []byte
	pages map[uint32]*Page
}

func newFakeMemory(size int) *fakeMemory {
	return &fakeMemory{ram: make([]byte, size), pages: make(map[uint32]*Page)}
}

func (m *fakeMemory) PageFor(phys GuestPhys) *Page {
	pn := PageOf(phys)
	p, ok := m.pages[pn]
	if !ok {
		p = &Page{}
		m.pages[pn] = p
	}
	return p
}

func (m *fakeMemory) FastReadL(addr GuestLinear) (uint32, bool) { return m.ReadL(addr) }

func (m *fakeMemory) ReadB(addr GuestLinear) (uint8, bool) {
	if int(addr) >= len(m.ram) {
		return 0, false
	}
	return m.ram[addr], true
}

func (m *fakeMemory) ReadW(addr GuestLinear) (uint16, bool) {
	if int(addr)+2 > len(m.ram) {
		return 0, false
	}
	return uint16(m.ram[addr]) | uint16(m.ram[addr+1])<<8, true
}

func (m *fakeMemory) ReadL(addr GuestLinear) (uint32, bool) {
	if int(addr)+4 > len(m.ram) {
		return 0, false
	}
	return uint32(m.ram[addr]) | uint32(m.ram[addr+1])<<8 |
		uint32(m.ram[addr+2])<<16 | uint32(m.ram[addr+3])<<24, true
}

func (m *fakeMemory) ReadQ(addr GuestLinear) (uint64, bool) {
	lo, ok := m.ReadL(addr)
	if !ok {
		return 0, false
	}
	hi, ok := m.ReadL(addr + 4)
	if !ok {
		return 0, false
	}
	return uint64(lo) | uint64(hi)<<32, true
}

func (m *fakeMemory) WriteB(addr GuestLinear, v uint8) bool {
	if int(addr) >= len(m.ram) {
		return false
	}
	m.ram[addr] = v
	return true
}

func (m *fakeMemory) WriteW(addr GuestLinear, v uint16) bool {
	if int(addr)+2 > len(m.ram) {
		return false
	}
	m.ram[addr] = uint8(v)
	m.ram[addr+1] = uint8(v >> 8)
	return true
}

func (m *fakeMemory) WriteL(addr GuestLinear, v uint32) bool {
	if int(addr)+4 > len(m.ram) {
		return false
	}
	m.ram[addr] = uint8(v)
	m.ram[addr+1] = uint8(v >> 8)
	m.ram[addr+2] = uint8(v >> 16)
	m.ram[addr+3] = uint8(v >> 24)
	return true
}

func (m *fakeMemory) WriteQ(addr GuestLinear, v uint64) bool {
	return m.WriteL(addr, uint32(v)) && m.WriteL(addr+4, uint32(v>>32))
}

// fakeMMU is an identity linear-to-physical mapping bounded by memSize,
// with remap entries for tests that need a non-identity split (e.g. a
// page-boundary test).
type fakeMMU struct {
	memSize int
	remap   map[uint32]uint32 // page number -> page number override
	fault   map[uint32]bool   // linear addresses that always fail
}

func newFakeMMU(memSize int) *fakeMMU {
	return &fakeMMU{memSize: memSize, remap: make(map[uint32]uint32), fault: make(map[uint32]bool)}
}

func (m *fakeMMU) translate(v GuestLinear) (GuestPhys, bool) {
	if m.fault[uint32(v)] {
		return 0, false
	}
	if int(v) >= m.memSize {
		return 0, false
	}
	page := PageOf(GuestPhys(v))
	if remapped, ok := m.remap[page]; ok {
		return GuestPhys(remapped<<12) | GuestPhys(PageOffset(GuestPhys(v))), true
	}
	return GuestPhys(v), true
}

func (m *fakeMMU) GetPhys(v GuestLinear) (GuestPhys, bool)        { return m.translate(v) }
func (m *fakeMMU) GetPhysNoAbort(v GuestLinear) (GuestPhys, bool) { return m.translate(v) }

// fakeOpcodes maps an opcode index straight to a registered Handler; no
// fast path is ever reported, so translator tests exercise the handler-
// call path exclusively (the inline fast path has no encoder to trust
// without running the toolchain).
type fakeOpcodes struct {
	handlers map[uint16]Handler
}

func newFakeOpcodes() *fakeOpcodes { return &fakeOpcodes{handlers: make(map[uint16]Handler)} }

func (o *fakeOpcodes) Handler(idx uint16) (Handler, bool) {
	h := o.handlers[idx]
	return h, false
}

// fakeFetch decodes a trivial fixed-width fake ISA: each instruction is 5
// bytes, [opcode][imm32 little-endian]. opcode 0xff always sets blockEnd.
type fakeFetch struct {
	mem     *fakeMemory
	endOp   uint16
	pageEnd map[uint32]bool // linear addresses where blockEnd is forced
}

func newFakeFetch(mem *fakeMemory) *fakeFetch {
	return &fakeFetch{mem: mem, endOp: 0xff, pageEnd: make(map[uint32]bool)}
}

func (f *fakeFetch) Fetch(pc GuestLinear) (opcodeIndex uint16, fetchdat uint32, nextPC GuestLinear, blockEnd bool, ok bool) {
	op, okB := f.mem.ReadB(pc)
	if !okB {
		return 0, 0, 0, false, false
	}
	imm, okL := f.mem.ReadL(pc + 1)
	if !okL {
		return 0, 0, 0, false, false
	}
	next := pc + 5
	end := uint16(op) == f.endOp || f.pageEnd[uint32(pc)]
	return uint16(op), imm, next, end, true
}

// fakeIRQ is a scriptable InterruptController: tests set its fields
// directly, then assert on the calls PModeInt/Accept/DoAbort/SoftReset
// recorded.
type fakeIRQ struct {
	trap, nmi, maskable bool
	acceptVector        uint8
	tripleFault         bool

	pmodeInts      []uint8
	abortCalls     int
	softResetCalls int
}

func (f *fakeIRQ) TrapPending() bool      { return f.trap }
func (f *fakeIRQ) NMIPending() bool       { return f.nmi }
func (f *fakeIRQ) MaskablePending() bool  { return f.maskable }
func (f *fakeIRQ) Accept() uint8          { f.maskable = false; return f.acceptVector }
func (f *fakeIRQ) DoAbort(code uint32) bool {
	f.abortCalls++
	return f.tripleFault
}
func (f *fakeIRQ) SoftReset() { f.softResetCalls++ }
func (f *fakeIRQ) PModeInt(vector uint8, software bool) {
	f.pmodeInts = append(f.pmodeInts, vector)
	f.trap = false
	f.nmi = false
}

// fakeCPU is a scriptable CPUState: one 32-bit "EAX" register the fake
// handlers below read/write, plus the program-counter/mode bits the
// dispatch loop consults.
type fakeCPU struct {
	pc            GuestLinear
	cs            CSBase
	status        uint32
	cacheDisabled bool
	eax           uint32
}

func (c *fakeCPU) PC() GuestLinear      { return c.pc }
func (c *fakeCPU) SetPC(pc GuestLinear) { c.pc = pc }
func (c *fakeCPU) CSBase() CSBase       { return c.cs }
func (c *fakeCPU) Status() uint32       { return c.status }
func (c *fakeCPU) CacheDisabled() bool  { return c.cacheDisabled }

// Fake opcode indices and handlers for the interpreter-path tests: movImm
// loads EAX with the immediate, addImm adds it, ret ends the block.
const (
	opMovImm uint16 = 1
	opAddImm uint16 = 2
	opRet    uint16 = 0xff
)

func movImmHandler(cpu *fakeCPU) Handler {
	return func(fetchdat uint32, pc GuestLinear) (GuestLinear, bool) {
		cpu.eax = fetchdat
		return pc + 5, false
	}
}

func addImmHandler(cpu *fakeCPU) Handler {
	return func(fetchdat uint32, pc GuestLinear) (GuestLinear, bool) {
		cpu.eax += fetchdat
		return pc + 5, false
	}
}

func retHandler() Handler {
	return func(fetchdat uint32, pc GuestLinear) (GuestLinear, bool) {
		return pc + 5, true
	}
}
