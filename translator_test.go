// translator_test.go - bookkeeping-level coverage of C6: BlockInit's
// index/page-list linkage, MarkBlock's walk-without-emitting pass, and
// CompileBlock's post-compile flags/entry-point bookkeeping. None of these
// tests invoke the emitted host code itself (that would require
// callCompiledBlockAsm or the handler trampolines, whose stack-offset
// assumptions are still unverified against a real compiler) - only that the
// translator leaves the right metadata behind.
package dynarec

import "testing"

func newTranslatorFixture(t *testing.T, mem *fakeMemory, opcodes *fakeOpcodes) (*Translator, *BlockStorage, *handlerRegistry) {
	t.Helper()
	mmu := newFakeMMU(len(mem.ram))
	index := NewBlockIndex(mem)
	arena := newTestArena(t, 8)
	storage := NewBlockStorage(8, arena, index, mem)
	smc := NewSMC(mem)
	fetch := newFakeFetch(mem)
	backend, err := newBackend(DefaultHostArch())
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	registry := newHandlerRegistry()
	tr := NewTranslator(storage, index, arena, smc, mmu, mem, fetch, opcodes, nil, nil, backend, registry)
	return tr, storage, registry
}

func TestTranslatorBlockInitLinksIndexAndPageList(t *testing.T) {
	mem := newFakeMemory(8192)
	tr, storage, _ := newTranslatorFixture(t, mem, newFakeOpcodes())

	idx, err := tr.BlockInit(0x100, 7, 0x100, 0)
	if err != nil {
		t.Fatalf("BlockInit: %v", err)
	}
	b := storage.Get(idx)
	if b.startPC != 0x100 || b.csBase != 7 || b.phys != 0x100 {
		t.Fatalf("BlockInit left unexpected identity: %+v", b)
	}
	if b.headExecBlock != invalidExecBlock {
		t.Errorf("headExecBlock = %#x before any compile, want invalidExecBlock", b.headExecBlock)
	}

	found := tr.index.Lookup(storage, 7, 0x100, func(cb *CodeBlock) bool {
		return cb.csBase == 7 && cb.startPC == 0x100
	})
	if found != idx {
		t.Errorf("index.Lookup after BlockInit = %d, want %d", found, idx)
	}

	page := mem.PageFor(0x100)
	if page.listHead[0] != idx {
		t.Errorf("primary page's listHead[0] = %d, want %d", page.listHead[0], idx)
	}
}

func TestTranslatorMarkBlockTracksFootprintWithoutEmitting(t *testing.T) {
	mem := newFakeMemory(8192)
	encodeInsn(mem, 0x200, opMovImm, 1)
	encodeInsn(mem, 0x205, opRet, 0)

	opcodes := newFakeOpcodes() // Handler() stays unconsulted by MarkBlock
	tr, storage, _ := newTranslatorFixture(t, mem, opcodes)

	idx, err := tr.BlockInit(0x200, 0, 0x200, 0)
	if err != nil {
		t.Fatalf("BlockInit: %v", err)
	}
	if err := tr.MarkBlock(idx); err != nil {
		t.Fatalf("MarkBlock: %v", err)
	}

	b := storage.Get(idx)
	if b.flags.has(FlagWasRecompiled) {
		t.Error("MarkBlock must not set WAS_RECOMPILED - it emits no code")
	}
	page := mem.PageFor(0x200)
	if page.codePresentMask == 0 {
		t.Error("MarkBlock should still mark code-present bits for the instructions it walked")
	}
}

func TestTranslatorCompileBlockSetsEntryPointAndFlags(t *testing.T) {
	mem := newFakeMemory(8192)
	encodeInsn(mem, 0x300, opMovImm, 42)
	encodeInsn(mem, 0x305, opRet, 0)

	cpu := &fakeCPU{}
	opcodes := newFakeOpcodes()
	opcodes.handlers[opMovImm] = movImmHandler(cpu)
	opcodes.handlers[opRet] = retHandler()

	tr, storage, registry := newTranslatorFixture(t, mem, opcodes)
	idx, err := tr.BlockInit(0x300, 0, 0x300, 0)
	if err != nil {
		t.Fatalf("BlockInit: %v", err)
	}
	if err := tr.CompileBlock(idx); err != nil {
		t.Fatalf("CompileBlock: %v", err)
	}

	b := storage.Get(idx)
	if !b.flags.has(FlagWasRecompiled) {
		t.Error("CompileBlock should set WAS_RECOMPILED")
	}
	if b.headExecBlock == invalidExecBlock {
		t.Error("CompileBlock should allocate at least one exec block")
	}
	if len(registry.thunks) == 0 {
		t.Error("CompileBlock should have registered at least one handler for the emitted calls")
	}
}

func TestTranslatorCompileBlockFailsWithoutExecMemory(t *testing.T) {
	mem := newFakeMemory(8192)
	encodeInsn(mem, 0x400, opRet, 0)

	opcodes := newFakeOpcodes()
	opcodes.handlers[opRet] = retHandler()

	mmu := newFakeMMU(len(mem.ram))
	index := NewBlockIndex(mem)
	arena, err := NewExecArena(1, DefaultExecBlockSize, 16)
	if err != nil {
		t.Fatalf("NewExecArena: %v", err)
	}
	t.Cleanup(func() { arena.Close() })
	storage := NewBlockStorage(2, arena, index, mem)
	smc := NewSMC(mem)
	fetch := newFakeFetch(mem)
	backend, err := newBackend(DefaultHostArch())
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	registry := newHandlerRegistry()
	tr := NewTranslator(storage, index, arena, smc, mmu, mem, fetch, opcodes, nil, nil, backend, registry)

	idx, err := tr.BlockInit(0x400, 0, 0x400, 0)
	if err != nil {
		t.Fatalf("BlockInit: %v", err)
	}
	// Exhaust the single exec block before compiling, so NewEmitter has
	// nothing to allocate and no evictor is installed to make room.
	if _, allocErr := arena.Allocate(invalidExecBlock, 0xdead); allocErr != nil {
		t.Fatalf("Allocate: %v", allocErr)
	}

	if err := tr.CompileBlock(idx); err == nil {
		t.Error("CompileBlock should fail when the arena has no free exec blocks and no evictor")
	}
}
