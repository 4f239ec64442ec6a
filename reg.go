// reg.go - host register tables for the three emitter backends.
//
// Trimmed to the registers a JIT backend for this core actually needs:
// general-purpose registers (argument passing, scratch, guest-register-cache
// spill slots) plus one float vector register file per architecture for the
// SSE/FP trampoline helpers (sse_amd64.go). AVX-512 zmm/k-mask, AVX ymm, SVE
// z/p, and RVV vector register entries are dropped: no component of this
// core performs masked, gathered, scattered, or scalable vector math (see
// DESIGN.md).
package dynarec

// Register describes one host register: its assembly name, width in bits,
// and the numeric encoding used inside ModR/M, REX, and fixed-width
// instruction words.
type Register struct {
	Name     string
	Size     int
	Encoding uint8
}

var amd64Registers = map[string]Register{
	"rax": {Name: "rax", Size: 64, Encoding: 0},
	"rcx": {Name: "rcx", Size: 64, Encoding: 1},
	"rdx": {Name: "rdx", Size: 64, Encoding: 2},
	"rbx": {Name: "rbx", Size: 64, Encoding: 3},
	"rsp": {Name: "rsp", Size: 64, Encoding: 4},
	"rbp": {Name: "rbp", Size: 64, Encoding: 5},
	"rsi": {Name: "rsi", Size: 64, Encoding: 6},
	"rdi": {Name: "rdi", Size: 64, Encoding: 7},
	"r8":  {Name: "r8", Size: 64, Encoding: 8},
	"r9":  {Name: "r9", Size: 64, Encoding: 9},
	"r10": {Name: "r10", Size: 64, Encoding: 10},
	"r11": {Name: "r11", Size: 64, Encoding: 11},
	"r12": {Name: "r12", Size: 64, Encoding: 12},
	"r13": {Name: "r13", Size: 64, Encoding: 13},
	"r14": {Name: "r14", Size: 64, Encoding: 14},
	"r15": {Name: "r15", Size: 64, Encoding: 15},

	"eax": {Name: "eax", Size: 32, Encoding: 0},
	"ecx": {Name: "ecx", Size: 32, Encoding: 1},
	"edx": {Name: "edx", Size: 32, Encoding: 2},
	"ebx": {Name: "ebx", Size: 32, Encoding: 3},
	"esp": {Name: "esp", Size: 32, Encoding: 4},
	"ebp": {Name: "ebp", Size: 32, Encoding: 5},
	"esi": {Name: "esi", Size: 32, Encoding: 6},
	"edi": {Name: "edi", Size: 32, Encoding: 7},

	"al": {Name: "al", Size: 8, Encoding: 0},
	"cl": {Name: "cl", Size: 8, Encoding: 1},
	"dl": {Name: "dl", Size: 8, Encoding: 2},
	"bl": {Name: "bl", Size: 8, Encoding: 3},

	"xmm0":  {Name: "xmm0", Size: 128, Encoding: 0},
	"xmm1":  {Name: "xmm1", Size: 128, Encoding: 1},
	"xmm2":  {Name: "xmm2", Size: 128, Encoding: 2},
	"xmm3":  {Name: "xmm3", Size: 128, Encoding: 3},
	"xmm4":  {Name: "xmm4", Size: 128, Encoding: 4},
	"xmm5":  {Name: "xmm5", Size: 128, Encoding: 5},
	"xmm6":  {Name: "xmm6", Size: 128, Encoding: 6},
	"xmm7":  {Name: "xmm7", Size: 128, Encoding: 7},
	"xmm8":  {Name: "xmm8", Size: 128, Encoding: 8},
	"xmm9":  {Name: "xmm9", Size: 128, Encoding: 9},
	"xmm10": {Name: "xmm10", Size: 128, Encoding: 10},
	"xmm11": {Name: "xmm11", Size: 128, Encoding: 11},
	"xmm12": {Name: "xmm12", Size: 128, Encoding: 12},
	"xmm13": {Name: "xmm13", Size: 128, Encoding: 13},
	"xmm14": {Name: "xmm14", Size: 128, Encoding: 14},
	"xmm15": {Name: "xmm15", Size: 128, Encoding: 15},
}

var arm64Registers = map[string]Register{
	"x0": {Name: "x0", Size: 64, Encoding: 0}, "x1": {Name: "x1", Size: 64, Encoding: 1},
	"x2": {Name: "x2", Size: 64, Encoding: 2}, "x3": {Name: "x3", Size: 64, Encoding: 3},
	"x4": {Name: "x4", Size: 64, Encoding: 4}, "x5": {Name: "x5", Size: 64, Encoding: 5},
	"x6": {Name: "x6", Size: 64, Encoding: 6}, "x7": {Name: "x7", Size: 64, Encoding: 7},
	"x8": {Name: "x8", Size: 64, Encoding: 8}, "x9": {Name: "x9", Size: 64, Encoding: 9},
	"x10": {Name: "x10", Size: 64, Encoding: 10}, "x11": {Name: "x11", Size: 64, Encoding: 11},
	"x12": {Name: "x12", Size: 64, Encoding: 12}, "x13": {Name: "x13", Size: 64, Encoding: 13},
	"x14": {Name: "x14", Size: 64, Encoding: 14}, "x15": {Name: "x15", Size: 64, Encoding: 15},
	"x16": {Name: "x16", Size: 64, Encoding: 16}, "x17": {Name: "x17", Size: 64, Encoding: 17},
	"x18": {Name: "x18", Size: 64, Encoding: 18}, "x19": {Name: "x19", Size: 64, Encoding: 19},
	"x20": {Name: "x20", Size: 64, Encoding: 20}, "x21": {Name: "x21", Size: 64, Encoding: 21},
	"x22": {Name: "x22", Size: 64, Encoding: 22}, "x23": {Name: "x23", Size: 64, Encoding: 23},
	"x24": {Name: "x24", Size: 64, Encoding: 24}, "x25": {Name: "x25", Size: 64, Encoding: 25},
	"x26": {Name: "x26", Size: 64, Encoding: 26}, "x27": {Name: "x27", Size: 64, Encoding: 27},
	"x28": {Name: "x28", Size: 64, Encoding: 28},
	"x29": {Name: "x29", Size: 64, Encoding: 29}, // frame pointer
	"x30": {Name: "x30", Size: 64, Encoding: 30}, // link register
	"sp":  {Name: "sp", Size: 64, Encoding: 31},

	"w0": {Name: "w0", Size: 32, Encoding: 0}, "w1": {Name: "w1", Size: 32, Encoding: 1},
	"w2": {Name: "w2", Size: 32, Encoding: 2}, "w3": {Name: "w3", Size: 32, Encoding: 3},

	"v0": {Name: "v0", Size: 128, Encoding: 0}, "v1": {Name: "v1", Size: 128, Encoding: 1},
	"v2": {Name: "v2", Size: 128, Encoding: 2}, "v3": {Name: "v3", Size: 128, Encoding: 3},
	"v4": {Name: "v4", Size: 128, Encoding: 4}, "v5": {Name: "v5", Size: 128, Encoding: 5},
	"v6": {Name: "v6", Size: 128, Encoding: 6}, "v7": {Name: "v7", Size: 128, Encoding: 7},
	"v8": {Name: "v8", Size: 128, Encoding: 8}, "v9": {Name: "v9", Size: 128, Encoding: 9},
	"v10": {Name: "v10", Size: 128, Encoding: 10}, "v11": {Name: "v11", Size: 128, Encoding: 11},
	"v12": {Name: "v12", Size: 128, Encoding: 12}, "v13": {Name: "v13", Size: 128, Encoding: 13},
	"v14": {Name: "v14", Size: 128, Encoding: 14}, "v15": {Name: "v15", Size: 128, Encoding: 15},
}

var riscv64Registers = map[string]Register{
	"zero": {Name: "zero", Size: 64, Encoding: 0}, "ra": {Name: "ra", Size: 64, Encoding: 1},
	"sp": {Name: "sp", Size: 64, Encoding: 2}, "gp": {Name: "gp", Size: 64, Encoding: 3},
	"tp": {Name: "tp", Size: 64, Encoding: 4}, "t0": {Name: "t0", Size: 64, Encoding: 5},
	"t1": {Name: "t1", Size: 64, Encoding: 6}, "t2": {Name: "t2", Size: 64, Encoding: 7},
	"s0": {Name: "s0", Size: 64, Encoding: 8}, "fp": {Name: "fp", Size: 64, Encoding: 8},
	"s1": {Name: "s1", Size: 64, Encoding: 9}, "a0": {Name: "a0", Size: 64, Encoding: 10},
	"a1": {Name: "a1", Size: 64, Encoding: 11}, "a2": {Name: "a2", Size: 64, Encoding: 12},
	"a3": {Name: "a3", Size: 64, Encoding: 13}, "a4": {Name: "a4", Size: 64, Encoding: 14},
	"a5": {Name: "a5", Size: 64, Encoding: 15}, "a6": {Name: "a6", Size: 64, Encoding: 16},
	"a7": {Name: "a7", Size: 64, Encoding: 17}, "s2": {Name: "s2", Size: 64, Encoding: 18},
	"s3": {Name: "s3", Size: 64, Encoding: 19}, "s4": {Name: "s4", Size: 64, Encoding: 20},
	"s5": {Name: "s5", Size: 64, Encoding: 21}, "s6": {Name: "s6", Size: 64, Encoding: 22},
	"s7": {Name: "s7", Size: 64, Encoding: 23}, "s8": {Name: "s8", Size: 64, Encoding: 24},
	"s9": {Name: "s9", Size: 64, Encoding: 25}, "s10": {Name: "s10", Size: 64, Encoding: 26},
	"s11": {Name: "s11", Size: 64, Encoding: 27}, "t3": {Name: "t3", Size: 64, Encoding: 28},
	"t4": {Name: "t4", Size: 64, Encoding: 29}, "t5": {Name: "t5", Size: 64, Encoding: 30},
	"t6": {Name: "t6", Size: 64, Encoding: 31},

	"f0": {Name: "f0", Size: 64, Encoding: 0}, "f1": {Name: "f1", Size: 64, Encoding: 1},
	"f2": {Name: "f2", Size: 64, Encoding: 2}, "f3": {Name: "f3", Size: 64, Encoding: 3},
	"f10": {Name: "f10", Size: 64, Encoding: 10}, "f11": {Name: "f11", Size: 64, Encoding: 11},
}

// GetRegister returns register info for the given host architecture and
// register name.
func GetRegister(arch HostArch, name string) (Register, bool) {
	switch arch {
	case ArchAMD64:
		r, ok := amd64Registers[name]
		return r, ok
	case ArchARM64:
		r, ok := arm64Registers[name]
		return r, ok
	case ArchRISCV64:
		r, ok := riscv64Registers[name]
		return r, ok
	default:
		return Register{}, false
	}
}

// IsRegister reports whether name is a valid register for arch.
func IsRegister(arch HostArch, name string) bool {
	_, ok := GetRegister(arch, name)
	return ok
}
