package vm

// Opcode represents a VM instruction opcode.
type Opcode uint8

const (
	// ===== Control (0x00-0x0F) =====
	OpNop     Opcode = 0x00 // No operation
	OpExit    Opcode = 0x01 // Set the Stop flag
	OpSyscall Opcode = 0x0F // Host call selected by register A

	// ===== Stack (0x10-0x1F) =====
	OpPushLit  Opcode = 0x10 // push lit
	OpPushReg  Opcode = 0x11 // push reg
	OpPushHeap Opcode = 0x12 // push heap[addr]
	OpPopReg   Opcode = 0x13 // reg = pop
	OpPopHeap  Opcode = 0x14 // heap[addr] = pop
	OpDup      Opcode = 0x15 // push top of stack again

	// ===== Data Move (0x20-0x2F) =====
	OpMovLitReg   Opcode = 0x20 // reg = lit
	OpMovLitHeap  Opcode = 0x21 // heap[addr] = lit
	OpMovHeapReg  Opcode = 0x22 // reg = heap[addr]
	OpMovRegHeap  Opcode = 0x23 // heap[addr] = reg
	OpMovRegReg   Opcode = 0x24 // dst = src
	OpMovHeapHeap Opcode = 0x25 // heap[dst] = heap[src]

	// ===== Arithmetic (0x30-0x3F) =====
	OpAddReg   Opcode = 0x30 // r1 = r1 + r2
	OpSubReg   Opcode = 0x31 // r1 = r1 - r2
	OpMulReg   Opcode = 0x32 // r1 = r1 * r2
	OpDivReg   Opcode = 0x33 // r1 = r1 / r2
	OpAddStack Opcode = 0x34 // push(a + b)
	OpSubStack Opcode = 0x35 // push(a - b)
	OpMulStack Opcode = 0x36 // push(a * b)
	OpDivStack Opcode = 0x37 // push(a / b)

	// ===== Bitwise (0x40-0x4F) =====
	OpNotReg   Opcode = 0x40 // r = ^r
	OpAndReg   Opcode = 0x41 // r1 = r1 & r2
	OpOrReg    Opcode = 0x42 // r1 = r1 | r2
	OpXorReg   Opcode = 0x43 // r1 = r1 ^ r2
	OpNotStack Opcode = 0x44 // push(^pop)
	OpAndStack Opcode = 0x45 // push(a & b)
	OpOrStack  Opcode = 0x46 // push(a | b)
	OpXorStack Opcode = 0x47 // push(a ^ b)

	// ===== Comparison (0x50-0x5F) =====
	OpCmpRegReg   Opcode = 0x50 // compare r1, r2
	OpCmpRegLit   Opcode = 0x51 // compare reg, lit
	OpCmpStackLit Opcode = 0x52 // compare top of stack, lit

	// ===== Jumps (0x60-0x6F) =====
	OpJmp Opcode = 0x60 // pc = target
	OpJe  Opcode = 0x61 // if Equal
	OpJne Opcode = 0x62 // if NotEqual
	OpJg  Opcode = 0x63 // if Greater
	OpJs  Opcode = 0x64 // if Smaller
	OpJo  Opcode = 0x65 // if Overflow
)

var opcodeNames = map[Opcode]string{
	OpNop:     "NOP",
	OpExit:    "EXIT",
	OpSyscall: "SYSCALL",

	OpPushLit:  "PUSH_LIT",
	OpPushReg:  "PUSH_REG",
	OpPushHeap: "PUSH_HEAP",
	OpPopReg:   "POP_REG",
	OpPopHeap:  "POP_HEAP",
	OpDup:      "DUP",

	OpMovLitReg:   "MOV_LIT_REG",
	OpMovLitHeap:  "MOV_LIT_HEAP",
	OpMovHeapReg:  "MOV_HEAP_REG",
	OpMovRegHeap:  "MOV_REG_HEAP",
	OpMovRegReg:   "MOV_REG_REG",
	OpMovHeapHeap: "MOV_HEAP_HEAP",

	OpAddReg:   "ADD_REG",
	OpSubReg:   "SUB_REG",
	OpMulReg:   "MUL_REG",
	OpDivReg:   "DIV_REG",
	OpAddStack: "ADD_STACK",
	OpSubStack: "SUB_STACK",
	OpMulStack: "MUL_STACK",
	OpDivStack: "DIV_STACK",

	OpNotReg:   "NOT_REG",
	OpAndReg:   "AND_REG",
	OpOrReg:    "OR_REG",
	OpXorReg:   "XOR_REG",
	OpNotStack: "NOT_STACK",
	OpAndStack: "AND_STACK",
	OpOrStack:  "OR_STACK",
	OpXorStack: "XOR_STACK",

	OpCmpRegReg:   "CMP_REG_REG",
	OpCmpRegLit:   "CMP_REG_LIT",
	OpCmpStackLit: "CMP_STACK_LIT",

	OpJmp: "JMP",
	OpJe:  "JE",
	OpJne: "JNE",
	OpJg:  "JG",
	OpJs:  "JS",
	OpJo:  "JO",
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

// String returns the mnemonic of an opcode, or "UNKNOWN" for bytes that
// have no instruction assigned.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}

// Defined reports whether the opcode has an instruction assigned.
func (o Opcode) Defined() bool {
	_, ok := opcodeNames[o]
	return ok
}

// OpcodeFromString returns the opcode for the given mnemonic.
func OpcodeFromString(s string) (Opcode, bool) {
	op, ok := opcodesByName[s]
	return op, ok
}
