package vm

// OperandKind describes one operand of an instruction as it appears in the
// instruction stream.
//
// Encoding:
//
//	┌────────┬──────────────────────────────────────────────┐
//	│ opcode │ operands...                                  │
//	│ 1 byte │ reg = 1 byte, lit/addr/target = 4 bytes (BE) │
//	└────────┴──────────────────────────────────────────────┘
type OperandKind uint8

const (
	OperandReg    OperandKind = iota // register index 0..3
	OperandLit                       // 32-bit literal value
	OperandAddr                      // 32-bit heap address
	OperandTarget                    // 32-bit instruction-region offset
)

// Size returns the encoded width of the operand in bytes.
func (k OperandKind) Size() int {
	if k == OperandReg {
		return 1
	}
	return 4
}

// String returns a short name for the operand kind.
func (k OperandKind) String() string {
	switch k {
	case OperandReg:
		return "reg"
	case OperandLit:
		return "lit"
	case OperandAddr:
		return "addr"
	case OperandTarget:
		return "target"
	default:
		return "unknown"
	}
}

var (
	noOperands  = []OperandKind{}
	oneReg      = []OperandKind{OperandReg}
	twoRegs     = []OperandKind{OperandReg, OperandReg}
	oneLit      = []OperandKind{OperandLit}
	oneAddr     = []OperandKind{OperandAddr}
	oneTarget   = []OperandKind{OperandTarget}
	regThenLit  = []OperandKind{OperandReg, OperandLit}
	regThenAddr = []OperandKind{OperandReg, OperandAddr}
	addrThenLit = []OperandKind{OperandAddr, OperandLit}
	addrThenReg = []OperandKind{OperandAddr, OperandReg}
	twoAddrs    = []OperandKind{OperandAddr, OperandAddr}
)

var operandLayouts = map[Opcode][]OperandKind{
	OpNop:     noOperands,
	OpExit:    noOperands,
	OpSyscall: noOperands,

	OpPushLit:  oneLit,
	OpPushReg:  oneReg,
	OpPushHeap: oneAddr,
	OpPopReg:   oneReg,
	OpPopHeap:  oneAddr,
	OpDup:      noOperands,

	OpMovLitReg:   regThenLit,
	OpMovLitHeap:  addrThenLit,
	OpMovHeapReg:  regThenAddr,
	OpMovRegHeap:  addrThenReg,
	OpMovRegReg:   twoRegs,
	OpMovHeapHeap: twoAddrs,

	OpAddReg:   twoRegs,
	OpSubReg:   twoRegs,
	OpMulReg:   twoRegs,
	OpDivReg:   twoRegs,
	OpAddStack: noOperands,
	OpSubStack: noOperands,
	OpMulStack: noOperands,
	OpDivStack: noOperands,

	OpNotReg:   oneReg,
	OpAndReg:   twoRegs,
	OpOrReg:    twoRegs,
	OpXorReg:   twoRegs,
	OpNotStack: noOperands,
	OpAndStack: noOperands,
	OpOrStack:  noOperands,
	OpXorStack: noOperands,

	OpCmpRegReg:   twoRegs,
	OpCmpRegLit:   regThenLit,
	OpCmpStackLit: oneLit,

	OpJmp: oneTarget,
	OpJe:  oneTarget,
	OpJne: oneTarget,
	OpJg:  oneTarget,
	OpJs:  oneTarget,
	OpJo:  oneTarget,
}

// Operands returns the operand layout of the opcode. Undefined opcodes
// take no operands.
func (o Opcode) Operands() []OperandKind {
	if layout, ok := operandLayouts[o]; ok {
		return layout
	}
	return noOperands
}

// Size returns the encoded size of an instruction with this opcode,
// including the opcode byte.
func (o Opcode) Size() int {
	n := 1
	for _, k := range o.Operands() {
		n += k.Size()
	}
	return n
}

// Instruction is a decoded instruction from the instruction region.
type Instruction struct {
	Offset   uint32   // offset of the opcode within the instruction region
	Opcode   Opcode   // opcode byte
	Operands []uint32 // operand values in encoding order
}

// Size returns the encoded size of the instruction in bytes.
func (i Instruction) Size() int {
	return i.Opcode.Size()
}

// Encode appends the encoded instruction to dst and returns the result.
func (i Instruction) Encode(dst []byte) []byte {
	dst = append(dst, byte(i.Opcode))
	for n, k := range i.Opcode.Operands() {
		var v uint32
		if n < len(i.Operands) {
			v = i.Operands[n]
		}
		if k == OperandReg {
			dst = append(dst, byte(v))
			continue
		}
		dst = append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return dst
}

// DecodeInstruction decodes the instruction starting at offset in code.
// It returns false when the operands run past the end of code.
func DecodeInstruction(code []byte, offset int) (Instruction, bool) {
	if offset < 0 || offset >= len(code) {
		return Instruction{}, false
	}
	op := Opcode(code[offset])
	inst := Instruction{Offset: uint32(offset), Opcode: op}
	pos := offset + 1
	for _, k := range op.Operands() {
		if pos+k.Size() > len(code) {
			return inst, false
		}
		if k == OperandReg {
			inst.Operands = append(inst.Operands, uint32(code[pos]))
		} else {
			inst.Operands = append(inst.Operands, combineLiteral(code[pos], code[pos+1], code[pos+2], code[pos+3]))
		}
		pos += k.Size()
	}
	return inst, true
}

// combineLiteral assembles four operand bytes into one big-endian word.
func combineLiteral(b0, b1, b2, b3 byte) uint32 {
	return (uint32(b0) << 24) | (uint32(b1) << 16) | (uint32(b2) << 8) | uint32(b3)
}
