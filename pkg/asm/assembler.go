// Package asm assembles RSVM assembly source into program images.
//
// Source is line oriented:
//
//	.header "Hi!", 0x0A     ; header bytes, preloaded into heap cells
//	start:
//	    MOV_LIT_REG A, 3    ; destination first
//	    JMP start
//
// Mnemonics are case-insensitive. Registers are A-D. Integer operands
// accept decimal, 0x hex, 0o octal, 0b binary and 'c' character forms.
// Labels resolve to offsets in the instruction region.
package asm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/akhildatla/rsvm/pkg/vm"
)

// Assembly errors.
var (
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrOperandCount   = errors.New("wrong number of operands")
	ErrOperandType    = errors.New("wrong operand type")
	ErrUndefinedLabel = errors.New("undefined label")
)

// Program is the output of the assembler.
type Program struct {
	Header       []byte
	Code         []byte
	Instructions []vm.Instruction
	Labels       map[string]uint32 // label -> instruction-region offset
}

// Image encodes the program as a loadable image.
func (p *Program) Image() ([]byte, error) {
	return vm.EncodeImage(p.Header, p.Code)
}

// Assemble assembles source and returns the program image.
func Assemble(source string) ([]byte, error) {
	prog, err := Compile(source)
	if err != nil {
		return nil, err
	}
	return prog.Image()
}

// Compile parses and assembles source.
func Compile(source string) (*Program, error) {
	asmProgram, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return AssembleProgram(asmProgram)
}

// Parse parses source without assembling it, so the program can be
// rewritten before encoding.
func Parse(source string) (*AsmProgram, error) {
	return NewParser(source).Parse()
}

// AssembleProgram assembles an already parsed program.
func AssembleProgram(program *AsmProgram) (*Program, error) {
	a := &Assembler{}
	return a.assemble(program)
}

// Assembler turns a parsed program into bytecode in two passes: the first
// lays out instruction offsets, the second encodes operands with labels
// resolved.
type Assembler struct {
	opcodes []vm.Opcode
	offsets []uint32
	labels  map[string]uint32
}

func (a *Assembler) assemble(program *AsmProgram) (*Program, error) {
	if err := a.layout(program); err != nil {
		return nil, err
	}

	out := &Program{
		Header: program.Header,
		Labels: a.labels,
	}
	for i, inst := range program.Instructions {
		encoded, err := a.encode(i, inst)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", inst.Line, err)
		}
		out.Instructions = append(out.Instructions, encoded)
		out.Code = encoded.Encode(out.Code)
	}
	return out, nil
}

func (a *Assembler) layout(program *AsmProgram) error {
	a.opcodes = make([]vm.Opcode, len(program.Instructions))
	a.offsets = make([]uint32, len(program.Instructions)+1)

	for i, inst := range program.Instructions {
		opcode, ok := vm.OpcodeFromString(strings.ToUpper(inst.Opcode))
		if !ok {
			return fmt.Errorf("line %d: %w: %s", inst.Line, ErrUnknownOpcode, inst.Opcode)
		}
		a.opcodes[i] = opcode
		a.offsets[i+1] = a.offsets[i] + uint32(opcode.Size())
	}

	a.labels = make(map[string]uint32, len(program.Labels))
	for name, idx := range program.Labels {
		a.labels[name] = a.offsets[idx]
	}
	return nil
}

func (a *Assembler) encode(i int, inst AsmInstruction) (vm.Instruction, error) {
	opcode := a.opcodes[i]
	kinds := opcode.Operands()
	if len(inst.Operands) != len(kinds) {
		return vm.Instruction{}, fmt.Errorf("%w: %s takes %d, got %d", ErrOperandCount, opcode, len(kinds), len(inst.Operands))
	}

	out := vm.Instruction{
		Offset:   a.offsets[i],
		Opcode:   opcode,
		Operands: make([]uint32, len(kinds)),
	}
	for n, kind := range kinds {
		v, err := a.operandValue(kind, inst.Operands[n])
		if err != nil {
			return vm.Instruction{}, fmt.Errorf("%s operand %d: %w", opcode, n+1, err)
		}
		out.Operands[n] = v
	}
	return out, nil
}

func (a *Assembler) operandValue(kind vm.OperandKind, op Operand) (uint32, error) {
	if kind == vm.OperandReg {
		if op.Type != OperandRegister {
			return 0, fmt.Errorf("%w: expected register", ErrOperandType)
		}
		return uint32(op.Reg), nil
	}

	switch op.Type {
	case OperandInt:
		return op.IntVal, nil
	case OperandLabel:
		off, ok := a.labels[op.Label]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUndefinedLabel, op.Label)
		}
		return off, nil
	default:
		return 0, fmt.Errorf("%w: expected %s, got register %s", ErrOperandType, kind, op.Reg)
	}
}
