package optimizer

import (
	"github.com/akhildatla/rsvm/pkg/asm"
	"github.com/akhildatla/rsvm/pkg/vm"
)

// stackFolds are the binary stack operations that can be evaluated at
// assembly time. Arithmetic is not folded because it writes the Overflow
// flag.
var stackFolds = map[vm.Opcode]func(a, b uint32) uint32{
	vm.OpAndStack: func(a, b uint32) uint32 { return a & b },
	vm.OpOrStack:  func(a, b uint32) uint32 { return a | b },
	vm.OpXorStack: func(a, b uint32) uint32 { return a ^ b },
}

// constantFolding evaluates bitwise operations on literals and drops
// NOPs, repeating until nothing changes.
func (o *Optimizer) constantFolding(program *asm.AsmProgram) *asm.AsmProgram {
	for {
		next, folded := foldOnce(program)
		if folded == 0 {
			return program
		}
		o.log.Infof("constant folding: rewrote %d instruction sequences", folded)
		program = next
	}
}

func foldOnce(program *asm.AsmProgram) (*asm.AsmProgram, int) {
	n := len(program.Instructions)
	labelled := make(map[int]bool, len(program.Labels))
	for _, idx := range program.Labels {
		labelled[idx] = true
	}

	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	replace := make(map[int]asm.AsmInstruction)
	folded := 0

	for i := 0; i < n; {
		if op, _ := opcodeOf(program.Instructions[i]); op == vm.OpNop {
			keep[i] = false
			folded++
			i++
			continue
		}
		width, inst, ok := foldAt(program.Instructions, i, labelled)
		if !ok {
			i++
			continue
		}
		replace[i] = inst
		for j := i + 1; j < i+width; j++ {
			keep[j] = false
		}
		folded++
		i += width
	}

	if folded == 0 {
		return program, 0
	}
	return rebuild(program, keep, replace), folded
}

// foldAt tries to fold the sequence starting at i into one instruction.
// Nothing may jump into the middle of a folded sequence.
func foldAt(insts []asm.AsmInstruction, i int, labelled map[int]bool) (int, asm.AsmInstruction, bool) {
	at := func(j int) (vm.Opcode, bool) {
		if j >= len(insts) || labelled[j] {
			return 0, false
		}
		return opcodeOf(insts[j])
	}

	first := insts[i]
	op0, _ := opcodeOf(first)

	switch op0 {
	case vm.OpPushLit:
		a := first.Operands[0].IntVal
		op1, ok := at(i + 1)
		if !ok {
			break
		}
		if op1 == vm.OpNotStack {
			return 2, pushLit(^a, first.Line), true
		}
		if op1 != vm.OpPushLit {
			break
		}
		b := insts[i+1].Operands[0].IntVal
		op2, ok := at(i + 2)
		if !ok {
			break
		}
		if f, ok := stackFolds[op2]; ok {
			return 3, pushLit(f(a, b), first.Line), true
		}

	case vm.OpMovLitReg:
		op1, ok := at(i + 1)
		if !ok || op1 != vm.OpNotReg {
			break
		}
		reg := first.Operands[0]
		if insts[i+1].Operands[0].Reg != reg.Reg {
			break
		}
		return 2, asm.AsmInstruction{
			Opcode:   vm.OpMovLitReg.String(),
			Operands: []asm.Operand{reg, intOperand(^first.Operands[1].IntVal)},
			Line:     first.Line,
		}, true
	}

	return 0, asm.AsmInstruction{}, false
}

func pushLit(v uint32, line int) asm.AsmInstruction {
	return asm.AsmInstruction{
		Opcode:   vm.OpPushLit.String(),
		Operands: []asm.Operand{intOperand(v)},
		Line:     line,
	}
}

func intOperand(v uint32) asm.Operand {
	return asm.Operand{Type: asm.OperandInt, IntVal: v}
}
