// Package optimizer rewrites parsed assembly programs into shorter
// equivalents before they are assembled.
//
// Passes run on instruction indices, so a program is only rewritten when
// moving code cannot change what it computes: every jump must name a
// label, and labels must not be used as literal values.
package optimizer

import (
	"strings"

	"github.com/tliron/commonlog"

	"github.com/akhildatla/rsvm/pkg/asm"
	"github.com/akhildatla/rsvm/pkg/vm"
)

// Optimizer applies optimizations to a parsed program.
type Optimizer struct {
	enableConstantFolding bool
	enableDeadCode        bool
	log                   commonlog.Logger
}

// Option is a functional option for the Optimizer.
type Option func(*Optimizer)

// WithConstantFolding enables constant folding optimization.
func WithConstantFolding() Option {
	return func(o *Optimizer) {
		o.enableConstantFolding = true
	}
}

// WithAllOptimizations enables all optimizations.
func WithAllOptimizations() Option {
	return func(o *Optimizer) {
		o.enableConstantFolding = true
		o.enableDeadCode = true
	}
}

// New creates a new Optimizer with the given options.
func New(opts ...Option) *Optimizer {
	opt := &Optimizer{log: commonlog.GetLogger("rsvm.optimizer")}
	for _, o := range opts {
		o(opt)
	}
	return opt
}

// Optimize applies enabled optimizations to the program. The input is not
// modified; when nothing can be done it is returned as is.
func (o *Optimizer) Optimize(program *asm.AsmProgram) *asm.AsmProgram {
	if !relocatable(program) {
		o.log.Info("program uses numeric jump targets or label values, not optimizing")
		return program
	}

	result := program

	if o.enableConstantFolding {
		result = o.constantFolding(result)
	}

	if o.enableDeadCode {
		result = o.deadCodeElimination(result)
	}

	return result
}

func opcodeOf(inst asm.AsmInstruction) (vm.Opcode, bool) {
	return vm.OpcodeFromString(strings.ToUpper(inst.Opcode))
}

// relocatable reports whether instructions can be moved without changing
// the program's behavior.
func relocatable(program *asm.AsmProgram) bool {
	for _, inst := range program.Instructions {
		op, ok := opcodeOf(inst)
		if !ok {
			return false
		}
		kinds := op.Operands()
		if len(kinds) != len(inst.Operands) {
			return false
		}
		for n, kind := range kinds {
			operand := inst.Operands[n]
			isLabel := operand.Type == asm.OperandLabel
			if kind == vm.OperandTarget && !isLabel {
				return false
			}
			if kind != vm.OperandTarget && isLabel {
				return false
			}
			if isLabel {
				if _, defined := program.Labels[operand.Label]; !defined {
					return false
				}
			}
		}
	}
	return true
}

// rebuild copies the kept instructions, substituting replacements, and
// moves every label to the new index of its instruction. A label on a
// dropped instruction moves to the next kept one.
func rebuild(program *asm.AsmProgram, keep []bool, replace map[int]asm.AsmInstruction) *asm.AsmProgram {
	out := &asm.AsmProgram{
		Header: program.Header,
		Labels: make(map[string]int, len(program.Labels)),
	}

	newIndex := make([]int, len(program.Instructions)+1)
	for i, inst := range program.Instructions {
		newIndex[i] = len(out.Instructions)
		if !keep[i] {
			continue
		}
		if r, ok := replace[i]; ok {
			inst = r
		}
		out.Instructions = append(out.Instructions, inst)
	}
	newIndex[len(program.Instructions)] = len(out.Instructions)

	for name, idx := range program.Labels {
		out.Labels[name] = newIndex[idx]
	}
	return out
}
