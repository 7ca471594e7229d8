package optimizer

import (
	"github.com/akhildatla/rsvm/pkg/asm"
	"github.com/akhildatla/rsvm/pkg/vm"
)

// WithDeadCodeElimination enables dead code elimination.
func WithDeadCodeElimination() Option {
	return func(o *Optimizer) {
		o.enableDeadCode = true
	}
}

// deadCodeElimination removes instructions that no path from the first
// instruction reaches.
func (o *Optimizer) deadCodeElimination(program *asm.AsmProgram) *asm.AsmProgram {
	n := len(program.Instructions)
	if n == 0 {
		return program
	}

	reachable := make([]bool, n)
	work := []int{0}
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		if i >= n || reachable[i] {
			continue
		}
		reachable[i] = true

		inst := program.Instructions[i]
		op, _ := opcodeOf(inst)
		if isJump(op) {
			work = append(work, program.Labels[inst.Operands[0].Label])
		}
		if fallsThrough(op) {
			work = append(work, i+1)
		}
	}

	removed := 0
	for _, r := range reachable {
		if !r {
			removed++
		}
	}
	if removed == 0 {
		return program
	}

	o.log.Infof("dead code elimination: removed %d unreachable instructions", removed)
	return rebuild(program, reachable, nil)
}

func isJump(op vm.Opcode) bool {
	kinds := op.Operands()
	return len(kinds) == 1 && kinds[0] == vm.OperandTarget
}

// fallsThrough reports whether execution can continue to the next
// instruction after op.
func fallsThrough(op vm.Opcode) bool {
	return op != vm.OpExit && op != vm.OpJmp
}
