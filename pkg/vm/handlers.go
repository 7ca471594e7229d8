package vm

import (
	"fmt"
	"math"
)

// handler executes one instruction. It is entered with the program counter
// on the opcode and must leave it on the instruction's last byte; Step then
// advances it onto the next opcode. Jumps store target-1 for that reason.
type handler func(vm *VM) error

// dispatch maps every opcode byte to its handler. Bytes without an
// instruction map to opNop.
var dispatch [256]handler

func init() {
	for i := range dispatch {
		dispatch[i] = opNop
	}

	dispatch[OpNop] = opNop
	dispatch[OpExit] = opExit
	dispatch[OpSyscall] = opSyscall

	dispatch[OpPushLit] = opPushLit
	dispatch[OpPushReg] = opPushReg
	dispatch[OpPushHeap] = opPushHeap
	dispatch[OpPopReg] = opPopReg
	dispatch[OpPopHeap] = opPopHeap
	dispatch[OpDup] = opDup

	dispatch[OpMovLitReg] = opMovLitReg
	dispatch[OpMovLitHeap] = opMovLitHeap
	dispatch[OpMovHeapReg] = opMovHeapReg
	dispatch[OpMovRegHeap] = opMovRegHeap
	dispatch[OpMovRegReg] = opMovRegReg
	dispatch[OpMovHeapHeap] = opMovHeapHeap

	dispatch[OpAddReg] = arithReg(addChecked)
	dispatch[OpSubReg] = arithReg(subChecked)
	dispatch[OpMulReg] = arithReg(mulChecked)
	dispatch[OpDivReg] = opDivReg
	dispatch[OpAddStack] = arithStack(addChecked)
	dispatch[OpSubStack] = arithStack(subChecked)
	dispatch[OpMulStack] = arithStack(mulChecked)
	dispatch[OpDivStack] = opDivStack

	dispatch[OpNotReg] = opNotReg
	dispatch[OpAndReg] = bitwiseReg(func(a, b uint32) uint32 { return a & b })
	dispatch[OpOrReg] = bitwiseReg(func(a, b uint32) uint32 { return a | b })
	dispatch[OpXorReg] = bitwiseReg(func(a, b uint32) uint32 { return a ^ b })
	dispatch[OpNotStack] = opNotStack
	dispatch[OpAndStack] = bitwiseStack(func(a, b uint32) uint32 { return a & b })
	dispatch[OpOrStack] = bitwiseStack(func(a, b uint32) uint32 { return a | b })
	dispatch[OpXorStack] = bitwiseStack(func(a, b uint32) uint32 { return a ^ b })

	dispatch[OpCmpRegReg] = opCmpRegReg
	dispatch[OpCmpRegLit] = opCmpRegLit
	dispatch[OpCmpStackLit] = opCmpStackLit

	dispatch[OpJmp] = jumpIf(nil)
	dispatch[OpJe] = jumpIf(flagPtr(FlagEqual))
	dispatch[OpJne] = jumpIf(flagPtr(FlagNotEqual))
	dispatch[OpJg] = jumpIf(flagPtr(FlagGreater))
	dispatch[OpJs] = jumpIf(flagPtr(FlagSmaller))
	dispatch[OpJo] = jumpIf(flagPtr(FlagOverflow))
}

// ===== Control =====

func opNop(vm *VM) error { return nil }

func opExit(vm *VM) error {
	vm.flags.Set(FlagStop, true)
	return nil
}

// ===== Stack =====

func opPushLit(vm *VM) error {
	v, err := vm.FetchLit()
	if err != nil {
		return err
	}
	vm.stack.Push(v)
	return nil
}

func opPushReg(vm *VM) error {
	r, err := vm.fetchRegister()
	if err != nil {
		return err
	}
	vm.stack.Push(vm.regs.Get(r))
	return nil
}

func opPushHeap(vm *VM) error {
	addr, err := vm.FetchLit()
	if err != nil {
		return err
	}
	vm.stack.Push(vm.heap.Read(addr))
	return nil
}

func opPopReg(vm *VM) error {
	r, err := vm.fetchRegister()
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	vm.regs.Set(r, v)
	return nil
}

func opPopHeap(vm *VM) error {
	addr, err := vm.FetchLit()
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.store(addr, v)
}

func opDup(vm *VM) error {
	v, ok := vm.stack.Peek()
	if !ok {
		return ErrStackUnderflow
	}
	vm.stack.Push(v)
	return nil
}

// ===== Data move =====

func opMovLitReg(vm *VM) error {
	r, err := vm.fetchRegister()
	if err != nil {
		return err
	}
	v, err := vm.FetchLit()
	if err != nil {
		return err
	}
	vm.regs.Set(r, v)
	return nil
}

func opMovLitHeap(vm *VM) error {
	addr, err := vm.FetchLit()
	if err != nil {
		return err
	}
	v, err := vm.FetchLit()
	if err != nil {
		return err
	}
	return vm.store(addr, v)
}

func opMovHeapReg(vm *VM) error {
	r, err := vm.fetchRegister()
	if err != nil {
		return err
	}
	addr, err := vm.FetchLit()
	if err != nil {
		return err
	}
	vm.regs.Set(r, vm.heap.Read(addr))
	return nil
}

func opMovRegHeap(vm *VM) error {
	addr, err := vm.FetchLit()
	if err != nil {
		return err
	}
	r, err := vm.fetchRegister()
	if err != nil {
		return err
	}
	return vm.store(addr, vm.regs.Get(r))
}

func opMovRegReg(vm *VM) error {
	dst, src, err := vm.fetchRegisterPair()
	if err != nil {
		return err
	}
	vm.regs.Set(dst, vm.regs.Get(src))
	return nil
}

func opMovHeapHeap(vm *VM) error {
	dst, err := vm.FetchLit()
	if err != nil {
		return err
	}
	src, err := vm.FetchLit()
	if err != nil {
		return err
	}
	return vm.store(dst, vm.heap.Read(src))
}

func (vm *VM) fetchRegisterPair() (Register, Register, error) {
	r1, err := vm.fetchRegister()
	if err != nil {
		return 0, 0, err
	}
	r2, err := vm.fetchRegister()
	if err != nil {
		return 0, 0, err
	}
	return r1, r2, nil
}

// ===== Arithmetic =====

// checkedOp returns the wrapped result and whether the unsigned operation
// overflowed.
type checkedOp func(a, b uint32) (uint32, bool)

func addChecked(a, b uint32) (uint32, bool) {
	return a + b, a > math.MaxUint32-b
}

func subChecked(a, b uint32) (uint32, bool) {
	return a - b, a < b
}

func mulChecked(a, b uint32) (uint32, bool) {
	return a * b, b != 0 && a > math.MaxUint32/b
}

func arithReg(op checkedOp) handler {
	return func(vm *VM) error {
		r1, r2, err := vm.fetchRegisterPair()
		if err != nil {
			return err
		}
		v, overflow := op(vm.regs.Get(r1), vm.regs.Get(r2))
		vm.flags.Set(FlagOverflow, overflow)
		vm.regs.Set(r1, v)
		return nil
	}
}

func arithStack(op checkedOp) handler {
	return func(vm *VM) error {
		a, b, err := vm.pop2()
		if err != nil {
			return err
		}
		v, overflow := op(a, b)
		vm.flags.Set(FlagOverflow, overflow)
		vm.stack.Push(v)
		return nil
	}
}

func opDivReg(vm *VM) error {
	r1, r2, err := vm.fetchRegisterPair()
	if err != nil {
		return err
	}
	divisor := vm.regs.Get(r2)
	if divisor == 0 {
		return fmt.Errorf("%w: %s / %s", ErrDivisionByZero, r1, r2)
	}
	vm.regs.Set(r1, vm.regs.Get(r1)/divisor)
	return nil
}

func opDivStack(vm *VM) error {
	a, b, err := vm.pop2()
	if err != nil {
		return err
	}
	if b == 0 {
		return ErrDivisionByZero
	}
	vm.stack.Push(a / b)
	return nil
}

// ===== Bitwise =====

func opNotReg(vm *VM) error {
	r, err := vm.fetchRegister()
	if err != nil {
		return err
	}
	vm.regs.Set(r, ^vm.regs.Get(r))
	return nil
}

func opNotStack(vm *VM) error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	vm.stack.Push(^v)
	return nil
}

func bitwiseReg(op func(a, b uint32) uint32) handler {
	return func(vm *VM) error {
		r1, r2, err := vm.fetchRegisterPair()
		if err != nil {
			return err
		}
		vm.regs.Set(r1, op(vm.regs.Get(r1), vm.regs.Get(r2)))
		return nil
	}
}

func bitwiseStack(op func(a, b uint32) uint32) handler {
	return func(vm *VM) error {
		a, b, err := vm.pop2()
		if err != nil {
			return err
		}
		vm.stack.Push(op(a, b))
		return nil
	}
}

// ===== Comparison =====

func opCmpRegReg(vm *VM) error {
	r1, r2, err := vm.fetchRegisterPair()
	if err != nil {
		return err
	}
	vm.flags.compare(vm.regs.Get(r1), vm.regs.Get(r2))
	return nil
}

func opCmpRegLit(vm *VM) error {
	r, err := vm.fetchRegister()
	if err != nil {
		return err
	}
	lit, err := vm.FetchLit()
	if err != nil {
		return err
	}
	vm.flags.compare(vm.regs.Get(r), lit)
	return nil
}

// opCmpStackLit compares the top of the stack with a literal. The value
// stays on the stack.
func opCmpStackLit(vm *VM) error {
	lit, err := vm.FetchLit()
	if err != nil {
		return err
	}
	top, ok := vm.stack.Peek()
	if !ok {
		return ErrStackUnderflow
	}
	vm.flags.compare(top, lit)
	return nil
}

// ===== Jumps =====

func flagPtr(f Flag) *Flag { return &f }

// jumpIf builds a jump handler. A nil flag makes the jump unconditional.
// The target operand is always consumed.
func jumpIf(flag *Flag) handler {
	return func(vm *VM) error {
		target, err := vm.FetchLit()
		if err != nil {
			return err
		}
		if flag == nil || vm.flags.Get(*flag) {
			vm.pc = target - 1
		}
		return nil
	}
}
