// Package vm implements the RSVM bytecode virtual machine.
//
// The VM is a small emulated CPU with:
//   - 4 general-purpose 32-bit registers (A-D)
//   - 6 condition flags (Equal, NotEqual, Greater, Smaller, Overflow, Stop)
//   - a growable operand stack of 32-bit values
//   - a growable, cell-addressed heap of 32-bit values
//
// A program image is a header (opaque bytes, copied into heap cells at the
// same addresses), a 4-byte sentinel of 0x1D, and the instruction region.
//
// Basic usage:
//
//	v := vm.NewVM()
//	v.Load(image)
//	err := v.Run()
//
// With resource limits:
//
//	v := vm.NewVMWithOptions(vm.Options{MaxSteps: 10000})
//	v.Load(image)
//	err := v.RunContext(ctx)
package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

// Error definitions
var (
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrPCOutOfBounds   = errors.New("program counter out of bounds")
	ErrInvalidRegister = errors.New("invalid register")
	ErrHeapLimit       = errors.New("heap limit exceeded")
	ErrStepLimit       = errors.New("step limit exceeded")
	ErrHalted          = errors.New("machine is halted")
)

// Fault is a fatal execution error. Once a VM has faulted no further
// instructions run until a new program is loaded.
type Fault struct {
	PC     uint32 // offset of the faulting instruction in the instruction region
	Opcode Opcode // opcode being executed, or 0 if the fault came before dispatch
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at 0x%04X (%s): %v", f.PC, f.Opcode, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Options configures a VM. Zero values select the defaults.
type Options struct {
	HeapCapacity  int    // initial heap cells (default DefaultHeapCapacity)
	StackCapacity int    // initial stack slots (default DefaultStackCapacity)
	MaxHeapCells  uint32 // highest addressable cell + 1; 0 means unlimited
	MaxSteps      uint64 // instructions per program; 0 means unlimited
}

func (o Options) withDefaults() Options {
	if o.HeapCapacity <= 0 {
		o.HeapCapacity = DefaultHeapCapacity
	}
	if o.StackCapacity <= 0 {
		o.StackCapacity = DefaultStackCapacity
	}
	return o
}

// TraceEvent describes the machine state after one instruction.
type TraceEvent struct {
	Step       uint64       // 1-based instruction count
	PC         uint32       // offset of the executed opcode
	Opcode     Opcode       // executed opcode
	Registers  RegisterFile // registers after execution
	Flags      FlagSet      // flags after execution
	StackDepth int          // stack length after execution
}

// Tracer receives an event after every executed instruction.
type Tracer interface {
	Trace(ev TraceEvent)
}

// VM represents the virtual machine.
type VM struct {
	regs    RegisterFile
	flags   FlagSet
	stack   *Stack
	heap    *Heap
	program []byte
	pc      uint32 // offset into the instruction region
	basePtr uint32 // reserved for stack-frame addressing
	hdrSize int    // header bytes plus sentinel

	opts   Options
	host   Host
	tracer Tracer
	log    commonlog.Logger

	ready  bool   // header parsed
	steps  uint64 // instructions executed
	instPC uint32 // pc of the instruction being executed
	op     Opcode // opcode being executed
	fault  *Fault
}

// NewVM creates a new VM instance with default options, talking to the
// process standard streams.
func NewVM() *VM {
	return NewVMWithOptions(Options{})
}

// NewVMWithOptions creates a new VM instance with the given options.
func NewVMWithOptions(opts Options) *VM {
	opts = opts.withDefaults()
	return &VM{
		stack: NewStack(opts.StackCapacity),
		heap:  NewHeap(opts.HeapCapacity),
		opts:  opts,
		host:  NewOSHost(),
		log:   commonlog.GetLogger("rsvm.vm"),
	}
}

// SetHost sets the host that services syscalls.
func (vm *VM) SetHost(h Host) {
	vm.host = h
}

// SetTracer installs a tracer; nil disables tracing.
func (vm *VM) SetTracer(t Tracer) {
	vm.tracer = t
}

// SetMaxSteps sets the maximum number of executed instructions.
func (vm *VM) SetMaxSteps(n uint64) {
	vm.opts.MaxSteps = n
}

// SetMaxHeapCells limits the heap to cells 0..n-1.
func (vm *VM) SetMaxHeapCells(n uint32) {
	vm.opts.MaxHeapCells = n
}

// Load loads a program image and resets the machine state. The image is
// copied; later changes to the caller's slice have no effect.
func (vm *VM) Load(image []byte) {
	vm.program = append([]byte(nil), image...)
	vm.regs.Reset()
	vm.flags.Reset()
	vm.stack.Clear()
	vm.heap = NewHeap(vm.opts.HeapCapacity)
	vm.pc = 0
	vm.basePtr = 0
	vm.hdrSize = 0
	vm.ready = false
	vm.steps = 0
	vm.instPC = 0
	vm.op = 0
	vm.fault = nil
	vm.log.Infof("loaded program image: %d bytes", len(vm.program))
}

// Run parses the header and executes instructions until the Stop flag is
// set or a fault occurs.
func (vm *VM) Run() error {
	return vm.RunContext(context.Background())
}

// RunContext is Run with cancellation checked between instructions. A nil
// ctx behaves like context.Background().
func (vm *VM) RunContext(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if vm.fault != nil {
		return vm.fault
	}
	if err := vm.prepare(); err != nil {
		return err
	}

	for !vm.flags.Get(FlagStop) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := vm.Step(); err != nil {
			return err
		}
	}

	return nil
}

// Step executes a single instruction: fetch the opcode at the program
// counter, dispatch it, then advance the program counter by one. The
// header is parsed on the first call.
func (vm *VM) Step() error {
	if vm.fault != nil {
		return vm.fault
	}
	if err := vm.prepare(); err != nil {
		return err
	}
	if vm.flags.Get(FlagStop) {
		return ErrHalted
	}

	vm.instPC = vm.pc
	vm.op = 0

	if vm.opts.MaxSteps > 0 && vm.steps >= vm.opts.MaxSteps {
		return vm.fail(fmt.Errorf("%w: %d", ErrStepLimit, vm.opts.MaxSteps))
	}

	b, err := vm.byteAt(vm.pc)
	if err != nil {
		return vm.fail(err)
	}
	vm.op = Opcode(b)

	if vm.log.AllowLevel(commonlog.Debug) {
		vm.log.Debugf("0x%04X %-14s regs=%v flags=%s stack=%d", vm.pc, vm.op, vm.regs, vm.flags.String(), vm.stack.Len())
	}

	if err := dispatch[b](vm); err != nil {
		return vm.fail(err)
	}
	vm.pc++
	vm.steps++

	if vm.tracer != nil {
		vm.tracer.Trace(TraceEvent{
			Step:       vm.steps,
			PC:         vm.instPC,
			Opcode:     vm.op,
			Registers:  vm.regs,
			Flags:      vm.flags,
			StackDepth: vm.stack.Len(),
		})
	}

	return nil
}

// FetchReg advances the program counter by one and returns the operand
// byte it now points at.
func (vm *VM) FetchReg() (byte, error) {
	vm.pc++
	return vm.byteAt(vm.pc)
}

// FetchLit consumes four operand bytes and combines them big-endian.
func (vm *VM) FetchLit() (uint32, error) {
	var b [4]byte
	for i := range b {
		v, err := vm.FetchReg()
		if err != nil {
			return 0, err
		}
		b[i] = v
	}
	return combineLiteral(b[0], b[1], b[2], b[3]), nil
}

// fetchRegister consumes a register operand and validates it.
func (vm *VM) fetchRegister() (Register, error) {
	b, err := vm.FetchReg()
	if err != nil {
		return 0, err
	}
	r := Register(b)
	if !r.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRegister, b)
	}
	return r, nil
}

func (vm *VM) byteAt(pc uint32) (byte, error) {
	idx := uint64(pc) + uint64(vm.hdrSize)
	if idx >= uint64(len(vm.program)) {
		return 0, fmt.Errorf("%w: offset %d in a %d-byte image", ErrPCOutOfBounds, idx, len(vm.program))
	}
	return vm.program[idx], nil
}

func (vm *VM) prepare() error {
	if vm.ready {
		return nil
	}
	if err := vm.parseHeader(); err != nil {
		return vm.fail(err)
	}
	vm.ready = true
	return nil
}

// parseHeader copies the header bytes into heap cells 0..N-1 and sets the
// header size to N plus the sentinel length.
func (vm *VM) parseHeader() error {
	n, err := scanHeader(vm.program)
	if err != nil {
		return err
	}
	vm.hdrSize = len(Sentinel)
	for i := 0; i < n; i++ {
		if err := vm.store(uint32(i), uint32(vm.program[i])); err != nil {
			return err
		}
		vm.hdrSize++
	}
	vm.log.Infof("header: %d bytes, instructions start at image offset %d", n, vm.hdrSize)
	return nil
}

func (vm *VM) fail(err error) error {
	vm.fault = &Fault{PC: vm.instPC, Opcode: vm.op, Err: err}
	vm.log.Errorf("%v", vm.fault)
	return vm.fault
}

// store writes a heap cell, honouring MaxHeapCells.
func (vm *VM) store(addr, v uint32) error {
	if vm.opts.MaxHeapCells > 0 && addr >= vm.opts.MaxHeapCells {
		return fmt.Errorf("%w: address %d, limit %d cells", ErrHeapLimit, addr, vm.opts.MaxHeapCells)
	}
	vm.heap.Write(addr, v)
	return nil
}

func (vm *VM) pop() (uint32, error) {
	v, ok := vm.stack.Pop()
	if !ok {
		return 0, ErrStackUnderflow
	}
	return v, nil
}

// pop2 pops b (the top) then a.
func (vm *VM) pop2() (a, b uint32, err error) {
	if b, err = vm.pop(); err != nil {
		return 0, 0, err
	}
	if a, err = vm.pop(); err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// ===== State inspection =====

// Registers returns a copy of the register file.
func (vm *VM) Registers() RegisterFile {
	return vm.regs
}

// Register returns the value of register r.
func (vm *VM) Register(r Register) uint32 {
	return vm.regs.Get(r)
}

// SetRegister stores v in register r.
func (vm *VM) SetRegister(r Register, v uint32) {
	vm.regs.Set(r, v)
}

// Flags returns a copy of the flag set.
func (vm *VM) Flags() FlagSet {
	return vm.flags
}

// Flag returns the state of flag f.
func (vm *VM) Flag(f Flag) bool {
	return vm.flags.Get(f)
}

// PC returns the program counter, an offset into the instruction region.
func (vm *VM) PC() uint32 {
	return vm.pc
}

// BasePointer returns the base pointer.
func (vm *VM) BasePointer() uint32 {
	return vm.basePtr
}

// HeaderSize returns the header length plus the sentinel, or 0 before the
// header has been parsed.
func (vm *VM) HeaderSize() int {
	return vm.hdrSize
}

// Steps returns the number of instructions executed since Load.
func (vm *VM) Steps() uint64 {
	return vm.steps
}

// HeapRead returns heap cell addr.
func (vm *VM) HeapRead(addr uint32) uint32 {
	return vm.heap.Read(addr)
}

// HeapCap returns the current heap capacity in cells.
func (vm *VM) HeapCap() int {
	return vm.heap.Cap()
}

// StackValues returns a copy of the stack, bottom first.
func (vm *VM) StackValues() []uint32 {
	return vm.stack.Values()
}

// Program returns a copy of the loaded image.
func (vm *VM) Program() []byte {
	return append([]byte(nil), vm.program...)
}

// Fault returns the fault that stopped the VM, or nil.
func (vm *VM) Fault() error {
	if vm.fault == nil {
		return nil
	}
	return vm.fault
}
