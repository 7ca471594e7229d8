package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is a complete copy of machine state, suitable for diagnostics
// and for resuming execution later.
type Snapshot struct {
	Program     []byte               `cbor:"program"`
	Registers   [NumRegisters]uint32 `cbor:"registers"`
	Flags       [NumFlags]bool       `cbor:"flags"`
	PC          uint32               `cbor:"pc"`
	BasePointer uint32               `cbor:"bp"`
	HeaderSize  int                  `cbor:"header_size"`
	Ready       bool                 `cbor:"ready"`
	Steps       uint64               `cbor:"steps"`
	Heap        []uint32             `cbor:"heap"`
	Stack       []uint32             `cbor:"stack"`
	Fault       string               `cbor:"fault,omitempty"`
}

var snapshotEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	snapshotEncMode = em
}

// Snapshot captures the current machine state.
func (vm *VM) Snapshot() *Snapshot {
	s := &Snapshot{
		Program:     vm.Program(),
		Registers:   vm.regs,
		Flags:       vm.flags,
		PC:          vm.pc,
		BasePointer: vm.basePtr,
		HeaderSize:  vm.hdrSize,
		Ready:       vm.ready,
		Steps:       vm.steps,
		Heap:        vm.heap.Cells(),
		Stack:       vm.stack.Values(),
	}
	if vm.fault != nil {
		s.Fault = vm.fault.Error()
	}
	return s
}

// Restore replaces the machine state with s. A snapshot taken from a
// faulted VM restores as stopped: its Stop flag is set so nothing runs.
func (vm *VM) Restore(s *Snapshot) {
	vm.Load(s.Program)
	vm.regs = s.Registers
	vm.flags = s.Flags
	vm.pc = s.PC
	vm.basePtr = s.BasePointer
	vm.hdrSize = s.HeaderSize
	vm.ready = s.Ready
	vm.steps = s.Steps
	vm.heap = NewHeap(0)
	vm.heap.cells = append(vm.heap.cells, s.Heap...)
	for _, v := range s.Stack {
		vm.stack.Push(v)
	}
	if s.Fault != "" {
		vm.flags.Set(FlagStop, true)
	}
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
