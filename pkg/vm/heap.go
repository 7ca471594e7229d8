package vm

// DefaultHeapCapacity is the number of cells a new heap starts with.
const DefaultHeapCapacity = 256

// Heap is a growable array of 32-bit cells addressed by index. Its
// logical length is its capacity: every cell below Cap is addressable.
//
// A write past the end grows the heap to exactly addr+1 cells.
type Heap struct {
	cells []uint32
}

// NewHeap creates a zeroed heap with the given capacity.
func NewHeap(capacity int) *Heap {
	if capacity < 0 {
		capacity = 0
	}
	return &Heap{cells: make([]uint32, capacity)}
}

// Cap returns the current number of addressable cells.
func (h *Heap) Cap() int {
	return len(h.cells)
}

// Read returns the cell at addr. Addresses at or beyond the capacity read
// as 0.
func (h *Heap) Read(addr uint32) uint32 {
	if uint64(addr) >= uint64(len(h.cells)) {
		return 0
	}
	return h.cells[addr]
}

// Write stores value at addr, growing the heap to addr+1 cells first when
// addr is out of range. Zero values are stored like any other.
func (h *Heap) Write(addr uint32, value uint32) {
	if uint64(addr) >= uint64(len(h.cells)) {
		h.grow(int(addr) + 1)
	}
	h.cells[addr] = value
}

// grow reallocates the backing storage to exactly n cells, preserving the
// existing contents. The runtime aborts the process if the allocation
// fails.
func (h *Heap) grow(n int) {
	cells := make([]uint32, n)
	copy(cells, h.cells)
	h.cells = cells
}

// Cells returns a copy of the heap contents.
func (h *Heap) Cells() []uint32 {
	out := make([]uint32, len(h.cells))
	copy(out, h.cells)
	return out
}
