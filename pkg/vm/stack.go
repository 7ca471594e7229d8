package vm

// DefaultStackCapacity is the number of values a new stack can hold before
// its first reallocation.
const DefaultStackCapacity = 128

// Stack is a growable LIFO of 32-bit values. Len counts the pushed values;
// the backing storage doubles whenever a push finds it full.
type Stack struct {
	buf []uint32
	len int
}

// NewStack creates an empty stack with the given initial capacity.
func NewStack(capacity int) *Stack {
	if capacity < 1 {
		capacity = 1
	}
	return &Stack{buf: make([]uint32, capacity)}
}

// Len returns the number of values on the stack.
func (s *Stack) Len() int {
	return s.len
}

// Cap returns the size of the backing storage.
func (s *Stack) Cap() int {
	return len(s.buf)
}

// Push appends v to the top of the stack.
func (s *Stack) Push(v uint32) {
	if s.len == len(s.buf) {
		s.grow()
	}
	s.buf[s.len] = v
	s.len++
}

// Pop removes and returns the top value. The second result is false when
// the stack is empty.
func (s *Stack) Pop() (uint32, bool) {
	if s.len == 0 {
		return 0, false
	}
	s.len--
	return s.buf[s.len], true
}

// Peek returns the top value (index Len-1) without removing it. The
// second result is false when the stack is empty.
func (s *Stack) Peek() (uint32, bool) {
	if s.len == 0 {
		return 0, false
	}
	return s.buf[s.len-1], true
}

// Clear drops every value but keeps the backing storage.
func (s *Stack) Clear() {
	s.len = 0
}

// Values returns a copy of the stack contents, bottom first.
func (s *Stack) Values() []uint32 {
	out := make([]uint32, s.len)
	copy(out, s.buf[:s.len])
	return out
}

func (s *Stack) grow() {
	buf := make([]uint32, len(s.buf)*2)
	copy(buf, s.buf)
	s.buf = buf
}
