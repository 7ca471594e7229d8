package vm

import "fmt"

// NumRegisters is the number of general-purpose registers.
const NumRegisters = 4

// Register names one of the general-purpose registers.
type Register uint8

const (
	RegA Register = iota
	RegB
	RegC
	RegD
)

// String returns the register name.
func (r Register) String() string {
	if r < NumRegisters {
		return string(rune('A' + r))
	}
	return fmt.Sprintf("R?%d", uint8(r))
}

// Valid reports whether r names an existing register.
func (r Register) Valid() bool {
	return r < NumRegisters
}

// RegisterFromString parses a register name (A-D, either case).
func RegisterFromString(s string) (Register, bool) {
	if len(s) != 1 {
		return 0, false
	}
	c := s[0] | 0x20 // lower-case
	if c < 'a' || c > 'd' {
		return 0, false
	}
	return Register(c - 'a'), true
}

// RegisterFile holds the general-purpose registers.
type RegisterFile [NumRegisters]uint32

// Get returns the value of register r.
func (rf *RegisterFile) Get(r Register) uint32 {
	return rf[r]
}

// Set stores v in register r.
func (rf *RegisterFile) Set(r Register, v uint32) {
	rf[r] = v
}

// Reset clears all registers.
func (rf *RegisterFile) Reset() {
	*rf = RegisterFile{}
}
