package vm

import "strings"

// Flag names one of the condition flags.
type Flag uint8

const (
	FlagEqual Flag = iota
	FlagNotEqual
	FlagGreater
	FlagSmaller
	FlagOverflow
	FlagStop

	NumFlags = 6
)

var flagNames = [NumFlags]string{"Equal", "NotEqual", "Greater", "Smaller", "Overflow", "Stop"}

// String returns the flag name.
func (f Flag) String() string {
	if f < NumFlags {
		return flagNames[f]
	}
	return "Unknown"
}

// FlagSet is a fixed bank of condition flags. Flags persist until an
// instruction overwrites them.
type FlagSet [NumFlags]bool

// Get returns the state of flag f.
func (fs *FlagSet) Get(f Flag) bool {
	return fs[f]
}

// Set sets flag f to v.
func (fs *FlagSet) Set(f Flag, v bool) {
	fs[f] = v
}

// Reset clears every flag.
func (fs *FlagSet) Reset() {
	*fs = FlagSet{}
}

// Bits packs the flags into a bitmask, FlagEqual in bit 0.
func (fs *FlagSet) Bits() uint8 {
	var b uint8
	for i, set := range fs {
		if set {
			b |= 1 << i
		}
	}
	return b
}

// String renders the set flags as a compact letter string, e.g. "-N-S--".
func (fs *FlagSet) String() string {
	const letters = "ENGSOX"
	var sb strings.Builder
	for i, set := range fs {
		if set {
			sb.WriteByte(letters[i])
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// compare sets the four ordering flags from an unsigned comparison of a
// and b. Exactly one of Equal, Greater, Smaller ends up set.
func (fs *FlagSet) compare(a, b uint32) {
	fs[FlagEqual] = a == b
	fs[FlagNotEqual] = a != b
	fs[FlagGreater] = a > b
	fs[FlagSmaller] = a < b
}
