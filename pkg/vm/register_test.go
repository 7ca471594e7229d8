package vm

import "testing"

func TestRegisterFile_GetSet(t *testing.T) {
	var rf RegisterFile

	rf.Set(RegA, 42)
	rf.Set(RegD, 0xFFFFFFFF)

	if rf.Get(RegA) != 42 {
		t.Errorf("expected A = 42, got %d", rf.Get(RegA))
	}
	if rf.Get(RegD) != 0xFFFFFFFF {
		t.Errorf("expected D = 0xFFFFFFFF, got %d", rf.Get(RegD))
	}
	if rf.Get(RegB) != 0 || rf.Get(RegC) != 0 {
		t.Error("registers should not alias")
	}
}

func TestRegisterFile_Reset(t *testing.T) {
	var rf RegisterFile
	rf.Set(RegA, 1)
	rf.Set(RegC, 3)

	rf.Reset()

	for r := RegA; r <= RegD; r++ {
		if rf.Get(r) != 0 {
			t.Errorf("expected %s = 0 after reset, got %d", r, rf.Get(r))
		}
	}
}

func TestRegister_Names(t *testing.T) {
	names := map[Register]string{RegA: "A", RegB: "B", RegC: "C", RegD: "D"}
	for r, want := range names {
		if r.String() != want {
			t.Errorf("expected %s, got %s", want, r.String())
		}
		parsed, ok := RegisterFromString(want)
		if !ok || parsed != r {
			t.Errorf("RegisterFromString(%q) = (%v, %v)", want, parsed, ok)
		}
	}

	if r, ok := RegisterFromString("c"); !ok || r != RegC {
		t.Errorf("expected lower-case c to parse as C, got (%v, %v)", r, ok)
	}
	for _, bad := range []string{"", "E", "AB", "1"} {
		if _, ok := RegisterFromString(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestRegister_Valid(t *testing.T) {
	if !RegD.Valid() {
		t.Error("D should be valid")
	}
	if Register(4).Valid() {
		t.Error("register 4 should be invalid")
	}
}

func TestFlagSet_GetSet(t *testing.T) {
	var fs FlagSet

	fs.Set(FlagOverflow, true)
	if !fs.Get(FlagOverflow) {
		t.Error("expected Overflow set")
	}
	if fs.Get(FlagStop) {
		t.Error("expected Stop clear")
	}

	fs.Set(FlagOverflow, false)
	if fs.Get(FlagOverflow) {
		t.Error("expected Overflow cleared")
	}
}

func TestFlagSet_CompareIsExclusive(t *testing.T) {
	pairs := [][2]uint32{{0, 0}, {1, 2}, {2, 1}, {0xFFFFFFFF, 0}, {0, 0xFFFFFFFF}, {7, 7}}
	for _, p := range pairs {
		var fs FlagSet
		fs.compare(p[0], p[1])

		n := 0
		for _, f := range []Flag{FlagEqual, FlagGreater, FlagSmaller} {
			if fs.Get(f) {
				n++
			}
		}
		if n != 1 {
			t.Errorf("compare(%d, %d): %d ordering flags set, expected exactly 1", p[0], p[1], n)
		}
		if fs.Get(FlagNotEqual) == fs.Get(FlagEqual) {
			t.Errorf("compare(%d, %d): NotEqual must be !Equal", p[0], p[1])
		}
	}
}

func TestFlagSet_CompareLeavesOverflowAndStop(t *testing.T) {
	var fs FlagSet
	fs.Set(FlagOverflow, true)
	fs.Set(FlagStop, true)

	fs.compare(1, 2)

	if !fs.Get(FlagOverflow) || !fs.Get(FlagStop) {
		t.Error("compare must only touch ordering flags")
	}
}

func TestFlagSet_StringAndBits(t *testing.T) {
	var fs FlagSet
	fs.Set(FlagNotEqual, true)
	fs.Set(FlagSmaller, true)

	if fs.String() != "-N-S--" {
		t.Errorf("expected -N-S--, got %s", fs.String())
	}
	if fs.Bits() != 0b001010 {
		t.Errorf("expected bits 0b001010, got %06b", fs.Bits())
	}
}
