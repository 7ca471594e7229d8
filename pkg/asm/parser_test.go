package asm

import (
	"errors"
	"testing"

	"github.com/akhildatla/rsvm/pkg/vm"
)

func TestParser_Instruction(t *testing.T) {
	program, err := NewParser("mov_lit_reg b, 'z'").Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(program.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(program.Instructions))
	}
	inst := program.Instructions[0]
	if inst.Opcode != "mov_lit_reg" {
		t.Errorf("expected opcode mov_lit_reg, got %s", inst.Opcode)
	}
	if len(inst.Operands) != 2 {
		t.Fatalf("expected 2 operands, got %d", len(inst.Operands))
	}
	if inst.Operands[0].Type != OperandRegister || inst.Operands[0].Reg != vm.RegB {
		t.Errorf("expected register B, got %+v", inst.Operands[0])
	}
	if inst.Operands[1].Type != OperandInt || inst.Operands[1].IntVal != 'z' {
		t.Errorf("expected literal 'z', got %+v", inst.Operands[1])
	}
}

func TestParser_Labels(t *testing.T) {
	input := `start:
	NOP
middle: NOP
end:`

	program, err := NewParser(input).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := map[string]int{"start": 0, "middle": 1, "end": 2}
	for name, idx := range want {
		if program.Labels[name] != idx {
			t.Errorf("label %s: expected index %d, got %d", name, idx, program.Labels[name])
		}
	}
}

func TestParser_LabelOperand(t *testing.T) {
	program, err := NewParser("JMP loop").Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	op := program.Instructions[0].Operands[0]
	if op.Type != OperandLabel || op.Label != "loop" {
		t.Errorf("expected label operand loop, got %+v", op)
	}
}

func TestParser_Header(t *testing.T) {
	input := `.header "Hi", 0x21, '\n'
.header 0`

	program, err := NewParser(input).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []byte{'H', 'i', 0x21, '\n', 0}
	if string(program.Header) != string(want) {
		t.Errorf("expected header % X, got % X", want, program.Header)
	}
}

func TestParser_ListingOffsetsIgnored(t *testing.T) {
	program, err := NewParser("0000: NOP\n000B: EXIT").Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(program.Instructions) != 2 {
		t.Errorf("expected 2 instructions, got %d", len(program.Instructions))
	}
}

func TestParser_NumberForms(t *testing.T) {
	tests := []struct {
		input    string
		expected uint32
	}{
		{"PUSH_LIT 42", 42},
		{"PUSH_LIT 0x2A", 42},
		{"PUSH_LIT 0o52", 42},
		{"PUSH_LIT 0b101010", 42},
		{"PUSH_LIT 042", 42},
		{"PUSH_LIT 1_000", 1000},
		{"PUSH_LIT 4294967295", 4294967295},
		{"PUSH_LIT '*'", 42},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			program, err := NewParser(tt.input).Parse()
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got := program.Instructions[0].Operands[0].IntVal; got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"overflowing literal", "PUSH_LIT 4294967296", ErrInvalidLiteral},
		{"bad hex", "PUSH_LIT 0xZZ", ErrInvalidLiteral},
		{"multi-char literal", "PUSH_LIT 'ab'", ErrInvalidLiteral},
		{"header byte too large", ".header 256", ErrInvalidLiteral},
		{"unknown directive", ".data 1", ErrUnknownDirective},
		{"duplicate label", "x:\nx:", ErrDuplicateLabel},
		{"register as label", "A: NOP", ErrReservedLabel},
		{"trailing comma", "ADD_REG A,", ErrSyntax},
		{"missing comma", "ADD_REG A B", ErrSyntax},
		{"leading comma", "ADD_REG , A", ErrSyntax},
		{"stray number", "42", ErrSyntax},
		{"illegal character", "NOP @", ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(tt.input).Parse()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParser_ErrorHasLine(t *testing.T) {
	_, err := NewParser("NOP\nNOP\nPUSH_LIT 0xZZ").Parse()
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got[:7] != "line 3:" {
		t.Errorf("expected error on line 3, got %q", got)
	}
}
