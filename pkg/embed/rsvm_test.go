package embed

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/akhildatla/rsvm/pkg/asm"
	"github.com/akhildatla/rsvm/pkg/trace"
	"github.com/akhildatla/rsvm/pkg/vm"
)

func TestExecute_BasicProgram(t *testing.T) {
	result, err := Execute(`
PUSH_LIT     3
PUSH_LIT     4
ADD_STACK
POP_REG      B
MOV_LIT_REG  A, 3
SYSCALL
EXIT
`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if string(result.Output) != "7\n" {
		t.Errorf("expected output 7, got %q", result.Output)
	}
	if result.Register(vm.RegB) != 7 {
		t.Errorf("expected B = 7, got %d", result.Register(vm.RegB))
	}
	if !result.Flags.Get(vm.FlagStop) {
		t.Error("expected Stop flag")
	}
	if result.Steps != 7 {
		t.Errorf("expected 7 steps, got %d", result.Steps)
	}
}

func TestExecute_HelloWorld(t *testing.T) {
	// Each heap cell is written as four big-endian bytes, so the message
	// is packed four characters per cell.
	result, err := Execute(`
MOV_LIT_HEAP 0, 0x48656C6C   ; "Hell"
MOV_LIT_HEAP 1, 0x6F210A00   ; "o!\n\0"
MOV_LIT_REG  A, 0
MOV_LIT_REG  B, 0
MOV_LIT_REG  C, 2
SYSCALL
EXIT
`)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !bytes.Equal(result.Output, []byte("Hello!\n\x00")) {
		t.Errorf("unexpected output %q", result.Output)
	}
}

func TestExecute_AssemblyError(t *testing.T) {
	_, err := Execute("FROB A")
	if !errors.Is(err, asm.ErrUnknownOpcode) {
		t.Errorf("expected ErrUnknownOpcode, got %v", err)
	}
}

func TestExecute_FaultIsReturned(t *testing.T) {
	_, err := Execute("POP_REG A\nEXIT")
	if !errors.Is(err, vm.ErrStackUnderflow) {
		t.Errorf("expected ErrStackUnderflow, got %v", err)
	}
}

func TestExecuteFile_LoadsAndRuns(t *testing.T) {
	tmpDir := t.TempDir()
	asmPath := filepath.Join(tmpDir, "test.rsa")
	asmCode := "MOV_LIT_REG D, 42\nEXIT"
	if err := os.WriteFile(asmPath, []byte(asmCode), 0644); err != nil {
		t.Fatalf("failed to write assembly file: %v", err)
	}

	result, err := ExecuteFile(asmPath)
	if err != nil {
		t.Fatalf("ExecuteFile failed: %v", err)
	}

	if result.Register(vm.RegD) != 42 {
		t.Errorf("expected 42, got %d", result.Register(vm.RegD))
	}
}

func TestExecuteFile_Missing(t *testing.T) {
	if _, err := ExecuteFile(filepath.Join(t.TempDir(), "none.rsa")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExecuteWithOptions_Input(t *testing.T) {
	result, err := ExecuteWithOptions(`
MOV_LIT_REG A, 1
MOV_LIT_REG B, 100
MOV_LIT_REG C, 10
SYSCALL
EXIT
`, WithInput("ok"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Register(vm.RegC) != 2 {
		t.Errorf("expected 2 bytes read, got %d", result.Register(vm.RegC))
	}
}

func TestExecuteWithOptions_Stdout(t *testing.T) {
	var out bytes.Buffer
	result, err := ExecuteWithOptions("MOV_LIT_REG A, 3\nMOV_LIT_REG B, 9\nSYSCALL\nEXIT", WithStdout(&out))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if out.String() != "9\n" {
		t.Errorf("expected 9 on the writer, got %q", out.String())
	}
	if len(result.Output) != 0 {
		t.Errorf("expected nothing captured, got %q", result.Output)
	}
}

func TestExecuteWithOptions_ClearScreen(t *testing.T) {
	result, err := Execute("MOV_LIT_REG A, 2\nSYSCALL\nEXIT")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(result.Output) != clearSequence {
		t.Errorf("expected clear sequence, got %q", result.Output)
	}
}

func TestExecuteWithOptions_MaxSteps(t *testing.T) {
	_, err := ExecuteWithOptions("loop: JMP loop", WithMaxSteps(1000))
	if !errors.Is(err, ErrStepLimit) {
		t.Errorf("expected ErrStepLimit, got %v", err)
	}
}

func TestExecuteWithOptions_MaxHeapCells(t *testing.T) {
	_, err := ExecuteWithOptions("MOV_LIT_HEAP 5000, 1\nEXIT", WithMaxHeapCells(4096))
	if !errors.Is(err, ErrHeapLimit) {
		t.Errorf("expected ErrHeapLimit, got %v", err)
	}
}

func TestExecuteWithOptions_Timeout(t *testing.T) {
	start := time.Now()
	_, err := ExecuteWithOptions("loop: JMP loop", WithTimeout(20*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout took too long to fire")
	}
}

func TestExecuteWithOptions_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExecuteWithOptions("loop: JMP loop", WithContext(ctx))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExecuteWithOptions_NilContext(t *testing.T) {
	result, err := ExecuteWithOptions("MOV_LIT_REG A, 5\nEXIT", WithContext(nil))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Register(vm.RegA) != 5 {
		t.Errorf("expected A=5, got %d", result.Register(vm.RegA))
	}

	_, err = ExecuteWithOptions("loop: JMP loop", WithContext(nil), WithTimeout(20*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestExecuteWithOptions_Tracer(t *testing.T) {
	rec := trace.NewRecorder(0)
	if _, err := ExecuteWithOptions("NOP\nNOP\nEXIT", WithTracer(rec)); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if rec.Len() != 3 {
		t.Errorf("expected 3 trace events, got %d", rec.Len())
	}
}

func TestExecuteImage(t *testing.T) {
	image, err := asm.Assemble(".header \"hi\"\nMOV_HEAP_REG A, 1\nEXIT")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	result, err := ExecuteImage(image)
	if err != nil {
		t.Fatalf("ExecuteImage failed: %v", err)
	}
	if result.Register(vm.RegA) != 'i' {
		t.Errorf("expected A = 'i', got %d", result.Register(vm.RegA))
	}
}
