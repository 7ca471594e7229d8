// Package testutil provides testing utilities for RSVM tests.
package testutil

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// Sentinel is the end-of-header marker.
var Sentinel = []byte{0x1D, 0x1D, 0x1D, 0x1D}

// Image concatenates header bytes, the sentinel, and instruction bytes.
func Image(header []byte, code ...[]byte) []byte {
	out := append([]byte{}, header...)
	out = append(out, Sentinel...)
	for _, c := range code {
		out = append(out, c...)
	}
	return out
}

// Lit encodes a 32-bit literal operand big-endian.
func Lit(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// Op builds one instruction from an opcode byte and operand byte groups.
func Op(opcode byte, operands ...[]byte) []byte {
	out := []byte{opcode}
	for _, o := range operands {
		out = append(out, o...)
	}
	return out
}

// Reg encodes a register operand.
func Reg(r byte) []byte {
	return []byte{r}
}

// Host is an in-memory host that records output and clear-screen calls.
type Host struct {
	In       io.Reader
	Out      bytes.Buffer
	Clears   int
	ClearErr error
}

// NewHost creates a Host reading from the given input string.
func NewHost(input string) *Host {
	return &Host{In: bytes.NewBufferString(input)}
}

func (h *Host) Stdin() io.Reader  { return h.In }
func (h *Host) Stdout() io.Writer { return &h.Out }

func (h *Host) ClearScreen() error {
	h.Clears++
	return h.ClearErr
}

// ErrWriter is a writer that always fails.
type ErrWriter struct{}

// ErrWrite is returned by ErrWriter.
var ErrWrite = errors.New("write failed")

func (ErrWriter) Write(p []byte) (int, error) { return 0, ErrWrite }

// TempFile creates a temporary file with the given content and extension.
func TempFile(t *testing.T, content []byte, ext string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test"+ext)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// AssertUint32Equal checks if two uint32 values are equal.
func AssertUint32Equal(t *testing.T, name string, expected, actual uint32) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %d, got %d", name, expected, actual)
	}
}
