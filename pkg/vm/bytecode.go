package vm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Program image format:
// - Header: N bytes of opaque metadata, copied into heap cells 0..N-1
// - Sentinel: 0x1D 0x1D 0x1D 0x1D
// - Instructions: opcode bytes followed by their operands

// SentinelByte is the byte value repeated to terminate the header.
const SentinelByte = 0x1D

// Sentinel marks the end of the header region.
var Sentinel = []byte{SentinelByte, SentinelByte, SentinelByte, SentinelByte}

var (
	ErrMalformedHeader   = errors.New("malformed header")
	ErrMissingSentinel   = fmt.Errorf("%w: no header sentinel", ErrMalformedHeader)
	ErrSentinelInHeader  = errors.New("header would terminate before its last byte")
	ErrTruncatedOperands = errors.New("truncated operands")
)

// scanHeader returns the number of header bytes in image, i.e. the offset
// of the first 4-byte window that is entirely SentinelByte.
func scanHeader(image []byte) (int, error) {
	if len(image) < len(Sentinel) {
		return 0, fmt.Errorf("%w: image is %d bytes, need at least %d",
			ErrMalformedHeader, len(image), len(Sentinel))
	}
	for i := 0; i+len(Sentinel) <= len(image); i++ {
		if isSentinelAt(image, i) {
			return i, nil
		}
	}
	return 0, ErrMissingSentinel
}

func isSentinelAt(image []byte, i int) bool {
	for _, b := range image[i : i+len(Sentinel)] {
		if b != SentinelByte {
			return false
		}
	}
	return true
}

// EncodeImage builds a program image from header metadata and instruction
// bytes. It fails if the header contents would make the sentinel scan stop
// early.
func EncodeImage(header, code []byte) ([]byte, error) {
	image := make([]byte, 0, len(header)+len(Sentinel)+len(code))
	image = append(image, header...)
	image = append(image, Sentinel...)
	if n, err := scanHeader(image); err != nil || n != len(header) {
		return nil, fmt.Errorf("%w: sentinel found at offset %d", ErrSentinelInHeader, n)
	}
	image = append(image, code...)
	return image, nil
}

// SplitImage splits a program image into its header and instruction
// regions. The returned slices alias image.
func SplitImage(image []byte) (header, code []byte, err error) {
	n, err := scanHeader(image)
	if err != nil {
		return nil, nil, err
	}
	return image[:n], image[n+len(Sentinel):], nil
}

// Disassemble converts a program image to an assembly listing.
func Disassemble(image []byte) (string, error) {
	header, code, err := SplitImage(image)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString("; Disassembled program image\n")
	buf.WriteString(fmt.Sprintf("; %d header bytes, %d instruction bytes\n\n", len(header), len(code)))

	if len(header) > 0 {
		buf.WriteString(".header")
		for i, b := range header {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(fmt.Sprintf(" 0x%02X", b))
		}
		buf.WriteString("\n\n")
	}

	for offset := 0; offset < len(code); {
		inst, ok := DecodeInstruction(code, offset)
		if !ok {
			buf.WriteString(fmt.Sprintf("%04X: ; %v: %s\n", offset, ErrTruncatedOperands, hexBytes(code[offset:])))
			break
		}
		buf.WriteString(fmt.Sprintf("%04X: %s\n", offset, FormatInstruction(inst)))
		offset += inst.Size()
	}

	return buf.String(), nil
}

// FormatInstruction renders one instruction in assembler syntax.
func FormatInstruction(inst Instruction) string {
	if !inst.Opcode.Defined() {
		return fmt.Sprintf("%-14s ; 0x%02X", "NOP", byte(inst.Opcode))
	}
	kinds := inst.Opcode.Operands()
	if len(kinds) == 0 {
		return inst.Opcode.String()
	}
	args := make([]string, len(kinds))
	for i, k := range kinds {
		v := inst.Operands[i]
		switch k {
		case OperandReg:
			args[i] = Register(v).String()
		case OperandTarget:
			args[i] = fmt.Sprintf("0x%04X", v)
		default:
			args[i] = fmt.Sprintf("%d", v)
		}
	}
	return fmt.Sprintf("%-14s %s", inst.Opcode.String(), strings.Join(args, ", "))
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, " ")
}
