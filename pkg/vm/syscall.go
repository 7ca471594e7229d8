package vm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/tliron/commonlog"
	"golang.org/x/term"
)

var hostLog = commonlog.GetLogger("rsvm.host")

// Syscall numbers, selected by register A.
const (
	SysWrite       = 0 // write C heap cells from address B, big-endian
	SysRead        = 1 // read up to C bytes into heap cells from address B
	SysClearScreen = 2 // clear the terminal
	SysPrintNum    = 3 // print B in decimal
)

// Host is the boundary between the VM and the environment it runs in.
type Host interface {
	Stdin() io.Reader
	Stdout() io.Writer
	ClearScreen() error
}

// OSHost services syscalls with the process streams.
type OSHost struct {
	In  io.Reader
	Out io.Writer
}

// NewOSHost returns a host bound to os.Stdin and os.Stdout.
func NewOSHost() *OSHost {
	return &OSHost{In: os.Stdin, Out: os.Stdout}
}

func (h *OSHost) Stdin() io.Reader  { return h.In }
func (h *OSHost) Stdout() io.Writer { return h.Out }

// ClearScreen runs the platform's clear command with its output sent to
// the host's stdout. It does nothing unless stdout is a terminal, and a
// failing clear command is logged, not returned.
func (h *OSHost) ClearScreen() error {
	f, ok := h.Out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", "cls")
	} else {
		cmd = exec.Command("clear")
	}
	cmd.Stdout = h.Out
	if err := cmd.Run(); err != nil {
		hostLog.Warningf("clear screen: %v", err)
	}
	return nil
}

func opSyscall(vm *VM) error {
	switch vm.regs.Get(RegA) {
	case SysWrite:
		return vm.sysWrite()
	case SysRead:
		return vm.sysRead()
	case SysClearScreen:
		if err := vm.host.ClearScreen(); err != nil {
			return fmt.Errorf("syscall clear screen: %w", err)
		}
	case SysPrintNum:
		if _, err := io.WriteString(vm.host.Stdout(), strconv.FormatUint(uint64(vm.regs.Get(RegB)), 10)+"\n"); err != nil {
			return fmt.Errorf("syscall print: %w", err)
		}
	}
	return nil
}

func (vm *VM) sysWrite() error {
	addr := vm.regs.Get(RegB)
	n := vm.regs.Get(RegC)
	w := bufio.NewWriter(vm.host.Stdout())
	var cell [4]byte
	for i := uint32(0); i < n; i++ {
		binary.BigEndian.PutUint32(cell[:], vm.heap.Read(addr+i))
		if _, err := w.Write(cell[:]); err != nil {
			return fmt.Errorf("syscall write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("syscall write: %w", err)
	}
	return nil
}

// maxReadChunk bounds the buffer a single read syscall allocates.
const maxReadChunk = 1 << 16

// sysRead performs one read of at most C bytes and stores each byte in its
// own heap cell starting at B. C is set to the number of bytes read.
func (vm *VM) sysRead() error {
	addr := vm.regs.Get(RegB)
	buf := make([]byte, min(vm.regs.Get(RegC), maxReadChunk))
	n, err := vm.host.Stdin().Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("syscall read: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := vm.store(addr+uint32(i), uint32(buf[i])); err != nil {
			return err
		}
	}
	vm.regs.Set(RegC, uint32(n))
	return nil
}
