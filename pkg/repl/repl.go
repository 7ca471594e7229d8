// Package repl implements an interactive assembler and machine monitor.
//
// Lines that are not monitor commands are appended to the program source.
// Commands are lower case; mnemonics may be typed in either case, except
// that a lone "exit" is always the EXIT instruction.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/akhildatla/rsvm/pkg/asm"
	"github.com/akhildatla/rsvm/pkg/vm"
)

const (
	prompt     = "rsvm> "
	clearSeq   = "\x1b[2J\x1b[H"
	heapWindow = 8
)

// DefaultMaxSteps bounds "run" so a runaway loop returns to the prompt.
const DefaultMaxSteps = 10_000_000

// REPL provides an interactive Read-Eval-Print Loop.
type REPL struct {
	source   []string
	history  []string
	machine  *vm.VM
	image    []byte
	stale    bool // source changed since the image was assembled
	maxSteps uint64
	out      io.Writer
}

// New creates a new REPL instance.
func New() *REPL {
	return &REPL{
		stale:    true,
		maxSteps: DefaultMaxSteps,
		out:      io.Discard,
	}
}

// SetMaxSteps sets the instruction limit used by "run".
func (r *REPL) SetMaxSteps(n uint64) {
	r.maxSteps = n
}

// SetSource replaces the program source.
func (r *REPL) SetSource(src string) {
	r.source = strings.Split(strings.TrimRight(src, "\n"), "\n")
	r.stale = true
}

// Start starts the REPL loop.
func (r *REPL) Start(in io.Reader, out io.Writer) {
	r.out = out
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "RSVM monitor")
	fmt.Fprintln(out, "Type 'help' for available commands, 'quit' to exit")
	fmt.Fprintln(out)

	for {
		fmt.Fprint(out, prompt)

		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		if quit := r.handleLine(line); quit {
			break
		}
	}
}

// handleLine runs a command or records a source line. It reports whether
// the user asked to quit.
func (r *REPL) handleLine(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "quit", "q":
		fmt.Fprintln(r.out, "Goodbye!")
		return true
	case "help", "h", "?":
		r.printHelp()
	case "list", "ls":
		r.list()
	case "clear":
		r.source = nil
		r.machine = nil
		r.stale = true
		fmt.Fprintln(r.out, "Source cleared")
	case "load":
		if len(parts) != 2 {
			fmt.Fprintln(r.out, "Usage: load <file.rsa>")
			break
		}
		r.loadFile(parts[1])
	case "run":
		r.run()
	case "step", "s":
		n := 1
		if len(parts) > 1 {
			v, err := strconv.Atoi(parts[1])
			if err != nil || v < 1 {
				fmt.Fprintln(r.out, "Usage: step [count]")
				break
			}
			n = v
		}
		r.step(n)
	case "reset":
		r.reset()
	case "regs", "r":
		r.printRegs()
	case "flags", "f":
		r.printFlags()
	case "stack":
		r.printStack()
	case "heap":
		r.printHeap(parts[1:])
	case "dis":
		r.disassemble()
	case "history":
		for i, cmd := range r.history {
			fmt.Fprintf(r.out, "%3d: %s\n", i+1, cmd)
		}
	default:
		r.source = append(r.source, line)
		r.stale = true
		return false
	}

	r.history = append(r.history, line)
	return false
}

func (r *REPL) list() {
	if len(r.source) == 0 {
		fmt.Fprintln(r.out, "No source")
		return
	}
	for i, l := range r.source {
		fmt.Fprintf(r.out, "%3d  %s\n", i+1, l)
	}
}

func (r *REPL) loadFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	r.SetSource(string(data))
	fmt.Fprintf(r.out, "Loaded %d lines from %s\n", len(r.source), path)
}

// assemble rebuilds the image if the source changed and loads it into a
// fresh machine.
func (r *REPL) assemble() error {
	if !r.stale && r.machine != nil {
		return nil
	}
	image, err := asm.Assemble(strings.Join(r.source, "\n"))
	if err != nil {
		return err
	}
	r.image = image
	r.stale = false
	r.reload()
	return nil
}

func (r *REPL) reload() {
	r.machine = vm.NewVM()
	r.machine.SetHost(&monitorHost{in: strings.NewReader(""), out: r.out})
	r.machine.SetMaxSteps(r.maxSteps)
	r.machine.Load(r.image)
}

func (r *REPL) reset() {
	if r.image == nil {
		fmt.Fprintln(r.out, "Nothing assembled")
		return
	}
	r.reload()
	fmt.Fprintln(r.out, "Machine reset")
}

func (r *REPL) run() {
	if err := r.assemble(); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	if r.machine.Flag(vm.FlagStop) || r.machine.Fault() != nil {
		r.reload()
	}

	err := r.machine.Run()
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "=> halted after %d steps\n", r.machine.Steps())
	r.printRegs()
}

func (r *REPL) step(n int) {
	if err := r.assemble(); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}

	_, code, _ := vm.SplitImage(r.image)
	for i := 0; i < n; i++ {
		pc := r.machine.PC()
		if inst, ok := vm.DecodeInstruction(code, int(pc)); ok {
			fmt.Fprintf(r.out, "%04X: %s\n", pc, vm.FormatInstruction(inst))
		}
		if err := r.machine.Step(); err != nil {
			if errors.Is(err, vm.ErrHalted) {
				fmt.Fprintln(r.out, "=> halted")
			} else {
				fmt.Fprintf(r.out, "Error: %v\n", err)
			}
			return
		}
	}
}

func (r *REPL) ready() bool {
	if r.machine == nil {
		fmt.Fprintln(r.out, "No program loaded; use run or step")
		return false
	}
	return true
}

func (r *REPL) printRegs() {
	if !r.ready() {
		return
	}
	regs := r.machine.Registers()
	for i, v := range regs {
		fmt.Fprintf(r.out, "%s = 0x%08X  %d\n", vm.Register(i), v, v)
	}
	fmt.Fprintf(r.out, "pc = 0x%04X\n", r.machine.PC())
}

func (r *REPL) printFlags() {
	if !r.ready() {
		return
	}
	flags := r.machine.Flags()
	var set []string
	for f := vm.Flag(0); f < vm.NumFlags; f++ {
		if flags.Get(f) {
			set = append(set, f.String())
		}
	}
	fmt.Fprintf(r.out, "%s  %s\n", flags.String(), strings.Join(set, " "))
}

func (r *REPL) printStack() {
	if !r.ready() {
		return
	}
	values := r.machine.StackValues()
	if len(values) == 0 {
		fmt.Fprintln(r.out, "Stack empty")
		return
	}
	for i := len(values) - 1; i >= 0; i-- {
		fmt.Fprintf(r.out, "%3d: 0x%08X  %d\n", i, values[i], values[i])
	}
}

// printHeap shows heap cells: "heap [addr [count]]".
func (r *REPL) printHeap(args []string) {
	if !r.ready() {
		return
	}
	addr, count := uint64(0), uint64(heapWindow)
	var err error
	if len(args) > 0 {
		if addr, err = strconv.ParseUint(args[0], 0, 32); err != nil {
			fmt.Fprintln(r.out, "Usage: heap [addr [count]]")
			return
		}
	}
	if len(args) > 1 {
		if count, err = strconv.ParseUint(args[1], 0, 16); err != nil {
			fmt.Fprintln(r.out, "Usage: heap [addr [count]]")
			return
		}
	}
	for a := addr; a < addr+count && a <= 0xFFFFFFFF; a++ {
		v := r.machine.HeapRead(uint32(a))
		fmt.Fprintf(r.out, "%08X: 0x%08X  %d\n", a, v, v)
	}
}

func (r *REPL) disassemble() {
	if err := r.assemble(); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	listing, err := vm.Disassemble(r.image)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(r.out, listing)
}

func (r *REPL) printHelp() {
	help := `
RSVM Monitor Commands:
  help, h, ?        Show this help message
  quit, q           Exit the monitor
  list, ls          Show the program source
  clear             Discard the program source
  load <file>       Replace the source with a file
  run               Assemble and run to EXIT
  step, s [n]       Execute n instructions (default 1)
  reset             Reload the assembled program
  regs, r           Show registers and pc
  flags, f          Show flags
  stack             Show the stack, top first
  heap [addr [n]]   Show n heap cells from addr
  dis               Disassemble the program
  history           Show command history

Any other line is added to the program, for example:
  .header "hi"
  loop: MOV_LIT_REG A, 3
  JMP loop
`
	fmt.Fprint(r.out, help)
}

// monitorHost sends program output to the monitor's writer. Input is
// empty: the terminal belongs to the monitor.
type monitorHost struct {
	in  io.Reader
	out io.Writer
}

func (h *monitorHost) Stdin() io.Reader  { return h.in }
func (h *monitorHost) Stdout() io.Writer { return h.out }

func (h *monitorHost) ClearScreen() error {
	_, err := io.WriteString(h.out, clearSeq)
	return err
}
