// Package embed provides the Go embedding API for RSVM.
//
// Pass assembly source, get the final machine state back.
//
// Basic usage:
//
//	result, err := embed.Execute(`
//	    PUSH_LIT     3
//	    PUSH_LIT     4
//	    ADD_STACK
//	    POP_REG      B
//	    MOV_LIT_REG  A, 3
//	    SYSCALL
//	    EXIT
//	`)
//	fmt.Print(string(result.Output)) // 7
//
// With limits:
//
//	result, err := embed.ExecuteWithOptions(code,
//	    embed.WithTimeout(time.Second),
//	    embed.WithMaxSteps(10000),
//	)
package embed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/akhildatla/rsvm/pkg/asm"
	"github.com/akhildatla/rsvm/pkg/vm"
)

// Common errors
var (
	ErrTimeout   = errors.New("execution timeout exceeded")
	ErrStepLimit = errors.New("instruction limit exceeded")
	ErrHeapLimit = errors.New("heap limit exceeded")
)

// clearSequence is written for the clear-screen syscall. Embedded
// programs never spawn processes.
const clearSequence = "\x1b[2J\x1b[H"

// Result is the machine state after a program exits.
type Result struct {
	Registers vm.RegisterFile
	Flags     vm.FlagSet
	Stack     []uint32
	Steps     uint64

	// Output holds what the program wrote, unless WithStdout redirected it.
	Output []byte
}

// Register returns the final value of register r.
func (r *Result) Register(reg vm.Register) uint32 {
	return r.Registers[reg]
}

// Execute assembles and runs code with no input.
func Execute(code string) (*Result, error) {
	return ExecuteWithOptions(code)
}

// ExecuteFile reads an assembly file and executes it.
func ExecuteFile(path string, opts ...Option) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ExecuteWithOptions(string(data), opts...)
}

// Options configures execution behavior for ExecuteWithOptions.
type Options struct {
	// Stdin feeds the read syscall. Nil means empty input.
	Stdin io.Reader

	// Stdout receives program output. Nil captures it in Result.Output.
	Stdout io.Writer

	// Timeout sets maximum execution time. Zero means no timeout.
	Timeout time.Duration

	// MaxSteps limits the number of instructions executed.
	// Zero means unlimited.
	MaxSteps uint64

	// MaxHeapCells limits addressable heap cells.
	// Zero means unlimited.
	MaxHeapCells uint32

	// Tracer receives an event per instruction.
	Tracer vm.Tracer

	// Context for cancellation. If nil, context.Background() is used.
	Context context.Context
}

// Option is a functional option for configuring execution.
type Option func(*Options)

// WithStdin sets the program's input.
func WithStdin(r io.Reader) Option {
	return func(o *Options) {
		o.Stdin = r
	}
}

// WithInput sets the program's input from a string.
func WithInput(s string) Option {
	return WithStdin(strings.NewReader(s))
}

// WithStdout sends program output to w.
func WithStdout(w io.Writer) Option {
	return func(o *Options) {
		o.Stdout = w
	}
}

// WithTimeout sets execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithMaxSteps sets the instruction limit.
func WithMaxSteps(n uint64) Option {
	return func(o *Options) {
		o.MaxSteps = n
	}
}

// WithMaxHeapCells sets the heap limit in cells.
func WithMaxHeapCells(n uint32) Option {
	return func(o *Options) {
		o.MaxHeapCells = n
	}
}

// WithTracer installs a tracer.
func WithTracer(t vm.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// WithContext sets the context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

// ExecuteWithOptions assembles code and runs it with the given options.
func ExecuteWithOptions(code string, opts ...Option) (*Result, error) {
	image, err := asm.Assemble(code)
	if err != nil {
		return nil, err
	}
	return ExecuteImage(image, opts...)
}

// ExecuteImage runs an already assembled program image.
func ExecuteImage(image []byte, opts ...Option) (*Result, error) {
	// Apply options
	options := &Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(options)
	}

	host := &bufferHost{in: options.Stdin, out: options.Stdout}
	if host.in == nil {
		host.in = strings.NewReader("")
	}
	var captured bytes.Buffer
	if host.out == nil {
		host.out = &captured
	}

	machine := vm.NewVMWithOptions(vm.Options{
		MaxSteps:     options.MaxSteps,
		MaxHeapCells: options.MaxHeapCells,
	})
	machine.SetHost(host)
	if options.Tracer != nil {
		machine.SetTracer(options.Tracer)
	}
	machine.Load(image)

	// Setup timeout context
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	if err := machine.RunContext(ctx); err != nil {
		// Map VM errors to embed package errors
		switch {
		case errors.Is(err, vm.ErrStepLimit):
			return nil, ErrStepLimit
		case errors.Is(err, vm.ErrHeapLimit):
			return nil, ErrHeapLimit
		case errors.Is(err, context.DeadlineExceeded):
			return nil, ErrTimeout
		}
		return nil, err
	}

	return &Result{
		Registers: machine.Registers(),
		Flags:     machine.Flags(),
		Stack:     machine.StackValues(),
		Steps:     machine.Steps(),
		Output:    captured.Bytes(),
	}, nil
}

// bufferHost services syscalls from in-memory streams.
type bufferHost struct {
	in  io.Reader
	out io.Writer
}

func (h *bufferHost) Stdin() io.Reader  { return h.in }
func (h *bufferHost) Stdout() io.Writer { return h.out }

func (h *bufferHost) ClearScreen() error {
	_, err := io.WriteString(h.out, clearSequence)
	return err
}
