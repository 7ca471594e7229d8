// Package main provides the CLI entry point for RSVM.
//
// Usage:
//
//	rsvm run program.rsvm            # Execute a program image
//	rsvm asm program.rsa             # Assemble to a program image (.rsvm)
//	rsvm exec program.rsa            # Assemble and execute
//	rsvm disasm program.rsvm         # Disassemble a program image
//	rsvm inspect state.cbor          # Show a machine snapshot
//	rsvm trace-stats trace.csv       # Summarize an execution trace
//	rsvm repl                        # Interactive monitor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/akhildatla/rsvm/pkg/asm"
	"github.com/akhildatla/rsvm/pkg/config"
	"github.com/akhildatla/rsvm/pkg/optimizer"
	"github.com/akhildatla/rsvm/pkg/repl"
	"github.com/akhildatla/rsvm/pkg/trace"
	"github.com/akhildatla/rsvm/pkg/vm"
)

// Version info set by GoReleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// imageExt is the extension of assembled program images.
const imageExt = ".rsvm"

var log = commonlog.GetLogger("rsvm")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		return runCommand(os.Args[2:])
	case "asm":
		return asmCommand(os.Args[2:])
	case "exec":
		return execCommand(os.Args[2:])
	case "disasm":
		return disasmCommand(os.Args[2:])
	case "inspect":
		return inspectCommand(os.Args[2:])
	case "trace-stats":
		return traceStatsCommand(os.Args[2:])
	case "repl":
		return replCommand(os.Args[2:])
	case "version":
		fmt.Printf("rsvm version %s\n", version)
		if commit != "none" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Printf("  built:  %s\n", date)
		}
		return nil
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// commonFlags are accepted by every command that runs or builds programs.
type commonFlags struct {
	configPath *string
	verbose    *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "configuration file (default: nearest rsvm.toml)"),
		verbose:    fs.Bool("v", false, "verbose output"),
	}
}

// setup loads the configuration and configures logging.
func (c *commonFlags) setup() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if *c.configPath != "" {
		cfg, err = config.LoadFile(*c.configPath)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	verbosity := cfg.Log.Verbosity
	if *c.verbose && verbosity < 1 {
		verbosity = 1
	}
	var logPath *string
	if cfg.Log.File != "" {
		logPath = &cfg.Log.File
	}
	commonlog.Configure(verbosity, logPath)

	if cfg.Path != "" {
		log.Infof("using configuration %s", cfg.Path)
	}
	return cfg, nil
}

// runFlags are shared by run and exec.
type runFlags struct {
	*commonFlags
	traceOut    *string
	traceFormat *string
	dump        *string
	maxSteps    *uint64
	timeout     *string
}

func addRunFlags(fs *flag.FlagSet) *runFlags {
	return &runFlags{
		commonFlags: addCommonFlags(fs),
		traceOut:    fs.String("trace", "", "write an execution trace to this file"),
		traceFormat: fs.String("trace-format", "", "trace format: csv, json or parquet (default: from extension)"),
		dump:        fs.String("dump", "", "write a CBOR snapshot of the final state to this file"),
		maxSteps:    fs.Uint64("max-steps", 0, "instruction limit (overrides config)"),
		timeout:     fs.String("timeout", "", "execution timeout, e.g. 5s (overrides config)"),
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	flags := addRunFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rsvm run <file%s>", imageExt)
	}

	cfg, err := flags.setup()
	if err != nil {
		return err
	}

	path := fs.Arg(0)
	if *flags.verbose {
		fmt.Fprintf(os.Stderr, "Executing: %s\n", path)
	}

	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	return runImage(image, cfg, flags)
}

func execCommand(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	optimize := fs.Bool("O", false, "optimize before running")
	flags := addRunFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rsvm exec <file.rsa>")
	}

	cfg, err := flags.setup()
	if err != nil {
		return err
	}

	path := fs.Arg(0)
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	program, err := assembleSource(string(source), *optimize)
	if err != nil {
		return fmt.Errorf("assembling %s: %w", path, err)
	}

	image, err := program.Image()
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	if *flags.verbose {
		fmt.Fprintf(os.Stderr, "Assembled %s: %d bytes\n", path, len(image))
	}

	return runImage(image, cfg, flags)
}

// runImage executes image with the configured limits, then writes the
// trace and snapshot if requested. Both are written even when the
// program faults.
func runImage(image []byte, cfg *config.Config, flags *runFlags) error {
	opts := cfg.VMOptions()
	if *flags.maxSteps > 0 {
		opts.MaxSteps = *flags.maxSteps
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return err
	}
	if *flags.timeout != "" {
		c := *cfg
		c.VM.Timeout = *flags.timeout
		if timeout, err = c.TimeoutDuration(); err != nil {
			return err
		}
	}

	traceOut := cfg.Trace.Output
	if *flags.traceOut != "" {
		traceOut = *flags.traceOut
	}
	traceFormat := cfg.TraceFormat()
	if *flags.traceFormat != "" {
		if traceFormat, err = trace.ParseFormat(*flags.traceFormat); err != nil {
			return err
		}
	}

	machine := vm.NewVMWithOptions(opts)
	var recorder *trace.Recorder
	if traceOut != "" {
		recorder = trace.NewRecorder(cfg.Trace.Limit)
		machine.SetTracer(recorder)
	}
	machine.Load(image)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runErr := machine.RunContext(ctx)

	if recorder != nil {
		if err := trace.ExportFile(context.Background(), traceOut, recorder.DataFrame(), traceFormat); err != nil {
			return errors.Join(runErr, fmt.Errorf("writing trace: %w", err))
		}
		if n := recorder.Dropped(); n > 0 {
			log.Noticef("trace limit reached: %d events not recorded", n)
		}
	}

	if *flags.dump != "" {
		data, err := vm.MarshalSnapshot(machine.Snapshot())
		if err != nil {
			return errors.Join(runErr, fmt.Errorf("encoding snapshot: %w", err))
		}
		if err := os.WriteFile(*flags.dump, data, 0644); err != nil {
			return errors.Join(runErr, fmt.Errorf("writing snapshot: %w", err))
		}
	}

	if *flags.verbose {
		fmt.Fprintf(os.Stderr, "Executed %d instructions\n", machine.Steps())
		printState(os.Stderr, machine.Snapshot())
	}

	return runErr
}

func asmCommand(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	output := fs.String("o", "", "output file (default: input with "+imageExt+" extension)")
	optimize := fs.Bool("O", false, "enable optimizations")
	flags := addCommonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rsvm asm <file.rsa> [-o output%s]", imageExt)
	}

	if _, err := flags.setup(); err != nil {
		return err
	}

	inputPath := fs.Arg(0)
	outputPath := *output

	if outputPath == "" {
		// Replace extension with .rsvm
		ext := filepath.Ext(inputPath)
		outputPath = strings.TrimSuffix(inputPath, ext) + imageExt
	}

	if *flags.verbose {
		fmt.Printf("Assembling: %s -> %s\n", inputPath, outputPath)
	}

	// Read source
	source, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	program, err := assembleSource(string(source), *optimize)
	if err != nil {
		return fmt.Errorf("assembling: %w", err)
	}

	image, err := program.Image()
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	// Write output
	if err := os.WriteFile(outputPath, image, 0644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}

	if *flags.verbose {
		fmt.Printf("Assembled %d instructions, %d header bytes, %d labels\n",
			len(program.Instructions), len(program.Header), len(program.Labels))
		fmt.Printf("Output: %s (%d bytes)\n", outputPath, len(image))
	} else {
		fmt.Printf("Assembled: %s\n", outputPath)
	}

	return nil
}

// assembleSource parses source, optionally optimizes it, and assembles it.
func assembleSource(source string, optimize bool) (*asm.Program, error) {
	parsed, err := asm.Parse(source)
	if err != nil {
		return nil, err
	}

	if optimize {
		before := len(parsed.Instructions)
		parsed = optimizer.New(optimizer.WithAllOptimizations()).Optimize(parsed)
		log.Infof("optimized %d instructions to %d", before, len(parsed.Instructions))
	}

	return asm.AssembleProgram(parsed)
}

func disasmCommand(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	output := fs.String("o", "", "output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rsvm disasm <file%s> [-o output.rsa]", imageExt)
	}

	path := fs.Arg(0)

	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	listing, err := vm.Disassemble(image)
	if err != nil {
		return fmt.Errorf("disassembling: %w", err)
	}

	// Output
	if *output != "" {
		if err := os.WriteFile(*output, []byte(listing), 0644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Printf("Disassembled to: %s\n", *output)
	} else {
		fmt.Print(listing)
	}

	return nil
}

func inspectCommand(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	heapCells := fs.Int("heap", 16, "number of non-zero heap cells to show")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rsvm inspect <snapshot>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	snap, err := vm.UnmarshalSnapshot(data)
	if err != nil {
		return err
	}

	printState(os.Stdout, snap)

	shown := 0
	for addr, v := range snap.Heap {
		if v == 0 {
			continue
		}
		if shown == 0 {
			fmt.Println("Heap (non-zero cells):")
		}
		if shown == *heapCells {
			fmt.Println("  ...")
			break
		}
		fmt.Printf("  %08X: 0x%08X  %d\n", addr, v, v)
		shown++
	}

	return nil
}

// printState writes the diagnostic view of a snapshot.
func printState(w *os.File, s *vm.Snapshot) {
	regs := make([]string, vm.NumRegisters)
	for i, v := range s.Registers {
		regs[i] = fmt.Sprintf("%s=%d", vm.Register(i), v)
	}
	flags := vm.FlagSet(s.Flags)

	fmt.Fprintf(w, "Registers: %s\n", strings.Join(regs, " "))
	fmt.Fprintf(w, "Flags:     %s\n", flags.String())
	fmt.Fprintf(w, "PC:        0x%04X\n", s.PC)
	fmt.Fprintf(w, "BP:        0x%04X\n", s.BasePointer)
	fmt.Fprintf(w, "Header:    %d bytes\n", s.HeaderSize)
	fmt.Fprintf(w, "Steps:     %d\n", s.Steps)
	fmt.Fprintf(w, "Stack:     %d values", len(s.Stack))
	if n := len(s.Stack); n > 0 {
		fmt.Fprintf(w, ", top %d", s.Stack[n-1])
	}
	fmt.Fprintln(w)
	if s.Fault != "" {
		fmt.Fprintf(w, "Fault:     %s\n", s.Fault)
	}
}

func traceStatsCommand(args []string) error {
	fs := flag.NewFlagSet("trace-stats", flag.ExitOnError)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: rsvm trace-stats <trace.csv|trace.json|trace.parquet>")
	}

	df, err := trace.Load(context.Background(), fs.Arg(0))
	if err != nil {
		return fmt.Errorf("loading trace: %w", err)
	}

	summary, err := trace.Summarize(df)
	if err != nil {
		return err
	}

	fmt.Printf("Steps:           %d\n", summary.Steps)
	fmt.Printf("Max stack depth: %d\n", summary.MaxStack)
	fmt.Println("Instructions:")
	for _, c := range summary.Counts {
		fmt.Printf("  %-14s %d\n", c.Mnemonic, c.Count)
	}

	return nil
}

func replCommand(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	flags := addCommonFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.setup()
	if err != nil {
		return err
	}

	r := repl.New()
	if cfg.VM.MaxSteps > 0 {
		r.SetMaxSteps(cfg.VM.MaxSteps)
	}

	if fs.NArg() > 0 {
		source, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}
		r.SetSource(string(source))
	}

	r.Start(os.Stdin, os.Stdout)
	return nil
}

func printUsage() error {
	fmt.Println(`RSVM - a small register and stack bytecode virtual machine

Usage:
  rsvm <command> [arguments]

Commands:
  run <file.rsvm>         Execute a program image
  asm <file.rsa>          Assemble source to a program image (.rsvm)
  exec <file.rsa>         Assemble and execute source
  disasm <file.rsvm>      Disassemble a program image
  inspect <snapshot>      Show a machine snapshot written by -dump
  trace-stats <trace>     Summarize a trace written by -trace
  repl [file.rsa]         Start the interactive monitor
  version                 Print version information
  help                    Show this help message

Run/Exec Options:
  -O                      Optimize before running (exec only)
  -trace <file>           Write an execution trace (.csv, .json or .parquet)
  -trace-format <fmt>     Trace format, overriding the file extension
  -dump <file>            Write a CBOR snapshot of the final machine state
  -max-steps <n>          Instruction limit
  -timeout <duration>     Execution timeout
  -config <file>          Configuration file (default: nearest rsvm.toml)
  -v                      Verbose output

Asm Options:
  -o <file>               Output file (default: input with .rsvm extension)
  -O                      Enable optimizations
  -v                      Verbose output

Disasm Options:
  -o <file>               Output file (default: stdout)

Inspect Options:
  -heap <n>               Non-zero heap cells to show (default 16)

Examples:
  rsvm asm hello.rsa
  rsvm asm -O -o hello.rsvm hello.rsa
  rsvm run hello.rsvm
  rsvm exec -trace run.csv -dump state.cbor hello.rsa
  rsvm inspect state.cbor
  rsvm trace-stats run.csv
  rsvm repl hello.rsa`)
	return nil
}
