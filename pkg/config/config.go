// Package config handles rsvm.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/akhildatla/rsvm/pkg/trace"
	"github.com/akhildatla/rsvm/pkg/vm"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "rsvm.toml"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config represents an rsvm.toml file.
type Config struct {
	VM    VMConfig    `toml:"vm"`
	Log   LogConfig   `toml:"log"`
	Trace TraceConfig `toml:"trace"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-"`
}

// VMConfig sizes and limits the machine.
type VMConfig struct {
	HeapCapacity  int    `toml:"heap-capacity"`
	StackCapacity int    `toml:"stack-capacity"`
	MaxHeapCells  uint32 `toml:"max-heap-cells"`
	MaxSteps      uint64 `toml:"max-steps"`
	Timeout       string `toml:"timeout"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// TraceConfig configures execution tracing. Tracing is off when Output
// is empty.
type TraceConfig struct {
	Output string `toml:"output"`
	Format string `toml:"format"`
	Limit  int    `toml:"limit"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		VM: VMConfig{
			HeapCapacity:  vm.DefaultHeapCapacity,
			StackCapacity: vm.DefaultStackCapacity,
		},
	}
}

// Load parses rsvm.toml from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file. Keys that are not part of the
// schema are rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s: unknown keys %s", ErrInvalid, path, strings.Join(keys, ", "))
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Defaults
	if c.VM.HeapCapacity == 0 {
		c.VM.HeapCapacity = vm.DefaultHeapCapacity
	}
	if c.VM.StackCapacity == 0 {
		c.VM.StackCapacity = vm.DefaultStackCapacity
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an rsvm.toml file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.VM.HeapCapacity < 0 {
		return fmt.Errorf("%w: vm.heap-capacity %d is negative", ErrInvalid, c.VM.HeapCapacity)
	}
	if c.VM.StackCapacity < 0 {
		return fmt.Errorf("%w: vm.stack-capacity %d is negative", ErrInvalid, c.VM.StackCapacity)
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if c.Log.Verbosity < -4 || c.Log.Verbosity > 5 {
		return fmt.Errorf("%w: log.verbosity %d out of range", ErrInvalid, c.Log.Verbosity)
	}
	if c.Trace.Format != "" {
		if _, err := trace.ParseFormat(c.Trace.Format); err != nil {
			return fmt.Errorf("%w: trace.format: %v", ErrInvalid, err)
		}
	}
	if c.Trace.Limit < 0 {
		return fmt.Errorf("%w: trace.limit %d is negative", ErrInvalid, c.Trace.Limit)
	}
	return nil
}

// TimeoutDuration parses vm.timeout. An empty value means no timeout.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.VM.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.VM.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: vm.timeout %q", ErrInvalid, c.VM.Timeout)
	}
	return d, nil
}

// VMOptions converts the [vm] section to machine options.
func (c *Config) VMOptions() vm.Options {
	return vm.Options{
		HeapCapacity:  c.VM.HeapCapacity,
		StackCapacity: c.VM.StackCapacity,
		MaxHeapCells:  c.VM.MaxHeapCells,
		MaxSteps:      c.VM.MaxSteps,
	}
}

// TraceFormat returns the configured trace format, or "" to infer it
// from the output file name.
func (c *Config) TraceFormat() trace.Format {
	if c.Trace.Format == "" {
		return ""
	}
	f, _ := trace.ParseFormat(c.Trace.Format)
	return f
}
