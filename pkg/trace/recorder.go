// Package trace records VM execution and writes it out as tabular data.
//
// A Recorder is installed as the VM's tracer. Its events become a
// dataframe with one row per executed instruction:
//
//	step | pc | opcode | mnemonic | a | b | c | d | flags | stack_depth
//
// which can be exported to CSV, JSON or Parquet and loaded back for
// analysis.
package trace

import (
	"sync"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/rsvm/pkg/vm"
)

// Column names of a trace dataframe.
const (
	ColStep       = "step"
	ColPC         = "pc"
	ColOpcode     = "opcode"
	ColMnemonic   = "mnemonic"
	ColA          = "a"
	ColB          = "b"
	ColC          = "c"
	ColD          = "d"
	ColFlags      = "flags"
	ColStackDepth = "stack_depth"
)

// Recorder collects trace events. A positive limit caps the number of
// events kept; later events are counted but discarded.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	events  []vm.TraceEvent
	dropped uint64
}

// NewRecorder creates a recorder keeping at most limit events, or all
// events when limit is 0.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Trace implements vm.Tracer.
func (r *Recorder) Trace(ev vm.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.events) >= r.limit {
		r.dropped++
		return
	}
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []vm.TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]vm.TraceEvent(nil), r.events...)
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Dropped returns the number of events discarded because of the limit.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.dropped = 0
}

// DataFrame materialises the recorded events.
func (r *Recorder) DataFrame() *dataframe.DataFrame {
	return FromEvents(r.Events())
}

// FromEvents builds a trace dataframe from events.
func FromEvents(events []vm.TraceEvent) *dataframe.DataFrame {
	n := len(events)
	steps := make([]interface{}, n)
	pcs := make([]interface{}, n)
	opcodes := make([]interface{}, n)
	mnemonics := make([]interface{}, n)
	regs := [vm.NumRegisters][]interface{}{}
	for i := range regs {
		regs[i] = make([]interface{}, n)
	}
	flags := make([]interface{}, n)
	depths := make([]interface{}, n)

	for i, ev := range events {
		steps[i] = int64(ev.Step)
		pcs[i] = int64(ev.PC)
		opcodes[i] = int64(ev.Opcode)
		mnemonics[i] = mnemonic(ev.Opcode)
		for r := range regs {
			regs[r][i] = int64(ev.Registers[r])
		}
		flags[i] = ev.Flags.String()
		depths[i] = int64(ev.StackDepth)
	}

	return dataframe.NewDataFrame(
		dataframe.NewSeriesInt64(ColStep, nil, steps...),
		dataframe.NewSeriesInt64(ColPC, nil, pcs...),
		dataframe.NewSeriesInt64(ColOpcode, nil, opcodes...),
		dataframe.NewSeriesString(ColMnemonic, nil, mnemonics...),
		dataframe.NewSeriesInt64(ColA, nil, regs[vm.RegA]...),
		dataframe.NewSeriesInt64(ColB, nil, regs[vm.RegB]...),
		dataframe.NewSeriesInt64(ColC, nil, regs[vm.RegC]...),
		dataframe.NewSeriesInt64(ColD, nil, regs[vm.RegD]...),
		dataframe.NewSeriesString(ColFlags, nil, flags...),
		dataframe.NewSeriesInt64(ColStackDepth, nil, depths...),
	)
}

// mnemonic names undefined opcodes NOP, as they execute.
func mnemonic(op vm.Opcode) string {
	if !op.Defined() {
		return vm.OpNop.String()
	}
	return op.String()
}
