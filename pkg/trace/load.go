package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/xitongsys/parquet-go-source/local"
)

// Load errors
var (
	ErrEmptyTrace = errors.New("empty trace file")
	ErrNotATrace  = errors.New("not a trace: missing column")
)

// Load reads a trace file written by ExportFile. The format is inferred
// from the extension.
func Load(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	var df *dataframe.DataFrame
	switch format {
	case FormatCSV:
		df, err = loadCSV(ctx, path)
	case FormatJSON:
		df, err = loadJSON(ctx, path)
	case FormatParquet:
		df, err = loadParquet(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyTrace
	}
	return df, nil
}

func loadCSV(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return imports.LoadFromCSV(ctx, file, imports.CSVLoadOptions{
		InferDataTypes: true,
	})
}

func loadJSON(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyTrace
	}
	return imports.LoadFromJSON(ctx, bytes.NewReader(data))
}

func loadParquet(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	return imports.LoadFromParquet(ctx, fr)
}

// MnemonicCount is one row of a trace summary.
type MnemonicCount struct {
	Mnemonic string
	Count    int
}

// Summary describes a loaded trace.
type Summary struct {
	Steps    int
	Counts   []MnemonicCount // most frequent first
	MaxStack int64
}

// Summarize counts executed instructions by mnemonic.
func Summarize(df *dataframe.DataFrame) (*Summary, error) {
	mnIdx, err := df.NameToColumn(ColMnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrNotATrace, ColMnemonic)
	}
	depthIdx, err := df.NameToColumn(ColStackDepth)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrNotATrace, ColStackDepth)
	}

	mnemonics := df.Series[mnIdx]
	depths := df.Series[depthIdx]
	rows := mnemonics.NRows()

	counts := make(map[string]int)
	s := &Summary{Steps: rows}
	for i := 0; i < rows; i++ {
		counts[mnemonics.ValueString(i)]++
		if d, ok := toInt64(depths.Value(i)); ok && d > s.MaxStack {
			s.MaxStack = d
		}
	}

	for name, n := range counts {
		s.Counts = append(s.Counts, MnemonicCount{Mnemonic: name, Count: n})
	}
	sort.Slice(s.Counts, func(i, j int) bool {
		if s.Counts[i].Count != s.Counts[j].Count {
			return s.Counts[i].Count > s.Counts[j].Count
		}
		return s.Counts[i].Mnemonic < s.Counts[j].Mnemonic
	})
	return s, nil
}

// toInt64 accepts the numeric types the importers produce.
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
