package trace

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akhildatla/rsvm/internal/testutil"
	"github.com/akhildatla/rsvm/pkg/vm"
)

// runTraced executes a small counting program under a recorder.
func runTraced(t *testing.T, rec *Recorder) *vm.VM {
	t.Helper()
	image := testutil.Image(nil,
		testutil.Op(byte(vm.OpPushLit), testutil.Lit(2)),
		testutil.Op(byte(vm.OpPushLit), testutil.Lit(3)),
		testutil.Op(byte(vm.OpAddStack)),
		testutil.Op(byte(vm.OpPopReg), testutil.Reg(byte(vm.RegB))),
		testutil.Op(0xEE),
		testutil.Op(byte(vm.OpExit)),
	)
	machine := vm.NewVM()
	machine.SetHost(testutil.NewHost(""))
	machine.SetTracer(rec)
	machine.Load(image)
	if err := machine.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return machine
}

func TestRecorder_RecordsEveryInstruction(t *testing.T) {
	rec := NewRecorder(0)
	runTraced(t, rec)

	if rec.Len() != 6 {
		t.Fatalf("expected 6 events, got %d", rec.Len())
	}
	events := rec.Events()
	if events[3].Opcode != vm.OpPopReg || events[3].Registers[vm.RegB] != 5 {
		t.Errorf("unexpected POP_REG event %+v", events[3])
	}
	if events[2].StackDepth != 1 {
		t.Errorf("expected stack depth 1 after ADD_STACK, got %d", events[2].StackDepth)
	}
}

func TestRecorder_Limit(t *testing.T) {
	rec := NewRecorder(2)
	runTraced(t, rec)

	if rec.Len() != 2 {
		t.Errorf("expected 2 events kept, got %d", rec.Len())
	}
	if rec.Dropped() != 4 {
		t.Errorf("expected 4 events dropped, got %d", rec.Dropped())
	}

	rec.Reset()
	if rec.Len() != 0 || rec.Dropped() != 0 {
		t.Error("Reset should clear events and the dropped count")
	}
}

func TestRecorder_DataFrame(t *testing.T) {
	rec := NewRecorder(0)
	runTraced(t, rec)

	df := rec.DataFrame()

	if df.NRows() != 6 {
		t.Fatalf("expected 6 rows, got %d", df.NRows())
	}
	names := df.Names()
	want := []string{ColStep, ColPC, ColOpcode, ColMnemonic, ColA, ColB, ColC, ColD, ColFlags, ColStackDepth}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected columns %v, got %v", want, names)
	}

	mn, _ := df.NameToColumn(ColMnemonic)
	if got := df.Series[mn].ValueString(4); got != "NOP" {
		t.Errorf("expected undefined opcode to be listed as NOP, got %s", got)
	}
	b, _ := df.Series[mustColumn(t, df.Names(), ColB)].Value(3).(int64)
	if b != 5 {
		t.Errorf("expected b = 5 at row 3, got %d", b)
	}
	fl := df.Series[mustColumn(t, df.Names(), ColFlags)].ValueString(5)
	if fl != "-----X" {
		t.Errorf("expected only Stop after EXIT, got %s", fl)
	}
}

func mustColumn(t *testing.T, names []string, name string) int {
	t.Helper()
	for i, n := range names {
		if n == name {
			return i
		}
	}
	t.Fatalf("column %s not found in %v", name, names)
	return -1
}

func TestFromEvents_Empty(t *testing.T) {
	df := FromEvents(nil)
	if df.NRows() != 0 {
		t.Errorf("expected 0 rows, got %d", df.NRows())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"csv", FormatCSV},
		{"JSON", FormatJSON},
		{"Parquet", FormatParquet},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if err != nil || got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	if f, err := FormatFromPath("/tmp/run.parquet"); err != nil || f != FormatParquet {
		t.Errorf("expected parquet, got %s (%v)", f, err)
	}
	if _, err := FormatFromPath("/tmp/run"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestExport_CSV(t *testing.T) {
	rec := NewRecorder(0)
	runTraced(t, rec)

	var buf bytes.Buffer
	if err := Export(context.Background(), &buf, rec.DataFrame(), FormatCSV); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected header and 6 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], ColMnemonic) || !strings.Contains(lines[0], ColStackDepth) {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[6], "EXIT") {
		t.Errorf("expected last row to be EXIT, got %q", lines[6])
	}
}

func TestExport_JSON(t *testing.T) {
	rec := NewRecorder(0)
	runTraced(t, rec)

	var buf bytes.Buffer
	if err := Export(context.Background(), &buf, rec.DataFrame(), FormatJSON); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, ColMnemonic) || !strings.Contains(out, "ADD_STACK") {
		t.Errorf("expected JSON rows with mnemonics, got %s", out)
	}
}

func TestExport_ParquetNeedsFile(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(context.Background(), &buf, FromEvents(nil), FormatParquet); !errors.Is(err, ErrNeedsFile) {
		t.Errorf("expected ErrNeedsFile, got %v", err)
	}
}

func TestExportFile_RoundTrip(t *testing.T) {
	for _, ext := range []string{"csv", "json", "parquet"} {
		t.Run(ext, func(t *testing.T) {
			rec := NewRecorder(0)
			runTraced(t, rec)
			path := filepath.Join(t.TempDir(), "trace."+ext)
			ctx := context.Background()

			if err := ExportFile(ctx, path, rec.DataFrame(), ""); err != nil {
				t.Fatalf("ExportFile failed: %v", err)
			}

			df, err := Load(ctx, path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if df.NRows() != 6 {
				t.Errorf("expected 6 rows, got %d", df.NRows())
			}

			summary, err := Summarize(df)
			if err != nil {
				t.Fatalf("Summarize failed: %v", err)
			}
			if summary.Steps != 6 {
				t.Errorf("expected 6 steps, got %d", summary.Steps)
			}
			if len(summary.Counts) == 0 {
				t.Fatal("expected mnemonic counts")
			}
			if summary.Counts[0].Mnemonic != "PUSH_LIT" || summary.Counts[0].Count != 2 {
				t.Errorf("expected PUSH_LIT x2 first, got %+v", summary.Counts[0])
			}
			if summary.MaxStack != 2 {
				t.Errorf("expected max stack depth 2, got %d", summary.MaxStack)
			}
		})
	}
}

func TestExportFile_Parquet(t *testing.T) {
	rec := NewRecorder(0)
	runTraced(t, rec)
	path := filepath.Join(t.TempDir(), "trace.parquet")

	if err := ExportFile(context.Background(), path, rec.DataFrame(), ""); err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read parquet file: %v", err)
	}
	if len(data) < 8 || string(data[:4]) != "PAR1" {
		t.Errorf("expected a parquet file, got %d bytes", len(data))
	}
}

func TestExportFile_UnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.xml")
	err := ExportFile(context.Background(), path, FromEvents(nil), "")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "none.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSummarize_NotATrace(t *testing.T) {
	path := testutil.TempFile(t, []byte("x,y\n1,2\n"), ".csv")
	df, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := Summarize(df); !errors.Is(err, ErrNotATrace) {
		t.Errorf("expected ErrNotATrace, got %v", err)
	}
}
