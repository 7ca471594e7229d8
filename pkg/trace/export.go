package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/tliron/commonlog"
	"github.com/xitongsys/parquet-go-source/local"
)

// Format is a trace file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// Export errors
var (
	ErrUnknownFormat = errors.New("unknown trace format")
	ErrNeedsFile     = errors.New("format can only be written to a file")
)

var log = commonlog.GetLogger("rsvm.trace")

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Export writes df to w as CSV or JSON. Parquet needs a seekable file;
// use ExportFile.
func Export(ctx context.Context, w io.Writer, df *dataframe.DataFrame, format Format) error {
	switch format {
	case FormatCSV:
		return exports.ExportToCSV(ctx, w, df)
	case FormatJSON:
		return exports.ExportToJSON(ctx, w, df)
	case FormatParquet:
		return ErrNeedsFile
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ExportFile writes df to path. An empty format is inferred from the
// path's extension.
func ExportFile(ctx context.Context, path string, df *dataframe.DataFrame, format Format) error {
	if format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return err
		}
		format = f
	}

	log.Infof("writing %d trace rows to %s (%s)", df.NRows(), path, format)

	if format == FormatParquet {
		fw, err := local.NewLocalFileWriter(path)
		if err != nil {
			return err
		}
		if err := exports.ExportToParquet(ctx, fw, df); err != nil {
			fw.Close()
			return err
		}
		return fw.Close()
	}

	if _, err := ParseFormat(string(format)); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Export(ctx, file, df, format); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
