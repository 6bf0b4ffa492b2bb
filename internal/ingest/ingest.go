// Package ingest reads one instrument file into a series.Series.
//
// Every supported file is a table with a header row: the first column holds
// timestamps and every remaining column is numeric. The reader is chosen
// from the file name:
//
//	.csv .txt .tsv (and anything unrecognized)  encoding/csv
//	.xlsx                                       excelize
//	.parquet                                    parquet-go
//	.json .ndjson .jsonl .gz                    DuckDB
package ingest

import (
	"database/sql"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xtxerr/atlas/internal/calendar"
	"github.com/xtxerr/atlas/internal/logging"
	"github.com/xtxerr/atlas/internal/series"
)

// Format identifies a file reader.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
	FormatDuckDB  Format = "duckdb"
)

// Options configures a Loader.
type Options struct {
	// DatetimeFormat is the timestamp format, a Go layout or strftime pattern.
	DatetimeFormat string

	// Sheet selects the worksheet of .xlsx files. Empty means the first sheet.
	Sheet string

	// Logger receives per-file debug logs. Defaults to the "ingest" component.
	Logger *zap.Logger
}

// Loader reads instrument files. A Loader is safe for concurrent use and
// must be closed to release the DuckDB handle it may have opened.
type Loader struct {
	opts   Options
	parser *calendar.Parser
	log    *zap.Logger

	duckMu sync.Mutex
	duck   *sql.DB
}

// NewLoader creates a loader for the given options.
func NewLoader(opts Options) (*Loader, error) {
	parser, err := calendar.NewParser(opts.DatetimeFormat)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logging.Component("ingest")
	}

	return &Loader{
		opts:   opts,
		parser: parser,
		log:    log,
	}, nil
}

// Close releases resources held by the loader.
func (l *Loader) Close() error {
	l.duckMu.Lock()
	defer l.duckMu.Unlock()

	if l.duck == nil {
		return nil
	}
	err := l.duck.Close()
	l.duck = nil
	return err
}

// FormatOf returns the reader used for a file name.
func FormatOf(filename string) Format {
	lower := strings.ToLower(filepath.Base(filename))
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return FormatXLSX
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(lower, ".json"),
		strings.HasSuffix(lower, ".ndjson"),
		strings.HasSuffix(lower, ".jsonl"),
		strings.HasSuffix(lower, ".gz"):
		return FormatDuckDB
	default:
		return FormatCSV
	}
}

// InstrumentName derives an instrument name from a file name: the text
// before the first dot.
func InstrumentName(filename string) string {
	base := filepath.Base(filename)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// Load reads the file at path as instrument id/name.
func (l *Loader) Load(id int, name, path string) (*series.Series, error) {
	format := FormatOf(path)

	var (
		t   *table
		err error
	)
	switch format {
	case FormatXLSX:
		t, err = l.readXLSX(name, path)
	case FormatParquet:
		t, err = l.readParquet(name, path)
	case FormatDuckDB:
		t, err = l.readDuckDB(name, path)
	default:
		t, err = l.readCSV(name, path)
	}
	if err != nil {
		return nil, err
	}

	s, err := t.build(id, series.Meta{
		Source:         path,
		Format:         string(format),
		DatetimeFormat: l.opts.DatetimeFormat,
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug("instrument loaded",
		zap.String("instrument", name),
		zap.String("format", string(format)),
		zap.Int("rows", s.Rows()),
		zap.Int("cols", s.Cols()))

	return s, nil
}
