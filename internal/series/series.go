// Package series holds one instrument's raw time series.
package series

import (
	"fmt"
	"maps"
	"slices"

	"github.com/xtxerr/atlas/internal/errors"
)

// Series is one instrument's raw time series: a timestamp per row and a
// flat row-major buffer of Cols values per row. A Series is immutable once
// constructed; accessors return copies of its slices and maps.
type Series struct {
	id   int
	name string

	source         string
	format         string
	datetimeFormat string

	timestamps []int64
	values     []float64
	columns    map[string]int
	rows       int
	cols       int
}

// Meta describes where a Series came from.
type Meta struct {
	// Source is the file path the series was read from.
	Source string

	// Format is the reader that produced it (csv, xlsx, parquet, duckdb).
	Format string

	// DatetimeFormat is the timestamp format used while reading.
	DatetimeFormat string
}

// FromTable builds a Series from a header and parsed rows. header lists
// the data column names in order, without the timestamp column.
// len(values) must equal len(timestamps)*len(header).
func FromTable(id int, name string, header []string, timestamps []int64, values []float64, meta Meta) (*Series, error) {
	cols := len(header)
	if len(values) != len(timestamps)*cols {
		return nil, fmt.Errorf("instrument %s: %d values for %d rows of %d columns: %w",
			name, len(values), len(timestamps), cols, errors.ErrParse)
	}

	columns := make(map[string]int, cols)
	for i, h := range header {
		if _, dup := columns[h]; dup {
			return nil, errors.NewCell(name, meta.Source, 0, h, errors.ErrDuplicateColumn)
		}
		columns[h] = i
	}

	return &Series{
		id:             id,
		name:           name,
		source:         meta.Source,
		format:         meta.Format,
		datetimeFormat: meta.DatetimeFormat,
		timestamps:     timestamps,
		values:         values,
		columns:        columns,
		rows:           len(timestamps),
		cols:           cols,
	}, nil
}

// New creates an in-memory single-column series whose only column is named
// after the instrument.
func New(id int, name string, timestamps []int64, values []float64) (*Series, error) {
	return FromTable(id, name, []string{name}, slices.Clone(timestamps), slices.Clone(values), Meta{})
}

// Reindex returns a copy of s carrying a different identity id. The
// underlying buffers are shared, which is safe because neither copy
// mutates them.
func (s *Series) Reindex(id int) *Series {
	c := *s
	c.id = id
	return &c
}

// ID returns the identity id.
func (s *Series) ID() int { return s.id }

// Name returns the instrument name.
func (s *Series) Name() string { return s.name }

// Source returns the path the series was read from, if any.
func (s *Series) Source() string { return s.source }

// Format returns the reader name that produced the series.
func (s *Series) Format() string { return s.format }

// DatetimeFormat returns the timestamp format used while reading.
func (s *Series) DatetimeFormat() string { return s.datetimeFormat }

// Rows returns the number of rows.
func (s *Series) Rows() int { return s.rows }

// Cols returns the number of data columns.
func (s *Series) Cols() int { return s.cols }

// Timestamps returns a copy of the timestamps.
func (s *Series) Timestamps() []int64 { return slices.Clone(s.timestamps) }

// Values returns a copy of the row-major value buffer.
func (s *Series) Values() []float64 { return slices.Clone(s.values) }

// Columns returns a copy of the column name to index mapping.
func (s *Series) Columns() map[string]int { return maps.Clone(s.columns) }

// Header returns the column names ordered by index.
func (s *Series) Header() []string {
	h := make([]string, s.cols)
	for name, i := range s.columns {
		h[i] = name
	}
	return h
}

// Timestamp returns the timestamp of row.
func (s *Series) Timestamp(row int) int64 {
	return s.timestamps[row]
}

// Get returns the value at row, col. It panics on out-of-range indices,
// like slice indexing.
func (s *Series) Get(row, col int) float64 {
	if col < 0 || col >= s.cols {
		panic(fmt.Sprintf("series %s: column %d out of range [0,%d)", s.name, col, s.cols))
	}
	return s.values[row*s.cols+col]
}

// Row returns a copy of one row's values.
func (s *Series) Row(row int) []float64 {
	return slices.Clone(s.values[row*s.cols : (row+1)*s.cols])
}

// Unsafe exposes the internal buffers without copying. Callers must not
// modify the returned slices.
func (s *Series) Unsafe() (timestamps []int64, values []float64) {
	return s.timestamps, s.values
}
