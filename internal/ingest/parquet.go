package ingest

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/atlas/internal/errors"
)

// rowBatch is the number of rows read from a row group per call.
const rowBatch = 1024

func (l *Loader) readParquet(name, path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewInstrument(name, path, errors.NewIO(path, err))
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, errors.NewInstrument(name, path, errors.NewIO(path, err))
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("open parquet: %v: %w", err, errors.ErrParse))
	}

	fields := pf.Schema().Fields()
	header := make([]string, len(fields))
	for i, field := range fields {
		if !field.Leaf() {
			return nil, errors.NewCell(name, path, 0, field.Name(),
				fmt.Errorf("nested column: %w", errors.ErrParse))
		}
		header[i] = field.Name()
	}

	t, err := l.newTable(name, path, header)
	if err != nil {
		return nil, err
	}

	toSeconds := epochSeconds(fields[0])

	row := 0
	buf := make([]parquet.Row, rowBatch)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(t, rg, buf, toSeconds, &row); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// epochSeconds returns the conversion from the raw integer cells of the
// timestamp column to epoch seconds. TIMESTAMP columns are scaled by their
// unit and DATE columns count days; plain integers are already seconds.
func epochSeconds(field parquet.Field) func(int64) int64 {
	lt := field.Type().LogicalType()
	switch {
	case lt == nil:
	case lt.Timestamp != nil:
		unit := lt.Timestamp.Unit
		switch {
		case unit.Millis != nil:
			return func(v int64) int64 { return time.UnixMilli(v).Unix() }
		case unit.Micros != nil:
			return func(v int64) int64 { return time.UnixMicro(v).Unix() }
		case unit.Nanos != nil:
			return func(v int64) int64 { return time.Unix(0, v).Unix() }
		}
	case lt.Date != nil:
		return func(v int64) int64 { return v * 86400 }
	}
	return func(v int64) int64 { return v }
}

func readRowGroup(t *table, rg parquet.RowGroup, buf []parquet.Row, toSeconds func(int64) int64, row *int) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		n, err := rows.ReadRows(buf)
		for _, r := range buf[:n] {
			*row++
			if err := addParquetRow(t, *row, r, toSeconds); err != nil {
				return err
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewCell(t.name, t.path, *row+1, "", fmt.Errorf("read rows: %v: %w", err, errors.ErrParse))
		}
	}
}

func addParquetRow(t *table, row int, r parquet.Row, toSeconds func(int64) int64) error {
	cells := make([]parquet.Value, t.width())
	seen := make([]bool, t.width())
	for _, v := range r {
		c := v.Column()
		if c < 0 || c >= len(cells) {
			continue
		}
		cells[c] = v
		seen[c] = true
	}

	ts := cells[0]
	switch {
	case !seen[0] || ts.IsNull():
		return errors.NewCell(t.name, t.path, row, t.tsColumn, fmt.Errorf("missing timestamp: %w", errors.ErrParse))
	case ts.Kind() == parquet.Int64:
		t.addTimestamp(toSeconds(ts.Int64()))
	case ts.Kind() == parquet.Int32:
		t.addTimestamp(toSeconds(int64(ts.Int32())))
	case ts.Kind() == parquet.ByteArray:
		if err := t.addTimestampText(row, string(ts.ByteArray())); err != nil {
			return err
		}
	default:
		return errors.NewCell(t.name, t.path, row, t.tsColumn,
			fmt.Errorf("unsupported timestamp type %s: %w", ts.Kind(), errors.ErrParse))
	}

	for col := 1; col < len(cells); col++ {
		v, ok := parquetFloat(cells[col], seen[col])
		if !ok {
			return t.cellError(row, col-1, fmt.Errorf("value %v is not numeric: %w", cells[col], errors.ErrParse))
		}
		t.addValue(v)
	}
	return nil
}

func parquetFloat(v parquet.Value, seen bool) (float64, bool) {
	if !seen || v.IsNull() {
		return math.NaN(), false
	}
	switch v.Kind() {
	case parquet.Double:
		return v.Double(), true
	case parquet.Float:
		return float64(v.Float()), true
	case parquet.Int64:
		return float64(v.Int64()), true
	case parquet.Int32:
		return float64(v.Int32()), true
	default:
		return math.NaN(), false
	}
}
