package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xtxerr/atlas/internal/calendar"
	"github.com/xtxerr/atlas/internal/errors"
	"github.com/xtxerr/atlas/internal/series"
)

const utf8BOM = "\ufeff"

// table accumulates one instrument's rows while a reader walks its file.
type table struct {
	name   string
	path   string
	parser *calendar.Parser

	tsColumn string
	header   []string

	timestamps []int64
	values     []float64
}

func (l *Loader) newTable(name, path string, header []string) (*table, error) {
	if len(header) == 0 {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("missing header row: %w", errors.ErrParse))
	}

	cleaned := make([]string, len(header))
	for i, h := range header {
		cleaned[i] = strings.TrimSpace(h)
	}
	cleaned[0] = strings.TrimPrefix(cleaned[0], utf8BOM)

	return &table{
		name:     name,
		path:     path,
		parser:   l.parser,
		tsColumn: cleaned[0],
		header:   cleaned[1:],
	}, nil
}

func (t *table) width() int {
	return len(t.header) + 1
}

// addTextRow parses a row of text cells; row is the 1-based data row.
func (t *table) addTextRow(row int, cells []string) error {
	if len(cells) != t.width() {
		return errors.NewCell(t.name, t.path, row, "",
			fmt.Errorf("expected %d cells, got %d: %w", t.width(), len(cells), errors.ErrParse))
	}

	if err := t.addTimestampText(row, cells[0]); err != nil {
		return err
	}
	for col, cell := range cells[1:] {
		if err := t.addValueText(row, col, cell); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) addTimestampText(row int, cell string) error {
	ts, err := t.parser.Parse(cell)
	if err != nil {
		return errors.NewCell(t.name, t.path, row, t.tsColumn, err)
	}
	t.timestamps = append(t.timestamps, ts)
	return nil
}

func (t *table) addTimestamp(ts int64) {
	t.timestamps = append(t.timestamps, ts)
}

// addValueText parses a numeric cell; col indexes the data columns.
func (t *table) addValueText(row, col int, cell string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return t.cellError(row, col, fmt.Errorf("value %q is not numeric: %w", cell, errors.ErrParse))
	}
	t.values = append(t.values, v)
	return nil
}

func (t *table) addValue(v float64) {
	t.values = append(t.values, v)
}

func (t *table) cellError(row, col int, err error) error {
	return errors.NewCell(t.name, t.path, row, t.header[col], err)
}

func (t *table) build(id int, meta series.Meta) (*series.Series, error) {
	if len(t.timestamps) == 0 {
		return nil, errors.NewInstrument(t.name, t.path, fmt.Errorf("no data rows: %w", errors.ErrParse))
	}
	return series.FromTable(id, t.name, t.header, t.timestamps, t.values, meta)
}
