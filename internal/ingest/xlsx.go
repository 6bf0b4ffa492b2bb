package ingest

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/xtxerr/atlas/internal/errors"
)

func (l *Loader) readXLSX(name, path string) (*table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewInstrument(name, path, errors.NewIO(path, err))
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("open workbook: %v: %w", err, errors.ErrParse))
	}
	defer f.Close()

	sheet := l.opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.NewInstrument(name, path, fmt.Errorf("workbook has no sheets: %w", errors.ErrParse))
		}
		sheet = sheets[0]
	} else if !slices.Contains(f.GetSheetList(), sheet) {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("sheet %q not found: %w", sheet, errors.ErrParse))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("read sheet %q: %v: %w", sheet, err, errors.ErrParse))
	}

	// GetRows drops trailing empty cells and keeps blank rows in the middle.
	first := slices.IndexFunc(rows, func(r []string) bool { return !blankRow(r) })
	if first < 0 {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("missing header row: %w", errors.ErrParse))
	}

	t, err := l.newTable(name, path, rows[first])
	if err != nil {
		return nil, err
	}

	row := 0
	for _, cells := range rows[first+1:] {
		if blankRow(cells) {
			continue
		}
		row++
		for len(cells) < t.width() {
			cells = append(cells, "")
		}
		if err := t.addTextRow(row, cells); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
