package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xtxerr/atlas/internal/errors"
)

func (l *Loader) readCSV(name, path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewInstrument(name, path, errors.NewIO(path, err))
	}
	defer f.Close()

	r := csv.NewReader(f)
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		r.Comma = '\t'
	}
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("missing header row: %w", errors.ErrParse))
	}
	if err != nil {
		return nil, csvError(name, path, 0, err)
	}

	t, err := l.newTable(name, path, header)
	if err != nil {
		return nil, err
	}

	for row := 1; ; row++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(name, path, row, err)
		}
		if err := t.addTextRow(row, record); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// csvError classifies an encoding/csv failure: malformed text is a parse
// error, anything else came from the file system.
func csvError(name, path string, row int, err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return errors.NewCell(name, path, row, "", fmt.Errorf("%v: %w", perr, errors.ErrParse))
	}
	return errors.NewInstrument(name, path, errors.NewIO(path, err))
}
