package ingest

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/atlas/internal/errors"
)

// db returns the loader's in-memory DuckDB handle, opening it on first use.
func (l *Loader) db() (*sql.DB, error) {
	l.duckMu.Lock()
	defer l.duckMu.Unlock()

	if l.duck != nil {
		return l.duck, nil
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	l.duck = db
	return db, nil
}

func duckQuery(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".json.gz"),
		strings.HasSuffix(lower, ".json"),
		strings.HasSuffix(lower, ".ndjson"),
		strings.HasSuffix(lower, ".jsonl"):
		return `SELECT * FROM read_json_auto(?)`
	default:
		return `SELECT * FROM read_csv(?, header = true, all_varchar = true)`
	}
}

func (l *Loader) readDuckDB(name, path string) (*table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewInstrument(name, path, errors.NewIO(path, err))
	}

	db, err := l.db()
	if err != nil {
		return nil, errors.NewInstrument(name, path, errors.NewIO(path, err))
	}

	rows, err := db.Query(duckQuery(path), path)
	if err != nil {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("query: %v: %w", err, errors.ErrParse))
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("columns: %v: %w", err, errors.ErrParse))
	}

	t, err := l.newTable(name, path, header)
	if err != nil {
		return nil, err
	}

	cells := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range cells {
		ptrs[i] = &cells[i]
	}

	row := 0
	for rows.Next() {
		row++
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.NewCell(name, path, row, "", fmt.Errorf("scan: %v: %w", err, errors.ErrParse))
		}
		if err := addDuckRow(t, row, cells); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInstrument(name, path, fmt.Errorf("rows: %v: %w", err, errors.ErrParse))
	}

	return t, nil
}

func addDuckRow(t *table, row int, cells []any) error {
	switch ts := cells[0].(type) {
	case string:
		if err := t.addTimestampText(row, ts); err != nil {
			return err
		}
	case time.Time:
		t.addTimestamp(ts.Unix())
	case int64:
		t.addTimestamp(ts)
	case int32:
		t.addTimestamp(int64(ts))
	default:
		return errors.NewCell(t.name, t.path, row, t.tsColumn,
			fmt.Errorf("unsupported timestamp value %v (%T): %w", ts, ts, errors.ErrParse))
	}

	for col, cell := range cells[1:] {
		switch v := cell.(type) {
		case float64:
			t.addValue(v)
		case float32:
			t.addValue(float64(v))
		case int64:
			t.addValue(float64(v))
		case int32:
			t.addValue(float64(v))
		case int16:
			t.addValue(float64(v))
		case int8:
			t.addValue(float64(v))
		case uint64:
			t.addValue(float64(v))
		case uint32:
			t.addValue(float64(v))
		case string:
			if err := t.addValueText(row, col, v); err != nil {
				return err
			}
		default:
			return t.cellError(row, col, fmt.Errorf("value %v (%T) is not numeric: %w", v, v, errors.ErrParse))
		}
	}
	return nil
}
