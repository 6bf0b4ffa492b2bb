package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/xtxerr/atlas/internal/errors"
)

const jan1 = int64(1704067200) // 2024-01-01T00:00:00Z

func newLoader(t *testing.T, opts Options) *Loader {
	t.Helper()
	if opts.DatetimeFormat == "" {
		opts.DatetimeFormat = "%Y-%m-%d"
	}
	l, err := NewLoader(opts)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFormatOf(t *testing.T) {
	tests := map[string]Format{
		"BTC.csv":          FormatCSV,
		"BTC.tsv":          FormatCSV,
		"BTC":              FormatCSV,
		"BTC.2024.CSV":     FormatCSV,
		"BTC.xlsx":         FormatXLSX,
		"BTC.parquet":      FormatParquet,
		"BTC.json":         FormatDuckDB,
		"BTC.ndjson":       FormatDuckDB,
		"BTC.csv.gz":       FormatDuckDB,
		"/a/b/ETH.PARQUET": FormatParquet,
	}
	for name, want := range tests {
		assert.Equal(t, want, FormatOf(name), name)
	}
}

func TestInstrumentName(t *testing.T) {
	assert.Equal(t, "BTC", InstrumentName("BTC.csv"))
	assert.Equal(t, "BTC", InstrumentName("/data/BTC.2024.csv"))
	assert.Equal(t, "BTC", InstrumentName("BTC"))
}

func TestNewLoaderRejectsBadFormat(t *testing.T) {
	_, err := NewLoader(Options{DatetimeFormat: "%Q"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "AAPL.csv", "Date,Open,Close\n2024-01-01,100,101\n2024-01-02, 101.5 ,103\n")

	s, err := newLoader(t, Options{}).Load(2, "AAPL", path)
	require.NoError(t, err)

	assert.Equal(t, 2, s.ID())
	assert.Equal(t, "AAPL", s.Name())
	assert.Equal(t, "csv", s.Format())
	assert.Equal(t, path, s.Source())
	assert.Equal(t, []int64{jan1, jan1 + 86400}, s.Timestamps())
	assert.Equal(t, []float64{100, 101, 101.5, 103}, s.Values())
	assert.Equal(t, map[string]int{"Open": 0, "Close": 1}, s.Columns())
}

func TestLoadCSVWithBOMAndTabs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "X.tsv", "\ufeffDate\tclose\n2024-01-01\t5\n")

	s, err := newLoader(t, Options{}).Load(0, "X", path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"close": 0}, s.Columns())
	assert.Equal(t, []float64{5}, s.Values())
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		isKind  func(error) bool
		row     int
		column  string
	}{
		{"empty file", "", errors.IsParse, 0, ""},
		{"header only", "Date,close\n", errors.IsParse, 0, ""},
		{"bad timestamp", "Date,close\n2024-01-01,1\n01/02/2024,2\n", errors.IsParse, 2, "Date"},
		{"non-numeric", "Date,close\n2024-01-01,abc\n", errors.IsParse, 1, "close"},
		{"blank cell", "Date,open,close\n2024-01-01,,1\n", errors.IsParse, 1, "open"},
		{"short row", "Date,open,close\n2024-01-01,1\n", errors.IsParse, 1, ""},
		{"duplicate column", "Date,close,close\n2024-01-01,1,2\n", errors.IsConsistency, 0, "close"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "BAD.csv", tt.content)

			_, err := newLoader(t, Options{}).Load(0, "BAD", path)
			require.Error(t, err)
			assert.True(t, tt.isKind(err), "unexpected kind: %v", err)

			var ie *errors.InstrumentError
			require.True(t, errors.As(err, &ie), "expected InstrumentError, got %T", err)
			assert.Equal(t, "BAD", ie.Instrument)
			assert.Equal(t, tt.row, ie.Row)
			assert.Equal(t, tt.column, ie.Column)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	l := newLoader(t, Options{})
	for _, name := range []string{"nope.csv", "nope.xlsx", "nope.parquet", "nope.json"} {
		_, err := l.Load(0, "nope", filepath.Join(t.TempDir(), name))
		require.Error(t, err, name)
		assert.True(t, errors.IsIO(err), "%s: %v", name, err)
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ETH.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Date", "open", "close"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"2024-01-01", 10.5, 11}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]interface{}{"2024-01-03", 11, 12.25}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	s, err := newLoader(t, Options{}).Load(0, "ETH", path)
	require.NoError(t, err)

	assert.Equal(t, "xlsx", s.Format())
	assert.Equal(t, []int64{jan1, jan1 + 2*86400}, s.Timestamps())
	assert.Equal(t, []float64{10.5, 11, 11, 12.25}, s.Values())
	assert.Equal(t, []string{"open", "close"}, s.Header())
}

func TestLoadXLSXMissingSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ETH.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Date", "close"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := newLoader(t, Options{Sheet: "Prices"}).Load(0, "ETH", path)
	require.Error(t, err)
	assert.True(t, errors.IsParse(err))
}

type bar struct {
	Date   string  `parquet:"Date"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
}

type epochBar struct {
	Epoch int64   `parquet:"Epoch"`
	Close float64 `parquet:"close"`
}

func TestLoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SOL.parquet")

	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[bar](f)
	_, err = w.Write([]bar{
		{Date: "2024-01-01", Close: 20.5, Volume: 1000},
		{Date: "2024-01-02", Close: 21, Volume: 1500},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	s, err := newLoader(t, Options{}).Load(1, "SOL", path)
	require.NoError(t, err)

	assert.Equal(t, "parquet", s.Format())
	assert.Equal(t, []int64{jan1, jan1 + 86400}, s.Timestamps())
	assert.Equal(t, map[string]int{"close": 0, "volume": 1}, s.Columns())
	assert.Equal(t, []float64{20.5, 1000, 21, 1500}, s.Values())
}

func TestLoadParquetEpochTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DOT.parquet")

	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[epochBar](f)
	_, err = w.Write([]epochBar{{Epoch: 0, Close: 1}, {Epoch: 60, Close: 2}})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	s, err := newLoader(t, Options{}).Load(0, "DOT", path)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 60}, s.Timestamps())
	assert.Equal(t, []float64{1, 2}, s.Values())
}

type millisBar struct {
	Date  time.Time `parquet:"Date,timestamp(millisecond)"`
	Close float64   `parquet:"close"`
}

type nanosBar struct {
	Date  time.Time `parquet:"Date"`
	Close float64   `parquet:"close"`
}

type dayBar struct {
	Date  int32   `parquet:"Date,date"`
	Close float64 `parquet:"close"`
}

func writeParquet[T any](t *testing.T, name string, rows []T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[T](f)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoadParquetTimestampUnits(t *testing.T) {
	day1 := time.Unix(jan1, 0).UTC()
	day2 := day1.Add(24 * time.Hour)
	want := []int64{jan1, jan1 + 86400}

	tests := []struct {
		name string
		path string
	}{
		{"millis", writeParquet(t, "MS.parquet", []millisBar{{day1, 1}, {day2, 2}})},
		{"nanos", writeParquet(t, "NS.parquet", []nanosBar{{day1, 1}, {day2.Add(500 * time.Millisecond), 2}})},
		{"date", writeParquet(t, "D.parquet", []dayBar{{int32(jan1 / 86400), 1}, {int32(jan1/86400) + 1, 2}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newLoader(t, Options{}).Load(0, "X", tt.path)
			require.NoError(t, err)
			assert.Equal(t, want, s.Timestamps())
			assert.Equal(t, []float64{1, 2}, s.Values())
		})
	}
}

func TestLoadParquetRejectsGarbage(t *testing.T) {
	path := writeFile(t, t.TempDir(), "BAD.parquet", "not parquet at all")
	_, err := newLoader(t, Options{}).Load(0, "BAD", path)
	require.Error(t, err)
	assert.True(t, errors.IsParse(err))
}

func TestLoadJSONWithDuckDB(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ADA.ndjson",
		`{"date":"2024-01-01","open":0.5,"close":0.55}`+"\n"+
			`{"date":"2024-01-02","open":0.55,"close":0.6}`+"\n")

	l := newLoader(t, Options{})
	s, err := l.Load(0, "ADA", path)
	require.NoError(t, err)

	assert.Equal(t, "duckdb", s.Format())
	assert.Equal(t, []int64{jan1, jan1 + 86400}, s.Timestamps())
	assert.Equal(t, []string{"open", "close"}, s.Header())
	assert.InDeltaSlice(t, []float64{0.5, 0.55, 0.55, 0.6}, s.Values(), 1e-12)

	// The DuckDB handle is reused across files and released on Close.
	_, err = l.Load(1, "ADA", path)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}
