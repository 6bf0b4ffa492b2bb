// Package collection assembles per-instrument series into one aligned
// matrix over a unified timeline.
//
// Construction runs three phases, once, failing fast:
//
//  1. discovery: every file of a source directory becomes an instrument
//  2. validation: shared schema, strictly increasing timestamps, and a
//     unified timeline of which every instrument is a contiguous run
//  3. materialization: the aligned value matrix and the returns matrix
//
// A built Collection is immutable and safe for concurrent readers.
package collection

import (
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/xtxerr/atlas/internal/errors"
	"github.com/xtxerr/atlas/internal/ingest"
	"github.com/xtxerr/atlas/internal/logging"
	"github.com/xtxerr/atlas/internal/series"
	"github.com/xtxerr/atlas/internal/timeline"
)

// Span is the inclusive range of timeline steps an instrument occupies.
type Span struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// Len returns the number of steps in the span.
func (s Span) Len() int { return s.Last - s.First + 1 }

// Contains reports whether step lies inside the span.
func (s Span) Contains(step int) bool { return step >= s.First && step <= s.Last }

// Collection is a set of instruments aligned on a shared timeline.
type Collection struct {
	name           string
	source         string
	datetimeFormat string
	buildID        string
	accuracy       float64

	instruments []*series.Series // nil once released
	names       []string
	nameToID    map[string]int

	header     []string
	columns    map[string]int
	closeIndex int

	timeline []int64
	spans    []Span
	aligned  *mat.Dense // (N, cols*steps)
	returns  *mat.Dense // (N, steps)
}

// Build discovers every instrument file in the source directory and
// assembles them into a Collection. Instrument names are the file names up
// to the first dot; ids follow the sorted names.
func Build(name, source, datetimeFormat string, opts ...Option) (*Collection, error) {
	o := newOptions(opts)
	log := o.logger().With(zap.String("collection", name), zap.String("source", source))
	start := time.Now()

	instruments, err := discover(source, datetimeFormat, o, log)
	if err != nil {
		log.Warn("build failed", zap.String("kind", errors.Kind(err)), zap.Error(err))
		return nil, err
	}

	c, err := assemble(name, source, datetimeFormat, instruments, o, log)
	if err != nil {
		log.Warn("build failed", zap.String("kind", errors.Kind(err)), zap.Error(err))
		return nil, err
	}

	log.Info("collection built",
		zap.String("build_id", c.buildID),
		zap.Int("instruments", c.NumInstruments()),
		zap.Int("steps", c.Len()),
		zap.Int("columns", len(c.header)),
		zap.Duration("duration", time.Since(start)))

	return c, nil
}

// FromSeries assembles in-memory series into a Collection. Ids follow the
// order of instruments; series whose id differs from their position are
// reindexed.
func FromSeries(name string, instruments []*series.Series, opts ...Option) (*Collection, error) {
	o := newOptions(opts)
	log := o.logger().With(zap.String("collection", name))

	if len(instruments) == 0 {
		return nil, errors.NewConfiguration("collection %s: no instruments", name)
	}

	seen := make(map[string]struct{}, len(instruments))
	list := make([]*series.Series, len(instruments))
	for id, s := range instruments {
		if s == nil {
			return nil, errors.NewConfiguration("collection %s: instrument %d is nil", name, id)
		}
		if _, dup := seen[s.Name()]; dup {
			return nil, errors.NewConfiguration("collection %s: duplicate instrument %q", name, s.Name())
		}
		seen[s.Name()] = struct{}{}
		if s.Rows() == 0 {
			return nil, errors.NewInstrument(s.Name(), s.Source(), fmt.Errorf("no data rows: %w", errors.ErrParse))
		}
		if s.ID() != id {
			s = s.Reindex(id)
		}
		list[id] = s
	}

	return assemble(name, "", "", list, o, log)
}

func (o options) logger() *zap.Logger {
	if o.log != nil {
		return o.log
	}
	return logging.Component("collection")
}

// discover is phase 1: enumerate the directory and ingest each file.
func discover(source, datetimeFormat string, o options, log *zap.Logger) ([]*series.Series, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, errors.NewConfiguration("source %s: %v", source, err)
	}
	if !info.IsDir() {
		return nil, errors.NewConfiguration("source %s: not a directory", source)
	}

	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, errors.NewIO(source, err)
	}

	files := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		inst := ingest.InstrumentName(e.Name())
		if prev, dup := files[inst]; dup {
			return nil, errors.NewConfiguration("source %s: files %s and %s both name instrument %q",
				source, filepath.Base(prev), e.Name(), inst)
		}
		files[inst] = filepath.Join(source, e.Name())
	}
	if len(files) == 0 {
		return nil, errors.NewConfiguration("source %s: no instrument files", source)
	}

	names := make([]string, 0, len(files))
	for inst := range files {
		names = append(names, inst)
	}
	slices.Sort(names)

	loader, err := ingest.NewLoader(ingest.Options{
		DatetimeFormat: datetimeFormat,
		Sheet:          o.sheet,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	defer loader.Close()

	instruments := make([]*series.Series, len(names))
	for id, inst := range names {
		s, err := loader.Load(id, inst, files[inst])
		if err != nil {
			return nil, err
		}
		instruments[id] = s
	}

	log.Debug("discovery complete", zap.Int("instruments", len(instruments)))
	return instruments, nil
}

// assemble runs phases 2 and 3.
func assemble(name, source, datetimeFormat string, instruments []*series.Series, o options, log *zap.Logger) (*Collection, error) {
	c := &Collection{
		name:           name,
		source:         source,
		datetimeFormat: datetimeFormat,
		buildID:        uuid.NewString(),
		accuracy:       o.percentileAccuracy,
		instruments:    instruments,
		names:          make([]string, len(instruments)),
		nameToID:       make(map[string]int, len(instruments)),
	}
	for id, s := range instruments {
		c.names[id] = s.Name()
		c.nameToID[s.Name()] = id
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	log.Debug("validation complete",
		zap.Int("steps", len(c.timeline)),
		zap.String("close_column", c.header[c.closeIndex]))

	c.materialize()
	log.Debug("materialization complete")

	if !o.retainSeries {
		c.instruments = nil
	}
	return c, nil
}

// validate is phase 2.
func (c *Collection) validate() error {
	for id, s := range c.instruments {
		if id == 0 {
			c.header = s.Header()
			c.columns = s.Columns()
			c.closeIndex = closeColumn(c.header)
			if c.closeIndex < 0 {
				return errors.NewInstrument(s.Name(), s.Source(), errors.ErrMissingClose)
			}
		} else if err := c.checkSchema(s); err != nil {
			return err
		}

		ts, _ := s.Unsafe()
		if i := timeline.FirstDisorder(ts); i >= 0 {
			return errors.NewCell(s.Name(), s.Source(), i+1, "",
				fmt.Errorf("timestamp %d follows %d: %w", ts[i], ts[i-1], errors.ErrUnordered))
		}
		c.timeline = timeline.SortedUnion(c.timeline, ts)
	}

	c.spans = make([]Span, len(c.instruments))
	for id, s := range c.instruments {
		ts, _ := s.Unsafe()
		off := timeline.ContiguousOffset(c.timeline, ts)
		if off < 0 {
			return errors.NewInstrument(s.Name(), s.Source(), errors.ErrNotContiguous)
		}
		c.spans[id] = Span{First: off, Last: off + len(ts) - 1}
	}
	return nil
}

// checkSchema requires s to carry exactly the canonical columns. The count
// is compared first so that a longer header never passes on a prefix match.
func (c *Collection) checkSchema(s *series.Series) error {
	if s.Cols() != len(c.header) {
		return errors.NewInstrument(s.Name(), s.Source(),
			fmt.Errorf("%d columns, want %d: %w", s.Cols(), len(c.header), errors.ErrSchemaMismatch))
	}
	for i, col := range s.Header() {
		if col != c.header[i] {
			return errors.NewCell(s.Name(), s.Source(), 0, col,
				fmt.Errorf("column %d is %q, want %q: %w", i, col, c.header[i], errors.ErrSchemaMismatch))
		}
	}
	return nil
}

// closeColumn returns the lowest index whose name is "close" ignoring
// case, or -1.
func closeColumn(header []string) int {
	return slices.IndexFunc(header, func(h string) bool {
		return strings.EqualFold(h, "close")
	})
}

// materialize is phase 3. Presence at a step is decided by the
// instrument's cursor, never by the timestamp value itself.
func (c *Collection) materialize() {
	n, steps, cols := len(c.instruments), len(c.timeline), len(c.header)
	c.aligned = mat.NewDense(n, cols*steps, nil)
	c.returns = mat.NewDense(n, steps, nil)

	for id, s := range c.instruments {
		ts, values := s.Unsafe()
		row := c.aligned.RawRowView(id)
		ret := c.returns.RawRowView(id)

		cursor := 0
		var prevClose float64
		for step, instant := range c.timeline {
			block := row[step*cols : (step+1)*cols]

			if cursor < len(ts) && ts[cursor] == instant {
				copy(block, values[cursor*cols:(cursor+1)*cols])
				px := block[c.closeIndex]
				if cursor > 0 {
					ret[step] = stepReturn(prevClose, px)
				}
				prevClose = px
				cursor++
				continue
			}

			for i := range block {
				block[i] = math.NaN()
			}
		}
	}
}

// stepReturn is the simple return from prev to cur, or 0 where that is
// undefined.
func stepReturn(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	r := (cur - prev) / prev
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// =============================================================================
// Accessors
// =============================================================================

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Source returns the source directory, empty for FromSeries collections.
func (c *Collection) Source() string { return c.source }

// DatetimeFormat returns the timestamp format instruments were read with.
func (c *Collection) DatetimeFormat() string { return c.datetimeFormat }

// BuildID identifies this particular construction.
func (c *Collection) BuildID() string { return c.buildID }

// Timeline returns a copy of the unified timeline.
func (c *Collection) Timeline() []int64 { return slices.Clone(c.timeline) }

// Len returns the number of timeline steps.
func (c *Collection) Len() int { return len(c.timeline) }

// NumInstruments returns the number of instruments.
func (c *Collection) NumInstruments() int { return len(c.names) }

// NumColumns returns the number of data columns per instrument.
func (c *Collection) NumColumns() int { return len(c.header) }

// Columns returns a copy of the canonical column mapping.
func (c *Collection) Columns() map[string]int { return maps.Clone(c.columns) }

// Header returns the column names ordered by index.
func (c *Collection) Header() []string { return slices.Clone(c.header) }

// ColumnIndex returns the index of a column by exact name.
func (c *Collection) ColumnIndex(name string) (int, error) {
	i, ok := c.columns[name]
	if !ok {
		return 0, errors.NewNotFound("column", name)
	}
	return i, nil
}

// CloseIndex returns the index of the close column.
func (c *Collection) CloseIndex() int { return c.closeIndex }

// InstrumentID returns the id of a named instrument.
func (c *Collection) InstrumentID(name string) (int, error) {
	id, ok := c.nameToID[name]
	if !ok {
		return 0, errors.NewNotFound("instrument", name)
	}
	return id, nil
}

// InstrumentNames returns the instrument names in id order.
func (c *Collection) InstrumentNames() []string { return slices.Clone(c.names) }

// Instrument returns the raw series of a named instrument. It fails with
// ErrNotFound when the name is unknown or raw series were not retained.
func (c *Collection) Instrument(name string) (*series.Series, error) {
	id, err := c.InstrumentID(name)
	if err != nil {
		return nil, err
	}
	if c.instruments == nil {
		return nil, errors.NewNotFound("series", name)
	}
	return c.instruments[id], nil
}

// Span returns the timeline steps an instrument occupies.
func (c *Collection) Span(id int) (Span, error) {
	if err := c.checkInstrument(id); err != nil {
		return Span{}, err
	}
	return c.spans[id], nil
}

// Value returns one aligned cell. It is NaN where the instrument has no
// observation at step.
func (c *Collection) Value(id, step, col int) (float64, error) {
	if err := c.checkInstrument(id); err != nil {
		return 0, err
	}
	if err := c.checkStep(step); err != nil {
		return 0, err
	}
	if col < 0 || col >= len(c.header) {
		return 0, errors.NewOutOfRange("column", col, len(c.header))
	}
	return c.aligned.At(id, step*len(c.header)+col), nil
}

// ValueByName is Value addressed by instrument and column names.
func (c *Collection) ValueByName(instrument string, step int, column string) (float64, error) {
	id, err := c.InstrumentID(instrument)
	if err != nil {
		return 0, err
	}
	col, err := c.ColumnIndex(column)
	if err != nil {
		return 0, err
	}
	return c.Value(id, step, col)
}

// Return returns the simple return of an instrument at step.
func (c *Collection) Return(id, step int) (float64, error) {
	if err := c.checkInstrument(id); err != nil {
		return 0, err
	}
	if err := c.checkStep(step); err != nil {
		return 0, err
	}
	return c.returns.At(id, step), nil
}

// Aligned returns the aligned matrix, shape (instruments, columns*steps).
// Element (id, step*columns+col) holds column col at step. Callers must
// not modify it.
func (c *Collection) Aligned() mat.Matrix { return c.aligned }

// Returns returns the returns matrix, shape (instruments, steps). Callers
// must not modify it.
func (c *Collection) Returns() mat.Matrix { return c.returns }

// Closes returns a copy of an instrument's close column across the
// timeline.
func (c *Collection) Closes(id int) ([]float64, error) {
	if err := c.checkInstrument(id); err != nil {
		return nil, err
	}
	cols := len(c.header)
	out := make([]float64, len(c.timeline))
	for step := range out {
		out[step] = c.aligned.At(id, step*cols+c.closeIndex)
	}
	return out, nil
}

func (c *Collection) checkInstrument(id int) error {
	if id < 0 || id >= len(c.names) {
		return errors.NewOutOfRange("instrument", id, len(c.names))
	}
	return nil
}

func (c *Collection) checkStep(step int) error {
	if step < 0 || step >= len(c.timeline) {
		return errors.NewOutOfRange("step", step, len(c.timeline))
	}
	return nil
}
