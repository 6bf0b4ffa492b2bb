package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/atlas/internal/collection"
	"github.com/xtxerr/atlas/internal/errors"
	"github.com/xtxerr/atlas/internal/registry"
	"github.com/xtxerr/atlas/internal/series"
	atlastest "github.com/xtxerr/atlas/internal/testing"
)

func newRegistry(t *testing.T, opts ...registry.Option) *registry.Registry {
	t.Helper()
	dir := atlastest.InstrumentDir(t, map[string]string{
		"A.csv": atlastest.InstrumentCSV(
			atlastest.Bar{Date: "2024-01-01", Close: 100},
			atlastest.Bar{Date: "2024-01-02", Close: 110},
			atlastest.Bar{Date: "2024-01-03", Close: 99},
		),
		"B.csv": atlastest.InstrumentCSV(
			atlastest.Bar{Date: "2024-01-02", Close: 50},
			atlastest.Bar{Date: "2024-01-03", Close: 55},
		),
	})

	r := registry.New(opts...)
	_, err := r.Add(registry.Spec{Name: "spot", Source: dir, DatetimeFormat: "%Y-%m-%d"})
	require.NoError(t, err)
	return r
}

func run(t *testing.T, s *Shell, line string) string {
	t.Helper()
	out, err := s.Execute(line)
	require.NoError(t, err, line)
	return out
}

func TestSingleCollectionIsSelected(t *testing.T) {
	s := New(newRegistry(t))
	assert.Equal(t, "spot", s.Current())
}

func TestNoCollectionSelected(t *testing.T) {
	r := newRegistry(t)
	mem, err := series.FromTable(0, "M", []string{"close"}, []int64{1}, []float64{1}, series.Meta{})
	require.NoError(t, err)
	c, err := collection.FromSeries("mem", []*series.Series{mem})
	require.NoError(t, err)
	r.Register(c)

	s := New(r)
	assert.Empty(t, s.Current())
	_, err = s.Execute("info")
	assert.ErrorContains(t, err, "no collection selected")
	assert.Empty(t, s.Complete(document("stats ")))

	run(t, s, "use mem")
	assert.Equal(t, "* mem\n  spot\n", run(t, s, "list"))
}

func TestBlankAndComment(t *testing.T) {
	s := New(newRegistry(t))
	assert.Empty(t, run(t, s, ""))
	assert.Empty(t, run(t, s, "   "))
	assert.Empty(t, run(t, s, "# note"))
}

func TestUnknownCommandAndUsage(t *testing.T) {
	s := New(newRegistry(t))

	_, err := s.Execute("frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	_, err = s.Execute("value A 1")
	assert.ErrorContains(t, err, "usage: value <instrument> <step> <column>")

	_, err = s.Execute("timeline 1 2")
	assert.ErrorContains(t, err, "usage: timeline")
}

func TestExit(t *testing.T) {
	s := New(newRegistry(t))
	for _, line := range []string{"exit", "quit", "EXIT now"} {
		_, err := s.Execute(line)
		assert.ErrorIs(t, err, ErrExit, line)
	}
}

func TestHelp(t *testing.T) {
	out := run(t, New(newRegistry(t)), "help")
	for name, cmd := range commands {
		assert.Contains(t, out, cmd.usage, name)
	}
}

func TestListAndUse(t *testing.T) {
	r := newRegistry(t)
	s := New(r)
	assert.Equal(t, "* spot\n", run(t, s, "list"))

	_, err := s.Execute("use missing")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, "spot", s.Current())

	assert.Equal(t, "using spot\n", run(t, s, "use spot"))

	assert.Equal(t, "no collections\n", run(t, New(registry.New()), "list"))
}

func TestInfo(t *testing.T) {
	out := run(t, New(newRegistry(t)), "info")
	assert.Contains(t, out, "spot")
	assert.Contains(t, out, "close")
	assert.Contains(t, out, "2024-01-01T00:00:00Z")
	assert.Contains(t, out, "2024-01-03T00:00:00Z")
}

func TestSummary(t *testing.T) {
	out := run(t, New(newRegistry(t)), "summary")

	var sum collection.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, "spot", sum.Name)
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, sum.Instruments)
	assert.Equal(t, 3, sum.Steps)
	assert.Equal(t, collection.Span{First: 1, Last: 2}, sum.Spans["B"])
}

func TestInstruments(t *testing.T) {
	out := run(t, New(newRegistry(t)), "instruments")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"id", "name", "first", "last", "steps"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0", "A", "2024-01-01T00:00:00Z", "2024-01-03T00:00:00Z", "3"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1", "B", "2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z", "2"}, strings.Fields(lines[2]))
}

func TestTimeline(t *testing.T) {
	s := New(newRegistry(t))

	out := run(t, s, "timeline")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
	assert.NotContains(t, out, "more")

	out = run(t, s, "timeline 1")
	assert.Contains(t, out, "1704067200")
	assert.Contains(t, out, "... 2 more")

	_, err := s.Execute("timeline 0")
	assert.ErrorContains(t, err, "not a positive count")
	_, err = s.Execute("timeline x")
	assert.ErrorContains(t, err, "not a positive count")
}

func TestValue(t *testing.T) {
	s := New(newRegistry(t))
	assert.Equal(t, "110\n", run(t, s, "value A 1 close"))
	assert.Equal(t, "NaN\n", run(t, s, "value B 0 close"))

	_, err := s.Execute("value A 9 close")
	assert.True(t, errors.IsOutOfRange(err))
	_, err = s.Execute("value Z 0 close")
	assert.True(t, errors.IsNotFound(err))
	_, err = s.Execute("value A one close")
	assert.ErrorContains(t, err, "not an integer")
}

func TestReturn(t *testing.T) {
	s := New(newRegistry(t))
	assert.Equal(t, "0.1\n", run(t, s, "return A 1"))
	assert.Equal(t, "0\n", run(t, s, "return B 0"))
	assert.Equal(t, "0\n", run(t, s, "return B 1"))
	assert.Equal(t, "0.1\n", run(t, s, "return B 2"))
}

func TestStats(t *testing.T) {
	out := run(t, New(newRegistry(t)), "stats A")
	assert.Contains(t, out, "count")
	assert.Equal(t, []string{"count", "2"}, strings.Fields(strings.Split(out, "\n")[0]))
	assert.Contains(t, out, "p99")
}

func TestMetrics(t *testing.T) {
	s := New(newRegistry(t))
	_, err := s.Execute("metrics")
	assert.ErrorContains(t, err, "not enabled")

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "x"}))
	r := newRegistry(t, registry.WithMetrics(registry.NewMetrics(reg)))
	out := run(t, New(r, WithGatherer(reg)), "metrics")
	assert.Contains(t, out, "# TYPE atlas_builds_total counter\n")
	assert.Contains(t, out, "# TYPE atlas_build_duration_seconds histogram\n")
	assert.Contains(t, out, "atlas_collections 1\n")
	assert.NotContains(t, out, "unrelated_total")
	assert.Contains(t, out, `outcome="ok"`)
	assert.Contains(t, out, `collection="spot"`)
}

func TestRun(t *testing.T) {
	s := New(newRegistry(t))
	in := strings.NewReader("list\nbogus\nreturn A 1\nexit\nlist\n")
	var out bytes.Buffer

	err := atlastest.WithTimeout(5*time.Second, func() error {
		return s.Run(context.Background(), in, &out)
	})
	require.NoError(t, err)
	assert.Equal(t, "* spot\nerror: unknown command \"bogus\" (try help)\n0.1\n", out.String())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := New(newRegistry(t)).Run(ctx, strings.NewReader("list\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

func document(text string) prompt.Document {
	b := prompt.NewBuffer()
	b.InsertText(text, false, true)
	return *b.Document()
}

func texts(suggestions []prompt.Suggest) []string {
	out := make([]string, len(suggestions))
	for i, s := range suggestions {
		out[i] = s.Text
	}
	return out
}

func TestComplete(t *testing.T) {
	s := New(newRegistry(t))

	tests := []struct {
		input string
		want  []string
	}{
		{"in", []string{"info", "instruments"}},
		{"use ", []string{"spot"}},
		{"use sp", []string{"spot"}},
		{"stats ", []string{"A", "B"}},
		{"value b", []string{"B"}},
		{"value A 1 ", []string{"close"}},
		{"value A 1 x", []string{}},
		{"value A 1 c", []string{"close"}},
		{"return A ", []string{}},
		{"list ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, texts(s.Complete(document(tt.input))))
		})
	}
}

func TestIsExit(t *testing.T) {
	assert.True(t, isExit("exit"))
	assert.True(t, isExit(" Quit "))
	assert.False(t, isExit("exit now"))
	assert.False(t, isExit("list"))
}

func TestTableColumnsAlign(t *testing.T) {
	out := table([]string{"k", "value"}, [][]string{{"a", "1"}, {"longer", "2"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)

	col := strings.Index(lines[0], "value")
	assert.Equal(t, col, strings.Index(lines[1], "1"))
	assert.Equal(t, col, strings.Index(lines[2], "2"))
	assert.True(t, strings.HasPrefix(lines[1], "a "))
	assert.NotContains(t, out, "|")
	assert.NotContains(t, out, "-")
}
