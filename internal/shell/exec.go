// Package shell implements a read-only command shell over a registry.
package shell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/xtxerr/atlas/config"
	"github.com/xtxerr/atlas/internal/collection"
	"github.com/xtxerr/atlas/internal/errors"
	"github.com/xtxerr/atlas/internal/logging"
	"github.com/xtxerr/atlas/internal/registry"
)

// ErrExit is returned by Execute for the exit command.
var ErrExit = errors.New("exit")

// command describes one shell command.
type command struct {
	usage string
	help  string
	args  func(n int) bool
	run   func(s *Shell, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":        {"help", "list commands", anyArgs, (*Shell).help},
		"list":        {"list", "list collections", exactly(0), (*Shell).list},
		"use":         {"use <collection>", "select a collection", exactly(1), (*Shell).use},
		"info":        {"info", "describe the selected collection", exactly(0), (*Shell).info},
		"summary":     {"summary", "selected collection as JSON", exactly(0), (*Shell).summary},
		"instruments": {"instruments", "list instruments with their spans", exactly(0), (*Shell).instruments},
		"timeline":    {"timeline [n]", "show the first n timeline instants", atMost(1), (*Shell).timeline},
		"value":       {"value <instrument> <step> <column>", "one aligned cell", exactly(3), (*Shell).value},
		"return":      {"return <instrument> <step>", "return at a step", exactly(2), (*Shell).ret},
		"stats":       {"stats <instrument>", "return statistics", exactly(1), (*Shell).stats},
		"metrics":     {"metrics", "registry metrics", exactly(0), (*Shell).metrics},
		"exit":        {"exit", "leave the shell", anyArgs, nil},
	}
}

func anyArgs(int) bool { return true }

func exactly(n int) func(int) bool { return func(got int) bool { return got == n } }

func atMost(n int) func(int) bool { return func(got int) bool { return got <= n } }

// Shell executes commands against a registry. A Shell is not safe for
// concurrent use; the registry it reads is.
type Shell struct {
	reg      *registry.Registry
	gatherer prometheus.Gatherer
	log      *zap.Logger
	current  string
}

// Option configures a Shell.
type Option func(*Shell)

// WithGatherer enables the metrics command.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Shell) { s.gatherer = g }
}

// New creates a shell over reg. If reg holds exactly one collection it is
// selected.
func New(reg *registry.Registry, opts ...Option) *Shell {
	s := &Shell{
		reg: reg,
		log: logging.Component("shell"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if names := reg.Names(); len(names) == 1 {
		s.current = names[0]
	}
	return s
}

// Current returns the selected collection name.
func (s *Shell) Current() string {
	return s.current
}

// Execute runs one command line and returns its output. Blank lines and
// lines starting with # produce no output.
func (s *Shell) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return "", nil
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	if name == "quit" {
		name = "exit"
	}
	cmd, ok := commands[name]
	if !ok {
		return "", fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	if cmd.run == nil {
		return "", ErrExit
	}
	if !cmd.args(len(args)) {
		return "", fmt.Errorf("usage: %s", cmd.usage)
	}

	s.log.Debug("command", zap.String("name", name), zap.Strings("args", args))
	return cmd.run(s, args)
}

// view runs fn against the selected collection.
func (s *Shell) view(fn func(c *collection.Collection) (string, error)) (string, error) {
	if s.current == "" {
		return "", fmt.Errorf("no collection selected (try use)")
	}
	h, err := s.reg.Get(s.current)
	if err != nil {
		return "", err
	}

	var out string
	err = h.View(func(c *collection.Collection) error {
		var err error
		out, err = fn(c)
		return err
	})
	return out, err
}

func (s *Shell) help([]string) (string, error) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{commands[name].usage, commands[name].help}
	}
	return table(nil, rows), nil
}

func (s *Shell) list([]string) (string, error) {
	names := s.reg.Names()
	if len(names) == 0 {
		return "no collections\n", nil
	}

	var b strings.Builder
	for _, name := range names {
		marker := " "
		if name == s.current {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s\n", marker, name)
	}
	return b.String(), nil
}

func (s *Shell) use(args []string) (string, error) {
	if _, err := s.reg.Get(args[0]); err != nil {
		return "", err
	}
	s.current = args[0]
	return fmt.Sprintf("using %s\n", args[0]), nil
}

func (s *Shell) info([]string) (string, error) {
	return s.view(func(c *collection.Collection) (string, error) {
		tl := c.Timeline()
		return table(nil, [][]string{
			{"name", c.Name()},
			{"source", c.Source()},
			{"build", c.BuildID()},
			{"instruments", strconv.Itoa(c.NumInstruments())},
			{"columns", strings.Join(c.Header(), ", ")},
			{"close", c.Header()[c.CloseIndex()]},
			{"steps", strconv.Itoa(c.Len())},
			{"first", instant(tl[0])},
			{"last", instant(tl[len(tl)-1])},
		}), nil
	})
}

func (s *Shell) summary([]string) (string, error) {
	return s.view(func(c *collection.Collection) (string, error) {
		data, err := json.MarshalIndent(c.Summary(), "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	})
}

func (s *Shell) instruments([]string) (string, error) {
	return s.view(func(c *collection.Collection) (string, error) {
		tl := c.Timeline()
		var rows [][]string
		for id, name := range c.InstrumentNames() {
			span, _ := c.Span(id)
			rows = append(rows, []string{
				strconv.Itoa(id), name, instant(tl[span.First]), instant(tl[span.Last]), strconv.Itoa(span.Len()),
			})
		}
		return table([]string{"id", "name", "first", "last", "steps"}, rows), nil
	})
}

func (s *Shell) timeline(args []string) (string, error) {
	n := config.DefaultTimelinePreview
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return "", fmt.Errorf("timeline: %q is not a positive count", args[0])
		}
		n = v
	}

	return s.view(func(c *collection.Collection) (string, error) {
		tl := c.Timeline()
		shown := min(n, len(tl))
		rows := make([][]string, shown)
		for step, t := range tl[:shown] {
			rows[step] = []string{strconv.Itoa(step), strconv.FormatInt(t, 10), instant(t)}
		}
		out := table(nil, rows)
		if shown < len(tl) {
			out += fmt.Sprintf("... %d more\n", len(tl)-shown)
		}
		return out, nil
	})
}

func (s *Shell) value(args []string) (string, error) {
	step, err := parseStep(args[1])
	if err != nil {
		return "", err
	}
	return s.view(func(c *collection.Collection) (string, error) {
		v, err := c.ValueByName(args[0], step, args[2])
		if err != nil {
			return "", err
		}
		return number(v) + "\n", nil
	})
}

func (s *Shell) ret(args []string) (string, error) {
	step, err := parseStep(args[1])
	if err != nil {
		return "", err
	}
	return s.view(func(c *collection.Collection) (string, error) {
		id, err := c.InstrumentID(args[0])
		if err != nil {
			return "", err
		}
		r, err := c.Return(id, step)
		if err != nil {
			return "", err
		}
		return number(r) + "\n", nil
	})
}

func (s *Shell) stats(args []string) (string, error) {
	return s.view(func(c *collection.Collection) (string, error) {
		id, err := c.InstrumentID(args[0])
		if err != nil {
			return "", err
		}
		rs, err := c.ReturnStats(id)
		if err != nil {
			return "", err
		}
		return table(nil, [][]string{
			{"count", strconv.Itoa(rs.Count)},
			{"mean", number(rs.Mean)},
			{"stddev", number(rs.StdDev)},
			{"min", number(rs.Min)},
			{"max", number(rs.Max)},
			{"cumulative", number(rs.Cumulative)},
			{"p05", number(rs.P05)},
			{"p50", number(rs.P50)},
			{"p95", number(rs.P95)},
			{"p99", number(rs.P99)},
		}), nil
	})
}

func (s *Shell) metrics([]string) (string, error) {
	if s.gatherer == nil {
		return "", fmt.Errorf("metrics are not enabled")
	}
	families, err := s.gatherer.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "atlas_") {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encode metrics: %w", err)
		}
	}
	return buf.String(), nil
}

func parseStep(arg string) (int, error) {
	step, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("step %q is not an integer", arg)
	}
	return step, nil
}

func instant(t int64) string {
	return time.Unix(t, 0).UTC().Format(time.RFC3339)
}

func number(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// table renders rows as borderless, left-aligned columns. A nil header
// prints no header row.
func table(header []string, rows [][]string) string {
	var b strings.Builder
	t := tablewriter.NewWriter(&b)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetColumnSeparator("")
	t.SetCenterSeparator("")
	t.SetRowSeparator("")
	t.SetNoWhiteSpace(true)
	t.SetTablePadding("  ")
	if header != nil {
		t.SetHeader(header)
	}
	t.AppendBulk(rows)
	t.Render()
	return b.String()
}
