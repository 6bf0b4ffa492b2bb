// Package calendar turns calendar strings into epoch seconds.
//
// A Parser is built from one caller-supplied format, which may be either a
// Go reference layout ("2006-01-02 15:04:05") or a strftime pattern
// ("%Y-%m-%d %H:%M:%S"). Parsing tries two grammars in order:
//
//  1. the full layout; an offset or zone in the layout is honored,
//     otherwise the value is read as UTC
//  2. the calendar-date prefix of the layout, at midnight UTC
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/atlas/internal/errors"
)

// strftime directive -> Go layout fragment.
var directives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'j': "002",
	'b': "Jan",
	'h': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'z': "-0700",
	'Z': "MST",
	'F': "2006-01-02",
	'T': "15:04:05",
	'D': "01/02/06",
	'%': "%",
}

// Tokens that start the time-of-day part of a Go layout.
var timeTokens = []string{"15", "03", "04", "05", "PM", "pm", "MST", "Z07", "-07"}

// Parser parses calendar strings with a fixed layout.
type Parser struct {
	format     string
	layout     string
	dateLayout string
}

// NewParser creates a parser for format. An empty format or an unknown
// strftime directive is a configuration error.
func NewParser(format string) (*Parser, error) {
	if strings.TrimSpace(format) == "" {
		return nil, errors.NewConfiguration("empty datetime format")
	}

	layout := format
	if strings.Contains(format, "%") {
		var err error
		layout, err = Translate(format)
		if err != nil {
			return nil, err
		}
	}

	p := &Parser{
		format: format,
		layout: layout,
	}
	if prefix := datePrefix(layout); prefix != "" && prefix != layout {
		p.dateLayout = prefix
	}
	return p, nil
}

// Translate converts a strftime pattern into a Go reference layout.
func Translate(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return "", errors.NewConfiguration("datetime format %q: trailing %%", format)
		}
		i++
		if format[i] == ':' && i+1 < len(format) && format[i+1] == 'z' {
			b.WriteString("-07:00")
			i++
			continue
		}
		frag, ok := directives[format[i]]
		if !ok {
			return "", errors.NewConfiguration("datetime format %q: unsupported directive %%%c", format, format[i])
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}

func datePrefix(layout string) string {
	cut := len(layout)
	for _, tok := range timeTokens {
		if i := strings.Index(layout, tok); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimRight(layout[:cut], " T_,")
}

// Format returns the format the parser was created with.
func (p *Parser) Format() string {
	return p.format
}

// Layout returns the Go reference layout in use.
func (p *Parser) Layout() string {
	return p.layout
}

// Parse returns the number of seconds between the Unix epoch and value.
func (p *Parser) Parse(value string) (int64, error) {
	value = strings.TrimSpace(value)

	t, err := time.Parse(p.layout, value)
	if err == nil {
		return t.Unix(), nil
	}

	if p.dateLayout != "" {
		if d, derr := time.ParseInLocation(p.dateLayout, value, time.UTC); derr == nil {
			return d.Unix(), nil
		}
	}

	return 0, fmt.Errorf("timestamp %q does not match %q: %w", value, p.format, errors.ErrParse)
}

// Parse is a one-shot helper for NewParser(format).Parse(value).
func Parse(value, format string) (int64, error) {
	p, err := NewParser(format)
	if err != nil {
		return 0, err
	}
	return p.Parse(value)
}
