package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/xtxerr/atlas/config"
	"github.com/xtxerr/atlas/internal/collection"
	"github.com/xtxerr/atlas/internal/errors"
)

// Interactive reports whether stdin is a terminal.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// RunPrompt runs an interactive prompt with completion until exit.
func (s *Shell) RunPrompt() {
	done := false
	p := prompt.New(
		func(line string) {
			if done {
				return
			}
			out, err := s.Execute(line)
			if errors.Is(err, ErrExit) {
				done = true
				return
			}
			s.print(os.Stdout, out, err)
		},
		s.Complete,
		prompt.OptionPrefix(config.DefaultPrompt),
		prompt.OptionTitle("atlas"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && isExit(in)
		}),
	)
	p.Run()
}

// Run reads commands line by line from in and writes results to out until
// in is exhausted, exit is read or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.Execute(scanner.Text())
		if errors.Is(err, ErrExit) {
			return nil
		}
		s.print(out, res, err)
	}
	return scanner.Err()
}

func (s *Shell) print(w io.Writer, out string, err error) {
	if err != nil {
		s.log.Debug("command failed", zap.String("kind", errors.Kind(err)), zap.Error(err))
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprint(w, out)
}

func isExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	}
	return false
}

// Complete suggests command names, collection names, instruments and
// columns depending on the position of the cursor.
func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	word := d.GetWordBeforeCursor()
	fields := strings.Fields(before)

	// Index of the argument being typed; 0 is the command itself.
	pos := len(fields)
	if word != "" {
		pos--
	}

	if pos <= 0 {
		return prompt.FilterHasPrefix(s.commandSuggestions(), word, true)
	}

	var candidates []string
	switch strings.ToLower(fields[0]) {
	case "use":
		if pos == 1 {
			candidates = s.reg.Names()
		}
	case "value", "return", "stats":
		switch pos {
		case 1:
			candidates = s.selected(func(c *collection.Collection) []string { return c.InstrumentNames() })
		case 3:
			if strings.ToLower(fields[0]) == "value" {
				candidates = s.selected(func(c *collection.Collection) []string { return c.Header() })
			}
		}
	}

	suggestions := make([]prompt.Suggest, len(candidates))
	for i, c := range candidates {
		suggestions[i] = prompt.Suggest{Text: c}
	}
	return prompt.FilterHasPrefix(suggestions, word, true)
}

func (s *Shell) commandSuggestions() []prompt.Suggest {
	out := make([]prompt.Suggest, 0, len(commands))
	for name, cmd := range commands {
		out = append(out, prompt.Suggest{Text: name, Description: cmd.help})
	}
	slices.SortFunc(out, func(a, b prompt.Suggest) int { return strings.Compare(a.Text, b.Text) })
	return out
}

func (s *Shell) selected(fn func(c *collection.Collection) []string) []string {
	if s.current == "" {
		return nil
	}
	h, err := s.reg.Get(s.current)
	if err != nil {
		return nil
	}
	var out []string
	_ = h.View(func(c *collection.Collection) error {
		out = fn(c)
		return nil
	})
	return out
}
