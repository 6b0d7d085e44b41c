package tui

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	return func(markdown string) (string, error) {
		if err != nil {
			return "", err
		}
		return r.Render(markdown)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// FormatJSON indents v. On a terminal the result is highlighted as a fenced
// json block; elsewhere it is plain so it can be piped.
func FormatJSON(v any, tty bool) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	if !tty {
		return string(data) + "\n", nil
	}
	out, err := NewRenderer()(fmt.Sprintf("```json\n%s\n```\n", data))
	if err != nil {
		return string(data) + "\n", nil
	}
	return out, nil
}
