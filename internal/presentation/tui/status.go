package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// Status writes one-line run summaries, coloured when the output supports it.
type Status struct {
	out *termenv.Output
}

// NewStatus wraps w. Colours are dropped when w is not a terminal.
func NewStatus(w io.Writer) *Status {
	return &Status{out: termenv.NewOutput(w)}
}

func (s *Status) line(color, mark, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	styled := s.out.String(mark).Foreground(s.out.Color(color)).Bold()
	fmt.Fprintf(s.out, "%s %s\n", styled, msg)
}

// Success reports a finished step.
func (s *Status) Success(format string, args ...any) { s.line("#22c55e", "✓", format, args...) }

// Warn reports a degraded but non-fatal outcome.
func (s *Status) Warn(format string, args ...any) { s.line("#f59e0b", "!", format, args...) }

// Failure reports a failed run.
func (s *Status) Failure(format string, args ...any) { s.line("#ef4444", "✗", format, args...) }

// Info reports progress.
func (s *Status) Info(format string, args ...any) { s.line("#818cf8", "•", format, args...) }

// Banner prints the program name and version.
func (s *Status) Banner(version string) {
	name := s.out.String("comfyctl").Foreground(s.out.Color("#a78bfa")).Bold()
	fmt.Fprintf(s.out, "%s %s\n", name, version)
}
