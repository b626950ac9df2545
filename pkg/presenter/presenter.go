// Package presenter provides consistent CLI output for user-facing messages,
// with color support and a quiet mode for scripted use.
package presenter

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Presenter defines the interface for CLI output.
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter implements Presenter for terminal output.
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colored     bool
	quiet       bool
}

var defaultPresenter = New()

// New creates a TerminalPresenter writing to stdout/stderr. Color detection
// is delegated to fatih/color, which honors NO_COLOR and non-tty output.
func New() *TerminalPresenter {
	return NewWithWriters(os.Stdout, os.Stderr, !color.NoColor)
}

// NewWithWriters creates a TerminalPresenter with explicit writers, used by
// tests to capture output.
func NewWithWriters(output, errorOutput io.Writer, colored bool) *TerminalPresenter {
	return &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colored:     colored,
	}
}

func (p *TerminalPresenter) sprintf(c *color.Color, format string, args ...interface{}) string {
	if p.colored {
		return c.Sprintf(format, args...)
	}
	return fmt.Sprintf(format, args...)
}

// Error prints an error with context to the error output. Errors are shown
// even in quiet mode.
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}
	fmt.Fprintln(p.errorOutput, p.sprintf(color.New(color.FgRed), "Error: %s: %v", context, err))
}

// Success prints a success message.
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.output, p.sprintf(color.New(color.FgGreen), "✓ %s", message))
}

// Warning prints a warning message.
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.output, p.sprintf(color.New(color.FgYellow), "⚠ %s", message))
}

// Info prints an informational message.
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.output, message)
}

// Section prints a section header.
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.output, p.sprintf(color.New(color.Bold), "\n=== %s ===", title))
}

// SetQuiet toggles quiet mode.
func (p *TerminalPresenter) SetQuiet(quiet bool) { p.quiet = quiet }

// IsQuiet reports whether quiet mode is on.
func (p *TerminalPresenter) IsQuiet() bool { return p.quiet }

// Package-level helpers targeting the default presenter.

func Error(err error, context string) { defaultPresenter.Error(err, context) }
func Success(message string)          { defaultPresenter.Success(message) }
func Warning(message string)          { defaultPresenter.Warning(message) }
func Info(message string)             { defaultPresenter.Info(message) }
func Section(title string)            { defaultPresenter.Section(title) }
func SetQuiet(quiet bool)             { defaultPresenter.SetQuiet(quiet) }
