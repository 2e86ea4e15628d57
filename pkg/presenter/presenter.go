// Package presenter provides consistent CLI output for user-facing
// messages: success, error, warning, and informational lines with color
// support and a quiet mode. Engines never format for humans; commands
// route their structured results through this package.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// ColorMode controls colored output.
type ColorMode int

const (
	// ColorAuto detects terminal capabilities.
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output.
	ColorAlways
	// ColorNever disables colored output.
	ColorNever
)

// Presenter writes user-facing CLI output.
type Presenter struct {
	output      io.Writer
	errorOutput io.Writer
	quiet       bool
}

// New creates a presenter on stdout/stderr with color detection from the
// environment.
func New() *Presenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a presenter with explicit streams and color mode.
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *Presenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}

	return &Presenter{
		output:      output,
		errorOutput: errorOutput,
	}
}

func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	switch os.Getenv("DEFKIT_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error writes an error with context to stderr. Errors print even in quiet
// mode.
func (p *Presenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
	}
}

// Success writes a success line.
func (p *Presenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

// Warning writes a warning line.
func (p *Presenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

// Info writes a plain informational line.
func (p *Presenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "%s\n", message)
}

// Section writes an underlined section header.
func (p *Presenter) Section(title string) {
	if p.quiet {
		return
	}
	header := color.New(color.Bold)
	header.Fprintf(p.output, "%s\n", title)
	header.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

// Separator writes a visual separator.
func (p *Presenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// SetQuiet toggles quiet mode.
func (p *Presenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet reports whether quiet mode is on.
func (p *Presenter) IsQuiet() bool {
	return p.quiet
}

var defaultPresenter = New()

// Error writes an error using the default presenter.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Success writes a success line using the default presenter.
func Success(message string) {
	defaultPresenter.Success(message)
}

// Warning writes a warning line using the default presenter.
func Warning(message string) {
	defaultPresenter.Warning(message)
}

// Info writes an informational line using the default presenter.
func Info(message string) {
	defaultPresenter.Info(message)
}

// Section writes a section header using the default presenter.
func Section(title string) {
	defaultPresenter.Section(title)
}

// Separator writes a separator using the default presenter.
func Separator() {
	defaultPresenter.Separator()
}

// SetQuiet toggles quiet mode on the default presenter.
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}
