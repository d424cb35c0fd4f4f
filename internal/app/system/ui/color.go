// Package ui renders command-line output for chatschema.
//
// Colors follow fatih/color and respect NO_COLOR and the no_color setting.
// They are turned off automatically when stdout is not a terminal.
//
//   - Red: conflicts, failures
//   - Yellow: missing objects
//   - Green: success
//   - Bold: headers
//   - Dim: details
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors forces colors off when noColor is set. Call it once from main.
func InitColors(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// Success writes a green line with a checkmark.
func Success(w io.Writer, format string, args ...any) {
	_, _ = Green.Fprintf(w, "✓ "+format+"\n", args...)
}

// Warning writes a yellow line with a warning sign.
func Warning(w io.Writer, format string, args ...any) {
	_, _ = Yellow.Fprintf(w, "⚠ "+format+"\n", args...)
}

// Error writes a red line with a cross.
func Error(w io.Writer, format string, args ...any) {
	_, _ = Red.Fprintf(w, "✗ "+format+"\n", args...)
}

// Header writes bold text underlined with '='.
func Header(w io.Writer, text string) {
	_, _ = Bold.Fprintln(w, text)
	fmt.Fprintln(w, strings.Repeat("=", len(text)))
}

// Label returns bold text for inline use.
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText returns faint text for details.
func DimText(text string) string {
	return Dim.Sprint(text)
}
