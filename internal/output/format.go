// Package output renders command results as text or JSON.
package output

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format represents the output format.
type Format string

// Output format constants.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// Color modes accepted by SetColor.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Style is an ANSI text attribute.
type Style string

// Styles used by the CLI.
const (
	StyleBold   Style = "1"
	StyleRed    Style = "31"
	StyleGreen  Style = "32"
	StyleYellow Style = "33"
)

// Formatter writes results in one format.
type Formatter struct {
	format Format
	writer io.Writer
	color  bool
}

// NewFormatter creates a formatter. FormatAuto is resolved against w.
// Color is off until SetColor enables it.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{
		format: DetectFormat(w, format),
		writer: w,
	}
}

// Format returns the resolved output format.
func (f *Formatter) Format() Format {
	return f.format
}

// IsJSON returns true if the formatter outputs JSON.
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// SetColor enables ANSI styling for "always", or for "auto" when the writer
// is a terminal. JSON output is never styled.
func (f *Formatter) SetColor(mode string) *Formatter {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ColorAlways:
		f.color = true
	case ColorAuto, "":
		f.color = IsTerminal(f.writer)
	default:
		f.color = false
	}
	if f.format == FormatJSON {
		f.color = false
	}
	return f
}

// Color reports whether styling is enabled.
func (f *Formatter) Color() bool {
	return f.color
}

// Paint wraps s in the ANSI sequence for style when color is enabled.
func (f *Formatter) Paint(style Style, s string) string {
	if !f.color || s == "" {
		return s
	}
	return "\x1b[" + string(style) + "m" + s + "\x1b[0m"
}

// Result writes v as JSON, or calls text to render it in text mode.
// A nil text renders JSON in either mode.
func (f *Formatter) Result(v any, text func(w io.Writer) error) error {
	if f.format == FormatJSON || text == nil {
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	}
	return text(f.writer)
}

// DetectFormat determines the appropriate format based on context.
// Returns JSON for non-TTY output, text for TTY, unless explicitly overridden.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit != FormatAuto && explicit != "" {
		return explicit
	}

	if IsTerminal(w) {
		return FormatText
	}
	return FormatJSON
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatAuto
	}
}

// Resolve picks the format from a flag value, falling back to the configured
// default and then to terminal detection.
func Resolve(w io.Writer, flag, configured string) Format {
	if f := ParseFormat(flag); f != FormatAuto {
		return f
	}
	return DetectFormat(w, ParseFormat(configured))
}
