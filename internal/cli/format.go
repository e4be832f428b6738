package cli

import (
	"io"

	"github.com/memeindex/memeindex/internal/output"
)

// formatterFor returns a formatter in the resolved global format writing to w.
func formatterFor(w io.Writer) *output.Formatter {
	format := output.FormatText
	if formatter != nil {
		format = formatter.Format()
	}
	color := output.ColorNever
	if cfg != nil {
		color = cfg.Output.Color
	}
	return output.NewFormatter(format, w).SetColor(color)
}

func formatSuccess(w io.Writer, message string) error {
	return output.FormatSuccess(w, message, formatterFor(w).Format())
}
