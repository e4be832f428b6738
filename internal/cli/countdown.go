package cli

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/memeindex/memeindex/internal/countdown"
	"github.com/memeindex/memeindex/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var countdownCmd = &cobra.Command{
	Use:   "countdown",
	Short: "Show the launch countdown",
	Long: `Show the time left until countdown.ends_at. Without a deadline the
default countdown is shown. The countdown ticks every second until it ends or
is interrupted; --once prints a single reading.`,
	Args: cobra.NoArgs,
	RunE: runCountdown,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var countdownOnce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(countdownCmd)
	countdownCmd.Flags().BoolVar(&countdownOnce, "once", false, "print the remaining time once and exit")
}

func runCountdown(cmd *cobra.Command, _ []string) error {
	start := countdown.Default()
	if end, ok := cfg.CountdownDeadline(); ok {
		start = countdown.Until(time.Now(), end)
	}

	w := cmd.OutOrStdout()
	f := formatterFor(w)
	if countdownOnce || f.IsJSON() || !output.IsTerminal(w) {
		return f.Result(start, func(w io.Writer) error {
			outln(w, start.Labeled())
			return nil
		})
	}

	err := countdown.Run(cmd.Context(), start, time.Second, func(r countdown.Remaining) {
		out(w, "\r%s", f.Paint(output.StyleBold, r.Labeled()))
	})
	outln(w)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
