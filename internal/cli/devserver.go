package cli

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/memeindex/memeindex/internal/devserver"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory backend for local development",
	Long: `Serve the MemeIndex REST API from memory. Point backend.url at it to try
the client without the real backend. When bot.token is set every API call
must carry valid signed init data.

Example:
  memeindex devserver --listen 127.0.0.1:8787
  MEMEINDEX_BACKEND_URL=http://127.0.0.1:8787 memeindex connect --user-id 1 --username alice`,
	Args: cobra.NoArgs,
	RunE: runDevserver,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var devserverListen string

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().StringVar(&devserverListen, "listen", devserver.DefaultListen, "listen address")
}

func runDevserver(cmd *cobra.Command, _ []string) error {
	srv := devserver.New(devserver.Options{
		BotUsername: cfg.Bot.Username,
		BotToken:    cfg.Bot.Token,
		InviteGoal:  cfg.Referral.InviteGoal,
		Logger:      logger.Named("devserver"),
	})

	w := cmd.OutOrStdout()
	return srv.ListenAndServe(cmd.Context(), devserverListen, func(addr net.Addr) {
		out(w, "Listening on http://%s\n", addr)
	})
}
