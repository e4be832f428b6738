package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/memeindex/memeindex/internal/host"
	"github.com/memeindex/memeindex/internal/output"
	"github.com/memeindex/memeindex/internal/referral"
	"github.com/memeindex/memeindex/internal/wallet"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var referralCmd = &cobra.Command{
	Use:   "referral",
	Short: "Invite friends and apply referral codes",
	Long: `Show the invite link of the connected wallet, track invites and apply a
friend's referral code.

Example:
  memeindex referral link --qr
  memeindex referral stats
  memeindex referral apply ABCD1234`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var referralLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Show the invite link",
	Args:  cobra.NoArgs,
	RunE:  runReferralLink,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var referralStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show invite progress",
	Args:  cobra.NoArgs,
	RunE:  runReferralStats,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var referralApplyCmd = &cobra.Command{
	Use:   "apply <code>",
	Short: "Apply a friend's referral code",
	Args:  cobra.ExactArgs(1),
	RunE:  runReferralApply,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var referralShareCmd = &cobra.Command{
	Use:   "share",
	Short: "Share the invite link through Telegram",
	Args:  cobra.NoArgs,
	RunE:  runReferralShare,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var referralPendingCmd = &cobra.Command{
	Use:   "pending [code]",
	Short: "Show, set or clear the captured inbound referral code",
	Long: `The inbound referral code is captured from the launch start parameter and
sent once with the first registration. Pass a code to replace it, or --clear
to drop it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReferralPending,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	referralQR   bool
	pendingClear bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(referralCmd)
	referralCmd.AddCommand(referralLinkCmd)
	referralCmd.AddCommand(referralStatsCmd)
	referralCmd.AddCommand(referralApplyCmd)
	referralCmd.AddCommand(referralShareCmd)
	referralCmd.AddCommand(referralPendingCmd)

	referralLinkCmd.Flags().BoolVar(&referralQR, "qr", false, "render the link as a QR code")
	referralPendingCmd.Flags().BoolVar(&pendingClear, "clear", false, "drop the captured code")
}

func newReferralService(cmd *cobra.Command) (*referral.Service, wallet.Address, error) {
	addr, err := cmdCtx.SessionAddress()
	if err != nil {
		return nil, "", err
	}
	client, err := cmdCtx.Backend("")
	if err != nil {
		return nil, "", err
	}
	console := host.NewConsole(cmd.ErrOrStderr())
	return referral.NewService(client, referral.Options{
		Messenger:  console,
		Notifier:   console,
		InviteGoal: cfg.Referral.InviteGoal,
		Logger:     logger.Named("referral"),
	}), addr, nil
}

func runReferralLink(cmd *cobra.Command, _ []string) error {
	svc, addr, err := newReferralService(cmd)
	if err != nil {
		return err
	}
	link, err := svc.Link(cmd.Context(), addr)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	return formatterFor(w).Result(link, func(w io.Writer) error {
		outln(w, link.ReferralLink)
		if referralQR && !output.RenderQR(w, link.ReferralLink, output.DefaultQRConfig()) {
			logger.Debug("qr: output is not a terminal")
		}
		return nil
	})
}

func runReferralStats(cmd *cobra.Command, _ []string) error {
	svc, addr, err := newReferralService(cmd)
	if err != nil {
		return err
	}
	ov, err := svc.Overview(cmd.Context(), addr)
	if err != nil {
		return err
	}

	return formatterFor(cmd.OutOrStdout()).Result(ov, func(w io.Writer) error {
		out(w, "Invited: %s\n", ov.Progress)
		out(w, "Code:    %s\n", ov.Link.ReferralCode)
		out(w, "Link:    %s\n", ov.Link.ReferralLink)
		if ov.Progress.Reached() {
			outln(w, "Invite goal reached")
		}
		return nil
	})
}

func runReferralApply(cmd *cobra.Command, args []string) error {
	svc, addr, err := newReferralService(cmd)
	if err != nil {
		return err
	}
	res, err := svc.Apply(cmd.Context(), addr, args[0])
	if err != nil {
		return err
	}
	return formatterFor(cmd.OutOrStdout()).Result(map[string]string{
		"outcome": res.Outcome.String(),
		"message": res.Message,
	}, func(w io.Writer) error {
		outln(w, res.Outcome.String())
		return nil
	})
}

func runReferralShare(cmd *cobra.Command, _ []string) error {
	svc, addr, err := newReferralService(cmd)
	if err != nil {
		return err
	}
	return svc.Share(cmd.Context(), addr)
}

func runReferralPending(cmd *cobra.Command, args []string) error {
	store := cmdCtx.Pending()
	w := cmd.OutOrStdout()

	switch {
	case pendingClear:
		if err := store.Clear(); err != nil {
			return err
		}
		return formatSuccess(w, "Pending referral cleared")
	case len(args) == 1:
		if err := store.Save(args[0]); err != nil {
			return err
		}
	}

	code, err := store.Load()
	if err != nil {
		return err
	}
	return formatterFor(w).Result(map[string]string{"code": code}, func(w io.Writer) error {
		if code == "" {
			outln(w, "No pending referral")
			return nil
		}
		outln(w, code)
		return nil
	})
}
