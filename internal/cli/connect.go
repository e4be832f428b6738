package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/memeindex/memeindex/internal/config"
	"github.com/memeindex/memeindex/internal/host"
	"github.com/memeindex/memeindex/internal/output"
	"github.com/memeindex/memeindex/internal/reconcile"
	"github.com/memeindex/memeindex/internal/wallet"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a wallet and register it",
	Long: `Connect a TON wallet and make sure it is registered with the backend.

The launch identity comes from --init-data (the signed query string the host
hands the mini-app) or from --user-id and --username. It is remembered for
later commands. Without --address the wallet address is read from stdin, the
way the wallet app would approve it.

Example:
  memeindex connect --address EQabc...123 --user-id 1001 --username alice
  memeindex connect --init-data "$INIT_DATA" --address EQabc...123
  memeindex connect --user-id 1001 --username alice --start-param ABCD1234`,
	RunE: runConnect,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the wallet",
	Long:  `End the stored wallet session. The launch identity is kept.`,
	RunE:  runDisconnect,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the wallet and registration status",
	Long: `Show the connected wallet, the launch identity and whether the backend
knows the user. Status never registers anyone.`,
	RunE: runStatus,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	connectAddress    string
	connectInitData   string
	connectUserID     int64
	connectUsername   string
	connectFirstName  string
	connectStartParam string
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(statusCmd)

	connectCmd.Flags().StringVar(&connectAddress, "address", "", "wallet address to approve")
	connectCmd.Flags().StringVar(&connectInitData, "init-data", "", "signed launch query string")
	connectCmd.Flags().Int64Var(&connectUserID, "user-id", 0, "launch user id")
	connectCmd.Flags().StringVar(&connectUsername, "username", "", "launch username")
	connectCmd.Flags().StringVar(&connectFirstName, "first-name", "", "launch first name, used when there is no username")
	connectCmd.Flags().StringVar(&connectStartParam, "start-param", "", "inbound referral code")
	connectCmd.MarkFlagsMutuallyExclusive("init-data", "user-id")
	connectCmd.MarkFlagsMutuallyExclusive("init-data", "start-param")
}

// StatusResult is the outcome of connect and status.
type StatusResult struct {
	Phase      string `json:"phase"`
	Address    string `json:"address,omitempty"`
	Registered bool   `json:"registered"`
	UserID     int64  `json:"user_id,omitempty"`
	Username   string `json:"username,omitempty"`
}

// resolveLaunch picks the launch parameters from the flags, falling back to
// the stored ones. It returns the raw initData when one was given.
func resolveLaunch() (host.LaunchParams, string, error) {
	switch {
	case connectInitData != "":
		data, err := host.ParseInitData(connectInitData)
		if err != nil {
			return host.LaunchParams{}, "", err
		}
		return data.Params, connectInitData, nil

	case connectUserID != 0:
		return host.LaunchParams{
			Identity: host.Identity{
				ID:        connectUserID,
				Username:  connectUsername,
				FirstName: connectFirstName,
			},
			StartParam: connectStartParam,
		}, "", nil
	}

	p, _, err := cmdCtx.Launch.Load()
	if err != nil {
		return host.LaunchParams{}, "", err
	}
	p.StartParam = connectStartParam
	return p, "", nil
}

func runConnect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	launch, initData, err := resolveLaunch()
	if err != nil {
		return err
	}
	if !launch.Identity.IsZero() {
		if err := cmdCtx.Launch.Save(launch); err != nil {
			return err
		}
	}

	pending := cmdCtx.Pending()
	if code := launch.ReferralCode(); code != "" {
		if err := pending.Save(code); err != nil {
			logger.Error("save pending referral: %v", err)
		}
	}

	var want wallet.Address
	chooser := promptChooser(cmd.InOrStdin(), cmd.ErrOrStderr())
	if connectAddress != "" {
		if want, err = wallet.ParseAddress(connectAddress); err != nil {
			return err
		}
		chooser = fixedChooser(want)
	}

	client, err := cmdCtx.Backend(initData)
	if err != nil {
		return err
	}

	provider := cmdCtx.Provider(chooser)
	conn, err := provider.Acquire()
	if err != nil {
		return err
	}
	defer func() { _ = provider.Release() }()

	if err := dropForeignSession(ctx, conn, want); err != nil {
		return err
	}

	rec, err := reconcile.New(reconcile.Options{
		Connector: conn,
		Registrar: client,
		Launch:    launch,
		Pending:   pending,
		Notifier:  host.NewConsole(cmd.ErrOrStderr()),
		LookupKey: cfg.Registration.LookupKey,
		Policy:    cmdCtx.RetryPolicy(),
		Logger:    logger.Named("reconcile"),
	})
	if err != nil {
		return err
	}

	st, err := connectWallet(ctx, rec)
	if err != nil {
		return err
	}
	return renderStatus(cmd.OutOrStdout(), StatusResult{
		Phase:      st.Phase.String(),
		Address:    st.Address.String(),
		Registered: st.Phase == reconcile.Registered,
		UserID:     launch.Identity.ID,
		Username:   launch.Identity.DisplayName(),
	})
}

// dropForeignSession ends a stored session for an address other than want,
// so mounting does not reconcile a wallet the user did not ask for.
func dropForeignSession(ctx context.Context, conn wallet.Connector, want wallet.Address) error {
	acct, ok := conn.Account()
	if !ok || want.IsZero() || acct.Address.Equal(want) {
		return nil
	}
	logger.Info("dropping stored session for %s", acct.Address.Short())
	return conn.Disconnect(ctx)
}

// connectWallet drives rec until the restored session, or the wallet the
// user approves, is resolved.
func connectWallet(ctx context.Context, rec *reconcile.Reconciler) (reconcile.State, error) {
	rec.Mount(ctx)
	defer rec.Unmount()
	rec.Wait()

	st := rec.State()
	if st.Phase != reconcile.Registered {
		if err := rec.InitiateConnection(ctx); err != nil {
			return st, err
		}
		rec.Wait()
		st = rec.State()
	}

	switch st.Phase {
	case reconcile.Registered:
		return st, nil
	case reconcile.Failed:
		if st.Reason != nil {
			return st, st.Reason
		}
		return st, apperr.ErrRegistrationFailed
	default:
		return st, apperr.ErrNotConnected
	}
}

func runDisconnect(cmd *cobra.Command, _ []string) error {
	provider := cmdCtx.Provider(nil)
	conn, err := provider.Acquire()
	if err != nil {
		return err
	}
	defer func() { _ = provider.Release() }()

	if err := conn.Disconnect(cmd.Context()); err != nil {
		return err
	}
	return formatSuccess(cmd.OutOrStdout(), "Wallet disconnected")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	res := StatusResult{Phase: reconcile.Disconnected.String()}

	launch, ok, err := cmdCtx.Launch.Load()
	if err != nil {
		return err
	}
	if ok {
		res.UserID = launch.Identity.ID
		res.Username = launch.Identity.DisplayName()
	}

	addr, err := cmdCtx.SessionAddress()
	if err != nil && !apperr.Is(err, apperr.ErrNotConnected) {
		return err
	}
	if err == nil {
		res.Phase = reconcile.Connected.String()
		res.Address = addr.String()

		client, err := cmdCtx.Backend("")
		if err != nil {
			return err
		}
		key := addr.String()
		if cfg.Registration.LookupKey == config.LookupByLaunchID {
			if !ok || launch.Identity.IsZero() {
				return apperr.WithSuggestion(apperr.ErrMissingIdentity, missingIdentityHint)
			}
			key = launch.Identity.Key()
		}
		if res.Registered, err = client.IsRegistered(cmd.Context(), key); err != nil {
			return err
		}
		if res.Registered {
			res.Phase = reconcile.Registered.String()
		}
	}

	return renderStatus(cmd.OutOrStdout(), res)
}

func renderStatus(w io.Writer, res StatusResult) error {
	f := formatterFor(w)
	return f.Result(res, func(w io.Writer) error {
		out(w, "Status:     %s\n", f.Paint(phaseStyle(res.Phase), res.Phase))
		if res.Address != "" {
			out(w, "Wallet:     %s\n", wallet.Address(res.Address).Short())
		}
		if res.UserID != 0 {
			out(w, "User:       %s (%d)\n", res.Username, res.UserID)
		}
		out(w, "Registered: %t\n", res.Registered)
		return nil
	})
}

func phaseStyle(phase string) output.Style {
	switch phase {
	case reconcile.Registered.String():
		return output.StyleGreen
	case reconcile.Failed.String():
		return output.StyleRed
	default:
		return output.StyleYellow
	}
}
