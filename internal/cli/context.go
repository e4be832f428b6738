package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/memeindex/memeindex/internal/backend"
	"github.com/memeindex/memeindex/internal/config"
	"github.com/memeindex/memeindex/internal/fileutil"
	"github.com/memeindex/memeindex/internal/host"
	"github.com/memeindex/memeindex/internal/output"
	"github.com/memeindex/memeindex/internal/referral"
	"github.com/memeindex/memeindex/internal/retry"
	"github.com/memeindex/memeindex/internal/wallet"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Config    *config.Config
	Logger    *config.Logger
	Formatter *output.Formatter
	Launch    LaunchStore
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(
	cfg *config.Config,
	logger *config.Logger,
	formatter *output.Formatter,
) *CommandContext {
	return &CommandContext{
		Config:    cfg,
		Logger:    logger,
		Formatter: formatter,
		Launch:    NewFileLaunchStore(filepath.Join(config.ExpandHome(cfg.Home), "launch.json")),
	}
}

// Backend builds a backend client from the configuration. initData, when
// set, is sent with every request.
func (c *CommandContext) Backend(initData string) (*backend.Client, error) {
	return backend.NewClient(c.Config.Backend.URL, &backend.ClientOptions{
		Timeout:     c.Config.BackendTimeout(),
		RateLimiter: retry.NewRateLimiter(c.Config.Backend.RequestsPerSecond, c.Config.Backend.Burst),
		InitData:    initData,
	})
}

// Pending returns the store for the captured inbound referral code.
func (c *CommandContext) Pending() *referral.FileStore {
	return referral.NewFileStore(c.Config.PendingReferralPath())
}

// Provider returns a wallet provider whose connector persists its session
// under the home directory. chooser answers the connection modal.
func (c *CommandContext) Provider(chooser wallet.Chooser) *wallet.Provider {
	session := wallet.NewFileSession(c.Config.WalletSessionPath())
	return wallet.NewProvider(func() (wallet.Connector, error) {
		return wallet.NewMemoryConnector(wallet.MemoryOptions{
			Chooser:   chooser,
			Session:   session,
			WalletApp: "memeindex-cli",
		})
	})
}

// SessionAddress returns the address of the stored wallet session.
func (c *CommandContext) SessionAddress() (wallet.Address, error) {
	acct, ok, err := wallet.NewFileSession(c.Config.WalletSessionPath()).Load()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.ErrNotConnected
	}
	return acct.Address, nil
}

// RetryPolicy returns the configured registration retry policy.
func (c *CommandContext) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Config.Registration.MaxAttempts,
		BaseDelay:   c.Config.RetryBaseDelay(),
		MaxDelay:    c.Config.RetryMaxDelay(),
	}
}

// promptChooser reads the approved address from in, as the wallet app would
// hand it back. An empty line dismisses the modal.
func promptChooser(in io.Reader, prompt io.Writer) wallet.Chooser {
	return func(_ context.Context) (wallet.Address, error) {
		out(prompt, "Wallet address: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", wallet.ErrModalDismissed
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return "", wallet.ErrModalDismissed
		}
		return wallet.ParseAddress(line)
	}
}

// fixedChooser approves addr without prompting.
func fixedChooser(addr wallet.Address) wallet.Chooser {
	return func(context.Context) (wallet.Address, error) {
		return addr, nil
	}
}

const missingIdentityHint = "Run 'memeindex connect' with --user-id and --username, or --init-data"

// LaunchStore persists the launch parameters given to connect so later
// commands act for the same identity.
type LaunchStore interface {
	Load() (host.LaunchParams, bool, error)
	Save(p host.LaunchParams) error
}

// FileLaunchStore is a LaunchStore backed by a JSON file.
type FileLaunchStore struct {
	path string
}

type launchFile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// NewFileLaunchStore creates a launch store at path.
func NewFileLaunchStore(path string) *FileLaunchStore {
	return &FileLaunchStore{path: path}
}

// Load reads the launch parameters.
func (s *FileLaunchStore) Load() (host.LaunchParams, bool, error) {
	var f launchFile
	found, err := fileutil.ReadJSON(s.path, &f)
	if err != nil || !found {
		return host.LaunchParams{}, false, err
	}
	return host.LaunchParams{
		Identity: host.Identity{
			ID:        f.ID,
			Username:  f.Username,
			FirstName: f.FirstName,
			LastName:  f.LastName,
		},
	}, true, nil
}

// Save writes the launch identity. The start parameter belongs to a single
// launch and is not kept.
func (s *FileLaunchStore) Save(p host.LaunchParams) error {
	return fileutil.WriteJSON(s.path, launchFile{
		ID:        p.Identity.ID,
		Username:  p.Identity.Username,
		FirstName: p.Identity.FirstName,
		LastName:  p.Identity.LastName,
	}, 0o600)
}

// identity returns the stored launch identity or ErrMissingIdentity.
func (c *CommandContext) identity() (host.LaunchParams, error) {
	p, ok, err := c.Launch.Load()
	if err != nil {
		return host.LaunchParams{}, err
	}
	if !ok || p.Identity.IsZero() {
		return host.LaunchParams{}, apperr.WithSuggestion(apperr.ErrMissingIdentity, missingIdentityHint)
	}
	return p, nil
}

// out is a helper for CLI output that ignores write errors (standard pattern for CLI tools).
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}
