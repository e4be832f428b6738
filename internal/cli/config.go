package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/memeindex/memeindex/internal/config"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify memeindex configuration settings.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.memeindex/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.

Example:
  memeindex config init
  memeindex config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration, after environment overrides.

Example:
  memeindex config show
  memeindex config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value by its dot-separated path.

Examples:
  memeindex config get backend.url
  memeindex config get registration.lookup_key
  memeindex config get logging.level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value by its dot-separated path.
The configuration file is updated immediately.

Examples:
  memeindex config set backend.url http://127.0.0.1:8787
  memeindex config set registration.max_attempts 5
  memeindex config set countdown.ends_at 2026-12-31T00:00:00Z`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

// configKey reads and writes one setting addressed by a dot path.
type configKey struct {
	get func(c *config.Config) string
	set func(c *config.Config, value string) error
}

//nolint:gochecknoglobals // static lookup table
var configKeys = map[string]configKey{
	"home": {
		get: func(c *config.Config) string { return c.Home },
		set: func(c *config.Config, v string) error { c.Home = v; return nil },
	},
	"backend.url": {
		get: func(c *config.Config) string { return c.Backend.URL },
		set: func(c *config.Config, v string) error { c.Backend.URL = config.SanitizeURL(v); return nil },
	},
	"backend.timeout_seconds": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Backend.TimeoutSeconds) },
		set: intSetter("backend.timeout_seconds", 1, 60, func(c *config.Config, n int) { c.Backend.TimeoutSeconds = n }),
	},
	"registration.lookup_key": {
		get: func(c *config.Config) string { return c.Registration.LookupKey },
		set: oneOf("registration.lookup_key", []string{config.LookupByLaunchID, config.LookupByAddress},
			func(c *config.Config, v string) { c.Registration.LookupKey = v }),
	},
	"registration.max_attempts": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Registration.MaxAttempts) },
		set: intSetter("registration.max_attempts", 1, 20, func(c *config.Config, n int) { c.Registration.MaxAttempts = n }),
	},
	"referral.invite_goal": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Referral.InviteGoal) },
		set: intSetter("referral.invite_goal", 1, 1000, func(c *config.Config, n int) { c.Referral.InviteGoal = n }),
	},
	"bot.username": {
		get: func(c *config.Config) string { return c.Bot.Username },
		set: func(c *config.Config, v string) error {
			c.Bot.Username = strings.TrimPrefix(strings.TrimSpace(v), "@")
			return nil
		},
	},
	"output.default_format": {
		get: func(c *config.Config) string { return c.Output.DefaultFormat },
		set: oneOf("output.default_format", []string{"text", "json", "auto"},
			func(c *config.Config, v string) { c.Output.DefaultFormat = v }),
	},
	"output.color": {
		get: func(c *config.Config) string { return c.Output.Color },
		set: oneOf("output.color", []string{"auto", "always", "never"},
			func(c *config.Config, v string) { c.Output.Color = v }),
	},
	"output.verbose": {
		get: func(c *config.Config) string { return strconv.FormatBool(c.Output.Verbose) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return invalidValue("output.verbose", v, "true or false")
			}
			c.Output.Verbose = b
			return nil
		},
	},
	"logging.level": {
		get: func(c *config.Config) string { return c.Logging.Level },
		set: oneOf("logging.level", []string{"off", "error", "warn", "info", "debug"},
			func(c *config.Config, v string) { c.Logging.Level = v }),
	},
	"logging.file": {
		get: func(c *config.Config) string { return c.Logging.File },
		set: func(c *config.Config, v string) error { c.Logging.File = v; return nil },
	},
	"countdown.ends_at": {
		get: func(c *config.Config) string { return c.Countdown.EndsAt },
		set: func(c *config.Config, v string) error {
			prev := c.Countdown.EndsAt
			c.Countdown.EndsAt = v
			if _, ok := c.CountdownDeadline(); !ok && v != "" {
				c.Countdown.EndsAt = prev
				return invalidValue("countdown.ends_at", v, "an RFC 3339 timestamp")
			}
			return nil
		},
	},
}

func intSetter(path string, lo, hi int, apply func(*config.Config, int)) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < lo || n > hi {
			return invalidValue(path, v, fmt.Sprintf("an integer between %d and %d", lo, hi))
		}
		apply(c, n)
		return nil
	}
}

func oneOf(path string, valid []string, apply func(*config.Config, string)) func(*config.Config, string) error {
	return func(c *config.Config, v string) error {
		v = strings.ToLower(strings.TrimSpace(v))
		for _, ok := range valid {
			if v == ok {
				apply(c, v)
				return nil
			}
		}
		return invalidValue(path, v, strings.Join(valid, ", "))
	}
}

func invalidValue(path, value, valid string) error {
	return apperr.WithDetails(apperr.ErrConfigInvalid, map[string]string{
		"key":   path,
		"value": value,
		"valid": valid,
	})
}

func lookupConfigKey(path string) (configKey, error) {
	k, ok := configKeys[path]
	if !ok {
		return configKey{}, apperr.WithSuggestion(
			apperr.WithDetails(apperr.ErrUnknownConfigKey, map[string]string{"path": path}),
			"Known keys: "+strings.Join(configKeyNames(), ", "),
		)
	}
	return k, nil
}

func configKeyNames() []string {
	names := make([]string, 0, len(configKeys))
	for name := range configKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath := config.Path(config.ExpandHome(cfg.Home))

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return apperr.WithSuggestion(
			apperr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = cfg.Home

	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - backend.url: MemeIndex backend base URL")
	outln(w, "  - registration.lookup_key: launch_id or address")
	outln(w, "  - countdown.ends_at: Countdown deadline (RFC 3339)")
	outln(w, "  - logging.level: Log level (off/error/warn/info/debug)")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	shown := *cfg
	if shown.Bot.Token != "" {
		shown.Bot.Token = maskSecret(shown.Bot.Token)
	}
	if shown.Analytics.Token != "" {
		shown.Analytics.Token = maskSecret(shown.Analytics.Token)
	}

	return formatterFor(cmd.OutOrStdout()).Result(configView(&shown), func(w io.Writer) error {
		data, err := yaml.Marshal(&shown)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}

// configView flattens c into its dot-path keys for JSON output.
func configView(c *config.Config) map[string]string {
	view := make(map[string]string, len(configKeys)+1)
	for name, k := range configKeys {
		view[name] = k.get(c)
	}
	if c.Bot.Token != "" {
		view["bot.token"] = c.Bot.Token
	}
	return view
}

func maskSecret(s string) string {
	if len(s) >= 4 {
		return s[:4] + "..."
	}
	return "***..."
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	k, err := lookupConfigKey(args[0])
	if err != nil {
		return err
	}

	outln(cmd.OutOrStdout(), k.get(cfg))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, value := args[0], args[1]

	k, err := lookupConfigKey(path)
	if err != nil {
		return err
	}

	configPath := config.Path(config.ExpandHome(cfg.Home))
	current, err := config.Load(configPath)
	if err != nil {
		if !apperr.Is(err, apperr.ErrConfigNotFound) {
			return err
		}
		current = config.Defaults()
		current.Home = cfg.Home
	}

	if err := k.set(current, value); err != nil {
		return err
	}
	if _, err := current.Validate(); err != nil {
		return err
	}

	if err := config.Save(current, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", path, k.get(current))
	return nil
}
