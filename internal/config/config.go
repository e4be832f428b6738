// Package config provides configuration management for memeindex.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/memeindex/memeindex/internal/fileutil"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// Registration lookup keys.
const (
	LookupByLaunchID = "launch_id"
	LookupByAddress  = "address"
)

// Config represents the application configuration.
type Config struct {
	Version      int                `yaml:"version"`
	Home         string             `yaml:"home"`
	Backend      BackendConfig      `yaml:"backend"`
	Analytics    AnalyticsConfig    `yaml:"analytics"`
	Bot          BotConfig          `yaml:"bot"`
	Registration RegistrationConfig `yaml:"registration"`
	Referral     ReferralConfig     `yaml:"referral"`
	Tasks        TasksConfig        `yaml:"tasks"`
	Countdown    CountdownConfig    `yaml:"countdown"`
	Output       OutputConfig       `yaml:"output"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// BackendConfig defines how to reach the REST backend.
type BackendConfig struct {
	URL               string  `yaml:"url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// AnalyticsConfig identifies the app to the analytics collector.
type AnalyticsConfig struct {
	Token   string `yaml:"token"`
	AppName string `yaml:"app_name"`
}

// BotConfig defines the messaging bot. The token is only meaningful for the
// development server; client profiles should leave it empty.
type BotConfig struct {
	Username string `yaml:"username"`
	Token    string `yaml:"token,omitempty"`
}

// RegistrationConfig controls the registration lookup and retry policy.
type RegistrationConfig struct {
	LookupKey   string `yaml:"lookup_key"`
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelayMS int    `yaml:"base_delay_ms"`
	MaxDelayMS  int    `yaml:"max_delay_ms"`
}

// ReferralConfig defines the invite flow settings.
type ReferralConfig struct {
	InviteGoal  int    `yaml:"invite_goal"`
	PendingFile string `yaml:"pending_file"`
}

// TasksConfig defines task checklist settings.
type TasksConfig struct {
	VerifyDelayMS int `yaml:"verify_delay_ms"`
}

// CountdownConfig defines the countdown deadline.
type CountdownConfig struct {
	EndsAt string `yaml:"ends_at"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.WithCause(apperr.ErrConfigNotFound, err)
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperr.WithCause(apperr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks the configuration for values the client cannot work with.
// It returns warnings for settings that are legal but unsafe.
func (c *Config) Validate() (warnings []string, err error) {
	u, parseErr := url.Parse(c.Backend.URL)
	if parseErr != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperr.WithDetails(apperr.ErrConfigInvalid, map[string]string{
			"backend.url": c.Backend.URL,
		})
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperr.WithDetails(apperr.ErrConfigInvalid, map[string]string{
			"backend.url": "scheme must be http or https",
		})
	}

	switch c.Registration.LookupKey {
	case LookupByLaunchID, LookupByAddress:
	default:
		return nil, apperr.WithDetails(apperr.ErrConfigInvalid, map[string]string{
			"registration.lookup_key": c.Registration.LookupKey,
		})
	}

	if c.Registration.MaxAttempts < 1 {
		return nil, apperr.WithDetails(apperr.ErrConfigInvalid, map[string]string{
			"registration.max_attempts": fmt.Sprintf("%d", c.Registration.MaxAttempts),
		})
	}

	if c.Countdown.EndsAt != "" {
		if _, err := time.Parse(time.RFC3339, c.Countdown.EndsAt); err != nil {
			return nil, apperr.WithDetails(apperr.ErrConfigInvalid, map[string]string{
				"countdown.ends_at": c.Countdown.EndsAt,
			})
		}
	}

	if c.Bot.Token != "" {
		warnings = append(warnings, "bot.token is set; the bot token is a server-side secret and must not ship in client builds")
	}
	if u.Scheme == "http" && !isLocalHost(u.Hostname()) {
		warnings = append(warnings, "backend.url uses plain http for a non-local host")
	}

	return warnings, nil
}

// BackendTimeout returns the per-request backend timeout.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the initial backoff between registration attempts.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Registration.BaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap between registration attempts.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Registration.MaxDelayMS) * time.Millisecond
}

// VerifyDelay returns the delay between opening a join link and verifying it.
func (c *Config) VerifyDelay() time.Duration {
	return time.Duration(c.Tasks.VerifyDelayMS) * time.Millisecond
}

// CountdownDeadline returns the configured deadline, if any.
func (c *Config) CountdownDeadline() (time.Time, bool) {
	if c.Countdown.EndsAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, c.Countdown.EndsAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// PendingReferralPath returns the path of the cached pending referral code.
func (c *Config) PendingReferralPath() string {
	if c.Referral.PendingFile != "" {
		return ExpandHome(c.Referral.PendingFile)
	}
	return filepath.Join(ExpandHome(c.Home), "pending_referral.json")
}

// WalletSessionPath returns the path where the wallet connector keeps its session.
func (c *Config) WalletSessionPath() string {
	return filepath.Join(ExpandHome(c.Home), "wallet_session.json")
}

// GetHome returns the memeindex home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetBackendURL returns the backend base URL.
func (c *Config) GetBackendURL() string {
	return c.Backend.URL
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default memeindex home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memeindex"
	}
	return filepath.Join(home, ".memeindex")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
