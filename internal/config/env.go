package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome           = "MEMEINDEX_HOME"
	EnvBackendURL     = "MEMEINDEX_BACKEND_URL"
	EnvBackendTimeout = "MEMEINDEX_BACKEND_TIMEOUT"
	EnvAnalyticsToken = "MEMEINDEX_ANALYTICS_TOKEN" // #nosec G101 -- false positive, this is a const name not a credential
	EnvAppName        = "MEMEINDEX_APP_NAME"
	EnvBotToken       = "MEMEINDEX_BOT_TOKEN" // #nosec G101 -- false positive, this is a const name not a credential
	EnvBotUsername    = "MEMEINDEX_BOT_USERNAME"
	EnvLookupKey      = "MEMEINDEX_LOOKUP_KEY"
	EnvOutputFormat   = "MEMEINDEX_OUTPUT_FORMAT"
	EnvVerbose        = "MEMEINDEX_VERBOSE"
	EnvLogLevel       = "MEMEINDEX_LOG_LEVEL"
	EnvNoColor        = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.URL = SanitizeURL(v)
	}

	// Timeouts outside 1..60s are ignored
	if v := os.Getenv(EnvBackendTimeout); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 && secs <= 60 {
			cfg.Backend.TimeoutSeconds = secs
		}
	}

	if v := os.Getenv(EnvAnalyticsToken); v != "" {
		cfg.Analytics.Token = v
	}

	if v := os.Getenv(EnvAppName); v != "" {
		cfg.Analytics.AppName = v
	}

	if v := os.Getenv(EnvBotToken); v != "" {
		cfg.Bot.Token = v
	}

	if v := os.Getenv(EnvBotUsername); v != "" {
		cfg.Bot.Username = strings.TrimPrefix(strings.TrimSpace(v), "@")
	}

	if v := os.Getenv(EnvLookupKey); v != "" {
		cfg.Registration.LookupKey = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL trims whitespace, surrounding quotes and trailing slashes from
// a user-provided base URL so paths can be appended to it.
func SanitizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimRight(s, "/")
}
