package config

// DefaultBackendURL is the production MemeIndex backend.
const DefaultBackendURL = "https://api.memeindex.app"

// DefaultBotUsername is the bot that hosts the mini-app.
const DefaultBotUsername = "MemeIndexBot"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.memeindex",
		Backend: BackendConfig{
			URL:               DefaultBackendURL,
			TimeoutSeconds:    10,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Analytics: AnalyticsConfig{
			AppName: "memeindex",
		},
		Bot: BotConfig{
			Username: DefaultBotUsername,
		},
		Registration: RegistrationConfig{
			LookupKey:   LookupByLaunchID,
			MaxAttempts: 3,
			BaseDelayMS: 500,
			MaxDelayMS:  4000,
		},
		Referral: ReferralConfig{
			InviteGoal: 10,
		},
		Tasks: TasksConfig{
			VerifyDelayMS: 2000,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.memeindex/memeindex.log",
		},
	}
}
