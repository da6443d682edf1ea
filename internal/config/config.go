// Package config provides YAML-based configuration loading for PostPilot.
// Non-secret settings live in postpilot.yaml; credentials come only from
// the environment (optionally seeded from a .env file).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level PostPilot configuration, loaded from postpilot.yaml.
type Config struct {
	Platform string         `yaml:"platform"` // "telegram", "discord" or "slack"
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Slack    SlackConfig    `yaml:"slack"`
	DB       DBConfig       `yaml:"db"`
	Dialogue DialogueConfig `yaml:"dialogue"`
	Backend  BackendConfig  `yaml:"backend"`
	Health   HealthConfig   `yaml:"health"`

	Secrets Secrets `yaml:"-"`
}

// TelegramConfig holds Telegram-specific settings.
type TelegramConfig struct {
	// Channel is the channel users must be members of to use the bot,
	// e.g. "@expert_buyanov".
	Channel string `yaml:"channel"`
	// ChannelURL is the invite link offered to non-members.
	ChannelURL string `yaml:"channel_url"`
}

// DiscordConfig holds Discord-specific settings.
type DiscordConfig struct {
	ChannelID string `yaml:"channel_id"` // default channel to post to
}

// SlackConfig holds Slack-specific settings.
type SlackConfig struct {
	ChannelID string `yaml:"channel_id"`
}

// DBConfig selects and configures the persistence backend.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
}

// DialogueConfig tunes the conversation engine.
type DialogueConfig struct {
	// MinExamples is how many reference posts a user must provide before
	// plan generation is allowed.
	MinExamples int `yaml:"min_examples"`
	// PlanDays is the length of the generated content calendar.
	PlanDays int `yaml:"plan_days"`
	// IdleTimeoutMin evicts sessions with no activity for this many minutes.
	IdleTimeoutMin int `yaml:"idle_timeout_min"`
	// EvictEvery is a cron expression ("@every 10m" style) for the
	// idle-session sweep.
	EvictEvery string `yaml:"evict_every"`
}

// BackendConfig tunes the generative text backend.
type BackendConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// HealthConfig configures the HTTP health/stats server.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// Secrets holds credentials read from the environment. They are never
// written to or read from YAML.
type Secrets struct {
	TelegramBotToken string
	DiscordBotToken  string
	SlackAppToken    string
	SlackBotToken    string
	OpenAIAPIKey     string
	SessionSecret    string
}

// Load reads a YAML config file from path, merges environment secrets,
// and returns a validated Config. A .env file in the working directory
// is loaded first if present (a missing .env is not an error).
func Load(path string) (*Config, error) {
	godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Secrets = secretsFromEnv()
	if err := cfg.validateSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse unmarshals YAML bytes into a validated Config. Secrets are not
// populated; callers that need them use Load.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func secretsFromEnv() Secrets {
	return Secrets{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DiscordBotToken:  os.Getenv("DISCORD_BOT_TOKEN"),
		SlackAppToken:    os.Getenv("SLACK_APP_TOKEN"),
		SlackBotToken:    os.Getenv("SLACK_BOT_TOKEN"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "telegram"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "postpilot.db"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Database == "" {
		c.DB.Database = "postpilot"
	}
	if c.DB.User == "" {
		c.DB.User = "root"
	}
	if c.Dialogue.MinExamples == 0 {
		c.Dialogue.MinExamples = 1
	}
	if c.Dialogue.PlanDays == 0 {
		c.Dialogue.PlanDays = 14
	}
	if c.Dialogue.IdleTimeoutMin == 0 {
		c.Dialogue.IdleTimeoutMin = 120
	}
	if c.Dialogue.EvictEvery == "" {
		c.Dialogue.EvictEvery = "@every 10m"
	}
	if c.Backend.Model == "" {
		c.Backend.Model = "gpt-4o"
	}
	if c.Backend.Temperature == 0 {
		c.Backend.Temperature = 0.7
	}
	if c.Backend.TimeoutSec == 0 {
		c.Backend.TimeoutSec = 90
	}
	if c.Health.Port == 0 {
		c.Health.Port = 8081
	}
}

// validate checks that all required non-secret fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Platform {
	case "telegram":
		if c.Telegram.Channel == "" {
			errs = append(errs, "telegram.channel is required")
		}
	case "discord", "slack":
		// Channel IDs are optional; adapters route per-message.
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported (telegram, discord, slack)", c.Platform))
	}
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite, mysql)", c.DB.Driver))
	}
	if c.Dialogue.MinExamples < 1 {
		errs = append(errs, "dialogue.min_examples must be >= 1")
	}
	if c.Dialogue.PlanDays < 1 {
		errs = append(errs, "dialogue.plan_days must be >= 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateSecrets checks that every credential the selected platform needs
// is present in the environment. A missing credential is fatal at startup.
func (c *Config) validateSecrets() error {
	var missing []string
	switch c.Platform {
	case "telegram":
		if c.Secrets.TelegramBotToken == "" {
			missing = append(missing, "TELEGRAM_BOT_TOKEN")
		}
	case "discord":
		if c.Secrets.DiscordBotToken == "" {
			missing = append(missing, "DISCORD_BOT_TOKEN")
		}
	case "slack":
		if c.Secrets.SlackAppToken == "" {
			missing = append(missing, "SLACK_APP_TOKEN")
		}
		if c.Secrets.SlackBotToken == "" {
			missing = append(missing, "SLACK_BOT_TOKEN")
		}
	}
	if c.Secrets.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Secrets.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment: %s", strings.Join(missing, ", "))
	}
	return nil
}
