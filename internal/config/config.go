// Package config provides YAML-based configuration loading for printdesk.
// Secrets may be supplied through PRINTDESK_* environment variables instead
// of the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "PRINTDESK"

// Config is the top-level printdesk configuration, loaded from printdesk.yaml.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	LLM       LLMConfig       `yaml:"llm"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Storage   StorageConfig   `yaml:"storage"`
	Turns     TurnsConfig     `yaml:"turns"`
	Staff     StaffConfig     `yaml:"staff"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port               int      `yaml:"port"`
	AdminKey           string   `yaml:"admin_key"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	MaxUploadMB        int64    `yaml:"max_upload_mb"`
}

// DatabaseConfig selects and configures the conversation store backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// WhatsAppConfig points at the Evolution API instance used for messaging.
type WhatsAppConfig struct {
	APIURL         string  `yaml:"api_url"`
	APIKey         string  `yaml:"api_key"`
	Instance       string  `yaml:"instance"`
	SendTimeoutSec int     `yaml:"send_timeout_sec"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
}

// LLMConfig configures the OpenAI-compatible chat and embedding endpoint.
type LLMConfig struct {
	APIBase        string  `yaml:"api_base"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSec     int     `yaml:"timeout_sec"`
}

// KnowledgeConfig configures retrieval against the pgvector knowledge base.
// An empty DatabaseURL disables retrieval.
type KnowledgeConfig struct {
	DatabaseURL    string  `yaml:"database_url"`
	TopK           int     `yaml:"top_k"`
	MatchThreshold float64 `yaml:"match_threshold"`
	TimeoutSec     int     `yaml:"timeout_sec"`
}

// StorageConfig is the afs root URL under which attachments are stored,
// e.g. file:///var/lib/printdesk/files. A plain path is a local directory.
type StorageConfig struct {
	RootURL string `yaml:"root_url"`
}

// TurnsConfig tunes the debounce scheduler, watchdog and orchestrator.
type TurnsConfig struct {
	DebounceMS           int `yaml:"debounce_ms"`
	InactivityWarningSec int `yaml:"inactivity_warning_sec"`
	InactivityCloseSec   int `yaml:"inactivity_close_sec"`
	HistoryLimit         int `yaml:"history_limit"`
	FileWindowMin        int `yaml:"file_window_min"`
}

// StaffConfig selects where new-order alerts for the shop staff go.
// An empty Platform disables alerts.
type StaffConfig struct {
	Platform     string `yaml:"platform"` // "slack" or "discord"
	Channel      string `yaml:"channel"`
	SlackToken   string `yaml:"slack_token"`
	DiscordToken string `yaml:"discord_token"`
}

// AuditConfig schedules the conversation auditor.
type AuditConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Cron         string `yaml:"cron"`
	LookbackDays int    `yaml:"lookback_days"`
}

// Debounce returns the quiet period after which a burst settles.
func (t TurnsConfig) Debounce() time.Duration {
	return time.Duration(t.DebounceMS) * time.Millisecond
}

// WarnAfter returns the inactivity warning delay.
func (t TurnsConfig) WarnAfter() time.Duration {
	return time.Duration(t.InactivityWarningSec) * time.Second
}

// CloseAfter returns the delay between the warning and the session close.
func (t TurnsConfig) CloseAfter() time.Duration {
	return time.Duration(t.InactivityCloseSec) * time.Second
}

// FileWindow returns how far back unclaimed uploads count for a new order.
func (t TurnsConfig) FileWindow() time.Duration {
	return time.Duration(t.FileWindowMin) * time.Minute
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Environment
// overrides are applied before defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays secrets and endpoints from PRINTDESK_* variables.
func (c *Config) applyEnv() {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	overrides := []struct {
		key string
		dst *string
	}{
		{"whatsapp_api_url", &c.WhatsApp.APIURL},
		{"whatsapp_api_key", &c.WhatsApp.APIKey},
		{"whatsapp_instance", &c.WhatsApp.Instance},
		{"llm_api_key", &c.LLM.APIKey},
		{"llm_api_base", &c.LLM.APIBase},
		{"knowledge_database_url", &c.Knowledge.DatabaseURL},
		{"database_password", &c.Database.Password},
		{"admin_key", &c.Server.AdminKey},
		{"slack_token", &c.Staff.SlackToken},
		{"discord_token", &c.Staff.DiscordToken},
		{"log_level", &c.LogLevel},
	}
	for _, o := range overrides {
		if s := v.GetString(o.key); s != "" {
			*o.dst = s
		}
	}
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 20
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "printdesk.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.WhatsApp.SendTimeoutSec == 0 {
		c.WhatsApp.SendTimeoutSec = 15
	}
	if c.WhatsApp.RatePerSec == 0 {
		c.WhatsApp.RatePerSec = 5
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 60
	}
	if c.Knowledge.TopK == 0 {
		c.Knowledge.TopK = 3
	}
	if c.Knowledge.MatchThreshold == 0 {
		c.Knowledge.MatchThreshold = 0.5
	}
	if c.Knowledge.TimeoutSec == 0 {
		c.Knowledge.TimeoutSec = 5
	}
	if c.Storage.RootURL == "" {
		c.Storage.RootURL = "./data/files"
	}
	if c.Turns.DebounceMS == 0 {
		c.Turns.DebounceMS = 4000
	}
	if c.Turns.InactivityWarningSec == 0 {
		c.Turns.InactivityWarningSec = 300
	}
	if c.Turns.InactivityCloseSec == 0 {
		c.Turns.InactivityCloseSec = 600
	}
	if c.Turns.HistoryLimit == 0 {
		c.Turns.HistoryLimit = 10
	}
	if c.Turns.FileWindowMin == 0 {
		c.Turns.FileWindowMin = 120
	}
	if c.Audit.Cron == "" {
		c.Audit.Cron = "0 23 * * *"
	}
	if c.Audit.LookbackDays == 0 {
		c.Audit.LookbackDays = 1
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite":
	case "mysql":
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.WhatsApp.APIURL == "" {
		errs = append(errs, "whatsapp.api_url is required")
	}
	if c.WhatsApp.Instance == "" {
		errs = append(errs, "whatsapp.instance is required")
	}
	if c.Turns.DebounceMS < 0 || c.Turns.InactivityWarningSec < 0 || c.Turns.InactivityCloseSec < 0 {
		errs = append(errs, "turns delays must not be negative")
	}
	switch strings.ToLower(c.Staff.Platform) {
	case "":
	case "slack":
		if c.Staff.SlackToken == "" {
			errs = append(errs, "staff.slack_token is required for slack")
		}
	case "discord":
		if c.Staff.DiscordToken == "" {
			errs = append(errs, "staff.discord_token is required for discord")
		}
	default:
		errs = append(errs, fmt.Sprintf("staff.platform %q is not supported", c.Staff.Platform))
	}
	if c.Staff.Platform != "" && c.Staff.Channel == "" {
		errs = append(errs, "staff.channel is required when staff.platform is set")
	}
	if c.Audit.Enabled {
		if _, err := cron.ParseStandard(c.Audit.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("audit.cron: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
