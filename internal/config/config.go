package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Business     BusinessConfig     `yaml:"business"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Compliance   ComplianceConfig   `yaml:"compliance"`
	Campaign     CampaignConfig     `yaml:"campaign"`
	Transport    TransportConfig    `yaml:"transport"`
	Reports      ReportsConfig      `yaml:"reports"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	LogLevel string `yaml:"log_level"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres connection settings for the record store.
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// RedisConfig holds Redis settings for the attempt counter and run locks.
// When disabled, the in-memory counter is used (single-process only).
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// BusinessConfig holds salon identity and timezone settings.
type BusinessConfig struct {
	SalonName string `yaml:"salon_name"`
	Phone     string `yaml:"phone"`
	Timezone  string `yaml:"timezone"`
}

// Location resolves the business timezone, falling back to UTC.
func (c BusinessConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SegmentationConfig holds the externally tunable segment thresholds.
type SegmentationConfig struct {
	VIPMinVisits      int     `yaml:"vip_min_visits"`
	VIPMinSpend       float64 `yaml:"vip_min_spend"`
	RegularMinVisits  int     `yaml:"regular_min_visits"`
	RecencyWindowDays int     `yaml:"recency_window_days"`
	LapsedAfterDays   int     `yaml:"lapsed_after_days"`
}

// ComplianceConfig holds consent, quiet-hour, and retention settings.
type ComplianceConfig struct {
	QuietStartHour    int      `yaml:"quiet_start_hour"` // e.g. 20 for 20:00
	QuietEndHour      int      `yaml:"quiet_end_hour"`   // e.g. 9 for 09:00
	MaxAttemptsPerDay int      `yaml:"max_attempts_per_day"`
	RetentionDays     int      `yaml:"retention_days"`
	OptOutKeywords    []string `yaml:"opt_out_keywords"`
	CascadeOptOut     bool     `yaml:"cascade_opt_out"` // SMS STOP also opts out calls
}

// CampaignConfig holds scheduling and dispatch settings.
type CampaignConfig struct {
	SlotHours         []int   `yaml:"slot_hours"` // contact window slot starts, local time
	DispatchWorkers   int     `yaml:"dispatch_workers"`
	DispatchPerSecond float64 `yaml:"dispatch_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
	RetryCooldownSecs int     `yaml:"retry_cooldown_seconds"`
	DefaultChannel    string  `yaml:"default_channel"`
	RunLockTTLMinutes int     `yaml:"run_lock_ttl_minutes"`
}

// RetryCooldown returns the inter-retry cooldown as a duration.
func (c CampaignConfig) RetryCooldown() time.Duration {
	return time.Duration(c.RetryCooldownSecs) * time.Second
}

// RunLockTTL returns the campaign run lock TTL as a duration.
func (c CampaignConfig) RunLockTTL() time.Duration {
	return time.Duration(c.RunLockTTLMinutes) * time.Minute
}

// TransportConfig holds the contact transport (call/SMS provider) settings.
type TransportConfig struct {
	BaseURL        string `yaml:"base_url"`
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	FromNumber     string `yaml:"from_number"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Mock           bool   `yaml:"mock"` // log instead of calling the provider
}

// Timeout returns the configured timeout as a duration
func (c TransportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReportsConfig holds report scheduling and SES mail delivery settings.
type ReportsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ManagerEmail string `yaml:"manager_email"`
	FromEmail    string `yaml:"from_email"`
	SESRegion    string `yaml:"ses_region"`
	SESAccessKey string `yaml:"ses_access_key"`
	SESSecretKey string `yaml:"ses_secret_key"`
	DailyCron    string `yaml:"daily_cron"`
	WeeklyCron   string `yaml:"weekly_cron"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Business.Timezone == "" {
		cfg.Business.Timezone = "America/New_York"
	}
	if cfg.Segmentation.VIPMinVisits == 0 {
		cfg.Segmentation.VIPMinVisits = 10
	}
	if cfg.Segmentation.VIPMinSpend == 0 {
		cfg.Segmentation.VIPMinSpend = 500
	}
	if cfg.Segmentation.RegularMinVisits == 0 {
		cfg.Segmentation.RegularMinVisits = 3
	}
	if cfg.Segmentation.RecencyWindowDays == 0 {
		cfg.Segmentation.RecencyWindowDays = 90
	}
	if cfg.Segmentation.LapsedAfterDays == 0 {
		cfg.Segmentation.LapsedAfterDays = 90
	}
	if cfg.Compliance.QuietStartHour == 0 {
		cfg.Compliance.QuietStartHour = 20
	}
	if cfg.Compliance.QuietEndHour == 0 {
		cfg.Compliance.QuietEndHour = 9
	}
	if cfg.Compliance.MaxAttemptsPerDay == 0 {
		cfg.Compliance.MaxAttemptsPerDay = 2
	}
	if cfg.Compliance.RetentionDays == 0 {
		cfg.Compliance.RetentionDays = 365
	}
	if len(cfg.Compliance.OptOutKeywords) == 0 {
		cfg.Compliance.OptOutKeywords = []string{"STOP", "UNSUBSCRIBE", "REMOVE", "QUIT"}
	}
	if len(cfg.Campaign.SlotHours) == 0 {
		cfg.Campaign.SlotHours = []int{10, 14}
	}
	if cfg.Campaign.DispatchWorkers == 0 {
		cfg.Campaign.DispatchWorkers = 4
	}
	if cfg.Campaign.DispatchPerSecond == 0 {
		cfg.Campaign.DispatchPerSecond = 1
	}
	if cfg.Campaign.MaxRetries == 0 {
		cfg.Campaign.MaxRetries = 2
	}
	if cfg.Campaign.RetryCooldownSecs == 0 {
		cfg.Campaign.RetryCooldownSecs = 4 * 3600
	}
	if cfg.Campaign.DefaultChannel == "" {
		cfg.Campaign.DefaultChannel = "call"
	}
	if cfg.Campaign.RunLockTTLMinutes == 0 {
		cfg.Campaign.RunLockTTLMinutes = 30
	}
	if cfg.Transport.TimeoutSeconds == 0 {
		cfg.Transport.TimeoutSeconds = 30
	}
	if cfg.Reports.SESRegion == "" {
		cfg.Reports.SESRegion = "us-east-1"
	}
	if cfg.Reports.DailyCron == "" {
		cfg.Reports.DailyCron = "0 8 * * *"
	}
	if cfg.Reports.WeeklyCron == "" {
		cfg.Reports.WeeklyCron = "0 9 * * 1"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Compliance.QuietStartHour < 0 || c.Compliance.QuietStartHour > 23 {
		return fmt.Errorf("quiet_start_hour out of range: %d", c.Compliance.QuietStartHour)
	}
	if c.Compliance.QuietEndHour < 0 || c.Compliance.QuietEndHour > 23 {
		return fmt.Errorf("quiet_end_hour out of range: %d", c.Compliance.QuietEndHour)
	}
	for _, h := range c.Campaign.SlotHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("slot hour out of range: %d", h)
		}
	}
	if ch := c.Campaign.DefaultChannel; ch != "call" && ch != "sms" {
		return fmt.Errorf("default_channel must be call or sms, got %q", ch)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
		cfg.Database.Enabled = true
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("TRANSPORT_BASE_URL"); v != "" {
		cfg.Transport.BaseURL = v
	}
	if v := os.Getenv("TRANSPORT_ACCOUNT_SID"); v != "" {
		cfg.Transport.AccountSID = v
	}
	if v := os.Getenv("TRANSPORT_AUTH_TOKEN"); v != "" {
		cfg.Transport.AuthToken = v
	}
	if v := os.Getenv("TRANSPORT_FROM_NUMBER"); v != "" {
		cfg.Transport.FromNumber = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Reports.SESAccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Reports.SESSecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Reports.SESRegion = v
	}
	if v := os.Getenv("MANAGER_EMAIL"); v != "" {
		cfg.Reports.ManagerEmail = v
	}
	if v := os.Getenv("MAX_ATTEMPTS_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Compliance.MaxAttemptsPerDay = n
		}
	}
	if v := os.Getenv("OPT_OUT_KEYWORDS"); v != "" {
		var kws []string
		for _, kw := range strings.Split(v, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) > 0 {
			cfg.Compliance.OptOutKeywords = kws
		}
	}

	return cfg, nil
}
