package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"slotbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

// BookingConfig tunes slot generation and the commit path.
type BookingConfig struct {
	SlotGranularityMinutes int `yaml:"slot_granularity_minutes"`
	// MinNoticeMinutes is a pointer so that an explicit 0 disables the notice period.
	MinNoticeMinutes  *int          `yaml:"min_notice_minutes"`
	MaxBookingDays    int           `yaml:"max_booking_days"`
	SlotCacheTTL      time.Duration `yaml:"slot_cache_ttl"`
	SlotPageLimit     int           `yaml:"slot_page_limit"`
	StoreTimeout      time.Duration `yaml:"store_timeout"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	HoldSweepInterval time.Duration `yaml:"hold_sweep_interval"`
	HoldRetention     time.Duration `yaml:"hold_retention"`
}

// MinNotice returns the configured notice period in minutes.
func (b BookingConfig) MinNotice() int {
	if b.MinNoticeMinutes == nil {
		return models.DefaultMinNoticeMinutes
	}
	return *b.MinNoticeMinutes
}

type CatalogConfig struct {
	// Path of a YAML seed file loaded into the store at startup. Empty disables seeding.
	Path string `yaml:"path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPort    int    `yaml:"prometheus_port"`
	HealthCheckPort   int    `yaml:"health_check_port"`
	LogLevel          string `yaml:"log_level"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if !models.ValidGranularity(c.Booking.SlotGranularityMinutes) {
		return fmt.Errorf("booking.slot_granularity_minutes must be one of %v", models.AllowedGranularities)
	}
	if c.Booking.MinNotice() < 0 {
		return errors.New("booking.min_notice_minutes must not be negative")
	}
	if c.Booking.MaxBookingDays <= 0 {
		return errors.New("booking.max_booking_days must be positive")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key found for '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled && c.API.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Booking defaults
	b := &c.Booking
	if b.SlotGranularityMinutes == 0 {
		b.SlotGranularityMinutes = models.DefaultSlotGranularityMinutes
	}
	if b.MaxBookingDays == 0 {
		b.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if b.SlotCacheTTL == 0 {
		b.SlotCacheTTL = models.DefaultSlotCacheTTL * time.Second
	}
	if b.SlotPageLimit == 0 {
		b.SlotPageLimit = models.DefaultSlotPageLimit
	}
	if b.StoreTimeout == 0 {
		b.StoreTimeout = 5 * time.Second
	}
	if b.LockTTL == 0 {
		b.LockTTL = 10 * time.Second
	}
	if b.HoldSweepInterval == 0 {
		b.HoldSweepInterval = 5 * time.Minute
	}
	if b.HoldRetention == 0 {
		b.HoldRetention = 24 * time.Hour
	}
}
