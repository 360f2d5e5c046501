package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"parkpass/internal/models"

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
	Exports    ExportConfig     `yaml:"exports"`
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
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BookingConfig carries the pricing policy constants.
type BookingConfig struct {
	FullRefundAdvanceMinutes int   `yaml:"full_refund_advance_minutes"`
	PenaltyRatePerHour       int64 `yaml:"penalty_rate_per_hour"`
	MaxBookingHorizonDays    int   `yaml:"max_booking_horizon_days"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment wins over file values either way.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
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
	if c.Booking.PenaltyRatePerHour < 0 {
		return errors.New("booking.penalty_rate_per_hour must not be negative")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth.enabled requires at least one api key")
	}
	return nil
}

// ValidateCatalog rejects catalog files with missing or duplicate ids.
func ValidateCatalog(lots []models.Lot) error {
	lotIDs := make(map[int64]bool)
	slotIDs := make(map[int64]bool)
	for _, lot := range lots {
		if lot.ID == 0 {
			return fmt.Errorf("lot '%s' has invalid ID 0", lot.Name)
		}
		if lotIDs[lot.ID] {
			return fmt.Errorf("duplicate lot ID found: %d", lot.ID)
		}
		lotIDs[lot.ID] = true

		for _, slot := range lot.Slots {
			if slot.ID == 0 {
				return fmt.Errorf("slot '%s' in lot %d has invalid ID 0", slot.Label, lot.ID)
			}
			if slotIDs[slot.ID] {
				return fmt.Errorf("duplicate slot ID found: %d", slot.ID)
			}
			slotIDs[slot.ID] = true
		}
	}
	return nil
}

// Policy converts the raw config numbers into the policy the write paths use.
func (c *Config) Policy() models.BookingPolicy {
	policy := models.DefaultBookingPolicy()
	if c.Booking.FullRefundAdvanceMinutes > 0 {
		policy.FullRefundAdvance = time.Duration(c.Booking.FullRefundAdvanceMinutes) * time.Minute
	}
	if c.Booking.PenaltyRatePerHour > 0 {
		policy.PenaltyRatePerHour = c.Booking.PenaltyRatePerHour
	}
	return policy
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Booking.FullRefundAdvanceMinutes == 0 {
		c.Booking.FullRefundAdvanceMinutes = int(models.DefaultFullRefundAdvance / time.Minute)
	}
	if c.Booking.PenaltyRatePerHour == 0 {
		c.Booking.PenaltyRatePerHour = models.DefaultPenaltyRatePerHour
	}
	if c.Booking.MaxBookingHorizonDays == 0 {
		c.Booking.MaxBookingHorizonDays = models.MaxBookingHorizonDays
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
