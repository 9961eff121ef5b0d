package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v2"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/validation"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	OPNsense OPNsenseConfig
	Devices  DevicesConfig
	Sync     SyncConfig
	API      APIConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/access-control.db"`
}

// OPNsenseConfig holds appliance connection settings.
type OPNsenseConfig struct {
	URL       string        `env:"OPNSENSE_URL"`
	APIKey    string        `env:"OPNSENSE_API_KEY"`
	APIToken  string        `env:"OPNSENSE_API_TOKEN"`
	Alias     string        `env:"OPNSENSE_ALIAS"`
	VerifyTLS bool          `env:"OPNSENSE_VERIFY_TLS" envDefault:"false"`
	Timeout   time.Duration `env:"OPNSENSE_TIMEOUT" envDefault:"10s"`
	FileShim  string        `env:"OPNSENSE_FILE_SHIM"` // Path to file for testing shim (disables real API)
}

// Appliance returns the connection details as a domain value.
func (c *OPNsenseConfig) Appliance() domain.Appliance {
	return domain.Appliance{
		BaseURL:  strings.TrimRight(c.URL, "/"),
		APIKey:   c.APIKey,
		APIToken: c.APIToken,
	}
}

// DevicesConfig selects where switches come from.
type DevicesConfig struct {
	File           string `env:"DEVICES_FILE"`
	DiscoverLeases bool   `env:"DEVICES_DISCOVER_LEASES" envDefault:"false"`
}

// SyncConfig holds polling and retry behavior.
type SyncConfig struct {
	PollInterval         time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	ConfirmDelay         time.Duration `env:"CONFIRM_DELAY" envDefault:"5s"`
	RetryMaxAttempts     int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryInitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"500ms"`
	RetryMaxInterval     time.Duration `env:"RETRY_MAX_INTERVAL" envDefault:"5s"`
	RefreshConcurrency   int           `env:"REFRESH_CONCURRENCY" envDefault:"4"`
}

// APIConfig holds the REST API settings.
type APIConfig struct {
	Token string `env:"API_TOKEN"` // empty disables bearer auth
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.OPNsense); err != nil {
		return nil, fmt.Errorf("parsing opnsense config: %w", err)
	}
	if err := env.Parse(&cfg.Devices); err != nil {
		return nil, fmt.Errorf("parsing devices config: %w", err)
	}
	if err := env.Parse(&cfg.Sync); err != nil {
		return nil, fmt.Errorf("parsing sync config: %w", err)
	}
	if err := env.Parse(&cfg.API); err != nil {
		return nil, fmt.Errorf("parsing api config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// If using file shim, appliance credentials are not required
	if c.OPNsense.FileShim == "" {
		if c.OPNsense.URL == "" {
			return fmt.Errorf("OPNSENSE_URL is required (or set OPNSENSE_FILE_SHIM for testing)")
		}
		if !strings.HasPrefix(c.OPNsense.URL, "http://") && !strings.HasPrefix(c.OPNsense.URL, "https://") {
			return fmt.Errorf("OPNSENSE_URL must start with http:// or https://")
		}
		if c.OPNsense.APIKey == "" {
			return fmt.Errorf("OPNSENSE_API_KEY is required (or set OPNSENSE_FILE_SHIM for testing)")
		}
		if c.OPNsense.APIToken == "" {
			return fmt.Errorf("OPNSENSE_API_TOKEN is required (or set OPNSENSE_FILE_SHIM for testing)")
		}
	}
	if err := validation.ValidateAliasName(c.OPNsense.Alias); err != nil {
		return fmt.Errorf("OPNSENSE_ALIAS: %w", err)
	}
	if c.OPNsense.Timeout <= 0 {
		return fmt.Errorf("OPNSENSE_TIMEOUT must be positive")
	}

	if c.Devices.File == "" && !c.Devices.DiscoverLeases {
		return fmt.Errorf("DEVICES_FILE or DEVICES_DISCOVER_LEASES is required")
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.Database.Driver)
	}

	if c.Sync.PollInterval < 0 {
		return fmt.Errorf("POLL_INTERVAL must not be negative")
	}
	if c.Sync.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Sync.RefreshConcurrency < 1 {
		return fmt.Errorf("REFRESH_CONCURRENCY must be at least 1")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}

	return nil
}

// UseFileShim returns true if the file shim should be used instead of the real API.
func (c *Config) UseFileShim() bool {
	return c.OPNsense.FileShim != ""
}

type devicesFile struct {
	Devices []domain.Device `yaml:"devices"`
}

// LoadDevices reads and validates the static devices file.
func LoadDevices(path string) ([]domain.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading devices file: %w", err)
	}

	var f devicesFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parsing devices file: %w", err)
	}

	var errs validation.ValidationErrors
	seen := make(map[string]bool, len(f.Devices))
	for i, d := range f.Devices {
		field := fmt.Sprintf("devices[%d]", i)
		errs = append(errs, validation.ValidateDevice(field, d.Name, d.Address)...)
		if seen[d.Name] {
			errs.Add(field+".name", d.Name, "duplicate device name")
		}
		seen[d.Name] = true
	}
	if errs.HasErrors() {
		return nil, fmt.Errorf("invalid devices file %s: %w", path, errs)
	}
	return f.Devices, nil
}
