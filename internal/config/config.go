package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	StoreDriver     string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	SQLitePath      string        `mapstructure:"SQLITE_PATH"`
	NERURL          string        `mapstructure:"NER_URL"`
	OCRURL          string        `mapstructure:"OCR_URL"`
	ModelTimeout    time.Duration `mapstructure:"MODEL_TIMEOUT"`
	DocumentTimeout time.Duration `mapstructure:"DOCUMENT_TIMEOUT"`
	BatchWorkers    int           `mapstructure:"BATCH_WORKERS"`
	MappingsFile    string        `mapstructure:"MAPPINGS_FILE"`
	MaxFileSize     int64         `mapstructure:"MAX_FILE_SIZE"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string        `mapstructure:"AUTH_AUDIENCE"`
}

var keys = []string{
	"PORT", "ENV", "STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"SQLITE_PATH", "NER_URL", "OCR_URL", "MODEL_TIMEOUT", "DOCUMENT_TIMEOUT",
	"BATCH_WORKERS", "MAPPINGS_FILE", "MAX_FILE_SIZE", "AUTH_SIGNING_KEY",
	"AUTH_ISSUER", "AUTH_AUDIENCE",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SQLITE_PATH", "intake.db")
	v.SetDefault("MODEL_TIMEOUT", "30s")
	v.SetDefault("DOCUMENT_TIMEOUT", "2m")
	v.SetDefault("BATCH_WORKERS", 4)
	v.SetDefault("MAX_FILE_SIZE", 100<<20)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether the HTTP API requires bearer tokens.
func (c *Config) AuthEnabled() bool {
	return c.AuthSigningKey != ""
}

// Validate checks that the configuration can run the pipeline and, when
// forServer is set, the HTTP API.
func (c *Config) Validate(forServer bool) error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", DriverSQLite)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q, %q or %q, got %q",
			DriverMemory, DriverSQLite, DriverPostgres, c.StoreDriver)
	}

	if c.BatchWorkers <= 0 {
		return fmt.Errorf("BATCH_WORKERS must be positive, got %d", c.BatchWorkers)
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be positive, got %s", c.ModelTimeout)
	}
	if c.DocumentTimeout <= 0 {
		return fmt.Errorf("DOCUMENT_TIMEOUT must be positive, got %s", c.DocumentTimeout)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	if c.DBMinConns > c.DBMaxConns && c.DBMaxConns > 0 {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if forServer {
		if c.IsProduction() && !c.AuthEnabled() {
			return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
		}
		if c.AuthEnabled() && len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
		}
	}
	return nil
}
