package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// validate is a package-level, concurrency-safe validator instance.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds all driver configuration, loaded from environment
// variables. The migration engine itself (internal/migrate) takes no
// configuration beyond its Options struct; everything here is ambient
// wiring the cmd/syn2mas driver needs to construct those options.
type Config struct {
	// SourceDatabaseURL is the Synapse database to read from.
	SourceDatabaseURL string `env:"SYN2MAS_SOURCE_DATABASE_URL" validate:"required"`

	// DestDatabaseURL is the MAS database to write into.
	DestDatabaseURL string `env:"SYN2MAS_DEST_DATABASE_URL" validate:"required"`

	// ServerName is the Matrix server name every source user ID is
	// validated against, e.g. "matrix.example.org".
	ServerName string `env:"SYN2MAS_SERVER_NAME" validate:"required"`

	// ProviderMappingPath points at a JSON file mapping Synapse
	// auth_provider strings to destination upstream-provider UUIDs. May be
	// empty if the homeserver has no upstream OAuth providers configured.
	ProviderMappingPath string `env:"SYN2MAS_PROVIDER_MAPPING_PATH"`

	// BatchSize overrides the write-buffer flush threshold. Zero means
	// "use migrate.DefaultBatchSize".
	BatchSize int `env:"SYN2MAS_BATCH_SIZE" envDefault:"0"`

	// Logging
	LogLevel  string `env:"SYN2MAS_LOG_LEVEL" envDefault:"info" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `env:"SYN2MAS_LOG_FORMAT" envDefault:"json" validate:"omitempty,oneof=json text"`

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint exposed while the migration runs. Empty disables it.
	MetricsAddr string `env:"SYN2MAS_METRICS_ADDR" envDefault:":9090"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
