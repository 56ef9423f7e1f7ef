// Package config loads datastore configuration from the environment and
// an optional braid.yaml file.
package config

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rohankatakam/braid/internal/errors"
)

// Config holds all configuration settings
type Config struct {
	// DSN is the postgres connection string; opaque to the datastore.
	DSN string `mapstructure:"dsn"`

	// PoolSize is the maximum number of pooled connections. Zero or
	// negative means the default of min(cpu count, 128).
	PoolSize int32 `mapstructure:"pool_size"`

	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug"`
}

// Load reads configuration in precedence order: environment variables
// (BRAID_DSN, BRAID_POOL_SIZE, BRAID_DEBUG), then braid.yaml in the
// working directory. A .env file is loaded first if present.
func Load() (*Config, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("BRAID")
	v.AutomaticEnv()
	_ = v.BindEnv("dsn")
	_ = v.BindEnv("pool_size")
	_ = v.BindEnv("debug")
	v.SetDefault("pool_size", 0)
	v.SetDefault("debug", false)

	v.SetConfigName("braid")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "unmarshal config")
	}

	if cfg.DSN == "" {
		return nil, errors.ConfigError("BRAID_DSN is required")
	}

	return &cfg, nil
}
