// Package config loads the settings of the mkt tool.
//
// Settings come, by increasing priority, from defaults, an optional YAML
// file, and MARKETDATA_* environment variables. Command-line flags are applied
// on top by the caller.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. MARKETDATA_STORE.
const EnvPrefix = "MARKETDATA"

// Config holds the settings of a run.
type Config struct {
	Store       string        `mapstructure:"store"`        // path of the CSV table
	Provider    string        `mapstructure:"provider"`     // yahoo or eodhd
	EODHDAPIKey string        `mapstructure:"eodhd_api_key"` // falls back to EODHD_API_KEY
	Lookback    int           `mapstructure:"lookback_days"`
	Warmup      int           `mapstructure:"warmup_days"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Cache       bool          `mapstructure:"cache"`
	Concurrency int           `mapstructure:"concurrency"`
}

// setDefaults registers default values, they also make every key known to
// viper so that environment variables are picked up by Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store", "market_data.csv")
	v.SetDefault("provider", "yahoo")
	v.SetDefault("eodhd_api_key", "")
	v.SetDefault("lookback_days", 7)
	v.SetDefault("warmup_days", 10)
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("cache", false)
	v.SetDefault("concurrency", 4)
}

// Load reads the configuration. An empty path means no file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	var errs error
	if c.Store == "" {
		errs = errors.Join(errs, errors.New("store path is empty"))
	}
	switch c.Provider {
	case "yahoo", "eodhd":
	default:
		errs = errors.Join(errs, fmt.Errorf("unsupported provider %q, want yahoo or eodhd", c.Provider))
	}
	if c.Lookback < 0 || c.Warmup < 0 {
		errs = errors.Join(errs, errors.New("lookback_days and warmup_days must not be negative"))
	}
	if c.Timeout <= 0 {
		errs = errors.Join(errs, errors.New("timeout must be positive"))
	}
	return errs
}
