package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// LoadEnv loads environment files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path, expands ${VAR} references, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid path: %w", ErrReadConfig, err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}
	return Parse(data)
}

// Parse builds a validated configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseConfig, err)
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("%w: defaults: %w", ErrParseConfig, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	agg := cfg.Aggregation
	if agg.SymbolTimeout > agg.Interval {
		return fmt.Errorf("%w: %w: %s > %s", ErrInvalidConfig, ErrSymbolTimeout, agg.SymbolTimeout, agg.Interval)
	}
	if cfg.Quality.MaxHistory < cfg.Quality.MinHistory {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrHistoryBounds)
	}

	for source, w := range cfg.Weights {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("%w: %w: %s=%v", ErrInvalidConfig, ErrInvalidWeight, source, w)
		}
	}

	for _, symbol := range cfg.Symbols {
		parts := strings.Split(symbol, "/")
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrInvalidSymbol, symbol)
		}
	}

	switch cfg.Storage.Durable {
	case "clickhouse":
		if cfg.Storage.ClickHouse.Host == "" {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrClickHouseHostRequired)
		}
	case "postgres":
		if cfg.Storage.Postgres.DSN == "" {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrPostgresDSNRequired)
		}
	}

	if cfg.Notify.Kafka.Enabled && len(cfg.Notify.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrKafkaBrokersRequired)
	}

	for i, up := range cfg.Upstreams {
		if up.Name == "" {
			return fmt.Errorf("%w: upstream %d: %w", ErrInvalidConfig, i, ErrUpstreamNameRequired)
		}
	}

	return nil
}

// EnabledUpstreams returns the upstreams with enabled set.
func (c *Config) EnabledUpstreams() []UpstreamConfig {
	var out []UpstreamConfig
	for _, up := range c.Upstreams {
		if up.Enabled {
			if up.Type == "" {
				up.Type = "http"
			}
			out = append(out, up)
		}
	}
	return out
}
