// Package config loads, validates and hot-reloads the fee-oracle configuration.
package config

import "errors"

var (
	// ErrReadConfig indicates that the configuration file could not be read.
	ErrReadConfig = errors.New("failed to read config file")
	// ErrParseConfig indicates malformed YAML.
	ErrParseConfig = errors.New("failed to parse config")
	// ErrInvalidConfig indicates a configuration that failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidWeight indicates a source weight outside [0,1].
	ErrInvalidWeight = errors.New("weight must be within [0,1]")
	// ErrInvalidSymbol indicates a symbol not in BASE/QUOTE form.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrHistoryBounds indicates max_history below min_history.
	ErrHistoryBounds = errors.New("max_history must be >= min_history")
	// ErrSymbolTimeout indicates a symbol timeout longer than the interval.
	ErrSymbolTimeout = errors.New("symbol_timeout must not exceed interval")
	// ErrKafkaBrokersRequired indicates kafka notifications without brokers.
	ErrKafkaBrokersRequired = errors.New("kafka brokers are required when kafka is enabled")
	// ErrClickHouseHostRequired indicates the clickhouse backend without a host.
	ErrClickHouseHostRequired = errors.New("clickhouse host is required")
	// ErrPostgresDSNRequired indicates the postgres backend without a DSN.
	ErrPostgresDSNRequired = errors.New("postgres dsn is required")
	// ErrUpstreamNameRequired indicates an upstream without a name.
	ErrUpstreamNameRequired = errors.New("upstream name is required")
)
