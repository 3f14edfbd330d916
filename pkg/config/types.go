package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Aggregation AggregationConfig  `yaml:"aggregation"`
	Quality     QualityConfig      `yaml:"quality"`
	Weights     map[string]float64 `yaml:"weights"`
	Symbols     []string           `yaml:"symbols"` // empty: every symbol seen in the observation window
	Storage     StorageConfig      `yaml:"storage"`
	Upstreams   []UpstreamConfig   `yaml:"upstreams"`
	Notify      NotifyConfig       `yaml:"notify"`
	Server      ServerConfig       `yaml:"server"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// AggregationConfig configures the scheduler and the pipeline.
type AggregationConfig struct {
	Interval            time.Duration `yaml:"interval" default:"30s" validate:"gt=0"`
	SymbolTimeout       time.Duration `yaml:"symbol_timeout" validate:"gte=0"` // zero: half the interval
	MaxDataAge          time.Duration `yaml:"max_data_age" default:"5m" validate:"gt=0"`
	StalenessThreshold  time.Duration `yaml:"staleness_threshold" default:"2m" validate:"gt=0"`
	MinSources          int           `yaml:"min_sources" default:"3" validate:"gte=1"`
	ExpectedSources     int           `yaml:"expected_sources" validate:"required,gt=0"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" default:"0.6" validate:"gte=0,lte=1"`
	PrimaryField        string        `yaml:"primary_field" default:"maker" validate:"oneof=maker taker"`
	MaxWorkers          int           `yaml:"max_workers" default:"8" validate:"gte=1"`
}

// QualityConfig configures outlier and anomaly detection.
type QualityConfig struct {
	OutlierThreshold float64       `yaml:"outlier_threshold" default:"2.0" validate:"gt=0"`
	IQRMultiplier    float64       `yaml:"iqr_multiplier" default:"1.5" validate:"gt=0"`
	MinHistory       int           `yaml:"min_history" default:"999" validate:"gte=1"`
	MaxHistory       int           `yaml:"max_history" default:"1000" validate:"gte=1"`
	Penalties        PenaltyConfig `yaml:"penalties"`
}

// PenaltyConfig holds the confidence multipliers. A zero value takes the default.
type PenaltyConfig struct {
	InsufficientSources float64 `yaml:"insufficient_sources" default:"0.5" validate:"gt=0,lte=1"`
	StaleData           float64 `yaml:"stale_data" default:"0.8" validate:"gt=0,lte=1"`
	Outliers            float64 `yaml:"outliers" default:"0.9" validate:"gt=0,lte=1"`
	ValidationFailed    float64 `yaml:"validation_failed" default:"0.5" validate:"gt=0,lte=1"`
	Anomaly             float64 `yaml:"anomaly" default:"0.7" validate:"gt=0,lte=1"`
}

// StorageConfig selects the hot and durable backends.
type StorageConfig struct {
	// Hot holds the observation window, mean history and latest pointer.
	Hot string `yaml:"hot" default:"memory" validate:"oneof=memory redis"`
	// Durable holds the record series.
	Durable              string           `yaml:"durable" default:"memory" validate:"oneof=memory clickhouse postgres"`
	Compression          string           `yaml:"compression" default:"zstd" validate:"oneof=none gzip zstd s2"`
	CompressionMinSize   int              `yaml:"compression_min_size" default:"256" validate:"gte=0"`
	ObservationRetention time.Duration    `yaml:"observation_retention" default:"1h" validate:"gt=0"`
	Redis                RedisConfig      `yaml:"redis"`
	ClickHouse           ClickHouseConfig `yaml:"clickhouse"`
	Postgres             PostgresConfig   `yaml:"postgres"`
}

// RedisConfig configures the Redis hot tier.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"20" validate:"gte=1"`
	Prefix   string `yaml:"prefix" default:"fee-oracle"`
}

// ClickHouseConfig configures the ClickHouse record series.
type ClickHouseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port" default:"9000"`
	Database    string        `yaml:"database" default:"fee_oracle"`
	Username    string        `yaml:"username" default:"default"`
	Password    string        `yaml:"password"`
	MaxConns    int           `yaml:"max_conns" default:"10" validate:"gte=1"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	HTTP        bool          `yaml:"http"`
	AsyncInsert bool          `yaml:"async_insert"`
}

// PostgresConfig configures the PostgreSQL record series.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns" default:"10" validate:"gte=1"`
}

// UpstreamConfig configures a remote observation source.
type UpstreamConfig struct {
	Type    string                 `yaml:"type" default:"http"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// NotifyConfig configures notification sinks.
type NotifyConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"fee-oracle.aggregated"`
	Compression  string        `yaml:"compression" default:"zstd" validate:"oneof=gzip snappy lz4 zstd"`
	Acks         string        `yaml:"acks" default:"all" validate:"oneof=all leader none"`
	Async        bool          `yaml:"async"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

// RequiredAcks maps Acks onto the Kafka ack level.
func (k KafkaConfig) RequiredAcks() int {
	switch k.Acks {
	case "leader":
		return 1
	case "none":
		return 0
	default:
		return -1
	}
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr" default:":8080"`
	WebSocket bool   `yaml:"websocket"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":9091"`
	Path    string `yaml:"path" default:"/metrics"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json text"`
	Output string `yaml:"output" default:"stdout"`
}

// EffectiveSymbolTimeout returns the per-symbol timeout, defaulting to half
// the interval.
func (a AggregationConfig) EffectiveSymbolTimeout() time.Duration {
	if a.SymbolTimeout > 0 {
		return a.SymbolTimeout
	}
	return a.Interval / 2
}
