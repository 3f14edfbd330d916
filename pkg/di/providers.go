package di

import (
	"context"
	"fmt"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/compress"
	"github.com/StrathCole/fee-oracle/pkg/config"
	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/notify/kafka"
	"github.com/StrathCole/fee-oracle/pkg/quality"
	"github.com/StrathCole/fee-oracle/pkg/server/aggregator"
	"github.com/StrathCole/fee-oracle/pkg/server/api"
	"github.com/StrathCole/fee-oracle/pkg/server/sources"
	"github.com/StrathCole/fee-oracle/pkg/storage"
	"github.com/StrathCole/fee-oracle/pkg/storage/clickhouse"
	"github.com/StrathCole/fee-oracle/pkg/storage/memory"
	"github.com/StrathCole/fee-oracle/pkg/storage/postgres"
	"github.com/StrathCole/fee-oracle/pkg/storage/redis"
)

const (
	schemaTimeout  = 10 * time.Second
	reloadInterval = 5 * time.Second
)

// ConfigPath is the file watched by the reloader.
type ConfigPath string

// ObservationStore holds the local observation window.
type ObservationStore interface {
	Append(ctx context.Context, obs fees.Observation) error
	GetFreshObservations(ctx context.Context, symbol string, maxAge time.Duration) ([]fees.Observation, error)
	ActiveSymbols(ctx context.Context) ([]string, error)
}

// HotStores are the low-latency stores. Latest and Health are nil for the
// memory tier.
type HotStores struct {
	Observations ObservationStore
	History      quality.HistoryStore
	Latest       storage.LatestPointer
	Health       api.HealthCheck
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// ProvideCodec creates the record payload codec.
func ProvideCodec(cfg *config.Config) (*compress.Codec, func(), error) {
	alg, err := compress.ParseAlgorithm(cfg.Storage.Compression)
	if err != nil {
		return nil, nil, fmt.Errorf("codec: %w", err)
	}
	codec, err := compress.NewCodec(alg, cfg.Storage.CompressionMinSize)
	if err != nil {
		return nil, nil, fmt.Errorf("codec: %w", err)
	}
	return codec, codec.Close, nil
}

// ProvideHotStores creates the observation window, mean history and latest
// pointer on the configured hot backend.
func ProvideHotStores(ctx context.Context, cfg *config.Config, codec *compress.Codec, logger *logging.Logger) (*HotStores, func(), error) {
	st := cfg.Storage
	if st.Hot != "redis" {
		return &HotStores{
			Observations: memory.NewObservationStore(memory.WithRetention(st.ObservationRetention)),
			History:      memory.NewHistoryStore(memory.WithMaxLen(cfg.Quality.MaxHistory)),
		}, func() {}, nil
	}

	client, err := redis.NewClient(ctx,
		redis.WithAddr(st.Redis.Addr),
		redis.WithPassword(st.Redis.Password),
		redis.WithDB(st.Redis.DB),
		redis.WithPool(st.Redis.PoolSize, 2, 30*time.Second),
		redis.WithPrefix(st.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis client: %w", err)
	}
	logger.Info("Using Redis hot tier", "addr", st.Redis.Addr, "prefix", st.Redis.Prefix)

	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Redis client", "error", err)
		}
	}
	return &HotStores{
		Observations: redis.NewObservationStore(client, st.ObservationRetention, logger),
		History:      redis.NewHistoryStore(client, cfg.Quality.MaxHistory, logger),
		Latest:       redis.NewLatestStore(client, codec),
		Health:       client.Health,
	}, cleanup, nil
}

// ProvideRecordSeries creates the durable record series and its schema.
func ProvideRecordSeries(ctx context.Context, cfg *config.Config, codec *compress.Codec, logger *logging.Logger) (storage.RecordSeries, func(), error) {
	switch cfg.Storage.Durable {
	case "clickhouse":
		ch := cfg.Storage.ClickHouse
		client, err := clickhouse.NewClient(ctx,
			clickhouse.WithHost(ch.Host),
			clickhouse.WithPort(ch.Port),
			clickhouse.WithDatabase(ch.Database),
			clickhouse.WithCredentials(ch.Username, ch.Password),
			clickhouse.WithMaxConnections(ch.MaxConns, (ch.MaxConns+1)/2),
			clickhouse.WithTimeouts(ch.DialTimeout, 10*time.Second),
			clickhouse.WithHTTP(ch.HTTP),
			clickhouse.WithAsyncInsert(ch.AsyncInsert, true),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}

		schemaCtx, cancel := context.WithTimeout(ctx, schemaTimeout)
		defer cancel()
		if err := client.InitSchema(schemaCtx, clickhouse.Schema); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		logger.Info("Using ClickHouse record store", "host", ch.Host, "database", ch.Database)

		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close ClickHouse client", "error", err)
			}
		}
		return clickhouse.NewRecordStore(client, codec, logger), cleanup, nil

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.NewRecordStore(pool, codec, logger)

		schemaCtx, cancel := context.WithTimeout(ctx, schemaTimeout)
		defer cancel()
		if err := store.InitSchema(schemaCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		logger.Info("Using PostgreSQL record store")
		return store, pool.Close, nil

	default:
		logger.Warn("Using in-memory record store, records are lost on restart")
		return memory.NewRecordStore(), func() {}, nil
	}
}

// ProvideResultStore layers the latest pointer over the durable series.
func ProvideResultStore(series storage.RecordSeries, hot *HotStores, logger *logging.Logger) *storage.Tiered {
	return storage.NewTiered(series, hot.Latest, logger)
}

// ProvideReloader creates the configuration reloader for path.
func ProvideReloader(path ConfigPath, cfg *config.Config, logger *logging.Logger) *config.Reloader {
	return config.NewReloader(string(path), cfg, reloadInterval, logger)
}

// ProvideWeightTable creates the source weight table and keeps it in step
// with reloaded configuration.
func ProvideWeightTable(reloader *config.Reloader, logger *logging.Logger) (*quality.WeightTable, error) {
	table, err := quality.NewWeightTable(reloader.Current().Weights)
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	reloader.OnChange(func(_, next *config.Config) {
		if err := table.Apply(next.Weights); err != nil {
			logger.Error("Failed to apply reloaded weights", "error", err)
		}
	})
	return table, nil
}

// ProvideObservationSource merges the local window with enabled upstreams.
// Without upstreams the local store is used directly.
func ProvideObservationSource(cfg *config.Config, hot *HotStores, logger *logging.Logger) (aggregator.ObservationSource, error) {
	upstreams := cfg.EnabledUpstreams()
	if len(upstreams) == 0 {
		return hot.Observations, nil
	}

	list := []sources.Source{sources.NewNamed("local", hot.Observations)}
	for _, u := range upstreams {
		src, err := sources.Create(u.Type, u.Name, u.Config, logger)
		if err != nil {
			return nil, fmt.Errorf("upstream %s: %w", u.Name, err)
		}
		logger.Info("Registered upstream", "name", u.Name, "type", u.Type)
		list = append(list, src)
	}
	return sources.NewMerged(logger, list...), nil
}

// ProvideSymbolLister returns the configured symbols, or every symbol in the
// local window when none are configured.
func ProvideSymbolLister(cfg *config.Config, hot *HotStores) aggregator.SymbolLister {
	if len(cfg.Symbols) > 0 {
		return aggregator.StaticSymbols(cfg.Symbols)
	}
	return hot.Observations
}

// ProvideHub creates the WebSocket hub, or nil when it is disabled.
func ProvideHub(cfg *config.Config, logger *logging.Logger) (*api.Hub, func()) {
	if !cfg.Server.Enabled || !cfg.Server.WebSocket {
		return nil, func() {}
	}
	hub := api.NewHub(logger)
	return hub, hub.Close
}

// ProvideNotifier fans records out to the hub and the Kafka publisher.
func ProvideNotifier(cfg *config.Config, hub *api.Hub, logger *logging.Logger) (aggregator.Notifier, func(), error) {
	var sinks []aggregator.Notifier
	cleanup := func() {}

	if hub != nil {
		sinks = append(sinks, hub)
	}

	if k := cfg.Notify.Kafka; k.Enabled {
		pub, err := kafka.NewPublisher(logger,
			kafka.WithBrokers(k.Brokers...),
			kafka.WithTopic(k.Topic),
			kafka.WithCompression(k.Compression),
			kafka.WithRequiredAcks(k.RequiredAcks()),
			kafka.WithAsync(k.Async),
			kafka.WithWriteTimeout(k.WriteTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka publisher: %w", err)
		}
		sinks = append(sinks, pub)
		cleanup = func() {
			if err := pub.Close(); err != nil {
				logger.Warn("Failed to close Kafka publisher", "error", err)
			}
		}
	}

	return aggregator.NewMultiNotifier(sinks...), cleanup, nil
}

// ProvideEngine creates the aggregation engine. Settings are read from the
// reloader on every tick.
func ProvideEngine(
	reloader *config.Reloader,
	source aggregator.ObservationSource,
	symbols aggregator.SymbolLister,
	store *storage.Tiered,
	hot *HotStores,
	weights *quality.WeightTable,
	notifier aggregator.Notifier,
	logger *logging.Logger,
) (*aggregator.Engine, error) {
	return aggregator.NewEngine(aggregator.Deps{
		Source:   source,
		Symbols:  symbols,
		Store:    store,
		History:  hot.History,
		Weights:  weights,
		Notifier: notifier,
	}, func() aggregator.Settings {
		return EngineSettings(reloader.Current())
	}, logger)
}

// ProvideAPIServer creates the HTTP API, or nil when it is disabled. Remote
// backends are checked by /health.
func ProvideAPIServer(
	cfg *config.Config,
	engine *aggregator.Engine,
	store *storage.Tiered,
	series storage.RecordSeries,
	weights *quality.WeightTable,
	hot *HotStores,
	hub *api.Hub,
	logger *logging.Logger,
) *api.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	h := api.NewHandler(engine, store, weights, hot.Observations, hub, logger)
	if hot.Health != nil {
		h.AddHealthCheck(cfg.Storage.Hot, hot.Health)
	}
	if hc, ok := series.(healthChecker); ok {
		h.AddHealthCheck(cfg.Storage.Durable, hc.Health)
	}
	return api.NewServer(cfg.Server.Addr, h, logger)
}
