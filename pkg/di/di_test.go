package di

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/fee-oracle/pkg/config"
	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/server/aggregator"
	"github.com/StrathCole/fee-oracle/pkg/server/sources"
	"github.com/StrathCole/fee-oracle/pkg/storage"
	"github.com/StrathCole/fee-oracle/pkg/storage/memory"
)

const baseConfig = `
aggregation:
  interval: 1m
  expected_sources: 4
  primary_field: taker
quality:
  min_history: 10
  penalties:
    anomaly: 0.6
weights:
  binance: 0.8
`

func loadConfig(t *testing.T, body string) (string, *config.Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return path, cfg
}

func TestEngineSettings(t *testing.T) {
	_, cfg := loadConfig(t, baseConfig)

	s := EngineSettings(cfg)
	assert.Equal(t, time.Minute, s.Interval)
	assert.Equal(t, 30*time.Second, s.SymbolTimeout)
	assert.Equal(t, 4, s.ExpectedSources)
	assert.Equal(t, fees.FieldTaker, s.PrimaryField)
	assert.Equal(t, 10, s.MinHistory)
	assert.Equal(t, 0.6, s.Penalties.Anomaly)
	assert.Equal(t, 0.5, s.Penalties.InsufficientSources)
}

func TestInitializeApp_Memory(t *testing.T) {
	path, cfg := loadConfig(t, baseConfig)

	app, cleanup, err := InitializeApp(context.Background(), ConfigPath(path), cfg, logging.NewNoopLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, app.Engine)
	assert.Nil(t, app.Server, "API is disabled by default")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return !app.Engine.Status().LastTick.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestInitializeApp_WithAPI(t *testing.T) {
	path, cfg := loadConfig(t, baseConfig+`
server:
  enabled: true
  addr: 127.0.0.1:0
  websocket: true
`)

	app, cleanup, err := InitializeApp(context.Background(), ConfigPath(path), cfg, logging.NewNoopLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, app.Server)
}

func TestProvideWeightTable_FollowsReload(t *testing.T) {
	path, cfg := loadConfig(t, baseConfig)
	reloader := ProvideReloader(ConfigPath(path), cfg, logging.NewNoopLogger())

	table, err := ProvideWeightTable(reloader, logging.NewNoopLogger())
	require.NoError(t, err)
	assert.Equal(t, 0.8, table.WeightOf("binance"))

	require.NoError(t, os.WriteFile(path, []byte(`
aggregation:
  expected_sources: 4
weights:
  binance: 0.3
`), 0o600))
	require.NoError(t, reloader.Reload())
	assert.Equal(t, 0.3, table.WeightOf("binance"))
}

func TestProvideObservationSource(t *testing.T) {
	hot := &HotStores{Observations: memory.NewObservationStore(), History: memory.NewHistoryStore()}

	_, cfg := loadConfig(t, baseConfig)
	src, err := ProvideObservationSource(cfg, hot, logging.NewNoopLogger())
	require.NoError(t, err)
	assert.Same(t, hot.Observations, src)

	_, cfg = loadConfig(t, baseConfig+`
upstreams:
  - name: peer
    enabled: true
    config:
      url: http://peer.internal:8080
  - name: off
    config:
      url: http://off.internal:8080
`)
	src, err = ProvideObservationSource(cfg, hot, logging.NewNoopLogger())
	require.NoError(t, err)
	assert.IsType(t, &sources.Merged{}, src)

	_, cfg = loadConfig(t, baseConfig+`
upstreams:
  - name: broken
    enabled: true
    config: {}
`)
	_, err = ProvideObservationSource(cfg, hot, logging.NewNoopLogger())
	assert.ErrorIs(t, err, sources.ErrInvalidConfig)
}

func TestProvideSymbolLister(t *testing.T) {
	hot := &HotStores{Observations: memory.NewObservationStore()}

	_, cfg := loadConfig(t, baseConfig+`
symbols: ["FEE/USD", "BTC/USD"]
`)
	lister := ProvideSymbolLister(cfg, hot)
	symbols, err := lister.ActiveSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"FEE/USD", "BTC/USD"}, symbols)

	_, cfg = loadConfig(t, baseConfig)
	assert.Same(t, hot.Observations, ProvideSymbolLister(cfg, hot))
}

func TestProvideNotifier(t *testing.T) {
	_, cfg := loadConfig(t, baseConfig+`
server:
  enabled: true
  websocket: true
notify:
  kafka:
    enabled: true
    brokers: ["localhost:9092"]
`)
	hub, closeHub := ProvideHub(cfg, logging.NewNoopLogger())
	defer closeHub()
	require.NotNil(t, hub)

	n, cleanup, err := ProvideNotifier(cfg, hub, logging.NewNoopLogger())
	require.NoError(t, err)
	defer cleanup()

	multi, ok := n.(*aggregator.MultiNotifier)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
}

type checkedSeries struct {
	*memory.RecordStore
	err error
}

func (s checkedSeries) Health(context.Context) error { return s.err }

func TestProvideAPIServer_HealthChecks(t *testing.T) {
	_, cfg := loadConfig(t, baseConfig+`
server:
  enabled: true
storage:
  hot: redis
  durable: postgres
  postgres:
    dsn: postgres://oracle@db/oracle
`)
	series := checkedSeries{RecordStore: memory.NewRecordStore()}
	hot := &HotStores{
		Observations: memory.NewObservationStore(),
		History:      memory.NewHistoryStore(),
		Health:       func(context.Context) error { return nil },
	}
	weights, err := ProvideWeightTable(ProvideReloader("", cfg, logging.NewNoopLogger()), logging.NewNoopLogger())
	require.NoError(t, err)

	get := func(series storage.RecordSeries) int {
		tiered := storage.NewTiered(series, nil, logging.NewNoopLogger())
		srv := ProvideAPIServer(cfg, nil, tiered, series, weights, hot, nil, logging.NewNoopLogger())
		require.NotNil(t, srv)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Contains(t, rec.Body.String(), `"redis":"ok"`)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get(series))

	series.err = errors.New("connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, get(series))
}
