package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/version"
)

func TestHTTPSource_GetFreshObservations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/observations", r.URL.Path)
		assert.Equal(t, "FEE/USD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m0s", r.URL.Query().Get("max_age"))
		assert.Equal(t, version.AgentString(), r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":200,"message":"OK","data":[
			{"source":"binance","kind":"cex","symbol":"FEE/USD","maker_fee":"0.001","taker_fee":"0.002","timestamp":"2026-07-01T12:00:00Z"},
			{"source":"uni","kind":"dex","chain":"ethereum","pool":"0xabc","symbol":"FEE/USD","maker_fee":"0.003","taker_fee":"0.003","timestamp":"2026-07-01T12:00:00Z"},
			{"source":"broken","kind":"dex","symbol":"FEE/USD","maker_fee":"0.003","taker_fee":"0.003","timestamp":"2026-07-01T12:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	src := NewHTTPSource("upstream", srv.URL+"/", time.Second, nil)
	obs, err := src.GetFreshObservations(context.Background(), "FEE/USD", 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, obs, 2, "DEX entry without chain and pool is dropped")
	assert.Equal(t, fees.KindCEX, obs[0].Kind())
	assert.True(t, obs[0].MakerFee.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, fees.DEXVenue{Chain: "ethereum", Pool: "0xabc"}, obs[1].Venue)
}

func TestHTTPSource_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BAD/USD" {
			_, _ = w.Write([]byte(`not json`))
			return
		}
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewHTTPSource("upstream", srv.URL, time.Second, nil)
	_, err := src.GetFreshObservations(context.Background(), "FEE/USD", time.Minute)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "overloaded")

	_, err = src.GetFreshObservations(context.Background(), "BAD/USD", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, List(), "http")

	src, err := Create("http", "peer", map[string]interface{}{"url": "http://peer:8080", "timeout": "2s"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "peer", src.Name())

	_, err = Create("http", "peer", map[string]interface{}{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Create("http", "peer", map[string]interface{}{"url": "http://peer", "timeout": "soon"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Create("grpc", "peer", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

type mockSource struct {
	mock.Mock
	name string
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) GetFreshObservations(ctx context.Context, symbol string, maxAge time.Duration) ([]fees.Observation, error) {
	args := m.Called(ctx, symbol, maxAge)
	obs, _ := args.Get(0).([]fees.Observation)
	return obs, args.Error(1)
}

func TestMerged(t *testing.T) {
	a := &mockSource{name: "a"}
	b := &mockSource{name: "b"}
	a.On("GetFreshObservations", mock.Anything, "FEE/USD", time.Minute).Return([]fees.Observation{{Source: "x"}}, nil)
	b.On("GetFreshObservations", mock.Anything, "FEE/USD", time.Minute).Return(nil, errors.New("timeout"))

	merged := NewMerged(nil, a, NewNamed("b", b))
	obs, err := merged.GetFreshObservations(context.Background(), "FEE/USD", time.Minute)
	require.NoError(t, err)
	assert.Len(t, obs, 1)

	a2 := &mockSource{name: "a"}
	a2.On("GetFreshObservations", mock.Anything, "FEE/USD", time.Minute).Return(nil, errors.New("refused"))
	_, err = NewMerged(nil, a2, b).GetFreshObservations(context.Background(), "FEE/USD", time.Minute)
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
}
