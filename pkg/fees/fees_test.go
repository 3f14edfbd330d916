package fees

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FEE/USDT", "FEE/USD"},
		{"btc/usdc", "BTC/USD"},
		{"WETH/DAI", "ETH/USD"},
		{"FEE/EUR", "FEE/EUR"},
		{"FEEUSD", "FEEUSD"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSymbol(tt.in))
		})
	}
	assert.True(t, IsEquivalentSymbol("FEE/USDT", "fee/usdc"))
}

func TestValidateSymbolFormat(t *testing.T) {
	assert.NoError(t, ValidateSymbolFormat("FEE/USD"))
	assert.ErrorIs(t, ValidateSymbolFormat(""), ErrInvalidSymbolFormat)
	assert.ErrorIs(t, ValidateSymbolFormat("FEEUSD"), ErrInvalidSymbolFormat)
	assert.ErrorIs(t, ValidateSymbolFormat("/USD"), ErrEmptyBaseCurrency)
	assert.ErrorIs(t, ValidateSymbolFormat("FEE/ "), ErrEmptyQuoteCurrency)
}

func TestParseObservation(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	half := 0.5
	vol := decimal.NewFromInt(1000)

	t.Run("cex defaults exchange and confidence", func(t *testing.T) {
		obs, err := ParseObservation(RawObservation{
			Source:    "binance",
			Kind:      "CEX",
			Symbol:    "fee/usdt",
			MakerFee:  decimal.NewFromFloat(0.001),
			TakerFee:  decimal.NewFromFloat(0.002),
			Timestamp: ts,
		})
		require.NoError(t, err)
		assert.Equal(t, KindCEX, obs.Kind())
		assert.Equal(t, CEXVenue{Exchange: "binance"}, obs.Venue)
		assert.Equal(t, "FEE/USD", obs.Symbol)
		assert.Equal(t, 1.0, obs.Confidence)
		assert.InDelta(t, 0.002, obs.Fee(FieldTaker), 1e-12)
		_, known := obs.Volume()
		assert.False(t, known)
	})

	t.Run("dex round trip", func(t *testing.T) {
		raw := RawObservation{
			Source:     "uniswap",
			Kind:       "dex",
			Chain:      "ethereum",
			Pool:       "0xpool",
			Symbol:     "FEE/USD",
			MakerFee:   decimal.NewFromFloat(0.003),
			TakerFee:   decimal.NewFromFloat(0.003),
			Timestamp:  ts,
			Volume24h:  &vol,
			Confidence: &half,
		}
		obs, err := ParseObservation(raw)
		require.NoError(t, err)
		assert.Equal(t, DEXVenue{Chain: "ethereum", Pool: "0xpool"}, obs.Venue)
		v, known := obs.Volume()
		assert.True(t, known)
		assert.Equal(t, 1000.0, v)

		back := obs.ToRaw()
		assert.Equal(t, "dex", back.Kind)
		assert.Equal(t, "0xpool", back.Pool)
		require.NotNil(t, back.Confidence)
		assert.Equal(t, 0.5, *back.Confidence)
	})

	bad := 1.5
	failures := []struct {
		name string
		raw  RawObservation
		err  error
	}{
		{"missing source", RawObservation{Kind: "cex", Symbol: "FEE/USD", Timestamp: ts}, ErrInvalidObservation},
		{"bad symbol", RawObservation{Source: "a", Kind: "cex", Symbol: "FEE", Timestamp: ts}, ErrInvalidSymbolFormat},
		{"unknown kind", RawObservation{Source: "a", Kind: "otc", Symbol: "FEE/USD", Timestamp: ts}, ErrUnknownKind},
		{"dex without pool", RawObservation{Source: "a", Kind: "dex", Chain: "eth", Symbol: "FEE/USD", Timestamp: ts}, ErrInvalidObservation},
		{"negative fee", RawObservation{Source: "a", Kind: "cex", Symbol: "FEE/USD", MakerFee: decimal.NewFromInt(-1), Timestamp: ts}, ErrInvalidObservation},
		{"zero timestamp", RawObservation{Source: "a", Kind: "cex", Symbol: "FEE/USD"}, ErrInvalidObservation},
		{"confidence range", RawObservation{Source: "a", Kind: "cex", Symbol: "FEE/USD", Timestamp: ts, Confidence: &bad}, ErrInvalidObservation},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseObservation(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

func TestObservationAge(t *testing.T) {
	now := time.Now()
	obs := Observation{Timestamp: now.Add(time.Minute)}
	assert.Equal(t, time.Duration(0), obs.Age(now))
	obs.Timestamp = now.Add(-time.Minute)
	assert.Equal(t, time.Minute, obs.Age(now))
}

func TestParseField(t *testing.T) {
	f, err := ParseField("TAKER")
	require.NoError(t, err)
	assert.Equal(t, FieldTaker, f)
	_, err = ParseField("spread")
	assert.ErrorIs(t, err, ErrUnknownField)
}
