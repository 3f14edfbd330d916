package quality

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makerBatch(values ...float64) []fees.Observation {
	sources := []string{"binance", "kraken", "okx", "bybit", "kucoin", "mexc", "gate", "huobi"}
	out := make([]fees.Observation, len(values))
	for i, v := range values {
		out[i] = fees.Observation{
			Source:     sources[i],
			Venue:      fees.CEXVenue{Exchange: sources[i]},
			Symbol:     "FEE/USD",
			MakerFee:   decimal.NewFromFloat(v),
			TakerFee:   decimal.NewFromFloat(v),
			Timestamp:  testNow,
			Confidence: 1,
		}
	}
	return out
}

func equalTable(t *testing.T) *WeightTable {
	t.Helper()
	table, err := NewWeightTable(nil)
	require.NoError(t, err)
	return table
}

func TestWeightTable(t *testing.T) {
	table, err := NewWeightTable(map[string]float64{"binance": 0.9})
	require.NoError(t, err)

	assert.Equal(t, 0.9, table.WeightOf("binance"))
	assert.Equal(t, DefaultWeight, table.WeightOf("unknown"))

	require.NoError(t, table.SetWeight("kraken", 0.7))
	assert.Equal(t, 0.7, table.WeightOf("kraken"))

	for _, bad := range []float64{-0.1, 1.01, math.NaN()} {
		err := table.SetWeight("kraken", bad)
		assert.ErrorIs(t, err, fees.ErrInvalidWeight)
		assert.Equal(t, 0.7, table.WeightOf("kraken"), "previous value kept")
	}

	err = table.Apply(map[string]float64{"okx": 0.3, "bad": 2})
	assert.ErrorIs(t, err, fees.ErrInvalidWeight)
	assert.Equal(t, 0.3, table.WeightOf("okx"))
	assert.Equal(t, DefaultWeight, table.WeightOf("bad"))

	snap := table.Snapshot()
	snap["binance"] = 0
	assert.Equal(t, 0.9, table.WeightOf("binance"), "snapshot is a copy")

	_, err = NewWeightTable(map[string]float64{"x": -1})
	assert.ErrorIs(t, err, fees.ErrInvalidWeight)
}

func TestQuantileAndDescribe(t *testing.T) {
	sorted := []float64{90, 100, 120, 150, 180, 5000}
	assert.InDelta(t, 105, Quantile(sorted, 0.25), 1e-9)
	assert.InDelta(t, 172.5, Quantile(sorted, 0.75), 1e-9)
	assert.Equal(t, 0.0, Quantile(nil, 0.5))

	stats := Describe([]float64{5000, 90, 100, 150, 120, 180})
	assert.InDelta(t, 940, stats.Mean, 1e-9)
	assert.InDelta(t, 135, stats.Median, 1e-9)
	assert.InDelta(t, 1815.9387, stats.StdDev, 1e-3)
	assert.Equal(t, 90.0, stats.Min)
	assert.Equal(t, 5000.0, stats.Max)
}

func TestDetectOutliers_ReferenceScenario(t *testing.T) {
	values := Weigh(makerBatch(100, 150, 120, 180, 90, 5000), fees.FieldMaker, equalTable(t), testNow, time.Minute)

	res := DetectOutliers(values, OutlierConfig{Threshold: 2.0})
	require.Len(t, res.Outliers, 1)
	assert.Equal(t, 5000.0, res.Outliers[0].Value)
	assert.Equal(t, "mexc", res.Outliers[0].Source)
	assert.ElementsMatch(t, []string{MethodZScore, MethodIQR}, res.Outliers[0].Methods)
	assert.InDelta(t, 2.236, res.Outliers[0].ZScore, 0.001)
	assert.Equal(t, []float64{90, 100, 120, 150, 180}, res.CleanValues)
	assert.Len(t, res.Clean, len(values)-len(res.Outliers))

	consensus, ok := WeightedMedian(res.Clean)
	require.True(t, ok)
	assert.Equal(t, 120.0, consensus)
}

func TestDetectOutliers_PermutationInvariant(t *testing.T) {
	base := Weigh(makerBatch(100, 150, 120, 180, 90, 5000, 130, 110), fees.FieldMaker, equalTable(t), testNow, time.Minute)
	want := DetectOutliers(base, OutlierConfig{})
	wantMedian, _ := WeightedMedian(want.Clean)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]fees.WeightedValue, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := DetectOutliers(shuffled, OutlierConfig{})
		assert.Equal(t, want.CleanValues, got.CleanValues)
		assert.Equal(t, want.Outliers, got.Outliers)

		median, _ := WeightedMedian(got.Clean)
		assert.Equal(t, wantMedian, median)
	}
}

func TestDetectOutliers_EdgeCases(t *testing.T) {
	table := equalTable(t)

	t.Run("single value is clean", func(t *testing.T) {
		res := DetectOutliers(Weigh(makerBatch(42), fees.FieldMaker, table, testNow, time.Minute), OutlierConfig{})
		assert.Empty(t, res.Outliers)
		assert.Equal(t, []float64{42}, res.CleanValues)
	})

	t.Run("identical values", func(t *testing.T) {
		res := DetectOutliers(Weigh(makerBatch(7, 7, 7, 7), fees.FieldMaker, table, testNow, time.Minute), OutlierConfig{})
		assert.Empty(t, res.Outliers)
		assert.Len(t, res.CleanValues, 4)
		assert.Equal(t, 0.0, res.Statistics.StdDev)
	})

	t.Run("partition holds", func(t *testing.T) {
		values := Weigh(makerBatch(1, 2, 3, 100, 4, 5, -50), fees.FieldMaker, table, testNow, time.Minute)
		res := DetectOutliers(values, OutlierConfig{Threshold: 1.5})
		assert.Equal(t, len(values), len(res.Clean)+len(res.Outliers))

		flagged := res.FlaggedSources()
		for _, c := range res.Clean {
			_, dup := flagged[c.Source]
			assert.False(t, dup, "source %s in both sets", c.Source)
		}
	})
}

func TestWeights(t *testing.T) {
	assert.Equal(t, 1.0, TimeWeight(0, time.Minute))
	assert.InDelta(t, 0.5, TimeWeight(30*time.Second, time.Minute), 1e-9)
	assert.Equal(t, 0.1, TimeWeight(2*time.Minute, time.Minute))

	assert.Equal(t, 0.5, VolumeWeight(0, true))
	assert.Equal(t, 0.5, VolumeWeight(100, false))
	assert.InDelta(t, 0.6, VolumeWeight(999999, true), 1e-9)
	assert.Equal(t, 1.0, VolumeWeight(1e12, true))

	vol := decimal.NewFromInt(999999)
	obs := makerBatch(10)
	obs[0].Volume24h = &vol
	obs[0].Confidence = 0.5
	obs[0].Timestamp = testNow.Add(-30 * time.Second)

	table, err := NewWeightTable(map[string]float64{"binance": 0.8})
	require.NoError(t, err)
	got := Weigh(obs, fees.FieldMaker, table, testNow, time.Minute)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.8*0.5*0.5*0.6, got[0].Weight, 1e-9)
}

func TestWeightedMedian(t *testing.T) {
	_, ok := WeightedMedian(nil)
	assert.False(t, ok)

	values := []fees.WeightedValue{
		{Value: 10, Weight: 0.1, Source: "a"},
		{Value: 20, Weight: 0.1, Source: "b"},
		{Value: 30, Weight: 0.9, Source: "c"},
	}
	m, ok := WeightedMedian(values)
	require.True(t, ok)
	assert.Equal(t, 30.0, m)

	zero := []fees.WeightedValue{
		{Value: 3, Source: "a"},
		{Value: 1, Source: "b"},
		{Value: 2, Source: "c"},
	}
	m, _ = WeightedMedian(zero)
	assert.Equal(t, 2.0, m, "zero weights fall back to equal weights")

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		n := 1 + rng.Intn(9)
		batch := make([]fees.WeightedValue, n)
		inputs := make(map[float64]bool, n)
		for j := range batch {
			v := math.Round(rng.Float64()*1000) / 10
			batch[j] = fees.WeightedValue{Value: v, Weight: rng.Float64(), Source: string(rune('a' + j))}
			inputs[v] = true
		}
		m, ok := WeightedMedian(batch)
		require.True(t, ok)
		assert.True(t, inputs[m], "median %v is not an input", m)
	}
}

func TestCrossValidate(t *testing.T) {
	assert.Equal(t, 0.0, Deviation(0, 0))
	assert.Equal(t, 1.0, Deviation(5, 0))
	assert.Equal(t, SeverityLow, Classify(0.05))
	assert.Equal(t, SeverityMedium, Classify(0.10))
	assert.Equal(t, SeverityMedium, Classify(0.20))
	assert.Equal(t, SeverityHigh, Classify(0.21))

	t.Run("agreeing sources", func(t *testing.T) {
		values := Weigh(makerBatch(100, 100, 100, 100), fees.FieldMaker, equalTable(t), testNow, time.Minute)
		res := CrossValidate(values)
		assert.True(t, res.IsValid)
		assert.Equal(t, 1.0, res.Confidence)
		assert.Equal(t, 100.0, res.Consensus.Value)
		assert.Equal(t, []string{"binance", "bybit", "kraken", "okx"}, res.Consensus.Sources)
		assert.InDelta(t, 1.0, res.Consensus.Weight, 1e-9)
	})

	t.Run("too many high deviations", func(t *testing.T) {
		values := Weigh(makerBatch(100, 100, 100, 150, 160), fees.FieldMaker, equalTable(t), testNow, time.Minute)
		res := CrossValidate(values)
		assert.Equal(t, 100.0, res.Consensus.Value)
		assert.Equal(t, 2, res.HighSeverityCount())
		assert.False(t, res.IsValid)
		assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	})

	t.Run("zero consensus", func(t *testing.T) {
		values := Weigh(makerBatch(0, 0, 0, 1), fees.FieldMaker, equalTable(t), testNow, time.Minute)
		res := CrossValidate(values)
		assert.Equal(t, 0.0, res.Consensus.Value)
		assert.Equal(t, 1, res.HighSeverityCount())
		assert.True(t, res.IsValid)
	})

	t.Run("one of two sources far off", func(t *testing.T) {
		values := []fees.WeightedValue{
			{Value: 1, Weight: 1, Source: "a"},
			{Value: 100, Weight: 0.1, Source: "b"},
		}
		res := CrossValidate(values)
		assert.Equal(t, 1.0, res.Consensus.Value)
		assert.Equal(t, 0.5, res.Confidence)
	})
}

type sliceHistory struct {
	max    int
	series map[string][]float64
}

func newSliceHistory(max int) *sliceHistory {
	return &sliceHistory{max: max, series: map[string][]float64{}}
}

func (h *sliceHistory) AppendMean(_ context.Context, symbol string, value float64) error {
	s := append(h.series[symbol], value)
	if len(s) > h.max {
		s = s[len(s)-h.max:]
	}
	h.series[symbol] = s
	return nil
}

func (h *sliceHistory) GetMeanSeries(_ context.Context, symbol string) ([]float64, error) {
	return append([]float64(nil), h.series[symbol]...), nil
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) AppendMean(ctx context.Context, symbol string, value float64) error {
	args := m.Called(ctx, symbol, value)
	return args.Error(0)
}

func (m *mockHistory) GetMeanSeries(ctx context.Context, symbol string) ([]float64, error) {
	args := m.Called(ctx, symbol)
	if series, ok := args.Get(0).([]float64); ok {
		return series, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestAnomalyDetector_FailOpenUntilMinHistory(t *testing.T) {
	ctx := context.Background()
	store := newSliceHistory(DefaultMaxHistory)
	detector := NewAnomalyDetector(store, logging.NewNoopLogger())
	cfg := AnomalyConfig{Threshold: 2.0}

	for i := 0; i < DefaultMinHistory; i++ {
		res, err := detector.Detect(ctx, "FEE/USD", 100+float64(i%3), cfg, testNow)
		require.NoError(t, err)
		require.False(t, res.IsAnomaly, "tick %d", i+1)
		require.Equal(t, explanationInsufficient, res.Explanation)
	}

	// Outlandish values are ignored while the series is short.
	short := newSliceHistory(DefaultMaxHistory)
	res, err := NewAnomalyDetector(short, nil).Detect(ctx, "FEE/USD", 1e9, cfg, testNow)
	require.NoError(t, err)
	assert.False(t, res.IsAnomaly)

	res, err = detector.Detect(ctx, "FEE/USD", 1000, cfg, testNow)
	require.NoError(t, err)
	assert.True(t, res.IsAnomaly)
	assert.Equal(t, 1.0, res.AnomalyScore)
	assert.Equal(t, float64(DefaultMinHistory), res.Features["history_length"])

	res, err = detector.Detect(ctx, "FEE/USD", 101, cfg, testNow)
	require.NoError(t, err)
	assert.False(t, res.IsAnomaly)
	assert.Len(t, store.series["FEE/USD"], DefaultMaxHistory)
}

func TestAnomalyDetector_Scoring(t *testing.T) {
	ctx := context.Background()
	cfg := AnomalyConfig{Threshold: 2.0, MinHistory: 4, MaxHistory: 10}

	t.Run("score scales with z", func(t *testing.T) {
		store := newSliceHistory(10)
		for _, v := range []float64{9, 11, 9, 11} {
			require.NoError(t, store.AppendMean(ctx, "X/Y", v))
		}
		res, err := NewAnomalyDetector(store, nil).Detect(ctx, "X/Y", 12, cfg, testNow)
		require.NoError(t, err)
		assert.False(t, res.IsAnomaly)
		assert.InDelta(t, 2.0, res.Features["z_score"], 1e-9)
		assert.InDelta(t, 0.5, res.AnomalyScore, 1e-9)
	})

	t.Run("constant history", func(t *testing.T) {
		store := newSliceHistory(10)
		for i := 0; i < 4; i++ {
			require.NoError(t, store.AppendMean(ctx, "X/Y", 5))
		}
		detector := NewAnomalyDetector(store, nil)
		res, err := detector.Detect(ctx, "X/Y", 5, cfg, testNow)
		require.NoError(t, err)
		assert.False(t, res.IsAnomaly)

		res, err = detector.Detect(ctx, "X/Y", 6, cfg, testNow)
		require.NoError(t, err)
		assert.True(t, res.IsAnomaly)
		assert.Equal(t, 1.0, res.AnomalyScore)
	})

	t.Run("read failure fails open", func(t *testing.T) {
		store := &mockHistory{}
		store.On("GetMeanSeries", mock.Anything, "X/Y").Return(nil, errors.New("connection refused"))

		res, err := NewAnomalyDetector(store, nil).Detect(ctx, "X/Y", 1, cfg, testNow)
		require.Error(t, err)
		assert.ErrorIs(t, err, fees.ErrStorageFailure)
		assert.False(t, res.IsAnomaly)
		assert.Equal(t, explanationUnavailable, res.Explanation)
		store.AssertNotCalled(t, "AppendMean", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("append failure keeps verdict", func(t *testing.T) {
		store := &mockHistory{}
		store.On("GetMeanSeries", mock.Anything, "X/Y").Return([]float64{1, 1, 1, 1}, nil)
		store.On("AppendMean", mock.Anything, "X/Y", 3.0).Return(errors.New("timeout"))

		res, err := NewAnomalyDetector(store, nil).Detect(ctx, "X/Y", 3, cfg, testNow)
		assert.ErrorIs(t, err, fees.ErrStorageFailure)
		assert.True(t, res.IsAnomaly)
		store.AssertExpectations(t)
	})
}
