package quality

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
)

const (
	// DefaultMinHistory is the number of past means needed before scoring.
	DefaultMinHistory = 999
	// DefaultMaxHistory bounds the rolling series per symbol.
	DefaultMaxHistory = 1000

	explanationInsufficient = "insufficient history"
	explanationUnavailable  = "history unavailable"
)

// HistoryStore keeps a bounded rolling series of past aggregation means
// per symbol. Implementations evict oldest entries first.
type HistoryStore interface {
	AppendMean(ctx context.Context, symbol string, value float64) error
	GetMeanSeries(ctx context.Context, symbol string) ([]float64, error)
}

// AnomalyConfig tunes the anomaly detector.
type AnomalyConfig struct {
	Threshold  float64
	MinHistory int
	MaxHistory int
}

func (c AnomalyConfig) withDefaults() AnomalyConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultOutlierThreshold
	}
	if c.MinHistory <= 0 {
		c.MinHistory = DefaultMinHistory
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	return c
}

// AnomalyResult is the verdict for one aggregation.
type AnomalyResult struct {
	IsAnomaly    bool               `json:"is_anomaly"`
	AnomalyScore float64            `json:"anomaly_score"`
	Threshold    float64            `json:"threshold"`
	Features     map[string]float64 `json:"features"`
	Explanation  string             `json:"explanation"`
	Timestamp    time.Time          `json:"timestamp"`
}

// AnomalyDetector compares the current mean against the symbol's history.
type AnomalyDetector struct {
	store  HistoryStore
	logger *logging.Logger
}

// NewAnomalyDetector creates a detector backed by store.
func NewAnomalyDetector(store HistoryStore, logger *logging.Logger) *AnomalyDetector {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &AnomalyDetector{store: store, logger: logger}
}

// Detect scores current against the stored series and then appends it.
// It fails open: a history read error or a short series yields
// IsAnomaly=false. Store errors are returned wrapped in ErrStorageFailure
// alongside a usable result.
func (d *AnomalyDetector) Detect(ctx context.Context, symbol string, current float64, cfg AnomalyConfig, now time.Time) (AnomalyResult, error) {
	cfg = cfg.withDefaults()
	result := AnomalyResult{
		Threshold: cfg.Threshold,
		Timestamp: now,
		Features:  map[string]float64{"current_mean": current},
	}

	series, err := d.store.GetMeanSeries(ctx, symbol)
	if err != nil {
		result.Explanation = explanationUnavailable
		return result, fmt.Errorf("%w: read history for %s: %w", fees.ErrStorageFailure, symbol, err)
	}
	if len(series) > cfg.MaxHistory {
		series = series[len(series)-cfg.MaxHistory:]
	}
	result.Features["history_length"] = float64(len(series))

	if len(series) < cfg.MinHistory {
		result.Explanation = explanationInsufficient
	} else {
		d.score(&result, series, current)
	}

	if err := d.store.AppendMean(ctx, symbol, current); err != nil {
		return result, fmt.Errorf("%w: append history for %s: %w", fees.ErrStorageFailure, symbol, err)
	}

	if result.IsAnomaly {
		d.logger.Warn("Anomalous aggregation",
			"symbol", symbol,
			"current", current,
			"score", result.AnomalyScore,
			"explanation", result.Explanation)
	}

	return result, nil
}

func (d *AnomalyDetector) score(result *AnomalyResult, series []float64, current float64) {
	mean := Mean(series)
	std := math.Sqrt(Variance(series, mean))
	result.Features["historical_mean"] = mean
	result.Features["historical_std"] = std

	if std == 0 {
		if current == mean {
			result.Features["z_score"] = 0
			result.Explanation = "matches constant history"
			return
		}
		result.IsAnomaly = true
		result.AnomalyScore = 1
		result.Explanation = fmt.Sprintf("departs from constant history %.6g", mean)
		return
	}

	z := math.Abs(current-mean) / std
	result.Features["z_score"] = z
	result.IsAnomaly = z > result.Threshold
	result.AnomalyScore = math.Min(1, z/(2*result.Threshold))
	if result.IsAnomaly {
		result.Explanation = fmt.Sprintf("z-score %.3f exceeds threshold %.3f", z, result.Threshold)
	} else {
		result.Explanation = fmt.Sprintf("z-score %.3f within threshold %.3f", z, result.Threshold)
	}
}
