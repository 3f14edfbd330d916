package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
	"github.com/StrathCole/fee-oracle/pkg/quality"
)

// Warning prefixes attached to records.
const (
	WarnInsufficientSources = "insufficient_sources"
	WarnStaleData           = "stale_data"
	WarnOutliers            = "outliers_removed"
	WarnValidationFailed    = "validation_failed"
	WarnAnomaly             = "anomaly"
	WarnLowConfidence       = "low_confidence"
)

// cycle carries the intermediate results of one symbol pipeline.
type cycle struct {
	symbol   string
	settings Settings
	now      time.Time

	observations []fees.Observation
	clean        []fees.Observation
	outliers     []string

	consensus  quality.CrossValidationResult
	confidence float64
	warnings   []string
}

func (c *cycle) penalize(factor float64, warning string) {
	c.confidence *= factor
	c.warnings = append(c.warnings, warning)
}

func (e *Engine) aggregate(ctx context.Context, logger *logging.Logger, symbol string, settings Settings) (*fees.AggregatedRecord, error) {
	c := &cycle{symbol: symbol, settings: settings, now: e.now().UTC(), confidence: 1}

	if err := e.checkMonotonic(ctx, c); err != nil {
		return nil, err
	}

	e.tracker.setState(symbol, StateFetching)
	if err := e.fetch(ctx, c); err != nil {
		return nil, err
	}

	e.tracker.setState(symbol, StateValidating)
	if err := e.validate(ctx, logger, c); err != nil {
		return nil, err
	}

	e.tracker.setState(symbol, StateConsolidating)
	rec := e.consolidate(c)

	e.tracker.setState(symbol, StatePersisting)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: persist record: %w", fees.ErrStorageFailure, err)
	}
	e.notify(ctx, logger, rec)

	return rec, nil
}

// checkMonotonic rejects a cycle whose clock reads earlier than the newest
// record of the symbol. The newest record is loaded from the store once per
// process.
func (e *Engine) checkMonotonic(ctx context.Context, c *cycle) error {
	last, ok := e.tracker.lastRecordAt(c.symbol)
	if !ok {
		latest, err := e.store.GetLatest(ctx, c.symbol)
		switch {
		case err == nil && latest != nil:
			e.tracker.seed(c.symbol, latest.Timestamp)
			last, ok = latest.Timestamp, true
		case err != nil && !errors.Is(err, fees.ErrNotFound):
			e.logger.Debug("Could not load latest record", "symbol", c.symbol, "error", err)
		}
	}
	if ok && c.now.Before(last) {
		return fmt.Errorf("%w: %s precedes latest record at %s", ErrStaleCycle,
			c.now.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano))
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context, c *cycle) error {
	observations, err := e.source.GetFreshObservations(ctx, c.symbol, c.settings.MaxDataAge)
	if err != nil {
		return fmt.Errorf("%w: fetch observations: %w", fees.ErrStorageFailure, err)
	}
	c.observations = newestPerSource(observations)
	if len(c.observations) == 0 {
		return fmt.Errorf("%w: %s within %s", fees.ErrNoFreshData, c.symbol, c.settings.MaxDataAge)
	}
	return nil
}

// newestPerSource keeps one observation per source, the most recent one.
// Equal timestamps keep the lower maker fee, then the lower taker fee. The
// result is ordered by source.
func newestPerSource(observations []fees.Observation) []fees.Observation {
	newest := make(map[string]fees.Observation, len(observations))
	for _, obs := range observations {
		cur, ok := newest[obs.Source]
		if !ok || supersedes(obs, cur) {
			newest[obs.Source] = obs
		}
	}
	out := make([]fees.Observation, 0, len(newest))
	for _, obs := range newest {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func supersedes(obs, cur fees.Observation) bool {
	if !obs.Timestamp.Equal(cur.Timestamp) {
		return obs.Timestamp.After(cur.Timestamp)
	}
	if c := obs.MakerFee.Cmp(cur.MakerFee); c != 0 {
		return c < 0
	}
	return obs.TakerFee.LessThan(cur.TakerFee)
}

func (e *Engine) validate(ctx context.Context, logger *logging.Logger, c *cycle) error {
	s := c.settings
	p := s.Penalties

	if n := len(c.observations); n < s.MinSources {
		c.penalize(p.InsufficientSources, fmt.Sprintf("%s: %d of %d required", WarnInsufficientSources, n, s.MinSources))
	}

	if avg := averageAge(c.observations, c.now); avg > s.StalenessThreshold {
		c.penalize(p.StaleData, fmt.Sprintf("%s: average age %s exceeds %s", WarnStaleData, avg.Round(time.Second), s.StalenessThreshold))
	}

	flagged := make(map[string]struct{})
	for _, field := range fees.Fields {
		values := quality.Weigh(c.observations, field, e.weights, c.now, s.MaxDataAge)
		result := quality.DetectOutliers(values, s.outlierConfig())
		for _, o := range result.Outliers {
			for _, method := range o.Methods {
				metrics.RecordOutlierRejection(c.symbol, method)
			}
			flagged[o.Source] = struct{}{}
		}
	}
	for _, obs := range c.observations {
		if _, bad := flagged[obs.Source]; bad {
			c.outliers = append(c.outliers, obs.Source)
			continue
		}
		c.clean = append(c.clean, obs)
	}
	if len(c.outliers) > 0 {
		c.penalize(p.Outliers, fmt.Sprintf("%s: %d", WarnOutliers, len(c.outliers)))
	}
	if len(c.clean) == 0 {
		return fmt.Errorf("%w: %w", fees.ErrValidationFailed, ErrNoCleanSources)
	}

	primary := quality.Weigh(c.clean, s.PrimaryField, e.weights, c.now, s.MaxDataAge)
	c.consensus = quality.CrossValidate(primary)
	if !c.consensus.IsValid {
		c.penalize(p.ValidationFailed, fmt.Sprintf("%s: %d high-severity deviations", WarnValidationFailed, c.consensus.HighSeverityCount()))
	}
	c.confidence *= c.consensus.Confidence

	mean := quality.Mean(feeValues(c.clean, s.PrimaryField))
	anomaly, err := e.detector.Detect(ctx, c.symbol, mean, s.anomalyConfig(), c.now)
	if err != nil {
		metrics.RecordStorageError("history", "anomaly")
		logger.Warn("Anomaly detection degraded", "error", err)
	}
	if anomaly.IsAnomaly {
		metrics.RecordAnomaly(c.symbol)
		c.penalize(p.Anomaly, fmt.Sprintf("%s: score %.2f", WarnAnomaly, anomaly.AnomalyScore))
	}

	return nil
}

func (e *Engine) consolidate(c *cycle) *fees.AggregatedRecord {
	s := c.settings

	var cex, dex []fees.Observation
	for _, obs := range c.clean {
		switch obs.Kind() {
		case fees.KindCEX:
			cex = append(cex, obs)
		case fees.KindDEX:
			dex = append(dex, obs)
		}
	}

	cexMedian, _ := quality.WeightedMedian(quality.Weigh(cex, s.PrimaryField, e.weights, c.now, s.MaxDataAge))
	dexMedian, _ := quality.WeightedMedian(quality.Weigh(dex, s.PrimaryField, e.weights, c.now, s.MaxDataAge))

	sources := make([]string, 0, len(c.observations))
	for _, obs := range c.observations {
		sources = append(sources, obs.Source)
	}

	dq := dataQuality(c)
	confidence := math.Max(0, math.Min(1, c.confidence))

	warnings := c.warnings
	if confidence < s.ConfidenceThreshold {
		warnings = append(warnings, fmt.Sprintf("%s: %.3f below %.3f", WarnLowConfidence, confidence, s.ConfidenceThreshold))
		metrics.RecordLowConfidence(c.symbol)
	}
	metrics.RecordQuality(c.symbol, confidence, dq.Completeness, dq.Freshness, dq.Consistency, dq.Accuracy)

	return &fees.AggregatedRecord{
		ID:                   uuid.NewString(),
		Symbol:               c.symbol,
		Field:                s.PrimaryField,
		CexFees:              sortedFees(cex, s.PrimaryField),
		DexFees:              sortedFees(dex, s.PrimaryField),
		WeightedMedianCexFee: cexMedian,
		WeightedMedianDexFee: dexMedian,
		Consensus:            c.consensus.Consensus.Value,
		Confidence:           confidence,
		Timestamp:            c.now,
		Sources:              sources,
		Outliers:             nonNil(c.outliers),
		Warnings:             warnings,
		DataQuality:          dq,
	}
}

func dataQuality(c *cycle) fees.DataQualityMetrics {
	s := c.settings
	values := feeValues(c.clean, s.PrimaryField)

	completeness := math.Min(1, float64(len(c.observations))/float64(s.ExpectedSources))
	freshness := math.Max(0, 1-float64(averageAge(c.clean, c.now))/float64(s.StalenessThreshold))

	consistency := 1.0
	if mean := quality.Mean(values); mean != 0 {
		consistency = math.Max(0, 1-quality.StdDev(values)/math.Abs(mean))
	} else if quality.StdDev(values) > 0 {
		consistency = 0
	}

	accuracy := 0.0
	for _, obs := range c.clean {
		accuracy += obs.Confidence
	}
	accuracy /= float64(len(c.clean))

	return fees.DataQualityMetrics{
		Completeness: completeness,
		Freshness:    freshness,
		Consistency:  consistency,
		Accuracy:     accuracy,
		OutlierCount: len(c.outliers),
		SourceCount:  len(c.observations),
		Timestamp:    c.now,
	}
}

func (e *Engine) notify(ctx context.Context, logger *logging.Logger, rec *fees.AggregatedRecord) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Notifier panicked", "panic", fmt.Sprint(r))
		}
	}()
	n := fees.Notification{Event: fees.EventAggregated, Symbol: rec.Symbol, Record: rec}
	if err := e.notifier.Notify(ctx, n); err != nil {
		logger.Warn("Failed to deliver notification", "error", err)
	}
}

func averageAge(observations []fees.Observation, now time.Time) time.Duration {
	if len(observations) == 0 {
		return 0
	}
	var total time.Duration
	for _, obs := range observations {
		total += obs.Age(now)
	}
	return total / time.Duration(len(observations))
}

func feeValues(observations []fees.Observation, field fees.Field) []float64 {
	out := make([]float64, 0, len(observations))
	for _, obs := range observations {
		out = append(out, obs.Fee(field))
	}
	return out
}

func sortedFees(observations []fees.Observation, field fees.Field) []float64 {
	out := feeValues(observations, field)
	sort.Float64s(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
