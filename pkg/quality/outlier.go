package quality

import (
	"math"
	"sort"

	"github.com/StrathCole/fee-oracle/pkg/fees"
)

const (
	// DefaultOutlierThreshold is the Z-score above which a value is an outlier.
	DefaultOutlierThreshold = 2.0
	// DefaultIQRMultiplier is the Tukey fence multiplier.
	DefaultIQRMultiplier = 1.5

	MethodZScore = "zscore"
	MethodIQR    = "iqr"
)

// OutlierConfig tunes the outlier detector.
type OutlierConfig struct {
	Threshold     float64
	IQRMultiplier float64
}

func (c OutlierConfig) withDefaults() OutlierConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultOutlierThreshold
	}
	if c.IQRMultiplier <= 0 {
		c.IQRMultiplier = DefaultIQRMultiplier
	}
	return c
}

// Outlier is one rejected value.
type Outlier struct {
	Value     float64  `json:"value"`
	Source    string   `json:"source"`
	Deviation float64  `json:"deviation"`
	ZScore    float64  `json:"z_score"`
	Methods   []string `json:"methods"`
}

// OutlierResult is the output of one detection pass. Clean and Outliers
// partition the input.
type OutlierResult struct {
	Outliers    []Outlier
	Clean       []fees.WeightedValue
	CleanValues []float64
	Statistics  Statistics
}

// FlaggedSources returns the set of sources with at least one outlier.
func (r OutlierResult) FlaggedSources() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Outliers))
	for _, o := range r.Outliers {
		out[o.Source] = struct{}{}
	}
	return out
}

// DetectOutliers flags values by Z-score and by the IQR fence and returns
// the union, keyed by source. The input is sorted canonically first so the
// result does not depend on input order.
func DetectOutliers(values []fees.WeightedValue, cfg OutlierConfig) OutlierResult {
	cfg = cfg.withDefaults()
	sorted := canonical(values)

	raw := make([]float64, len(sorted))
	for i, v := range sorted {
		raw[i] = v.Value
	}
	stats := Describe(raw)

	result := OutlierResult{Statistics: stats}
	if len(sorted) < 2 {
		result.Clean = sorted
		result.CleanValues = raw
		return result
	}

	q1 := Quantile(raw, 0.25)
	q3 := Quantile(raw, 0.75)
	iqr := q3 - q1
	lower := q1 - cfg.IQRMultiplier*iqr
	upper := q3 + cfg.IQRMultiplier*iqr

	methods := make(map[string][]string)
	zscores := make([]float64, len(sorted))
	for i, v := range sorted {
		if stats.StdDev > 0 {
			zscores[i] = math.Abs(v.Value-stats.Mean) / stats.StdDev
			if zscores[i] > cfg.Threshold {
				methods[v.Source] = appendMethod(methods[v.Source], MethodZScore)
			}
		}
		if v.Value < lower || v.Value > upper {
			methods[v.Source] = appendMethod(methods[v.Source], MethodIQR)
		}
	}

	for i, v := range sorted {
		if m, flagged := methods[v.Source]; flagged {
			result.Outliers = append(result.Outliers, Outlier{
				Value:     v.Value,
				Source:    v.Source,
				Deviation: math.Abs(v.Value - stats.Mean),
				ZScore:    zscores[i],
				Methods:   m,
			})
			continue
		}
		result.Clean = append(result.Clean, v)
		result.CleanValues = append(result.CleanValues, v.Value)
	}

	return result
}

func appendMethod(methods []string, method string) []string {
	for _, m := range methods {
		if m == method {
			return methods
		}
	}
	return append(methods, method)
}

// canonical returns a copy sorted by value, then source, then timestamp.
func canonical(values []fees.WeightedValue) []fees.WeightedValue {
	out := make([]fees.WeightedValue, len(values))
	copy(out, values)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
