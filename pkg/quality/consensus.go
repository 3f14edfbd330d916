package quality

import (
	"math"
	"sort"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
)

// Severity grades how far a source sits from consensus.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	mediumDeviation = 0.10
	highDeviation   = 0.20

	// maxHighSeverityRatio is the share of high-severity sources a valid batch may contain.
	maxHighSeverityRatio = 0.30
	minTimeWeight        = 0.1
	unknownVolumeWeight  = 0.5
	minConfidence        = 0.1
)

// SourceDeviation is one source's distance from consensus.
type SourceDeviation struct {
	Source    string   `json:"source"`
	Deviation float64  `json:"deviation"`
	Severity  Severity `json:"severity"`
}

// Consensus is the agreed value of a batch.
type Consensus struct {
	Value   float64  `json:"value"`
	Sources []string `json:"sources"`
	Weight  float64  `json:"weight"`
}

// CrossValidationResult is the output of CrossValidate.
type CrossValidationResult struct {
	IsValid    bool              `json:"is_valid"`
	Confidence float64           `json:"confidence"`
	Deviations []SourceDeviation `json:"deviations"`
	Consensus  Consensus         `json:"consensus"`
}

// HighSeverityCount returns how many sources deviated with high severity.
func (r CrossValidationResult) HighSeverityCount() int {
	n := 0
	for _, d := range r.Deviations {
		if d.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// TimeWeight decays linearly from 1 at age 0 to a floor of 0.1 at maxAge.
func TimeWeight(age, maxAge time.Duration) float64 {
	if maxAge <= 0 {
		return 1
	}
	if age < 0 {
		age = 0
	}
	return math.Max(minTimeWeight, 1-age.Seconds()/maxAge.Seconds())
}

// VolumeWeight scales log10(volume+1)/10 into [0,1]. Unknown or
// non-positive volume weighs 0.5.
func VolumeWeight(volume float64, known bool) float64 {
	if !known || volume <= 0 || math.IsNaN(volume) {
		return unknownVolumeWeight
	}
	return math.Min(1, math.Log10(volume+1)/10)
}

// Weigh derives the weighted values of one fee field. The combined weight
// is sourceWeight × confidence × timeWeight × volumeWeight.
func Weigh(observations []fees.Observation, field fees.Field, weights WeightLookup, now time.Time, maxAge time.Duration) []fees.WeightedValue {
	out := make([]fees.WeightedValue, 0, len(observations))
	for _, obs := range observations {
		volume, known := obs.Volume()
		confidence := clamp01(obs.Confidence)
		weight := clamp01(weights.WeightOf(obs.Source)) *
			confidence *
			TimeWeight(obs.Age(now), maxAge) *
			VolumeWeight(volume, known)

		out = append(out, fees.WeightedValue{
			Value:      obs.Fee(field),
			Weight:     clamp01(weight),
			Source:     obs.Source,
			Confidence: confidence,
			Timestamp:  obs.Timestamp,
		})
	}
	return out
}

// WeightedMedian returns the first value, in ascending order, at which the
// cumulative weight reaches half of the total. The result is always one of
// the inputs. Equal values are ordered by source. When every weight is zero
// all values count equally. ok is false for an empty input.
func WeightedMedian(values []fees.WeightedValue) (median float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}

	sorted := canonical(values)

	total := 0.0
	for _, v := range sorted {
		total += v.Weight
	}
	equal := total <= 0 || math.IsNaN(total) || math.IsInf(total, 0)
	if equal {
		total = float64(len(sorted))
	}

	target := total / 2
	cumulative := 0.0
	for _, v := range sorted {
		if equal {
			cumulative++
		} else {
			cumulative += v.Weight
		}
		if cumulative >= target {
			return v.Value, true
		}
	}

	// Rounding left the running sum just short of target.
	return sorted[len(sorted)-1].Value, true
}

// Deviation returns |value-consensus|/consensus. A zero consensus yields 0
// for a zero value and 1 otherwise.
func Deviation(value, consensus float64) float64 {
	if consensus == 0 {
		if value == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(value-consensus) / math.Abs(consensus)
}

// Classify maps a deviation into a severity band.
func Classify(deviation float64) Severity {
	switch {
	case deviation < mediumDeviation:
		return SeverityLow
	case deviation <= highDeviation:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// CrossValidate computes the weighted-median consensus of the batch and
// grades every source against it. A batch is valid when at most 30% of its
// sources deviate with high severity.
func CrossValidate(values []fees.WeightedValue) CrossValidationResult {
	consensusValue, ok := WeightedMedian(values)
	if !ok {
		return CrossValidationResult{}
	}

	sorted := canonical(values)
	result := CrossValidationResult{
		Deviations: make([]SourceDeviation, 0, len(sorted)),
	}

	seen := make(map[string]struct{}, len(sorted))
	totalWeight := 0.0
	for _, v := range sorted {
		totalWeight += v.Weight

		dev := Deviation(v.Value, consensusValue)
		severity := Classify(dev)
		if consensusValue == 0 && v.Value != 0 {
			severity = SeverityHigh
		}
		result.Deviations = append(result.Deviations, SourceDeviation{
			Source:    v.Source,
			Deviation: dev,
			Severity:  severity,
		})

		if _, dup := seen[v.Source]; !dup {
			seen[v.Source] = struct{}{}
			result.Consensus.Sources = append(result.Consensus.Sources, v.Source)
		}
	}
	sort.Strings(result.Consensus.Sources)

	total := len(result.Deviations)
	high := result.HighSeverityCount()

	result.Consensus.Value = consensusValue
	result.Consensus.Weight = totalWeight
	result.IsValid = float64(high) <= maxHighSeverityRatio*float64(total)
	result.Confidence = math.Max(minConfidence, 1-float64(high)/float64(total))

	return result
}
