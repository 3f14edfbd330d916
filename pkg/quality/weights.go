// Package quality implements the statistical core of the fee oracle:
// source weights, outlier detection, cross-source consensus and anomaly
// detection. Nothing in this package blocks except the history store calls
// made by the anomaly detector.
package quality

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
)

// DefaultWeight is the weight of a source with no configured entry.
const DefaultWeight = 0.5

// WeightLookup resolves the reliability weight of a source.
type WeightLookup interface {
	WeightOf(source string) float64
}

// WeightTable maps source identifiers to reliability weights in [0,1].
// It is safe for concurrent use; writers never block an aggregation pass
// for longer than a single map write.
type WeightTable struct {
	mu      sync.RWMutex
	weights map[string]float64
}

var _ WeightLookup = (*WeightTable)(nil)

// NewWeightTable builds a table from initial weights. Any out of range
// entry fails construction.
func NewWeightTable(initial map[string]float64) (*WeightTable, error) {
	t := &WeightTable{weights: make(map[string]float64, len(initial))}
	if err := t.Apply(initial); err != nil {
		return nil, err
	}
	return t, nil
}

// WeightOf returns the configured weight, or DefaultWeight for unknown sources.
func (t *WeightTable) WeightOf(source string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if w, ok := t.weights[source]; ok {
		return w
	}
	return DefaultWeight
}

// SetWeight updates one source. Invalid weights are rejected and the
// previous value is kept.
func (t *WeightTable) SetWeight(source string, weight float64) error {
	if err := ValidateWeight(weight); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}

	t.mu.Lock()
	t.weights[source] = weight
	t.mu.Unlock()

	metrics.RecordSourceWeight(source, weight)
	return nil
}

// Apply sets every valid entry and returns the joined errors of the invalid ones.
func (t *WeightTable) Apply(weights map[string]float64) error {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := t.SetWeight(name, weights[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshot returns a copy of the configured weights.
func (t *WeightTable) Snapshot() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64, len(t.weights))
	for k, v := range t.weights {
		out[k] = v
	}
	return out
}

// ValidateWeight checks that a weight lies in [0,1].
func ValidateWeight(weight float64) error {
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return fmt.Errorf("%w: %v", fees.ErrInvalidWeight, weight)
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
