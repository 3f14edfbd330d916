package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
)

// Merged concatenates the observations of several sources. A failing
// source is logged and skipped; the merge fails only when all fail.
type Merged struct {
	sources []Source
	logger  *logging.Logger
}

// NewMerged combines sources.
func NewMerged(logger *logging.Logger, sources ...Source) *Merged {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Merged{sources: sources, logger: logger}
}

// GetFreshObservations implements the engine's observation source.
func (m *Merged) GetFreshObservations(ctx context.Context, symbol string, maxAge time.Duration) ([]fees.Observation, error) {
	var (
		out  []fees.Observation
		errs []error
	)
	for _, src := range m.sources {
		obs, err := src.GetFreshObservations(ctx, symbol, maxAge)
		if err != nil {
			m.logger.Warn("Source failed", "source", src.Name(), "symbol", symbol, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		out = append(out, obs...)
	}
	if len(m.sources) > 0 && len(errs) == len(m.sources) {
		return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	}
	return out, nil
}

// Named wraps an unnamed reader, such as an observation store.
type Named struct {
	ObservationReader
	name string
}

// NewNamed labels r.
func NewNamed(name string, r ObservationReader) *Named {
	return &Named{ObservationReader: r, name: name}
}

// Name returns the label.
func (n *Named) Name() string { return n.name }
