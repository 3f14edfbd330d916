package aggregator

import (
	"context"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
)

// ObservationSource returns the observations of a symbol inside a freshness window.
type ObservationSource interface {
	GetFreshObservations(ctx context.Context, symbol string, maxAge time.Duration) ([]fees.Observation, error)
}

// SymbolLister returns the symbols to aggregate on each tick.
type SymbolLister interface {
	ActiveSymbols(ctx context.Context) ([]string, error)
}

// ResultStore persists aggregated records.
type ResultStore interface {
	Put(ctx context.Context, rec *fees.AggregatedRecord) error
	GetLatest(ctx context.Context, symbol string) (*fees.AggregatedRecord, error)
	GetRange(ctx context.Context, symbol string, from, to time.Time) ([]fees.AggregatedRecord, error)
}

// Notifier receives a notification for every persisted record.
type Notifier interface {
	Notify(ctx context.Context, n fees.Notification) error
}

// StaticSymbols is a fixed symbol list.
type StaticSymbols []string

// ActiveSymbols returns the configured symbols.
func (s StaticSymbols) ActiveSymbols(context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}
