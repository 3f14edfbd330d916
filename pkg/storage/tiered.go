package storage

import (
	"context"
	"errors"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
)

// RecordSeries is an append-only per-symbol series of records.
type RecordSeries interface {
	Put(ctx context.Context, rec *fees.AggregatedRecord) error
	GetLatest(ctx context.Context, symbol string) (*fees.AggregatedRecord, error)
	GetRange(ctx context.Context, symbol string, from, to time.Time) ([]fees.AggregatedRecord, error)
}

// LatestPointer keeps the most recent record per symbol.
type LatestPointer interface {
	SetLatest(ctx context.Context, rec *fees.AggregatedRecord) error
	GetLatest(ctx context.Context, symbol string) (*fees.AggregatedRecord, error)
}

// Tiered writes records to a durable series and then moves the latest
// pointer. The pointer is only moved after the durable write succeeded.
type Tiered struct {
	durable RecordSeries
	latest  LatestPointer
	logger  *logging.Logger
}

// NewTiered creates a tiered store. latest may be nil, in which case reads
// of the latest record go to the durable series.
func NewTiered(durable RecordSeries, latest LatestPointer, logger *logging.Logger) *Tiered {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Tiered{durable: durable, latest: latest, logger: logger}
}

// Put stores rec durably and then updates the latest pointer.
func (t *Tiered) Put(ctx context.Context, rec *fees.AggregatedRecord) error {
	if err := t.durable.Put(ctx, rec); err != nil {
		metrics.RecordStorageError("durable", "put")
		return err
	}
	if t.latest == nil {
		return nil
	}
	if err := t.latest.SetLatest(ctx, rec); err != nil {
		metrics.RecordStorageError("latest", "set")
		return err
	}
	return nil
}

// GetLatest reads the latest pointer and falls back to the durable series
// when the pointer is missing or unreachable.
func (t *Tiered) GetLatest(ctx context.Context, symbol string) (*fees.AggregatedRecord, error) {
	if t.latest != nil {
		rec, err := t.latest.GetLatest(ctx, symbol)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, fees.ErrNotFound) {
			metrics.RecordStorageError("latest", "get")
			t.logger.Warn("Latest pointer read failed, using durable store", "symbol", symbol, "error", err)
		}
	}
	return t.durable.GetLatest(ctx, symbol)
}

// GetRange reads from the durable series.
func (t *Tiered) GetRange(ctx context.Context, symbol string, from, to time.Time) ([]fees.AggregatedRecord, error) {
	return t.durable.GetRange(ctx, symbol, from, to)
}
