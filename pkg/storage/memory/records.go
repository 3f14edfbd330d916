package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
)

// RecordStore is an in-memory record series.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string][]fees.AggregatedRecord
}

// NewRecordStore creates an empty record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string][]fees.AggregatedRecord)}
}

// Put appends rec keeping the series ordered by timestamp.
func (s *RecordStore) Put(_ context.Context, rec *fees.AggregatedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := append(s.records[rec.Symbol], *rec)
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	s.records[rec.Symbol] = series
	return nil
}

// GetLatest returns the newest record for symbol.
func (s *RecordStore) GetLatest(_ context.Context, symbol string) (*fees.AggregatedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.records[symbol]
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: %s", fees.ErrNotFound, symbol)
	}
	rec := series[len(series)-1]
	return &rec, nil
}

// GetRange returns records with from <= timestamp <= to, oldest first.
func (s *RecordStore) GetRange(_ context.Context, symbol string, from, to time.Time) ([]fees.AggregatedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []fees.AggregatedRecord
	for _, rec := range s.records[symbol] {
		if rec.Timestamp.Before(from) || rec.Timestamp.After(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
