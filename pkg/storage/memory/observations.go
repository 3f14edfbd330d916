package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
)

// ObservationStore keeps recent observations per symbol.
type ObservationStore struct {
	mu   sync.RWMutex
	data map[string][]fees.Observation
	opts options
}

// NewObservationStore creates an empty observation store.
func NewObservationStore(opts ...Option) *ObservationStore {
	return &ObservationStore{
		data: make(map[string][]fees.Observation),
		opts: buildOptions(opts),
	}
}

// Append adds an observation and drops entries older than the retention window.
func (s *ObservationStore) Append(_ context.Context, obs fees.Observation) error {
	cutoff := s.opts.now().Add(-s.opts.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[obs.Symbol] = append(s.data[obs.Symbol], obs)
	s.pruneLocked(obs.Symbol, cutoff)
	return nil
}

// pruneLocked drops entries before cutoff and forgets symbols left empty.
func (s *ObservationStore) pruneLocked(symbol string, cutoff time.Time) {
	kept := s.data[symbol][:0]
	for _, o := range s.data[symbol] {
		if !o.Timestamp.Before(cutoff) {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		delete(s.data, symbol)
		return
	}
	s.data[symbol] = kept
}

// GetFreshObservations returns observations for symbol not older than maxAge.
func (s *ObservationStore) GetFreshObservations(_ context.Context, symbol string, maxAge time.Duration) ([]fees.Observation, error) {
	cutoff := s.opts.now().Add(-maxAge)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []fees.Observation
	for _, o := range s.data[symbol] {
		if !o.Timestamp.Before(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}

// ActiveSymbols lists every symbol with an observation inside the retention
// window. Symbols that stopped reporting are pruned here.
func (s *ObservationStore) ActiveSymbols(_ context.Context) ([]string, error) {
	cutoff := s.opts.now().Add(-s.opts.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.data))
	for symbol := range s.data {
		s.pruneLocked(symbol, cutoff)
		if _, ok := s.data[symbol]; ok {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}
