package memory

import (
	"context"
	"sync"
)

// HistoryStore keeps a bounded FIFO series of means per symbol.
type HistoryStore struct {
	mu     sync.Mutex
	series map[string][]float64
	maxLen int
}

// NewHistoryStore creates a history store bounded by WithMaxLen.
func NewHistoryStore(opts ...Option) *HistoryStore {
	o := buildOptions(opts)
	return &HistoryStore{series: make(map[string][]float64), maxLen: o.maxLen}
}

// AppendMean appends value and evicts the oldest entries beyond the bound.
func (h *HistoryStore) AppendMean(_ context.Context, symbol string, value float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := append(h.series[symbol], value)
	if len(s) > h.maxLen {
		s = append([]float64(nil), s[len(s)-h.maxLen:]...)
	}
	h.series[symbol] = s
	return nil
}

// GetMeanSeries returns a copy of the series, oldest first.
func (h *HistoryStore) GetMeanSeries(_ context.Context, symbol string) ([]float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]float64(nil), h.series[symbol]...), nil
}
