package aggregator

import (
	"sort"
	"sync"
	"time"
)

// SymbolState is the pipeline stage a symbol is currently in.
type SymbolState string

const (
	StateIdle          SymbolState = "idle"
	StateFetching      SymbolState = "fetching"
	StateValidating    SymbolState = "validating"
	StateConsolidating SymbolState = "consolidating"
	StatePersisting    SymbolState = "persisting"
	StateFailed        SymbolState = "failed"
)

// Cycle results as reported in status and metrics.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// SymbolStatus is the last known state of one symbol.
type SymbolStatus struct {
	Symbol         string      `json:"symbol"`
	State          SymbolState `json:"state"`
	LastResult     string      `json:"last_result,omitempty"`
	LastError      string      `json:"last_error,omitempty"`
	LastRecordAt   time.Time   `json:"last_record_at,omitempty"`
	LastConfidence float64     `json:"last_confidence"`
	Cycles         uint64      `json:"cycles"`
	Failures       uint64      `json:"failures"`
}

// Status is a snapshot of the engine.
type Status struct {
	Running  bool           `json:"running"`
	LastTick time.Time      `json:"last_tick,omitempty"`
	Symbols  []SymbolStatus `json:"symbols"`
}

// tracker owns per-symbol state and the in-flight guard.
type tracker struct {
	mu       sync.Mutex
	symbols  map[string]*SymbolStatus
	inFlight map[string]struct{}
}

func newTracker() *tracker {
	return &tracker{
		symbols:  make(map[string]*SymbolStatus),
		inFlight: make(map[string]struct{}),
	}
}

func (t *tracker) entry(symbol string) *SymbolStatus {
	s, ok := t.symbols[symbol]
	if !ok {
		s = &SymbolStatus{Symbol: symbol, State: StateIdle}
		t.symbols[symbol] = s
	}
	return s
}

// tryAcquire marks symbol as in flight. It returns false if a cycle for the
// symbol is already running.
func (t *tracker) tryAcquire(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.inFlight[symbol]; busy {
		return false
	}
	t.inFlight[symbol] = struct{}{}
	return true
}

func (t *tracker) release(symbol string) {
	t.mu.Lock()
	delete(t.inFlight, symbol)
	t.mu.Unlock()
}

func (t *tracker) setState(symbol string, state SymbolState) {
	t.mu.Lock()
	t.entry(symbol).State = state
	t.mu.Unlock()
}

// lastRecordAt returns the timestamp of the newest record produced for symbol.
func (t *tracker) lastRecordAt(symbol string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.symbols[symbol]
	if !ok || s.LastRecordAt.IsZero() {
		return time.Time{}, false
	}
	return s.LastRecordAt, true
}

func (t *tracker) seed(symbol string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entry(symbol)
	if at.After(s.LastRecordAt) {
		s.LastRecordAt = at
	}
}

func (t *tracker) finish(symbol, result string, err error, recordAt time.Time, confidence float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entry(symbol)
	s.Cycles++
	s.LastResult = result
	s.State = StateIdle
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
		return
	}
	s.LastError = ""
	s.LastRecordAt = recordAt
	s.LastConfidence = confidence
}

func (t *tracker) snapshot() []SymbolStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SymbolStatus, 0, len(t.symbols))
	for _, s := range t.symbols {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
