package aggregator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
	"github.com/StrathCole/fee-oracle/pkg/quality"
)

// Deps are the collaborators of an Engine. Notifier is optional.
type Deps struct {
	Source   ObservationSource
	Symbols  SymbolLister
	Store    ResultStore
	History  quality.HistoryStore
	Weights  quality.WeightLookup
	Notifier Notifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs the aggregation pipeline for every active symbol on a fixed
// interval. Symbols are processed concurrently up to MaxWorkers and a
// symbol never has two cycles in flight.
type Engine struct {
	source   ObservationSource
	symbols  SymbolLister
	store    ResultStore
	weights  quality.WeightLookup
	notifier Notifier
	detector *quality.AnomalyDetector
	settings SettingsFunc
	logger   *logging.Logger
	now      func() time.Time

	tracker *tracker

	mu       sync.RWMutex
	running  bool
	lastTick time.Time
}

// NewEngine validates deps and builds an engine.
func NewEngine(deps Deps, settings SettingsFunc, logger *logging.Logger, opts ...Option) (*Engine, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("%w: observation source", ErrMissingCollaborator)
	case deps.Symbols == nil:
		return nil, fmt.Errorf("%w: symbol lister", ErrMissingCollaborator)
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: result store", ErrMissingCollaborator)
	case deps.History == nil:
		return nil, fmt.Errorf("%w: history store", ErrMissingCollaborator)
	case deps.Weights == nil:
		return nil, fmt.Errorf("%w: weight table", ErrMissingCollaborator)
	case settings == nil:
		return nil, fmt.Errorf("%w: settings", ErrMissingCollaborator)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	logger = logger.With("component", "engine")

	e := &Engine{
		source:   deps.Source,
		symbols:  deps.Symbols,
		store:    deps.Store,
		weights:  deps.Weights,
		notifier: deps.Notifier,
		detector: quality.NewAnomalyDetector(deps.History, logger),
		settings: settings,
		logger:   logger,
		now:      time.Now,
		tracker:  newTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) currentSettings() Settings {
	return e.settings().withDefaults()
}

// Start runs ticks until ctx is cancelled. A tick runs immediately and then
// every Interval; a changed interval takes effect after the next tick.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	interval := e.currentSettings().Interval
	e.logger.Info("Starting aggregation engine", "interval", interval.String())

	var ticks sync.WaitGroup
	runTick := func() {
		ticks.Add(1)
		go func() {
			defer ticks.Done()
			e.Tick(ctx)
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runTick()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Aggregation engine stopping")
			ticks.Wait()
			return ctx.Err()
		case <-ticker.C:
			if next := e.currentSettings().Interval; next != interval {
				e.logger.Info("Aggregation interval changed", "from", interval.String(), "to", next.String())
				interval = next
				ticker.Reset(interval)
			}
			runTick()
		}
	}
}

// Tick runs one aggregation round over all active symbols and waits for it
// to finish. Symbols still busy from an earlier round are skipped.
func (e *Engine) Tick(ctx context.Context) {
	settings := e.currentSettings()

	e.mu.Lock()
	e.lastTick = e.now()
	e.mu.Unlock()

	symbols, err := e.symbols.ActiveSymbols(ctx)
	if err != nil {
		e.logger.Error("Failed to list active symbols", "error", err)
		return
	}

	sem := make(chan struct{}, settings.MaxWorkers)
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		if !e.tracker.tryAcquire(symbol) {
			e.logger.Debug("Skipping busy symbol", "symbol", symbol)
			metrics.RecordSkipped(symbol)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			e.tracker.release(symbol)
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer e.tracker.release(symbol)
			_, _ = e.runSymbol(ctx, symbol, settings)
		}(symbol)
	}
	wg.Wait()
}

// RunOnce aggregates a single symbol now. It returns the persisted record,
// or an error if the cycle was skipped or failed. A symbol with a cycle
// already in flight yields ErrSymbolBusy.
func (e *Engine) RunOnce(ctx context.Context, symbol string) (*fees.AggregatedRecord, error) {
	if !e.tracker.tryAcquire(symbol) {
		metrics.RecordSkipped(symbol)
		return nil, fmt.Errorf("%w: %s already in flight", ErrSymbolBusy, symbol)
	}
	defer e.tracker.release(symbol)
	return e.runSymbol(ctx, symbol, e.currentSettings())
}

// Status returns a snapshot of the engine and all symbols seen so far.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Running:  e.running,
		LastTick: e.lastTick,
		Symbols:  e.tracker.snapshot(),
	}
}

func (e *Engine) runSymbol(parent context.Context, symbol string, settings Settings) (*fees.AggregatedRecord, error) {
	start := time.Now()
	logger := e.logger.With("symbol", symbol)

	ctx, cancel := context.WithTimeout(parent, settings.SymbolTimeout)
	defer cancel()

	rec, err := e.aggregateRecovered(ctx, logger, symbol, settings)
	if err != nil && !errors.Is(err, ErrPipelinePanic) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: pipeline exceeded %s: %w", fees.ErrStorageFailure, settings.SymbolTimeout, ctx.Err())
	}

	switch {
	case err == nil:
		metrics.RecordCycle(symbol, ResultOK, time.Since(start))
		e.tracker.finish(symbol, ResultOK, nil, rec.Timestamp, rec.Confidence)
		logger.Debug("Aggregation cycle completed",
			"consensus", rec.Consensus,
			"confidence", rec.Confidence,
			"sources", len(rec.Sources),
			"outliers", len(rec.Outliers))
		return rec, nil
	case errors.Is(err, fees.ErrNoFreshData), errors.Is(err, ErrStaleCycle):
		metrics.RecordCycle(symbol, ResultSkipped, time.Since(start))
		metrics.RecordFailure(symbol, failureReason(err))
		e.tracker.finish(symbol, ResultSkipped, err, time.Time{}, 0)
		logger.Debug("Aggregation cycle skipped", "error", err)
		return nil, err
	default:
		e.tracker.setState(symbol, StateFailed)
		metrics.RecordCycle(symbol, ResultFailed, time.Since(start))
		metrics.RecordFailure(symbol, failureReason(err))
		e.tracker.finish(symbol, ResultFailed, err, time.Time{}, 0)
		logger.Warn("Aggregation cycle failed", "error", err, "reason", failureReason(err))
		return nil, err
	}
}

// aggregateRecovered runs the pipeline and turns a panic into ErrPipelinePanic.
func (e *Engine) aggregateRecovered(ctx context.Context, logger *logging.Logger, symbol string, settings Settings) (rec *fees.AggregatedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Aggregation pipeline panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			rec, err = nil, fmt.Errorf("%w: %v", ErrPipelinePanic, r)
		}
	}()
	return e.aggregate(ctx, logger, symbol, settings)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrPipelinePanic):
		return "panic"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, fees.ErrNoFreshData):
		return "no_fresh_data"
	case errors.Is(err, ErrStaleCycle):
		return "stale_cycle"
	case errors.Is(err, fees.ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, fees.ErrStorageFailure):
		return "storage_failure"
	default:
		return "unknown"
	}
}
