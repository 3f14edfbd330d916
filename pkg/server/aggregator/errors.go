// Package aggregator drives the periodic per-symbol aggregation pipeline.
package aggregator

import "errors"

var (
	// ErrMissingCollaborator indicates that a required engine dependency is nil.
	ErrMissingCollaborator = errors.New("missing required collaborator")
	// ErrStaleCycle indicates a cycle whose timestamp precedes the symbol's latest record.
	ErrStaleCycle = errors.New("stale cycle")
	// ErrNoCleanSources indicates that every source was flagged as an outlier.
	ErrNoCleanSources = errors.New("no clean sources remain")
	// ErrPipelinePanic indicates that a symbol pipeline panicked and was recovered.
	ErrPipelinePanic = errors.New("pipeline panic")
)

// ErrSymbolBusy indicates that a cycle for the symbol is already running.
var ErrSymbolBusy = errors.New("symbol busy")
