// Package fees holds the fee oracle domain types shared by every layer.
package fees

import "errors"

var (
	// ErrNoFreshData indicates that no observation fell inside the freshness window.
	ErrNoFreshData = errors.New("no fresh data")
	// ErrInsufficientSources indicates fewer sources than the configured minimum.
	ErrInsufficientSources = errors.New("insufficient sources")
	// ErrInvalidWeight indicates a source weight outside [0,1].
	ErrInvalidWeight = errors.New("weight must be within [0,1]")
	// ErrValidationFailed indicates cross-source deviation was too high.
	ErrValidationFailed = errors.New("validation failed")
	// ErrStorageFailure indicates a collaborator I/O error.
	ErrStorageFailure = errors.New("storage failure")
	// ErrNotFound indicates that no record exists for a symbol.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidObservation indicates an observation rejected at ingestion.
	ErrInvalidObservation = errors.New("invalid observation")
	// ErrUnknownKind indicates an observation kind other than cex or dex.
	ErrUnknownKind = errors.New("unknown observation kind")
	// ErrInvalidSymbolFormat indicates that the symbol format is invalid.
	ErrInvalidSymbolFormat = errors.New("symbol must be in BASE/QUOTE format")
	// ErrEmptyBaseCurrency indicates that the symbol BASE currency cannot be empty.
	ErrEmptyBaseCurrency = errors.New("symbol BASE currency cannot be empty")
	// ErrEmptyQuoteCurrency indicates that the symbol QUOTE currency cannot be empty.
	ErrEmptyQuoteCurrency = errors.New("symbol QUOTE currency cannot be empty")
	// ErrUnknownField indicates a fee field other than maker or taker.
	ErrUnknownField = errors.New("unknown fee field")
)
