// Package sources provides observation sources that feed the aggregation engine.
package sources

import "errors"

var (
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrInvalidResponse indicates an undecodable upstream response.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrUnknownSource indicates a source type with no registered factory.
	ErrUnknownSource = errors.New("unknown source")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrAllSourcesFailed indicates that every merged source returned an error.
	ErrAllSourcesFailed = errors.New("all sources failed")
)
