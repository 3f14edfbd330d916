// Package memory provides in-process stores for single-node deployments and tests.
package memory

import (
	"time"
)

// Option configures a memory store.
type Option func(*options)

type options struct {
	now       func() time.Time
	retention time.Duration
	maxLen    int
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithRetention sets how long observations are kept.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		o.retention = d
	}
}

// WithMaxLen bounds the history series length.
func WithMaxLen(n int) Option {
	return func(o *options) {
		o.maxLen = n
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:       time.Now,
		retention: time.Hour,
		maxLen:    1000,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
