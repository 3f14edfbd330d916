package config

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
)

// ChangeFunc is called after a new configuration has been accepted.
type ChangeFunc func(prev, next *Config)

// Reloader holds the current configuration and replaces it when the file
// changes or the process receives SIGHUP. A file that fails to load or
// validate is rejected and the previous configuration stays in effect.
type Reloader struct {
	path   string
	poll   time.Duration
	logger *logging.Logger

	current atomic.Pointer[Config]

	mu      sync.Mutex
	hooks   []ChangeFunc
	modTime time.Time
}

// NewReloader starts from initial. A zero poll interval disables file polling.
func NewReloader(path string, initial *Config, poll time.Duration, logger *logging.Logger) *Reloader {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	r := &Reloader{path: path, poll: poll, logger: logger.With("component", "config")}
	r.current.Store(initial)
	if info, err := os.Stat(path); err == nil {
		r.modTime = info.ModTime()
	}
	return r
}

// Current returns the active configuration. Callers must not modify it.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnChange registers fn for future accepted reloads.
func (r *Reloader) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Reload loads the file now.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	if info, err := os.Stat(r.path); err == nil {
		r.modTime = info.ModTime()
	}
	r.mu.Unlock()

	next, err := Load(r.path)
	if err != nil {
		metrics.RecordConfigReload(false)
		r.logger.Error("Rejected configuration reload", "path", r.path, "error", err)
		return err
	}

	r.mu.Lock()
	prev := r.current.Swap(next)
	hooks := append([]ChangeFunc(nil), r.hooks...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(prev, next)
	}
	metrics.RecordConfigReload(true)
	r.logger.Info("Configuration reloaded", "path", r.path)
	return nil
}

// Run reloads on SIGHUP and on modification-time changes until ctx is done.
func (r *Reloader) Run(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var tick <-chan time.Time
	if r.poll > 0 {
		ticker := time.NewTicker(r.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hup:
			r.logger.Info("SIGHUP received, reloading configuration")
			_ = r.Reload()
		case <-tick:
			if r.changed() {
				_ = r.Reload()
			}
		}
	}
}

func (r *Reloader) changed() bool {
	info, err := os.Stat(r.path)
	if err != nil {
		r.logger.Debug("Cannot stat configuration file", "path", r.path, "error", err)
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !info.ModTime().Equal(r.modTime)
}
