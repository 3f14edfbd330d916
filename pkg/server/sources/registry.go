package sources

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
)

// ObservationReader returns the observations of a symbol inside a freshness window.
type ObservationReader interface {
	GetFreshObservations(ctx context.Context, symbol string, maxAge time.Duration) ([]fees.Observation, error)
}

// Source is a named ObservationReader.
type Source interface {
	ObservationReader
	Name() string
}

// Factory builds a source from its name and free-form settings.
type Factory func(name string, config map[string]interface{}, logger *logging.Logger) (Source, error)

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register adds a source factory under kind.
func Register(kind string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[kind] = factory
}

// Create builds a source of the given kind.
func Create(kind, name string, config map[string]interface{}, logger *logging.Logger) (Source, error) {
	mu.RLock()
	factory, ok := registry[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, kind)
	}
	return factory(name, config, logger)
}

// List returns all registered source kinds.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func stringSetting(config map[string]interface{}, key string) (string, bool) {
	v, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func durationSetting(config map[string]interface{}, key string, def time.Duration) (time.Duration, error) {
	v, ok := config[key]
	if !ok {
		return def, nil
	}
	switch val := v.(type) {
	case time.Duration:
		return val, nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
		return d, nil
	case int:
		return time.Duration(val) * time.Second, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidConfig, key, v)
	}
}
