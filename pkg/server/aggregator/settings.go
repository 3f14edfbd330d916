package aggregator

import (
	"time"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/quality"
)

// Penalties are the confidence multipliers applied per degraded check.
// Every value must lie in [0,1].
type Penalties struct {
	InsufficientSources float64
	StaleData           float64
	Outliers            float64
	ValidationFailed    float64
	Anomaly             float64
}

// DefaultPenalties returns the stock penalty factors.
func DefaultPenalties() Penalties {
	return Penalties{
		InsufficientSources: 0.5,
		StaleData:           0.8,
		Outliers:            0.9,
		ValidationFailed:    0.5,
		Anomaly:             0.7,
	}
}

// Settings is the hot-reloadable engine configuration. The engine reads a
// fresh copy at the start of every tick.
type Settings struct {
	Interval            time.Duration
	SymbolTimeout       time.Duration
	MaxDataAge          time.Duration
	StalenessThreshold  time.Duration
	MinSources          int
	ExpectedSources     int
	ConfidenceThreshold float64
	OutlierThreshold    float64
	IQRMultiplier       float64
	PrimaryField        fees.Field
	MaxWorkers          int
	MinHistory          int
	MaxHistory          int
	Penalties           Penalties
}

// SettingsFunc returns the current settings.
type SettingsFunc func() Settings

// DefaultSettings returns settings suitable for tests and single-node use.
func DefaultSettings() Settings {
	return Settings{
		Interval:            30 * time.Second,
		SymbolTimeout:       15 * time.Second,
		MaxDataAge:          5 * time.Minute,
		StalenessThreshold:  2 * time.Minute,
		MinSources:          3,
		ExpectedSources:     5,
		ConfidenceThreshold: 0.6,
		OutlierThreshold:    quality.DefaultOutlierThreshold,
		IQRMultiplier:       quality.DefaultIQRMultiplier,
		PrimaryField:        fees.FieldMaker,
		MaxWorkers:          8,
		MinHistory:          quality.DefaultMinHistory,
		MaxHistory:          quality.DefaultMaxHistory,
		Penalties:           DefaultPenalties(),
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Interval <= 0 {
		s.Interval = d.Interval
	}
	if s.SymbolTimeout <= 0 {
		s.SymbolTimeout = s.Interval / 2
	}
	if s.MaxDataAge <= 0 {
		s.MaxDataAge = d.MaxDataAge
	}
	if s.StalenessThreshold <= 0 {
		s.StalenessThreshold = d.StalenessThreshold
	}
	if s.ExpectedSources <= 0 {
		s.ExpectedSources = d.ExpectedSources
	}
	if s.PrimaryField == "" {
		s.PrimaryField = fees.FieldMaker
	}
	if s.MaxWorkers <= 0 {
		s.MaxWorkers = 1
	}
	if s.Penalties == (Penalties{}) {
		s.Penalties = d.Penalties
	}
	return s
}

func (s Settings) outlierConfig() quality.OutlierConfig {
	return quality.OutlierConfig{Threshold: s.OutlierThreshold, IQRMultiplier: s.IQRMultiplier}
}

func (s Settings) anomalyConfig() quality.AnomalyConfig {
	return quality.AnomalyConfig{Threshold: s.OutlierThreshold, MinHistory: s.MinHistory, MaxHistory: s.MaxHistory}
}
