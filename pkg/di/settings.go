package di

import (
	"github.com/StrathCole/fee-oracle/pkg/config"
	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/server/aggregator"
)

// EngineSettings maps a configuration snapshot onto engine settings.
func EngineSettings(cfg *config.Config) aggregator.Settings {
	agg := cfg.Aggregation
	q := cfg.Quality
	return aggregator.Settings{
		Interval:            agg.Interval,
		SymbolTimeout:       agg.EffectiveSymbolTimeout(),
		MaxDataAge:          agg.MaxDataAge,
		StalenessThreshold:  agg.StalenessThreshold,
		MinSources:          agg.MinSources,
		ExpectedSources:     agg.ExpectedSources,
		ConfidenceThreshold: agg.ConfidenceThreshold,
		OutlierThreshold:    q.OutlierThreshold,
		IQRMultiplier:       q.IQRMultiplier,
		PrimaryField:        fees.Field(agg.PrimaryField),
		MaxWorkers:          agg.MaxWorkers,
		MinHistory:          q.MinHistory,
		MaxHistory:          q.MaxHistory,
		Penalties: aggregator.Penalties{
			InsufficientSources: q.Penalties.InsufficientSources,
			StaleData:           q.Penalties.StaleData,
			Outliers:            q.Penalties.Outliers,
			ValidationFailed:    q.Penalties.ValidationFailed,
			Anomaly:             q.Penalties.Anomaly,
		},
	}
}
