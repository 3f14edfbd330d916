//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/StrathCole/fee-oracle/pkg/config"
	"github.com/StrathCole/fee-oracle/pkg/logging"
)

// InitializeApp wires the application from a loaded configuration.
func InitializeApp(ctx context.Context, path ConfigPath, cfg *config.Config, logger *logging.Logger) (*App, func(), error) {
	wire.Build(
		ProvideCodec,
		ProvideHotStores,
		ProvideRecordSeries,
		ProvideResultStore,
		ProvideReloader,
		ProvideWeightTable,
		ProvideObservationSource,
		ProvideSymbolLister,
		ProvideHub,
		ProvideNotifier,
		ProvideEngine,
		ProvideAPIServer,
		NewApp,
	)
	return &App{}, nil, nil
}
