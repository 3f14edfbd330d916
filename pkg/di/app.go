// Package di assembles the fee oracle from configuration.
package di

import (
	"context"
	"errors"
	"sync"

	"github.com/StrathCole/fee-oracle/pkg/config"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/server/aggregator"
	"github.com/StrathCole/fee-oracle/pkg/server/api"
)

// App is the assembled service.
type App struct {
	Engine   *aggregator.Engine
	Server   *api.Server // nil when the API is disabled
	Reloader *config.Reloader
	logger   *logging.Logger
}

// NewApp groups the long-running components.
func NewApp(engine *aggregator.Engine, server *api.Server, reloader *config.Reloader, logger *logging.Logger) *App {
	return &App{Engine: engine, Server: server, Reloader: reloader, logger: logger}
}

type component struct {
	name string
	run  func(ctx context.Context) error
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. The remaining components are then stopped and awaited.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	components := []component{
		{name: "engine", run: a.Engine.Start},
		{name: "reloader", run: a.Reloader.Run},
	}
	if a.Server != nil {
		components = append(components, component{name: "api", run: a.Server.Start})
	}

	errChan := make(chan error, len(components))
	var wg sync.WaitGroup
	for _, c := range components {
		wg.Add(1)
		go func(c component) {
			defer wg.Done()
			err := c.run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("Component stopped", "component", c.name, "error", err)
				errChan <- err
				return
			}
			a.logger.Info("Component stopped", "component", c.name)
		}(c)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errChan:
	}
	cancel()
	wg.Wait()
	return runErr
}
