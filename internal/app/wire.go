//go:build wireinject

package app

import (
	"tradesim/internal/config"

	"github.com/google/wire"
)

var providerSet = wire.NewSet(
	provideCandleStore,
	provideMarketSource,
	provideStrategyRegistry,
	provideResultStore,
	provideBacktestService,
	provideHTTPServer,
	provideSummary,
	newApp,
)

func buildAppWithWire(cfg *config.Config) (*App, func(), error) {
	wire.Build(providerSet)
	return nil, nil, nil
}
