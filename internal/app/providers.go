package app

import (
	"fmt"

	"tradesim/internal/backtest"
	"tradesim/internal/config"
	"tradesim/internal/logger"
	"tradesim/internal/market"
	"tradesim/internal/store/gormstore"
	"tradesim/internal/strategy"
	backtesthttp "tradesim/internal/transport/http/backtest"
)

func provideCandleStore(cfg *config.Config) (*market.Store, func(), error) {
	st, err := market.NewStore(cfg.Data.CandleRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化 K 线库失败: %w", err)
	}
	return st, func() { _ = st.Close() }, nil
}

func provideMarketSource(cfg *config.Config) market.Source {
	return market.NewBinanceSource(cfg.Market.Binance())
}

// provideStrategyRegistry 加载策略文件；开启 watch 时文件变更会热更新，cleanup 停止监听。
func provideStrategyRegistry(cfg *config.Config) (*strategy.Registry, func(), error) {
	reg, err := strategy.NewRegistry(cfg.Strategies.Path, cfg.Strategies.Watch)
	if err != nil {
		return nil, nil, fmt.Errorf("加载策略失败: %w", err)
	}
	reg.OnChange(func(snap strategy.Snapshot) {
		logger.Infof("[strategy] reloaded v%d: %d strategies", snap.Version, len(snap.Strategies))
	})
	return reg, func() {
		if err := reg.Close(); err != nil {
			logger.Warnf("[strategy] stop watcher: %v", err)
		}
	}, nil
}

func provideResultStore(cfg *config.Config) (*gormstore.ResultStore, func(), error) {
	rs, err := gormstore.NewResultStore(cfg.Data.ResultsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化结果库失败: %w", err)
	}
	return rs, func() { _ = rs.Close() }, nil
}

func provideBacktestService(cfg *config.Config, candles *market.Store, source market.Source, reg *strategy.Registry, results *gormstore.ResultStore) (*backtest.Service, error) {
	return backtest.NewService(backtest.ServiceConfig{
		Params:        cfg.Risk.Parameters(),
		Defaults:      cfg.Backtest.Options(),
		Candles:       candles,
		Source:        source,
		Strategies:    reg,
		Sink:          results,
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	})
}

func provideHTTPServer(cfg *config.Config, svc *backtest.Service, results *gormstore.ResultStore) (*backtesthttp.Server, error) {
	return backtesthttp.NewServer(backtesthttp.Config{
		Addr:    cfg.App.HTTPAddr,
		Svc:     svc,
		Results: results,
		Params:  cfg.Risk.Parameters(),
	})
}

func provideSummary(cfg *config.Config, reg *strategy.Registry, source market.Source) *StartupSummary {
	return &StartupSummary{
		Env:         cfg.App.Env,
		HTTPAddr:    cfg.App.HTTPAddr,
		Strategies:  reg.Names(),
		Risk:        cfg.Risk.Parameters(),
		Backtest:    cfg.Backtest.Options(),
		CandleRoot:  cfg.Data.CandleRoot,
		ResultsPath: cfg.Data.ResultsPath,
		Source:      source.Name(),
	}
}
