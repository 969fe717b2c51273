package app

import (
	"context"
	"fmt"

	"tradesim/internal/backtest"
	"tradesim/internal/config"
	"tradesim/internal/logger"
	"tradesim/internal/strategy"
	backtesthttp "tradesim/internal/transport/http/backtest"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→对外提供回测服务。
type App struct {
	cfg      *config.Config
	svc      *backtest.Service
	registry *strategy.Registry
	http     *backtesthttp.Server
	cleanup  func()
	Summary  *StartupSummary
}

func newApp(cfg *config.Config, svc *backtest.Service, reg *strategy.Registry, srv *backtesthttp.Server, summary *StartupSummary) *App {
	return &App{cfg: cfg, svc: svc, registry: reg, http: srv, Summary: summary}
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	a, cleanup, err := buildAppWithWire(cfg)
	if err != nil {
		return nil, err
	}
	a.cleanup = cleanup
	return a, nil
}

// Service 返回回测服务，供命令行直接调用。
func (a *App) Service() *backtest.Service {
	if a == nil {
		return nil
	}
	return a.svc
}

func (a *App) Registry() *strategy.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// Serve 启动 HTTP 服务，阻塞直到 ctx 取消。
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Log()
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("backtest http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close 停止策略文件监听并释放 K 线库与结果库。
func (a *App) Close() {
	if a == nil || a.cleanup == nil {
		return
	}
	a.cleanup()
	a.cleanup = nil
}
