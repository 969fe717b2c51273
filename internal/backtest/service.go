package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradesim/internal/logger"
	"tradesim/internal/market"
	"tradesim/internal/risk"
	"tradesim/internal/strategy"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ResultSink 持久化运行结果；失败的运行以 RunStatusFailed 和空结果写入。
type ResultSink interface {
	SaveRun(ctx context.Context, run Run, res Result) error
}

// ServiceConfig 配置 Service。
type ServiceConfig struct {
	Params        risk.Parameters
	Defaults      Options
	Candles       *market.Store
	Source        market.Source
	Strategies    *strategy.Registry
	Sink          ResultSink
	MaxConcurrent int
}

// Service 负责加载数据与规则、驱动引擎并保存结果。
type Service struct {
	params        risk.Parameters
	defaults      Options
	candles       *market.Store
	source        market.Source
	strategies    *strategy.Registry
	sink          ResultSink
	maxConcurrent int
	now           func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Params.Check(); err != nil {
		return nil, fmt.Errorf("risk parameters: %w", err)
	}
	defaults, err := cfg.Defaults.normalized()
	if err != nil {
		return nil, err
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Service{
		params:        cfg.Params,
		defaults:      defaults,
		candles:       cfg.Candles,
		source:        cfg.Source,
		strategies:    cfg.Strategies,
		sink:          cfg.Sink,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
	}, nil
}

// Strategies 返回注册表中的全部策略。
func (s *Service) Strategies() []strategy.Document {
	if s.strategies == nil {
		return nil
	}
	return s.strategies.Documents()
}

// Run 同步执行一次回测。
func (s *Service) Run(ctx context.Context, req RunRequest) (Run, Result, error) {
	run := Run{
		ID:        uuid.NewString(),
		Symbol:    market.NormalizeSymbol(req.Symbol),
		Timeframe: strings.ToLower(strings.TrimSpace(req.Timeframe)),
		CreatedAt: s.now(),
	}
	res, err := s.execute(ctx, req, &run)
	run.CompletedAt = s.now()
	if err != nil {
		run.Status = RunStatusFailed
		run.Message = err.Error()
		logger.Warnf("[backtest] run %s (%s) failed: %v", run.ID, run.Strategy, err)
		s.save(ctx, run, Result{})
		return run, Result{}, err
	}
	run.Status = RunStatusDone
	run.Report = res.Report
	logger.Infof("[backtest] run %s (%s) done: trades=%d return=%.2f%% drawdown=%.2f%%",
		run.ID, run.Strategy, res.Report.TotalTrades, res.Report.TotalReturnPct, res.Report.MaxDrawdownPct)
	if err := s.save(ctx, run, res); err != nil {
		return run, res, err
	}
	return run, res, nil
}

func (s *Service) execute(ctx context.Context, req RunRequest, run *Run) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	rules, err := s.resolveRules(req)
	if err != nil {
		return Result{}, err
	}
	run.Strategy = rules.Name
	run.Rules = strategy.DocumentOf(rules)

	candles, source, err := s.resolveCandles(ctx, req)
	run.DataSource = source
	if err != nil {
		return Result{}, err
	}
	logger.Infof("[backtest] run %s %s: %s", run.ID, source, market.Candles(candles).Summary())
	opts := s.defaults
	if req.InitialCapital > 0 {
		opts.InitialCapital = req.InitialCapital
	}
	if req.WindowSize > 0 {
		opts.WindowSize = req.WindowSize
	}
	if req.EnforceRiskGate != nil {
		opts.EnforceRiskGate = *req.EnforceRiskGate
	}
	if req.Sentiment != nil {
		opts.Sentiment = *req.Sentiment
	}
	opts.Label = run.ID
	run.Options = snapshotOptions(opts)

	engine, err := NewEngine(s.params, opts)
	if err != nil {
		return Result{}, err
	}
	if err := engine.LoadSeries(candles); err != nil {
		return Result{}, err
	}
	// 引擎本身不可取消，只在进入模拟前检查一次。
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return engine.Run(rules)
}

func (s *Service) save(ctx context.Context, run Run, res Result) error {
	if s.sink == nil {
		return nil
	}
	if err := s.sink.SaveRun(ctx, run, res); err != nil {
		logger.Errorf("[backtest] save run %s failed: %v", run.ID, err)
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Service) resolveRules(req RunRequest) (strategy.Rules, error) {
	if req.Rules != nil {
		return req.Rules.Rules()
	}
	name := strings.TrimSpace(req.Strategy)
	if name == "" {
		return strategy.Rules{}, &strategy.ConfigError{Field: "strategy", Reason: "strategy name or inline rules required"}
	}
	if s.strategies == nil {
		return strategy.Rules{}, &strategy.ConfigError{Field: "strategy", Reason: "no strategy registry configured"}
	}
	return s.strategies.Rules(name)
}

func (s *Service) resolveCandles(ctx context.Context, req RunRequest) ([]market.Candle, string, error) {
	switch {
	case len(req.Candles) > 0:
		return req.Candles, "inline", nil
	case strings.TrimSpace(req.DataFile) != "":
		candles, err := market.LoadFile(req.DataFile)
		if err != nil {
			return nil, "file:" + req.DataFile, fmt.Errorf("load %s: %w", req.DataFile, err)
		}
		return candles, "file:" + req.DataFile, nil
	case req.Symbol != "" && req.Timeframe != "":
		series, err := market.ParseSeries(req.Symbol, req.Timeframe)
		if err != nil {
			return nil, "store", err
		}
		source := "store:" + series.String()
		if s.candles == nil {
			return nil, source, errors.New("candle store 未配置")
		}
		candles, err := s.candles.RangeCandles(ctx, series.Symbol, series.Timeframe.Key, req.StartTS, req.EndTS)
		if err != nil {
			return nil, source, fmt.Errorf("query candles: %w", err)
		}
		if len(candles) == 0 {
			return nil, source, &market.DataError{Row: -1, Reason: "no candles stored for the requested range"}
		}
		return candles, source, nil
	default:
		return nil, "", &market.DataError{Row: -1, Reason: "no candle data supplied (candles, data_file or symbol+timeframe)"}
	}
}

// BatchItem 是批量运行中单个请求的结果。
type BatchItem struct {
	Run    Run    `json:"run"`
	Result Result `json:"-"`
	Err    error  `json:"-"`
}

// RunBatch 在独立引擎上并行执行多个请求，结果与请求一一对应；
// 返回的 error 汇总所有失败项。
func (s *Service) RunBatch(ctx context.Context, reqs []RunRequest) ([]BatchItem, error) {
	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i := range reqs {
		g.Go(func() error {
			run, res, err := s.Run(gctx, reqs[i])
			items[i] = BatchItem{Run: run, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	var errs []error
	for i, item := range items {
		if item.Err != nil {
			errs = append(errs, fmt.Errorf("batch[%d] %s: %w", i, item.Run.Strategy, item.Err))
		}
	}
	return items, errors.Join(errs...)
}

// FetchRequest 描述一次历史数据拉取。
type FetchRequest struct {
	Symbol    string
	Timeframe string
	Start     time.Time
	End       time.Time
}

// Fetch 从远端数据源拉取 K 线并写入本地 K 线库，返回写入条数。
func (s *Service) Fetch(ctx context.Context, req FetchRequest) (int, error) {
	if s.source == nil || s.candles == nil {
		return 0, errors.New("fetch requires a market source and a candle store")
	}
	series, err := market.ParseSeries(req.Symbol, req.Timeframe)
	if err != nil {
		return 0, err
	}
	symbol, tf := series.Symbol, series.Timeframe
	end := req.End
	if end.IsZero() {
		end = s.now()
	}
	start, stop := tf.AlignRange(req.Start.UnixMilli(), end.UnixMilli())
	if start == stop {
		return 0, errors.New("start 与 end 需要构成区间")
	}
	logger.Infof("[backtest] fetch %s %s from %s [%d,%d] expected=%d",
		symbol, tf.Key, s.source.Name(), start, stop, tf.ExpectedCandles(start, stop))
	candles, err := s.source.FetchRange(ctx, market.FetchRequest{
		Symbol:    symbol,
		Timeframe: tf,
		Start:     start,
		End:       stop,
	})
	if err != nil {
		return 0, fmt.Errorf("%s 拉取失败: %w", s.source.Name(), err)
	}
	if err := market.Validate(candles); err != nil {
		return 0, err
	}
	inserted, err := s.candles.InsertCandles(ctx, symbol, tf.Key, candles)
	if err != nil {
		return 0, fmt.Errorf("写入失败: %w", err)
	}
	return inserted, nil
}

// Manifest 读取本地 K 线库统计。
func (s *Service) Manifest(ctx context.Context, symbol, timeframe string) (market.Manifest, error) {
	if s.candles == nil {
		return market.Manifest{}, errors.New("candle store 未配置")
	}
	series, err := market.ParseSeries(symbol, timeframe)
	if err != nil {
		return market.Manifest{}, err
	}
	return s.candles.Manifest(ctx, series.Symbol, series.Timeframe.Key)
}
