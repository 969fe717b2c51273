package backtest

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"tradesim/internal/logger"
	"tradesim/internal/market"
	"tradesim/internal/risk"
	"tradesim/internal/strategy"
)

const (
	DefaultInitialCapital = 10000.0
)

// Options 控制单个引擎的运行参数。
type Options struct {
	InitialCapital float64
	WindowSize     int
	// EnforceRiskGate 为 true 时每次入场都要通过风控校验，并遵守最小开仓间隔。
	EnforceRiskGate bool
	Sentiment       float64
	// Label 用于成交流水，通常为 run ID。
	Label string
}

func DefaultOptions() Options {
	return Options{InitialCapital: DefaultInitialCapital, WindowSize: DefaultWindowSize}
}

func (o Options) normalized() (Options, error) {
	if o.InitialCapital == 0 {
		o.InitialCapital = DefaultInitialCapital
	}
	if math.IsNaN(o.InitialCapital) || math.IsInf(o.InitialCapital, 0) || o.InitialCapital < 0 {
		return o, fmt.Errorf("initial capital must be a positive number")
	}
	if o.WindowSize < 0 {
		return o, fmt.Errorf("window size must be >= 0")
	}
	if o.WindowSize == 0 {
		o.WindowSize = DefaultWindowSize
	}
	return o, nil
}

// Result 是一次运行的完整输出。
type Result struct {
	Report Report        `json:"report"`
	Trades []Trade       `json:"trades"`
	Equity []EquityPoint `json:"equity"`
}

// Engine 在一条 K 线序列上回放策略。引擎之间不共享可变状态，每次 Run 从零开始。
type Engine struct {
	params    risk.Parameters
	sizer     *risk.Sizer
	validator *risk.Validator
	opts      Options
	candles   []market.Candle
}

func NewEngine(params risk.Parameters, opts Options) (*Engine, error) {
	if err := params.Check(); err != nil {
		return nil, fmt.Errorf("risk parameters: %w", err)
	}
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	return &Engine{
		params:    params,
		sizer:     risk.NewSizer(params),
		validator: risk.NewValidator(params),
		opts:      opts,
	}, nil
}

// LoadSeries 校验并保存序列副本；任何一行出错都不保留数据。
func (e *Engine) LoadSeries(candles []market.Candle) error {
	if err := market.Validate(candles); err != nil {
		e.candles = nil
		return err
	}
	e.candles = append([]market.Candle(nil), candles...)
	return nil
}

func (e *Engine) Options() Options { return e.opts }

// runState 是单次 Run 的全部可变状态。
type runState struct {
	book     *ledger
	equity   []EquityPoint
	rejected int
}

// Run 同步执行回测。规则或数据错误在模拟开始前返回。
func (e *Engine) Run(rules strategy.Rules) (Result, error) {
	prepared, err := rules.Prepare()
	if err != nil {
		return Result{}, err
	}
	if len(e.candles) == 0 {
		return Result{}, &market.DataError{Row: -1, Reason: "no candle series loaded"}
	}
	st := &runState{
		book:   newLedger(e.opts.InitialCapital),
		equity: make([]EquityPoint, 0, len(e.candles)),
	}
	clk := newClock(e.candles, e.opts.WindowSize)
	for clk.Next() {
		if err := e.step(prepared, st, clk.Current(), clk.Window()); err != nil {
			return Result{}, err
		}
	}
	if st.book.open != nil {
		last := clk.Last()
		if err := e.closePosition(st, last.Time(), last.Close, ExitEndOfData); err != nil {
			return Result{}, err
		}
	}

	rep := ComputeReport(e.opts.InitialCapital, st.book.history, st.equity)
	rep.Strategy = prepared.Name
	rep.Candles = len(e.candles)
	rep.FirstCandle = e.candles[0].Time()
	rep.LastCandle = clk.Last().Time()
	rep.RejectedEntries = st.rejected
	logger.Debugf("backtest %s finished: trades=%d profit=%.4f drawdown=%.2f%%",
		prepared.Name, rep.TotalTrades, rep.TotalProfit, rep.MaxDrawdownPct)
	return Result{Report: rep, Trades: st.book.history, Equity: st.equity}, nil
}

// step 处理一根 K 线：持仓时依次检查止损、止盈、出场信号；空仓时检查入场。
// 同一根 K 线平仓后不再开仓。
func (e *Engine) step(rules strategy.Rules, st *runState, cur market.Candle, window []market.Candle) error {
	at := cur.Time()
	if pos := st.book.open; pos != nil {
		price, reason, hit, err := e.exitFor(rules, pos, cur, window)
		if err != nil {
			return err
		}
		if hit {
			if err := e.closePosition(st, at, price, reason); err != nil {
				return err
			}
		}
	} else {
		fire, err := rules.Entry.Evaluate(strategy.ModeEntry, cur, window)
		if err != nil {
			return err
		}
		if fire {
			if err := e.openPosition(rules, st, cur); err != nil {
				return err
			}
		}
	}
	st.equity = append(st.equity, EquityPoint{Time: at, Equity: st.book.equity(cur.Close)})
	return nil
}

func (e *Engine) exitFor(rules strategy.Rules, pos *Trade, cur market.Candle, window []market.Candle) (float64, ExitReason, bool, error) {
	adverse, favorable := cur.Low, cur.High
	if pos.Direction.Sign() < 0 {
		adverse, favorable = cur.High, cur.Low
	}
	if risk.HitStopLoss(pos.Direction, adverse, pos.StopLoss) {
		return pos.StopLoss, ExitStopLoss, true, nil
	}
	if risk.HitTakeProfit(pos.Direction, favorable, pos.TakeProfit) {
		return pos.TakeProfit, ExitTakeProfit, true, nil
	}
	fire, err := rules.Exit.Evaluate(strategy.ModeExit, cur, window)
	if err != nil {
		return 0, "", false, err
	}
	if fire {
		return cur.Close, ExitSignal, true, nil
	}
	return 0, "", false, nil
}

func (e *Engine) openPosition(rules strategy.Rules, st *runState, cur market.Candle) error {
	at := cur.Time()
	if e.opts.EnforceRiskGate {
		if reason := e.gate(rules, st, at); reason != "" {
			st.rejected++
			logger.Debugf("backtest %s entry rejected at %s: %s", rules.Name, at.Format(time.RFC3339), reason)
			return nil
		}
	}
	notional := e.sizer.Size(st.book.capital, rules.PositionSizePercent/100)
	qty := risk.Quantity(notional, cur.Close)
	if qty <= 0 {
		return nil
	}
	trade, err := st.book.openTrade(Trade{
		Direction:  rules.Direction,
		EntryTime:  at,
		EntryPrice: cur.Close,
		Quantity:   qty,
		Notional:   notional,
		StopLoss:   risk.StopLossPrice(cur.Close, rules.StopLossPercent, rules.Direction),
		TakeProfit: risk.TakeProfitPrice(cur.Close, rules.TakeProfitPercent, rules.Direction),
	})
	if err != nil {
		return err
	}
	logger.Journal("open", e.opts.Label,
		logger.JournalField{Key: "strategy", Value: rules.Name},
		logger.JournalField{Key: "side", Value: trade.Direction.String()},
		logger.JournalField{Key: "price", Value: formatFloat(trade.EntryPrice)},
		logger.JournalField{Key: "qty", Value: formatFloat(trade.Quantity)},
		logger.JournalField{Key: "sl", Value: formatFloat(trade.StopLoss)},
		logger.JournalField{Key: "tp", Value: formatFloat(trade.TakeProfit)},
	)
	return nil
}

// gate 返回拒绝原因；空字符串表示放行。
func (e *Engine) gate(rules strategy.Rules, st *runState, at time.Time) string {
	if minGap := e.params.MinSecondsBetweenTrades; minGap > 0 && !st.book.lastEntry.IsZero() {
		if at.Sub(st.book.lastEntry) < time.Duration(minGap)*time.Second {
			return "cooldown"
		}
	}
	violation := e.validator.Validate(risk.Proposal{
		Sentiment:         e.opts.Sentiment,
		RiskPercent:       rules.PositionSizePercent / 100,
		StopLossPercent:   rules.StopLossPercent / 100,
		TakeProfitPercent: rules.TakeProfitPercent / 100,
		Direction:         rules.Direction,
	})
	if violation != nil {
		return violation.Error()
	}
	return ""
}

func (e *Engine) closePosition(st *runState, at time.Time, price float64, reason ExitReason) error {
	trade, err := st.book.closeTrade(at, price, reason)
	if err != nil {
		return err
	}
	logger.Journal("close", e.opts.Label,
		logger.JournalField{Key: "reason", Value: string(reason)},
		logger.JournalField{Key: "price", Value: formatFloat(price)},
		logger.JournalField{Key: "profit", Value: formatFloat(trade.Profit)},
		logger.JournalField{Key: "capital", Value: formatFloat(st.book.capital)},
	)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
