package backtest

import (
	"math"
	"time"
)

const tradingPeriodsPerYear = 252

// EquityPoint 是一根 K 线结束时的权益。
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Report 汇总一次回测的表现，运行结束后只生成一次。
type Report struct {
	Strategy              string             `json:"strategy"`
	TotalTrades           int                `json:"total_trades"`
	WinningTrades         int                `json:"winning_trades"`
	LosingTrades          int                `json:"losing_trades"`
	WinRate               float64            `json:"win_rate"`
	TotalProfit           float64            `json:"total_profit"`
	TotalReturnPct        float64            `json:"total_return_pct"`
	InitialCapital        float64            `json:"initial_capital"`
	FinalCapital          float64            `json:"final_capital"`
	AvgWin                float64            `json:"avg_win"`
	AvgLoss               float64            `json:"avg_loss"`
	ProfitFactor          float64            `json:"profit_factor"`
	MaxDrawdownPct        float64            `json:"max_drawdown_pct"`
	SharpeRatio           float64            `json:"sharpe_ratio"`
	AvgTradeDurationHours float64            `json:"avg_trade_duration_hours"`
	Profitable            bool               `json:"profitable"`
	Candles               int                `json:"candles"`
	FirstCandle           time.Time          `json:"first_candle"`
	LastCandle            time.Time          `json:"last_candle"`
	RejectedEntries       int                `json:"rejected_entries"`
	ExitReasons           map[ExitReason]int `json:"exit_reasons,omitempty"`
}

// ComputeReport 根据成交历史与权益曲线计算统计量。盈亏 <= 0 记为亏损。
func ComputeReport(initialCapital float64, trades []Trade, equity []EquityPoint) Report {
	rep := Report{
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
		TotalTrades:    len(trades),
	}
	var (
		winSum, lossSum float64
		durationHours   float64
	)
	for _, t := range trades {
		rep.TotalProfit += t.Profit
		durationHours += t.DurationHours()
		if t.Profit > 0 {
			rep.WinningTrades++
			winSum += t.Profit
		} else {
			rep.LosingTrades++
			lossSum += t.Profit
		}
		if t.ExitReason != "" {
			if rep.ExitReasons == nil {
				rep.ExitReasons = make(map[ExitReason]int)
			}
			rep.ExitReasons[t.ExitReason]++
		}
	}
	rep.FinalCapital = initialCapital + rep.TotalProfit
	if rep.TotalTrades > 0 {
		rep.WinRate = float64(rep.WinningTrades) / float64(rep.TotalTrades) * 100
		rep.AvgTradeDurationHours = durationHours / float64(rep.TotalTrades)
	}
	if initialCapital > 0 {
		rep.TotalReturnPct = (rep.FinalCapital - initialCapital) / initialCapital * 100
	}
	if rep.WinningTrades > 0 {
		rep.AvgWin = winSum / float64(rep.WinningTrades)
	}
	if rep.LosingTrades > 0 {
		rep.AvgLoss = lossSum / float64(rep.LosingTrades)
	}
	if rep.AvgLoss != 0 {
		rep.ProfitFactor = math.Abs(rep.AvgWin / rep.AvgLoss)
	}
	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Equity
	}
	rep.MaxDrawdownPct = MaxDrawdownPct(values)
	rep.SharpeRatio = SharpeRatio(values)
	rep.Profitable = rep.TotalProfit > 0
	return rep
}

// MaxDrawdownPct 返回最大回撤百分比：max((peak − equity) / peak × 100)。
func MaxDrawdownPct(equity []float64) float64 {
	var peak, maxDD float64
	for i, v := range equity {
		if i == 0 || v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// SharpeRatio 使用逐期收益：mean / 样本标准差 × √252；不足两期或标准差为 0 时返回 0。
func SharpeRatio(equity []float64) float64 {
	returns := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i]-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(returns)-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(tradingPeriodsPerYear)
}
