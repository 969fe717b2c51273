package backtest

import (
	"time"

	"tradesim/internal/market"
	"tradesim/internal/strategy"
)

const (
	RunStatusDone   = "done"
	RunStatusFailed = "failed"
)

// RunRequest 描述一次回测：策略来自注册表名称或内联规则，数据来自内联 K 线、文件或本地 K 线库。
type RunRequest struct {
	Strategy  string             `json:"strategy"`
	Rules     *strategy.Document `json:"rules,omitempty"`
	Symbol    string             `json:"symbol"`
	Timeframe string             `json:"timeframe"`
	StartTS   int64              `json:"start_ts"`
	EndTS     int64              `json:"end_ts"`
	DataFile  string             `json:"data_file,omitempty"`
	Candles   []market.Candle    `json:"candles,omitempty"`

	InitialCapital  float64  `json:"initial_capital,omitempty"`
	WindowSize      int      `json:"window_size,omitempty"`
	EnforceRiskGate *bool    `json:"enforce_risk_gate,omitempty"`
	Sentiment       *float64 `json:"sentiment,omitempty"`
}

// Run 是一次回测的元数据与汇总结果。
type Run struct {
	ID          string            `json:"id"`
	Strategy    string            `json:"strategy"`
	Symbol      string            `json:"symbol,omitempty"`
	Timeframe   string            `json:"timeframe,omitempty"`
	DataSource  string            `json:"data_source"`
	Status      string            `json:"status"`
	Message     string            `json:"message,omitempty"`
	Rules       strategy.Document `json:"rules"`
	Options     RunOptions        `json:"options"`
	Report      Report            `json:"report"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

// RunOptions 是 Options 的可序列化快照。
type RunOptions struct {
	InitialCapital  float64 `json:"initial_capital"`
	WindowSize      int     `json:"window_size"`
	EnforceRiskGate bool    `json:"enforce_risk_gate"`
	Sentiment       float64 `json:"sentiment"`
}

func snapshotOptions(o Options) RunOptions {
	return RunOptions{
		InitialCapital:  o.InitialCapital,
		WindowSize:      o.WindowSize,
		EnforceRiskGate: o.EnforceRiskGate,
		Sentiment:       o.Sentiment,
	}
}
