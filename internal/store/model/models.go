package model

import "gorm.io/datatypes"

// RunModel 保存一次回测的元数据与汇总指标；完整报告、规则和参数以 JSON 存放。
type RunModel struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Strategy        string         `gorm:"column:strategy;index"`
	Symbol          string         `gorm:"column:symbol"`
	Timeframe       string         `gorm:"column:timeframe"`
	DataSource      string         `gorm:"column:data_source"`
	Status          string         `gorm:"column:status"`
	Message         string         `gorm:"column:message"`
	TotalTrades     int            `gorm:"column:total_trades"`
	TotalProfit     float64        `gorm:"column:total_profit"`
	TotalReturnPct  float64        `gorm:"column:total_return_pct"`
	WinRate         float64        `gorm:"column:win_rate"`
	MaxDrawdownPct  float64        `gorm:"column:max_drawdown_pct"`
	SharpeRatio     float64        `gorm:"column:sharpe_ratio"`
	ReportJSON      datatypes.JSON `gorm:"column:report_json;type:TEXT"`
	RulesJSON       datatypes.JSON `gorm:"column:rules_json;type:TEXT"`
	OptionsJSON     datatypes.JSON `gorm:"column:options_json;type:TEXT"`
	CreatedAtUnix   int64          `gorm:"column:created_at;index"`
	CompletedAtUnix int64          `gorm:"column:completed_at"`
}

func (RunModel) TableName() string { return "runs" }

// TradeModel 是一笔已平仓交易，时间为 Unix 毫秒。
type TradeModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	RunID         string  `gorm:"column:run_id;index"`
	Seq           int     `gorm:"column:seq"`
	Direction     string  `gorm:"column:direction"`
	EntryTime     int64   `gorm:"column:entry_time"`
	EntryPrice    float64 `gorm:"column:entry_price"`
	Quantity      float64 `gorm:"column:quantity"`
	Notional      float64 `gorm:"column:notional"`
	StopLoss      float64 `gorm:"column:stop_loss"`
	TakeProfit    float64 `gorm:"column:take_profit"`
	ExitTime      int64   `gorm:"column:exit_time"`
	ExitPrice     float64 `gorm:"column:exit_price"`
	ExitReason    string  `gorm:"column:exit_reason"`
	Profit        float64 `gorm:"column:profit"`
	ProfitPercent float64 `gorm:"column:profit_percent"`
	DurationMs    int64   `gorm:"column:duration_ms"`
}

func (TradeModel) TableName() string { return "run_trades" }

// EquityModel 是权益曲线上的一个点。
type EquityModel struct {
	ID     int64   `gorm:"column:id;primaryKey"`
	RunID  string  `gorm:"column:run_id;index:idx_run_equity,priority:1"`
	TS     int64   `gorm:"column:ts;index:idx_run_equity,priority:2"`
	Equity float64 `gorm:"column:equity"`
}

func (EquityModel) TableName() string { return "run_equity" }
