package config

import (
	"strings"
	"time"

	"tradesim/internal/backtest"
	"tradesim/internal/market"
	"tradesim/internal/risk"
)

// Config 是 tradesim 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Risk       RiskConfig       `toml:"risk"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Data       DataConfig       `toml:"data"`
	Market     MarketConfig     `toml:"market"`
	Strategies StrategiesConfig `toml:"strategies"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	HTTPAddr    string `toml:"http_addr"`
	LogPath     string `toml:"log_path"`
	JournalPath string `toml:"journal_path"`
}

// RiskConfig 对应不可在运行中修改的风控常量，百分比为比例（0.01 = 1%）。
type RiskConfig struct {
	MaxRiskPercent          float64 `toml:"max_risk_percent"`
	MinPositionUSD          float64 `toml:"min_position_usd"`
	StopLossMaxRatio        float64 `toml:"stop_loss_max_ratio"`
	MinTakeProfitPercent    float64 `toml:"min_take_profit_percent"`
	SentimentMinThreshold   float64 `toml:"sentiment_min_threshold"`
	SentimentMin            float64 `toml:"sentiment_min"`
	SentimentMax            float64 `toml:"sentiment_max"`
	LongSentiment           float64 `toml:"long_sentiment"`
	ShortSentiment          float64 `toml:"short_sentiment"`
	MaxOpenPositions        int     `toml:"max_open_positions"`
	MinSecondsBetweenTrades int64   `toml:"min_seconds_between_trades"`
}

// Parameters 构造传给风控组件的不可变参数。
func (r RiskConfig) Parameters() risk.Parameters {
	return risk.Parameters{
		MaxRiskPercent:          r.MaxRiskPercent,
		MinPositionUSD:          r.MinPositionUSD,
		StopLossMaxRatio:        r.StopLossMaxRatio,
		MinTakeProfitPercent:    r.MinTakeProfitPercent,
		SentimentMinThreshold:   r.SentimentMinThreshold,
		SentimentMin:            r.SentimentMin,
		SentimentMax:            r.SentimentMax,
		LongSentiment:           r.LongSentiment,
		ShortSentiment:          r.ShortSentiment,
		MaxOpenPositions:        r.MaxOpenPositions,
		MinSecondsBetweenTrades: r.MinSecondsBetweenTrades,
	}
}

type BacktestConfig struct {
	InitialCapital  float64 `toml:"initial_capital"`
	WindowSize      int     `toml:"window_size"`
	EnforceRiskGate bool    `toml:"enforce_risk_gate"` // 入场前走一遍风控校验
	Sentiment       float64 `toml:"sentiment"`         // 风控校验使用的情绪分
	MaxConcurrent   int     `toml:"max_concurrent"`
}

// Options 返回引擎默认参数。
func (b BacktestConfig) Options() backtest.Options {
	return backtest.Options{
		InitialCapital:  b.InitialCapital,
		WindowSize:      b.WindowSize,
		EnforceRiskGate: b.EnforceRiskGate,
		Sentiment:       b.Sentiment,
	}
}

type DataConfig struct {
	CandleRoot  string `toml:"candle_root"`
	ResultsPath string `toml:"results_path"`
}

type MarketConfig struct {
	Name           string `toml:"name"`
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PageLimit      int    `toml:"page_limit"`
}

// Binance 返回 Binance 历史数据源配置。
func (m MarketConfig) Binance() market.BinanceConfig {
	return market.BinanceConfig{
		RESTBaseURL: strings.TrimSpace(m.RESTBaseURL),
		Timeout:     time.Duration(m.TimeoutSeconds) * time.Second,
		PageLimit:   m.PageLimit,
	}
}

type StrategiesConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
