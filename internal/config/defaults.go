package config

import (
	"strings"

	"tradesim/internal/backtest"
	"tradesim/internal/risk"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9991"
	defaultAppLogPath      = "logs/tradesim.log"
	defaultAppJournalPath  = "logs/trades.log"
	defaultMaxConcurrent   = 4
	defaultCandleRoot      = "data/candles"
	defaultResultsPath     = "data/results.db"
	defaultMarketName      = "binance"
	defaultMarketREST      = "https://fapi.binance.com"
	defaultMarketTimeout   = 15
	defaultMarketPageLimit = 1500
	defaultStrategiesPath  = "configs/strategies.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Strategies.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.journal_path", &a.JournalPath, defaultAppJournalPath),
	)
}

// 风控字段只要配置文件没写就取核心默认值；写了 0 也按 0 处理，交给校验。
func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	def := risk.DefaultParameters()
	applyFieldDefaults(keys,
		floatFieldDefault("risk.max_risk_percent", &r.MaxRiskPercent, def.MaxRiskPercent),
		floatFieldDefault("risk.min_position_usd", &r.MinPositionUSD, def.MinPositionUSD),
		floatFieldDefault("risk.stop_loss_max_ratio", &r.StopLossMaxRatio, def.StopLossMaxRatio),
		floatFieldDefault("risk.min_take_profit_percent", &r.MinTakeProfitPercent, def.MinTakeProfitPercent),
		floatFieldDefault("risk.sentiment_min_threshold", &r.SentimentMinThreshold, def.SentimentMinThreshold),
		floatFieldDefault("risk.sentiment_min", &r.SentimentMin, def.SentimentMin),
		floatFieldDefault("risk.sentiment_max", &r.SentimentMax, def.SentimentMax),
		floatFieldDefault("risk.long_sentiment", &r.LongSentiment, def.LongSentiment),
		floatFieldDefault("risk.short_sentiment", &r.ShortSentiment, def.ShortSentiment),
		fieldDefault{
			key:   "risk.max_open_positions",
			apply: func() { r.MaxOpenPositions = def.MaxOpenPositions },
		},
		fieldDefault{
			key:   "risk.min_seconds_between_trades",
			apply: func() { r.MinSecondsBetweenTrades = def.MinSecondsBetweenTrades },
		},
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "backtest.initial_capital",
			need:  func() bool { return b.InitialCapital <= 0 },
			apply: func() { b.InitialCapital = backtest.DefaultInitialCapital },
		},
		fieldDefault{
			key:   "backtest.window_size",
			need:  func() bool { return b.WindowSize <= 0 },
			apply: func() { b.WindowSize = backtest.DefaultWindowSize },
		},
		fieldDefault{
			key:   "backtest.max_concurrent",
			need:  func() bool { return b.MaxConcurrent <= 0 },
			apply: func() { b.MaxConcurrent = defaultMaxConcurrent },
		},
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.candle_root", &d.CandleRoot, defaultCandleRoot),
		stringFieldDefault("data.results_path", &d.ResultsPath, defaultResultsPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.name", &m.Name, defaultMarketName),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		fieldDefault{
			key:   "market.timeout_seconds",
			need:  func() bool { return m.TimeoutSeconds <= 0 },
			apply: func() { m.TimeoutSeconds = defaultMarketTimeout },
		},
		fieldDefault{
			key:   "market.page_limit",
			need:  func() bool { return m.PageLimit <= 0 },
			apply: func() { m.PageLimit = defaultMarketPageLimit },
		},
	)
	m.Name = strings.ToLower(strings.TrimSpace(m.Name))
}

func (s *StrategiesConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategies.path", &s.Path, defaultStrategiesPath),
		boolFieldDefault("strategies.watch", &s.Watch, true),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			*target = def
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
