package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Risk.Parameters().Check(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := c.Backtest.validate(c.Risk); err != nil {
		return err
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
	}
	return nil
}

func (b *BacktestConfig) validate(r RiskConfig) error {
	if b.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if b.WindowSize <= 0 {
		return fmt.Errorf("backtest.window_size must be > 0")
	}
	if b.MaxConcurrent <= 0 {
		return fmt.Errorf("backtest.max_concurrent must be > 0")
	}
	if b.Sentiment < r.SentimentMin || b.Sentiment > r.SentimentMax {
		return fmt.Errorf("backtest.sentiment must be within [%g, %g], got %g", r.SentimentMin, r.SentimentMax, b.Sentiment)
	}
	return nil
}

func (d *DataConfig) validate() error {
	if strings.TrimSpace(d.CandleRoot) == "" {
		return fmt.Errorf("data.candle_root cannot be empty")
	}
	if strings.TrimSpace(d.ResultsPath) == "" {
		return fmt.Errorf("data.results_path cannot be empty")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if m.Name != "binance" {
		return fmt.Errorf("market.name only supports binance, got %q", m.Name)
	}
	if m.TimeoutSeconds <= 0 {
		return fmt.Errorf("market.timeout_seconds must be > 0")
	}
	if m.PageLimit <= 0 || m.PageLimit > 1500 {
		return fmt.Errorf("market.page_limit must be within 1..1500")
	}
	return nil
}
