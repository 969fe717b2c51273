package risk

import "fmt"

// Parameters 是全局风控常量，进程启动时构造一次，之后只按值传递。
// 百分比字段均为比例（0.01 = 1%）。
type Parameters struct {
	MaxRiskPercent          float64 `json:"max_risk_percent"`
	MinPositionUSD          float64 `json:"min_position_usd"`
	StopLossMaxRatio        float64 `json:"stop_loss_max_ratio"`
	MinTakeProfitPercent    float64 `json:"min_take_profit_percent"`
	SentimentMinThreshold   float64 `json:"sentiment_min_threshold"`
	SentimentMin            float64 `json:"sentiment_min"`
	SentimentMax            float64 `json:"sentiment_max"`
	LongSentiment           float64 `json:"long_sentiment"`
	ShortSentiment          float64 `json:"short_sentiment"`
	MaxOpenPositions        int     `json:"max_open_positions"`
	MinSecondsBetweenTrades int64   `json:"min_seconds_between_trades"`
}

// DefaultParameters 对应不可覆盖的核心规则。
func DefaultParameters() Parameters {
	return Parameters{
		MaxRiskPercent:          0.01,
		MinPositionUSD:          10,
		StopLossMaxRatio:        0.5,
		MinTakeProfitPercent:    0.005,
		SentimentMinThreshold:   3,
		SentimentMin:            -4,
		SentimentMax:            4,
		LongSentiment:           3,
		ShortSentiment:          -3,
		MaxOpenPositions:        5,
		MinSecondsBetweenTrades: 60,
	}
}

// Check 校验参数自洽，供配置加载时调用。
func (p Parameters) Check() error {
	switch {
	case p.MaxRiskPercent <= 0 || p.MaxRiskPercent > 1:
		return fmt.Errorf("max_risk_percent must be in (0,1], got %v", p.MaxRiskPercent)
	case p.MinPositionUSD < 0:
		return fmt.Errorf("min_position_usd must be >= 0, got %v", p.MinPositionUSD)
	case p.StopLossMaxRatio <= 0 || p.StopLossMaxRatio > 1:
		return fmt.Errorf("stop_loss_max_ratio must be in (0,1], got %v", p.StopLossMaxRatio)
	case p.MinTakeProfitPercent < 0:
		return fmt.Errorf("min_take_profit_percent must be >= 0, got %v", p.MinTakeProfitPercent)
	case p.SentimentMin >= p.SentimentMax:
		return fmt.Errorf("sentiment range [%v,%v] is empty", p.SentimentMin, p.SentimentMax)
	case p.SentimentMinThreshold < 0 || p.SentimentMinThreshold > p.SentimentMax:
		return fmt.Errorf("sentiment_min_threshold %v outside [0,%v]", p.SentimentMinThreshold, p.SentimentMax)
	case p.LongSentiment <= 0 || p.ShortSentiment >= 0:
		return fmt.Errorf("long_sentiment must be > 0 and short_sentiment < 0")
	case p.MaxOpenPositions < 1:
		return fmt.Errorf("max_open_positions must be >= 1")
	case p.MinSecondsBetweenTrades < 0:
		return fmt.Errorf("min_seconds_between_trades must be >= 0")
	}
	return nil
}
