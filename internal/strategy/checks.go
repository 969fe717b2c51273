package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	talib "github.com/markcheno/go-talib"

	"tradesim/internal/market"
)

// 声明式检查项名称。
const (
	CheckRSIBelow      = "rsi_below"
	CheckRSIAbove      = "rsi_above"
	CheckPriceAboveMA  = "price_above_ma"
	CheckPriceBelowMA  = "price_below_ma"
	CheckPriceAbove    = "price_above"
	CheckPriceBelow    = "price_below"
	CheckVolumeAboveMA = "volume_above_ma"
)

const (
	DefaultRSIPeriod = 14
	minRSIPeriod     = 2
)

// Check 是一个命名检查项。
// RSI 类：Value 为阈值，Period 为 RSI 周期（缺省取规则的 rsi_period）。
// 均线类：Period 为均线长度；volume_above_ma 的 Value 为倍数（缺省 1）。
// 价格类：Value 为绝对价格。
type Check struct {
	Name   string  `mapstructure:"check" json:"check"`
	Value  float64 `mapstructure:"value" json:"value,omitempty"`
	Period int     `mapstructure:"period" json:"period,omitempty"`
}

type checkFunc func(chk Check, current market.Candle, window []market.Candle) bool

var checkRegistry = map[string]checkFunc{
	CheckRSIBelow: func(chk Check, _ market.Candle, window []market.Candle) bool {
		rsi, ok := lastRSI(market.Closes(window), chk.Period)
		return ok && rsi <= chk.Value
	},
	CheckRSIAbove: func(chk Check, _ market.Candle, window []market.Candle) bool {
		rsi, ok := lastRSI(market.Closes(window), chk.Period)
		return ok && rsi > chk.Value
	},
	CheckPriceAboveMA: func(chk Check, current market.Candle, window []market.Candle) bool {
		ma, ok := lastSMA(market.Closes(window), chk.Period)
		return ok && current.Close >= ma
	},
	CheckPriceBelowMA: func(chk Check, current market.Candle, window []market.Candle) bool {
		ma, ok := lastSMA(market.Closes(window), chk.Period)
		return ok && current.Close < ma
	},
	CheckPriceAbove: func(chk Check, current market.Candle, _ []market.Candle) bool {
		return current.Close > chk.Value
	},
	CheckPriceBelow: func(chk Check, current market.Candle, _ []market.Candle) bool {
		return current.Close < chk.Value
	},
	CheckVolumeAboveMA: func(chk Check, current market.Candle, window []market.Candle) bool {
		ma, ok := lastSMA(market.Volumes(window), chk.Period)
		mult := chk.Value
		if mult <= 0 {
			mult = 1
		}
		return ok && current.Volume > ma*mult
	},
}

// CheckNames 返回所有支持的检查项（排序后）。
func CheckNames() []string {
	names := make([]string, 0, len(checkRegistry))
	for name := range checkRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Eval 计算单个检查项；历史不足时视为不满足。
func (c Check) Eval(current market.Candle, window []market.Candle) (bool, error) {
	fn, ok := checkRegistry[c.Name]
	if !ok {
		return false, configErr("check", "unknown check %q", c.Name)
	}
	return fn(c, current, window), nil
}

func (c Check) usesRSI() bool {
	return c.Name == CheckRSIBelow || c.Name == CheckRSIAbove
}

func (c Check) validate() error {
	if _, ok := checkRegistry[c.Name]; !ok {
		return fmt.Errorf("unknown check %q (supported: %s)", c.Name, strings.Join(CheckNames(), ", "))
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return fmt.Errorf("%s value must be finite", c.Name)
	}
	switch c.Name {
	case CheckRSIBelow, CheckRSIAbove:
		if c.Period != 0 && c.Period < minRSIPeriod {
			return fmt.Errorf("%s period must be >= %d", c.Name, minRSIPeriod)
		}
		if c.Value < 0 || c.Value > 100 {
			return fmt.Errorf("%s value must be within 0..100", c.Name)
		}
	case CheckPriceAboveMA, CheckPriceBelowMA, CheckVolumeAboveMA:
		if c.Period <= 0 {
			return fmt.Errorf("%s requires period > 0", c.Name)
		}
	case CheckPriceAbove, CheckPriceBelow:
		if c.Value <= 0 {
			return fmt.Errorf("%s requires value > 0", c.Name)
		}
	}
	return nil
}

func lastRSI(closes []float64, period int) (float64, bool) {
	if period < minRSIPeriod {
		period = DefaultRSIPeriod
	}
	if len(closes) <= period {
		return 0, false
	}
	series := talib.Rsi(closes, period)
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func lastSMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	series := talib.Sma(values, period)
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
