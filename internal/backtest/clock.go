package backtest

import "tradesim/internal/market"

const DefaultWindowSize = 50

// clock 逐根推进 K 线，只暴露当前 K 线及其之前的窗口。
type clock struct {
	candles []market.Candle
	window  int
	idx     int
}

func newClock(candles []market.Candle, window int) *clock {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &clock{candles: candles, window: window, idx: -1}
}

func (c *clock) Next() bool {
	if c.idx+1 >= len(c.candles) {
		return false
	}
	c.idx++
	return true
}

func (c *clock) Current() market.Candle { return c.candles[c.idx] }

// Window 返回当前 K 线之前最多 window 根，不含当前。
// 三下标切片保证调用方 append 不会写到后续 K 线。
func (c *clock) Window() []market.Candle {
	start := c.idx - c.window
	if start < 0 {
		start = 0
	}
	return c.candles[start:c.idx:c.idx]
}

func (c *clock) Last() market.Candle { return c.candles[len(c.candles)-1] }
