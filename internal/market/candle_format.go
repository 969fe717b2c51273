package market

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Candles 为一段序列附加展示用方法。
type Candles []Candle

// TimeString 以 UTC 分钟精度格式化开盘时间。
func (c Candle) TimeString() string {
	if c.OpenTime <= 0 {
		return "-"
	}
	return time.UnixMilli(c.OpenTime).UTC().Format("2006-01-02 15:04") + "Z"
}

// Summary 输出一行区间摘要：条数、起止时间、涨跌幅与高低点。
func (cs Candles) Summary() string {
	if len(cs) == 0 {
		return "0 candles"
	}
	first, last := cs[0], cs[len(cs)-1]
	low, high := math.Inf(1), math.Inf(-1)
	for _, c := range cs {
		low = math.Min(low, c.Low)
		high = math.Max(high, c.High)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d candles %s -> %s", len(cs), first.TimeString(), last.TimeString())
	if first.Open > 0 {
		fmt.Fprintf(&sb, ", change %+.2f%%", (last.Close-first.Open)/first.Open*100)
	}
	fmt.Fprintf(&sb, ", range %.4f..%.4f", low, high)
	return sb.String()
}
