package market

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Timeframe 是受支持的 K 线周期。Key 也是本地 K 线库里的文件名。
type Timeframe struct {
	Key      string
	Duration time.Duration
	// SourceInterval 是交易所 kline 接口使用的 interval。
	SourceInterval string
}

// timeframes 由短到长排列。
var timeframes = []Timeframe{
	{Key: "5m", Duration: 5 * time.Minute, SourceInterval: "5m"},
	{Key: "15m", Duration: 15 * time.Minute, SourceInterval: "15m"},
	{Key: "30m", Duration: 30 * time.Minute, SourceInterval: "30m"},
	{Key: "1h", Duration: time.Hour, SourceInterval: "1h"},
	{Key: "4h", Duration: 4 * time.Hour, SourceInterval: "4h"},
	{Key: "1d", Duration: 24 * time.Hour, SourceInterval: "1d"},
	{Key: "3d", Duration: 72 * time.Hour, SourceInterval: "3d"},
	{Key: "7d", Duration: 7 * 24 * time.Hour, SourceInterval: "1w"},
}

var timeframeAliases = map[string]string{
	"60m": "1h",
	"24h": "1d",
	"1w":  "7d",
}

// ParseTimeframe 只接受 timeframes 中的周期（大小写、别名不敏感），
// 返回值的 Key 可以安全地拼进文件路径。
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	if canonical, ok := timeframeAliases[key]; ok {
		key = canonical
	}
	for _, tf := range timeframes {
		if tf.Key == key {
			return tf, nil
		}
	}
	return Timeframe{}, &DataError{
		Row:    -1,
		Field:  "timeframe",
		Reason: fmt.Sprintf("unsupported %q, want one of %s", input, strings.Join(SupportedTimeframes(), ",")),
	}
}

// SupportedTimeframes 按周期长度返回全部 key。
func SupportedTimeframes() []string {
	keys := make([]string, len(timeframes))
	for i, tf := range timeframes {
		keys[i] = tf.Key
	}
	return keys
}

func (tf Timeframe) Millis() int64 {
	return tf.Duration.Milliseconds()
}

// Floor 返回 ts 所在 K 线的开盘时间。
func (tf Timeframe) Floor(ts int64) int64 {
	step := tf.Millis()
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// AlignRange 把毫秒区间落到周期网格上，返回的 start<=end。
func (tf Timeframe) AlignRange(start, end int64) (int64, int64) {
	if end < start {
		start, end = end, start
	}
	return tf.Floor(start), tf.Floor(end)
}

// ExpectedCandles 是对齐后的 [start,end] 内应有的 K 线根数。
func (tf Timeframe) ExpectedCandles(start, end int64) int64 {
	step := tf.Millis()
	if end < start || step <= 0 {
		return 0
	}
	return (end-start)/step + 1
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,32}$`)

// Series 标识本地 K 线库中的一条序列。只能经由 ParseSeries 得到，
// 其 Symbol 与 Timeframe.Key 都不含路径分隔符。
type Series struct {
	Symbol    string
	Timeframe Timeframe
}

// ParseSeries 规范化并校验 symbol/timeframe，非法输入返回 ErrData。
func ParseSeries(symbol, timeframe string) (Series, error) {
	sym := NormalizeSymbol(symbol)
	if !symbolPattern.MatchString(sym) {
		return Series{}, &DataError{Row: -1, Field: "symbol", Reason: fmt.Sprintf("invalid symbol %q", symbol)}
	}
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return Series{}, err
	}
	return Series{Symbol: sym, Timeframe: tf}, nil
}

func (s Series) String() string {
	return s.Symbol + "@" + s.Timeframe.Key
}

// relPath 是相对 K 线库根目录的数据文件路径。
func (s Series) relPath() string {
	return filepath.Join(s.Symbol, s.Timeframe.Key+".db")
}
