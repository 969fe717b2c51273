package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"tradesim/internal/logger"
)

const binanceMaxLimit = 1500

// BinanceConfig 控制 USDT 合约 REST 访问。
type BinanceConfig struct {
	RESTBaseURL string
	Timeout     time.Duration
	PageLimit   int
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if strings.TrimSpace(c.RESTBaseURL) == "" {
		c.RESTBaseURL = "https://fapi.binance.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.PageLimit <= 0 || c.PageLimit > binanceMaxLimit {
		c.PageLimit = binanceMaxLimit
	}
	return c
}

// BinanceSource 基于 go-binance SDK 分页拉取历史 K 线。
type BinanceSource struct {
	cfg    BinanceConfig
	client *futures.Client
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimRight(final.RESTBaseURL, "/")
	client.HTTPClient = &http.Client{Timeout: final.Timeout}
	return &BinanceSource{cfg: final, client: client}
}

func (b *BinanceSource) Name() string { return "binance" }

// FetchRange 从 Start 开始逐页拉取直到 End（或没有更多数据），只返回已收盘的 K 线。
func (b *BinanceSource) FetchRange(ctx context.Context, req FetchRequest) ([]Candle, error) {
	symbol := NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if req.Timeframe.Key == "" {
		return nil, fmt.Errorf("timeframe is required")
	}
	step := req.Timeframe.Millis()
	if step <= 0 {
		return nil, fmt.Errorf("timeframe %s has no duration", req.Timeframe.Key)
	}
	end := req.End
	now := time.Now().UnixMilli()
	if end <= 0 || end > now {
		end = now
	}
	cursor := req.Start
	var out []Candle
	for cursor <= end {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kls, err := b.client.NewKlinesService().
			Symbol(symbol).
			Interval(req.Timeframe.SourceInterval).
			StartTime(cursor).
			EndTime(end).
			Limit(b.cfg.PageLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s %s: %w", symbol, req.Timeframe.Key, err)
		}
		if len(kls) == 0 {
			break
		}
		last := cursor
		for _, kl := range kls {
			if kl == nil || kl.OpenTime < cursor {
				continue
			}
			// 未收盘的 K 线不参与回测
			if kl.CloseTime >= now {
				continue
			}
			out = append(out, Candle{
				OpenTime:  kl.OpenTime,
				CloseTime: kl.CloseTime,
				Open:      parseFloat(kl.Open),
				High:      parseFloat(kl.High),
				Low:       parseFloat(kl.Low),
				Close:     parseFloat(kl.Close),
				Volume:    parseFloat(kl.Volume),
				Trades:    kl.TradeNum,
			})
			last = kl.OpenTime
		}
		logger.Debugf("binance %s %s page: %d rows, last=%d", symbol, req.Timeframe.Key, len(kls), last)
		if len(kls) < b.cfg.PageLimit {
			break
		}
		cursor = last + step
	}
	return out, nil
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
