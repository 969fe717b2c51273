package market

import "context"

// FetchRequest 描述一次历史 K 线拉取。
type FetchRequest struct {
	Symbol    string
	Timeframe Timeframe
	Start     int64 // Unix ms
	End       int64 // Unix ms，0 表示到最新
}

// Source 统一不同交易所的历史数据拉取。
type Source interface {
	Name() string
	FetchRange(ctx context.Context, req FetchRequest) ([]Candle, error)
}
