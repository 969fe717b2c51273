package market

import (
	"math"
	"time"
)

// Candle 是一根 OHLCV K 线，时间为 Unix 毫秒。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time,omitempty"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades,omitempty"`
}

// Time 返回开盘时间（UTC）。
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// Validate 检查整条序列：非空、字段合法、时间严格递增。
// 任何一行有问题都返回 *DataError，调用方不得保留部分结果。
func Validate(candles []Candle) error {
	if len(candles) == 0 {
		return &DataError{Row: -1, Reason: "empty series"}
	}
	var prev int64
	for i, c := range candles {
		if err := validateCandle(i, c); err != nil {
			return err
		}
		if i > 0 && c.OpenTime <= prev {
			return &DataError{Row: i, Field: "timestamp", Reason: "timestamps not strictly increasing"}
		}
		prev = c.OpenTime
	}
	return nil
}

func validateCandle(row int, c Candle) error {
	if c.OpenTime <= 0 {
		return &DataError{Row: row, Field: "timestamp", Reason: "missing or non-positive"}
	}
	prices := []struct {
		name string
		val  float64
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
	}
	for _, p := range prices {
		if math.IsNaN(p.val) || math.IsInf(p.val, 0) || p.val <= 0 {
			return &DataError{Row: row, Field: p.name, Reason: "must be a finite positive number"}
		}
	}
	if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
		return &DataError{Row: row, Field: "volume", Reason: "must be a finite non-negative number"}
	}
	if c.High < c.Low {
		return &DataError{Row: row, Field: "high", Reason: "high below low"}
	}
	return nil
}

// Closes 提取收盘价序列。
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes 提取成交量序列。
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
