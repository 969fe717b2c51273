package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	colTimestamp = "timestamp"
	colOpen      = "open"
	colHigh      = "high"
	colLow       = "low"
	colClose     = "close"
	colVolume    = "volume"
	colCloseTime = "close_time"
	colTrades    = "trades"
)

var requiredColumns = []string{colTimestamp, colOpen, colHigh, colLow, colClose, colVolume}

// 常见列名别名，仅在标准列名缺失时生效。
var columnAliases = map[string]string{
	"time":      colTimestamp,
	"date":      colTimestamp,
	"datetime":  colTimestamp,
	"open_time": colTimestamp,
	"opentime":  colTimestamp,
	"ts":        colTimestamp,
	"o":         colOpen,
	"h":         colHigh,
	"l":         colLow,
	"c":         colClose,
	"v":         colVolume,
	"vol":       colVolume,
	"closetime": colCloseTime,
	"count":     colTrades,
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadFile 根据扩展名选择 CSV 或 JSON 解析，并对结果做完整校验。
func LoadFile(path string) ([]Candle, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return LoadCSV(f)
	case ".json":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return LoadJSON(raw)
	default:
		return nil, fmt.Errorf("unsupported data format %q (want .csv or .json)", ext)
	}
}

// LoadCSV 读取带表头的 CSV，列名大小写不敏感并支持常见别名。
func LoadCSV(r io.Reader) ([]Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &DataError{Row: -1, Reason: "empty series"}
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := resolveColumns(header)
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, &DataError{Row: -1, Field: col, Reason: "missing required column"}
		}
	}
	var out []Candle
	for row := 0; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DataError{Row: row, Reason: err.Error()}
		}
		cell := func(col string) (string, bool) {
			idx, ok := index[col]
			if !ok || idx >= len(rec) {
				return "", false
			}
			v := strings.TrimSpace(rec[idx])
			return v, v != ""
		}
		c, err := buildCandle(row, cell)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadJSON 接受对象数组（列名同 CSV）或 Binance 风格的数组行
// [open_time, open, high, low, close, volume, close_time?]。
func LoadJSON(raw []byte) ([]Candle, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("candle json is not valid json")
	}
	root := gjson.ParseBytes(raw)
	if root.IsObject() {
		for _, key := range []string{"candles", "data", "klines"} {
			if nested := root.Get(key); nested.IsArray() {
				root = nested
				break
			}
		}
	}
	if !root.IsArray() {
		return nil, &DataError{Row: -1, Reason: "root must be an array of candles"}
	}
	var (
		out     []Candle
		loadErr error
		row     int
	)
	root.ForEach(func(_, value gjson.Result) bool {
		var c Candle
		switch {
		case value.IsObject():
			c, loadErr = candleFromObject(row, value)
		case value.IsArray():
			c, loadErr = candleFromArray(row, value)
		default:
			loadErr = &DataError{Row: row, Reason: "candle must be an object or array"}
		}
		if loadErr != nil {
			return false
		}
		out = append(out, c)
		row++
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func candleFromObject(row int, value gjson.Result) (Candle, error) {
	fields := make(map[string]gjson.Result)
	aliased := make(map[string]gjson.Result)
	for key, v := range value.Map() {
		name := strings.ToLower(strings.TrimSpace(key))
		if isCanonical(name) {
			fields[name] = v
			continue
		}
		if canon, ok := columnAliases[name]; ok {
			aliased[canon] = v
		}
	}
	for canon, v := range aliased {
		if _, ok := fields[canon]; !ok {
			fields[canon] = v
		}
	}
	return buildCandle(row, func(col string) (string, bool) {
		v, ok := fields[col]
		if !ok || v.Type == gjson.Null {
			return "", false
		}
		s := strings.TrimSpace(v.String())
		return s, s != ""
	})
}

func candleFromArray(row int, value gjson.Result) (Candle, error) {
	items := value.Array()
	order := []string{colTimestamp, colOpen, colHigh, colLow, colClose, colVolume, colCloseTime}
	return buildCandle(row, func(col string) (string, bool) {
		for i, name := range order {
			if name != col {
				continue
			}
			if i >= len(items) || items[i].Type == gjson.Null {
				return "", false
			}
			s := strings.TrimSpace(items[i].String())
			return s, s != ""
		}
		return "", false
	})
}

func buildCandle(row int, cell func(col string) (string, bool)) (Candle, error) {
	var c Candle
	for _, col := range requiredColumns {
		if _, ok := cell(col); !ok {
			return Candle{}, &DataError{Row: row, Field: col, Reason: "missing value"}
		}
	}
	tsRaw, _ := cell(colTimestamp)
	ts, err := ParseTimestamp(tsRaw)
	if err != nil {
		return Candle{}, &DataError{Row: row, Field: colTimestamp, Reason: err.Error()}
	}
	c.OpenTime = ts
	targets := []struct {
		col string
		dst *float64
	}{
		{colOpen, &c.Open},
		{colHigh, &c.High},
		{colLow, &c.Low},
		{colClose, &c.Close},
		{colVolume, &c.Volume},
	}
	for _, t := range targets {
		raw, _ := cell(t.col)
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Candle{}, &DataError{Row: row, Field: t.col, Reason: fmt.Sprintf("not a number: %q", raw)}
		}
		*t.dst = v
	}
	if raw, ok := cell(colCloseTime); ok {
		if ct, err := ParseTimestamp(raw); err == nil {
			c.CloseTime = ct
		}
	}
	if raw, ok := cell(colTrades); ok {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.Trades = n
		}
	}
	return c, nil
}

// ParseTimestamp 支持 Unix 秒、Unix 毫秒与 ISO-8601 字符串，返回 Unix 毫秒。
func ParseTimestamp(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if f <= 0 {
			return 0, fmt.Errorf("non-positive timestamp %q", raw)
		}
		// 小于 1e11 视为秒（覆盖到 5138 年），否则视为毫秒。
		if f < 1e11 {
			return int64(f * 1000), nil
		}
		return int64(f), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", raw)
}

func resolveColumns(header []string) map[string]int {
	index := make(map[string]int, len(header))
	aliased := make(map[string]int)
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if isCanonical(name) {
			if _, dup := index[name]; !dup {
				index[name] = i
			}
			continue
		}
		if canon, ok := columnAliases[name]; ok {
			if _, dup := aliased[canon]; !dup {
				aliased[canon] = i
			}
		}
	}
	for canon, i := range aliased {
		if _, ok := index[canon]; !ok {
			index[canon] = i
		}
	}
	return index
}

func isCanonical(name string) bool {
	switch name {
	case colTimestamp, colOpen, colHigh, colLow, colClose, colVolume, colCloseTime, colTrades:
		return true
	}
	return false
}
