package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"tradesim/internal/types"
)

var (
	decOne      = decimal.NewFromInt(1)
	decHundred  = decimal.NewFromInt(100)
	decimalZero = decimal.Zero
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func decimalLTE(a, b float64) bool { return decimalCompare(a, b) <= 0 }
func decimalGTE(a, b float64) bool { return decimalCompare(a, b) >= 0 }
func decimalLT(a, b float64) bool  { return decimalCompare(a, b) < 0 }

// offsetPrice 以百分数（2 = 2%）偏移入场价，favorable 表示朝盈利方向。
func offsetPrice(entry, percent float64, dir types.Direction, favorable bool) float64 {
	if entry <= 0 {
		return 0
	}
	pct := decFromFloat(percent).Div(decHundred)
	up := (dir == types.DirectionShort) != favorable
	var factor decimal.Decimal
	if up {
		factor = decOne.Add(pct)
	} else {
		factor = decOne.Sub(pct)
	}
	return decToFloat(decFromFloat(entry).Mul(factor))
}

// TakeProfitPrice 多头 entry×(1+p%)，空头 entry×(1−p%)。
func TakeProfitPrice(entry, percent float64, dir types.Direction) float64 {
	return offsetPrice(entry, percent, dir, true)
}

// StopLossPrice 多头 entry×(1−p%)，空头 entry×(1+p%)。
func StopLossPrice(entry, percent float64, dir types.Direction) float64 {
	return offsetPrice(entry, percent, dir, false)
}

// HitStopLoss 判断给定价格是否触及止损（多头看最低价，空头看最高价）。
func HitStopLoss(dir types.Direction, price, stop float64) bool {
	if stop <= 0 || price <= 0 {
		return false
	}
	switch dir {
	case types.DirectionShort:
		return decimalGTE(price, stop)
	default:
		return decimalLTE(price, stop)
	}
}

// HitTakeProfit 判断给定价格是否触及止盈（多头看最高价，空头看最低价）。
func HitTakeProfit(dir types.Direction, price, target float64) bool {
	if target <= 0 || price <= 0 {
		return false
	}
	switch dir {
	case types.DirectionShort:
		return decimalLTE(price, target)
	default:
		return decimalGTE(price, target)
	}
}

// PnL 按方向计算盈亏，空头取反。
func PnL(dir types.Direction, entry, exit, qty float64) float64 {
	diff := decFromFloat(exit).Sub(decFromFloat(entry)).Mul(decFromFloat(qty))
	if dir == types.DirectionShort {
		diff = diff.Neg()
	}
	return decToFloat(diff)
}

// PnLPercent 以入场价为基准的百分比收益。
func PnLPercent(dir types.Direction, entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	diff := decFromFloat(exit).Sub(decFromFloat(entry))
	if dir == types.DirectionShort {
		diff = diff.Neg()
	}
	return decToFloat(diff.Div(decFromFloat(entry)).Mul(decHundred))
}
