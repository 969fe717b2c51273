package risk

import "tradesim/internal/types"

// Sizer 根据资金与风控上限计算仓位和止损。
type Sizer struct {
	params Parameters
}

func NewSizer(params Parameters) *Sizer {
	return &Sizer{params: params}
}

// Size 返回 USD 仓位：风险比例先被钳制到硬上限，再乘以资金，最后不低于最小仓位。
func (s *Sizer) Size(capital, requestedRisk float64) float64 {
	risk := requestedRisk
	if risk > s.params.MaxRiskPercent {
		risk = s.params.MaxRiskPercent
	}
	if risk < 0 {
		risk = 0
	}
	size := decFromFloat(capital).Mul(decFromFloat(risk))
	floor := decFromFloat(s.params.MinPositionUSD)
	if size.LessThan(floor) {
		size = floor
	}
	return decToFloat(size)
}

// StopLoss 止损距离 = StopLossMaxRatio × 止盈距离；多头在入场价下方，空头在上方。
func (s *Sizer) StopLoss(entryPrice, takeProfitPrice float64, dir types.Direction) float64 {
	entry := decFromFloat(entryPrice)
	tp := decFromFloat(takeProfitPrice)
	ratio := decFromFloat(s.params.StopLossMaxRatio)
	switch dir {
	case types.DirectionShort:
		dist := entry.Sub(tp).Mul(ratio)
		return decToFloat(entry.Add(dist))
	default:
		dist := tp.Sub(entry).Mul(ratio)
		return decToFloat(entry.Sub(dist))
	}
}

// Quantity 将 USD 名义价值换算成数量。
func Quantity(notional, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(notional).Div(decFromFloat(price)))
}
