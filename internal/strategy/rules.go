package strategy

import (
	"math"
	"strings"

	"tradesim/internal/types"
)

// Rules 是一套策略规则。百分比字段使用百分数（2 表示 2%）。
type Rules struct {
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	PositionSizePercent float64         `json:"position_size_percent"`
	StopLossPercent     float64         `json:"stop_loss_percent"`
	TakeProfitPercent   float64         `json:"take_profit_percent"`
	Direction           types.Direction `json:"direction"`
	RSIPeriod           int             `json:"rsi_period,omitempty"`
	Entry               Condition       `json:"-"`
	Exit                Condition       `json:"-"`
}

// Validate 在模拟开始前检查规则，返回 *ConfigError。
func (r Rules) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return configErr("name", "is required")
	}
	pcts := []struct {
		field string
		val   float64
		max   float64
	}{
		{"position_size_percent", r.PositionSizePercent, 100},
		{"stop_loss_percent", r.StopLossPercent, 100},
		{"take_profit_percent", r.TakeProfitPercent, math.MaxFloat64},
	}
	for _, p := range pcts {
		if math.IsNaN(p.val) || math.IsInf(p.val, 0) || p.val <= 0 {
			return configErr(p.field, "must be a positive number")
		}
		if p.val > p.max {
			return configErr(p.field, "must be <= %g", p.max)
		}
	}
	if !r.Direction.Valid() {
		return configErr("direction", "must be LONG or SHORT, got %q", string(r.Direction))
	}
	if r.RSIPeriod != 0 && r.RSIPeriod < minRSIPeriod {
		return configErr("rsi_period", "must be >= %d", minRSIPeriod)
	}
	if r.Entry.IsZero() {
		return configErr("entry", "condition is required")
	}
	if err := r.Entry.validate("entry"); err != nil {
		return err
	}
	return r.Exit.validate("exit")
}

// Prepare 校验并返回填充了默认 RSI 周期的副本。
func (r Rules) Prepare() (Rules, error) {
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	out := r
	out.Name = strings.TrimSpace(r.Name)
	if out.RSIPeriod == 0 {
		out.RSIPeriod = DefaultRSIPeriod
	}
	out.Entry = r.Entry.withDefaultPeriod(out.RSIPeriod)
	out.Exit = r.Exit.withDefaultPeriod(out.RSIPeriod)
	return out, nil
}
