package strategy

import (
	"strings"

	"tradesim/internal/types"
)

// Document 是规则文件/HTTP 中的一套声明式策略。
type Document struct {
	Name                string  `mapstructure:"name" json:"name" yaml:"name"`
	Description         string  `mapstructure:"description" json:"description,omitempty" yaml:"description,omitempty"`
	PositionSizePercent float64 `mapstructure:"position_size_percent" json:"position_size_percent" yaml:"position_size_percent"`
	StopLossPercent     float64 `mapstructure:"stop_loss_percent" json:"stop_loss_percent" yaml:"stop_loss_percent"`
	TakeProfitPercent   float64 `mapstructure:"take_profit_percent" json:"take_profit_percent" yaml:"take_profit_percent"`
	Direction           string  `mapstructure:"direction" json:"direction" yaml:"direction"`
	RSIPeriod           int     `mapstructure:"rsi_period" json:"rsi_period,omitempty" yaml:"rsi_period,omitempty"`
	Entry               []Check `mapstructure:"entry" json:"entry" yaml:"entry"`
	Exit                []Check `mapstructure:"exit" json:"exit,omitempty" yaml:"exit,omitempty"`
}

// Rules 转换为可执行规则并完成校验。
func (d Document) Rules() (Rules, error) {
	dir, err := types.ParseDirection(d.Direction)
	if err != nil {
		return Rules{}, configErr("direction", "%s", err.Error())
	}
	r := Rules{
		Name:                strings.TrimSpace(d.Name),
		Description:         strings.TrimSpace(d.Description),
		PositionSizePercent: d.PositionSizePercent,
		StopLossPercent:     d.StopLossPercent,
		TakeProfitPercent:   d.TakeProfitPercent,
		Direction:           dir,
		RSIPeriod:           d.RSIPeriod,
	}
	if len(d.Entry) > 0 {
		r.Entry = DeclarativeCondition(d.Entry...)
	}
	if len(d.Exit) > 0 {
		r.Exit = DeclarativeCondition(d.Exit...)
	}
	return r.Prepare()
}

// DocumentOf 把规则还原为文档；判定函数条件无法序列化，会被省略。
func DocumentOf(r Rules) Document {
	return Document{
		Name:                r.Name,
		Description:         r.Description,
		PositionSizePercent: r.PositionSizePercent,
		StopLossPercent:     r.StopLossPercent,
		TakeProfitPercent:   r.TakeProfitPercent,
		Direction:           r.Direction.String(),
		RSIPeriod:           r.RSIPeriod,
		Entry:               r.Entry.Checks(),
		Exit:                r.Exit.Checks(),
	}
}
