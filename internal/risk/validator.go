package risk

import (
	"fmt"
	"math"

	"tradesim/internal/types"
)

// Rule 标识被违反的核心规则。
type Rule string

const (
	RuleSentimentRange     Rule = "sentiment_range"
	RuleSentimentThreshold Rule = "sentiment_threshold"
	RuleMaxRisk            Rule = "max_risk"
	RuleStopLossRatio      Rule = "stop_loss_ratio"
	RuleMinTakeProfit      Rule = "min_take_profit"
	RuleDirection          Rule = "direction_sentiment"
)

// Proposal 是一笔待校验的交易提议，百分比为比例。
type Proposal struct {
	Sentiment         float64         `json:"sentiment"`
	RiskPercent       float64         `json:"risk_percent"`
	StopLossPercent   float64         `json:"stop_loss_percent"`
	TakeProfitPercent float64         `json:"take_profit_percent"`
	Direction         types.Direction `json:"direction"`
}

// Violation 作为数据返回，不作为异常抛出。
type Violation struct {
	Rule   Rule   `json:"rule"`
	Reason string `json:"reason"`
}

func (v *Violation) Error() string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("core rule %s violated: %s", v.Rule, v.Reason)
}

// Validator 按固定顺序执行核心规则，遇到第一条失败即返回。
type Validator struct {
	params Parameters
}

func NewValidator(params Parameters) *Validator {
	return &Validator{params: params}
}

// Parameters 返回参数副本。
func (v *Validator) Parameters() Parameters { return v.params }

// Validate 返回 nil 表示全部通过。
func (v *Validator) Validate(p Proposal) *Violation {
	rp := v.params
	s := p.Sentiment
	if math.IsNaN(s) || s < rp.SentimentMin || s > rp.SentimentMax {
		return &Violation{
			Rule:   RuleSentimentRange,
			Reason: fmt.Sprintf("sentiment %v outside range [%v, %v]", s, rp.SentimentMin, rp.SentimentMax),
		}
	}
	if math.Abs(s) < rp.SentimentMinThreshold {
		return &Violation{
			Rule:   RuleSentimentThreshold,
			Reason: fmt.Sprintf("sentiment %v does not meet threshold of ±%v", s, rp.SentimentMinThreshold),
		}
	}
	if p.RiskPercent > rp.MaxRiskPercent {
		return &Violation{
			Rule:   RuleMaxRisk,
			Reason: fmt.Sprintf("risk %.2f%% exceeds maximum of %.2f%%", p.RiskPercent*100, rp.MaxRiskPercent*100),
		}
	}
	maxStop := decFromFloat(p.TakeProfitPercent).Mul(decFromFloat(rp.StopLossMaxRatio))
	if decFromFloat(p.StopLossPercent).GreaterThan(maxStop) {
		return &Violation{
			Rule: RuleStopLossRatio,
			Reason: fmt.Sprintf("stop loss %.2f%% exceeds %.0f%% of take profit %.2f%%",
				p.StopLossPercent*100, rp.StopLossMaxRatio*100, p.TakeProfitPercent*100),
		}
	}
	if decimalLT(p.TakeProfitPercent, rp.MinTakeProfitPercent) {
		return &Violation{
			Rule:   RuleMinTakeProfit,
			Reason: fmt.Sprintf("take profit %.2f%% below minimum %.2f%%", p.TakeProfitPercent*100, rp.MinTakeProfitPercent*100),
		}
	}
	switch p.Direction {
	case types.DirectionLong:
		if s < rp.LongSentiment {
			return &Violation{
				Rule:   RuleDirection,
				Reason: fmt.Sprintf("cannot trade LONG with sentiment %v (requires >= %v)", s, rp.LongSentiment),
			}
		}
	case types.DirectionShort:
		if s > rp.ShortSentiment {
			return &Violation{
				Rule:   RuleDirection,
				Reason: fmt.Sprintf("cannot trade SHORT with sentiment %v (requires <= %v)", s, rp.ShortSentiment),
			}
		}
	default:
		return &Violation{
			Rule:   RuleDirection,
			Reason: fmt.Sprintf("unknown direction %q", p.Direction),
		}
	}
	return nil
}
