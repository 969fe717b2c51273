package strategy

import (
	"fmt"

	"tradesim/internal/market"
)

// ConditionKind 区分条件的两种形态。
type ConditionKind int

const (
	conditionUnset ConditionKind = iota
	// KindPredicate 调用方提供的判定函数。
	KindPredicate
	// KindDeclarative 由命名检查项组成的声明式条件。
	KindDeclarative
)

func (k ConditionKind) String() string {
	switch k {
	case KindPredicate:
		return "predicate"
	case KindDeclarative:
		return "declarative"
	case conditionUnset:
		return "unset"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Predicate 只能看到当前 K 线与其之前的窗口。
type Predicate func(current market.Candle, window []market.Candle) bool

// Mode 决定声明式检查项的组合方式。
type Mode int

const (
	// ModeEntry 所有检查项都满足才成立，空集合恒为真。
	ModeEntry Mode = iota
	// ModeExit 任一检查项触发即成立，空集合恒为假。
	ModeExit
)

// Condition 是入场/出场条件。零值表示未配置。
type Condition struct {
	kind      ConditionKind
	predicate Predicate
	checks    []Check
}

// PredicateCondition 包装一个判定函数。
func PredicateCondition(fn Predicate) Condition {
	return Condition{kind: KindPredicate, predicate: fn}
}

// DeclarativeCondition 由检查项构造条件。
func DeclarativeCondition(checks ...Check) Condition {
	cp := make([]Check, len(checks))
	copy(cp, checks)
	return Condition{kind: KindDeclarative, checks: cp}
}

func (c Condition) Kind() ConditionKind { return c.kind }

func (c Condition) IsZero() bool { return c.kind == conditionUnset }

// Checks 返回声明式检查项的副本。
func (c Condition) Checks() []Check {
	if len(c.checks) == 0 {
		return nil
	}
	out := make([]Check, len(c.checks))
	copy(out, c.checks)
	return out
}

func (c Condition) validate(field string) error {
	switch c.kind {
	case KindPredicate:
		if c.predicate == nil {
			return configErr(field, "predicate is nil")
		}
		return nil
	case KindDeclarative:
		for i, chk := range c.checks {
			if err := chk.validate(); err != nil {
				return configErr(fmt.Sprintf("%s[%d]", field, i), "%s", err.Error())
			}
		}
		return nil
	case conditionUnset:
		return nil
	default:
		return configErr(field, "unknown condition kind %s", c.kind)
	}
}

// Evaluate 判定条件。window 不包含 current。
func (c Condition) Evaluate(mode Mode, current market.Candle, window []market.Candle) (bool, error) {
	switch c.kind {
	case conditionUnset:
		return false, nil
	case KindPredicate:
		if c.predicate == nil {
			return false, configErr("condition", "predicate is nil")
		}
		return c.predicate(current, window), nil
	case KindDeclarative:
		if mode == ModeExit {
			for _, chk := range c.checks {
				ok, err := chk.Eval(current, window)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		}
		for _, chk := range c.checks {
			ok, err := chk.Eval(current, window)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, configErr("condition", "unknown condition kind %s", c.kind)
	}
}

func (c Condition) withDefaultPeriod(period int) Condition {
	if c.kind != KindDeclarative {
		return c
	}
	out := DeclarativeCondition(c.checks...)
	for i := range out.checks {
		if out.checks[i].Period <= 0 && out.checks[i].usesRSI() {
			out.checks[i].Period = period
		}
	}
	return out
}
