package types

import (
	"fmt"
	"strings"
)

// Direction 表示持仓方向。
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// ParseDirection 大小写不敏感，接受 long/short/buy/sell。
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return DirectionLong, nil
	case "short", "sell":
		return DirectionShort, nil
	case "":
		return "", fmt.Errorf("direction is empty")
	default:
		return "", fmt.Errorf("unknown direction %q", raw)
	}
}

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Sign 多头为 +1，空头为 -1，未知方向为 0。
func (d Direction) Sign() int {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

func (d Direction) String() string { return string(d) }
