package backtest

import (
	"errors"
	"time"

	"tradesim/internal/risk"
	"tradesim/internal/types"
)

var (
	// ErrTradeClosed 重复平仓。
	ErrTradeClosed = errors.New("trade already closed")
	// ErrPositionOpen 已有持仓时再次开仓。
	ErrPositionOpen = errors.New("position already open")
	// ErrNoPosition 没有可平的持仓。
	ErrNoPosition = errors.New("no open position")
)

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// ExitReason 记录平仓原因，按优先级排列。
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitSignal     ExitReason = "exit_signal"
	ExitEndOfData  ExitReason = "end_of_data"
)

// Trade 是一笔模拟持仓；open → closed 只发生一次。
type Trade struct {
	ID            int             `json:"id"`
	Direction     types.Direction `json:"direction"`
	Status        TradeStatus     `json:"status"`
	EntryTime     time.Time       `json:"entry_time"`
	EntryPrice    float64         `json:"entry_price"`
	Quantity      float64         `json:"quantity"`
	Notional      float64         `json:"notional"`
	StopLoss      float64         `json:"stop_loss"`
	TakeProfit    float64         `json:"take_profit"`
	ExitTime      time.Time       `json:"exit_time,omitempty"`
	ExitPrice     float64         `json:"exit_price,omitempty"`
	ExitReason    ExitReason      `json:"exit_reason,omitempty"`
	Profit        float64         `json:"profit"`
	ProfitPercent float64         `json:"profit_percent"`
	Duration      time.Duration   `json:"duration"`
}

func (t *Trade) IsOpen() bool { return t.Status == TradeOpen }

// Close 以给定价格平仓并计算盈亏。
func (t *Trade) Close(at time.Time, price float64, reason ExitReason) error {
	if t.Status == TradeClosed {
		return ErrTradeClosed
	}
	t.Status = TradeClosed
	t.ExitTime = at
	t.ExitPrice = price
	t.ExitReason = reason
	t.Profit = risk.PnL(t.Direction, t.EntryPrice, price, t.Quantity)
	t.ProfitPercent = risk.PnLPercent(t.Direction, t.EntryPrice, price)
	t.Duration = at.Sub(t.EntryTime)
	return nil
}

// UnrealizedPnL 按标记价格估算浮动盈亏。
func (t *Trade) UnrealizedPnL(mark float64) float64 {
	if t.Status != TradeOpen {
		return 0
	}
	return risk.PnL(t.Direction, t.EntryPrice, mark, t.Quantity)
}

// DurationHours 持仓时长（小时）。
func (t Trade) DurationHours() float64 {
	return t.Duration.Hours()
}

// ledger 保存一次运行的资金、当前持仓与成交历史。
type ledger struct {
	capital   float64
	open      *Trade
	history   []Trade
	lastEntry time.Time
	nextID    int
}

func newLedger(capital float64) *ledger {
	return &ledger{capital: capital, nextID: 1}
}

func (l *ledger) openTrade(t Trade) (*Trade, error) {
	if l.open != nil {
		return nil, ErrPositionOpen
	}
	t.ID = l.nextID
	t.Status = TradeOpen
	l.nextID++
	l.open = &t
	l.lastEntry = t.EntryTime
	return l.open, nil
}

func (l *ledger) closeTrade(at time.Time, price float64, reason ExitReason) (Trade, error) {
	if l.open == nil {
		return Trade{}, ErrNoPosition
	}
	if err := l.open.Close(at, price, reason); err != nil {
		return Trade{}, err
	}
	closed := *l.open
	l.capital += closed.Profit
	l.history = append(l.history, closed)
	l.open = nil
	return closed, nil
}

// equity = 已实现资金 + 浮动盈亏。
func (l *ledger) equity(mark float64) float64 {
	if l.open == nil {
		return l.capital
	}
	return l.capital + l.open.UnrealizedPnL(mark)
}
