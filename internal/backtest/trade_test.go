package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/types"
)

func TestTradeCloseOnce(t *testing.T) {
	entry := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := Trade{Direction: types.DirectionLong, Status: TradeOpen, EntryTime: entry, EntryPrice: 100, Quantity: 2}

	require.NoError(t, tr.Close(entry.Add(3*time.Hour), 110, ExitTakeProfit))
	assert.Equal(t, TradeClosed, tr.Status)
	assert.InDelta(t, 20, tr.Profit, 1e-9)
	assert.InDelta(t, 10, tr.ProfitPercent, 1e-9)
	assert.Equal(t, 3.0, tr.DurationHours())

	err := tr.Close(entry.Add(4*time.Hour), 90, ExitSignal)
	assert.ErrorIs(t, err, ErrTradeClosed)
	assert.Equal(t, 110.0, tr.ExitPrice)
}

func TestShortTradeProfitSign(t *testing.T) {
	tr := Trade{Direction: types.DirectionShort, Status: TradeOpen, EntryPrice: 100, Quantity: 1}
	require.NoError(t, tr.Close(time.Time{}, 95, ExitSignal))
	assert.InDelta(t, 5, tr.Profit, 1e-9)
	assert.InDelta(t, 5, tr.ProfitPercent, 1e-9)
}

func TestLedgerSinglePosition(t *testing.T) {
	book := newLedger(1000)
	_, err := book.openTrade(Trade{Direction: types.DirectionLong, EntryPrice: 10, Quantity: 1})
	require.NoError(t, err)

	_, err = book.openTrade(Trade{Direction: types.DirectionLong, EntryPrice: 11, Quantity: 1})
	assert.ErrorIs(t, err, ErrPositionOpen)
	assert.InDelta(t, 1002, book.equity(12), 1e-9)

	closed, err := book.closeTrade(time.Time{}, 8, ExitStopLoss)
	require.NoError(t, err)
	assert.Equal(t, 1, closed.ID)
	assert.InDelta(t, 998, book.capital, 1e-9)
	assert.Len(t, book.history, 1)

	_, err = book.closeTrade(time.Time{}, 8, ExitStopLoss)
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestClockWindowExcludesCurrent(t *testing.T) {
	candles := hourly(1, 2, 3, 4, 5)
	clk := newClock(candles, 2)

	require.True(t, clk.Next())
	assert.Empty(t, clk.Window())

	require.True(t, clk.Next())
	require.True(t, clk.Next())
	require.True(t, clk.Next())
	win := clk.Window()
	require.Len(t, win, 2)
	assert.Equal(t, 2.0, win[0].Close)
	assert.Equal(t, 3.0, win[1].Close)
	assert.Equal(t, 4.0, clk.Current().Close)

	// append 不能覆盖后续 K 线
	_ = append(win, candles[0])
	assert.Equal(t, 4.0, candles[3].Close)
}
