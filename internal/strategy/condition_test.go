package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesim/internal/market"
	"tradesim/internal/types"
)

func series(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			OpenTime: int64(i+1) * 3600_000,
			Open:     c,
			High:     c + 1,
			Low:      c - 0.5,
			Close:    c,
			Volume:   10,
		}
	}
	return out
}

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestEmptyDeclarativeModes(t *testing.T) {
	cond := DeclarativeCondition()
	cur := series(100)[0]

	ok, err := cond.Evaluate(ModeEntry, cur, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cond.Evaluate(ModeExit, cur, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Condition{}.Evaluate(ModeExit, cur, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPredicateSeesOnlyWindow(t *testing.T) {
	var seen int
	cond := PredicateCondition(func(current market.Candle, window []market.Candle) bool {
		seen = len(window)
		return current.Close > 100
	})
	candles := series(99, 100, 101)
	ok, err := cond.Evaluate(ModeEntry, candles[2], candles[:2])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, seen)
}

func TestEntryNeedsAllExitNeedsAny(t *testing.T) {
	window := series(ramp(100, 1, 5)...)
	cur := series(110)[0]
	pass := Check{Name: CheckPriceAbove, Value: 105}
	fail := Check{Name: CheckPriceBelow, Value: 50}

	ok, err := DeclarativeCondition(pass, fail).Evaluate(ModeEntry, cur, window)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = DeclarativeCondition(pass, fail).Evaluate(ModeExit, cur, window)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMovingAverageChecks(t *testing.T) {
	window := series(1, 2, 3)
	cur := series(3)[0]

	ok, _ := Check{Name: CheckPriceAboveMA, Period: 3}.Eval(cur, window)
	assert.True(t, ok)
	ok, _ = Check{Name: CheckPriceBelowMA, Period: 3}.Eval(cur, window)
	assert.False(t, ok)

	// 历史不足视为不满足
	ok, _ = Check{Name: CheckPriceAboveMA, Period: 5}.Eval(cur, window)
	assert.False(t, ok)

	loud := cur
	loud.Volume = 25
	ok, _ = Check{Name: CheckVolumeAboveMA, Period: 3, Value: 2}.Eval(loud, window)
	assert.True(t, ok)
	ok, _ = Check{Name: CheckVolumeAboveMA, Period: 3, Value: 3}.Eval(loud, window)
	assert.False(t, ok)
}

func TestRSIChecks(t *testing.T) {
	rising := series(ramp(100, 1, 20)...)
	falling := series(ramp(120, -1, 20)...)
	cur := series(100)[0]

	ok, _ := Check{Name: CheckRSIAbove, Value: 70, Period: 14}.Eval(cur, rising)
	assert.True(t, ok)
	ok, _ = Check{Name: CheckRSIBelow, Value: 30, Period: 14}.Eval(cur, rising)
	assert.False(t, ok)
	ok, _ = Check{Name: CheckRSIBelow, Value: 30, Period: 14}.Eval(cur, falling)
	assert.True(t, ok)

	short := series(ramp(100, -1, 10)...)
	ok, _ = Check{Name: CheckRSIBelow, Value: 30, Period: 14}.Eval(cur, short)
	assert.False(t, ok)
}

func TestUnknownCheck(t *testing.T) {
	_, err := Check{Name: "moon_phase"}.Eval(series(1)[0], nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func validRules() Rules {
	return Rules{
		Name:                "rsi",
		PositionSizePercent: 10,
		StopLossPercent:     1,
		TakeProfitPercent:   2,
		Direction:           types.DirectionLong,
		Entry:               DeclarativeCondition(Check{Name: CheckRSIBelow, Value: 30}),
		Exit:                DeclarativeCondition(Check{Name: CheckRSIAbove, Value: 70}),
	}
}

func TestRulesValidate(t *testing.T) {
	require.NoError(t, validRules().Validate())

	cases := []struct {
		name   string
		mutate func(*Rules)
		field  string
	}{
		{"missing entry", func(r *Rules) { r.Entry = Condition{} }, "entry"},
		{"bad direction", func(r *Rules) { r.Direction = "BOTH" }, "direction"},
		{"zero size", func(r *Rules) { r.PositionSizePercent = 0 }, "position_size_percent"},
		{"oversize", func(r *Rules) { r.PositionSizePercent = 150 }, "position_size_percent"},
		{"no name", func(r *Rules) { r.Name = " " }, "name"},
		{"nil predicate", func(r *Rules) { r.Exit = PredicateCondition(nil) }, "exit"},
		{"unknown check", func(r *Rules) { r.Entry = DeclarativeCondition(Check{Name: "nope"}) }, "entry[0]"},
		{"unknown kind", func(r *Rules) { r.Entry = Condition{kind: ConditionKind(9)} }, "entry"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRules()
			tc.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tc.field, ce.Field)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestPrepareFillsRSIPeriod(t *testing.T) {
	r, err := validRules().Prepare()
	require.NoError(t, err)
	assert.Equal(t, DefaultRSIPeriod, r.RSIPeriod)
	assert.Equal(t, DefaultRSIPeriod, r.Entry.Checks()[0].Period)
	assert.Equal(t, DefaultRSIPeriod, r.Exit.Checks()[0].Period)
}
