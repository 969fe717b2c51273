package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandlesSummary(t *testing.T) {
	assert.Equal(t, "0 candles", Candles(nil).Summary())

	cs := Candles{
		{OpenTime: 1704067200000, Open: 100, High: 101, Low: 99, Close: 100.5},
		{OpenTime: 1704070800000, Open: 100.5, High: 104, Low: 100, Close: 102},
	}
	assert.Equal(t,
		"2 candles 2024-01-01 00:00Z -> 2024-01-01 01:00Z, change +2.00%, range 99.0000..104.0000",
		cs.Summary())

	assert.Equal(t, "-", Candle{}.TimeString())
}
