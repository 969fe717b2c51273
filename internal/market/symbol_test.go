package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":       "BTCUSDT",
		" btcusdt ":     "BTCUSDT",
		"eth/usdt":      "ETHUSDT",
		"BTC/USDT:USDT": "BTCUSDT",
		"SOLBTC":        "SOLBTC",
		"FOO/BAR":       "FOOBAR",
		"XYZ":           "XYZ",
		"":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeSymbol(in), in)
	}
}

func TestParseSymbol(t *testing.T) {
	s := ParseSymbol("ethusdc")
	assert.Equal(t, "ETH", s.Base)
	assert.Equal(t, "USDC", s.Quote)
	assert.Equal(t, Symbol{}, ParseSymbol("USDT"))
}
