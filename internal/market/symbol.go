package market

import "strings"

// quoteCurrencies 按优先级匹配无分隔符写法的计价币。
var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}

// Symbol 是拆分后的交易对。
type Symbol struct {
	Base  string
	Quote string
}

// String 返回交易所写法，例如 BTCUSDT。
func (s Symbol) String() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// ParseSymbol 接受 BTCUSDT、btc/usdt、BTC/USDT:USDT 等写法。
func ParseSymbol(raw string) Symbol {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{Base: strings.TrimSpace(parts[0]), Quote: strings.TrimSpace(parts[1])}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// NormalizeSymbol 统一成交易所写法；无法识别计价币时退化为去分隔符的大写形式。
func NormalizeSymbol(raw string) string {
	if sym := ParseSymbol(raw).String(); sym != "" {
		return sym
	}
	s := strings.ToUpper(strings.TrimSpace(raw))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.ReplaceAll(s, "/", "")
}
