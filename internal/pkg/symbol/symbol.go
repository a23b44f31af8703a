package symbol

import (
	"regexp"
	"sort"
	"strings"
)

var (
	instrumentPattern = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)
	partPattern       = regexp.MustCompile(`^[A-Z0-9]+$`)
)

var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "FDUSD", "BTC", "ETH", "BNB"}

// Symbol 是拆分后的交易对。
type Symbol struct {
	Base  string
	Quote string
}

// Instrument returns the exchange form used everywhere in quantsignal, e.g. "BTCUSDT".
func (s Symbol) Instrument() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

func (s Symbol) String() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Parse accepts "BTC/USDT", "btc-usdt", "BTC/USDT:USDT" and "BTCUSDT".
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			base, quote := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if !partPattern.MatchString(base) || !partPattern.MatchString(quote) {
				return Symbol{}
			}
			return Symbol{Base: base, Quote: quote}
		}
	}
	if !partPattern.MatchString(s) {
		return Symbol{}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// Normalize maps any accepted spelling to the instrument code. Unknown quotes are upper-cased as is;
// anything that is not a plain alphanumeric code normalizes to "".
func Normalize(s string) string {
	if inst := Parse(s).Instrument(); ValidInstrument(inst) {
		return inst
	}
	if up := strings.ToUpper(strings.TrimSpace(s)); ValidInstrument(up) {
		return up
	}
	return ""
}

// NormalizeList normalizes, de-duplicates and sorts; comma separated entries are split.
func NormalizeList(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		for _, part := range strings.Split(raw, ",") {
			norm := Normalize(part)
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			out = append(out, norm)
		}
	}
	sort.Strings(out)
	return out
}

// IsValid reports whether s parses into base and quote and its instrument code is well formed.
func IsValid(s string) bool {
	return ValidInstrument(Parse(s).Instrument())
}

// ValidInstrument 只接受 2~20 位大写字母数字，保证可以直接用作文件名。
func ValidInstrument(inst string) bool {
	return instrumentPattern.MatchString(inst)
}
