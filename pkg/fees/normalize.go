package fees

import (
	"fmt"
	"strings"
)

// Stablecoin quotes collapse onto USD so FEE/USDT and FEE/USDC aggregate together.
var stablecoinAliases = map[string]string{
	"USDT": "USD",
	"USDC": "USD",
	"BUSD": "USD",
	"DAI":  "USD",
	"TUSD": "USD",
	"USDD": "USD",
	"USDP": "USD",
}

var baseCurrencyAliases = map[string]string{
	"WBTC":  "BTC",
	"WETH":  "ETH",
	"STETH": "ETH",
}

// NormalizeSymbol converts a trading pair symbol to its canonical form.
// Examples:
//   - btc/usdt -> BTC/USD
//   - WETH/USDC -> ETH/USD
//   - FEE/EUR -> FEE/EUR
func NormalizeSymbol(symbol string) string {
	parts := strings.Split(strings.TrimSpace(symbol), "/")
	if len(parts) != 2 {
		return symbol
	}

	base := strings.ToUpper(strings.TrimSpace(parts[0]))
	quote := strings.ToUpper(strings.TrimSpace(parts[1]))

	if normalized, ok := baseCurrencyAliases[base]; ok {
		base = normalized
	}
	if normalized, ok := stablecoinAliases[quote]; ok {
		quote = normalized
	}

	return base + "/" + quote
}

// ValidateSymbolFormat checks that a symbol is in BASE/QUOTE format.
func ValidateSymbolFormat(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w", ErrInvalidSymbolFormat)
	}

	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: %s", ErrInvalidSymbolFormat, symbol)
	}

	if strings.TrimSpace(parts[0]) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyBaseCurrency, symbol)
	}
	if strings.TrimSpace(parts[1]) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyQuoteCurrency, symbol)
	}

	return nil
}

// IsEquivalentSymbol reports whether two symbols normalize to the same pair.
func IsEquivalentSymbol(a, b string) bool {
	return NormalizeSymbol(a) == NormalizeSymbol(b)
}
