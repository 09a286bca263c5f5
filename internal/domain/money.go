package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"jpy": true, "krw": true, "vnd": true, "clp": true, "isk": true,
}

// FormatAmount renders minor units as a display string, e.g. 2180 EUR -> "21.80 EUR".
func FormatAmount(amount int64, currencyCode string) string {
	code := strings.ToLower(currencyCode)
	exp := int32(-2)
	if zeroDecimalCurrencies[code] {
		exp = 0
	}
	d := decimal.New(amount, exp)
	return d.StringFixed(-exp) + " " + strings.ToUpper(code)
}
