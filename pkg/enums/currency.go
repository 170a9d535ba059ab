package enums

import (
	"fmt"
	"strings"
)

// Currency represents the monetary denominations supported for accounts.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCOP Currency = "COP"
	CurrencyMXN Currency = "MXN"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyBRL Currency = "BRL"
	CurrencyARS Currency = "ARS"
	CurrencyCLP Currency = "CLP"
	CurrencyPEN Currency = "PEN"
)

var validCurrencies = []Currency{
	CurrencyUSD,
	CurrencyCOP,
	CurrencyMXN,
	CurrencyEUR,
	CurrencyGBP,
	CurrencyBRL,
	CurrencyARS,
	CurrencyCLP,
	CurrencyPEN,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	upper := Currency(strings.ToUpper(strings.TrimSpace(value)))
	for _, candidate := range validCurrencies {
		if candidate == upper {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
