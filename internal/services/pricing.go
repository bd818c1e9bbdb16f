package services

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var displayPrinter = message.NewPrinter(language.English)

// ComputeTotal sums the authoritative order total in minor currency units.
// Client-supplied totals are never trusted; this is the only total persisted.
func ComputeTotal(items []CheckoutItem) int64 {
	var total int64
	for _, item := range items {
		total += item.UnitPrice * item.Quantity
	}
	return total
}

// FormatAmount renders a minor-unit amount as a localised display string,
// e.g. 2000 USD -> "$20.00". Unknown currency codes fall back to a plain
// "<amount> <CODE>" rendering.
func FormatAmount(amount int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%d %s", amount, code)
	}
	// The currency formatter puts a space between symbol and number, so the
	// symbol and the scaled value are rendered separately.
	scale, _ := currency.Cash.Rounding(unit)
	major := float64(amount) / math.Pow10(scale)
	symbol := displayPrinter.Sprintf("%v", currency.NarrowSymbol(unit))
	return symbol + displayPrinter.Sprintf("%.*f", scale, major)
}
