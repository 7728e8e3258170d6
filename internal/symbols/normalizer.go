// Package symbols canonicalizes trading-pair symbols so that lot matching
// groups trades correctly: "btc", "BTC/EUR" and "BTC_EUR" all become
// "BTC-EUR".
package symbols

import "strings"

// DefaultQuote is appended to bare base symbols.
const DefaultQuote = "EUR"

// Normalize returns the canonical BASE-QUOTE form of a symbol. Empty input
// stays empty.
func Normalize(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "_", "-")

	base, quote, found := strings.Cut(s, "-")
	if !found || quote == "" {
		return base + "-" + DefaultQuote
	}
	return base + "-" + quote
}

// Base returns the base asset of a normalized symbol ("BTC" for "BTC-EUR").
func Base(symbol string) string {
	base, _, _ := strings.Cut(Normalize(symbol), "-")
	return base
}
