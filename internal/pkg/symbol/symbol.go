package symbol

import "strings"

// Normalize upper-cases and trims a pair symbol ("eth/usdt:usdt" -> "ETH/USDT:USDT").
func Normalize(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

// ToBinance converts a unified futures symbol to Binance form:
// "ETH/USDT:USDT" -> "ETHUSDT". Already-clean symbols pass through.
func ToBinance(sym string) string {
	s := Normalize(sym)
	if idx := strings.Index(s, ":"); idx != -1 {
		s = s[:idx]
	}
	return strings.ReplaceAll(s, "/", "")
}

// Base returns the base asset of a unified symbol ("ETH/USDT:USDT" -> "ETH").
func Base(sym string) string {
	s := Normalize(sym)
	if idx := strings.Index(s, "/"); idx != -1 {
		return s[:idx]
	}
	return s
}
