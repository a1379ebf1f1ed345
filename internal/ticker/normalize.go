// Package ticker canonicalizes security symbols across source dialects and
// extracts candidate symbols from free text.
package ticker

import (
	"strings"
	"unicode"
)

// internationalSuffixes are exchange suffixes the market-data source expects in dotted form.
var internationalSuffixes = map[string]bool{
	"KS": true, "KQ": true, "HK": true, "T": true, "L": true, "DE": true,
	"PA": true, "AS": true, "MI": true, "SW": true, "TO": true, "V": true,
	"AX": true, "SI": true, "BO": true, "NS": true,
}

// Normalize maps a source-specific ticker spelling to its canonical form.
// It is total and idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if t == "" {
		return t
	}

	if strings.HasSuffix(t, ".WS") {
		base := strings.TrimSuffix(t, ".WS")
		return strings.ReplaceAll(base, ".", "-") + "-WT"
	}

	if !hasDigit(t) && (strings.HasSuffix(t, ".A") || strings.HasSuffix(t, ".B")) {
		return strings.ReplaceAll(t, ".", "-")
	}

	if idx := strings.LastIndexByte(t, '.'); idx >= 0 {
		suffix := t[idx+1:]
		if internationalSuffixes[suffix] {
			return t
		}
		if !hasDigit(suffix) {
			return strings.ReplaceAll(t, ".", "-")
		}
	}

	return t
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
