package ticker

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Extractor finds candidate ticker symbols in article text.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// blacklist holds common acronyms that look like tickers.
var blacklist = map[string]bool{
	"USA": true, "CEO": true, "CFO": true, "IPO": true, "SEC": true, "ETF": true,
	"LLC": true, "INC": true, "LTD": true, "COO": true, "CTO": true, "CIO": true,
	"VP": true, "SVP": true, "EVP": true, "GM": true, "MD": true, "UK": true,
	"EU": true, "US": true, "IT": true, "AI": true, "API": true, "GDP": true,
	"CPI": true, "ESG": true, "PE": true, "VC": true, "MA": true, "ROI": true,
	"ROE": true, "EPS": true, "GAAP": true, "FAQ": true, "PDF": true, "CSV": true,
	"JSON": true, "XML": true, "HTML": true, "HTTP": true, "FTP": true, "AWS": true,
	"IBM": true, "SAP": true, "ERP": true, "CRM": true, "SAAS": true, "PAAS": true,
	"IAAS": true,
}

var (
	cashtagRe  = regexp.MustCompile(`\$([A-Z]{1,5})\b`)
	exchangeRe = regexp.MustCompile(`\((?:NASDAQ:|NYSE:|NYSEARCA:)?([A-Z]{1,5})\)`)
	labelRe    = regexp.MustCompile(`(?i)(?:ticker|symbol):\s*([a-z]{1,5})\b`)
)

// IsValid reports whether s plausibly is a ticker: 1-5 letters and not a common acronym.
func IsValid(s string) bool {
	if len(s) < 1 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return !blacklist[strings.ToUpper(s)]
}

// RegexExtractor finds tickers written as $TICK, (NYSE:TICK) or "ticker: TICK".
type RegexExtractor struct{}

// Extract implements Extractor. The result is deduplicated and sorted.
func (RegexExtractor) Extract(_ context.Context, text string) ([]string, error) {
	return ExtractRegex(text), nil
}

// ExtractRegex is the pattern-based extraction used directly and as the LLM fallback.
func ExtractRegex(text string) []string {
	found := make(map[string]bool)
	for _, re := range []*regexp.Regexp{cashtagRe, exchangeRe, labelRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			found[strings.ToUpper(m[1])] = true
		}
	}
	return Clean(keys(found))
}

// Clean uppercases, filters invalid symbols and returns a sorted, deduplicated list.
func Clean(candidates []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		t := strings.ToUpper(strings.TrimSpace(c))
		if !IsValid(t) || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
