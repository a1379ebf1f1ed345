package ticker

import "strings"

// knownFunds are fund/ETF symbols commonly held by tracked investors.
var knownFunds = map[string]bool{
	"SPY": true, "QQQ": true, "IWM": true, "DIA": true, "VOO": true, "VTI": true,
	"VEA": true, "VWO": true, "EFA": true, "EEM": true, "GLD": true, "SLV": true,
	"TLT": true, "IEF": true, "LQD": true, "HYG": true, "XLF": true, "XLK": true,
	"XLE": true, "XLV": true, "XLI": true, "XLY": true, "XLP": true, "XLB": true,
	"XLU": true, "XLRE": true, "XLC": true, "VIG": true, "VYM": true, "SCHD": true,
	"ARKK": true, "ARKG": true, "ARKF": true, "ARKW": true, "ARKQ": true, "IVV": true,
	"IEFA": true, "AGG": true, "BND": true, "VNQ": true, "VNQI": true, "VGT": true,
	"VHT": true, "VFH": true, "VDC": true, "VIS": true, "VAW": true, "VDE": true,
	"VPU": true,
}

// IsKnownFund reports whether the normalized ticker is on the fund allow-list.
func IsKnownFund(t string) bool {
	return knownFunds[strings.ToUpper(t)]
}

const analysisBaseURL = "https://stockanalysis.com"

// Link returns the public research page for a ticker.
func Link(t string, fund bool) string {
	kind := "stocks"
	if fund {
		kind = "etf"
	}
	return analysisBaseURL + "/" + kind + "/" + strings.ToLower(t) + "/"
}
