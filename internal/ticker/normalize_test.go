package ticker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "whitespace only", input: "   ", expected: ""},
		{name: "plain", input: "AAPL", expected: "AAPL"},
		{name: "lowercase trimmed", input: "  aapl ", expected: "AAPL"},
		{name: "warrant", input: "BRK.WS", expected: "BRK-WT"},
		{name: "class a", input: "BRK.A", expected: "BRK-A"},
		{name: "class b lowercase", input: "brk.b", expected: "BRK-B"},
		{name: "korean exchange", input: "003550.KS", expected: "003550.KS"},
		{name: "hong kong", input: "0019.HK", expected: "0019.HK"},
		{name: "tokyo", input: "7203.T", expected: "7203.T"},
		{name: "london alpha", input: "BP.L", expected: "BP.L"},
		{name: "toronto", input: "shop.to", expected: "SHOP.TO"},
		{name: "unknown alpha suffix", input: "RDS.XY", expected: "RDS-XY"},
		{name: "numeric suffix kept", input: "ABC.1", expected: "ABC.1"},
		{name: "already dashed", input: "BRK-A", expected: "BRK-A"},
		{name: "class suffix with digit falls through", input: "1234.A", expected: "1234-A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"", " ", "AAPL", "brk.ws", "BRK.A", "BRK.B", "003550.KS", "0019.HK",
		"X.Y.WS", "A.B.C", "ABC.1", "1234.AB", "SHOP.TO", "foo.bar.hk", ".", "..WS",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestIsKnownFund(t *testing.T) {
	assert.True(t, IsKnownFund("SPY"))
	assert.True(t, IsKnownFund("schd"))
	assert.False(t, IsKnownFund("AAPL"))
}

func TestLink(t *testing.T) {
	assert.Equal(t, "https://stockanalysis.com/stocks/brk-a/", Link("BRK-A", false))
	assert.Equal(t, "https://stockanalysis.com/etf/spy/", Link("SPY", true))
}
