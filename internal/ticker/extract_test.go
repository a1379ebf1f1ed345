package ticker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRegex(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "cashtags",
			text:     "We like $AAPL and $MSFT here, less so $GOOGL.",
			expected: []string{"AAPL", "GOOGL", "MSFT"},
		},
		{
			name:     "exchange prefixed",
			text:     "Alphabet (NASDAQ:GOOG) and Visa (NYSE:V) and plain (KO)",
			expected: []string{"GOOG", "KO", "V"},
		},
		{
			name:     "labelled",
			text:     "Ticker: nvo and Symbol: ASML",
			expected: []string{"ASML", "NVO"},
		},
		{
			name:     "blacklisted acronyms dropped",
			text:     "The $CEO said the (SEC) and (ETF) flows matter for $TSLA",
			expected: []string{"TSLA"},
		},
		{
			name:     "duplicates collapsed",
			text:     "$AAPL $AAPL (AAPL)",
			expected: []string{"AAPL"},
		},
		{
			name:     "nothing",
			text:     "no symbols in this text",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractRegex(tt.text))
		})
	}
}

func TestRegexExtractor(t *testing.T) {
	got, err := RegexExtractor{}.Extract(context.Background(), "buy $META")
	require.NoError(t, err)
	assert.Equal(t, []string{"META"}, got)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("A"))
	assert.True(t, IsValid("GOOGL"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("TOOLONG"))
	assert.False(t, IsValid("BRK1"))
	assert.False(t, IsValid("Saas"))
}

func TestClean(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, Clean([]string{" msft", "AAPL", "aapl", "NONE!", "CEO"}))
}
