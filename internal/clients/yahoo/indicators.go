package yahoo

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/wnjoon/go-yfinance/pkg/models"
)

const (
	rsiPeriod = 14
	smaPeriod = 200
)

// Indicators are derived from the daily bars. Zero means not enough history.
type Indicators struct {
	Week52High float64
	Week52Low  float64
	RSI        float64
	SMA        float64
}

// ComputeIndicators derives the yearly range, RSI(14) and SMA(200) from bars
func ComputeIndicators(bars []models.Bar) Indicators {
	var highs, lows, closes []float64
	for _, bar := range bars {
		if bar.High > 0 {
			highs = append(highs, bar.High)
		}
		if bar.Low > 0 {
			lows = append(lows, bar.Low)
		}
		if bar.Close > 0 {
			closes = append(closes, bar.Close)
		}
	}

	var ind Indicators
	ind.Week52High = windowLast(highs, talib.Max)
	ind.Week52Low = windowLast(lows, talib.Min)
	if len(closes) > rsiPeriod {
		ind.RSI = last(talib.Rsi(closes, rsiPeriod))
	}
	if len(closes) >= smaPeriod {
		ind.SMA = last(talib.Sma(closes, smaPeriod))
	}
	return ind
}

// windowLast applies a rolling function over the whole series and keeps the final value
func windowLast(series []float64, fn func([]float64, int) []float64) float64 {
	switch len(series) {
	case 0:
		return 0
	case 1:
		return series[0]
	}
	return last(fn(series, len(series)))
}

func last(out []float64) float64 {
	if len(out) == 0 {
		return 0
	}
	v := out[len(out)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
