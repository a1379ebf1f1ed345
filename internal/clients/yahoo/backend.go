package yahoo

import (
	"fmt"

	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// yfBackend reads quote, info and one year of daily bars through go-yfinance
type yfBackend struct{}

func (yfBackend) Lookup(symbol string) (*Quote, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	info, err := t.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to get info: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("empty info for %s", symbol)
	}

	q := &Quote{
		Symbol:        symbol,
		Name:          info.LongName,
		QuoteType:     info.QuoteType,
		Industry:      info.Industry,
		Country:       info.Country,
		Exchange:      info.Exchange,
		Price:         info.CurrentPrice,
		PreviousClose: info.RegularMarketPreviousClose,
		TrailingPE:    info.TrailingPE,
		ForwardPE:     info.ForwardPE,
		PriceToBook:   info.PriceToBook,
		PEGRatio:      info.PegRatio,
		MarketCap:     float64(info.MarketCap),
	}
	if q.Name == "" {
		q.Name = info.ShortName
	}

	// Quote carries the live price; Info may lag
	if quote, err := t.Quote(); err == nil && quote != nil && quote.RegularMarketPrice > 0 {
		q.Price = quote.RegularMarketPrice
	}

	bars, err := t.History(models.HistoryParams{
		Period:     "1y",
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err == nil {
		ind := ComputeIndicators(bars)
		q.Week52High, q.Week52Low = ind.Week52High, ind.Week52Low
		q.RSI14, q.SMA200 = ind.RSI, ind.SMA
	}

	return q, nil
}
