package dataroma

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/fetch"
)

const homePage = `<html><body>
<div id="port_body">
<ul>
  <li><a href="/m/holdings.php?m=BRK"><span>Warren Buffett - Berkshire Hathaway</span> <span class="upd">Updated 14 Nov 2024</span></a></li>
  <li><a href="/m/holdings.php?m=AKO">Thomas Russo - Gardner Russo &amp; Quinn Updated 2 Aug 2024</a></li>
  <li><a href="/m/holdings.php?m=BRK">Warren Buffett - Berkshire Hathaway Updated 1 Jan 2020</a></li>
  <li><a href="/m/holdings.php?m=GLRE">David Einhorn - Greenlight Capital Updated recently</a></li>
  <li><a href="/m/holdings.php?m=NOPE">No update marker</a></li>
  <li><a href="/m/managers.php">All managers</a></li>
</ul>
</div></body></html>`

const holdingsPage = `<html><body>
<table id="grid">
<thead><tr><th>History</th><th>Stock</th><th>% of Portfolio</th><th>Recent Activity</th><th>Shares</th><th>Price</th></tr></thead>
<tbody>
<tr><td>h</td><td class="stock"><a href="/m/stock.php?sym=AAPL">AAPL - Apple Inc.</a></td><td>28.12</td><td class="sell">Reduce 25.00%</td><td>300,000,000</td><td>$228</td></tr>
<tr><td>h</td><td class="stock"><a href="/m/stock.php?sym=BRK.B">BRK.B - Berkshire Hathaway CL B</a></td><td>0.51%</td><td></td><td>1,000</td><td>$470</td></tr>
<tr><td>h</td><td class="stock"><a href="/m/stock.php?sym=LSXMK.WS">LSXMK.WS - Liberty Warrants</a></td><td>0.01</td><td>Add 3.5%</td><td>n/a</td><td>$1</td></tr>
<tr><td>h</td><td class="stock">no link</td><td>1</td><td>Buy</td><td>1</td><td>$1</td></tr>
<tr><td>too</td><td>short</td></tr>
</tbody>
</table></body></html>`

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func TestParseDiscovery(t *testing.T) {
	entities := ParseDiscovery(parse(t, homePage), "https://www.dataroma.com/m")

	require.Len(t, entities, 3)

	assert.Equal(t, domain.UpstreamEntity{
		ID:           "BRK",
		Name:         "Warren Buffett",
		FullName:     "Warren Buffett - Berkshire Hathaway",
		LastModified: "2024-11-14",
		SourceURL:    "https://www.dataroma.com/m/holdings.php?m=BRK",
	}, entities[0])

	assert.Equal(t, "AKO", entities[1].ID)
	assert.Equal(t, "Thomas Russo", entities[1].Name)
	assert.Equal(t, "2024-08-02", entities[1].LastModified)

	// No parseable date: kept with an empty marker
	assert.Equal(t, "GLRE", entities[2].ID)
	assert.Equal(t, "David Einhorn", entities[2].Name)
	assert.Empty(t, entities[2].LastModified)
}

func TestParseHoldings(t *testing.T) {
	entity := domain.UpstreamEntity{ID: "BRK", Name: "Warren Buffett", SourceURL: "https://x/holdings.php?m=BRK"}
	observed := time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

	facts, skipped := ParseHoldings(parse(t, holdingsPage), entity, observed)

	assert.Equal(t, 2, skipped)
	require.Len(t, facts, 3)

	aapl := facts[0]
	assert.Equal(t, "AAPL", aapl.Ticker)
	assert.Equal(t, "Apple Inc.", aapl.SecurityName)
	assert.Equal(t, "Warren Buffett", aapl.Entity)
	assert.Equal(t, "BRK", aapl.EntityID)
	assert.Equal(t, domain.Some(28.12), aapl.PortfolioWeight)
	assert.Equal(t, domain.Some(300000000), aapl.Shares)
	assert.Equal(t, domain.ActionReduce, aapl.Activity.Action)
	require.NotNil(t, aapl.Activity.Percentage)
	assert.Equal(t, 25.0, *aapl.Activity.Percentage)
	assert.Equal(t, "Reduce 25.00%", aapl.ActivityRaw)
	assert.Equal(t, observed, aapl.ObservedAt)
	assert.Equal(t, entity.SourceURL, aapl.SourceURL)

	brk := facts[1]
	assert.Equal(t, "BRK-B", brk.Ticker)
	assert.Equal(t, "BRK.B", brk.RawTicker)
	assert.Equal(t, domain.Some(0.51), brk.PortfolioWeight)
	assert.Equal(t, domain.ActionHold, brk.Activity.Action)

	warrant := facts[2]
	assert.Equal(t, "LSXMK-WT", warrant.Ticker)
	assert.False(t, warrant.Shares.Valid)
	assert.Equal(t, domain.ActionAdd, warrant.Activity.Action)
}

func TestParseHoldings_NoTable(t *testing.T) {
	facts, skipped := ParseHoldings(parse(t, `<html><body><p>maintenance</p></body></html>`), domain.UpstreamEntity{ID: "X"}, time.Now())
	assert.Empty(t, facts)
	assert.Zero(t, skipped)
}

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL: baseURL,
		Retry:   fetch.RetryPolicy{Attempts: 2, Backoff: time.Millisecond},
	}, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestClient_DiscoverAndFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/m/home.php":
			_, _ = w.Write([]byte(homePage))
		case "/m/holdings.php":
			assert.Equal(t, "BRK", r.URL.Query().Get("m"))
			_, _ = w.Write([]byte(holdingsPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL + "/m")
	ctx := context.Background()

	entities, err := client.DiscoverEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 3)
	assert.Equal(t, server.URL+"/m/holdings.php?m=BRK", entities[0].SourceURL)

	facts, err := client.FetchHoldings(ctx, entities[0])
	require.NoError(t, err)
	assert.Len(t, facts, 3)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(holdingsPage))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	facts, err := client.FetchHoldings(context.Background(), domain.UpstreamEntity{ID: "BRK", Name: "Warren Buffett"})

	require.NoError(t, err)
	assert.Len(t, facts, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).DiscoverEntities(context.Background())
	assert.ErrorIs(t, err, fetch.ErrRetriesExhausted)
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchHoldings(context.Background(), domain.UpstreamEntity{ID: "GONE"})
	require.Error(t, err)
	assert.True(t, fetch.IsPermanent(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_MissingFundID(t *testing.T) {
	_, err := newTestClient("http://unused").FetchHoldings(context.Background(), domain.UpstreamEntity{Name: "Anon"})
	assert.True(t, errors.Is(err, domain.ErrMalformedFact))
}

func TestIsoDate(t *testing.T) {
	assert.Equal(t, "2024-11-14", isoDate("14 Nov 2024"))
	assert.Equal(t, "2024-08-02", isoDate("2  Aug 2024"))
	assert.Empty(t, isoDate("14 Foo 2024"))
}
