package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/consensus/internal/domain"
)

func testEvents() []domain.AlertEvent {
	now := time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC)
	return []domain.AlertEvent{
		{
			Type:      domain.AlertPriceMove,
			Direction: "up",
			Matches: []domain.AlertMatch{{
				Ticker:       "NVDA",
				Name:         "NVIDIA Corp",
				PctChange:    domain.Some(12.5),
				CurrentPrice: domain.Some(145.2),
				Link:         "https://stockanalysis.com/stocks/nvda/",
			}},
			CreatedAt: now,
		},
		{
			Type: domain.AlertCrossSource,
			Matches: []domain.AlertMatch{{
				Ticker:       "AAPL",
				Name:         "Apple | Inc.",
				HoldingCount: 2,
				MentionCount: 1,
				Holders:      []string{"Warren Buffett", "Li Lu"},
				Link:         "https://stockanalysis.com/stocks/aapl/",
			}},
			CreatedAt: now,
		},
		{
			Type:              domain.AlertCustomRule,
			RuleName:          "Deep value",
			Condition:         "pe_ratio < 10",
			Target:            "value@example.com",
			Matches:           []domain.AlertMatch{{Ticker: "OXY", Name: "Occidental"}},
			AdditionalMatches: 4,
			CreatedAt:         now,
		},
	}
}

type capturedEmail struct {
	auth string
	req  emailRequest
}

func newResendServer(t *testing.T, status int) (*httptest.Server, func() []capturedEmail) {
	t.Helper()
	var mu sync.Mutex
	var got []capturedEmail

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, capturedEmail{auth: r.Header.Get("Authorization"), req: req})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedEmail {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedEmail(nil), got...)
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Investment Alert: 1 price moves, 1 cross-source, 1 custom rules", Subject(testEvents()))
	assert.Equal(t, "Investment Alert: 1 custom rules", Subject(testEvents()[2:]))
}

func TestMarkdownAndHTML(t *testing.T) {
	md := Markdown(testEvents(), "https://dash.example.com")

	assert.Contains(t, md, "## Price Move Alerts")
	assert.Contains(t, md, "+12.50%")
	assert.Contains(t, md, "$145.20")
	assert.Contains(t, md, `Apple \| Inc.`)
	assert.Contains(t, md, "### Deep value")
	assert.Contains(t, md, "...and 4 more")
	assert.Contains(t, md, "https://dash.example.com")

	html, err := HTML(md)
	require.NoError(t, err)
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<h3>Deep value</h3>")
	assert.Contains(t, html, "<code>pe_ratio &lt; 10</code>")
}

func TestGroupByRecipient(t *testing.T) {
	groups := GroupByRecipient(testEvents(), "me@example.com")

	assert.Len(t, groups["me@example.com"], 2)
	assert.Len(t, groups["value@example.com"], 1)

	groups = GroupByRecipient(testEvents(), "")
	assert.Len(t, groups[""], 2)
}

func TestResendNotifier_SendsOneEmailPerRecipient(t *testing.T) {
	srv, sent := newResendServer(t, http.StatusOK)
	n := NewResendNotifier(Options{
		APIKey:    "re_test",
		From:      "alerts@example.com",
		DefaultTo: "me@example.com",
		Endpoint:  srv.URL,
	}, zerolog.New(nil).Level(zerolog.Disabled))

	delivered, err := n.Notify(context.Background(), testEvents())
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)

	emails := sent()
	require.Len(t, emails, 2)
	assert.Equal(t, "Bearer re_test", emails[0].auth)
	assert.Equal(t, []string{"me@example.com"}, emails[0].req.To)
	assert.Equal(t, "alerts@example.com", emails[0].req.From)
	assert.Contains(t, emails[0].req.Subject, "1 price moves, 1 cross-source")
	assert.Contains(t, emails[0].req.HTML, "NVDA")
	assert.Equal(t, []string{"value@example.com"}, emails[1].req.To)
	assert.Contains(t, emails[1].req.HTML, "Deep value")
}

func TestResendNotifier_ServerError(t *testing.T) {
	srv, _ := newResendServer(t, http.StatusUnprocessableEntity)
	n := NewResendNotifier(Options{APIKey: "k", From: "a@example.com", DefaultTo: "me@example.com", Endpoint: srv.URL},
		zerolog.New(nil).Level(zerolog.Disabled))

	delivered, err := n.Notify(context.Background(), testEvents())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Equal(t, 0, delivered)
}

func TestResendNotifier_MissingDefaultRecipient(t *testing.T) {
	srv, sent := newResendServer(t, http.StatusOK)
	n := NewResendNotifier(Options{APIKey: "k", From: "a@example.com", Endpoint: srv.URL},
		zerolog.New(nil).Level(zerolog.Disabled))

	delivered, err := n.Notify(context.Background(), testEvents())
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.Equal(t, 1, delivered, "rule with its own target is still delivered")
	assert.Len(t, sent(), 1)
}

func TestResendNotifier_NoEvents(t *testing.T) {
	n := NewResendNotifier(Options{Endpoint: "http://127.0.0.1:0"}, zerolog.New(nil).Level(zerolog.Disabled))
	delivered, err := n.Notify(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zerolog.New(nil).Level(zerolog.Disabled))
	delivered, err := n.Notify(context.Background(), testEvents())
	assert.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

var (
	_ domain.Notifier = (*ResendNotifier)(nil)
	_ domain.Notifier = (*LogNotifier)(nil)
)
