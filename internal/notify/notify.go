// Package notify delivers alert events to their recipients.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/consensus/internal/domain"
)

// DefaultEndpoint is the Resend e-mail API.
const DefaultEndpoint = "https://api.resend.com/emails"

// ErrNoRecipient is returned for events that have neither a rule target nor
// a default recipient.
var ErrNoRecipient = errors.New("no recipient")

// Options configures a ResendNotifier
type Options struct {
	APIKey       string
	From         string
	DefaultTo    string // Recipient for built-in alerts and rules without a target
	DashboardURL string
	Endpoint     string
	Timeout      time.Duration
}

// ResendNotifier sends one e-mail per recipient through the Resend API
type ResendNotifier struct {
	opts   Options
	client *http.Client
	log    zerolog.Logger
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// NewResendNotifier creates a Resend-backed notifier
func NewResendNotifier(opts Options, log zerolog.Logger) *ResendNotifier {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &ResendNotifier{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		log:    log.With().Str("client", "resend").Logger(),
	}
}

// Notify groups events by recipient and sends one message per group.
// It returns the number of events delivered. A failed group does not stop
// the remaining groups; all failures are joined into the returned error.
func (n *ResendNotifier) Notify(ctx context.Context, events []domain.AlertEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	groups := GroupByRecipient(events, n.opts.DefaultTo)
	recipients := make([]string, 0, len(groups))
	for to := range groups {
		recipients = append(recipients, to)
	}
	sort.Strings(recipients)

	delivered := 0
	var errs []error
	for _, to := range recipients {
		batch := groups[to]
		if to == "" {
			n.log.Warn().Int("events", len(batch)).Msg("Alerts dropped: no recipient configured")
			errs = append(errs, fmt.Errorf("%d events: %w", len(batch), ErrNoRecipient))
			continue
		}
		if err := n.send(ctx, to, batch); err != nil {
			n.log.Error().Err(err).Str("to", to).Int("events", len(batch)).Msg("Failed to send alert email")
			errs = append(errs, err)
			continue
		}
		delivered += len(batch)
		n.log.Info().Str("to", to).Int("events", len(batch)).Msg("Alert email sent")
	}

	return delivered, errors.Join(errs...)
}

func (n *ResendNotifier) send(ctx context.Context, to string, events []domain.AlertEvent) error {
	html, err := HTML(Markdown(events, n.opts.DashboardURL))
	if err != nil {
		return err
	}

	body, err := json.Marshal(emailRequest{
		From:    n.opts.From,
		To:      []string{to},
		Subject: Subject(events),
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// GroupByRecipient buckets events by their rule target, falling back to
// defaultTo. Events with no recipient at all land under the empty key.
func GroupByRecipient(events []domain.AlertEvent, defaultTo string) map[string][]domain.AlertEvent {
	groups := make(map[string][]domain.AlertEvent)
	for _, ev := range events {
		to := ev.Target
		if to == "" {
			to = defaultTo
		}
		groups[to] = append(groups[to], ev)
	}
	return groups
}

// LogNotifier writes events to the log and delivers nothing
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates the fallback notifier used when e-mail is not configured
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

// Notify logs each event and reports zero delivered
func (n *LogNotifier) Notify(_ context.Context, events []domain.AlertEvent) (int, error) {
	for _, ev := range events {
		tickers := make([]string, 0, len(ev.Matches))
		for _, m := range ev.Matches {
			tickers = append(tickers, m.Ticker)
		}
		n.log.Info().
			Str("type", string(ev.Type)).
			Str("rule", ev.RuleName).
			Strs("tickers", tickers).
			Int("additional", ev.AdditionalMatches).
			Msg("Alert (not delivered)")
	}
	return 0, nil
}
