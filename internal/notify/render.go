package notify

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/aristath/consensus/internal/domain"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// Subject summarizes a batch of events by type, e.g.
// "Investment Alert: 2 price moves, 1 custom rules".
func Subject(events []domain.AlertEvent) string {
	counts := countByType(events)

	var parts []string
	if n := counts[domain.AlertPriceMove]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d price moves", n))
	}
	if n := counts[domain.AlertCrossSource]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d cross-source", n))
	}
	if n := counts[domain.AlertCustomRule]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d custom rules", n))
	}
	return "Investment Alert: " + strings.Join(parts, ", ")
}

// Markdown renders a batch of events as a markdown document with one
// section per alert type.
func Markdown(events []domain.AlertEvent, dashboardURL string) string {
	var price, cross, custom []domain.AlertEvent
	for _, ev := range events {
		switch ev.Type {
		case domain.AlertPriceMove:
			price = append(price, ev)
		case domain.AlertCrossSource:
			cross = append(cross, ev)
		case domain.AlertCustomRule:
			custom = append(custom, ev)
		}
	}

	var b strings.Builder
	b.WriteString("# Investment Alerts\n\n")

	if len(price) > 0 {
		b.WriteString("## Price Move Alerts\n\n")
		b.WriteString("| Ticker | Company | Change | Price | Link |\n")
		b.WriteString("|---|---|---:|---:|---|\n")
		for _, ev := range price {
			for _, m := range ev.Matches {
				fmt.Fprintf(&b, "| **%s** | %s | %s | %s | [View](%s) |\n",
					cell(m.Ticker), cell(m.Name), signedPct(m.PctChange), money(m.CurrentPrice), m.Link)
			}
		}
		b.WriteString("\n")
	}

	if len(cross) > 0 {
		b.WriteString("## Cross-Source Confirmations\n\n")
		b.WriteString("Held by tracked investors and mentioned in tracked publications.\n\n")
		b.WriteString("| Ticker | Company | Investors | Mentions | Link |\n")
		b.WriteString("|---|---|---:|---:|---|\n")
		for _, ev := range cross {
			for _, m := range ev.Matches {
				fmt.Fprintf(&b, "| **%s** | %s | %d (%s) | %d | [View](%s) |\n",
					cell(m.Ticker), cell(m.Name), m.HoldingCount, cell(strings.Join(m.Holders, ", ")), m.MentionCount, m.Link)
			}
		}
		b.WriteString("\n")
	}

	if len(custom) > 0 {
		b.WriteString("## Custom Rule Alerts\n\n")
		for _, ev := range custom {
			fmt.Fprintf(&b, "### %s\n\n", ev.RuleName)
			fmt.Fprintf(&b, "Condition: `%s`\n\n", ev.Condition)
			for _, m := range ev.Matches {
				fmt.Fprintf(&b, "- **%s** %s (%d investors, %d mentions) [View](%s)\n",
					m.Ticker, m.Name, m.HoldingCount, m.MentionCount, m.Link)
			}
			if ev.AdditionalMatches > 0 {
				fmt.Fprintf(&b, "- ...and %d more\n", ev.AdditionalMatches)
			}
			b.WriteString("\n")
		}
	}

	if dashboardURL != "" {
		fmt.Fprintf(&b, "[Open dashboard](%s)\n", dashboardURL)
	}
	return b.String()
}

// HTML converts rendered markdown to HTML.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

func countByType(events []domain.AlertEvent) map[domain.AlertType]int {
	counts := make(map[domain.AlertType]int)
	for _, ev := range events {
		counts[ev.Type]++
	}
	return counts
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func signedPct(m domain.Metric) string {
	if !m.Valid {
		return domain.NotAvailable
	}
	return fmt.Sprintf("%+.2f%%", m.Value)
}

func money(m domain.Metric) string {
	if !m.Valid {
		return domain.NotAvailable
	}
	return fmt.Sprintf("$%.2f", m.Value)
}
