package dataroma

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/ticker"
)

var updatedRe = regexp.MustCompile(`^(.+?)\s+Updated\s+(\d{1,2}\s+\w{3}\s+\d{4})`)

// ParseDiscovery extracts managers from the home page links of the form
// "Manager - Fund Updated 14 Nov 2024". Duplicate fund ids keep the first link.
func ParseDiscovery(doc *html.Node, baseURL string) []domain.UpstreamEntity {
	var entities []domain.UpstreamEntity
	seen := make(map[string]bool)

	walk(doc, func(n *html.Node) {
		if n.DataAtom != atom.A {
			return
		}
		href := attr(n, "href")
		if !strings.Contains(href, "holdings.php") {
			return
		}
		fundID := queryParam(href, "m")
		if fundID == "" || seen[fundID] {
			return
		}
		text := textOf(n)
		if !strings.Contains(text, "Updated") {
			return
		}

		entity := domain.UpstreamEntity{ID: fundID, SourceURL: HoldingsURL(baseURL, fundID)}
		if m := updatedRe.FindStringSubmatch(text); m != nil {
			entity.FullName = strings.TrimSpace(m[1])
			entity.LastModified = isoDate(m[2])
		} else if strings.Contains(text, " - ") {
			entity.FullName = strings.TrimSpace(strings.Replace(text, "Updated", "", 1))
		} else {
			return
		}
		entity.Name = managerName(entity.FullName)

		seen[fundID] = true
		entities = append(entities, entity)
	})

	return entities
}

// ParseHoldings extracts the rows of the holdings grid. Rows that cannot be
// read are counted in skipped.
func ParseHoldings(doc *html.Node, entity domain.UpstreamEntity, observedAt time.Time) (facts []domain.HoldingFact, skipped int) {
	table := find(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Table && attr(n, "id") == "grid"
	})
	if table == nil {
		return nil, 0
	}

	walk(table, func(row *html.Node) {
		if row.DataAtom != atom.Tr {
			return
		}
		cols := children(row, atom.Td)
		if len(cols) == 0 {
			return // header
		}
		if len(cols) < 5 {
			skipped++
			return
		}

		link := find(cols[1], func(n *html.Node) bool { return n.DataAtom == atom.A })
		if link == nil {
			skipped++
			return
		}

		linkText := textOf(link)
		raw := queryParam(attr(link, "href"), "sym")
		if raw == "" {
			raw = strings.TrimSpace(strings.SplitN(linkText, "- ", 2)[0])
		}
		if raw == "" {
			skipped++
			return
		}
		symbol := ticker.Normalize(raw)

		name := symbol
		if parts := strings.SplitN(linkText, "- ", 2); len(parts) == 2 {
			name = strings.TrimSpace(parts[1])
		}

		activityRaw := textOf(cols[3])
		fact := domain.HoldingFact{
			Ticker:          symbol,
			RawTicker:       raw,
			SecurityName:    name,
			Entity:          entity.Name,
			EntityID:        entity.ID,
			PortfolioWeight: parsePercent(textOf(cols[2])),
			Shares:          parseShares(textOf(cols[4])),
			ActivityRaw:     activityRaw,
			SourceURL:       entity.SourceURL,
			ObservedAt:      observedAt,
		}
		if activity, err := domain.ParseActivity(activityRaw); err == nil {
			fact.Activity = activity
		}
		facts = append(facts, fact)
	})

	return facts, skipped
}

func managerName(fullName string) string {
	if i := strings.Index(fullName, " - "); i >= 0 {
		return strings.TrimSpace(fullName[:i])
	}
	return fullName
}

// isoDate converts "14 Nov 2024" to "2024-11-14"; unparseable dates become empty.
func isoDate(s string) string {
	t, err := time.Parse("2 Jan 2006", strings.Join(strings.Fields(s), " "))
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func parsePercent(s string) domain.Metric {
	s = strings.NewReplacer("%", "", ",", "").Replace(strings.TrimSpace(s))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return domain.NA
	}
	return domain.Some(v)
}

func parseShares(s string) domain.Metric {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return domain.NA
	}
	return domain.Some(float64(n))
}

func queryParam(href, key string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get(key))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf returns the visible text of a node with whitespace collapsed.
func textOf(n *html.Node) string {
	var parts []string
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			if s := strings.TrimSpace(c.Data); s != "" {
				parts = append(parts, s)
			}
		}
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func children(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom == a {
			out = append(out, c)
		}
	}
	return out
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}
