// Package peers loads externally supplied comparable-company and
// precedent-transaction sets. Sources are whatever a deal team can export:
// JSON (often hand-edited, so repaired before parsing) or an HTML table cut
// from a data-room page.
package peers

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"valuation_engine/pkg/core/valuation"
)

// LoadJSON parses a peer set from JSON, tolerating the usual hand-editing
// damage (trailing commas, single quotes, fenced blocks).
func LoadJSON(data []byte) ([]valuation.PeerComparable, error) {
	repaired, err := jsonrepair.RepairJSON(string(data))
	if err != nil {
		return nil, fmt.Errorf("peer JSON unrepairable: %w", err)
	}
	var peers []valuation.PeerComparable
	if err := json.Unmarshal([]byte(repaired), &peers); err != nil {
		return nil, fmt.Errorf("peer JSON does not match schema: %w", err)
	}
	if len(peers) == 0 {
		return nil, fmt.Errorf("peer JSON contains no entries")
	}
	return peers, nil
}

// Header aliases accepted in HTML table exports, lowercased.
var htmlColumns = map[string]string{
	"name":             "name",
	"company":          "name",
	"target":           "name",
	"revenue":          "revenue",
	"sales":            "revenue",
	"ebitda":           "ebitda",
	"ev":               "ev",
	"enterprise value": "ev",
}

// LoadHTMLTable extracts a peer set from the first table in an HTML
// document. The header row maps columns; rows missing a name or an
// enterprise value are skipped.
func LoadHTMLTable(r io.Reader) ([]valuation.PeerComparable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse peer HTML: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table found in peer HTML")
	}

	// Map column index -> canonical field from the header row.
	fields := map[int]string{}
	table.Find("tr").First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
		key := strings.ToLower(strings.TrimSpace(cell.Text()))
		if field, ok := htmlColumns[key]; ok {
			fields[i] = field
		}
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("peer table has no recognizable header row")
	}

	var peers []valuation.PeerComparable
	table.Find("tr").Each(func(rowIdx int, row *goquery.Selection) {
		if rowIdx == 0 {
			return // header
		}
		var p valuation.PeerComparable
		row.Find("td").Each(func(i int, cell *goquery.Selection) {
			field, ok := fields[i]
			if !ok {
				return
			}
			text := strings.TrimSpace(cell.Text())
			switch field {
			case "name":
				p.Name = text
			case "revenue":
				p.Revenue = parseAmount(text)
			case "ebitda":
				p.EBITDA = parseAmount(text)
			case "ev":
				p.EnterpriseValue = parseAmount(text)
			}
		})
		if p.Name != "" && p.EnterpriseValue != 0 {
			peers = append(peers, p)
		}
	})

	if len(peers) == 0 {
		return nil, fmt.Errorf("peer table contains no usable rows")
	}
	return peers, nil
}

// parseAmount strips currency symbols and thousands separators, honoring
// accounting-style parentheses for negatives. Unparseable cells become zero
// and the row-level checks decide whether the peer is usable.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	if negative {
		v = -v
	}
	return v
}
