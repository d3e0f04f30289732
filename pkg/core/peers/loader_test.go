package peers

import (
	"strings"
	"testing"
)

func TestLoadJSONRepairsDamage(t *testing.T) {
	// Trailing comma and single quotes, as exported from a notebook.
	src := []byte(`[
		{'name': 'Alpha Ltd', 'revenue': 50000000, 'ebitda': 10000000, 'enterprise_value': 80000000},
		{'name': 'Beta plc', 'revenue': 40000000, 'ebitda': 9000000, 'enterprise_value': 72000000},
	]`)

	peers, err := LoadJSON(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(peers))
	}
	if peers[0].Name != "Alpha Ltd" || peers[0].EnterpriseValue != 80000000 {
		t.Errorf("unexpected first peer: %+v", peers[0])
	}
}

func TestLoadJSONRejectsEmpty(t *testing.T) {
	if _, err := LoadJSON([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for empty peer list")
	}
}

func TestLoadHTMLTable(t *testing.T) {
	html := `<html><body>
	<table>
		<tr><th>Company</th><th>Revenue</th><th>EBITDA</th><th>Enterprise Value</th></tr>
		<tr><td>Alpha Ltd</td><td>£50,000,000</td><td>£10,000,000</td><td>£80,000,000</td></tr>
		<tr><td>Beta plc</td><td>£40,000,000</td><td>£9,000,000</td><td>£72,000,000</td></tr>
		<tr><td></td><td></td><td></td><td></td></tr>
	</table>
	</body></html>`

	peers, err := LoadHTMLTable(strings.NewReader(html))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers (blank row skipped), got %d", len(peers))
	}
	if peers[1].Name != "Beta plc" {
		t.Errorf("unexpected peer name %q", peers[1].Name)
	}
	if peers[0].Revenue != 50000000 {
		t.Errorf("currency formatting must be stripped, got %f", peers[0].Revenue)
	}
	if peers[0].EVEBITDA() != 8.0 {
		t.Errorf("expected 8.0x EV/EBITDA, got %f", peers[0].EVEBITDA())
	}
}

func TestParseAmountFormats(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"£50,000,000", 50000000},
		{"$1,234.56", 1234.56},
		{"(1,000,000)", -1000000},
		{" (£500,000) ", -500000},
		{"-250000", -250000},
		{"n/a", 0},
		{"", 0},
	}
	for _, c := range cases {
		if got := parseAmount(c.in); got != c.want {
			t.Errorf("parseAmount(%q) = %f, want %f", c.in, got, c.want)
		}
	}
}

func TestLoadHTMLTableWithoutHeaderFails(t *testing.T) {
	html := `<table><tr><td>Alpha</td><td>1</td></tr></table>`
	if _, err := LoadHTMLTable(strings.NewReader(html)); err == nil {
		t.Fatalf("expected error for unrecognizable header")
	}
}
