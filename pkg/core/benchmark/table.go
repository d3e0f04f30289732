package benchmark

import (
	"fmt"
	"os"

	hjson "github.com/hjson/hjson-go/v4"
)

// LoadTable reads a benchmark reference table from an HJSON file. HJSON is
// used so reference files can carry comments alongside the breakpoints.
//
// Expected shape:
//
//	{
//	  industries: {
//	    saas: {
//	      current_ratio: { p25: 1.1, p50: 1.6, p75: 2.4 }
//	    }
//	  }
//	}
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read benchmark table %s: %w", path, err)
	}
	return ParseTable(data)
}

// ParseTable decodes an HJSON benchmark table.
func ParseTable(data []byte) (*Table, error) {
	var table Table
	if err := hjson.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse benchmark table: %w", err)
	}
	if table.Industries == nil {
		table.Industries = map[string]map[string]Quartiles{}
	}
	for industry, ratios := range table.Industries {
		for name, q := range ratios {
			if !(q.P25 <= q.P50 && q.P50 <= q.P75) {
				return nil, fmt.Errorf("benchmark %s/%s: breakpoints must be ascending (p25=%g p50=%g p75=%g)", industry, name, q.P25, q.P50, q.P75)
			}
		}
	}
	return &table, nil
}
