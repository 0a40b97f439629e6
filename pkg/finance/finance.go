// Package finance attaches per-technology discount rates to hexagons from
// the (country, technology) interest-rate lookup table. A missing entry
// falls back to a documented default and flags the hexagons rather than
// dropping them, preserving the completeness of the output schema.
package finance

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/gis"
)

// RateAttr is the hexagon attribute carrying a technology's interest rate.
func RateAttr(technology string) string {
	return technology + "_interest_rate"
}

// DefaultedAttr lists, per hexagon, the technologies whose rate fell back to
// the default because the lookup table had no entry.
const DefaultedAttr = "interest_rate_defaulted"

// RateNotFoundError reports a (country, technology) pair absent from the
// rate table. The default rate is assigned and the hexagons flagged.
type RateNotFoundError struct {
	Country    string
	Technology string
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("no interest rate for (%s, %s); default rate assigned", e.Country, e.Technology)
}

// Table is the immutable (country, technology) → rate lookup.
type Table struct {
	rates map[string]float64
}

// LoadTable reads a rate table CSV with columns country, technology, rate.
// Failure here is run-fatal: rates are reference data every country needs.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rate table %s: %w", path, err)
	}
	defer f.Close()
	return ReadTable(f)
}

// ReadTable parses a rate table from a reader.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading rate table header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"country", "technology", "rate"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("rate table missing column %q", required)
		}
	}

	t := &Table{rates: map[string]float64{}}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading rate table row: %w", err)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(row[col["rate"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("rate table has non-numeric rate %q for %s/%s",
				row[col["rate"]], row[col["country"]], row[col["technology"]])
		}
		t.rates[key(row[col["country"]], row[col["technology"]])] = rate
	}
	return t, nil
}

// Rate returns the rate for a (country, technology) pair.
func (t *Table) Rate(country, technology string) (float64, bool) {
	rate, ok := t.rates[key(country, technology)]
	return rate, ok
}

// Assign attaches one rate attribute per technology to every hexagon in the
// set. Missing pairs assign defaultRate and are returned as
// RateNotFoundError values, one per pair. Assignment is idempotent: values
// are set, never accumulated.
func Assign(set *gis.HexagonSet, t *Table, technologies []string, defaultRate float64) []*RateNotFoundError {
	var missing []*RateNotFoundError
	var defaulted []string

	rates := make(map[string]float64, len(technologies))
	for _, tech := range technologies {
		rate, ok := t.Rate(set.Country, tech)
		if !ok {
			rate = defaultRate
			defaulted = append(defaulted, tech)
			missing = append(missing, &RateNotFoundError{Country: set.Country, Technology: tech})
		}
		rates[tech] = rate
	}
	sort.Strings(defaulted)

	for _, h := range set.Hexagons {
		for _, tech := range technologies {
			h.Props[RateAttr(tech)] = rates[tech]
		}
		if len(defaulted) > 0 {
			h.Props[DefaultedAttr] = strings.Join(defaulted, ",")
		}
	}
	return missing
}

func key(countryName, technology string) string {
	return strings.TrimSpace(countryName) + "|" + strings.TrimSpace(technology)
}
