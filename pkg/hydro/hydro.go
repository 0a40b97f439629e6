// Package hydro validates and reshapes per-country hydropower plant tables
// into a point-feature layer consumable by the external aggregation tool.
// A malformed table degrades that country to no-hydropower mode; it never
// aborts the run.
package hydro

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/gis"
)

// Plant is one normalized hydropower plant record.
type Plant struct {
	ID                  string
	Name                string
	Lat                 float64
	Lon                 float64
	PlantType           string
	CapacityMW          float64
	AnnualGenerationGWh float64
	HeadM               float64
	CountryCode         string
}

// Point returns the plant location as a WGS84 point.
func (p Plant) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Result is the outcome of normalizing one table. Dropped rows are counted,
// never silently included.
type Result struct {
	Plants []Plant

	DroppedCoordinates int
	DroppedMissingHead int
	FilteredPlantType  int
}

// SchemaValidationError reports missing required columns or columns whose
// values do not parse. The affected country falls back to no-hydropower mode.
type SchemaValidationError struct {
	Missing []string
	Invalid []string
}

func (e *SchemaValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid columns: "+strings.Join(e.Invalid, ", "))
	}
	return "hydropower table failed schema validation: " + strings.Join(parts, "; ")
}

// Options controls normalization.
type Options struct {
	// PlantTypes, when non-empty, keeps only plants whose type is listed
	// (e.g. HDAM, HPHS for reservoir and pumped-storage plants).
	PlantTypes []string
}

// Column aliases: the JRC European database names a few columns differently
// from the standard schema.
var columnAliases = map[string]string{
	"installed_capacity_MW": "capacity",
	"type":                  "plant_type",
	"Latitude":              "lat",
	"Longitude":             "lon",
}

var requiredColumns = []string{"lat", "lon", "capacity", "head"}

// NormalizeFile opens and normalizes a plant table CSV.
func NormalizeFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening hydropower table %s: %w", path, err)
	}
	defer f.Close()
	return Normalize(f, opts)
}

// Normalize reads a plant table and returns the valid plants plus drop
// counts. Rows with unparseable coordinates or missing hydraulic head are
// dropped and counted. A missing required column, or any row with a
// non-numeric capacity, yields SchemaValidationError.
func Normalize(r io.Reader, opts Options) (*Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading hydropower table header: %w", err)
	}
	cols := indexColumns(header)

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaValidationError{Missing: missing}
	}

	keepType := make(map[string]bool, len(opts.PlantTypes))
	for _, t := range opts.PlantTypes {
		keepType[t] = true
	}

	res := &Result{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading hydropower table row: %w", err)
		}

		lat, latErr := parseFloat(cell(row, cols, "lat"))
		lon, lonErr := parseFloat(cell(row, cols, "lon"))
		if latErr != nil || lonErr != nil {
			res.DroppedCoordinates++
			continue
		}

		capStr := cell(row, cols, "capacity")
		capacity := 0.0
		if capStr != "" {
			capacity, err = parseFloat(capStr)
			if err != nil {
				// A non-numeric capacity means the column itself is suspect.
				return nil, &SchemaValidationError{Invalid: []string{"capacity"}}
			}
		}

		headStr := cell(row, cols, "head")
		if headStr == "" {
			res.DroppedMissingHead++
			continue
		}
		head, err := parseFloat(headStr)
		if err != nil {
			res.DroppedMissingHead++
			continue
		}

		plantType := cell(row, cols, "plant_type")
		if len(keepType) > 0 && !keepType[plantType] {
			res.FilteredPlantType++
			continue
		}

		gen, _ := parseFloat(cell(row, cols, "avg_annual_generation_GWh"))

		res.Plants = append(res.Plants, Plant{
			ID:                  cell(row, cols, "id"),
			Name:                cell(row, cols, "name"),
			Lat:                 lat,
			Lon:                 lon,
			PlantType:           plantType,
			CapacityMW:          capacity,
			AnnualGenerationGWh: gen,
			HeadM:               head,
			CountryCode:         cell(row, cols, "country_code"),
		})
	}
	return res, nil
}

// WriteLayer serializes the normalized plants as a GeoJSON point layer for
// the aggregation tool.
func WriteLayer(res *Result, path string) error {
	fc := geojson.NewFeatureCollection()
	for _, p := range res.Plants {
		f := geojson.NewFeature(p.Point())
		f.Properties = geojson.Properties{
			"id":                        p.ID,
			"name":                      p.Name,
			"plant_type":                p.PlantType,
			"capacity":                  p.CapacityMW,
			"avg_annual_generation_GWh": p.AnnualGenerationGWh,
			"head":                      p.HeadM,
			"country_code":              p.CountryCode,
		}
		fc.Append(f)
	}
	return gis.WriteFeatureCollection(fc, path)
}

// indexColumns maps normalized column names to their positions, applying the
// known aliases.
func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if canonical, ok := columnAliases[name]; ok {
			name = canonical
		}
		cols[name] = i
	}
	return cols
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}
