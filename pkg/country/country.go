// Package country resolves country display names against the boundary
// reference dataset. Resolution is an explicit service returning a typed
// record; a name with no exact match yields NotFoundError, which is fatal for
// that country's run only.
package country

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/gis"
)

// Record is one resolved country: display name, ISO two-letter code, and
// boundary geometry. Immutable reference data, loaded once per run.
type Record struct {
	Name     string
	ISO      string
	Boundary orb.MultiPolygon
}

// NotFoundError reports a country name with no exact match in the reference
// dataset. Matching is case- and spelling-sensitive.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("country %q not found in boundary reference (names are case- and spelling-sensitive)", e.Name)
}

// Resolver looks up boundary records by display name.
type Resolver struct {
	records map[string]*Record
}

// LoadResolver reads the boundary reference layer. Shapefiles use the Natural
// Earth attribute convention (NAME, ISO_A2); GeoJSON accepts the same keys in
// upper or lower case. Failure here is run-fatal: no country can proceed
// without reference data.
func LoadResolver(path string) (*Resolver, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return loadFromShapefile(path)
	case ".geojson", ".json":
		return loadFromGeoJSON(path)
	default:
		return nil, fmt.Errorf("unsupported boundary reference format %q", filepath.Ext(path))
	}
}

func loadFromShapefile(path string) (*Resolver, error) {
	records, err := gis.ReadShapefile(path)
	if err != nil {
		return nil, fmt.Errorf("loading boundary reference: %w", err)
	}
	r := &Resolver{records: make(map[string]*Record, len(records))}
	for _, rec := range records {
		name := firstAttr(rec.Attrs, "NAME", "name")
		iso := firstAttr(rec.Attrs, "ISO_A2", "iso_a2")
		mp, ok := rec.Geometry.(orb.MultiPolygon)
		if !ok || name == "" {
			continue
		}
		r.records[name] = &Record{Name: name, ISO: iso, Boundary: mp}
	}
	if len(r.records) == 0 {
		return nil, fmt.Errorf("boundary reference %s contains no usable country records", path)
	}
	return r, nil
}

func loadFromGeoJSON(path string) (*Resolver, error) {
	fc, err := gis.ReadFeatureCollection(path)
	if err != nil {
		return nil, fmt.Errorf("loading boundary reference: %w", err)
	}
	r := &Resolver{records: make(map[string]*Record, len(fc.Features))}
	for _, f := range fc.Features {
		name := firstProp(f.Properties, "NAME", "name")
		iso := firstProp(f.Properties, "ISO_A2", "iso_a2")
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.MultiPolygon:
			mp = g
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		default:
			continue
		}
		if name == "" {
			continue
		}
		r.records[name] = &Record{Name: name, ISO: iso, Boundary: mp}
	}
	if len(r.records) == 0 {
		return nil, fmt.Errorf("boundary reference %s contains no usable country records", path)
	}
	return r, nil
}

// Resolve returns the boundary record for an exact display-name match.
func (r *Resolver) Resolve(name string) (*Record, error) {
	rec, ok := r.records[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return rec, nil
}

// Names returns all known display names, sorted.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.records))
	for n := range r.records {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RepresentativePoint returns a point guaranteed to lie within the boundary.
// It prefers the centroid of the largest member polygon and falls back to a
// horizontal scan when the centroid falls outside (concave or ring-shaped
// boundaries).
func RepresentativePoint(mp orb.MultiPolygon) orb.Point {
	largest := largestPolygon(mp)
	if len(largest) == 0 {
		return orb.Point{}
	}
	c, _ := planar.CentroidArea(largest)
	if planar.PolygonContains(largest, c) {
		return c
	}
	b := largest.Bound()
	const samples = 256
	for i := 0; i < samples; i++ {
		x := b.Min[0] + (b.Max[0]-b.Min[0])*(float64(i)+0.5)/samples
		p := orb.Point{x, c[1]}
		if planar.PolygonContains(largest, p) {
			return p
		}
	}
	return c
}

// UTMZoneEPSG returns the EPSG code of the UTM zone containing the boundary's
// representative point. The external eligibility tool works in this
// projection. Formula: 32700 - round((45+lat)/90)*100 + round((183+lon)/6).
func UTMZoneEPSG(mp orb.MultiPolygon) int {
	p := RepresentativePoint(mp)
	lon, lat := p[0], p[1]
	return int(32700 - math.Round((45+lat)/90)*100 + math.Round((183+lon)/6))
}

func largestPolygon(mp orb.MultiPolygon) orb.Polygon {
	var largest orb.Polygon
	var maxArea float64
	for _, poly := range mp {
		a := math.Abs(planar.Area(poly))
		if a > maxArea {
			maxArea = a
			largest = poly
		}
	}
	return largest
}

func firstAttr(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(attrs[k]); v != "" {
			return v
		}
	}
	return ""
}

func firstProp(props map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := props[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
