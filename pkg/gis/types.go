// Package gis holds the hexagon data model and the geospatial file I/O used
// across the prep pipeline: GeoJSON feature collections, ESRI shapefiles,
// ASCII-grid rasters, and the filename cleaning convention shared with the
// external eligibility and aggregation tools.
package gis

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/geom"
)

// Hexagon is one polygonal spatial unit produced by the external aggregation
// tool. The ring is immutable once loaded; pipeline stages only add
// properties.
type Hexagon struct {
	ID    string
	Ring  orb.Ring
	Props geojson.Properties
}

// Area returns the planar area of the hexagon.
func (h *Hexagon) Area() float64 {
	a := planar.Area(h.Ring)
	if a < 0 {
		return -a
	}
	return a
}

// Centroid returns the area-weighted centroid of the hexagon.
func (h *Hexagon) Centroid() orb.Point {
	return geom.Centroid(h.Ring)
}

// HexagonSet is one country's hexagon collection together with its output
// identity. Identifiers are unique within a set; cross-set duplicates are the
// deduplicator's concern.
type HexagonSet struct {
	Country string
	ISO     string

	Hexagons []*Hexagon

	// SkippedGeometries counts input features dropped because their geometry
	// was unusable. Reported, never silent.
	SkippedGeometries int
}

// ByID returns the hexagon with the given identifier, or nil.
func (s *HexagonSet) ByID(id string) *Hexagon {
	for _, h := range s.Hexagons {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// Len returns the number of hexagons in the set.
func (s *HexagonSet) Len() int {
	return len(s.Hexagons)
}
