// Package merge implements the hexagon merge engine: for each country it
// attaches per-technology eligible-area fractions (and, for placement
// layers, point counts) to the hexagon attribute table produced by the
// external aggregation tool.
package merge

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/eligibility"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/geom"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/gis"
)

// FractionAttr is the hexagon attribute carrying a technology's eligible-area
// fraction.
func FractionAttr(technology string) string {
	return technology + "_fraction"
}

// countAttrNames holds the irregular count attribute names of the downstream
// siting model's schema (theo_turbines, not theo_turbine).
var countAttrNames = map[string]string{
	"turbine": "theo_turbines",
}

// CountAttr is the hexagon attribute carrying a technology's placement count.
// The theo_ prefix is the attribute convention of the downstream siting model.
func CountAttr(technology string) string {
	if name, ok := countAttrNames[technology]; ok {
		return name
	}
	return "theo_" + technology
}

// EmptySetError reports a hexagon collection with no usable hexagons. This
// happens when the country is much smaller than the aggregation tool's
// hexagon size; the remedy is to re-run the tool with smaller hexagons.
type EmptySetError struct {
	Country string
}

func (e *EmptySetError) Error() string {
	return fmt.Sprintf("no hexagons for %s; the country may be smaller than the hexagon size used by the aggregation tool — re-run it with smaller hexagons", e.Country)
}

// LayerStats summarizes one technology's contribution to a merge.
type LayerStats struct {
	Technology string
	PointLayer bool

	// Features is the polygon or point count of the source layer.
	Features int

	// HexagonsCovered counts hexagons with a non-zero fraction or count.
	HexagonsCovered int
}

// Combine attaches one attribute per layer to every hexagon in the set.
// Polygon layers yield fractions: intersection area over hexagon area,
// summed across all of the technology's polygons whose bounding boxes meet
// the hexagon. Polygons of one technology are assumed non-overlapping;
// overlaps double-count by documented policy. Point layers yield counts of
// points within the hexagon. Every hexagon receives a value for every layer,
// zero when nothing intersects; no hexagon is ever dropped.
func Combine(set *gis.HexagonSet, layers []*eligibility.Layer) ([]LayerStats, error) {
	if set.Len() == 0 {
		return nil, &EmptySetError{Country: set.Country}
	}

	stats := make([]LayerStats, 0, len(layers))
	for _, layer := range layers {
		if layer.IsPointLayer() {
			stats = append(stats, countPoints(set, layer))
		} else {
			stats = append(stats, sumFractions(set, layer))
		}
	}
	return stats, nil
}

// sumFractions computes each hexagon's eligible-area fraction for one
// technology. Candidate polygons come from an R-tree over polygon bounding
// boxes, so the pairing stays near-linear instead of hexagons × polygons.
func sumFractions(set *gis.HexagonSet, layer *eligibility.Layer) LayerStats {
	var index rtree.RTreeG[int]
	for i, poly := range layer.Polygons {
		b := poly.Bound()
		index.Insert(boundMin(b), boundMax(b), i)
	}

	attr := FractionAttr(layer.Technology)
	covered := 0
	for _, h := range set.Hexagons {
		hexArea := h.Area()
		b := h.Ring.Bound()

		var intersection float64
		index.Search(boundMin(b), boundMax(b), func(_, _ [2]float64, i int) bool {
			intersection += geom.IntersectionArea(layer.Polygons[i], h.Ring)
			return true
		})

		fraction := 0.0
		if hexArea > 0 {
			fraction = intersection / hexArea
		}
		h.Props[attr] = fraction
		if fraction > 0 {
			covered++
		}
	}
	return LayerStats{
		Technology:      layer.Technology,
		Features:        len(layer.Polygons),
		HexagonsCovered: covered,
	}
}

// countPoints counts each hexagon's contained placements for one technology.
func countPoints(set *gis.HexagonSet, layer *eligibility.Layer) LayerStats {
	var index rtree.RTreeG[orb.Point]
	for _, p := range layer.Points {
		index.Insert([2]float64{p[0], p[1]}, [2]float64{p[0], p[1]}, p)
	}

	attr := CountAttr(layer.Technology)
	covered := 0
	for _, h := range set.Hexagons {
		b := h.Ring.Bound()
		count := 0
		index.Search(boundMin(b), boundMax(b), func(_, _ [2]float64, p orb.Point) bool {
			if planar.RingContains(h.Ring, p) {
				count++
			}
			return true
		})
		h.Props[attr] = float64(count)
		if count > 0 {
			covered++
		}
	}
	return LayerStats{
		Technology:      layer.Technology,
		PointLayer:      true,
		Features:        len(layer.Points),
		HexagonsCovered: covered,
	}
}

func boundMin(b orb.Bound) [2]float64 { return [2]float64{b.Min[0], b.Min[1]} }
func boundMax(b orb.Bound) [2]float64 { return [2]float64{b.Max[0], b.Max[1]} }
