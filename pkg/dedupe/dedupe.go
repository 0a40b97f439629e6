// Package dedupe resolves hexagons attributed to more than one country.
// Hexagon generation runs independently per country, so a border-straddling
// hexagon can appear in several countries' candidate sets; only the
// attribution with the largest boundary overlap survives.
//
// Resolution needs a global view: all requested countries' candidate sets in
// one invocation. A country processed alone cannot deduplicate against
// countries not in the run — a documented scope limitation, not a bug.
package dedupe

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/geom"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/gis"
)

// Candidate pairs one country's merged hexagon set with its boundary.
type Candidate struct {
	Set      *gis.HexagonSet
	Boundary orb.MultiPolygon
}

// Tolerance controls geometry-equality matching between hexagons of
// different sets.
type Tolerance struct {
	// CentroidDistance is the maximum centroid separation, in CRS units.
	CentroidDistance float64

	// AreaRatio is the maximum relative area difference, e.g. 0.01 for 1%.
	AreaRatio float64
}

// DefaultTolerance matches hexagons whose centroids nearly coincide.
var DefaultTolerance = Tolerance{CentroidDistance: 1e-6, AreaRatio: 0.01}

// Removal records one discarded attribution.
type Removal struct {
	HexID       string
	RemovedISO  string
	KeptISO     string
	RemovedArea float64
	KeptArea    float64
}

// Outcome is the result of one global resolution pass.
type Outcome struct {
	// Duplicates is the number of hexagons found in more than one set.
	Duplicates int

	Removals []Removal
}

type entry struct {
	candidate int
	hex       *gis.Hexagon
	centroid  orb.Point
	area      float64
}

// Resolve finds hexagons present in multiple candidate sets and keeps each
// only in the set whose country boundary it overlaps most; exact ties go to
// the lexicographically first ISO code. The losing sets' hexagon lists are
// rewritten in place.
func Resolve(candidates []Candidate, tol Tolerance) *Outcome {
	if tol.CentroidDistance <= 0 {
		tol = DefaultTolerance
	}

	var index rtree.RTreeG[*entry]
	var entries []*entry
	for ci, c := range candidates {
		for _, h := range c.Set.Hexagons {
			e := &entry{candidate: ci, hex: h, centroid: h.Centroid(), area: h.Area()}
			entries = append(entries, e)
			p := [2]float64{e.centroid[0], e.centroid[1]}
			index.Insert(p, p, e)
		}
	}

	outcome := &Outcome{}
	grouped := make(map[*entry]bool, len(entries))
	remove := make(map[*gis.Hexagon]int) // hexagon → candidate index to drop it from

	for _, e := range entries {
		if grouped[e] {
			continue
		}
		group := matchGroup(&index, e, tol)
		for _, m := range group {
			grouped[m] = true
		}
		if len(group) < 2 {
			continue
		}
		outcome.Duplicates++
		resolveGroup(candidates, group, outcome, remove)
	}

	if len(remove) > 0 {
		applyRemovals(candidates, remove)
	}
	return outcome
}

// matchGroup collects entries from other sets that are geometrically the
// same hexagon as e.
func matchGroup(index *rtree.RTreeG[*entry], e *entry, tol Tolerance) []*entry {
	min := [2]float64{e.centroid[0] - tol.CentroidDistance, e.centroid[1] - tol.CentroidDistance}
	max := [2]float64{e.centroid[0] + tol.CentroidDistance, e.centroid[1] + tol.CentroidDistance}

	var group []*entry
	index.Search(min, max, func(_, _ [2]float64, other *entry) bool {
		if !sameHexagon(e, other, tol) {
			return true
		}
		group = append(group, other)
		return true
	})
	return group
}

// sameHexagon reports geometry equality within tolerance. Entries from the
// same candidate set only match themselves: identifiers are unique within a
// set by invariant.
func sameHexagon(a, b *entry, tol Tolerance) bool {
	if a.candidate == b.candidate && a.hex != b.hex {
		return false
	}
	dx := a.centroid[0] - b.centroid[0]
	dy := a.centroid[1] - b.centroid[1]
	if math.Hypot(dx, dy) > tol.CentroidDistance {
		return false
	}
	larger := math.Max(a.area, b.area)
	if larger <= 0 {
		return false
	}
	return math.Abs(a.area-b.area)/larger <= tol.AreaRatio
}

// resolveGroup keeps the attribution with the largest boundary overlap.
func resolveGroup(candidates []Candidate, group []*entry, outcome *Outcome, remove map[*gis.Hexagon]int) {
	type scored struct {
		e       *entry
		iso     string
		overlap float64
	}
	scores := make([]scored, 0, len(group))
	for _, e := range group {
		c := candidates[e.candidate]
		scores = append(scores, scored{
			e:       e,
			iso:     c.Set.ISO,
			overlap: geom.MultiPolygonIntersectionArea(c.Boundary, e.hex.Ring),
		})
	}
	// Largest overlap wins; equal overlaps resolve to the first ISO code so
	// repeated runs pick the same winner.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].overlap != scores[j].overlap {
			return scores[i].overlap > scores[j].overlap
		}
		return scores[i].iso < scores[j].iso
	})

	winner := scores[0]
	for _, s := range scores[1:] {
		remove[s.e.hex] = s.e.candidate
		outcome.Removals = append(outcome.Removals, Removal{
			HexID:       s.e.hex.ID,
			RemovedISO:  s.iso,
			KeptISO:     winner.iso,
			RemovedArea: s.overlap,
			KeptArea:    winner.overlap,
		})
	}
}

func applyRemovals(candidates []Candidate, remove map[*gis.Hexagon]int) {
	for ci, c := range candidates {
		kept := c.Set.Hexagons[:0]
		for _, h := range c.Set.Hexagons {
			if dropFrom, ok := remove[h]; ok && dropFrom == ci {
				continue
			}
			kept = append(kept, h)
		}
		c.Set.Hexagons = kept
	}
}

// CenterCountry returns true when the hexagon's centroid lies within the
// boundary; used as a secondary audit signal in the run report.
func CenterCountry(h *gis.Hexagon, boundary orb.MultiPolygon) bool {
	return planar.MultiPolygonContains(boundary, h.Centroid())
}
