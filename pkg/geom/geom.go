// Package geom provides the planar geometry routines used by the prep
// pipeline: convex clipping for intersection areas, ring validation, and
// approximate ring dilation. Geometries are expressed with orb types so the
// rest of the pipeline can move between GeoJSON, shapefiles, and computation
// without conversion layers.
//
// All routines assume a planar CRS. Reprojection is a precondition of the
// pipeline inputs, not something this package performs.
package geom

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// GeometryError describes a feature geometry the pipeline cannot process.
// Offending features are skipped and counted, never fatal.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("invalid geometry: %s", e.Reason)
}

// ValidateRing checks that a ring is usable for intersection computation:
// at least three distinct vertices, finite coordinates, non-zero area, and
// no self-intersecting edges.
func ValidateRing(r orb.Ring) error {
	if len(r) < 3 {
		return &GeometryError{Reason: fmt.Sprintf("ring has %d vertices, need at least 3", len(r))}
	}
	for _, p := range r {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return &GeometryError{Reason: "non-finite coordinate"}
		}
	}
	if math.Abs(planar.Area(r)) < 1e-12 {
		return &GeometryError{Reason: "zero-area ring"}
	}
	if selfIntersects(r) {
		return &GeometryError{Reason: "self-intersecting ring"}
	}
	return nil
}

// selfIntersects reports whether any two non-adjacent edges of the ring cross.
// Quadratic scan; eligibility polygons and hexagons are small.
func selfIntersects(r orb.Ring) bool {
	n := len(r)
	if r[0] == r[n-1] {
		n-- // closed ring, drop the duplicate vertex
	}
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a1 := r[i]
		a2 := r[(i+1)%n]
		for j := i + 2; j < n; j++ {
			// Skip the edge sharing a vertex with edge i (wraps at the end).
			if i == 0 && j == n-1 {
				continue
			}
			b1 := r[j]
			b2 := r[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

// segmentsCross reports a proper crossing of segments a1→a2 and b1→b2.
// Touching endpoints do not count.
func segmentsCross(a1, a2, b1, b2 orb.Point) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// cross returns the z-component of (b-a) x (p-a).
func cross(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

// Centroid returns the area-weighted centroid of a geometry.
func Centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}

// ExpandRing returns the ring dilated outward by dist: each vertex is moved
// along the miter of its two incident edge normals, so every edge is offset
// by exactly dist. Joins are mitered rather than arced, which is adequate
// for buffering country boundaries ahead of mask rasterization.
func ExpandRing(r orb.Ring, dist float64) orb.Ring {
	n := len(r)
	if n > 1 && r[0] == r[n-1] {
		n--
	}
	if n < 3 {
		return r.Clone()
	}
	ring := EnsureCCW(r[:n])

	out := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		prev := ring[(i+n-1)%n]
		curr := ring[i]
		next := ring[(i+1)%n]

		// Outward normals of the two incident edges (CCW ring: outward is
		// to the right of travel direction).
		n1 := edgeNormal(prev, curr)
		n2 := edgeNormal(curr, next)
		nx, ny := n1[0]+n2[0], n1[1]+n2[1]
		l := math.Hypot(nx, ny)
		if l < 1e-12 {
			out = append(out, curr)
			continue
		}
		// Miter length dist/cos(half-angle); |n1+n2| = 2*cos(half-angle).
		m := 2 * dist / (l * l)
		out = append(out, orb.Point{curr[0] + m*nx, curr[1] + m*ny})
	}
	out = append(out, out[0])
	return out
}

// edgeNormal returns the unit normal pointing to the right of a→b.
func edgeNormal(a, b orb.Point) orb.Point {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := math.Hypot(dx, dy)
	if l < 1e-12 {
		return orb.Point{}
	}
	return orb.Point{dy / l, -dx / l}
}
