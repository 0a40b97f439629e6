package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ClipToConvex clips the subject ring to a convex clip ring using the
// Sutherland-Hodgman algorithm. The clipper must be convex (hexagons are);
// the subject may be any simple ring. Returns the intersection ring, or an
// empty ring when the shapes do not overlap.
func ClipToConvex(subject, clipper orb.Ring) orb.Ring {
	subject = openRing(subject)
	clipper = openRing(EnsureCCW(clipper))
	if len(subject) < 3 || len(clipper) < 3 {
		return nil
	}

	output := make(orb.Ring, len(subject))
	copy(output, subject)

	clipN := len(clipper)
	for i := 0; i < clipN; i++ {
		if len(output) == 0 {
			return nil
		}
		edgeStart := clipper[i]
		edgeEnd := clipper[(i+1)%clipN]
		input := output
		output = make(orb.Ring, 0, len(input))

		for j := 0; j < len(input); j++ {
			current := input[j]
			next := input[(j+1)%len(input)]
			curInside := isInsideEdge(current, edgeStart, edgeEnd)
			nextInside := isInsideEdge(next, edgeStart, edgeEnd)

			if curInside && nextInside {
				output = append(output, next)
			} else if curInside && !nextInside {
				if ix, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
					output = append(output, ix)
				}
			} else if !curInside && nextInside {
				if ix, ok := lineIntersection(current, next, edgeStart, edgeEnd); ok {
					output = append(output, ix)
				}
				output = append(output, next)
			}
		}
	}
	if len(output) < 3 {
		return nil
	}
	return output
}

// IntersectionArea returns the area of polygon ∩ hex, where hex is a convex
// ring. The polygon's outer ring contributes positively and its holes
// subtract, so partially-holed overlaps are measured correctly.
func IntersectionArea(poly orb.Polygon, hex orb.Ring) float64 {
	if len(poly) == 0 {
		return 0
	}
	area := clippedArea(poly[0], hex)
	for _, hole := range poly[1:] {
		area -= clippedArea(hole, hex)
	}
	if area < 0 {
		return 0
	}
	return area
}

// MultiPolygonIntersectionArea returns the area of mp ∩ hex across all
// member polygons.
func MultiPolygonIntersectionArea(mp orb.MultiPolygon, hex orb.Ring) float64 {
	var area float64
	for _, poly := range mp {
		area += IntersectionArea(poly, hex)
	}
	return area
}

// GeometryIntersectionArea dispatches on the geometry type. Non-areal
// geometries contribute zero.
func GeometryIntersectionArea(g orb.Geometry, hex orb.Ring) float64 {
	switch v := g.(type) {
	case orb.Polygon:
		return IntersectionArea(v, hex)
	case orb.MultiPolygon:
		return MultiPolygonIntersectionArea(v, hex)
	case orb.Ring:
		return clippedArea(v, hex)
	default:
		return 0
	}
}

// clippedArea is the unsigned area of subject ∩ hex.
func clippedArea(subject, hex orb.Ring) float64 {
	clipped := ClipToConvex(subject, hex)
	if clipped == nil {
		return 0
	}
	return math.Abs(planar.Area(clipped))
}

// EnsureCCW returns the ring with vertices in counterclockwise order.
func EnsureCCW(r orb.Ring) orb.Ring {
	if planar.Area(r) < 0 {
		rev := make(orb.Ring, len(r))
		for i, p := range r {
			rev[len(r)-1-i] = p
		}
		return rev
	}
	return r
}

// openRing drops the closing vertex of a GeoJSON-style closed ring so the
// clipping loop does not process a degenerate edge.
func openRing(r orb.Ring) orb.Ring {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

// isInsideEdge returns true if the point is on the inside (left) of the
// directed edge from edgeStart to edgeEnd, for a CCW clipper.
func isInsideEdge(p, edgeStart, edgeEnd orb.Point) bool {
	return (edgeEnd[0]-edgeStart[0])*(p[1]-edgeStart[1])-
		(edgeEnd[1]-edgeStart[1])*(p[0]-edgeStart[0]) >= 0
}

// lineIntersection returns the intersection point of lines (p1→p2) and (p3→p4).
func lineIntersection(p1, p2, p3, p4 orb.Point) (orb.Point, bool) {
	d := (p1[0]-p2[0])*(p3[1]-p4[1]) - (p1[1]-p2[1])*(p3[0]-p4[0])
	if math.Abs(d) < 1e-12 {
		return orb.Point{}, false
	}
	t := ((p1[0]-p3[0])*(p3[1]-p4[1]) - (p1[1]-p3[1])*(p3[0]-p4[0])) / d
	return orb.Point{
		p1[0] + t*(p2[0]-p1[0]),
		p1[1] + t*(p2[1]-p1[1]),
	}, true
}
