package geom

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const tolerance = 1e-6

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}

func square(x, y, size float64) orb.Ring {
	return orb.Ring{
		{x, y},
		{x + size, y},
		{x + size, y + size},
		{x, y + size},
		{x, y},
	}
}

// --- Clipping tests ---

func TestClipToConvexFullyInside(t *testing.T) {
	subject := square(1, 1, 2)
	clipper := square(0, 0, 10)
	clipped := ClipToConvex(subject, clipper)
	if clipped == nil {
		t.Fatal("expected non-empty intersection")
	}
	if !approxEqual(math.Abs(planar.Area(clipped)), 4.0, tolerance) {
		t.Errorf("expected area 4.0, got %f", math.Abs(planar.Area(clipped)))
	}
}

func TestClipToConvexPartialOverlap(t *testing.T) {
	subject := square(0, 0, 2)
	clipper := square(1, 1, 2)
	clipped := ClipToConvex(subject, clipper)
	if !approxEqual(math.Abs(planar.Area(clipped)), 1.0, tolerance) {
		t.Errorf("expected overlap area 1.0, got %f", math.Abs(planar.Area(clipped)))
	}
}

func TestClipToConvexDisjoint(t *testing.T) {
	subject := square(0, 0, 1)
	clipper := square(5, 5, 1)
	if clipped := ClipToConvex(subject, clipper); clipped != nil {
		t.Errorf("expected nil for disjoint shapes, got %d vertices", len(clipped))
	}
}

func TestClipToConvexClockwiseClipper(t *testing.T) {
	subject := square(0, 0, 2)
	// Clipper wound clockwise; ClipToConvex must normalize it.
	clipper := orb.Ring{{1, 1}, {1, 3}, {3, 3}, {3, 1}, {1, 1}}
	clipped := ClipToConvex(subject, clipper)
	if !approxEqual(math.Abs(planar.Area(clipped)), 1.0, tolerance) {
		t.Errorf("expected overlap area 1.0, got %f", math.Abs(planar.Area(clipped)))
	}
}

func TestIntersectionAreaWithHole(t *testing.T) {
	// 4x4 outer ring with a 2x2 hole in the middle, clipped to a hexagon-
	// sized square covering the left half.
	poly := orb.Polygon{
		square(0, 0, 4),
		square(1, 1, 2),
	}
	hex := square(0, 0, 2)
	// Left half covers 4 units of outer, minus 1 unit of hole overlap.
	got := IntersectionArea(poly, hex)
	if !approxEqual(got, 3.0, tolerance) {
		t.Errorf("expected intersection area 3.0, got %f", got)
	}
}

func TestMultiPolygonIntersectionArea(t *testing.T) {
	mp := orb.MultiPolygon{
		{square(0, 0, 1)},
		{square(2, 0, 1)},
	}
	hex := square(0, 0, 3)
	got := MultiPolygonIntersectionArea(mp, hex)
	if !approxEqual(got, 2.0, tolerance) {
		t.Errorf("expected total area 2.0, got %f", got)
	}
}

// --- Validation tests ---

func TestValidateRingTooFewVertices(t *testing.T) {
	r := orb.Ring{{0, 0}, {1, 1}}
	if err := ValidateRing(r); err == nil {
		t.Error("expected error for 2-vertex ring")
	}
}

func TestValidateRingZeroArea(t *testing.T) {
	r := orb.Ring{{0, 0}, {1, 1}, {2, 2}, {0, 0}}
	if err := ValidateRing(r); err == nil {
		t.Error("expected error for collinear ring")
	}
}

func TestValidateRingSelfIntersecting(t *testing.T) {
	// Bowtie.
	r := orb.Ring{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}
	err := ValidateRing(r)
	if err == nil {
		t.Fatal("expected error for self-intersecting ring")
	}
	var gerr *GeometryError
	if !errors.As(err, &gerr) {
		t.Errorf("expected *GeometryError, got %T", err)
	}
}

func TestValidateRingOK(t *testing.T) {
	if err := ValidateRing(square(0, 0, 1)); err != nil {
		t.Errorf("unexpected error for unit square: %v", err)
	}
}

func TestValidateRingNaN(t *testing.T) {
	r := orb.Ring{{0, 0}, {1, 0}, {math.NaN(), 1}, {0, 0}}
	if err := ValidateRing(r); err == nil {
		t.Error("expected error for NaN coordinate")
	}
}

// --- ExpandRing tests ---

func TestExpandRingGrowsArea(t *testing.T) {
	r := square(0, 0, 10)
	expanded := ExpandRing(r, 1)
	before := math.Abs(planar.Area(r))
	after := math.Abs(planar.Area(expanded))
	if after <= before {
		t.Errorf("expected dilated ring to be larger: before=%f after=%f", before, after)
	}
	// A square dilated by 1 with mitered joins becomes a 12x12 square.
	if !approxEqual(after, 144.0, 1e-9) {
		t.Errorf("expected area 144, got %f", after)
	}
}

func TestExpandRingOffsetsEdgesByDist(t *testing.T) {
	expanded := ExpandRing(square(0, 0, 10), 1)
	b := expanded.Bound()
	if !approxEqual(b.Min[0], -1, 1e-9) || !approxEqual(b.Min[1], -1, 1e-9) {
		t.Errorf("expected min corner (-1,-1), got %v", b.Min)
	}
	if !approxEqual(b.Max[0], 11, 1e-9) || !approxEqual(b.Max[1], 11, 1e-9) {
		t.Errorf("expected max corner (11,11), got %v", b.Max)
	}
}

func TestExpandRingContainsOriginal(t *testing.T) {
	r := square(0, 0, 10)
	expanded := ExpandRing(r, 2)
	for _, p := range r {
		if !planar.RingContains(expanded, p) {
			t.Errorf("original vertex %v outside expanded ring", p)
		}
	}
}
