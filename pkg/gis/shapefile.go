package gis

import (
	"fmt"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ShapeRecord is one shapefile feature: geometry plus its DBF attributes.
type ShapeRecord struct {
	Geometry orb.Geometry
	Attrs    map[string]string
}

// ReadShapefile reads all records from an ESRI shapefile. Points become
// orb.Point, multipoints orb.MultiPoint, and polygons orb.MultiPolygon with
// ring winding used to group holes under their outer rings (shapefile
// convention: outer rings clockwise, holes counterclockwise).
func ReadShapefile(path string) ([]ShapeRecord, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile %s: %w", path, err)
	}
	defer r.Close()

	fields := r.Fields()

	var records []ShapeRecord
	for r.Next() {
		row, shape := r.Shape()

		g, err := shapeToGeometry(shape)
		if err != nil {
			return nil, fmt.Errorf("record %d in %s: %w", row, path, err)
		}

		attrs := make(map[string]string, len(fields))
		for col, f := range fields {
			attrs[f.String()] = r.ReadAttribute(row, col)
		}
		records = append(records, ShapeRecord{Geometry: g, Attrs: attrs})
	}
	return records, nil
}

func shapeToGeometry(shape shp.Shape) (orb.Geometry, error) {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointM:
		return orb.Point{s.X, s.Y}, nil
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, 0, len(s.Points))
		for _, p := range s.Points {
			mp = append(mp, orb.Point{p.X, p.Y})
		}
		return mp, nil
	case *shp.Polygon:
		return partsToMultiPolygon(s.Points, s.Parts), nil
	case *shp.PolygonZ:
		return partsToMultiPolygon(s.Points, s.Parts), nil
	case *shp.PolygonM:
		return partsToMultiPolygon(s.Points, s.Parts), nil
	default:
		return nil, fmt.Errorf("unsupported shape type %T", shape)
	}
}

// partsToMultiPolygon splits the flat point array on part offsets and groups
// counterclockwise rings as holes of the preceding clockwise outer ring.
func partsToMultiPolygon(points []shp.Point, parts []int32) orb.MultiPolygon {
	rings := splitRings(points, parts)

	var mp orb.MultiPolygon
	for _, ring := range rings {
		if planar.Area(ring) < 0 {
			// Clockwise in shoelace terms: an outer ring.
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		if len(mp) == 0 {
			// Hole before any outer ring; treat it as an outer ring rather
			// than dropping geometry.
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], ring)
	}
	return mp
}

func splitRings(points []shp.Point, parts []int32) []orb.Ring {
	if len(parts) == 0 {
		parts = []int32{0}
	}
	rings := make([]orb.Ring, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if end-start < 3 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}
