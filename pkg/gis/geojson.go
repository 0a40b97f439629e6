package gis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/geom"
)

// ReadFeatureCollection reads a GeoJSON feature collection from disk.
func ReadFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fc, nil
}

// WriteFeatureCollection writes a GeoJSON feature collection, creating parent
// directories as needed.
func WriteFeatureCollection(fc *geojson.FeatureCollection, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// WriteGeometry writes a single geometry as a one-feature collection. Used
// for the per-country boundary artifacts consumed by the external tools.
func WriteGeometry(g orb.Geometry, props geojson.Properties, path string) error {
	f := geojson.NewFeature(g)
	if props != nil {
		f.Properties = props
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return WriteFeatureCollection(fc, path)
}

// LoadHexagons reads an aggregation-tool hexagon file. Features whose
// geometry is not a usable polygon are skipped and counted. Identifiers come
// from the feature ID when present, then from an "index" or "id" property,
// and fall back to the feature's position in the file.
func LoadHexagons(path string) (*HexagonSet, error) {
	fc, err := ReadFeatureCollection(path)
	if err != nil {
		return nil, err
	}

	set := &HexagonSet{}
	for i, f := range fc.Features {
		ring, err := outerRing(f.Geometry)
		if err != nil {
			set.SkippedGeometries++
			continue
		}
		if err := geom.ValidateRing(ring); err != nil {
			set.SkippedGeometries++
			continue
		}
		props := f.Properties
		if props == nil {
			props = geojson.Properties{}
		}
		set.Hexagons = append(set.Hexagons, &Hexagon{
			ID:    hexagonID(f, i),
			Ring:  ring,
			Props: props,
		})
	}
	return set, nil
}

// WriteHexagons serializes a hexagon set back to GeoJSON under the set's
// output path.
func WriteHexagons(set *HexagonSet, path string) error {
	fc := geojson.NewFeatureCollection()
	for _, h := range set.Hexagons {
		f := geojson.NewFeature(orb.Polygon{h.Ring})
		f.ID = h.ID
		f.Properties = h.Props
		fc.Append(f)
	}
	return WriteFeatureCollection(fc, path)
}

// outerRing extracts the hexagon boundary from a feature geometry.
func outerRing(g orb.Geometry) (orb.Ring, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil, &geom.GeometryError{Reason: "empty polygon"}
		}
		return v[0], nil
	case orb.MultiPolygon:
		// Single-member multipolygons appear in some exporters' output.
		if len(v) == 1 && len(v[0]) > 0 {
			return v[0][0], nil
		}
		return nil, &geom.GeometryError{Reason: "multi-part hexagon geometry"}
	default:
		return nil, &geom.GeometryError{Reason: fmt.Sprintf("unexpected geometry type %T", g)}
	}
}

// hexagonID resolves the stable identifier for a hexagon feature.
func hexagonID(f *geojson.Feature, position int) string {
	if f.ID != nil {
		if s := formatID(f.ID); s != "" {
			return s
		}
	}
	for _, key := range []string{"index", "id", "hex_id"} {
		if v, ok := f.Properties[key]; ok {
			if s := formatID(v); s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("hex_%06d", position)
}

// formatID normalizes JSON identifier values; numbers arrive as float64.
func formatID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
		return fmt.Sprintf("%v", id)
	case int:
		return fmt.Sprintf("%d", id)
	default:
		return ""
	}
}
