// Package eligibility reads the per-technology layers produced by the
// external land-eligibility tool. A missing layer excludes that technology
// from the country's merge; it is never run-fatal.
package eligibility

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/geom"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/gis"
)

// MissingLayerError reports an absent eligibility layer for a requested
// technology. The technology is excluded from that country's merge and
// flagged in the run report.
type MissingLayerError struct {
	Country    string
	Technology string
	Path       string
}

func (e *MissingLayerError) Error() string {
	return fmt.Sprintf("no %s eligibility layer for %s (looked for %s)", e.Technology, e.Country, e.Path)
}

// Layer is one technology's eligibility result. Polygon layers drive the
// area-fraction merge; point layers (placement outputs) drive the
// placement-count merge.
type Layer struct {
	Technology string
	Polygons   []orb.Polygon
	Points     []orb.Point

	// SkippedGeometries counts features dropped for unusable geometry.
	SkippedGeometries int
}

// IsPointLayer reports whether the layer carries placements rather than
// eligible-area polygons.
func (l *Layer) IsPointLayer() bool {
	return len(l.Polygons) == 0 && len(l.Points) > 0
}

// Loader reads layers from the eligibility tool's output directory, using
// its naming convention: <Country>_<technology>_placements.{shp,geojson}.
type Loader struct {
	Dir string
}

// Load reads one technology layer for a country. The shapefile form is
// preferred; a GeoJSON sibling is accepted. Invalid geometries are skipped
// and counted.
func (ld *Loader) Load(countryName, technology string) (*Layer, error) {
	base := filepath.Join(ld.Dir, fmt.Sprintf("%s_%s_placements", countryName, technology))

	shpPath := base + ".shp"
	if records, err := gis.ReadShapefile(shpPath); err == nil {
		return buildLayer(technology, geometriesOf(records)), nil
	} else if !isNotExist(err) {
		return nil, fmt.Errorf("reading eligibility layer %s: %w", shpPath, err)
	}

	jsonPath := base + ".geojson"
	fc, err := gis.ReadFeatureCollection(jsonPath)
	if err == nil {
		geoms := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
		return buildLayer(technology, geoms), nil
	}
	if !isNotExist(err) {
		return nil, fmt.Errorf("reading eligibility layer %s: %w", jsonPath, err)
	}

	return nil, &MissingLayerError{Country: countryName, Technology: technology, Path: base + ".{shp,geojson}"}
}

// buildLayer sorts geometries into polygons and points, validating polygon
// rings as it goes.
func buildLayer(technology string, geoms []orb.Geometry) *Layer {
	layer := &Layer{Technology: technology}
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.Point:
			layer.Points = append(layer.Points, v)
		case orb.MultiPoint:
			layer.Points = append(layer.Points, v...)
		case orb.Polygon:
			layer.addPolygon(v)
		case orb.MultiPolygon:
			for _, poly := range v {
				layer.addPolygon(poly)
			}
		default:
			layer.SkippedGeometries++
		}
	}
	return layer
}

func (l *Layer) addPolygon(poly orb.Polygon) {
	if len(poly) == 0 {
		l.SkippedGeometries++
		return
	}
	if err := geom.ValidateRing(poly[0]); err != nil {
		l.SkippedGeometries++
		return
	}
	l.Polygons = append(l.Polygons, poly)
}

func geometriesOf(records []gis.ShapeRecord) []orb.Geometry {
	geoms := make([]orb.Geometry, 0, len(records))
	for _, r := range records {
		geoms = append(geoms, r.Geometry)
	}
	return geoms
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
