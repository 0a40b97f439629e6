// Package preagg derives the per-country artifacts consumed by the external
// aggregation tool: boundary and buffered-boundary layers, a rasterized
// country mask, a UTM-zone sidecar, and a generated parameter file. File
// presence is the interface contract; the tool itself is never invoked here.
package preagg

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"gopkg.in/yaml.v3"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/country"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/geom"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/gis"
)

// Preprocessor writes per-country working artifacts.
type Preprocessor struct {
	// WorkDir is the per-country working area root.
	WorkDir string

	// ConfigTemplate and HydroConfigTemplate are the aggregation-tool
	// parameter templates; the hydro variant is selected when hydropower
	// normalization succeeded for the country.
	ConfigTemplate      string
	HydroConfigTemplate string

	// CellSize is the mask raster resolution in CRS units.
	CellSize float64

	// BufferDistance dilates the boundary for the buffered layer and the
	// mask extent, in CRS units.
	BufferDistance float64
}

// Artifacts lists the files written for one country.
type Artifacts struct {
	BoundaryPath string
	BufferPath   string
	MaskPath     string
	EPSGPath     string
	ConfigPath   string
}

// Run writes all artifacts for one resolved country. withHydro selects the
// parameter template.
func (p *Preprocessor) Run(rec *country.Record, withHydro bool) (*Artifacts, error) {
	clean := gis.CleanCountryName(rec.Name)
	if err := os.MkdirAll(p.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating working area: %w", err)
	}

	a := &Artifacts{
		BoundaryPath: filepath.Join(p.WorkDir, clean+".geojson"),
		BufferPath:   filepath.Join(p.WorkDir, clean+"_buff.geojson"),
		MaskPath:     filepath.Join(p.WorkDir, clean+"_mask.asc"),
		EPSGPath:     filepath.Join(p.WorkDir, clean+"_EPSG.json"),
		ConfigPath:   filepath.Join(p.WorkDir, clean+"_config.yml"),
	}

	props := geojson.Properties{"name": rec.Name, "iso_a2": rec.ISO}
	if err := gis.WriteGeometry(rec.Boundary, props, a.BoundaryPath); err != nil {
		return nil, fmt.Errorf("writing boundary: %w", err)
	}

	buffered := bufferBoundary(rec.Boundary, p.BufferDistance)
	if err := gis.WriteGeometry(buffered, props, a.BufferPath); err != nil {
		return nil, fmt.Errorf("writing buffered boundary: %w", err)
	}

	if err := p.writeEPSG(rec, a.EPSGPath); err != nil {
		return nil, err
	}

	if err := p.writeMask(rec.Boundary, buffered, a.MaskPath); err != nil {
		return nil, fmt.Errorf("writing mask: %w", err)
	}

	if err := p.writeConfig(clean, withHydro, a.ConfigPath); err != nil {
		return nil, fmt.Errorf("writing parameter file: %w", err)
	}
	return a, nil
}

// writeEPSG persists the country's UTM-zone EPSG code for downstream tools.
func (p *Preprocessor) writeEPSG(rec *country.Record, path string) error {
	payload := struct {
		EPSG int `json:"epsg"`
	}{EPSG: country.UTMZoneEPSG(rec.Boundary)}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing EPSG sidecar: %w", err)
	}
	return nil
}

// writeMask rasterizes the boundary over the buffered extent: 1 where the
// cell center lies inside the country, 0 elsewhere within the extent.
func (p *Preprocessor) writeMask(boundary, buffered orb.MultiPolygon, path string) error {
	if p.CellSize <= 0 {
		return fmt.Errorf("mask cell size must be positive, got %g", p.CellSize)
	}
	b := buffered.Bound()
	ncols := int(math.Ceil((b.Max[0] - b.Min[0]) / p.CellSize))
	nrows := int(math.Ceil((b.Max[1] - b.Min[1]) / p.CellSize))
	if ncols < 1 || nrows < 1 {
		return fmt.Errorf("boundary extent smaller than one mask cell")
	}

	grid := gis.NewAsciiGrid(ncols, nrows, b.Min[0], b.Min[1], p.CellSize, -9999)
	for row := 0; row < nrows; row++ {
		for col := 0; col < ncols; col++ {
			x, y := grid.CellCenter(row, col)
			if planar.MultiPolygonContains(boundary, orb.Point{x, y}) {
				grid.Set(row, col, 1)
			} else {
				grid.Set(row, col, 0)
			}
		}
	}
	return grid.Write(path)
}

// writeConfig instantiates the parameter-file template for the country,
// replacing the Country placeholder in every string node.
func (p *Preprocessor) writeConfig(cleanName string, withHydro bool, path string) error {
	template := p.ConfigTemplate
	if withHydro {
		template = p.HydroConfigTemplate
	}
	data, err := os.ReadFile(template)
	if err != nil {
		return fmt.Errorf("reading template %s: %w", template, err)
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing template %s: %w", template, err)
	}

	doc = replaceCountry(doc, cleanName)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// replaceCountry recursively substitutes the "Country" placeholder in every
// string node of the template document.
func replaceCountry(node interface{}, name string) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			out[key] = replaceCountry(val, name)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = replaceCountry(item, name)
		}
		return out
	case string:
		return strings.ReplaceAll(unidecode.Unidecode(v), "Country", name)
	default:
		return node
	}
}

// bufferBoundary dilates each member polygon's outer ring; holes are kept
// unchanged (buffering only needs to grow the exterior).
func bufferBoundary(mp orb.MultiPolygon, dist float64) orb.MultiPolygon {
	if dist <= 0 {
		return mp
	}
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		buffered := orb.Polygon{geom.ExpandRing(poly[0], dist)}
		buffered = append(buffered, poly[1:]...)
		out = append(out, buffered)
	}
	return out
}
