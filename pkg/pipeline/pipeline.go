// Package pipeline orchestrates the two CLI stages. Prep runs before the
// external tools; Merge runs after both have produced their outputs. Both
// stages contain per-country failures: an unresolvable name or a malformed
// input affects that country only, and every skip or fallback lands in the
// run report. Processing is deliberately sequential, country by country;
// only the deduplication step needs all countries at once, so it runs as a
// final global pass over the per-country results.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/internal/config"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/country"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/dedupe"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/eligibility"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/finance"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/gis"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/hydro"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/merge"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/preagg"
)

// Pipeline wires the stages together. The resolver and rate table are loaded
// once and shared read-only across countries.
type Pipeline struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	resolver *country.Resolver
}

// New loads the boundary reference and returns a ready pipeline. Reference
// data that cannot be read at all aborts the run.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Pipeline, error) {
	resolver, err := country.LoadResolver(cfg.Paths.BoundaryFile)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, log: log, resolver: resolver}, nil
}

// NewWithResolver injects a pre-built resolver; used in tests.
func NewWithResolver(cfg *config.Config, log *zap.SugaredLogger, r *country.Resolver) *Pipeline {
	return &Pipeline{cfg: cfg, log: log, resolver: r}
}

// Prep runs the pre-aggregation stage for each requested country: resolve
// the boundary, normalize hydropower data when requested, and write the
// mask, boundary, and parameter-file artifacts for the external tools.
func (p *Pipeline) Prep(countries []string, withHydro bool) *RunReport {
	report := &RunReport{}
	for _, name := range countries {
		p.prepCountry(report.Start(name), name, withHydro)
	}
	return report
}

func (p *Pipeline) prepCountry(cr *CountryReport, name string, withHydro bool) {
	log := p.log.With("country", name)
	log.Infow("prepping country")

	rec, err := p.resolver.Resolve(name)
	if err != nil {
		log.Errorw("country resolution failed", "error", err)
		cr.Fail(err)
		return
	}
	cr.ISO = rec.ISO
	clean := gis.CleanCountryName(name)

	hydroOK := false
	if withHydro {
		hydroOK = p.prepHydro(cr, log, clean)
	}

	pre := &preagg.Preprocessor{
		WorkDir:             p.cfg.Paths.WorkDir,
		ConfigTemplate:      p.cfg.Paths.ConfigTemplate,
		HydroConfigTemplate: p.cfg.Paths.HydroConfigTemplate,
		CellSize:            p.cfg.Mask.CellSize,
		BufferDistance:      p.cfg.Mask.Buffer,
	}
	artifacts, err := pre.Run(rec, hydroOK)
	if err != nil {
		log.Errorw("pre-aggregation preprocessing failed", "error", err)
		cr.Fail(err)
		return
	}
	log.Infow("artifacts written",
		"mask", artifacts.MaskPath,
		"config", artifacts.ConfigPath,
	)
}

// prepHydro normalizes the country's hydropower table. Schema failures
// degrade the country to no-hydropower mode and are noted, never fatal.
func (p *Pipeline) prepHydro(cr *CountryReport, log *zap.SugaredLogger, clean string) bool {
	source := p.cfg.HydropowerSource(clean)
	res, err := hydro.NormalizeFile(source, hydro.Options{PlantTypes: p.cfg.Hydropower.PlantTypes})
	if err != nil {
		// Schema failures and unreadable tables both degrade this country
		// to no-hydropower mode; neither touches sibling countries.
		log.Warnw("hydropower table rejected; continuing without hydropower", "error", err)
		cr.Note("hydropower disabled: %v", err)
		return false
	}
	if len(res.Plants) == 0 {
		log.Warnw("no valid hydropower rows; continuing without hydropower",
			"dropped_coordinates", res.DroppedCoordinates,
			"dropped_missing_head", res.DroppedMissingHead,
		)
		cr.Note("hydropower disabled: 0 valid rows (%d bad coordinates, %d missing head)",
			res.DroppedCoordinates, res.DroppedMissingHead)
		return false
	}

	if res.DroppedCoordinates > 0 || res.DroppedMissingHead > 0 || res.FilteredPlantType > 0 {
		cr.Note("hydropower rows dropped: %d bad coordinates, %d missing head, %d filtered by plant type",
			res.DroppedCoordinates, res.DroppedMissingHead, res.FilteredPlantType)
	}

	layerPath := filepath.Join(p.cfg.Paths.WorkDir, clean+"_hydropower_dams.geojson")
	if err := hydro.WriteLayer(res, layerPath); err != nil {
		log.Warnw("writing hydropower layer failed; continuing without hydropower", "error", err)
		cr.Note("hydropower disabled: %v", err)
		return false
	}
	log.Infow("hydropower layer written", "plants", len(res.Plants), "path", layerPath)
	return true
}

// Merge runs the post-aggregation stage: per-country merge and rate
// assignment (map), then the global deduplication pass (reduce), then output
// writing. isoCodes override the resolver's codes positionally when given.
func (p *Pipeline) Merge(countries []string, isoCodes []string) (*RunReport, error) {
	if len(isoCodes) > 0 && len(isoCodes) != len(countries) {
		return nil, fmt.Errorf("got %d ISO codes for %d countries", len(isoCodes), len(countries))
	}

	rates, err := finance.LoadTable(p.cfg.Finance.RateTable)
	if err != nil {
		return nil, err
	}

	report := &RunReport{}
	var candidates []dedupe.Candidate
	var reports []*CountryReport

	for i, name := range countries {
		cr := report.Start(name)
		iso := ""
		if len(isoCodes) > 0 {
			iso = isoCodes[i]
		}
		set, boundary := p.mergeCountry(cr, name, iso, rates)
		if set == nil {
			continue
		}
		candidates = append(candidates, dedupe.Candidate{Set: set, Boundary: boundary})
		reports = append(reports, cr)
	}

	p.resolveDuplicates(candidates, reports)

	for i, c := range candidates {
		cr := reports[i]
		outPath := filepath.Join(p.cfg.Paths.OutputDir, "hex_final_"+c.Set.ISO+".geojson")
		if err := gis.WriteHexagons(c.Set, outPath); err != nil {
			p.log.Errorw("writing output failed", "country", c.Set.Country, "error", err)
			cr.Fail(err)
			continue
		}
		cr.Hexagons = c.Set.Len()
		p.log.Infow("output written", "country", c.Set.Country, "iso", c.Set.ISO,
			"hexagons", c.Set.Len(), "path", outPath)
	}
	return report, nil
}

// mergeCountry runs the map phase for one country. A nil set means the
// country failed and was reported.
func (p *Pipeline) mergeCountry(cr *CountryReport, name, iso string, rates *finance.Table) (*gis.HexagonSet, orb.MultiPolygon) {
	log := p.log.With("country", name)
	log.Infow("combining eligibility and hexagon data")

	rec, err := p.resolver.Resolve(name)
	if err != nil {
		log.Errorw("country resolution failed", "error", err)
		cr.Fail(err)
		return nil, nil
	}
	if iso == "" {
		iso = rec.ISO
	}
	cr.ISO = iso
	clean := gis.CleanCountryName(name)

	hexPath := filepath.Join(p.cfg.Paths.HexagonDir, clean+"_hex.geojson")
	set, err := gis.LoadHexagons(hexPath)
	if err != nil {
		log.Errorw("loading hexagons failed", "error", err)
		cr.Fail(err)
		return nil, nil
	}
	set.Country = name
	set.ISO = iso
	if set.SkippedGeometries > 0 {
		cr.Note("%d hexagon features skipped for invalid geometry", set.SkippedGeometries)
	}

	loader := &eligibility.Loader{Dir: p.cfg.Paths.EligibilityDir}
	var layers []*eligibility.Layer
	for _, tech := range p.cfg.Technologies {
		layer, err := loader.Load(name, tech)
		if err != nil {
			var missing *eligibility.MissingLayerError
			if errors.As(err, &missing) {
				log.Warnw("eligibility layer missing; technology excluded", "technology", tech)
				cr.Note("technology %s excluded: %v", tech, err)
				continue
			}
			log.Errorw("loading eligibility layer failed", "technology", tech, "error", err)
			cr.Fail(err)
			return nil, nil
		}
		if layer.SkippedGeometries > 0 {
			cr.Note("%d %s features skipped for invalid geometry", layer.SkippedGeometries, tech)
		}
		layers = append(layers, layer)
	}

	stats, err := merge.Combine(set, layers)
	if err != nil {
		log.Errorw("merge failed", "error", err)
		cr.Fail(err)
		return nil, nil
	}
	for _, s := range stats {
		log.Infow("layer merged", "technology", s.Technology,
			"features", s.Features, "hexagons_covered", s.HexagonsCovered)
	}

	for _, miss := range finance.Assign(set, rates, p.cfg.Technologies, p.cfg.Finance.DefaultRate) {
		log.Warnw("interest rate missing; default assigned",
			"technology", miss.Technology, "default", p.cfg.Finance.DefaultRate)
		cr.Note("%v", miss)
	}

	return set, rec.Boundary
}

// resolveDuplicates is the global reduce phase.
func (p *Pipeline) resolveDuplicates(candidates []dedupe.Candidate, reports []*CountryReport) {
	if len(candidates) < 2 {
		return
	}
	outcome := dedupe.Resolve(candidates, dedupe.Tolerance{
		CentroidDistance: p.cfg.Dedupe.CentroidTolerance,
		AreaRatio:        p.cfg.Dedupe.AreaTolerance,
	})
	if outcome.Duplicates == 0 {
		return
	}
	p.log.Infow("cross-country duplicates resolved",
		"duplicates", outcome.Duplicates, "removals", len(outcome.Removals))

	byISO := make(map[string]*CountryReport, len(reports))
	for _, cr := range reports {
		byISO[cr.ISO] = cr
	}
	for _, rm := range outcome.Removals {
		if cr, ok := byISO[rm.RemovedISO]; ok {
			cr.RemovedHexagons++
			cr.Note("hexagon %s reassigned to %s (overlap %.4g vs %.4g)",
				rm.HexID, rm.KeptISO, rm.KeptArea, rm.RemovedArea)
		}
	}
}
