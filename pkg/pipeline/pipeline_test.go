package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/internal/config"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/internal/logging"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/country"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/finance"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/gis"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/merge"
)

func square(x, y, size float64) orb.Ring {
	return orb.Ring{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}
}

// testEnv lays out a full on-disk fixture: boundary reference, hexagon and
// eligibility directories, rate table, and parameter templates. Kenya owns
// x 0..10 and Ghana x 10..20 on a shared border.
type testEnv struct {
	cfg  *config.Config
	pipe *Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	fc := geojson.NewFeatureCollection()
	kenya := geojson.NewFeature(orb.Polygon{square(0, 0, 10)})
	kenya.Properties = geojson.Properties{"NAME": "Kenya", "ISO_A2": "KE"}
	fc.Append(kenya)
	ghana := geojson.NewFeature(orb.Polygon{orb.Ring{
		{10, 0}, {20, 0}, {20, 10}, {10, 10}, {10, 0},
	}})
	ghana.Properties = geojson.Properties{"NAME": "Ghana", "ISO_A2": "GH"}
	fc.Append(ghana)
	boundaryPath := filepath.Join(root, "countries.geojson")
	require.NoError(t, gis.WriteFeatureCollection(fc, boundaryPath))

	tmpl := filepath.Join(root, "config.yml")
	hydroTmpl := filepath.Join(root, "config_hydro.yml")
	require.NoError(t, os.WriteFile(tmpl, []byte("country: Country\n"), 0o644))
	require.NoError(t, os.WriteFile(hydroTmpl, []byte("country: Country\nhydro: true\n"), 0o644))

	ratePath := filepath.Join(root, "interest_rates.csv")
	rates := "country,technology,rate\nKenya,turbine,0.12\nKenya,pv,0.10\nGhana,turbine,0.15\nGhana,pv,0.14\n"
	require.NoError(t, os.WriteFile(ratePath, []byte(rates), 0o644))

	cfg := &config.Config{
		Technologies: []string{"turbine", "pv"},
		Paths: config.PathsConfig{
			BoundaryFile:        boundaryPath,
			EligibilityDir:      filepath.Join(root, "eligibility"),
			HexagonDir:          filepath.Join(root, "hexagons"),
			WorkDir:             filepath.Join(root, "work"),
			OutputDir:           filepath.Join(root, "out"),
			ConfigTemplate:      tmpl,
			HydroConfigTemplate: hydroTmpl,
		},
		Finance: config.FinanceConfig{RateTable: ratePath, DefaultRate: 0.08},
		Mask:    config.MaskConfig{CellSize: 0.5, Buffer: 0.5},
	}
	cfg.Hydropower.Source = filepath.Join(root, "hydro", "{country}.csv")
	require.NoError(t, os.MkdirAll(cfg.Paths.EligibilityDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Paths.HexagonDir, 0o755))

	resolver, err := country.LoadResolver(boundaryPath)
	require.NoError(t, err)

	return &testEnv{
		cfg:  cfg,
		pipe: NewWithResolver(cfg, logging.Nop(), resolver),
	}
}

func (e *testEnv) writeHexagons(t *testing.T, name string, rings ...orb.Ring) {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, r := range rings {
		fc.Append(geojson.NewFeature(orb.Polygon{r}))
	}
	path := filepath.Join(e.cfg.Paths.HexagonDir, gis.CleanCountryName(name)+"_hex.geojson")
	require.NoError(t, gis.WriteFeatureCollection(fc, path))
}

func (e *testEnv) writeEligibility(t *testing.T, name, tech string, geoms ...orb.Geometry) {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, g := range geoms {
		fc.Append(geojson.NewFeature(g))
	}
	path := filepath.Join(e.cfg.Paths.EligibilityDir, name+"_"+tech+"_placements.geojson")
	require.NoError(t, gis.WriteFeatureCollection(fc, path))
}

func TestPrepWritesArtifacts(t *testing.T) {
	env := newTestEnv(t)
	report := env.pipe.Prep([]string{"Kenya"}, false)

	require.Len(t, report.Countries, 1)
	assert.Equal(t, StatusOK, report.Countries[0].Status)
	assert.Equal(t, "KE", report.Countries[0].ISO)

	for _, name := range []string{
		"Kenya.geojson", "Kenya_buff.geojson", "Kenya_mask.asc",
		"Kenya_EPSG.json", "Kenya_config.yml",
	} {
		_, err := os.Stat(filepath.Join(env.cfg.Paths.WorkDir, name))
		assert.NoError(t, err, name)
	}
}

func TestPrepMisspelledCountryContained(t *testing.T) {
	env := newTestEnv(t)
	report := env.pipe.Prep([]string{"Knya", "Ghana"}, false)

	require.Len(t, report.Countries, 2)
	assert.Equal(t, StatusFailed, report.Countries[0].Status)
	assert.Contains(t, report.Countries[0].Error, "Knya")
	assert.Equal(t, StatusOK, report.Countries[1].Status)
	assert.False(t, report.AllFailed())

	_, err := os.Stat(filepath.Join(env.cfg.Paths.WorkDir, "Ghana_mask.asc"))
	assert.NoError(t, err, "the sibling country still produced artifacts")
}

func TestPrepHydroMissingTableDegrades(t *testing.T) {
	env := newTestEnv(t)
	report := env.pipe.Prep([]string{"Kenya"}, true)

	cr := report.Countries[0]
	assert.Equal(t, StatusDegraded, cr.Status)
	require.NotEmpty(t, cr.Notes)
	assert.Contains(t, cr.Notes[0], "hydropower disabled")

	// Degraded countries still get artifacts, with the non-hydro template.
	data, err := os.ReadFile(filepath.Join(env.cfg.Paths.WorkDir, "Kenya_config.yml"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hydro: true")
}

func TestPrepHydroAllRowsInvalidDegrades(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(env.cfg.HydropowerSource("Kenya")), 0o755))
	table := "id,lat,lon,capacity,head\nH1,x,y,120,45\nH2,a,b,80,10\n"
	require.NoError(t, os.WriteFile(env.cfg.HydropowerSource("Kenya"), []byte(table), 0o644))

	report := env.pipe.Prep([]string{"Kenya"}, true)
	cr := report.Countries[0]
	assert.Equal(t, StatusDegraded, cr.Status)
	require.NotEmpty(t, cr.Notes)
	assert.Contains(t, cr.Notes[0], "0 valid rows")
	assert.Contains(t, cr.Notes[0], "2 bad coordinates")
}

func TestMergeEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.writeHexagons(t, "Kenya", square(4, 4, 1), square(6, 4, 1))
	env.writeEligibility(t, "Kenya", "pv", orb.Polygon{square(4, 4, 0.5)})
	env.writeEligibility(t, "Kenya", "turbine",
		orb.Point{4.5, 4.5}, orb.Point{4.6, 4.4}, orb.Point{6.5, 4.5})

	report, err := env.pipe.Merge([]string{"Kenya"}, nil)
	require.NoError(t, err)
	require.Len(t, report.Countries, 1)
	assert.Equal(t, StatusOK, report.Countries[0].Status)
	assert.Equal(t, 2, report.Countries[0].Hexagons)

	set, err := gis.LoadHexagons(filepath.Join(env.cfg.Paths.OutputDir, "hex_final_KE.geojson"))
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	h := set.Hexagons[0]
	assert.InDelta(t, 0.25, h.Props.MustFloat64(merge.FractionAttr("pv")), 1e-9)
	assert.InDelta(t, 2, h.Props.MustFloat64(merge.CountAttr("turbine")), 1e-9)
	assert.InDelta(t, 0.12, h.Props.MustFloat64(finance.RateAttr("turbine")), 1e-9)
	assert.InDelta(t, 0.10, h.Props.MustFloat64(finance.RateAttr("pv")), 1e-9)

	assert.InDelta(t, 0.0, set.Hexagons[1].Props.MustFloat64(merge.FractionAttr("pv")), 1e-9)
	assert.InDelta(t, 1, set.Hexagons[1].Props.MustFloat64(merge.CountAttr("turbine")), 1e-9)
}

func TestMergeMissingLayerExcludesTechnology(t *testing.T) {
	env := newTestEnv(t)
	env.writeHexagons(t, "Kenya", square(4, 4, 1))
	env.writeEligibility(t, "Kenya", "pv", orb.Polygon{square(4, 4, 1)})
	// No turbine layer on disk.

	report, err := env.pipe.Merge([]string{"Kenya"}, nil)
	require.NoError(t, err)

	cr := report.Countries[0]
	assert.Equal(t, StatusDegraded, cr.Status)
	require.NotEmpty(t, cr.Notes)
	assert.Contains(t, cr.Notes[0], "turbine excluded")

	set, err := gis.LoadHexagons(filepath.Join(env.cfg.Paths.OutputDir, "hex_final_KE.geojson"))
	require.NoError(t, err)
	h := set.Hexagons[0]
	assert.InDelta(t, 1.0, h.Props.MustFloat64(merge.FractionAttr("pv")), 1e-9)
	// Rates still cover every configured technology.
	assert.InDelta(t, 0.12, h.Props.MustFloat64(finance.RateAttr("turbine")), 1e-9)
}

func TestMergeISOOverride(t *testing.T) {
	env := newTestEnv(t)
	env.writeHexagons(t, "Kenya", square(4, 4, 1))
	env.writeEligibility(t, "Kenya", "pv", orb.Polygon{square(4, 4, 1)})
	env.writeEligibility(t, "Kenya", "turbine", orb.Point{4.5, 4.5})

	report, err := env.pipe.Merge([]string{"Kenya"}, []string{"XK"})
	require.NoError(t, err)
	assert.Equal(t, "XK", report.Countries[0].ISO)

	_, err = os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "hex_final_XK.geojson"))
	assert.NoError(t, err)
}

func TestMergeISOCountMismatch(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.pipe.Merge([]string{"Kenya", "Ghana"}, []string{"KE"})
	require.Error(t, err)
}

func TestMergeResolvesBorderHexagon(t *testing.T) {
	env := newTestEnv(t)
	// A hexagon straddling the border at x=10, 80% on the Kenyan side,
	// present in both countries' hexagon files.
	shared := square(9.2, 4, 1)
	env.writeHexagons(t, "Kenya", square(4, 4, 1), shared)
	env.writeHexagons(t, "Ghana", shared, square(15, 4, 1))
	for _, name := range []string{"Kenya", "Ghana"} {
		env.writeEligibility(t, name, "pv", orb.Polygon{square(4, 4, 1)})
		env.writeEligibility(t, name, "turbine", orb.Point{4.5, 4.5})
	}

	report, err := env.pipe.Merge([]string{"Kenya", "Ghana"}, nil)
	require.NoError(t, err)

	ke, err := gis.LoadHexagons(filepath.Join(env.cfg.Paths.OutputDir, "hex_final_KE.geojson"))
	require.NoError(t, err)
	gh, err := gis.LoadHexagons(filepath.Join(env.cfg.Paths.OutputDir, "hex_final_GH.geojson"))
	require.NoError(t, err)

	assert.Equal(t, 2, ke.Len(), "border hexagon kept on the majority side")
	assert.Equal(t, 1, gh.Len())

	var ghReport *CountryReport
	for _, cr := range report.Countries {
		if cr.ISO == "GH" {
			ghReport = cr
		}
	}
	require.NotNil(t, ghReport)
	assert.Equal(t, 1, ghReport.RemovedHexagons)
	assert.Equal(t, StatusDegraded, ghReport.Status)
}

func TestMergeMissingHexagonFileFailsCountryOnly(t *testing.T) {
	env := newTestEnv(t)
	env.writeHexagons(t, "Ghana", square(15, 4, 1))
	env.writeEligibility(t, "Ghana", "pv", orb.Polygon{square(15, 4, 1)})
	env.writeEligibility(t, "Ghana", "turbine", orb.Point{15.5, 4.5})

	report, err := env.pipe.Merge([]string{"Kenya", "Ghana"}, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, report.Countries[0].Status)
	assert.Equal(t, StatusOK, report.Countries[1].Status)
	assert.False(t, report.AllFailed())
}

func TestMergeMissingRateTableIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Finance.RateTable = filepath.Join(t.TempDir(), "nope.csv")
	_, err := env.pipe.Merge([]string{"Kenya"}, nil)
	require.Error(t, err)
}
