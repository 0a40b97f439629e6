// Package config defines the pipeline configuration and its viper-backed
// loader. Only plain data types and validation live here; the CLI decides
// where the file comes from.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for overrides, so that
// "paths.output_dir" resolves to GEOH2_PATHS_OUTPUT_DIR.
const envPrefix = "GEOH2"

// Config is the full pipeline configuration.
type Config struct {
	Log          LogConfig        `mapstructure:"log"`
	Paths        PathsConfig      `mapstructure:"paths"`
	Technologies []string         `mapstructure:"technologies"`
	Hydropower   HydropowerConfig `mapstructure:"hydropower"`
	Finance      FinanceConfig    `mapstructure:"finance"`
	Mask         MaskConfig       `mapstructure:"mask"`
	Dedupe       DedupeConfig     `mapstructure:"dedupe"`
}

// LogConfig holds logging tunables.
type LogConfig struct {
	Level string `mapstructure:"level"` // "debug" | "info" | "warn" | "error"
}

// PathsConfig locates inputs and outputs. The eligibility and hexagon
// directories are populated by the external tools; everything else is owned
// by this pipeline.
type PathsConfig struct {
	// BoundaryFile is the country boundary reference layer (.shp or .geojson).
	BoundaryFile string `mapstructure:"boundary_file"`

	// EligibilityDir holds the eligibility tool's per-technology outputs.
	EligibilityDir string `mapstructure:"eligibility_dir"`

	// HexagonDir holds the aggregation tool's hexagon files.
	HexagonDir string `mapstructure:"hexagon_dir"`

	// WorkDir receives per-country pre-aggregation artifacts.
	WorkDir string `mapstructure:"work_dir"`

	// OutputDir receives the final per-ISO hexagon files.
	OutputDir string `mapstructure:"output_dir"`

	// ConfigTemplate and HydroConfigTemplate are the aggregation-tool
	// parameter templates.
	ConfigTemplate      string `mapstructure:"config_template"`
	HydroConfigTemplate string `mapstructure:"hydro_config_template"`
}

// HydropowerConfig controls the optional hydropower layer.
type HydropowerConfig struct {
	// Source is the plant table CSV. A "{country}" placeholder expands to
	// the cleaned country name; without one the same file serves every
	// country.
	Source string `mapstructure:"source"`

	// PlantTypes, when set, keeps only the listed plant types (e.g. HDAM,
	// HPHS).
	PlantTypes []string `mapstructure:"plant_types"`
}

// FinanceConfig locates the interest-rate table and the fallback rate used
// when a (country, technology) entry is absent.
type FinanceConfig struct {
	RateTable   string  `mapstructure:"rate_table"`
	DefaultRate float64 `mapstructure:"default_rate"`
}

// MaskConfig controls country-mask rasterization.
type MaskConfig struct {
	// CellSize is the raster resolution in CRS units.
	CellSize float64 `mapstructure:"cell_size"`

	// Buffer dilates the boundary for the buffered layer and mask extent.
	Buffer float64 `mapstructure:"buffer"`
}

// DedupeConfig controls geometry-equality matching between countries.
type DedupeConfig struct {
	CentroidTolerance float64 `mapstructure:"centroid_tolerance"`
	AreaTolerance     float64 `mapstructure:"area_tolerance"`
}

// Load reads the YAML file at path, merges GEOH2_* environment overrides,
// applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("paths.boundary_file", "data/ne_50m_admin_0_countries/ne_50m_admin_0_countries.shp")
	v.SetDefault("paths.eligibility_dir", "inputs_glaes/processed")
	v.SetDefault("paths.hexagon_dir", "ccg-spider/prep")
	v.SetDefault("paths.work_dir", "ccg-spider/prep/data")
	v.SetDefault("paths.output_dir", "inputs_geox/data")
	v.SetDefault("paths.config_template", "configs/country_config.yml")
	v.SetDefault("paths.hydro_config_template", "configs/country_config_hydro.yml")
	v.SetDefault("technologies", []string{"turbine", "pv"})
	v.SetDefault("hydropower.source", "data/hydro-power-plants.csv")
	v.SetDefault("finance.rate_table", "data/interest_rates.csv")
	v.SetDefault("finance.default_rate", 0.08)
	v.SetDefault("mask.cell_size", 0.01)
	v.SetDefault("mask.buffer", 0.1)
	v.SetDefault("dedupe.centroid_tolerance", 1e-6)
	v.SetDefault("dedupe.area_tolerance", 0.01)
}

// Validate checks invariants the loader cannot express.
func (c *Config) Validate() error {
	if len(c.Technologies) == 0 {
		return fmt.Errorf("config: at least one technology is required")
	}
	if c.Mask.CellSize <= 0 {
		return fmt.Errorf("config: mask.cell_size must be positive, got %g", c.Mask.CellSize)
	}
	if c.Finance.DefaultRate < 0 || c.Finance.DefaultRate >= 1 {
		return fmt.Errorf("config: finance.default_rate must be in [0, 1), got %g", c.Finance.DefaultRate)
	}
	if c.Paths.BoundaryFile == "" {
		return fmt.Errorf("config: paths.boundary_file is required")
	}
	return nil
}

// HydropowerSource expands the plant-table path for one country.
func (c *Config) HydropowerSource(cleanName string) string {
	return strings.ReplaceAll(c.Hydropower.Source, "{country}", cleanName)
}
