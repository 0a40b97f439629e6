package main

import (
	"fmt"
	"os"

	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/internal/config"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/internal/logging"
	"github.com/ClimateCompatibleGrowth/GeoH2-data-prep/pkg/pipeline"
)

// setup loads configuration, builds the logger, and constructs the pipeline.
func setup(configPath string) (*pipeline.Pipeline, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	flush := func() { _ = log.Sync() }

	p, err := pipeline.New(cfg, log)
	if err != nil {
		flush()
		return nil, nil, fmt.Errorf("loading reference data: %w", err)
	}
	return p, flush, nil
}

func runPrep(configPath string, countries []string, withHydro bool) error {
	p, flush, err := setup(configPath)
	if err != nil {
		return err
	}
	defer flush()

	report := p.Prep(countries, withHydro)
	printReport(report)

	if report.AllFailed() {
		return fmt.Errorf("no country completed prep")
	}
	return nil
}

func runMerge(configPath string, countries []string, isoCodes []string) error {
	p, flush, err := setup(configPath)
	if err != nil {
		return err
	}
	defer flush()

	report, err := p.Merge(countries, isoCodes)
	if err != nil {
		return err
	}
	printReport(report)

	if report.AllFailed() {
		return fmt.Errorf("no country completed merge")
	}
	return nil
}

// printReport writes the end-of-run audit to stderr: one line per country,
// then the notes recording every skip and fallback.
func printReport(report *pipeline.RunReport) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Run summary: %s\n", report.Summary())
	for _, c := range report.Countries {
		label := c.Country
		if c.ISO != "" {
			label = fmt.Sprintf("%s (%s)", c.Country, c.ISO)
		}
		switch c.Status {
		case pipeline.StatusFailed:
			fmt.Fprintf(os.Stderr, "  FAIL %s: %s\n", label, c.Error)
		default:
			line := fmt.Sprintf("  %-4s %s", c.Status, label)
			if c.Hexagons > 0 {
				line += fmt.Sprintf(": %d hexagons", c.Hexagons)
			}
			if c.RemovedHexagons > 0 {
				line += fmt.Sprintf(" (%d removed as duplicates)", c.RemovedHexagons)
			}
			fmt.Fprintln(os.Stderr, line)
		}
		for _, note := range c.Notes {
			fmt.Fprintf(os.Stderr, "       - %s\n", note)
		}
	}
}
