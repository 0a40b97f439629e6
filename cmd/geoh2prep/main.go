package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "geoh2prep",
		Short: "Country-level hexagon data preparation for energy-siting models",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/geoh2prep.yml", "pipeline configuration file")

	rootCmd.AddCommand(prepCmd(&configPath))
	rootCmd.AddCommand(mergeCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func prepCmd(configPath *string) *cobra.Command {
	var withHydro bool

	cmd := &cobra.Command{
		Use:   "prep [countries...]",
		Short: "Write per-country masks, boundaries, and aggregation-tool parameter files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runPrep(*configPath, args, withHydro)
		},
	}
	cmd.Flags().BoolVar(&withHydro, "hydro", false, "normalize hydropower plant data for each country")
	return cmd
}

func mergeCmd(configPath *string) *cobra.Command {
	var isoCodes []string

	cmd := &cobra.Command{
		Use:   "merge [countries...]",
		Short: "Merge eligibility results onto hexagons, assign rates, deduplicate, and write outputs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runMerge(*configPath, args, isoCodes)
		},
	}
	cmd.Flags().StringSliceVar(&isoCodes, "isocodes", nil, "ISO codes for the countries, respectively (default: from the boundary reference)")
	return cmd
}
