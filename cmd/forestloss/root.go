package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for forestloss.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forestloss",
		Short: "Deforestation analysis of farm boundaries",
		Long: `forestloss measures forest loss inside farm boundaries.

Farm boundaries come from the cluster sources configured in .forestloss
(GeoJSON files or URLs, OpenStreetMap via Overpass, or a PostGIS table).
Yearly loss is computed on Google Earth Engine from the Hansen Global
Forest Change dataset and reported in acres per year.

Completed analyses are kept in a local history database so that later
runs can be compared with 'forestloss history --compare'.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
