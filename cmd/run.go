package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/hre-border/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full border pipeline",
	Long:  "Reconstructs the historical region, computes signed distances for every municipality, merges the attribute tables and writes the GeoPackage artifact.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if out, _ := cmd.Flags().GetString("output"); out != "" {
			cfg.Output.Path = out
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		res, err := pipeline.New(cfg).Run(ctx)
		if err != nil {
			return err
		}

		rep := res.Report
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Wrote %s\n", cfg.Output.Path)
		fmt.Fprintf(w, "  tiles:       %d parsed, %d missing, %d failed\n", rep.Tiles.Parsed, rep.Tiles.Missing, rep.Tiles.Failed)
		fmt.Fprintf(w, "  regions:     %d selected of %d (%d dropped)\n", rep.Selection.Selected, rep.Selection.Regions, len(rep.Clean.Dropped))
		fmt.Fprintf(w, "  units:       %d loaded, %d in scope\n", rep.Units.Loaded, rep.Units.InScope)
		fmt.Fprintf(w, "  distances:   %d inside, %d outside, %d unassigned\n", rep.Distance.Inside, rep.Distance.Outside, rep.Distance.Unassigned)
		fmt.Fprintf(w, "  religion:    %d matched\n", rep.Merge.ReligionMatched)
		fmt.Fprintf(w, "  election:    %d matched\n", rep.Merge.ElectionMatched)
		return nil
	},
}

func init() {
	runCmd.Flags().StringP("output", "o", "", "output GeoPackage (overrides output.path)")
	rootCmd.AddCommand(runCmd)
}
