package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/hre-border/internal/atlas"
	"github.com/sells-group/hre-border/internal/fetcher"
	"github.com/sells-group/hre-border/internal/pipeline"
	"github.com/sells-group/hre-border/internal/resilience"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Download and check digital atlas tiles",
}

var tilesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download tile and attribute files",
	Long:  "Downloads the tile grid of one zoom level into tiles.dir and the attribute files into attributes.dir.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		zoom := cfg.Tiles.ZoomLevel
		if cmd.Flags().Changed("zoom") {
			zoom, _ = cmd.Flags().GetInt("zoom")
		}

		f := fetcher.NewHTTPFetcher(fetcher.OptionsFromConfig(cfg.Fetch))
		res, err := atlas.Download(ctx, f, atlas.DownloadOptions{
			TilesBaseURL:      cfg.Fetch.TilesBaseURL,
			AttributesBaseURL: cfg.Fetch.AttributesBaseURL,
			Zoom:              zoom,
			Rows:              cfg.Tiles.Rows,
			Cols:              cfg.Tiles.Cols,
			AttributeFiles:    cfg.Fetch.AttributeFiles,
			TilesDir:          cfg.Tiles.Dir,
			AttributesDir:     cfg.Attributes.Dir,
			Concurrency:       cfg.Fetch.Concurrency,
			Breaker:           resilience.BreakerFromFetch(cfg.Fetch),
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d files (%d failed, %d rejected by circuit breaker)\n",
			res.Downloaded, res.Failed, res.Rejected)
		return nil
	},
}

var tilesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Reconstruct fragments and report tile and control point statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w := cmd.OutOrStdout()
		t, err := atlas.NewTransform(cfg.Tiles)
		if err != nil {
			return err
		}
		if cps := atlas.ControlPointsFromConfig(cfg.Tiles.ControlPoints); len(cps) > 0 {
			fmt.Fprintln(w, "Control point residuals:")
			for _, c := range t.Calibrate(cps) {
				marker := " "
				if c.Transform.Convention() == t.Convention() {
					marker = "*"
				}
				fmt.Fprintf(w, "  %s %-30s %12.1f\n", marker, c.Transform.Convention(), c.Residual)
			}
		}

		res, err := pipeline.New(cfg).Reconstruct(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Tiles: %d in grid, %d parsed, %d missing, %d failed\n", res.Tiles, res.Parsed, res.Missing, res.Failed)
		fmt.Fprintf(w, "Fragments: %d (%d degenerate areas discarded)\n", len(res.Fragments), res.Degenerate)
		return nil
	},
}

func init() {
	tilesFetchCmd.Flags().Int("zoom", 0, "zoom level to download (default tiles.zoom_level)")
	tilesCmd.AddCommand(tilesFetchCmd, tilesCheckCmd)
	rootCmd.AddCommand(tilesCmd)
}
