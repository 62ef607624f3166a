package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/sells-group/hre-border/internal/gpkg"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <artifact.gpkg>",
	Short: "Summarize a produced GeoPackage",
	Long:  "Lists the layers of a GeoPackage with row counts and summarizes the signed distance column of the units layer.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		layer, _ := cmd.Flags().GetString("layer")
		if layer == "" {
			layer = cfg.Output.UnitsLayer
		}
		return inspect(cmd.Context(), cmd.OutOrStdout(), args[0], layer)
	},
}

func init() {
	inspectCmd.Flags().String("layer", "", "layer holding signed distances (default output.units_layer)")
	rootCmd.AddCommand(inspectCmd)
}

// distanceSummary describes the signed_distance column of a layer.
type distanceSummary struct {
	Rows     int
	Positive int
	Negative int
	Zero     int
	Null     int
	Min      float64
	Max      float64
}

func inspect(ctx context.Context, w io.Writer, path, layer string) error {
	r, err := gpkg.Open(path)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck

	layers, err := r.Layers(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", path)
	for _, l := range layers {
		n, err := r.Count(ctx, l.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %-24s %-16s EPSG:%-6d %d rows\n", l.Name, l.GeometryType, l.SRID, n)
	}

	s, err := summarizeDistances(ctx, r, layer)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "signed_distance in %s:\n", layer)
	fmt.Fprintf(w, "  positive %d, negative %d, zero %d, null %d\n", s.Positive, s.Negative, s.Zero, s.Null)
	if s.Rows > s.Null {
		fmt.Fprintf(w, "  min %.1f, max %.1f\n", s.Min, s.Max)
	}
	return nil
}

func summarizeDistances(ctx context.Context, r *gpkg.Reader, layer string) (distanceSummary, error) {
	s := distanceSummary{Min: math.Inf(1), Max: math.Inf(-1)}
	err := r.Features(ctx, layer, func(rec gpkg.Record) error {
		s.Rows++
		v, ok := rec.Properties["signed_distance"].(float64)
		if !ok {
			s.Null++
			return nil
		}
		switch {
		case v > 0:
			s.Positive++
		case v < 0:
			s.Negative++
		default:
			s.Zero++
		}
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		return nil
	})
	return s, err
}
