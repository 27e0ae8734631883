package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/saferoute/saferoute/internal/graph"
	"github.com/saferoute/saferoute/internal/spatial"
)

type graphLoader interface {
	Load(ctx context.Context, extent string) (*graph.Graph, error)
}

type routeOutput struct {
	Extent         string               `json:"extent"`
	Cost           graph.CostFunction   `json:"cost"`
	DistanceMeters float64              `json:"distanceMeters"`
	SafetyCost     float64              `json:"safetyCost"`
	Detour         float64              `json:"detourRatio"`
	Coordinates    []spatial.Coordinate `json:"coordinates"`
}

func newRouteCmd() *cobra.Command {
	var from, to, cost string
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Find the cheapest path through the stored graph",
		Example: `  graphctl route --from 38.9424,-92.3271 --to 38.9447,-92.3268
  graphctl route --from 38.9380,-92.3300 --to 38.9424,-92.3271 --cost distance`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			origin, err := parsePoint(from)
			if err != nil {
				return err
			}
			destination, err := parsePoint(to)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg, newLogger())
			if err != nil {
				return err
			}
			defer store.Close()

			return route(cmd.Context(), store, cfg.Graph.Extent, origin, destination, graph.CostFunction(cost), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "origin as lat,lon")
	cmd.Flags().StringVar(&to, "to", "", "destination as lat,lon")
	cmd.Flags().StringVar(&cost, "cost", string(graph.CostSafety), "safety or distance")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// route loads extent and writes the cheapest path as JSON. The detour ratio
// compares the path's distance with the shortest walk between the same
// points.
func route(ctx context.Context, store graphLoader, extent string, origin, destination spatial.Coordinate, cost graph.CostFunction, out io.Writer) error {
	if !cost.Valid() {
		return fmt.Errorf("unknown cost function %q", cost)
	}
	g, err := store.Load(ctx, extent)
	if err != nil {
		return err
	}
	r := graph.NewRouter(g)

	path, coords, err := r.Route(origin, destination, cost)
	if err != nil {
		return err
	}
	shortest, _, err := r.Route(origin, destination, graph.CostDistance)
	if err != nil {
		return err
	}

	detour := 1.0
	if shortest.DistanceCost > 0 {
		detour = math.Round(path.DistanceCost/shortest.DistanceCost*100) / 100
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(routeOutput{
		Extent:         g.Extent,
		Cost:           cost,
		DistanceMeters: path.DistanceCost,
		SafetyCost:     path.SafetyCost,
		Detour:         detour,
		Coordinates:    coords,
	})
}
