package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/graph"
	"github.com/saferoute/saferoute/internal/safety/postgis"
	"github.com/saferoute/saferoute/internal/worker"
)

func newBuildCmd() *cobra.Command {
	var (
		networkFile string
		mode        string
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build or rescore the safety graph from the walk network and PostGIS facts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if networkFile != "" {
				cfg.Graph.NetworkFile = networkFile
			}
			log := newLogger()
			ctx := cmd.Context()

			pool, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			store, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			var network worker.NetworkSource
			if cfg.Graph.NetworkFile != "" {
				path := cfg.Graph.NetworkFile
				network = func(context.Context) (*graph.Network, error) {
					return graph.LoadNetworkFile(path)
				}
			}

			job := worker.NewGraphRebuildJob(worker.GraphRebuildJobConfig{
				Config:  worker.RebuildConfig{Extent: cfg.Graph.Extent, Mode: cfg.Graph.RebuildMode},
				Builder: graph.NewBuilder(graph.BuilderConfig{Weights: cfg.Graph.Weights, Facts: postgis.NewStore(pool), Logger: log}),
				Store:   store,
				Network: network,
				Logger:  log,
			})
			result, err := job.Run(ctx, worker.RebuildMode(mode))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s graph %q: %d nodes, %d edges, %d assets, %d incidents, %d dropped links in %s\n",
				result.Mode, result.Extent, result.Stats.Nodes, result.Stats.Edges,
				result.Stats.Assets, result.Stats.Incidents, result.Stats.DroppedLinks,
				result.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&networkFile, "network", "n", "", "node-link walk network JSON (default: graph.network_file)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "full or rescore (default: graph.rebuild_mode)")
	return cmd
}
