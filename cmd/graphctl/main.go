// Command graphctl builds, inspects and queries stored safety graphs.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/saferoute/saferoute/internal/config"
	"github.com/saferoute/saferoute/internal/graph/badgerstore"
	"github.com/saferoute/saferoute/internal/spatial"
)

var (
	configPath string
	storePath  string
	extent     string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "graphctl",
		Short:         "Manage SafeRoute safety graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.FileEnv), "YAML tuning file")
	root.PersistentFlags().StringVar(&storePath, "store", "", "graph store directory (default: graph.store_path)")
	root.PersistentFlags().StringVarP(&extent, "extent", "e", "", "graph extent (default: graph.extent)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newBuildCmd(), newInspectCmd(), newRouteCmd(), newDeleteCmd(), newTokenCmd())
	return root
}

// loadConfig applies the command line overrides on top of the usual
// defaults, file and environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if storePath != "" {
		cfg.Graph.StorePath = storePath
	}
	if extent != "" {
		cfg.Graph.Extent = extent
	}
	return cfg, nil
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func openStore(cfg config.Config, log zerolog.Logger) (*badgerstore.Store, error) {
	store, err := badgerstore.Open(badgerstore.Config{Path: cfg.Graph.StorePath, SyncWrites: true, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("opening graph store %s: %w", cfg.Graph.StorePath, err)
	}
	return store, nil
}

// parsePoint parses "lat,lon".
func parsePoint(s string) (spatial.Coordinate, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return spatial.Coordinate{}, fmt.Errorf("point %q is not lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return spatial.Coordinate{}, fmt.Errorf("point %q: latitude: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return spatial.Coordinate{}, fmt.Errorf("point %q: longitude: %w", s, err)
	}
	c := spatial.Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return spatial.Coordinate{}, fmt.Errorf("point %q: %w", s, err)
	}
	return c, nil
}
