// Package worker runs SafeRoute's background jobs: rebuilding the persisted
// safety graph and warming the candidate route cache.
package worker

import (
	"sort"
	"time"

	"github.com/saferoute/saferoute/internal/spatial"
)

// WarmupTarget is an origin/destination pair whose candidate routes are
// fetched ahead of demand.
type WarmupTarget struct {
	// Name is the human-readable name of the trip.
	Name        string             `yaml:"name"`
	Origin      spatial.Coordinate `yaml:"origin"`
	Destination spatial.Coordinate `yaml:"destination"`

	// Priority determines warmup order (lower = earlier).
	Priority int `yaml:"priority"`
}

// WarmupConfig holds configuration for the cache warmup job.
type WarmupConfig struct {
	// Targets are the trips to warm. Empty disables the job.
	Targets []WarmupTarget `yaml:"targets"`

	// Concurrency is the number of concurrent provider fetches.
	// Default: 2
	Concurrency int `yaml:"concurrency"`

	// Timeout bounds each fetch.
	// Default: 15 seconds
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultWarmupConfig returns the default warmup configuration.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Targets:     DefaultWarmupTargets(),
		Concurrency: 2,
		Timeout:     15 * time.Second,
	}
}

// DefaultWarmupTargets returns the busiest evening walks on the Columbia
// campus: residence areas to the library, student center and rec center.
func DefaultWarmupTargets() []WarmupTarget {
	var (
		studentCenter = spatial.Coordinate{Lat: 38.9424, Lon: -92.3271}
		ellisLibrary  = spatial.Coordinate{Lat: 38.9447, Lon: -92.3268}
		recCenter     = spatial.Coordinate{Lat: 38.9380, Lon: -92.3300}
		memorialUnion = spatial.Coordinate{Lat: 38.9465, Lon: -92.3275}
		greekTown     = spatial.Coordinate{Lat: 38.9395, Lon: -92.3310}
		engineering   = spatial.Coordinate{Lat: 38.9470, Lon: -92.3310}
		hearnes       = spatial.Coordinate{Lat: 38.9324, Lon: -92.3295}
	)
	return []WarmupTarget{
		{Name: "Student Center to Ellis Library", Origin: studentCenter, Destination: ellisLibrary, Priority: 1},
		{Name: "Ellis Library to Student Center", Origin: ellisLibrary, Destination: studentCenter, Priority: 1},
		{Name: "Rec Center to Student Center", Origin: recCenter, Destination: studentCenter, Priority: 1},
		{Name: "Greek Town to Memorial Union", Origin: greekTown, Destination: memorialUnion, Priority: 2},
		{Name: "Engineering to Ellis Library", Origin: engineering, Destination: ellisLibrary, Priority: 2},
		{Name: "Hearnes Center to Student Center", Origin: hearnes, Destination: studentCenter, Priority: 3},
	}
}

// Ordered returns the targets sorted by priority, keeping the configured
// order within a priority.
func (c WarmupConfig) Ordered() []WarmupTarget {
	out := append([]WarmupTarget(nil), c.Targets...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// RebuildMode selects how the graph rebuild job produces a graph.
type RebuildMode string

const (
	// RebuildFull builds from the raw walking network.
	RebuildFull RebuildMode = "full"
	// RebuildRescore reloads the stored graph and recomputes safety costs from
	// current facts. Topology is unchanged.
	RebuildRescore RebuildMode = "rescore"
)

// Valid reports whether m is a known mode.
func (m RebuildMode) Valid() bool {
	return m == RebuildFull || m == RebuildRescore
}

// RebuildConfig holds configuration for the graph rebuild job.
type RebuildConfig struct {
	// Extent names the graph artifact.
	Extent string

	// Interval between scheduled rebuilds. Zero disables the schedule.
	Interval time.Duration

	// Mode used by scheduled rebuilds (default: rescore).
	Mode RebuildMode

	// Timeout bounds one rebuild including the store write.
	// Default: 10 minutes
	Timeout time.Duration
}

func (c RebuildConfig) withDefaults() RebuildConfig {
	if c.Mode == "" {
		c.Mode = RebuildRescore
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	return c
}
