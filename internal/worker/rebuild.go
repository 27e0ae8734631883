package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/graph"
	"github.com/saferoute/saferoute/internal/graph/badgerstore"
)

// ErrRebuildInProgress is returned when a rebuild is requested while one is
// still running.
var ErrRebuildInProgress = errors.New("graph rebuild already in progress")

// GraphStore persists graph artifacts. Implemented by badgerstore.Store.
type GraphStore interface {
	Save(ctx context.Context, g *graph.Graph) error
	Load(ctx context.Context, extent string) (*graph.Graph, error)
}

// GraphBuilder produces safety-weighted graphs. Implemented by graph.Builder.
type GraphBuilder interface {
	Build(ctx context.Context, extent string, net *graph.Network) (*graph.Graph, graph.BuildStats, error)
	Rescore(ctx context.Context, g *graph.Graph) (*graph.Graph, graph.BuildStats, error)
}

// NetworkSource loads the raw walking network for a full build.
type NetworkSource func(ctx context.Context) (*graph.Network, error)

// BuildRecorder records rebuild outcomes. Implemented by telemetry.GraphMetrics.
type BuildRecorder interface {
	RecordBuild(ctx context.Context, extent string, duration time.Duration, edgeCount int, err error)
}

// GraphRebuildJobConfig holds configuration for creating a GraphRebuildJob.
type GraphRebuildJobConfig struct {
	Config  RebuildConfig
	Builder GraphBuilder
	Store   GraphStore
	Network NetworkSource // optional; without it only rescoring is possible
	Metrics BuildRecorder // optional
	Logger  zerolog.Logger

	// OnRebuilt is called with each stored graph, e.g. to hot-swap it into a
	// running recommend.Service.
	OnRebuilt func(*graph.Graph)
}

// GraphRebuildJob rebuilds the safety graph and writes it to the store. At
// most one rebuild runs at a time; overlapping requests fail fast.
type GraphRebuildJob struct {
	config    RebuildConfig
	builder   GraphBuilder
	store     GraphStore
	network   NetworkSource
	recorder  BuildRecorder
	logger    zerolog.Logger
	onRebuilt func(*graph.Graph)

	running atomic.Bool
	stats   *RebuildStats
}

// RebuildStats tracks rebuild job statistics.
type RebuildStats struct {
	mu sync.RWMutex

	TotalRuns  int64
	Successful int64
	Failed     int64
	Skipped    int64

	LastRunAt      time.Time
	LastDuration   time.Duration
	LastMode       RebuildMode
	LastEdges      int
	LastError      string
	LastSuccessAt  time.Time
	TotalBuildTime time.Duration
}

// RebuildResult describes one completed rebuild.
type RebuildResult struct {
	Extent    string
	Mode      RebuildMode
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Stats     graph.BuildStats
}

// NewGraphRebuildJob creates a new graph rebuild job.
func NewGraphRebuildJob(cfg GraphRebuildJobConfig) *GraphRebuildJob {
	return &GraphRebuildJob{
		config:    cfg.Config.withDefaults(),
		builder:   cfg.Builder,
		store:     cfg.Store,
		network:   cfg.Network,
		recorder:  cfg.Metrics,
		logger:    cfg.Logger,
		onRebuilt: cfg.OnRebuilt,
		stats:     &RebuildStats{},
	}
}

// Run rebuilds the graph in the given mode. An empty mode uses the configured
// one. A rescore with no stored graph falls back to a full build when a
// network source is configured.
func (j *GraphRebuildJob) Run(ctx context.Context, mode RebuildMode) (*RebuildResult, error) {
	if mode == "" {
		mode = j.config.Mode
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown rebuild mode %q", mode)
	}
	if !j.running.CompareAndSwap(false, true) {
		j.stats.mu.Lock()
		j.stats.Skipped++
		j.stats.mu.Unlock()
		return nil, ErrRebuildInProgress
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	result := &RebuildResult{Extent: j.config.Extent, Mode: mode, StartTime: time.Now()}
	j.logger.Info().
		Str("extent", result.Extent).
		Str("mode", string(mode)).
		Msg("starting graph rebuild")

	g, used, stats, err := j.produce(ctx, mode)
	if err == nil {
		result.Mode = used
		if stats.Extent == "" {
			stats.Extent = result.Extent
		}
		result.Stats = stats
		if err = j.store.Save(ctx, g); err != nil {
			err = fmt.Errorf("saving graph %q: %w", result.Extent, err)
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	j.record(ctx, result, err)

	if err != nil {
		j.logger.Error().Err(err).
			Str("extent", result.Extent).
			Str("mode", string(mode)).
			Dur("duration", result.Duration).
			Msg("graph rebuild failed")
		return nil, err
	}

	j.logger.Info().
		Str("extent", result.Extent).
		Str("mode", string(result.Mode)).
		Int("nodes", result.Stats.Nodes).
		Int("edges", result.Stats.Edges).
		Int("assets", result.Stats.Assets).
		Int("incidents", result.Stats.Incidents).
		Dur("duration", result.Duration).
		Msg("graph rebuild completed")

	if j.onRebuilt != nil {
		j.onRebuilt(g)
	}
	return result, nil
}

// produce returns the new graph and the mode that actually produced it.
func (j *GraphRebuildJob) produce(ctx context.Context, mode RebuildMode) (*graph.Graph, RebuildMode, graph.BuildStats, error) {
	if mode == RebuildRescore {
		current, err := j.store.Load(ctx, j.config.Extent)
		switch {
		case err == nil:
			g, stats, err := j.builder.Rescore(ctx, current)
			return g, RebuildRescore, stats, err
		case errors.Is(err, badgerstore.ErrNotFound) && j.network != nil:
			j.logger.Warn().Str("extent", j.config.Extent).Msg("no stored graph to rescore, building from network")
		default:
			return nil, mode, graph.BuildStats{}, fmt.Errorf("loading graph %q: %w", j.config.Extent, err)
		}
	}

	if j.network == nil {
		return nil, RebuildFull, graph.BuildStats{}, errors.New("full rebuild needs a network source")
	}
	net, err := j.network(ctx)
	if err != nil {
		return nil, RebuildFull, graph.BuildStats{}, fmt.Errorf("loading walking network: %w", err)
	}
	g, stats, err := j.builder.Build(ctx, j.config.Extent, net)
	return g, RebuildFull, stats, err
}

func (j *GraphRebuildJob) record(ctx context.Context, result *RebuildResult, err error) {
	if j.recorder != nil {
		// The job context may have timed out; the outcome is still worth recording.
		j.recorder.RecordBuild(context.WithoutCancel(ctx), result.Extent, result.Duration, result.Stats.Edges, err)
	}

	j.stats.mu.Lock()
	defer j.stats.mu.Unlock()

	j.stats.TotalRuns++
	j.stats.LastRunAt = result.EndTime
	j.stats.LastDuration = result.Duration
	j.stats.LastMode = result.Mode
	j.stats.TotalBuildTime += result.Duration
	if err != nil {
		j.stats.Failed++
		j.stats.LastError = err.Error()
		return
	}
	j.stats.Successful++
	j.stats.LastError = ""
	j.stats.LastEdges = result.Stats.Edges
	j.stats.LastSuccessAt = result.EndTime
}

// RunEvery runs a rebuild on every tick of interval until ctx is done. Failed
// and skipped runs are logged and retried on the next tick.
func (j *GraphRebuildJob) RunEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx, ""); errors.Is(err, ErrRebuildInProgress) {
				j.logger.Info().Msg("scheduled graph rebuild skipped, one is already running")
			}
		}
	}
}

// Running reports whether a rebuild is in progress.
func (j *GraphRebuildJob) Running() bool {
	return j.running.Load()
}

// GetStats returns a copy of the current statistics.
func (j *GraphRebuildJob) GetStats() RebuildStats {
	j.stats.mu.RLock()
	defer j.stats.mu.RUnlock()

	return RebuildStats{
		TotalRuns:      j.stats.TotalRuns,
		Successful:     j.stats.Successful,
		Failed:         j.stats.Failed,
		Skipped:        j.stats.Skipped,
		LastRunAt:      j.stats.LastRunAt,
		LastDuration:   j.stats.LastDuration,
		LastMode:       j.stats.LastMode,
		LastEdges:      j.stats.LastEdges,
		LastError:      j.stats.LastError,
		LastSuccessAt:  j.stats.LastSuccessAt,
		TotalBuildTime: j.stats.TotalBuildTime,
	}
}

// StatsSnapshot returns the statistics as a JSON-friendly map.
func (j *GraphRebuildJob) StatsSnapshot() map[string]interface{} {
	s := j.GetStats()
	out := map[string]interface{}{
		"running":          j.Running(),
		"total_runs":       s.TotalRuns,
		"successful_runs":  s.Successful,
		"failed_runs":      s.Failed,
		"skipped_runs":     s.Skipped,
		"last_run_at":      s.LastRunAt,
		"last_duration":    s.LastDuration.String(),
		"last_mode":        s.LastMode,
		"last_edges":       s.LastEdges,
		"total_build_time": s.TotalBuildTime.String(),
	}
	if s.LastError != "" {
		out["last_error"] = s.LastError
	}
	return out
}
