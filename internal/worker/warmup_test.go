package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/spatial"
	"github.com/saferoute/saferoute/internal/worker"
)

type fakeDirections struct {
	mu       sync.Mutex
	requests []routing.DirectionsRequest
	failFor  map[spatial.Coordinate]error
}

func (f *fakeDirections) GetDirections(_ context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := f.failFor[req.Origin]; err != nil {
		return nil, err
	}
	return &routing.DirectionsResponse{
		Routes:   []routing.Route{{ID: "a"}, {ID: "b"}},
		Provider: "osrm",
	}, nil
}

func TestDefaultWarmupConfig(t *testing.T) {
	cfg := worker.DefaultWarmupConfig()

	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	require.NotEmpty(t, cfg.Targets)

	for _, target := range cfg.Targets {
		assert.NotEmpty(t, target.Name)
		assert.NotEqual(t, target.Origin, target.Destination, target.Name)
	}
}

func TestWarmupConfig_Ordered(t *testing.T) {
	cfg := worker.WarmupConfig{
		Targets: []worker.WarmupTarget{
			{Name: "late", Priority: 3},
			{Name: "first", Priority: 1},
			{Name: "middle", Priority: 2},
			{Name: "second", Priority: 1},
		},
	}

	var names []string
	for _, target := range cfg.Ordered() {
		names = append(names, target.Name)
	}
	assert.Equal(t, []string{"first", "second", "middle", "late"}, names)
	assert.Equal(t, "late", cfg.Targets[0].Name, "Ordered must not reorder the config")
}

func TestWarmupJob_Run(t *testing.T) {
	fetcher := &fakeDirections{}
	job := worker.NewWarmupJob(worker.WarmupJobConfig{
		Config:     worker.WarmupConfig{Targets: worker.DefaultWarmupTargets()},
		Directions: fetcher,
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())

	targets := len(worker.DefaultWarmupTargets())
	assert.Equal(t, targets, result.Targets)
	assert.Equal(t, targets, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 2*targets, result.Routes)
	assert.Empty(t, result.Errors)

	require.Len(t, fetcher.requests, targets)
	for _, req := range fetcher.requests {
		assert.Equal(t, routing.ProfileWalk, req.Profile)
		assert.False(t, req.ForceRefresh)
	}
}

func TestWarmupJob_PartialFailure(t *testing.T) {
	broken := spatial.Coordinate{Lat: 38.9380, Lon: -92.3300}
	fetcher := &fakeDirections{
		failFor: map[spatial.Coordinate]error{broken: routing.ErrProviderUnavailable},
	}
	job := worker.NewWarmupJob(worker.WarmupJobConfig{
		Config: worker.WarmupConfig{
			Targets: []worker.WarmupTarget{
				{Name: "ok", Origin: campus, Destination: broken},
				{Name: "broken", Origin: broken, Destination: campus},
			},
			Concurrency: 1,
		},
		Directions: fetcher,
		Logger:     zerolog.Nop(),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "broken", result.Errors[0].Target)
	assert.Contains(t, result.Errors[0].Error, routing.ErrProviderUnavailable.Error())
}

func TestWarmupJob_NoTargets(t *testing.T) {
	job := worker.NewWarmupJob(worker.WarmupJobConfig{Directions: &fakeDirections{}, Logger: zerolog.Nop()})

	result := job.Run(context.Background())

	assert.Zero(t, result.Targets)
	assert.Zero(t, result.Successful)
}

func TestWarmupJob_CancelledContext(t *testing.T) {
	fetcher := &fakeDirections{}
	job := worker.NewWarmupJob(worker.WarmupJobConfig{
		Config:     worker.WarmupConfig{Targets: worker.DefaultWarmupTargets(), Concurrency: 1},
		Directions: fetcher,
		Logger:     zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)
	assert.LessOrEqual(t, result.Successful+result.Failed, result.Targets)
}
