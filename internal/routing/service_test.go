package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saferoute/saferoute/internal/spatial"
)

// mockProvider is a mock route candidate source for testing.
type mockProvider struct {
	name      string
	response  *DirectionsResponse
	err       error
	callCount atomic.Int32
	delay     time.Duration
	lastReq   atomic.Value
}

func (m *mockProvider) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	m.callCount.Add(1)
	m.lastReq.Store(req)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockProvider) Name() string {
	return m.name
}

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu       sync.Mutex
	requests int
	hits     int
	misses   int
}

func (m *recordingMetrics) RecordRequest(string, string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

func (m *recordingMetrics) RecordCacheHit(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *recordingMetrics) RecordCacheMiss(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

var (
	quad    = spatial.Coordinate{Lat: 41.7886, Lon: -87.5987}
	library = spatial.Coordinate{Lat: 41.7923, Lon: -87.6001}
)

func testResponse() *DirectionsResponse {
	return &DirectionsResponse{
		Routes: []Route{
			{
				ID:              "route_1",
				Geometry:        spatial.Geometry{quad, library},
				DistanceMeters:  430,
				DurationSeconds: 320,
			},
		},
		Provider:  "test-provider",
		FetchedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func newTestService(provider *mockProvider, clock Clock) *Service {
	return NewService(ServiceConfig{
		Provider: provider,
		Clock:    clock,
		CacheTTL: time.Hour,
	})
}

func TestService_GetDirections_CacheMiss(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := newTestService(provider, nil)

	resp, err := service.GetDirections(context.Background(), DirectionsRequest{
		Origin:      quad,
		Destination: library,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.callCount.Load() != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.callCount.Load())
	}
	if len(resp.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(resp.Routes))
	}
	if resp.Routes[0].DistanceMeters != 430 {
		t.Errorf("expected distance 430, got %v", resp.Routes[0].DistanceMeters)
	}

	req := provider.lastReq.Load().(DirectionsRequest)
	if req.Profile != ProfileWalk {
		t.Errorf("expected default profile %q, got %q", ProfileWalk, req.Profile)
	}
	if req.MaxAlternatives != DefaultMaxAlternatives {
		t.Errorf("expected %d alternatives, got %d", DefaultMaxAlternatives, req.MaxAlternatives)
	}
}

func TestService_GetDirections_CacheHit(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := newTestService(provider, nil)
	req := DirectionsRequest{Origin: quad, Destination: library}

	if _, err := service.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	if _, err := service.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}

	if provider.callCount.Load() != 1 {
		t.Errorf("expected 1 provider call (cache hit), got %d", provider.callCount.Load())
	}
}

func TestService_GetDirections_TTLExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := newTestService(provider, clock)
	req := DirectionsRequest{Origin: quad, Destination: library}

	if _, err := service.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(59 * time.Minute)
	if _, err := service.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount.Load() != 1 {
		t.Fatalf("expected cached result inside TTL, got %d calls", provider.callCount.Load())
	}

	clock.Advance(time.Minute)
	if _, err := service.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount.Load() != 2 {
		t.Errorf("expected refetch at TTL boundary, got %d calls", provider.callCount.Load())
	}
}

func TestService_GetDirections_ForceRefresh(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := newTestService(provider, nil)
	req := DirectionsRequest{Origin: quad, Destination: library}

	if _, err := service.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req.ForceRefresh = true
	if _, err := service.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount.Load() != 2 {
		t.Fatalf("expected force refresh to bypass cache, got %d calls", provider.callCount.Load())
	}

	req.ForceRefresh = false
	if _, err := service.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount.Load() != 2 {
		t.Errorf("expected refreshed entry to be cached, got %d calls", provider.callCount.Load())
	}
}

func TestService_GetDirections_GridCaching(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := newTestService(provider, nil)

	// Points a few meters apart share a grid cell.
	req1 := DirectionsRequest{
		Origin:      spatial.Coordinate{Lat: 41.78861, Lon: -87.59871},
		Destination: library,
	}
	req2 := DirectionsRequest{
		Origin:      spatial.Coordinate{Lat: 41.78864, Lon: -87.59874},
		Destination: library,
	}

	if _, err := service.GetDirections(context.Background(), req1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.GetDirections(context.Background(), req2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount.Load() != 1 {
		t.Errorf("expected 1 provider call (same grid cell), got %d", provider.callCount.Load())
	}

	// A point one block away does not.
	req3 := DirectionsRequest{
		Origin:      spatial.Coordinate{Lat: 41.7896, Lon: -87.5987},
		Destination: library,
	}
	if _, err := service.GetDirections(context.Background(), req3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount.Load() != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.callCount.Load())
	}
}

func TestService_GetDirections_StaleIfError(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := NewService(ServiceConfig{
		Provider:        provider,
		Clock:           clock,
		CacheTTL:        time.Hour,
		StaleIfErrorTTL: 3 * time.Hour,
	})
	req := DirectionsRequest{Origin: quad, Destination: library}

	if _, err := service.GetDirections(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(2 * time.Hour)
	provider.err = &Error{Provider: "test-provider", Code: "UNAVAILABLE", Message: "down", Err: ErrProviderUnavailable}

	resp, err := service.GetDirections(context.Background(), req)
	if err != nil {
		t.Fatalf("expected stale data, got error: %v", err)
	}
	if len(resp.Routes) != 1 {
		t.Errorf("expected stale route, got %d", len(resp.Routes))
	}

	clock.Advance(2 * time.Hour)
	_, err = service.GetDirections(context.Background(), req)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable once stale window passed, got %v", err)
	}
}

func TestService_GetDirections_InvalidCoordinates(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := newTestService(provider, nil)

	tests := []struct {
		name string
		req  DirectionsRequest
		code string
	}{
		{
			name: "invalid origin latitude",
			req:  DirectionsRequest{Origin: spatial.Coordinate{Lat: 91, Lon: 0}, Destination: library},
			code: "INVALID_ORIGIN",
		},
		{
			name: "invalid destination longitude",
			req:  DirectionsRequest{Origin: quad, Destination: spatial.Coordinate{Lat: 0, Lon: 181}},
			code: "INVALID_DESTINATION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.GetDirections(context.Background(), tt.req)
			var routingErr *Error
			if !errors.As(err, &routingErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if routingErr.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, routingErr.Code)
			}
			if !errors.Is(err, ErrInvalidCoordinates) {
				t.Errorf("expected ErrInvalidCoordinates")
			}
		})
	}

	if provider.callCount.Load() != 0 {
		t.Errorf("provider should not be called for invalid input")
	}
}

func TestService_GetDirections_EmptyResponse(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: &DirectionsResponse{}}
	service := newTestService(provider, nil)

	_, err := service.GetDirections(context.Background(), DirectionsRequest{Origin: quad, Destination: library})
	if !errors.Is(err, ErrNoRouteFound) {
		t.Fatalf("expected ErrNoRouteFound, got %v", err)
	}
	if stats := service.CacheStats(); stats.TotalEntries != 0 {
		t.Errorf("empty responses must not be cached")
	}
}

func TestService_GetDirections_ConcurrentRequests(t *testing.T) {
	provider := &mockProvider{
		name:     "test-provider",
		response: testResponse(),
		delay:    20 * time.Millisecond,
	}
	service := newTestService(provider, nil)
	req := DirectionsRequest{Origin: quad, Destination: library}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.GetDirections(context.Background(), req); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if provider.callCount.Load() != 1 {
		t.Errorf("expected 1 provider call for concurrent requests, got %d", provider.callCount.Load())
	}
}

// gatedProvider blocks until release is closed or its context ends.
type gatedProvider struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedProvider) GetDirections(ctx context.Context, _ DirectionsRequest) (*DirectionsResponse, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return testResponse(), nil
	case <-ctx.Done():
		return nil, Unavailable("gated", CodeRequestFailed, "failed to reach routing provider", ctx.Err())
	}
}

func (g *gatedProvider) Name() string { return "gated" }

func TestService_GetDirections_CancelledCallerDoesNotFailOthers(t *testing.T) {
	provider := &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	service := NewService(ServiceConfig{Provider: provider, CacheTTL: time.Hour})
	req := DirectionsRequest{Origin: quad, Destination: library}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := service.GetDirections(firstCtx, req)
		firstErr <- err
	}()
	<-provider.started

	type result struct {
		resp *DirectionsResponse
		err  error
	}
	second := make(chan result, 1)
	go func() {
		resp, err := service.GetDirections(context.Background(), req)
		second <- result{resp, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancelled caller to see context.Canceled, got %v", err)
	}

	close(provider.release)
	got := <-second
	if got.err != nil {
		t.Fatalf("live caller failed because another caller went away: %v", got.err)
	}
	if len(got.resp.Routes) != 1 {
		t.Errorf("expected 1 route, got %d", len(got.resp.Routes))
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("expected 1 shared provider call, got %d", n)
	}
	if stats := service.CacheStats(); stats.FreshEntries != 1 {
		t.Errorf("expected the shared answer to be cached, got %+v", stats)
	}
}

func TestService_Metrics(t *testing.T) {
	metrics := &recordingMetrics{}
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := NewService(ServiceConfig{Provider: provider, Metrics: metrics})
	req := DirectionsRequest{Origin: quad, Destination: library}

	_, _ = service.GetDirections(context.Background(), req)
	_, _ = service.GetDirections(context.Background(), req)

	if metrics.requests != 1 || metrics.misses != 1 || metrics.hits != 1 {
		t.Errorf("expected 1 request, 1 miss, 1 hit; got %d, %d, %d", metrics.requests, metrics.misses, metrics.hits)
	}
}

func TestService_CacheStats(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := newTestService(provider, clock)

	_, _ = service.GetDirections(context.Background(), DirectionsRequest{Origin: quad, Destination: library})
	_, _ = service.GetDirections(context.Background(), DirectionsRequest{Origin: library, Destination: quad})

	stats := service.CacheStats()
	if stats.TotalEntries != 2 || stats.FreshEntries != 2 {
		t.Errorf("expected 2 fresh entries, got %+v", stats)
	}
	if stats.Provider != "test-provider" {
		t.Errorf("expected provider test-provider, got %s", stats.Provider)
	}

	clock.Advance(90 * time.Minute)
	stats = service.CacheStats()
	if stats.FreshEntries != 0 || stats.StaleEntries != 2 {
		t.Errorf("expected 2 stale entries, got %+v", stats)
	}
}

func TestService_InvalidateCache(t *testing.T) {
	provider := &mockProvider{name: "test-provider", response: testResponse()}
	service := newTestService(provider, nil)
	req := DirectionsRequest{Origin: quad, Destination: library}

	_, _ = service.GetDirections(context.Background(), req)
	if n := service.InvalidateCache(); n != 1 {
		t.Errorf("expected 1 entry dropped, got %d", n)
	}
	_, _ = service.GetDirections(context.Background(), req)

	if provider.callCount.Load() != 2 {
		t.Errorf("expected 2 provider calls after invalidation, got %d", provider.callCount.Load())
	}
}

func TestService_CacheKeyFormat(t *testing.T) {
	service := NewService(ServiceConfig{Provider: &mockProvider{name: "p"}})

	key := service.cache.key(DirectionsRequest{
		Origin:          spatial.Coordinate{Lat: 41.78863, Lon: 4.90412},
		Destination:     spatial.Coordinate{Lat: 41.79231, Lon: 5.12149},
		Profile:         ProfileWalk,
		MaxAlternatives: 2,
	})

	expected := "walking:2:41.788600,4.904100:41.792300,5.121400"
	if key != expected {
		t.Errorf("expected cache key %q, got %q", expected, key)
	}
}

func TestService_Name(t *testing.T) {
	service := NewService(ServiceConfig{Provider: &mockProvider{name: "osrm"}})
	if service.Name() != "osrm" {
		t.Errorf("expected osrm, got %s", service.Name())
	}
}
