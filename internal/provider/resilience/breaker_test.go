package resilience_test

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"

	"github.com/saferoute/saferoute/internal/provider/resilience"
)

func TestDefaultBreakerConfig(t *testing.T) {
	cfg := resilience.DefaultBreakerConfig("postgis")

	assert.Equal(t, "postgis", cfg.Name)
	assert.Equal(t, uint32(5), cfg.MinRequests)
	assert.Equal(t, 0.5, cfg.FailureRatio)
	assert.Equal(t, 30*time.Second, cfg.OpenTimeout)
	assert.Equal(t, uint32(1), cfg.HalfOpenRequests)
	assert.Equal(t, time.Minute, cfg.CountWindow)
}

func TestBreakerConfig_ShouldTrip(t *testing.T) {
	cfg := resilience.DefaultBreakerConfig("osrm")

	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"too few requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"below ratio", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"at ratio", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"all failing", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cfg.ShouldTrip(tt.counts))
		})
	}
}

func TestOpenError(t *testing.T) {
	err := &resilience.OpenError{Dependency: "postgis"}

	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, "postgis: circuit breaker is open", err.Error())
}
