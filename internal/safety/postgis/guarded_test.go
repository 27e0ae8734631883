package postgis

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/safety"
)

func TestGuardedStore_PassesThrough(t *testing.T) {
	registry := resilience.NewRegistry()
	q := &fakeQuerier{row: fakeRow{values: []any{int64(4)}}}
	store := NewGuardedStore(newTestStore(q), registry, zerolog.Nop())

	count, err := store.FetchPatrolStopCount(context.Background(), route, 500, 90)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	health, ok := registry.Health(DependencyName)
	require.True(t, ok)
	assert.NotNil(t, health.LastSuccessAt)
	assert.Equal(t, gobreaker.StateClosed, health.State)
}

func TestGuardedStore_OpensOnDatabaseFailures(t *testing.T) {
	registry := resilience.NewRegistry()
	q := &fakeQuerier{err: errors.New("connection refused")}
	store := NewGuardedStore(newTestStore(q), registry, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.FetchEmergencyPhones(ctx, route, 100)
		assert.ErrorContains(t, err, "connection refused")
	}

	calls := len(q.calls)
	_, err := store.AllSafetyAssets(ctx)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, q.calls, calls, "open breaker must not reach the database")

	health, _ := registry.Health(DependencyName)
	assert.True(t, health.Down())
	assert.Contains(t, health.LastError, "connection refused")
}

func TestGuardedStore_InvalidInputDoesNotTrip(t *testing.T) {
	registry := resilience.NewRegistry()
	store := NewGuardedStore(newTestStore(&fakeQuerier{}), registry, zerolog.Nop())

	for i := 0; i < 10; i++ {
		_, err := store.FetchIncidents(context.Background(), route, 0, 30)
		assert.ErrorIs(t, err, safety.ErrInvalidInput)
	}

	health, _ := registry.Health(DependencyName)
	assert.Equal(t, gobreaker.StateClosed, health.State)
	assert.Nil(t, health.LastFailureAt)
}
