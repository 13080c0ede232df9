package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcore/internal/types"
)

func testConfig() Config {
	return Config{
		FailureThreshold:  5,
		OpenDuration:      30 * time.Second,
		SuccessThreshold:  2,
		HalfOpenMaxProbes: 1,
		Window:            60 * time.Second,
	}
}

func TestBreaker_TripsAfterFailureThreshold(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore())
	cfg := testConfig()

	for i := 0; i < cfg.FailureThreshold; i++ {
		v, err := b.Allow(ctx, "svc", cfg)
		require.NoError(t, err)
		require.Equal(t, Admit, v)
		require.NoError(t, b.RecordOutcome(ctx, "svc", cfg, false))
	}

	v, err := b.Allow(ctx, "svc", cfg)
	require.NoError(t, err)
	assert.Equal(t, Reject, v, "circuit should be open after the threshold is reached")
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	b := New(store)
	cfg := testConfig()
	now := time.Now()
	b.clock = func() time.Time { return now }

	for i := 0; i < cfg.FailureThreshold; i++ {
		_, _ = b.Allow(ctx, "svc", cfg)
		_ = b.RecordOutcome(ctx, "svc", cfg, false)
	}
	v, _ := b.Allow(ctx, "svc", cfg)
	require.Equal(t, Reject, v)

	now = now.Add(cfg.OpenDuration + time.Millisecond)
	v, err := b.Allow(ctx, "svc", cfg)
	require.NoError(t, err)
	require.Equal(t, Admit, v, "a single probe should be admitted once openDuration elapses")

	require.NoError(t, b.RecordOutcome(ctx, "svc", cfg, true))
	require.NoError(t, b.RecordOutcome(ctx, "svc", cfg, true))

	st, err := b.Get(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, types.CircuitClosed, st.State)
	assert.Equal(t, 0, st.FailureCount)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore())
	cfg := testConfig()
	now := time.Now()
	b.clock = func() time.Time { return now }

	for i := 0; i < cfg.FailureThreshold; i++ {
		_, _ = b.Allow(ctx, "svc", cfg)
		_ = b.RecordOutcome(ctx, "svc", cfg, false)
	}
	now = now.Add(cfg.OpenDuration + time.Millisecond)
	_, _ = b.Allow(ctx, "svc", cfg)
	require.NoError(t, b.RecordOutcome(ctx, "svc", cfg, false))

	st, err := b.Get(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, types.CircuitOpen, st.State)
}

func TestBreaker_AdminIdempotent(t *testing.T) {
	ctx := context.Background()
	b := New(NewMemoryStore())

	require.NoError(t, b.ForceOpen(ctx, "svc"))
	require.NoError(t, b.ForceOpen(ctx, "svc"))
	st, err := b.Get(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, types.CircuitOpen, st.State)

	require.NoError(t, b.Reset(ctx, "svc"))
	st, err = b.Get(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, types.CircuitClosed, st.State)
	assert.Equal(t, 0, st.FailureCount)
}
