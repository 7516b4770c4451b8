package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectscope/identify-cli/internal/adapter"
	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/registry"
	"github.com/collectscope/identify-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func cycleAt(id string, noConsensus bool, confidence float64, age time.Duration) model.DispatchCycle {
	return model.DispatchCycle{
		ID:                id,
		Fingerprint:       "fp-" + id,
		Category:          model.CategoryCoins,
		Depth:             model.DepthBasic,
		SourcesAttempted:  5,
		SourcesSuccessful: 3,
		Confidence:        confidence,
		NoConsensus:       noConsensus,
		DurationMs:        1000,
		CreatedAt:         time.Now().UTC().Add(-age),
	}
}

func TestCollector_Collect(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertCycle(ctx, cycleAt("c1", false, 0.8, time.Hour)))
	require.NoError(t, st.InsertCycle(ctx, cycleAt("c2", false, 0.6, 2*time.Hour)))
	require.NoError(t, st.InsertCycle(ctx, cycleAt("c3", true, 0, 3*time.Hour)))
	// Outside the 24h lookback window.
	require.NoError(t, st.InsertCycle(ctx, cycleAt("c4", true, 0, 48*time.Hour)))

	reg := registry.New(0.15)
	require.NoError(t, reg.Register(model.Source{
		ID: "vision", Name: "Vision", Tier: 1, Reliability: 0.7, Active: true,
		Categories: []model.Category{model.CategoryCoins},
	}, &adapter.Stub{SourceName: "vision"}))

	snap, err := NewCollector(st, reg).Collect(ctx, 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.CyclesTotal)
	assert.Equal(t, 2, snap.CyclesResolved)
	assert.Equal(t, 1, snap.CyclesNoConsensus)
	assert.InDelta(t, 1.0/3.0, snap.NoConsensusRate, 1e-9)
	assert.InDelta(t, 0.7, snap.AvgConfidence, 1e-9)
	assert.InDelta(t, 1000, snap.AvgDurationMs, 1e-9)
	assert.InDelta(t, 3, snap.AvgSourcesHit, 1e-9)
	assert.Equal(t, 24, snap.LookbackHours)

	require.Len(t, snap.Sources, 1)
	assert.Equal(t, "vision", snap.Sources[0].SourceID)
	assert.InDelta(t, 0.7, snap.Sources[0].Reliability, 1e-9)
	assert.True(t, snap.Sources[0].Active)
}

func TestCollector_Collect_Empty(t *testing.T) {
	st := newTestStore(t)

	snap, err := NewCollector(st, registry.New(0)).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.CyclesTotal)
	assert.Zero(t, snap.NoConsensusRate)
	assert.Empty(t, snap.Sources)
}

func TestCollector_Collect_NilStore(t *testing.T) {
	reg := registry.New(0)
	require.NoError(t, reg.Register(model.Source{
		ID: "vision", Name: "Vision", Tier: 1, Reliability: 0.5, Active: true,
		Categories: []model.Category{model.CategoryCoins},
	}, &adapter.Stub{SourceName: "vision"}))

	snap, err := NewCollector(nil, reg).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.CyclesTotal)
	assert.Len(t, snap.Sources, 1)
}
