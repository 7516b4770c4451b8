package feedback

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

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestRegistry(t *testing.T, ids ...string) *registry.Registry {
	t.Helper()
	reg := registry.New(0)
	for _, id := range ids {
		require.NoError(t, reg.Register(model.Source{
			ID:          id,
			Name:        id,
			Categories:  []model.Category{model.CategoryCoins},
			Tier:        1,
			Reliability: 0.5,
			Active:      true,
		}, &adapter.Stub{}))
	}
	return reg
}

func TestRecord_UpdatesRegistryStats(t *testing.T) {
	reg := newTestRegistry(t, "vision-claude")
	rec := NewRecorder(reg, nil)

	rec.Record(context.Background(), model.DispatchCycle{ID: "c1"}, []model.SourceOutcome{
		{SourceID: "vision-claude", Success: true, Latency: 400 * time.Millisecond},
	})

	src, ok := reg.Get("vision-claude")
	require.True(t, ok)
	// 0.5*(1-0.15) + 1*0.15
	assert.InDelta(t, 0.575, src.Reliability, 1e-9)
	assert.InDelta(t, 400, src.AvgLatencyMs, 1e-9)
}

func TestRecord_FailureLowersReliability(t *testing.T) {
	reg := newTestRegistry(t, "auction-heritage")
	rec := NewRecorder(reg, nil)

	rec.Record(context.Background(), model.DispatchCycle{ID: "c1"}, []model.SourceOutcome{
		{SourceID: "auction-heritage", Success: false, ErrorKind: model.ErrKindTimeout, Latency: 20 * time.Second},
	})

	src, ok := reg.Get("auction-heritage")
	require.True(t, ok)
	assert.InDelta(t, 0.425, src.Reliability, 1e-9)
}

func TestRecord_PersistsCycleAndSamples(t *testing.T) {
	reg := newTestRegistry(t, "vision-claude", "auction-heritage")
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"vision-claude", "auction-heritage"} {
		src, _ := reg.Get(id)
		require.NoError(t, st.UpsertSource(ctx, src))
	}

	rec := NewRecorder(reg, st)
	cycle := model.DispatchCycle{
		ID:                "c1",
		Fingerprint:       "fp-abc",
		Category:          model.CategoryCoins,
		Depth:             model.DepthBasic,
		SourcesAttempted:  2,
		SourcesSuccessful: 1,
		Confidence:        0.8,
		DurationMs:        900,
		CreatedAt:         time.Now().UTC(),
	}
	rec.Record(ctx, cycle, []model.SourceOutcome{
		{SourceID: "vision-claude", Success: true, Confidence: 0.9, Latency: 400 * time.Millisecond},
		{SourceID: "auction-heritage", Success: false, ErrorKind: model.ErrKindTransientNetwork, Latency: time.Second},
	})

	cycles, err := st.ListCycles(ctx, store.CycleFilter{Fingerprint: "fp-abc"})
	require.NoError(t, err)
	require.Len(t, cycles, 1)

	n, err := st.CountSamples(ctx, "vision-claude")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Updated stats were written back to the source catalog.
	sources, err := st.ListSources(ctx, true)
	require.NoError(t, err)
	for _, src := range sources {
		switch src.ID {
		case "vision-claude":
			assert.InDelta(t, 0.575, src.Reliability, 1e-9)
		case "auction-heritage":
			assert.InDelta(t, 0.425, src.Reliability, 1e-9)
		}
	}
}

func TestRecord_StoreFailureDoesNotPanic(t *testing.T) {
	reg := newTestRegistry(t, "vision-claude")
	st := newTestStore(t)
	require.NoError(t, st.Close())

	rec := NewRecorder(reg, st)
	rec.Record(context.Background(), model.DispatchCycle{ID: "c1", CreatedAt: time.Now().UTC()}, []model.SourceOutcome{
		{SourceID: "vision-claude", Success: true, Latency: time.Millisecond},
	})

	// Registry update still happened despite the closed store.
	src, ok := reg.Get("vision-claude")
	require.True(t, ok)
	assert.Greater(t, src.Reliability, 0.5)
}
