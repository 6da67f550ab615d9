package graph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mission-control/backend/internal/state"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "graph.db"), "test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func samplePayload(version int) *state.GraphPayload {
	return &state.GraphPayload{
		Version:   version,
		UpdatedAt: "2026-01-02T03:04:05Z",
		Nodes: []state.GraphNode{
			{ID: "a", Label: "Alpha", Kind: "concept", Confidence: 0.7, Tags: []string{"file:MEMORY.md"}, X: state.Float(10), Y: state.Float(-5)},
			{ID: "b", Label: "Beta", Kind: "topic", Confidence: 0.4, Tags: []string{}},
		},
		Edges: []state.GraphEdge{
			{ID: "e1", Source: "a", Target: "b", Relation: "about", Weight: state.Float(0.9), Evidence: "MEMORY.md:3"},
			{ID: "e2", Source: "b", Target: "a", Relation: "mentions"},
		},
	}
}

func TestSQLiteStore_EmptyReturnsNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.LoadGraph(context.Background())
	assert.ErrorIs(t, err, ErrGraphNotFound)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := samplePayload(1)
	require.NoError(t, store.SaveGraph(ctx, want))

	got, err := store.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Nil(t, got.Nodes[1].X)
	assert.Nil(t, got.Edges[1].Weight)
}

func TestSQLiteStore_History(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for v := 1; v <= 3; v++ {
		require.NoError(t, store.SaveGraph(ctx, samplePayload(v)))
	}

	current, err := store.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, current.Version)

	history, err := store.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].Version)
	assert.Equal(t, 2, history[1].Version)

	old, err := store.LoadVersion(ctx, history[1].Seq)
	require.NoError(t, err)
	assert.Equal(t, 2, old.Version)

	_, err = store.LoadVersion(ctx, 999)
	assert.ErrorIs(t, err, ErrGraphNotFound)
}

type recordingStoreObserver struct {
	ops  []string
	errs []error
}

func (r *recordingStoreObserver) ObserveStore(backend, op string, d time.Duration, err error) {
	r.ops = append(r.ops, backend+":"+op)
	r.errs = append(r.errs, err)
}

func TestWithObserver(t *testing.T) {
	obs := &recordingStoreObserver{}
	base := openTestStore(t)
	store := WithObserver(base, "sqlite", obs)
	ctx := context.Background()

	_, err := store.LoadGraph(ctx)
	assert.True(t, errors.Is(err, ErrGraphNotFound))
	require.NoError(t, store.SaveGraph(ctx, samplePayload(1)))

	assert.Equal(t, []string{"sqlite:load", "sqlite:save"}, obs.ops)
	assert.Equal(t, []error{nil, nil}, obs.errs)

	assert.Same(t, store, WithObserver(store, "sqlite", nil))
	assert.Same(t, base, Unwrap(store))
}
