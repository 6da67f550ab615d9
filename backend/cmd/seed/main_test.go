package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mission-control/backend/internal/graph"
	"mission-control/backend/internal/memgraph"
	"mission-control/backend/pkg/config"
)

func seedConfig(t *testing.T) *config.Config {
	t.Helper()
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "MEMORY.md"), []byte("## Tools\n\n- Editor: vim\n- Shell: zsh\n"), 0o644))
	return &config.Config{
		StoreBackend: config.StoreSQLite,
		GraphID:      "seed-test",
		SQLitePath:   filepath.Join(t.TempDir(), "graph.db"),
		WorkspaceDir: workspace,
		MemoryDir:    filepath.Join(workspace, "memory"),
	}
}

func TestDemoGraph_Valid(t *testing.T) {
	g := demoGraph(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, g.Validate())

	// the relation node collapses into a direct edge
	collapsed := memgraph.Collapse(g.Nodes, g.Edges, nil)
	_, kept := collapsed.NodeByID["rel-works-on"]
	assert.False(t, kept)
	assert.Len(t, collapsed.Nodes, len(g.Nodes)-1)
}

func TestSeed_DemoGraph(t *testing.T) {
	cfg := seedConfig(t)
	ctx := context.Background()

	saved, err := seed(ctx, cfg, options{})
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	_, err = seed(ctx, cfg, options{})
	assert.ErrorIs(t, err, errGraphExists)

	saved, err = seed(ctx, cfg, options{force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)

	store, err := graph.OpenSQLite(cfg.SQLitePath, cfg.GraphID)
	require.NoError(t, err)
	defer store.Close()
	loaded, err := store.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)
	assert.Len(t, loaded.Nodes, len(saved.Nodes))
}

func TestSeed_FromWorkspace(t *testing.T) {
	cfg := seedConfig(t)

	saved, err := seed(context.Background(), cfg, options{fromWorkspace: true})
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	labels := map[string]bool{}
	for _, n := range saved.Nodes {
		labels[n.Label] = true
	}
	assert.True(t, labels["Editor"])
	assert.True(t, labels["Shell"])
}
