package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/memgraph"
	"mission-control/backend/internal/state"
)

func bootstrapTelemetry() *state.GraphTelemetry {
	memory := ParseDocument("MEMORY.md", "MEMORY.md", state.SourceWorkspace,
		[]byte("# Tools\n- Editor: vim\n- Shell: zsh\n"))
	daily := ParseDocument("2026-01-01.md", "memory/2026-01-01.md", state.SourceMemory,
		[]byte("- Editor: emacs\n- Editor: emacs\n"))
	return &state.GraphTelemetry{Documents: []state.SourceDocument{memory, daily}}
}

func countKind(p *state.GraphPayload, kind string) int {
	n := 0
	for _, node := range p.Nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

func TestBuildGraph(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := BuildGraph(bootstrapTelemetry(), nil, now)

	require.NoError(t, g.Validate())
	assert.Equal(t, "2026-03-01T12:00:00Z", g.UpdatedAt)
	assert.Equal(t, 2, countKind(g, KindFile))
	// Editor and Shell; the repeated bullet collapses into one fact node
	assert.Equal(t, 2, countKind(g, KindTopic))
	assert.Equal(t, 3, countKind(g, KindFact))

	var editor *state.GraphNode
	for i := range g.Nodes {
		if g.Nodes[i].Kind == KindTopic && g.Nodes[i].Label == "Editor" {
			editor = &g.Nodes[i]
		}
	}
	require.NotNil(t, editor)
	assert.Equal(t, []string{"file:2026-01-01.md", "file:MEMORY.md"}, editor.Tags)

	relations := map[string]int{}
	for _, e := range g.Edges {
		relations[e.Relation]++
		_, okSource := g.NodeByID(e.Source)
		_, okTarget := g.NodeByID(e.Target)
		assert.True(t, okSource && okTarget, "edge %s must reference existing nodes", e.ID)
	}
	assert.Equal(t, 3, relations[RelationContains])
	assert.Equal(t, 3, relations[RelationAbout])
}

func TestBuildGraph_StableIDs(t *testing.T) {
	now := time.Now()
	a := BuildGraph(bootstrapTelemetry(), nil, now)
	b := BuildGraph(bootstrapTelemetry(), nil, now)
	assert.Equal(t, a, b)
}

func TestBuildGraph_CarriesOverPositionsAndReviewTags(t *testing.T) {
	now := time.Now()
	first := BuildGraph(bootstrapTelemetry(), nil, now)
	first.Version = 7

	var factID string
	for i := range first.Nodes {
		if first.Nodes[i].Kind == KindFact {
			factID = first.Nodes[i].ID
			first.Nodes[i].X = state.Float(120)
			first.Nodes[i].Y = state.Float(-40)
			first.Nodes[i].Tags = append(first.Nodes[i].Tags, constants.TagConfirmed)
			first.Nodes[i].Confidence = 0.95
			break
		}
	}

	second := BuildGraph(bootstrapTelemetry(), first, now)
	assert.Equal(t, 7, second.Version)

	node, ok := second.NodeByID(factID)
	require.True(t, ok)
	require.NotNil(t, node.X)
	assert.Equal(t, 120.0, *node.X)
	assert.Equal(t, -40.0, *node.Y)
	assert.True(t, node.HasTag(constants.TagConfirmed))
	assert.Equal(t, 0.95, node.Confidence)
}

func TestBuildGraph_ConflictingFactsSurfaceInDiagnostics(t *testing.T) {
	telemetry := bootstrapTelemetry()
	g := BuildGraph(telemetry, nil, time.Now())

	collapsed := memgraph.Collapse(g.Nodes, g.Edges, memgraph.NewDocumentIndex(telemetry.Documents))
	diag := memgraph.Diagnose(collapsed, telemetry.Documents)

	require.NotEmpty(t, diag.Conflicts)
	found := false
	for _, c := range diag.Conflicts {
		if c.Key == "editor" {
			found = true
			assert.ElementsMatch(t, []string{"vim", "emacs"}, c.Statements)
		}
	}
	assert.True(t, found, "expected an editor conflict")
}

func TestBuildGraph_Empty(t *testing.T) {
	g := BuildGraph(nil, nil, time.Now())
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)
	assert.Empty(t, BootstrapFiles(nil))
}

func TestCollector_CachesUntilInvalidated(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "MEMORY.md"), "- Editor: vim\n")
	sessions := filepath.Join(root, "sessions")
	writeFile(t, filepath.Join(sessions, "a.jsonl"), `{"role":"user","timestamp":1700000000000,"content":"editor?"}`+"\n")

	c := NewCollector(Sources{
		WorkspaceDir: root,
		MemoryDir:    filepath.Join(root, "memory"),
		SessionsDir:  sessions,
		ChatLimit:    10,
	})
	ctx := context.Background()

	first, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, first.Documents, 1)
	assert.Len(t, first.RecentMessages, 1)
	assert.Equal(t, uint64(1), c.Revision())

	writeFile(t, filepath.Join(root, "NOTES.md"), "- Shell: zsh\n")
	cached, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Same(t, first, cached)
	assert.Equal(t, uint64(1), c.Revision())

	c.Invalidate()
	fresh, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh.Documents, 2)
	assert.Equal(t, uint64(2), c.Revision())
}

func TestCollector_MissingWorkspaceFails(t *testing.T) {
	c := NewCollector(Sources{WorkspaceDir: filepath.Join(t.TempDir(), "nope")})
	_, err := c.Collect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, uint64(0), c.Revision())
}

func TestWatcher_InvalidatesOnChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "MEMORY.md"), "- Editor: vim\n")

	c := NewCollector(Sources{WorkspaceDir: root})
	_, err := c.Collect(context.Background())
	require.NoError(t, err)

	w, err := NewWatcher(c)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	changed := make(chan struct{}, 1)
	w.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, filepath.Join(root, "MEMORY.md"), "- Editor: emacs\n")

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	fresh, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.Revision())
	require.Len(t, fresh.Documents[0].Facts, 1)
	assert.Equal(t, "emacs", fresh.Documents[0].Facts[0].Statement)
}
