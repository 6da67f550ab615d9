package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/memgraph"
	"mission-control/backend/internal/state"
	apperrors "mission-control/backend/pkg/errors"
)

// mockBackend records calls and can block inside Save/Publish
type mockBackend struct {
	mu         sync.Mutex
	graph      *state.GraphPayload
	loadErr    error
	saveErr    error
	publishErr error
	saved      []*state.GraphPayload
	bootstraps int

	block   chan struct{}
	entered chan struct{}
}

func (m *mockBackend) Load(ctx context.Context, bootstrap bool) (*state.LoadResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	resp := &state.LoadResponse{Graph: m.graph.Clone(), Telemetry: &state.GraphTelemetry{}}
	if bootstrap {
		m.bootstraps++
		resp.Bootstrap = &state.BootstrapInfo{Source: state.BootstrapFilesystem, Files: []string{"MEMORY.md"}}
	}
	return resp, nil
}

func (m *mockBackend) wait() {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
}

func (m *mockBackend) Save(ctx context.Context, payload *state.GraphPayload, reindex bool) (*state.SaveResponse, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	next := payload.Clone()
	next.Version++
	m.saved = append(m.saved, next)
	return &state.SaveResponse{Graph: next, Indexed: reindex}, nil
}

func (m *mockBackend) Publish(ctx context.Context, payload *state.GraphPayload, reindex bool) (*state.PublishResponse, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	next := payload.Clone()
	next.Version++
	m.saved = append(m.saved, next)
	return &state.PublishResponse{Graph: next, Path: "MEMORY.md", Indexed: reindex}, nil
}

func sampleGraph() *state.GraphPayload {
	return &state.GraphPayload{
		Version: 3,
		Nodes: []state.GraphNode{
			{ID: "a", Label: "Alpha", Kind: "concept", Confidence: 0.95, Tags: []string{"deprecated"}},
			{ID: "b", Label: "Beta", Kind: "topic", Confidence: 0.1},
			{ID: "c", Label: "Gamma", Kind: "concept", Confidence: 0.5},
			{ID: "d", Label: "Delta", Kind: "concept", Confidence: 0.5},
			{ID: "e", Label: "Epsilon", Kind: "concept", Confidence: 0.5},
			{ID: "f", Label: "Zeta", Kind: "concept", Confidence: 0.5},
		},
		Edges: []state.GraphEdge{{ID: "1", Source: "a", Target: "b", Relation: "about"}},
	}
}

func loadedEditor(t *testing.T) (*Editor, *mockBackend) {
	t.Helper()
	backend := &mockBackend{graph: sampleGraph()}
	e := NewEditor(backend, memgraph.NewPipeline(nil, nil))
	require.NoError(t, e.Load(context.Background()))
	return e, backend
}

func TestEditor_LoadFailureKeepsPrevious(t *testing.T) {
	backend := &mockBackend{loadErr: errors.New("connection refused")}
	e := NewEditor(backend, nil)

	err := e.Load(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeGraph))
	assert.Nil(t, e.Payload())
	assert.False(t, e.Status().Loaded)
	assert.NotEmpty(t, e.Status().LastError)

	backend.loadErr = nil
	backend.graph = sampleGraph()
	require.NoError(t, e.Load(context.Background()))
	first := e.Payload()

	backend.loadErr = errors.New("boom")
	require.Error(t, e.Load(context.Background()))
	assert.Same(t, first, e.Payload())
}

func TestEditor_RebuildMarksDirty(t *testing.T) {
	e, backend := loadedEditor(t)
	assert.False(t, e.Status().Dirty)

	require.NoError(t, e.Rebuild(context.Background()))
	st := e.Status()
	assert.True(t, st.Dirty)
	assert.Equal(t, 1, backend.bootstraps)
	require.NotNil(t, st.Bootstrap)
	assert.Equal(t, state.BootstrapFilesystem, st.Bootstrap.Source)
}

func TestEditor_ConfirmAndDeprecate(t *testing.T) {
	e, _ := loadedEditor(t)
	before := e.Payload()

	n, err := e.Confirm("a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, n.Confidence)
	assert.Equal(t, []string{constants.TagConfirmed}, n.Tags)
	assert.True(t, e.Status().Dirty)

	n, err = e.Deprecate("b")
	require.NoError(t, err)
	assert.Equal(t, 0.0, n.Confidence)
	assert.Contains(t, n.Tags, constants.TagDeprecated)

	// copy on write: the payload handed out earlier is untouched
	orig, _ := before.NodeByID("a")
	assert.Equal(t, 0.95, orig.Confidence)
	assert.Equal(t, []string{"deprecated"}, orig.Tags)

	_, err = e.Confirm("missing")
	var notFound *apperrors.ErrNodeNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestEditor_EditSummaryAndMove(t *testing.T) {
	e, _ := loadedEditor(t)
	rev := e.Status().Revision

	n, err := e.EditSummary("c", "  verbatim  text ")
	require.NoError(t, err)
	assert.Equal(t, "  verbatim  text ", n.Summary)

	n, err = e.MoveNode("c", 12, -40, memgraph.LayerTopic)
	require.NoError(t, err)
	assert.Equal(t, 12.0, *n.X)
	assert.Equal(t, -40.0, *n.Y)
	assert.Equal(t, rev+2, e.Status().Revision)

	_, err = e.MoveNode("c", 1, 1, memgraph.LayerOverview)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
	assert.Equal(t, rev+2, e.Status().Revision)
}

func TestEditor_PinsEvictOldest(t *testing.T) {
	e, _ := loadedEditor(t)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := e.TogglePin(id)
		require.NoError(t, err)
	}
	pins, err := e.TogglePin("f")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d", "e", "f"}, pins)

	pins, err = e.TogglePin("d")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "e", "f"}, pins)
	assert.False(t, e.Status().Dirty)

	_, err = e.TogglePin("nope")
	assert.Error(t, err)
}

func TestEditor_SaveRequiresDirty(t *testing.T) {
	e, backend := loadedEditor(t)

	_, err := e.Save(context.Background(), false)
	assert.ErrorIs(t, err, apperrors.ErrNotDirty)

	_, err = e.Confirm("c")
	require.NoError(t, err)
	resp, err := e.Save(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, resp.Indexed)
	assert.False(t, e.Status().Dirty)
	assert.Equal(t, 4, e.Status().Version)
	assert.Len(t, backend.saved, 1)
}

func TestEditor_SaveFailureKeepsDirty(t *testing.T) {
	e, backend := loadedEditor(t)
	_, err := e.Confirm("c")
	require.NoError(t, err)

	backend.saveErr = errors.New("disk full")
	_, err = e.Save(context.Background(), false)
	require.Error(t, err)
	var saveErr *apperrors.ErrGraphSaveFailed
	assert.ErrorAs(t, err, &saveErr)

	st := e.Status()
	assert.True(t, st.Dirty)
	assert.Empty(t, st.InFlight)
	assert.Contains(t, st.LastError, "disk full")
}

func TestEditor_PublishClearsDirty(t *testing.T) {
	e, _ := loadedEditor(t)
	_, err := e.EditSummary("c", "new")
	require.NoError(t, err)

	resp, err := e.Publish(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "MEMORY.md", resp.Path)
	assert.False(t, e.Status().Dirty)
}

func TestEditor_SingleMutationSlot(t *testing.T) {
	e, backend := loadedEditor(t)
	backend.block = make(chan struct{})
	backend.entered = make(chan struct{}, 1)
	_, err := e.Confirm("c")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.Save(context.Background(), false)
		done <- err
	}()
	<-backend.entered

	assert.Equal(t, []string{OpSaving}, e.Status().InFlight)
	_, err = e.Publish(context.Background(), false)
	var inFlight *apperrors.ErrMutationInFlight
	require.ErrorAs(t, err, &inFlight)
	assert.Equal(t, OpSaving, inFlight.Running)
	assert.True(t, apperrors.IsRetryable(err))

	// an edit made while the save runs survives it
	_, err = e.EditSummary("d", "edited mid-save")
	require.NoError(t, err)

	close(backend.block)
	require.NoError(t, <-done)

	st := e.Status()
	assert.True(t, st.Dirty)
	assert.Equal(t, 4, st.Version)
	n, _ := e.Payload().NodeByID("d")
	assert.Equal(t, "edited mid-save", n.Summary)
}

func TestEditor_ViewAndInspect(t *testing.T) {
	e, _ := loadedEditor(t)
	_, err := e.TogglePin("c")
	require.NoError(t, err)

	view, err := e.View(memgraph.DefaultFilterConfig())
	require.NoError(t, err)
	require.NotEmpty(t, view.Nodes)
	c, ok := view.Node("c")
	require.True(t, ok)
	assert.True(t, c.HasAnnotation(memgraph.AnnotationPinned))

	ins, err := e.Inspect("a")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", ins.Node.Label)
	require.NotNil(t, ins.Insight)
	assert.Len(t, ins.Edges, 1)
	assert.False(t, ins.Pinned)

	_, err = e.Inspect("zzz")
	assert.Error(t, err)

	diag, err := e.Diagnostics()
	require.NoError(t, err)
	assert.Empty(t, diag.Conflicts)
}

func TestEditor_NotLoaded(t *testing.T) {
	e := NewEditor(&mockBackend{}, nil)

	_, err := e.View(memgraph.DefaultFilterConfig())
	assert.ErrorIs(t, err, apperrors.ErrGraphNotLoaded)
	_, err = e.Save(context.Background(), false)
	assert.ErrorIs(t, err, apperrors.ErrGraphNotLoaded)
	_, err = e.TogglePin("a")
	assert.ErrorIs(t, err, apperrors.ErrGraphNotLoaded)
}
