package memgraph

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mission-control/backend/internal/state"
)

type stubLayouter struct {
	positions map[string]Point
	err       error
	panics    bool
	calls     int
}

func (s *stubLayouter) Layout(nodeIDs []string, edges []LayoutEdge) (map[string]Point, error) {
	s.calls++
	if s.panics {
		panic("layout exploded")
	}
	return s.positions, s.err
}

func TestGridPosition(t *testing.T) {
	assert.Equal(t, Point{X: 0, Y: 0}, GridPosition(0))
	assert.Equal(t, Point{X: 4 * 220, Y: 0}, GridPosition(4))
	assert.Equal(t, Point{X: 2 * 220, Y: 140}, GridPosition(7))
}

func TestReasonablePosition(t *testing.T) {
	_, ok := ReasonablePosition(nil, state.Float(1))
	assert.False(t, ok)
	_, ok = ReasonablePosition(state.Float(2000), state.Float(1))
	assert.False(t, ok)
	_, ok = ReasonablePosition(state.Float(math.NaN()), state.Float(1))
	assert.False(t, ok)
	p, ok := ReasonablePosition(state.Float(-1800), state.Float(12))
	assert.True(t, ok)
	assert.Equal(t, Point{X: -1800, Y: 12}, p)
}

func arrangeFixture() (*CollapsedGraph, *Scope) {
	nodes, edges := chain("a", "b", "c")
	nodes[0].X, nodes[0].Y = state.Float(10), state.Float(20)
	nodes[1].X, nodes[1].Y = state.Float(5000), state.Float(0)
	g := Collapse(nodes, edges, nil)
	scope := SelectScope(g, uniformInsights(g, 0.5), DefaultFilterConfig(), 0)
	return g, scope
}

func TestArrange_PositionPriority(t *testing.T) {
	g, scope := arrangeFixture()
	require.Equal(t, []string{"a", "b", "c"}, scope.NodeIDs)
	layouter := &stubLayouter{positions: map[string]Point{"a": {X: 1, Y: 1}, "b": {X: 300, Y: 40}}}

	view := Arrange(g, scope, nil, nil, DefaultFilterConfig(), layouter, 0)

	require.Len(t, view.Nodes, 3)
	assert.Equal(t, Point{X: 10, Y: 20}, view.Nodes[0].Position, "saved position wins")
	assert.Equal(t, Point{X: 300, Y: 40}, view.Nodes[1].Position, "stale saved position uses layout")
	assert.Equal(t, GridPosition(2), view.Nodes[2].Position, "missing layout uses grid")
	assert.Len(t, view.Edges, 2)
	assert.Equal(t, 1, layouter.calls)
}

func TestArrange_LayoutFailuresFallBackToGrid(t *testing.T) {
	g, scope := arrangeFixture()

	for name, l := range map[string]*stubLayouter{
		"error": {err: errors.New("no layout")},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			view := Arrange(g, scope, nil, nil, DefaultFilterConfig(), l, 0)
			require.Len(t, view.Nodes, 3)
			assert.Equal(t, Point{X: 10, Y: 20}, view.Nodes[0].Position)
			assert.Equal(t, GridPosition(1), view.Nodes[1].Position)
			assert.Equal(t, GridPosition(2), view.Nodes[2].Position)
		})
	}
}

func TestArrange_OverviewUsesCircle(t *testing.T) {
	g, _ := arrangeFixture()
	cfg := FilterConfig{Layer: LayerOverview}
	scope := SelectScope(g, uniformInsights(g, 0.5), cfg, 0)
	layouter := &stubLayouter{}

	view := Arrange(g, scope, nil, nil, cfg, layouter, 0)

	require.Len(t, view.Nodes, 3)
	assert.Equal(t, 0, layouter.calls)
	radius := math.Hypot(view.Nodes[0].Position.X, view.Nodes[0].Position.Y)
	for _, n := range view.Nodes {
		assert.InDelta(t, radius, math.Hypot(n.Position.X, n.Position.Y), 1e-6)
	}
	assert.NotEqual(t, Point{X: 10, Y: 20}, view.Nodes[0].Position)
}

func TestArrange_Annotations(t *testing.T) {
	g, scope := arrangeFixture()
	insights := map[string]NodeInsight{
		"a": {Conflicts: 2, Stale: true},
		"b": {LowProvenance: true},
	}
	diag := &Diagnostics{
		duplicateOf: map[string]string{"c": "node c"},
		mergeOf:     map[string]struct{}{"c": {}},
	}
	cfg := DefaultFilterConfig()
	cfg.PinnedIDs = []string{"b"}
	scope.FocusID = "a"

	view := Arrange(g, scope, insights, diag, cfg, nil, 0)

	a, _ := view.Node("a")
	assert.Equal(t, []string{AnnotationConflict, AnnotationStale, AnnotationFocus}, a.Annotations)
	b, _ := view.Node("b")
	assert.Equal(t, []string{AnnotationLowProvenance, AnnotationPinned}, b.Annotations)
	c, _ := view.Node("c")
	assert.True(t, c.HasAnnotation(AnnotationDuplicate))
	assert.True(t, c.HasAnnotation(AnnotationMergeCandidate))
}

func TestAutogLayouter(t *testing.T) {
	positions, err := AutogLayouter{}.Layout(
		[]string{"a", "b", "c", "lonely"},
		[]LayoutEdge{{Source: "a", Target: "b"}, {Source: "b", Target: "c"}, {Source: "c", Target: "c"}},
	)
	require.NoError(t, err)
	assert.Contains(t, positions, "a")
	assert.Contains(t, positions, "c")
	assert.NotContains(t, positions, "lonely")
	assert.Less(t, positions["a"].X, positions["c"].X)

	empty, err := AutogLayouter{}.Layout([]string{"a"}, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
