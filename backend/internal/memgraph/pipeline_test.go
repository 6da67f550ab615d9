package memgraph

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mission-control/backend/internal/state"
)

type recordingObserver struct {
	mu     sync.Mutex
	cached map[string]int
	missed map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{cached: map[string]int{}, missed: map[string]int{}}
}

func (r *recordingObserver) ObserveStage(stage string, d time.Duration, cached bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached {
		r.cached[stage]++
	} else {
		r.missed[stage]++
	}
}

func scenarioInput() Input {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	return Input{
		Payload: &state.GraphPayload{
			Version: 1,
			Nodes: []state.GraphNode{
				{ID: "alpha", Label: "Alpha project", Kind: "project", Confidence: 0.9, Tags: []string{"file:MEMORY.md"}},
				{ID: "beta", Label: "Beta service", Kind: "tool", Confidence: 0.8},
				{ID: "gamma", Label: "Gamma idea", Kind: "concept", Confidence: 0.7},
				{ID: "rel", Label: "depends on", Kind: "relation", Confidence: 0.5},
			},
			Edges: []state.GraphEdge{
				{ID: "e1", Source: "alpha", Target: "rel", Weight: state.Float(0.8)},
				{ID: "e2", Source: "rel", Target: "beta", Weight: state.Float(0.6)},
			},
		},
		PayloadRevision: 1,
		Telemetry: &state.GraphTelemetry{
			Documents: []state.SourceDocument{{
				Name: "MEMORY.md", Path: "MEMORY.md", Source: state.SourceWorkspace, MtimeMs: now - 2*dayMs,
				Facts: []state.SourceFact{
					{Topic: "Alpha project", Statement: "Alpha ships in May", Canonical: "alpha project", Line: 4},
					{Topic: "Alpha project", Statement: "Alpha ships in June", Canonical: "alpha project", Line: 9},
				},
			}},
		},
		TelemetryRevision: 1,
		NowMs:             now,
		Filter:            DefaultFilterConfig(),
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	p := NewPipeline(nil, nil)
	res := p.Run(scenarioInput())

	require.Len(t, res.Graph.Nodes, 3)
	assert.Nil(t, res.Graph.NodeByID["rel"])
	require.Len(t, res.Graph.Edges, 1)
	assert.Equal(t, "alpha::beta::depends_on", res.Graph.Edges[0].ID)
	assert.InDelta(t, 0.7, res.Graph.Edges[0].Confidence, 1e-9)

	require.Len(t, res.Diagnostics.Conflicts, 1)
	assert.Len(t, res.Diagnostics.Conflicts[0].Statements, 2)

	view := res.View
	require.NotEmpty(t, view.Nodes)
	assert.LessOrEqual(t, len(view.Nodes), 20)
	assert.LessOrEqual(t, len(view.Edges), 40)
	alpha, ok := view.Node("alpha")
	require.True(t, ok)
	assert.True(t, alpha.HasAnnotation(AnnotationConflict))
	assert.Equal(t, 1, view.Diagnostics.Conflicts)
	assert.Equal(t, 3, view.TotalNodes)
}

func TestPipeline_Memoisation(t *testing.T) {
	obs := newRecordingObserver()
	p := NewPipeline(nil, obs)
	in := scenarioInput()

	first := p.Run(in)
	second := p.Run(in)
	assert.Same(t, first.View, second.View)
	for _, stage := range []string{StageCollapse, StageDiagnostics, StageInsights, StageScope, StageLayout} {
		assert.Equal(t, 1, obs.missed[stage], stage)
		assert.Equal(t, 1, obs.cached[stage], stage)
	}

	// a filter change only reruns the filter-dependent stages
	in.Filter.Query = "beta"
	third := p.Run(in)
	assert.Same(t, first.Graph, third.Graph)
	assert.Equal(t, 1, obs.missed[StageInsights])
	assert.Equal(t, 2, obs.missed[StageScope])
	assert.Equal(t, []string{"beta"}, third.Scope.NodeIDs)

	// seconds within the same minute reuse insights
	in.NowMs += 1000
	p.Run(in)
	assert.Equal(t, 1, obs.missed[StageInsights])

	// a new payload revision invalidates everything
	in.PayloadRevision++
	p.Run(in)
	assert.Equal(t, 2, obs.missed[StageCollapse])
	assert.Equal(t, 2, obs.missed[StageInsights])
}

func TestPipeline_NilPayload(t *testing.T) {
	res := NewPipeline(AutogLayouter{}, nil).Run(Input{Filter: DefaultFilterConfig()})
	assert.Empty(t, res.View.Nodes)
	assert.Empty(t, res.Graph.Edges)
}
