package memgraph

import (
	"fmt"
	"sync"
	"time"

	"mission-control/backend/internal/state"
)

// Pipeline stage names, as reported to a StageObserver
const (
	StageCollapse    = "collapse"
	StageDiagnostics = "diagnostics"
	StageInsights    = "insights"
	StageScope       = "scope"
	StageLayout      = "layout"
)

const minuteMs = int64(60 * 1000)

// StageObserver receives the duration of every stage run and whether it was
// served from the memo.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration, cached bool)
}

// Input is everything one pipeline pass reads. Revisions identify payload and
// telemetry contents; callers bump them on every change.
type Input struct {
	Payload           *state.GraphPayload
	PayloadRevision   uint64
	Telemetry         *state.GraphTelemetry
	TelemetryRevision uint64
	NowMs             int64
	Filter            FilterConfig
}

// Result holds every stage output of one pass
type Result struct {
	Graph       *CollapsedGraph
	Diagnostics *Diagnostics
	Insights    map[string]NodeInsight
	Scope       *Scope
	View        *View
}

type memo[T any] struct {
	key   string
	value T
	ok    bool
}

func (m *memo[T]) get(key string) (T, bool) {
	if m.ok && m.key == key {
		return m.value, true
	}
	var zero T
	return zero, false
}

func (m *memo[T]) set(key string, v T) {
	m.key, m.value, m.ok = key, v, true
}

// Pipeline runs collapse, diagnostics, insights, scope and layout, reusing
// each stage's previous output while the inputs it reads are unchanged.
type Pipeline struct {
	mu       sync.Mutex
	layouter Layouter
	observer StageObserver

	collapse    memo[*CollapsedGraph]
	diagnostics memo[*Diagnostics]
	insights    memo[map[string]NodeInsight]
	scope       memo[*Scope]
	view        memo[*View]
}

// NewPipeline creates a pipeline. A nil layouter means grid positions only.
func NewPipeline(layouter Layouter, observer StageObserver) *Pipeline {
	return &Pipeline{layouter: layouter, observer: observer}
}

// Run executes one pass. Returned values are shared with the memo and must
// not be mutated.
func (p *Pipeline) Run(in Input) *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	payload := in.Payload
	if payload == nil {
		payload = &state.GraphPayload{}
	}
	var docs []state.SourceDocument
	if in.Telemetry != nil {
		docs = in.Telemetry.Documents
	}
	now := in.NowMs - in.NowMs%minuteMs

	sourceKey := fmt.Sprintf("%d/%d", in.PayloadRevision, in.TelemetryRevision)
	insightKey := fmt.Sprintf("%s/%d/%d", sourceKey, now, in.Filter.UsedInLastNChats)
	scopeKey := insightKey + "/" + in.Filter.Key()

	g := runStage(p, &p.collapse, StageCollapse, sourceKey, func() *CollapsedGraph {
		return Collapse(payload.Nodes, payload.Edges, NewDocumentIndex(docs))
	})
	diag := runStage(p, &p.diagnostics, StageDiagnostics, sourceKey, func() *Diagnostics {
		return Diagnose(g, docs)
	})
	insights := runStage(p, &p.insights, StageInsights, insightKey, func() map[string]NodeInsight {
		return ScoreInsights(g, diag, in.Telemetry, InsightOptions{NowMs: now, UsedInLastNChats: in.Filter.UsedInLastNChats})
	})
	scope := runStage(p, &p.scope, StageScope, scopeKey, func() *Scope {
		return SelectScope(g, insights, in.Filter, now)
	})
	view := runStage(p, &p.view, StageLayout, scopeKey, func() *View {
		return Arrange(g, scope, insights, diag, in.Filter, p.layouter, now)
	})

	return &Result{Graph: g, Diagnostics: diag, Insights: insights, Scope: scope, View: view}
}

func runStage[T any](p *Pipeline, cell *memo[T], stage, key string, compute func() T) T {
	start := time.Now()
	if v, ok := cell.get(key); ok {
		p.observe(stage, time.Since(start), true)
		return v
	}
	v := compute()
	cell.set(key, v)
	p.observe(stage, time.Since(start), false)
	return v
}

func (p *Pipeline) observe(stage string, d time.Duration, cached bool) {
	if p.observer != nil {
		p.observer.ObserveStage(stage, d, cached)
	}
}
