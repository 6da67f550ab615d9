package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/memgraph"
	"mission-control/backend/internal/state"
	apperrors "mission-control/backend/pkg/errors"
	"mission-control/backend/pkg/logger"
)

// In-flight operation names
const (
	OpLoading    = "loading"
	OpRebuilding = "rebuilding"
	OpSaving     = "saving"
	OpPublishing = "publishing"
)

// Backend is the graph endpoint the editor loads from and persists to
type Backend interface {
	Load(ctx context.Context, bootstrap bool) (*state.LoadResponse, error)
	Save(ctx context.Context, payload *state.GraphPayload, reindex bool) (*state.SaveResponse, error)
	Publish(ctx context.Context, payload *state.GraphPayload, reindex bool) (*state.PublishResponse, error)
}

// Status is a snapshot of the editor flags
type Status struct {
	Loaded    bool                 `json:"loaded"`
	Dirty     bool                 `json:"dirty"`
	Revision  uint64               `json:"revision"`
	Version   int                  `json:"version"`
	InFlight  []string             `json:"inFlight"`
	Pinned    []string             `json:"pinned"`
	Bootstrap *state.BootstrapInfo `json:"bootstrap,omitempty"`
	LastError string               `json:"lastError,omitempty"`
}

// Inspection is everything the inspector panel shows for one node
type Inspection struct {
	Node     state.GraphNode            `json:"node"`
	Insight  *memgraph.NodeInsight      `json:"insight,omitempty"` // nil for collapsed relation nodes
	Edges    []memgraph.AggregatedEdge  `json:"edges"`
	Conflict *memgraph.ConflictGroup    `json:"conflict,omitempty"`
	Merges   []memgraph.MergeSuggestion `json:"merges"`
	Pinned   bool                       `json:"pinned"`
}

// Editor owns the single in-memory graph payload. Mutations replace the
// payload with an edited copy, so a payload handed out is never changed
// afterwards.
type Editor struct {
	backend  Backend
	pipeline *memgraph.Pipeline
	logger   *zap.Logger
	now      func() time.Time

	mu                sync.Mutex
	payload           *state.GraphPayload
	telemetry         *state.GraphTelemetry
	bootstrap         *state.BootstrapInfo
	revision          uint64
	telemetryRevision uint64
	dirty             bool
	pins              []string
	fetching          string // loading or rebuilding
	mutating          string // saving or publishing
	lastError         string
	lastFilter        memgraph.FilterConfig
}

// NewEditor creates an editor over backend
func NewEditor(backend Backend, pipeline *memgraph.Pipeline) *Editor {
	if pipeline == nil {
		pipeline = memgraph.NewPipeline(memgraph.AutogLayouter{}, nil)
	}
	return &Editor{
		backend:    backend,
		pipeline:   pipeline,
		logger:     logger.Named("editor"),
		now:        time.Now,
		lastFilter: memgraph.DefaultFilterConfig(),
	}
}

// Load fetches the stored graph. On failure the previous payload is kept.
func (e *Editor) Load(ctx context.Context) error {
	return e.fetch(ctx, false)
}

// Rebuild fetches a graph rebuilt from source documents. The result is
// dirty until saved.
func (e *Editor) Rebuild(ctx context.Context) error {
	return e.fetch(ctx, true)
}

func (e *Editor) fetch(ctx context.Context, bootstrap bool) error {
	op, mode := OpLoading, "stored"
	if bootstrap {
		op, mode = OpRebuilding, constants.ModeBootstrap
	}

	e.mu.Lock()
	if e.fetching != "" {
		running := e.fetching
		e.mu.Unlock()
		return apperrors.NewMutationInFlight(op, running)
	}
	e.fetching = op
	e.mu.Unlock()

	resp, err := e.backend.Load(ctx, bootstrap)
	if err == nil && resp != nil && resp.Error != "" {
		err = apperrors.NewBaseError(apperrors.ErrorTypeGraph, resp.Error, nil)
	}
	if err == nil && (resp == nil || resp.Graph == nil) {
		err = apperrors.NewBaseError(apperrors.ErrorTypeGraph, "response carried no graph", nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetching = ""
	if err != nil {
		loadErr := apperrors.NewGraphLoadFailed(mode, err)
		e.lastError = loadErr.Error()
		e.logger.Warn("Graph load failed", zap.String("mode", mode), zap.Error(err))
		return loadErr
	}

	e.payload = resp.Graph.Clone()
	e.telemetry = resp.Telemetry
	e.bootstrap = resp.Bootstrap
	e.revision++
	e.telemetryRevision++
	e.dirty = bootstrap || resp.Bootstrap != nil
	e.lastError = ""
	e.prunePins()

	e.logger.Info("Graph loaded",
		zap.String("mode", mode),
		zap.Int("version", e.payload.Version),
		zap.Int("nodes", len(e.payload.Nodes)),
		zap.Int("edges", len(e.payload.Edges)),
		zap.Bool("dirty", e.dirty))
	return nil
}

func (e *Editor) prunePins() {
	kept := e.pins[:0:0]
	for _, id := range e.pins {
		if _, ok := e.payload.NodeByID(id); ok {
			kept = append(kept, id)
		}
	}
	e.pins = kept
}

// editNode applies fn to a copy of node id and swaps the copy in.
func (e *Editor) editNode(id string, fn func(n *state.GraphNode)) (state.GraphNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.payload == nil {
		return state.GraphNode{}, apperrors.ErrGraphNotLoaded
	}
	next := e.payload.Clone()
	n, ok := next.NodeByID(id)
	if !ok {
		return state.GraphNode{}, apperrors.NewNodeNotFound(id)
	}
	fn(n)
	e.payload = next
	e.revision++
	e.dirty = true
	return *n, nil
}

// Confirm tags the node confirmed and raises its confidence.
func (e *Editor) Confirm(id string) (state.GraphNode, error) {
	return e.editNode(id, func(n *state.GraphNode) {
		n.Tags = withTag(withoutTag(n.Tags, constants.TagDeprecated), constants.TagConfirmed)
		n.Confidence = clamp01(n.Confidence + constants.ConfirmConfidenceBoost)
	})
}

// Deprecate tags the node deprecated and lowers its confidence.
func (e *Editor) Deprecate(id string) (state.GraphNode, error) {
	return e.editNode(id, func(n *state.GraphNode) {
		n.Tags = withTag(withoutTag(n.Tags, constants.TagConfirmed), constants.TagDeprecated)
		n.Confidence = clamp01(n.Confidence - constants.DeprecateConfidencePenalty)
	})
}

// EditSummary replaces the node summary verbatim
func (e *Editor) EditSummary(id, summary string) (state.GraphNode, error) {
	return e.editNode(id, func(n *state.GraphNode) {
		n.Summary = summary
	})
}

// MoveNode persists a drag-end position. Overview positions are computed,
// so moves there are rejected.
func (e *Editor) MoveNode(id string, x, y float64, layer memgraph.Layer) (state.GraphNode, error) {
	if layer == memgraph.LayerOverview {
		return state.GraphNode{}, apperrors.NewInvalidInput("layer", "positions are not persisted in the overview layer")
	}
	return e.editNode(id, func(n *state.GraphNode) {
		n.X = state.Float(x)
		n.Y = state.Float(y)
	})
}

// TogglePin pins or unpins a node and returns the new pin list. Pins are
// view state: they do not touch the payload or the dirty flag. Past the
// limit the oldest pin is evicted.
func (e *Editor) TogglePin(id string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.payload == nil {
		return nil, apperrors.ErrGraphNotLoaded
	}
	if _, ok := e.payload.NodeByID(id); !ok {
		return nil, apperrors.NewNodeNotFound(id)
	}
	for i, p := range e.pins {
		if p == id {
			e.pins = append(e.pins[:i:i], e.pins[i+1:]...)
			return e.pinsLocked(), nil
		}
	}
	e.pins = append(e.pins, id)
	if len(e.pins) > constants.MaxPinnedNodes {
		e.pins = e.pins[len(e.pins)-constants.MaxPinnedNodes:]
	}
	return e.pinsLocked(), nil
}

func (e *Editor) pinsLocked() []string {
	return append([]string{}, e.pins...)
}

// beginMutation claims the single save/publish slot.
func (e *Editor) beginMutation(op string, requireDirty bool) (*state.GraphPayload, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.payload == nil {
		return nil, 0, apperrors.ErrGraphNotLoaded
	}
	if e.mutating != "" {
		return nil, 0, apperrors.NewMutationInFlight(op, e.mutating)
	}
	if requireDirty && !e.dirty {
		return nil, 0, apperrors.ErrNotDirty
	}
	e.mutating = op
	return e.payload, e.revision, nil
}

// endMutation releases the slot. When nothing was edited while the request
// ran, the persisted payload replaces the local one and dirty clears.
func (e *Editor) endMutation(sent *state.GraphPayload, rev uint64, persisted *state.GraphPayload, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mutating = ""
	if err != nil {
		e.lastError = err.Error()
		return
	}
	e.lastError = ""
	if persisted == nil {
		persisted = sent
	}
	if e.revision == rev {
		e.payload = persisted.Clone()
		e.revision++
		e.dirty = false
		return
	}
	// edited mid-flight: keep the edits, adopt the stored version
	next := e.payload.Clone()
	next.Version = persisted.Version
	next.UpdatedAt = persisted.UpdatedAt
	e.payload = next
	e.revision++
}

// Save persists the payload. It is rejected when there is nothing to save
// or another save or publish is running.
func (e *Editor) Save(ctx context.Context, reindex bool) (*state.SaveResponse, error) {
	payload, rev, err := e.beginMutation(OpSaving, true)
	if err != nil {
		return nil, err
	}

	resp, err := e.backend.Save(ctx, payload, reindex)
	if err == nil && resp != nil && resp.Error != "" {
		err = apperrors.NewBaseError(apperrors.ErrorTypeGraph, resp.Error, nil)
	}
	if err != nil {
		err = apperrors.NewGraphSaveFailed(payload.Version, err)
		e.logger.Warn("Graph save failed", zap.Error(err))
		e.endMutation(payload, rev, nil, err)
		return nil, err
	}
	if resp == nil {
		resp = &state.SaveResponse{}
	}

	e.endMutation(payload, rev, resp.Graph, nil)
	e.logger.Info("Graph saved", zap.Bool("indexed", resp.Indexed))
	return resp, nil
}

// Publish persists the payload and writes the memory snapshot. Success
// clears dirty like a save.
func (e *Editor) Publish(ctx context.Context, reindex bool) (*state.PublishResponse, error) {
	payload, rev, err := e.beginMutation(OpPublishing, false)
	if err != nil {
		return nil, err
	}

	resp, err := e.backend.Publish(ctx, payload, reindex)
	if err == nil && resp != nil && resp.Error != "" {
		err = apperrors.NewBaseError(apperrors.ErrorTypeGraph, resp.Error, nil)
	}
	if err != nil {
		path := ""
		if resp != nil {
			path = resp.Path
		}
		err = apperrors.NewGraphPublishFailed(path, err)
		e.logger.Warn("Graph publish failed", zap.Error(err))
		e.endMutation(payload, rev, nil, err)
		return nil, err
	}
	if resp == nil {
		resp = &state.PublishResponse{}
	}

	e.endMutation(payload, rev, resp.Graph, nil)
	e.logger.Info("Graph published", zap.String("path", resp.Path), zap.Bool("indexed", resp.Indexed))
	return resp, nil
}

// Payload returns the current payload. Callers must not modify it.
func (e *Editor) Payload() *state.GraphPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payload
}

// Status reports the editor flags
func (e *Editor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	inFlight := []string{}
	for _, op := range []string{e.fetching, e.mutating} {
		if op != "" {
			inFlight = append(inFlight, op)
		}
	}
	st := Status{
		Loaded:    e.payload != nil,
		Dirty:     e.dirty,
		Revision:  e.revision,
		InFlight:  inFlight,
		Pinned:    e.pinsLocked(),
		Bootstrap: e.bootstrap,
		LastError: e.lastError,
	}
	if e.payload != nil {
		st.Version = e.payload.Version
	}
	return st
}

func (e *Editor) run(cfg memgraph.FilterConfig) (*memgraph.Result, error) {
	e.mu.Lock()
	if e.payload == nil {
		e.mu.Unlock()
		return nil, apperrors.ErrGraphNotLoaded
	}
	cfg.PinnedIDs = e.pinsLocked()
	in := memgraph.Input{
		Payload:           e.payload,
		PayloadRevision:   e.revision,
		Telemetry:         e.telemetry,
		TelemetryRevision: e.telemetryRevision,
		NowMs:             e.now().UnixMilli(),
		Filter:            cfg,
	}
	e.mu.Unlock()

	return e.pipeline.Run(in), nil
}

// View runs the pipeline for cfg. Pins come from the editor, not from cfg.
func (e *Editor) View(cfg memgraph.FilterConfig) (*memgraph.View, error) {
	res, err := e.run(cfg)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.lastFilter = cfg
	e.mu.Unlock()
	return res.View, nil
}

// Diagnostics returns the conflict, duplicate and merge report
func (e *Editor) Diagnostics() (*memgraph.Diagnostics, error) {
	e.mu.Lock()
	cfg := e.lastFilter
	e.mu.Unlock()

	res, err := e.run(cfg)
	if err != nil {
		return nil, err
	}
	return res.Diagnostics, nil
}

// Inspect gathers the inspector payload of one node
func (e *Editor) Inspect(id string) (*Inspection, error) {
	e.mu.Lock()
	cfg := e.lastFilter
	e.mu.Unlock()

	res, err := e.run(cfg)
	if err != nil {
		return nil, err
	}
	payload := e.Payload()
	n, ok := payload.NodeByID(id)
	if !ok {
		return nil, apperrors.NewNodeNotFound(id)
	}

	out := &Inspection{
		Node:   *n,
		Edges:  res.Graph.IncidentEdges(id),
		Merges: res.Diagnostics.MergesFor(id),
	}
	if ins, ok := res.Insights[id]; ok {
		out.Insight = &ins
	}
	out.Conflict = res.Diagnostics.ConflictFor(n)
	for _, p := range e.Status().Pinned {
		if p == id {
			out.Pinned = true
		}
	}
	return out, nil
}

func withTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

func withoutTag(tags []string, tag string) []string {
	out := tags[:0]
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
