package memgraph

// Node annotations shown on the canvas
const (
	AnnotationConflict       = "conflict"
	AnnotationLowProvenance  = "low-provenance"
	AnnotationStale          = "stale"
	AnnotationDuplicate      = "duplicate"
	AnnotationMergeCandidate = "merge-candidate"
	AnnotationPinned         = "pinned"
	AnnotationFocus          = "focus"
)

// RenderNode is a positioned, annotated node ready to draw
type RenderNode struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Kind        string      `json:"kind"`
	Summary     string      `json:"summary"`
	Confidence  float64     `json:"confidence"`
	Tags        []string    `json:"tags"`
	Position    Point       `json:"position"`
	Hop         int         `json:"hop"`
	Insight     NodeInsight `json:"insight"`
	Annotations []string    `json:"annotations"`
}

// HasAnnotation reports whether the node carries annotation a
func (n RenderNode) HasAnnotation(a string) bool {
	for _, x := range n.Annotations {
		if x == a {
			return true
		}
	}
	return false
}

// RenderEdge is a visible aggregated edge
type RenderEdge struct {
	ID         string   `json:"id"`
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Relation   string   `json:"relation"`
	Count      int      `json:"count"`
	Confidence float64  `json:"confidence"`
	Score      float64  `json:"score"`
	Evidence   []string `json:"evidence,omitempty"`
	Fact       string   `json:"fact,omitempty"`
}

// DiagnosticsSummary counts the findings over the whole collapsed graph
type DiagnosticsSummary struct {
	Conflicts  int `json:"conflicts"`
	Duplicates int `json:"duplicates"`
	Merges     int `json:"merges"`
}

// View is the renderable output of the pipeline
type View struct {
	Layer       Layer              `json:"layer"`
	Nodes       []RenderNode       `json:"nodes"`
	Edges       []RenderEdge       `json:"edges"`
	FocusID     string             `json:"focusId,omitempty"`
	Fallback    string             `json:"fallback"`
	Diagnostics DiagnosticsSummary `json:"diagnostics"`
	TotalNodes  int                `json:"totalNodes"`
	TotalEdges  int                `json:"totalEdges"`
}

// Node returns the rendered node with id
func (v *View) Node(id string) (RenderNode, bool) {
	for _, n := range v.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return RenderNode{}, false
}

// Arrange positions the scope and attaches annotations. Overview ignores
// saved positions and uses a circle; other layers prefer a reasonable saved
// position, then the layouter, then the grid.
func Arrange(g *CollapsedGraph, scope *Scope, insights map[string]NodeInsight, diag *Diagnostics, cfg FilterConfig, layouter Layouter, nowMs int64) *View {
	view := &View{
		Layer:      cfg.Layer,
		Nodes:      make([]RenderNode, 0, len(scope.NodeIDs)),
		Edges:      make([]RenderEdge, 0, len(scope.Edges)),
		FocusID:    scope.FocusID,
		Fallback:   scope.Fallback,
		TotalNodes: len(g.Nodes),
		TotalEdges: len(g.Edges),
	}
	if diag != nil {
		view.Diagnostics = DiagnosticsSummary{
			Conflicts:  len(diag.Conflicts),
			Duplicates: len(diag.Duplicates),
			Merges:     len(diag.Merges),
		}
	}

	var positions []Point
	if cfg.Layer == LayerOverview {
		positions = CirclePositions(len(scope.NodeIDs))
	} else {
		edges := make([]LayoutEdge, len(scope.Edges))
		for i, e := range scope.Edges {
			edges[i] = LayoutEdge{Source: e.Source, Target: e.Target}
		}
		computed := computeLayout(layouter, scope.NodeIDs, edges)
		positions = make([]Point, len(scope.NodeIDs))
		for i, id := range scope.NodeIDs {
			n := g.NodeByID[id]
			if p, ok := ReasonablePosition(n.X, n.Y); ok {
				positions[i] = p
			} else if p, ok := computed[id]; ok {
				positions[i] = p
			} else {
				positions[i] = GridPosition(i)
			}
		}
	}

	pinned := make(map[string]struct{}, len(cfg.PinnedIDs))
	for _, id := range cfg.PinnedIDs {
		pinned[id] = struct{}{}
	}

	for i, id := range scope.NodeIDs {
		n := g.NodeByID[id]
		ins := insights[id]
		hop, ok := scope.Hops[id]
		if !ok {
			hop = -1
		}
		view.Nodes = append(view.Nodes, RenderNode{
			ID:          n.ID,
			Label:       n.Label,
			Kind:        n.Kind,
			Summary:     n.Summary,
			Confidence:  n.Confidence,
			Tags:        n.Tags,
			Position:    positions[i],
			Hop:         hop,
			Insight:     ins,
			Annotations: annotate(id, ins, diag, pinned, scope.FocusID),
		})
	}

	for _, e := range scope.Edges {
		view.Edges = append(view.Edges, RenderEdge{
			ID:         e.ID,
			Source:     e.Source,
			Target:     e.Target,
			Relation:   e.Relation,
			Count:      e.Count,
			Confidence: e.Confidence,
			Score:      EdgeScore(e, nowMs),
			Evidence:   e.Evidence,
			Fact:       e.Fact,
		})
	}
	return view
}

func annotate(id string, ins NodeInsight, diag *Diagnostics, pinned map[string]struct{}, focus string) []string {
	out := []string{}
	if ins.Conflicts > 0 {
		out = append(out, AnnotationConflict)
	}
	if ins.LowProvenance {
		out = append(out, AnnotationLowProvenance)
	}
	if ins.Stale {
		out = append(out, AnnotationStale)
	}
	if diag != nil && diag.IsDuplicate(id) {
		out = append(out, AnnotationDuplicate)
	}
	if diag != nil && diag.IsMergeCandidate(id) {
		out = append(out, AnnotationMergeCandidate)
	}
	if _, ok := pinned[id]; ok {
		out = append(out, AnnotationPinned)
	}
	if id != "" && id == focus {
		out = append(out, AnnotationFocus)
	}
	return out
}
