package memgraph

import (
	"sort"
	"strings"

	"mission-control/backend/internal/state"
)

const (
	spliceDefaultWeight      = 0.6
	passThroughDefaultWeight = 0.7
)

// AggregatedEdge is every raw (or spliced) edge sharing source, target and
// normalized relation, folded into one weighted edge.
type AggregatedEdge struct {
	ID            string   `json:"id"` // source::target::relation
	Source        string   `json:"source"`
	Target        string   `json:"target"`
	Relation      string   `json:"relation"`
	Count         int      `json:"count"`
	Confidence    float64  `json:"confidence"` // running mean
	MaxConfidence float64  `json:"maxConfidence"`
	Evidence      []string `json:"evidence"`
	LastSeenMs    int64    `json:"lastSeenMs"`
	Fact          string   `json:"fact,omitempty"`
}

// CollapsedGraph is the edge-only relational model every later stage reads.
type CollapsedGraph struct {
	Nodes    []state.GraphNode
	Edges    []AggregatedEdge
	NodeByID map[string]*state.GraphNode
	// RelationNodes lists the ids of the reified relation nodes that were removed
	RelationNodes []string
}

// EdgeKey is the aggregation key of an edge
func EdgeKey(source, target, relation string) string {
	return source + "::" + target + "::" + relation
}

type typedEdge struct {
	source, target, relation string
	confidence               float64
	evidence                 string
	fact                     string
}

// IsRelationInstance reports whether a node with the given degrees is a
// reified relation.
func IsRelationInstance(n *state.GraphNode, inDegree, outDegree int) bool {
	if inDegree == 0 || outDegree == 0 {
		return false
	}
	if strings.EqualFold(n.Kind, "relation") {
		return true
	}
	_, hinted := RelationNodeHints[NormalizeRelation(n.Label)]
	return hinted
}

// Collapse removes relation-instance nodes by splicing their incoming and
// outgoing edges into direct typed edges, then aggregates parallel edges.
func Collapse(nodes []state.GraphNode, edges []state.GraphEdge, docs DocumentIndex) *CollapsedGraph {
	inDeg := make(map[string]int, len(nodes))
	outDeg := make(map[string]int, len(nodes))
	for _, e := range edges {
		outDeg[e.Source]++
		inDeg[e.Target]++
	}

	allByID := make(map[string]*state.GraphNode, len(nodes))
	relationIDs := make(map[string]struct{})
	for i := range nodes {
		n := &nodes[i]
		allByID[n.ID] = n
		if IsRelationInstance(n, inDeg[n.ID], outDeg[n.ID]) {
			relationIDs[n.ID] = struct{}{}
		}
	}

	incoming := make(map[string][]state.GraphEdge)
	outgoing := make(map[string][]state.GraphEdge)
	var typed []typedEdge

	for _, e := range edges {
		_, srcRel := relationIDs[e.Source]
		_, dstRel := relationIDs[e.Target]
		if dstRel {
			incoming[e.Target] = append(incoming[e.Target], e)
		}
		if srcRel {
			outgoing[e.Source] = append(outgoing[e.Source], e)
		}
		if srcRel || dstRel {
			continue
		}
		typed = append(typed, typedEdge{
			source:     e.Source,
			target:     e.Target,
			relation:   NormalizeRelation(e.Relation),
			confidence: clamp01(weightOr(e.Weight, passThroughDefaultWeight)),
			evidence:   e.Evidence,
			fact:       e.Fact,
		})
	}

	// Splice in node order so the typed edge sequence does not depend on map order
	for i := range nodes {
		r := &nodes[i]
		if _, ok := relationIDs[r.ID]; !ok {
			continue
		}
		relation := NormalizeRelation(r.Label)
		for _, in := range incoming[r.ID] {
			for _, out := range outgoing[r.ID] {
				if in.Source == out.Target {
					continue
				}
				typed = append(typed, typedEdge{
					source:     in.Source,
					target:     out.Target,
					relation:   relation,
					confidence: clamp01((weightOr(in.Weight, spliceDefaultWeight) + weightOr(out.Weight, spliceDefaultWeight)) / 2),
					evidence:   joinNonEmpty(" | ", in.Evidence, r.Label, out.Evidence),
					fact:       firstNonEmpty(in.Fact, out.Fact),
				})
			}
		}
	}

	aggregated := aggregate(typed, allByID, docs)

	kept := make([]state.GraphNode, 0, len(nodes)-len(relationIDs))
	removed := make([]string, 0, len(relationIDs))
	for _, n := range nodes {
		if _, rel := relationIDs[n.ID]; rel {
			removed = append(removed, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	byID := make(map[string]*state.GraphNode, len(kept))
	for i := range kept {
		byID[kept[i].ID] = &kept[i]
	}

	final := aggregated[:0]
	for _, e := range aggregated {
		if byID[e.Source] != nil && byID[e.Target] != nil {
			final = append(final, e)
		}
	}

	return &CollapsedGraph{
		Nodes:         kept,
		Edges:         final,
		NodeByID:      byID,
		RelationNodes: removed,
	}
}

func aggregate(typed []typedEdge, nodes map[string]*state.GraphNode, docs DocumentIndex) []AggregatedEdge {
	byKey := make(map[string]*AggregatedEdge, len(typed))
	for _, t := range typed {
		key := EdgeKey(t.source, t.target, t.relation)
		seen := edgeRecency(t, nodes, docs)
		agg, ok := byKey[key]
		if !ok {
			agg = &AggregatedEdge{
				ID:            key,
				Source:        t.source,
				Target:        t.target,
				Relation:      t.relation,
				Count:         1,
				Confidence:    t.confidence,
				MaxConfidence: t.confidence,
				LastSeenMs:    seen,
				Fact:          t.fact,
			}
			if t.evidence != "" {
				agg.Evidence = []string{t.evidence}
			}
			byKey[key] = agg
			continue
		}
		agg.Count++
		agg.Confidence = (agg.Confidence*float64(agg.Count-1) + t.confidence) / float64(agg.Count)
		if t.confidence > agg.MaxConfidence {
			agg.MaxConfidence = t.confidence
		}
		if t.evidence != "" {
			agg.Evidence = append(agg.Evidence, t.evidence)
		}
		if seen > agg.LastSeenMs {
			agg.LastSeenMs = seen
		}
		if agg.Fact == "" {
			agg.Fact = t.fact
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]AggregatedEdge, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}

// edgeRecency is the newest mtime among the documents named in the edge
// evidence and in both endpoints' provenance.
func edgeRecency(t typedEdge, nodes map[string]*state.GraphNode, docs DocumentIndex) int64 {
	var best int64
	consider := func(names []string) {
		for _, name := range names {
			if ms := docs.Lookup(name); ms > best {
				best = ms
			}
		}
	}
	consider(EvidenceProvenance(t.evidence))
	for _, id := range []string{t.source, t.target} {
		if n := nodes[id]; n != nil {
			consider(NodeProvenance(n))
		}
	}
	return best
}

func weightOr(w *float64, def float64) float64 {
	if w == nil {
		return def
	}
	return *w
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Neighbors returns the undirected adjacency of the collapsed graph with
// neighbor lists sorted for deterministic traversal.
func (g *CollapsedGraph) Neighbors() map[string][]string {
	adj := make(map[string]map[string]struct{}, len(g.Nodes))
	add := func(a, b string) {
		if adj[a] == nil {
			adj[a] = make(map[string]struct{})
		}
		adj[a][b] = struct{}{}
	}
	for _, e := range g.Edges {
		add(e.Source, e.Target)
		add(e.Target, e.Source)
	}
	out := make(map[string][]string, len(adj))
	for id, set := range adj {
		list := make([]string, 0, len(set))
		for n := range set {
			list = append(list, n)
		}
		sort.Strings(list)
		out[id] = list
	}
	return out
}

// IncidentEdges returns the aggregated edges touching id.
func (g *CollapsedGraph) IncidentEdges(id string) []AggregatedEdge {
	var out []AggregatedEdge
	for _, e := range g.Edges {
		if e.Source == id || e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// AsRawEdges converts aggregated edges back into raw edges, carrying the
// mean confidence as weight. Collapsing the result yields the same key set.
func (g *CollapsedGraph) AsRawEdges() []state.GraphEdge {
	out := make([]state.GraphEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		w := e.Confidence
		out = append(out, state.GraphEdge{
			ID:       e.ID,
			Source:   e.Source,
			Target:   e.Target,
			Relation: e.Relation,
			Weight:   &w,
			Evidence: strings.Join(e.Evidence, " | "),
			Fact:     e.Fact,
		})
	}
	return out
}
