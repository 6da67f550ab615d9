package memgraph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"mission-control/backend/internal/constants"
)

// Layer selects the base node set of the canvas
type Layer string

const (
	LayerOverview  Layer = "overview"
	LayerTopic     Layer = "topic"
	LayerForensics Layer = "forensics"
)

// Lens restricts the canvas to a family of node kinds
type Lens string

const (
	LensTopic    Lens = "topic"
	LensEntity   Lens = "entity"
	LensDecision Lens = "decision"
	LensFile     Lens = "file"
)

// TimeRange bounds node and edge recency
type TimeRange string

const (
	TimeRange7d  TimeRange = "7d"
	TimeRange30d TimeRange = "30d"
	TimeRange90d TimeRange = "90d"
	TimeRangeAll TimeRange = "all"
)

// Days returns the window length, or 0 for all time
func (t TimeRange) Days() int {
	switch t {
	case TimeRange7d:
		return 7
	case TimeRange30d:
		return 30
	case TimeRange90d:
		return 90
	}
	return 0
}

var lensKinds = map[Lens]map[string]struct{}{
	LensTopic:    kindSet("topic", "concept", "system", "project", "tool", "fact"),
	LensEntity:   kindSet("person", "organization", "tool", "project", "profile", "concept", "system"),
	LensDecision: kindSet("task", "event", "preference", "fact", "project"),
	LensFile:     kindSet("file", "document", "source", "fact", "topic"),
}

var overviewKinds = kindSet("topic", "concept", "system")

func kindSet(kinds ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		out[k] = struct{}{}
	}
	return out
}

// Fallback levels of the scope filter
const (
	FallbackNone    = "none"
	FallbackRelaxed = "relaxed"
	FallbackAll     = "all"
)

// FilterConfig is the complete UI filter state. Treat it as a value: build a
// new one instead of mutating a shared one.
type FilterConfig struct {
	Layer               Layer           `json:"layer"`
	Lens                Lens            `json:"lens"`
	Query               string          `json:"query"`
	ConfidenceThreshold float64         `json:"confidenceThreshold"`
	TimeRange           TimeRange       `json:"timeRange"`
	UsedInLastNChats    int             `json:"usedInLastNChats"`
	ConflictsOnly       bool            `json:"conflictsOnly"`
	LowProvenanceOnly   bool            `json:"lowProvenanceOnly"`
	ShowThreeHops       bool            `json:"showThreeHops"`
	EnabledRelations    map[string]bool `json:"enabledRelations,omitempty"` // absent means enabled
	SelectedNode        string          `json:"selectedNode,omitempty"`
	SelectedTopic       string          `json:"selectedTopic,omitempty"`
	PinnedIDs           []string        `json:"pinnedIds,omitempty"`
}

// DefaultFilterConfig is the filter state of a fresh dashboard
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Layer:     LayerTopic,
		Lens:      LensTopic,
		TimeRange: TimeRangeAll,
	}
}

// RelationEnabled reports whether edges of relation are shown
func (c FilterConfig) RelationEnabled(relation string) bool {
	enabled, ok := c.EnabledRelations[relation]
	return !ok || enabled
}

// FocusID is the node hop distances are measured from
func (c FilterConfig) FocusID() string {
	return firstNonEmpty(c.SelectedNode, c.SelectedTopic)
}

// Key fingerprints the config for memoisation. Equal configs yield equal keys.
func (c FilterConfig) Key() string {
	relations := make([]string, 0, len(c.EnabledRelations))
	for r, on := range c.EnabledRelations {
		relations = append(relations, fmt.Sprintf("%s=%t", r, on))
	}
	sort.Strings(relations)
	return fmt.Sprintf("%s|%s|%q|%g|%s|%d|%t|%t|%t|%s|%q|%q|%s",
		c.Layer, c.Lens, strings.TrimSpace(strings.ToLower(c.Query)), c.ConfidenceThreshold, c.TimeRange,
		c.UsedInLastNChats, c.ConflictsOnly, c.LowProvenanceOnly, c.ShowThreeHops,
		strings.Join(relations, ","), c.SelectedNode, c.SelectedTopic, strings.Join(c.PinnedIDs, ","))
}

// Scope is the ranked, capped subset of the collapsed graph to render.
type Scope struct {
	NodeIDs  []string         `json:"nodeIds"`
	Edges    []AggregatedEdge `json:"edges"`
	Hops     map[string]int   `json:"hops"` // -1 when unreachable from the focus
	FocusID  string           `json:"focusId,omitempty"`
	Fallback string           `json:"fallback"`
	// PathIDs are the nodes stitched in to connect pinned nodes
	PathIDs []string `json:"pathIds,omitempty"`
}

// Contains reports whether id is visible
func (s *Scope) Contains(id string) bool {
	for _, n := range s.NodeIDs {
		if n == id {
			return true
		}
	}
	return false
}

// SelectScope picks the visible nodes and edges for cfg. It is a pure
// function of its inputs.
func SelectScope(g *CollapsedGraph, insights map[string]NodeInsight, cfg FilterConfig, nowMs int64) *Scope {
	adj := g.Neighbors()
	focus := cfg.FocusID()
	if g.NodeByID[focus] == nil {
		focus = ""
	}

	base := layerBase(g, adj, cfg)
	query := strings.TrimSpace(strings.ToLower(cfg.Query))
	cutoff := int64(0)
	if days := cfg.TimeRange.Days(); days > 0 {
		cutoff = nowMs - int64(days)*dayMs
	}

	var eligible, relaxed []string
	for _, n := range g.Nodes {
		if _, ok := base[n.ID]; !ok {
			continue
		}
		ins := insights[n.ID]
		if !withinLens(cfg.Lens, n.Kind, ins) {
			continue
		}
		relaxed = append(relaxed, n.ID)

		if query != "" {
			haystack := strings.ToLower(strings.Join([]string{n.Label, n.Summary, n.Kind, strings.Join(n.Tags, " ")}, " "))
			if !strings.Contains(haystack, query) {
				continue
			}
		}
		if n.Confidence < cfg.ConfidenceThreshold {
			continue
		}
		if cutoff > 0 && ins.RecencyMs > 0 && ins.RecencyMs < cutoff {
			continue
		}
		if cfg.UsedInLastNChats > 0 && ins.RetrievalInWindow == 0 {
			continue
		}
		if cfg.ConflictsOnly && ins.Conflicts == 0 {
			continue
		}
		if cfg.LowProvenanceOnly && !ins.LowProvenance {
			continue
		}
		eligible = append(eligible, n.ID)
	}

	fallback := FallbackNone
	if len(eligible) == 0 {
		eligible = relaxed
		fallback = FallbackRelaxed
		if len(eligible) == 0 {
			eligible = make([]string, 0, len(g.Nodes))
			for _, n := range g.Nodes {
				eligible = append(eligible, n.ID)
			}
			fallback = FallbackAll
		}
	}

	var forced []string
	for _, id := range append([]string{cfg.SelectedNode, cfg.SelectedTopic}, cfg.PinnedIDs...) {
		if g.NodeByID[id] != nil {
			forced = append(forced, id)
		}
	}

	rankByUsefulness(eligible, insights)
	selected := pickWithCap(forced, eligible, constants.MaxVisibleNodes)

	var pathIDs []string
	pinned := existing(g, cfg.PinnedIDs)
	if len(pinned) >= 2 {
		pathIDs = pinnedPaths(adj, pinned)
		priority := append([]string(nil), pathIDs...)
		rankByUsefulness(priority, insights)
		rest := append([]string(nil), selected...)
		rankByUsefulness(rest, insights)
		selected = pickWithCap(append(forced, priority...), rest, constants.MaxVisibleNodes)
	}

	visible := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		visible[id] = struct{}{}
	}
	edges := selectEdges(g.Edges, visible, cfg, cutoff, nowMs)
	hops := hopDistances(focus, selected, edges)

	if !cfg.ShowThreeHops && focus != "" {
		keep := make(map[string]struct{}, len(pinned)+len(pathIDs))
		for _, id := range append(pinned, pathIDs...) {
			keep[id] = struct{}{}
		}
		trimmed := selected[:0:0]
		for _, id := range selected {
			_, exempt := keep[id]
			if h := hops[id]; h >= constants.HopTrimDistance && !exempt {
				delete(visible, id)
				delete(hops, id)
				continue
			}
			trimmed = append(trimmed, id)
		}
		selected = trimmed
		kept := edges[:0:0]
		for _, e := range edges {
			_, s := visible[e.Source]
			_, t := visible[e.Target]
			if s && t {
				kept = append(kept, e)
			}
		}
		edges = kept
	}

	return &Scope{
		NodeIDs:  selected,
		Edges:    edges,
		Hops:     hops,
		FocusID:  focus,
		Fallback: fallback,
		PathIDs:  pathIDs,
	}
}

func layerBase(g *CollapsedGraph, adj map[string][]string, cfg FilterConfig) map[string]struct{} {
	all := func() map[string]struct{} {
		out := make(map[string]struct{}, len(g.Nodes))
		for _, n := range g.Nodes {
			out[n.ID] = struct{}{}
		}
		return out
	}

	switch cfg.Layer {
	case LayerOverview:
		out := make(map[string]struct{})
		for _, n := range g.Nodes {
			if _, ok := overviewKinds[strings.ToLower(n.Kind)]; ok {
				out[n.ID] = struct{}{}
			}
		}
		return out
	case LayerForensics:
		focus := cfg.FocusID()
		if g.NodeByID[focus] == nil {
			return all()
		}
		return bfsWithin(adj, focus, constants.ForensicsHops)
	default:
		topic := cfg.SelectedTopic
		if g.NodeByID[topic] == nil {
			return all()
		}
		return bfsWithin(adj, topic, 1)
	}
}

func withinLens(lens Lens, kind string, ins NodeInsight) bool {
	kinds, ok := lensKinds[lens]
	if !ok {
		return true
	}
	if _, ok := kinds[strings.ToLower(kind)]; ok {
		return true
	}
	return lens == LensDecision && ins.Conflicts >= 1
}

func bfsWithin(adj map[string][]string, start string, depth int) map[string]struct{} {
	seen := map[string]struct{}{start: {}}
	frontier := []string{start}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, n := range adj[id] {
				if _, ok := seen[n]; ok {
					continue
				}
				seen[n] = struct{}{}
				next = append(next, n)
			}
		}
		frontier = next
	}
	return seen
}

// rankByUsefulness sorts ids by usefulness descending, then id ascending.
func rankByUsefulness(ids []string, insights map[string]NodeInsight) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := insights[ids[i]].Usefulness, insights[ids[j]].Usefulness
		if a != b {
			return a > b
		}
		return ids[i] < ids[j]
	})
}

// pickWithCap takes forced ids first, fills with ranked ids and truncates to
// limit. Duplicates are skipped.
func pickWithCap(forced, ranked []string, limit int) []string {
	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, list := range [][]string{forced, ranked} {
		for _, id := range list {
			if len(out) >= limit {
				return out
			}
			if _, dup := seen[id]; dup || id == "" {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func existing(g *CollapsedGraph, ids []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || g.NodeByID[id] == nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// pinnedPaths returns the union of shortest-path nodes between every pinned
// pair, pinned nodes excluded, in first-seen order.
func pinnedPaths(adj map[string][]string, pinned []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range pinned {
		seen[p] = struct{}{}
	}
	for i := 0; i < len(pinned); i++ {
		for j := i + 1; j < len(pinned); j++ {
			for _, id := range ShortestPath(adj, pinned[i], pinned[j]) {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// ShortestPath is an unweighted BFS path from a to b inclusive, or nil when
// b is unreachable.
func ShortestPath(adj map[string][]string, a, b string) []string {
	if a == b {
		return []string{a}
	}
	prev := map[string]string{a: ""}
	queue := []string{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range adj[cur] {
			if _, ok := prev[n]; ok {
				continue
			}
			prev[n] = cur
			if n == b {
				path := []string{b}
				for at := cur; at != ""; at = prev[at] {
					path = append(path, at)
				}
				for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
					path[l], path[r] = path[r], path[l]
				}
				return path
			}
			queue = append(queue, n)
		}
	}
	return nil
}

// EdgeScore ranks candidate edges for display.
func EdgeScore(e AggregatedEdge, nowMs int64) float64 {
	countScore := math.Min(1, math.Log2(float64(e.Count)+1)/3)
	return 0.45*e.Confidence + 0.30*countScore + 0.25*RecencyScore(e.LastSeenMs, nowMs)
}

func selectEdges(edges []AggregatedEdge, visible map[string]struct{}, cfg FilterConfig, cutoff, nowMs int64) []AggregatedEdge {
	type scored struct {
		edge  AggregatedEdge
		score float64
	}
	var cands []scored
	for _, e := range edges {
		if _, ok := visible[e.Source]; !ok {
			continue
		}
		if _, ok := visible[e.Target]; !ok {
			continue
		}
		if !cfg.RelationEnabled(e.Relation) {
			continue
		}
		if e.Confidence < cfg.ConfidenceThreshold {
			continue
		}
		if cutoff > 0 && e.LastSeenMs > 0 && e.LastSeenMs < cutoff {
			continue
		}
		cands = append(cands, scored{edge: e, score: EdgeScore(e, nowMs)})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].edge.ID < cands[j].edge.ID
	})
	if len(cands) > constants.MaxVisibleEdges {
		cands = cands[:constants.MaxVisibleEdges]
	}
	out := make([]AggregatedEdge, len(cands))
	for i, c := range cands {
		out[i] = c.edge
	}
	return out
}

// hopDistances runs an undirected BFS from focus over the selected subgraph.
// Every selected node gets an entry; unreachable nodes get -1.
func hopDistances(focus string, selected []string, edges []AggregatedEdge) map[string]int {
	hops := make(map[string]int, len(selected))
	for _, id := range selected {
		hops[id] = -1
	}
	if _, ok := hops[focus]; !ok {
		return hops
	}
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}
	hops[focus] = 0
	queue := []string{focus}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range adj[cur] {
			if hops[n] != -1 {
				continue
			}
			hops[n] = hops[cur] + 1
			queue = append(queue, n)
		}
	}
	return hops
}
