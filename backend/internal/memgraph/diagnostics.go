package memgraph

import (
	"sort"
	"strings"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/state"
)

// FactRef points at the line a conflicting statement came from
type FactRef struct {
	Doc  string `json:"doc"`
	Line int    `json:"line"`
}

// ConflictGroup is a canonical statement that appears with different wording
type ConflictGroup struct {
	Key        string    `json:"key"`
	Statements []string  `json:"statements"`
	Refs       []FactRef `json:"refs"`
}

// DuplicateCluster is a set of nodes whose labels canonicalize identically
type DuplicateCluster struct {
	Key     string   `json:"key"`
	NodeIDs []string `json:"nodeIds"`
}

// MergeSuggestion is a pair of same-kind nodes with heavily overlapping labels
type MergeSuggestion struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Kind  string  `json:"kind"`
	Score float64 `json:"score"`
}

// Diagnostics is the conflict, duplicate and merge report for one graph
type Diagnostics struct {
	Conflicts  []ConflictGroup    `json:"conflicts"`
	Duplicates []DuplicateCluster `json:"duplicates"`
	Merges     []MergeSuggestion  `json:"merges"`

	conflictByKey map[string]*ConflictGroup
	duplicateOf   map[string]string
	mergeOf       map[string]struct{}
}

// Diagnose detects conflicting facts across documents, duplicate node
// labels and merge candidates.
//
// The merge scan compares every same-kind pair, O(n^2) in node count. That
// is fine for graphs of a few hundred nodes; larger graphs need shingle
// bucketing or an approximate nearest-neighbor index in front of it.
func Diagnose(g *CollapsedGraph, docs []state.SourceDocument) *Diagnostics {
	d := &Diagnostics{
		conflictByKey: make(map[string]*ConflictGroup),
		duplicateOf:   make(map[string]string),
		mergeOf:       make(map[string]struct{}),
	}
	d.detectConflicts(docs)
	d.detectDuplicates(g)
	d.suggestMerges(g)
	return d
}

func (d *Diagnostics) detectConflicts(docs []state.SourceDocument) {
	type group struct {
		statements []string
		seen       map[string]struct{}
		refs       []FactRef
	}
	groups := make(map[string]*group)
	for _, doc := range docs {
		for _, f := range doc.Facts {
			key := CanonicalText(firstNonEmpty(f.Canonical, f.Statement))
			if key == "" {
				continue
			}
			g, ok := groups[key]
			if !ok {
				g = &group{seen: make(map[string]struct{})}
				groups[key] = g
			}
			g.refs = append(g.refs, FactRef{Doc: firstNonEmpty(doc.Name, doc.Path), Line: f.Line})
			stmt := strings.TrimSpace(f.Statement)
			if _, dup := g.seen[stmt]; !dup {
				g.seen[stmt] = struct{}{}
				g.statements = append(g.statements, stmt)
			}
		}
	}

	keys := make([]string, 0, len(groups))
	for k, g := range groups {
		if len(g.statements) >= 2 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	d.Conflicts = make([]ConflictGroup, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		d.Conflicts = append(d.Conflicts, ConflictGroup{Key: k, Statements: g.statements, Refs: g.refs})
	}
	for i := range d.Conflicts {
		d.conflictByKey[d.Conflicts[i].Key] = &d.Conflicts[i]
	}
}

func (d *Diagnostics) detectDuplicates(g *CollapsedGraph) {
	byKey := make(map[string][]string)
	var order []string
	for _, n := range g.Nodes {
		key := CanonicalText(n.Label)
		if key == "" {
			continue
		}
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], n.ID)
	}
	sort.Strings(order)
	for _, key := range order {
		ids := byKey[key]
		if len(ids) < 2 {
			continue
		}
		d.Duplicates = append(d.Duplicates, DuplicateCluster{Key: key, NodeIDs: ids})
		for _, id := range ids {
			d.duplicateOf[id] = key
		}
	}
}

func (d *Diagnostics) suggestMerges(g *CollapsedGraph) {
	type candidate struct {
		id, kind string
		tokens   []string
	}
	cands := make([]candidate, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		key := CanonicalText(n.Label)
		if key == "" {
			continue
		}
		cands = append(cands, candidate{id: n.ID, kind: n.Kind, tokens: strings.Fields(key)})
	}

	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			a, b := cands[i], cands[j]
			if a.kind != b.kind {
				continue
			}
			score := TokenOverlap(a.tokens, b.tokens)
			if score < constants.MergeSuggestionThreshold {
				continue
			}
			d.Merges = append(d.Merges, MergeSuggestion{A: a.id, B: b.id, Kind: a.kind, Score: score})
			d.mergeOf[a.id] = struct{}{}
			d.mergeOf[b.id] = struct{}{}
		}
	}
	sort.SliceStable(d.Merges, func(i, j int) bool {
		if d.Merges[i].Score != d.Merges[j].Score {
			return d.Merges[i].Score > d.Merges[j].Score
		}
		if d.Merges[i].A != d.Merges[j].A {
			return d.Merges[i].A < d.Merges[j].A
		}
		return d.Merges[i].B < d.Merges[j].B
	})
}

// TokenOverlap is overlap / max(1, |A|+|B|-overlap) over distinct tokens.
func TokenOverlap(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	overlap := 0
	for t := range setB {
		if _, ok := setA[t]; ok {
			overlap++
		}
	}
	denom := len(setA) + len(setB) - overlap
	if denom < 1 {
		denom = 1
	}
	return float64(overlap) / float64(denom)
}

// ConflictFor returns the conflict group matching the node's canonical
// summary, falling back to its canonical label.
func (d *Diagnostics) ConflictFor(n *state.GraphNode) *ConflictGroup {
	if d == nil {
		return nil
	}
	if key := CanonicalText(n.Summary); key != "" {
		if g := d.conflictByKey[key]; g != nil {
			return g
		}
	}
	if key := CanonicalText(n.Label); key != "" {
		return d.conflictByKey[key]
	}
	return nil
}

// IsDuplicate reports whether the node belongs to a duplicate cluster
func (d *Diagnostics) IsDuplicate(id string) bool {
	_, ok := d.duplicateOf[id]
	return ok
}

// IsMergeCandidate reports whether the node appears in any merge suggestion
func (d *Diagnostics) IsMergeCandidate(id string) bool {
	_, ok := d.mergeOf[id]
	return ok
}

// MergesFor returns the merge suggestions involving id
func (d *Diagnostics) MergesFor(id string) []MergeSuggestion {
	var out []MergeSuggestion
	for _, m := range d.Merges {
		if m.A == id || m.B == id {
			out = append(out, m)
		}
	}
	return out
}
