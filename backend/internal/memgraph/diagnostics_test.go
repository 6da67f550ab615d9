package memgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mission-control/backend/internal/state"
)

func TestDiagnose_Conflicts(t *testing.T) {
	docs := []state.SourceDocument{
		{Name: "MEMORY.md", Facts: []state.SourceFact{
			{Statement: "Uses Postgres", Canonical: "database choice", Line: 3},
			{Statement: "Prefers tabs", Line: 9},
		}},
		{Name: "2026-01-02.md", Facts: []state.SourceFact{
			{Statement: "Uses MySQL", Canonical: "Database choice", Line: 7},
			{Statement: "Uses Postgres", Canonical: "database choice", Line: 8},
			{Statement: "Prefers tabs", Line: 2},
		}},
	}

	d := Diagnose(&CollapsedGraph{}, docs)

	require.Len(t, d.Conflicts, 1)
	c := d.Conflicts[0]
	assert.Equal(t, "database choice", c.Key)
	assert.Equal(t, []string{"Uses Postgres", "Uses MySQL"}, c.Statements)
	assert.Equal(t, []FactRef{
		{Doc: "MEMORY.md", Line: 3},
		{Doc: "2026-01-02.md", Line: 7},
		{Doc: "2026-01-02.md", Line: 8},
	}, c.Refs)
}

func TestDiagnose_DuplicatesAndMerges(t *testing.T) {
	g := Collapse([]state.GraphNode{
		node("p1", "The Project", "project"),
		node("p2", "project", "project"),
		node("c1", "memory graph pipeline stage", "concept"),
		node("c2", "Memory graph pipeline", "concept"),
		node("t1", "memory graph pipeline", "tool"),
		node("x", "!!!", "concept"),
	}, nil, nil)

	d := Diagnose(g, nil)

	require.Len(t, d.Duplicates, 2)
	assert.Equal(t, DuplicateCluster{Key: "memory graph pipeline", NodeIDs: []string{"c2", "t1"}}, d.Duplicates[0])
	assert.Equal(t, DuplicateCluster{Key: "project", NodeIDs: []string{"p1", "p2"}}, d.Duplicates[1])
	assert.True(t, d.IsDuplicate("p1"))
	assert.False(t, d.IsDuplicate("c1"))

	// p1/p2 overlap fully; c1/c2 overlap 3 of 4 tokens; t1 differs in kind
	require.Len(t, d.Merges, 2)
	assert.Equal(t, MergeSuggestion{A: "p1", B: "p2", Kind: "project", Score: 1}, d.Merges[0])
	assert.Equal(t, "c1", d.Merges[1].A)
	assert.Equal(t, "c2", d.Merges[1].B)
	assert.InDelta(t, 0.75, d.Merges[1].Score, 1e-9)
	assert.True(t, d.IsMergeCandidate("c2"))
	assert.False(t, d.IsMergeCandidate("t1"))
	assert.Len(t, d.MergesFor("c1"), 1)
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 1},
		{"disjoint", []string{"a"}, []string{"b"}, 0},
		{"half", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3},
		{"empty", nil, nil, 0},
		{"repeats ignored", []string{"a", "a"}, []string{"a"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TokenOverlap(tt.a, tt.b), 1e-9)
		})
	}
}

func TestConflictFor(t *testing.T) {
	docs := []state.SourceDocument{{Name: "a.md", Facts: []state.SourceFact{
		{Statement: "Ship in May", Canonical: "release date"},
		{Statement: "Ship in June", Canonical: "release date"},
	}}}
	d := Diagnose(&CollapsedGraph{}, docs)

	bySummary := state.GraphNode{ID: "n1", Label: "Launch", Summary: "The release date"}
	byLabel := state.GraphNode{ID: "n2", Label: "Release date", Summary: "something else"}
	unrelated := state.GraphNode{ID: "n3", Label: "Other"}

	require.NotNil(t, d.ConflictFor(&bySummary))
	require.NotNil(t, d.ConflictFor(&byLabel))
	assert.Nil(t, d.ConflictFor(&unrelated))

	var nilDiag *Diagnostics
	assert.Nil(t, nilDiag.ConflictFor(&bySummary))
}

func TestCanonicalText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"The User prefers  Go!", "prefers go"},
		{"  ", ""},
		{"Uses Postgres, v15", "uses postgres v15"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalText(tt.in), tt.in)
	}
}

func TestNormalizeRelation(t *testing.T) {
	assert.Equal(t, "depends_on", NormalizeRelation("  Depends--On "))
	assert.Equal(t, DefaultRelation, NormalizeRelation("!!"))
	assert.Equal(t, "part_of", NormalizeRelation("_part_of_"))
}

func TestEvidenceProvenance(t *testing.T) {
	got := EvidenceProvenance("see memory/Notes.md:12 | (plan.md), other.txt")
	assert.Equal(t, []string{"notes.md", "plan.md"}, got)
}
