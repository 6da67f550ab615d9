package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/state"
)

func TestRenderSnapshot(t *testing.T) {
	payload := &state.GraphPayload{
		Version:   3,
		UpdatedAt: "2026-01-01T00:00:00Z",
		Nodes: []state.GraphNode{
			{ID: "f1", Label: "MEMORY.md", Kind: "file"},
			{ID: "p1", Label: "Owner", Kind: "profile", Summary: "Primary   user", Confidence: 0.9, Tags: []string{constants.TagConfirmed}},
			{ID: "t1", Label: "Vim", Kind: "tool", Summary: "Vim", Confidence: 0.7},
			{ID: "x1", Label: "Gadget", Kind: "widget", Confidence: 0.5},
			{ID: "d1", Label: "Legacy sync", Kind: "concept", Tags: []string{constants.TagDeprecated}},
		},
		Edges: []state.GraphEdge{
			{ID: "e1", Source: "p1", Target: "t1", Relation: "uses_tool"},
			{ID: "e2", Source: "f1", Target: "t1", Relation: "contains"},
			{ID: "e3", Source: "p1", Target: "d1", Relation: "uses_tool"},
		},
	}
	docs := []state.SourceDocument{
		{Name: "MEMORY.md", Facts: []state.SourceFact{{Statement: "Editor: vim", Canonical: "editor", Line: 3}}},
		{Name: "today.md", Facts: []state.SourceFact{{Statement: "Editor: emacs", Canonical: "editor", Line: 1}}},
	}

	out := RenderSnapshot(payload, docs)

	assert.True(t, strings.HasPrefix(out, "# MEMORY\n"))
	assert.Contains(t, out, "version 3")
	assert.Contains(t, out, "- **Owner ✓**: Primary user\n")
	assert.Contains(t, out, "- **Vim**\n")
	assert.Contains(t, out, "## Widget\n")
	assert.Contains(t, out, "- Owner uses tool Vim\n")
	assert.Contains(t, out, "> editor: Editor: vim / Editor: emacs\n")
	assert.Contains(t, out, "~~Legacy sync~~")
	assert.NotContains(t, out, "**MEMORY.md**")
	assert.NotContains(t, out, "Owner uses tool Legacy sync")

	// known kinds come before unknown ones
	assert.Less(t, strings.Index(out, "## Profile"), strings.Index(out, "## Tools"))
	assert.Less(t, strings.Index(out, "## Tools"), strings.Index(out, "## Widget"))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "MEMORY.md")

	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
