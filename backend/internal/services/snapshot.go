package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/memgraph"
	"mission-control/backend/internal/state"
)

type kindSection struct {
	kind  string
	title string
}

// kindTitles orders and names the snapshot sections; other kinds follow alphabetically
var kindTitles = []kindSection{
	{"profile", "Profile"},
	{"preference", "Preferences"},
	{"project", "Projects"},
	{"task", "Tasks"},
	{"decision", "Decisions"},
	{"person", "People"},
	{"organization", "Organizations"},
	{"topic", "Topics"},
	{"concept", "Concepts"},
	{"system", "Systems"},
	{"tool", "Tools"},
	{"fact", "Facts"},
	{"event", "Events"},
}

// RenderSnapshot renders the collapsed graph as MEMORY.md: live nodes grouped
// by kind, then relations, open conflicts and deprecated labels. File nodes are
// skipped. Conflicts and deprecated labels are written as non-bullet lines so a
// rescan of the snapshot does not read them back as facts.
func RenderSnapshot(payload *state.GraphPayload, docs []state.SourceDocument) string {
	g := memgraph.Collapse(payload.Nodes, payload.Edges, memgraph.NewDocumentIndex(docs))
	diag := memgraph.Diagnose(g, docs)

	var b strings.Builder
	b.WriteString("# MEMORY\n\n")
	fmt.Fprintf(&b, "_Published from the memory graph, version %d, updated %s._\n", payload.Version, payload.UpdatedAt)

	byKind := make(map[string][]state.GraphNode)
	var deprecated []state.GraphNode
	for _, n := range g.Nodes {
		if n.Kind == "file" {
			continue
		}
		if n.HasTag(constants.TagDeprecated) {
			deprecated = append(deprecated, n)
			continue
		}
		byKind[n.Kind] = append(byKind[n.Kind], n)
	}

	for _, section := range orderedKinds(byKind) {
		nodes := byKind[section.kind]
		sort.SliceStable(nodes, func(i, j int) bool {
			if nodes[i].Confidence != nodes[j].Confidence {
				return nodes[i].Confidence > nodes[j].Confidence
			}
			return nodes[i].Label < nodes[j].Label
		})
		fmt.Fprintf(&b, "\n## %s\n\n", section.title)
		for _, n := range nodes {
			b.WriteString(bullet(n))
		}
	}

	relations := relationLines(g)
	if len(relations) > 0 {
		b.WriteString("\n## Relations\n\n")
		for _, line := range relations {
			b.WriteString(line)
		}
	}

	if len(diag.Conflicts) > 0 {
		b.WriteString("\n## Open conflicts\n\n")
		for _, c := range diag.Conflicts {
			fmt.Fprintf(&b, "> %s: %s\n", c.Key, strings.Join(c.Statements, " / "))
		}
	}

	if len(deprecated) > 0 {
		b.WriteString("\n## Deprecated\n\n")
		labels := make([]string, 0, len(deprecated))
		for _, n := range deprecated {
			labels = append(labels, "~~"+n.Label+"~~")
		}
		b.WriteString(strings.Join(labels, ", ") + "\n")
	}

	return b.String()
}

func orderedKinds(byKind map[string][]state.GraphNode) []kindSection {
	var out []kindSection
	known := make(map[string]struct{}, len(kindTitles))
	for _, kt := range kindTitles {
		known[kt.kind] = struct{}{}
		if len(byKind[kt.kind]) > 0 {
			out = append(out, kt)
		}
	}
	var rest []string
	for kind := range byKind {
		if _, ok := known[kind]; !ok {
			rest = append(rest, kind)
		}
	}
	sort.Strings(rest)
	for _, kind := range rest {
		title := kind
		if title == "" {
			title = "Other"
		} else {
			title = strings.ToUpper(title[:1]) + title[1:]
		}
		out = append(out, kindSection{kind: kind, title: title})
	}
	return out
}

func bullet(n state.GraphNode) string {
	label := n.Label
	if n.HasTag(constants.TagConfirmed) {
		label += " ✓"
	}
	summary := strings.Join(strings.Fields(n.Summary), " ")
	if summary == "" || summary == n.Label {
		return fmt.Sprintf("- **%s**\n", label)
	}
	return fmt.Sprintf("- **%s**: %s\n", label, summary)
}

// relationLines lists aggregated edges between non-file nodes, skipping the
// structural contains/about edges of bootstrap graphs
func relationLines(g *memgraph.CollapsedGraph) []string {
	var out []string
	for _, e := range g.Edges {
		if e.Relation == "contains" || e.Relation == "about" {
			continue
		}
		src, okS := g.NodeByID[e.Source]
		dst, okT := g.NodeByID[e.Target]
		if !okS || !okT || src.Kind == "file" || dst.Kind == "file" {
			continue
		}
		if src.HasTag(constants.TagDeprecated) || dst.HasTag(constants.TagDeprecated) {
			continue
		}
		out = append(out, fmt.Sprintf("- %s %s %s\n", src.Label, strings.ReplaceAll(e.Relation, "_", " "), dst.Label))
	}
	return out
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
