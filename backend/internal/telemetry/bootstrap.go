package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/memgraph"
	"mission-control/backend/internal/state"
)

// Bootstrap node kinds and relations
const (
	KindFile  = "file"
	KindTopic = "topic"
	KindFact  = "fact"

	RelationContains = "contains"
	RelationAbout    = "about"
)

const (
	fileConfidence  = 0.7
	topicConfidence = 0.6
	maxLabelRunes   = 80
	maxSummaryRunes = 160
)

// BuildGraph derives a graph from telemetry documents: a file node per document,
// a fact node per bullet, and a topic node per distinct topic. Ids are stable
// across rebuilds, so positions and review tags from previous carry over.
func BuildGraph(telemetry *state.GraphTelemetry, previous *state.GraphPayload, now time.Time) *state.GraphPayload {
	payload := &state.GraphPayload{
		UpdatedAt: now.UTC().Format(time.RFC3339),
		Nodes:     []state.GraphNode{},
		Edges:     []state.GraphEdge{},
	}
	if previous != nil {
		payload.Version = previous.Version
	}
	if telemetry == nil {
		return payload
	}

	type topicEntry struct {
		node  state.GraphNode
		files map[string]struct{}
	}
	topics := make(map[string]*topicEntry)
	var topicOrder []string
	edgeSeen := make(map[string]struct{})

	addEdge := func(source, target, relation, evidence, fact string) {
		id := "e-" + shortHash(source, target, relation)
		if _, dup := edgeSeen[id]; dup {
			return
		}
		edgeSeen[id] = struct{}{}
		payload.Edges = append(payload.Edges, state.GraphEdge{
			ID:       id,
			Source:   source,
			Target:   target,
			Relation: relation,
			Evidence: evidence,
			Fact:     fact,
		})
	}

	for _, doc := range telemetry.Documents {
		fileTag := "file:" + doc.Name
		fileID := "file-" + shortHash(doc.Source, doc.Path)

		tags := []string{fileTag, "source:" + doc.Source}
		for _, t := range doc.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		payload.Nodes = append(payload.Nodes, state.GraphNode{
			ID:         fileID,
			Label:      doc.Name,
			Kind:       KindFile,
			Summary:    fileSummary(doc),
			Confidence: fileConfidence,
			Source:     doc.Name,
			Tags:       tags,
		})

		for _, fact := range doc.Facts {
			topicKey := memgraph.CanonicalText(fact.Topic)
			if topicKey == "" {
				topicKey = memgraph.CanonicalText(doc.Name)
			}
			topicID := "topic-" + shortHash(topicKey)
			entry, ok := topics[topicID]
			if !ok {
				entry = &topicEntry{
					node: state.GraphNode{
						ID:         topicID,
						Label:      firstNonEmpty(fact.Topic, doc.Name),
						Kind:       KindTopic,
						Confidence: topicConfidence,
					},
					files: make(map[string]struct{}),
				}
				topics[topicID] = entry
				topicOrder = append(topicOrder, topicID)
			}
			entry.files[doc.Name] = struct{}{}

			factID := "fact-" + shortHash(doc.Source, doc.Path, fact.Statement)
			evidence := fmt.Sprintf("%s:%d", doc.Name, fact.Line)
			payload.Nodes = append(payload.Nodes, state.GraphNode{
				ID:         factID,
				Label:      truncate(fact.Statement, maxLabelRunes),
				Kind:       KindFact,
				Summary:    fact.Statement,
				Confidence: fact.ConfidenceHint,
				Source:     doc.Name,
				Tags:       []string{fileTag},
			})
			addEdge(fileID, factID, RelationContains, evidence, "")
			addEdge(factID, topicID, RelationAbout, evidence, fact.Statement)
		}
	}

	for _, id := range topicOrder {
		entry := topics[id]
		files := make([]string, 0, len(entry.files))
		for f := range entry.files {
			files = append(files, f)
		}
		sort.Strings(files)
		entry.node.Tags = make([]string, 0, len(files))
		for _, f := range files {
			entry.node.Tags = append(entry.node.Tags, "file:"+f)
		}
		entry.node.Summary = fmt.Sprintf("Mentioned in %d document(s): %s", len(files), strings.Join(files, ", "))
		payload.Nodes = append(payload.Nodes, entry.node)
	}

	dedupeNodes(payload)
	carryOver(payload, previous)
	return payload
}

// BootstrapFiles lists the document names a bootstrap graph was built from
func BootstrapFiles(telemetry *state.GraphTelemetry) []string {
	files := []string{}
	if telemetry == nil {
		return files
	}
	for _, doc := range telemetry.Documents {
		files = append(files, doc.Path)
	}
	return files
}

// dedupeNodes keeps the first node for each id; one document can repeat a bullet
func dedupeNodes(p *state.GraphPayload) {
	seen := make(map[string]struct{}, len(p.Nodes))
	out := p.Nodes[:0]
	for _, n := range p.Nodes {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	p.Nodes = out
}

// carryOver keeps saved positions and review tags of nodes that survive a rebuild
func carryOver(p *state.GraphPayload, previous *state.GraphPayload) {
	if previous == nil {
		return
	}
	for i := range p.Nodes {
		old, ok := previous.NodeByID(p.Nodes[i].ID)
		if !ok {
			continue
		}
		if old.X != nil && old.Y != nil {
			p.Nodes[i].X = state.Float(*old.X)
			p.Nodes[i].Y = state.Float(*old.Y)
		}
		for _, tag := range []string{constants.TagConfirmed, constants.TagDeprecated} {
			if old.HasTag(tag) && !p.Nodes[i].HasTag(tag) {
				p.Nodes[i].Tags = append(p.Nodes[i].Tags, tag)
				p.Nodes[i].Confidence = old.Confidence
			}
		}
	}
}

func fileSummary(doc state.SourceDocument) string {
	if len(doc.Chunks) > 0 {
		first := strings.Join(strings.Fields(doc.Chunks[0].Text), " ")
		if first != "" {
			return truncate(first, maxSummaryRunes)
		}
	}
	return fmt.Sprintf("%d sections, %d facts", len(doc.Chunks), len(doc.Facts))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
