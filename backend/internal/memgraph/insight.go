package memgraph

import (
	"math"
	"sort"
	"strings"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/state"
)

const dayMs = int64(24 * 60 * 60 * 1000)

// Usefulness ranking policy. Changing these changes every ranking the
// dashboard shows.
const (
	weightRetrieval  = 0.28
	weightRecency    = 0.20
	weightConsistent = 0.18
	weightProvenance = 0.16
	weightTask       = 0.10
	weightBreadth    = 0.08
)

// NodeInsight is the derived usefulness profile of one node
type NodeInsight struct {
	Usefulness         float64  `json:"usefulness"`
	RetrievalFrequency float64  `json:"retrievalFrequency"`
	RetrievalRaw       int      `json:"retrievalRaw"`
	RetrievalInWindow  int      `json:"retrievalInWindow"`
	RecencyMs          int64    `json:"recencyMs"`
	RecencyScore       float64  `json:"recencyScore"`
	ConflictRate       float64  `json:"conflictRate"`
	Conflicts          int      `json:"conflicts"`
	ProvenanceQuality  float64  `json:"provenanceQuality"`
	TaskRelevance      float64  `json:"taskRelevance"`
	Breadth            float64  `json:"breadth"`
	Sources            []string `json:"sources"`
	LowProvenance      bool     `json:"lowProvenance"`
	Stale              bool     `json:"stale"`
}

// InsightOptions are the non-graph inputs of the scorer
type InsightOptions struct {
	NowMs            int64
	UsedInLastNChats int // 0 disables the window; insight still uses the full list
}

// RecencyScore maps the age of a timestamp onto a step function.
// Zero means unknown.
func RecencyScore(recencyMs, nowMs int64) float64 {
	if recencyMs <= 0 {
		return 0.25
	}
	days := float64(nowMs-recencyMs) / float64(dayMs)
	switch {
	case days <= 3:
		return 1.0
	case days <= 14:
		return 0.82
	case days <= 30:
		return 0.64
	case days <= 90:
		return 0.38
	default:
		return 0.16
	}
}

// UsefulnessScore combines the insight components with the fixed ranking weights.
func UsefulnessScore(retrieval, recency, conflictRate, provenance, task, breadth float64) float64 {
	return clamp01(weightRetrieval*retrieval +
		weightRecency*recency +
		weightConsistent*(1-conflictRate) +
		weightProvenance*provenance +
		weightTask*task +
		weightBreadth*breadth)
}

// TaskRelevance is the kind-keyed prior of how actionable a node is
func TaskRelevance(kind string, hasActionItem bool) float64 {
	switch strings.ToLower(kind) {
	case "task":
		return 1.0
	case "project":
		return 0.84
	case "preference", "profile":
		return 0.76
	}
	if hasActionItem {
		return 0.88
	}
	switch strings.ToLower(kind) {
	case "concept", "tool":
		return 0.65
	case "fact":
		return 0.62
	case "topic":
		return 0.58
	}
	return 0.4
}

type chatText struct {
	lower string
}

// ScoreInsights computes a fresh NodeInsight for every collapsed node.
func ScoreInsights(g *CollapsedGraph, diag *Diagnostics, telemetry *state.GraphTelemetry, opts InsightOptions) map[string]NodeInsight {
	var docs DocumentIndex
	var messages []chatText
	if telemetry != nil {
		docs = NewDocumentIndex(telemetry.Documents)
		messages = make([]chatText, len(telemetry.RecentMessages))
		for i, m := range telemetry.RecentMessages {
			messages[i] = chatText{lower: strings.ToLower(m.Text)}
		}
	}
	window := opts.UsedInLastNChats
	if window < 0 || window > len(messages) {
		window = len(messages)
	}

	type incident struct {
		relations map[string]struct{}
		neighbors map[string]struct{}
		sources   map[string]struct{}
		edges     int
		lastSeen  int64
		action    bool
	}
	inc := make(map[string]*incident, len(g.Nodes))
	get := func(id string) *incident {
		x := inc[id]
		if x == nil {
			x = &incident{
				relations: make(map[string]struct{}),
				neighbors: make(map[string]struct{}),
				sources:   make(map[string]struct{}),
			}
			inc[id] = x
		}
		return x
	}
	for _, e := range g.Edges {
		evidence := EvidenceProvenance(strings.Join(e.Evidence, " | "))
		for _, pair := range [2][2]string{{e.Source, e.Target}, {e.Target, e.Source}} {
			x := get(pair[0])
			x.relations[e.Relation] = struct{}{}
			x.neighbors[pair[1]] = struct{}{}
			x.edges++
			if e.LastSeenMs > x.lastSeen {
				x.lastSeen = e.LastSeenMs
			}
			if e.Relation == "action_item" {
				x.action = true
			}
			for _, s := range evidence {
				x.sources[s] = struct{}{}
			}
		}
	}

	retrievalRaw := make(map[string]int, len(g.Nodes))
	retrievalWindow := make(map[string]int, len(g.Nodes))
	maxRetrieval := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		label := CanonicalText(n.Label)
		summary := CanonicalText(n.Summary)
		raw, inWindow := 0, 0
		for mi, m := range messages {
			hit := (label != "" && strings.Contains(m.lower, label)) ||
				(len(summary) >= 5 && strings.Contains(m.lower, summary))
			if !hit {
				continue
			}
			raw++
			if mi < window {
				inWindow++
			}
		}
		retrievalRaw[n.ID] = raw
		retrievalWindow[n.ID] = inWindow
		if raw > maxRetrieval {
			maxRetrieval = raw
		}
	}
	retrievalDenom := float64(maxRetrieval)
	if retrievalDenom < 1 {
		retrievalDenom = 1
	}

	out := make(map[string]NodeInsight, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		x := get(n.ID)
		for _, s := range NodeProvenance(n) {
			x.sources[s] = struct{}{}
		}

		sources := make([]string, 0, len(x.sources))
		recency := x.lastSeen
		for s := range x.sources {
			sources = append(sources, s)
			if ms := docs.Lookup(s); ms > recency {
				recency = ms
			}
		}
		sort.Strings(sources)

		conflicts := 0
		if group := diag.ConflictFor(n); group != nil {
			conflicts = len(group.Statements) - 1
		}
		conflictRate := clamp01(float64(conflicts) / 4)

		hasProvenance := 0.0
		if len(sources) > 0 {
			hasProvenance = 1
		}
		provenance := clamp01(0.35*hasProvenance +
			math.Min(0.45, 0.18*float64(len(sources))) +
			math.Min(0.2, 0.05*float64(x.edges)))

		breadth := clamp01(float64(len(x.relations))/6 + float64(len(x.neighbors))/10)
		task := TaskRelevance(n.Kind, x.action)
		recencyScore := RecencyScore(recency, opts.NowMs)
		retrieval := float64(retrievalRaw[n.ID]) / retrievalDenom

		stale := true
		if recency > 0 {
			stale = opts.NowMs-recency > constants.StaleAfterDays*dayMs
		}

		out[n.ID] = NodeInsight{
			Usefulness:         UsefulnessScore(retrieval, recencyScore, conflictRate, provenance, task, breadth),
			RetrievalFrequency: retrieval,
			RetrievalRaw:       retrievalRaw[n.ID],
			RetrievalInWindow:  retrievalWindow[n.ID],
			RecencyMs:          recency,
			RecencyScore:       recencyScore,
			ConflictRate:       conflictRate,
			Conflicts:          conflicts,
			ProvenanceQuality:  provenance,
			TaskRelevance:      task,
			Breadth:            breadth,
			Sources:            sources,
			LowProvenance:      provenance < constants.LowProvenanceThreshold,
			Stale:              stale,
		}
	}
	return out
}
