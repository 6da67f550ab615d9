package state

import (
	"fmt"
)

// GraphNode is an entity in the memory graph. Nodes of kind "relation" (and a
// few well-known labels) are reified relations that the view collapses into edges.
type GraphNode struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Kind       string   `json:"kind"`
	Summary    string   `json:"summary"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source,omitempty"`
	Tags       []string `json:"tags"`
	X          *float64 `json:"x,omitempty"` // saved canvas position, nil when never placed
	Y          *float64 `json:"y,omitempty"`
}

// GraphEdge is a raw directed edge. Parallel edges are allowed.
type GraphEdge struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Relation string   `json:"relation"`
	Weight   *float64 `json:"weight,omitempty"`
	Evidence string   `json:"evidence,omitempty"`
	Fact     string   `json:"fact,omitempty"`
}

// GraphPayload is the unit of persistence: loaded, saved and published whole.
type GraphPayload struct {
	Version   int         `json:"version"`
	UpdatedAt string      `json:"updatedAt"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
}

// SourceChunk is a labeled span of a source document
type SourceChunk struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Text      string `json:"text"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// SourceFact is a statement extracted from a source document
type SourceFact struct {
	ID             string  `json:"id"`
	Topic          string  `json:"topic"`
	Statement      string  `json:"statement"`
	Canonical      string  `json:"canonical"` // normalized form used for conflict detection
	Line           int     `json:"line"`
	ConfidenceHint float64 `json:"confidenceHint"`
}

// Document sources
const (
	SourceWorkspace = "workspace"
	SourceMemory    = "memory"
)

// SourceDocument is a markdown file the graph was (or can be) built from
type SourceDocument struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Path    string        `json:"path"`
	Source  string        `json:"source"` // workspace, memory
	MtimeMs int64         `json:"mtimeMs"`
	Size    int64         `json:"size"`
	Tags    []string      `json:"tags,omitempty"` // from YAML frontmatter
	Chunks  []SourceChunk `json:"chunks"`
	Facts   []SourceFact  `json:"facts"`
}

// RecentChatMessage is only used as a retrieval-frequency signal
type RecentChatMessage struct {
	SessionKey  string `json:"sessionKey"`
	Role        string `json:"role"`
	TimestampMs int64  `json:"timestampMs"`
	Text        string `json:"text"`
}

// GraphTelemetry is the auxiliary input of the graph view
type GraphTelemetry struct {
	Documents      []SourceDocument    `json:"documents"`
	RecentMessages []RecentChatMessage `json:"recentMessages"` // newest first
	CollectedAtMs  int64               `json:"collectedAtMs"`
}

// NodeByID returns the node with the given id
func (p *GraphPayload) NodeByID(id string) (*GraphNode, bool) {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i], true
		}
	}
	return nil, false
}

// Clone deep-copies the payload so edits never alias a previous revision
func (p *GraphPayload) Clone() *GraphPayload {
	if p == nil {
		return nil
	}
	out := &GraphPayload{
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt,
		Nodes:     make([]GraphNode, len(p.Nodes)),
		Edges:     make([]GraphEdge, len(p.Edges)),
	}
	for i, n := range p.Nodes {
		n.Tags = append([]string(nil), n.Tags...)
		n.X = cloneFloat(n.X)
		n.Y = cloneFloat(n.Y)
		out.Nodes[i] = n
	}
	for i, e := range p.Edges {
		e.Weight = cloneFloat(e.Weight)
		out.Edges[i] = e
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v, for optional coordinates and weights
func Float(v float64) *float64 {
	return &v
}

// HasTag reports whether the node carries tag
func (n *GraphNode) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks if the payload is valid
func (p *GraphPayload) Validate() error {
	if p == nil {
		return ErrInvalidPayload{Field: "graph", Reason: "missing"}
	}
	seen := make(map[string]struct{}, len(p.Nodes))
	for i, n := range p.Nodes {
		if n.ID == "" {
			return ErrInvalidNode{Index: i, Err: fmt.Errorf("id cannot be empty")}
		}
		if _, dup := seen[n.ID]; dup {
			return ErrInvalidNode{Index: i, Err: fmt.Errorf("duplicate id %q", n.ID)}
		}
		seen[n.ID] = struct{}{}
		if n.Confidence < 0 || n.Confidence > 1 {
			return ErrInvalidNode{Index: i, Err: fmt.Errorf("confidence %.3f outside [0,1]", n.Confidence)}
		}
	}
	for i, e := range p.Edges {
		if e.Source == "" || e.Target == "" {
			return ErrInvalidPayload{Field: fmt.Sprintf("edges[%d]", i), Reason: "source and target are required"}
		}
	}
	return nil
}

// Errors

type ErrInvalidPayload struct {
	Field  string
	Reason string
}

func (e ErrInvalidPayload) Error() string {
	return fmt.Sprintf("invalid graph payload: %s - %s", e.Field, e.Reason)
}

type ErrInvalidNode struct {
	Index int
	Err   error
}

func (e ErrInvalidNode) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid node at index %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("invalid node: %v", e.Err)
}
