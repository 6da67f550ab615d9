package state

// Wire shapes of the graph endpoint. Field names match what the dashboard
// sends and expects.

// BootstrapInfo describes where a rebuilt graph came from
type BootstrapInfo struct {
	Source string   `json:"source"` // indexed, filesystem
	Files  []string `json:"files"`
}

// Bootstrap sources
const (
	BootstrapIndexed    = "indexed"
	BootstrapFilesystem = "filesystem"
)

// LoadResponse is returned by GET /graph
type LoadResponse struct {
	Graph     *GraphPayload   `json:"graph"`
	Telemetry *GraphTelemetry `json:"telemetry"`
	Bootstrap *BootstrapInfo  `json:"bootstrap,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// GraphActionRequest is the body of POST /graph
type GraphActionRequest struct {
	Action  string        `json:"action" binding:"required"`
	Graph   *GraphPayload `json:"graph" binding:"required"`
	Reindex bool          `json:"reindex"`
}

// SaveResponse is returned by the save action
type SaveResponse struct {
	Graph   *GraphPayload `json:"graph,omitempty"`
	Indexed bool          `json:"indexed,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// PublishResponse is returned by the publish-memory-md action
type PublishResponse struct {
	Graph   *GraphPayload `json:"graph,omitempty"` // the payload as saved before publishing
	Indexed bool          `json:"indexed,omitempty"`
	Path    string        `json:"path,omitempty"`
	Error   string        `json:"error,omitempty"`
}
