package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mission-control/backend/internal/memgraph"
	"mission-control/backend/internal/session"
)

// Version is reported in the MCP implementation info
const Version = "0.1.0"

// GraphTools exposes the workspace session to MCP clients. Tools only read
// the session; edits stay with the dashboard.
type GraphTools struct {
	Editor *session.Editor
}

// --- Input types ---

type ViewInput struct {
	Layer         string  `json:"layer,omitempty" jsonschema:"Canvas layer: overview, topic (default) or forensics"`
	Lens          string  `json:"lens,omitempty" jsonschema:"Node family: topic, entity, decision or file"`
	Query         string  `json:"query,omitempty" jsonschema:"Case-insensitive text matched against labels and summaries"`
	Confidence    float64 `json:"confidence,omitempty" jsonschema:"Minimum node confidence between 0 and 1"`
	TimeRange     string  `json:"time_range,omitempty" jsonschema:"Recency window: 7d, 30d, 90d or all (default)"`
	ConflictsOnly bool    `json:"conflicts_only,omitempty" jsonschema:"Only show nodes with conflicting facts"`
	Selected      string  `json:"selected,omitempty" jsonschema:"Node id to focus; hop distances are measured from it"`
}

type DiagnosticsInput struct{}

type InspectInput struct {
	ID string `json:"id" jsonschema:"Node id to inspect"`
}

// Filter converts the input into a FilterConfig, validating every name
func (in ViewInput) Filter() (memgraph.FilterConfig, error) {
	cfg := memgraph.DefaultFilterConfig()
	var err error
	if in.Layer != "" {
		if cfg.Layer, err = memgraph.ParseLayer(in.Layer); err != nil {
			return cfg, err
		}
	}
	if in.Lens != "" {
		if cfg.Lens, err = memgraph.ParseLens(in.Lens); err != nil {
			return cfg, err
		}
	}
	if in.TimeRange != "" {
		if cfg.TimeRange, err = memgraph.ParseTimeRange(in.TimeRange); err != nil {
			return cfg, err
		}
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return cfg, fmt.Errorf("confidence must be between 0 and 1")
	}
	cfg.ConfidenceThreshold = in.Confidence
	cfg.Query = in.Query
	cfg.ConflictsOnly = in.ConflictsOnly
	cfg.SelectedNode = in.Selected
	return cfg, nil
}

// --- Handlers ---

func (t *GraphTools) GraphView(_ context.Context, _ *mcp.CallToolRequest, input ViewInput) (*mcp.CallToolResult, any, error) {
	cfg, err := input.Filter()
	if err != nil {
		return toolError("Invalid filter: %v", err), nil, nil
	}
	view, err := t.Editor.View(cfg)
	if err != nil {
		return toolError("Failed to build view: %v", err), nil, nil
	}
	return toolJSON(view)
}

func (t *GraphTools) GraphDiagnostics(_ context.Context, _ *mcp.CallToolRequest, _ DiagnosticsInput) (*mcp.CallToolResult, any, error) {
	diag, err := t.Editor.Diagnostics()
	if err != nil {
		return toolError("Failed to diagnose graph: %v", err), nil, nil
	}
	return toolJSON(diag)
}

func (t *GraphTools) NodeInspect(_ context.Context, _ *mcp.CallToolRequest, input InspectInput) (*mcp.CallToolResult, any, error) {
	if input.ID == "" {
		return toolError("id is required"), nil, nil
	}
	out, err := t.Editor.Inspect(input.ID)
	if err != nil {
		return toolError("Failed to inspect node %q: %v", input.ID, err), nil, nil
	}
	return toolJSON(out)
}

func (t *GraphTools) GraphStatus(_ context.Context, _ *mcp.CallToolRequest, _ DiagnosticsInput) (*mcp.CallToolResult, any, error) {
	return toolJSON(t.Editor.Status())
}

// NewServer creates an MCP server with the graph tools registered.
func NewServer(editor *session.Editor) *mcp.Server {
	gt := &GraphTools{Editor: editor}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "mission-control",
		Version: Version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "graph_view",
		Description: "Render the filtered memory graph: ranked nodes, scored edges and positions",
	}, gt.GraphView)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "graph_diagnostics",
		Description: "List conflicting facts, duplicate labels and merge candidates of the memory graph",
	}, gt.GraphDiagnostics)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "node_inspect",
		Description: "Show one node with its insight scores, incident edges, conflict and merge suggestions",
	}, gt.NodeInspect)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "graph_status",
		Description: "Report whether the graph is loaded, unsaved changes and running operations",
	}, gt.GraphStatus)

	return srv
}

// NewHandler serves srv over the streamable HTTP transport
func NewHandler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return srv
	}, nil)
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
