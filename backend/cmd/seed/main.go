package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/graph"
	"mission-control/backend/internal/state"
	"mission-control/backend/internal/telemetry"
	"mission-control/backend/pkg/config"
	"mission-control/backend/pkg/logger"
)

// errGraphExists is returned when a graph is stored and -force is not set
var errGraphExists = errors.New("graph already exists")

type options struct {
	force         bool
	fromWorkspace bool
}

func main() {
	force := flag.Bool("force", false, "Overwrite the stored graph if one exists")
	fromWorkspace := flag.Bool("from-workspace", false, "Build the graph from the workspace documents instead of the demo graph")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	saved, err := seed(context.Background(), cfg, options{force: *force, fromWorkspace: *fromWorkspace})
	if errors.Is(err, errGraphExists) {
		log.Info("Graph already exists, skipping (use -force to overwrite)", zap.String("graph_id", cfg.GraphID))
		return
	}
	if err != nil {
		log.Fatal("Seeding failed", zap.Error(err))
	}

	log.Info("Seeding completed successfully",
		zap.String("store", cfg.StoreBackend),
		zap.String("graph_id", cfg.GraphID),
		zap.Int("version", saved.Version),
		zap.Int("nodes", len(saved.Nodes)),
		zap.Int("edges", len(saved.Edges)),
	)
}

// seed stores the demo graph, or a graph built from the workspace, as the
// next version of cfg.GraphID
func seed(ctx context.Context, cfg *config.Config, opts options) (*state.GraphPayload, error) {
	log := logger.Get()

	store, err := graph.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	existing, err := store.LoadGraph(ctx)
	switch {
	case err == nil && !opts.force:
		return nil, errGraphExists
	case err != nil && !errors.Is(err, graph.ErrGraphNotFound):
		return nil, err
	}

	now := time.Now().UTC()
	var payload *state.GraphPayload
	if opts.fromWorkspace {
		log.Info("Scanning workspace", zap.String("workspace", cfg.WorkspaceDir))
		collector := telemetry.NewCollector(telemetry.Sources{
			WorkspaceDir: cfg.WorkspaceDir,
			MemoryDir:    cfg.MemoryDir,
			SessionsDir:  cfg.SessionsDir,
			ChatLimit:    cfg.ChatHistoryLimit,
		})
		t, err := collector.Collect(ctx)
		if err != nil {
			return nil, err
		}
		payload = telemetry.BuildGraph(t, existing, now)
	} else {
		payload = demoGraph(now)
	}

	payload.Version = 1
	if existing != nil {
		payload.Version = existing.Version + 1
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if err := store.SaveGraph(ctx, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// demoGraph is a small memory graph with kinds for each lens, a relation node
// that collapses into an edge and a deprecated node
func demoGraph(now time.Time) *state.GraphPayload {
	node := func(id, label, kind, summary string, confidence float64, tags ...string) state.GraphNode {
		return state.GraphNode{ID: id, Label: label, Kind: kind, Summary: summary, Confidence: confidence, Tags: tags}
	}
	edge := func(source, target, relation, evidence string) state.GraphEdge {
		return state.GraphEdge{
			ID:       fmt.Sprintf("e-%s-%s-%s", source, relation, target),
			Source:   source,
			Target:   target,
			Relation: relation,
			Evidence: evidence,
		}
	}

	return &state.GraphPayload{
		UpdatedAt: now.Format(time.RFC3339),
		Nodes: []state.GraphNode{
			node("profile-owner", "Owner", "profile", "Primary user of the workspace", 0.9, constants.TagConfirmed),
			node("project-mc", "Mission Control", "project", "Dashboard over the agent memory graph", 0.85),
			node("topic-editor", "Editor", "topic", "Which text editor to use", 0.6),
			node("tool-vim", "Vim", "tool", "Modal editor used for quick edits", 0.7),
			node("tool-emacs", "Emacs", "tool", "Editor mentioned in older notes", 0.4),
			node("pref-dark", "Dark mode", "preference", "Prefers dark themes everywhere", 0.8, constants.TagConfirmed),
			node("task-publish", "Publish weekly snapshot", "task", "Write MEMORY.md every Friday", 0.65),
			node("decision-sqlite", "SQLite for local storage", "decision", "Local installs keep the graph in SQLite", 0.75),
			node("rel-works-on", "works on", "relation", "", 0.5),
			node("concept-old", "Legacy sync", "concept", "Replaced by the graph endpoint", 0.2, constants.TagDeprecated),
		},
		Edges: []state.GraphEdge{
			edge("profile-owner", "rel-works-on", "subject", "MEMORY.md:3"),
			edge("rel-works-on", "project-mc", "object", "MEMORY.md:3"),
			edge("profile-owner", "pref-dark", "prefers", "MEMORY.md:5"),
			edge("tool-vim", "topic-editor", "about", "MEMORY.md:7"),
			edge("tool-emacs", "topic-editor", "about", "memory/2025-01-10.md:4"),
			edge("project-mc", "decision-sqlite", "decided", "memory/2025-02-01.md:2"),
			edge("project-mc", "task-publish", "has_task", "memory/2025-02-01.md:6"),
			edge("project-mc", "concept-old", "replaces", "memory/2024-11-20.md:9"),
		},
	}
}
