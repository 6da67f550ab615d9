package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/graph"
	"mission-control/backend/internal/state"
	"mission-control/backend/internal/telemetry"
	apperrors "mission-control/backend/pkg/errors"
	"mission-control/backend/pkg/logger"
)

// HistoryStore is implemented by stores that keep every saved version
type HistoryStore interface {
	History(ctx context.Context, limit int) ([]graph.HistoryEntry, error)
}

// GraphService serves the graph endpoint in-process: it loads and persists
// payloads, bootstraps graphs from telemetry and publishes MEMORY.md.
type GraphService struct {
	store        graph.Store
	collector    *telemetry.Collector
	notifier     Notifier
	graphID      string
	memoryMDPath string
	logger       *zap.Logger
	now          func() time.Time

	// saves are serialized so versions increase monotonically
	saveMu sync.Mutex
}

// NewGraphService creates a new graph service
func NewGraphService(store graph.Store, collector *telemetry.Collector, notifier Notifier, graphID, memoryMDPath string) *GraphService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &GraphService{
		store:        store,
		collector:    collector,
		notifier:     notifier,
		graphID:      graphID,
		memoryMDPath: memoryMDPath,
		logger:       logger.Named("graph-service"),
		now:          time.Now,
	}
}

// Telemetry returns the collected telemetry. Collection failures degrade to
// empty telemetry so a graph can still be served.
func (s *GraphService) Telemetry(ctx context.Context) *state.GraphTelemetry {
	t, err := s.collector.Collect(ctx)
	if err != nil {
		s.logger.Warn("Telemetry unavailable", zap.Error(err))
		return &state.GraphTelemetry{
			Documents:      []state.SourceDocument{},
			RecentMessages: []state.RecentChatMessage{},
			CollectedAtMs:  s.now().UnixMilli(),
		}
	}
	return t
}

// Load returns the stored graph with telemetry. With bootstrap set, or when
// nothing was saved yet, the graph is rebuilt from source documents and the
// response carries the bootstrap info; a bootstrap graph is not persisted.
func (s *GraphService) Load(ctx context.Context, bootstrap bool) (*state.LoadResponse, error) {
	if bootstrap {
		return s.Bootstrap(ctx)
	}

	payload, err := s.store.LoadGraph(ctx)
	if errors.Is(err, graph.ErrGraphNotFound) {
		s.logger.Info("No saved graph, bootstrapping from indexed sources", zap.String("graph_id", s.graphID))
		t := s.Telemetry(ctx)
		return s.bootstrapResponse(t, nil, state.BootstrapIndexed), nil
	}
	if err != nil {
		return nil, apperrors.NewGraphLoadFailed("stored", err)
	}

	return &state.LoadResponse{
		Graph:     payload,
		Telemetry: s.Telemetry(ctx),
	}, nil
}

// Bootstrap rescans the source documents and rebuilds the graph, keeping
// positions and review tags of the stored graph.
func (s *GraphService) Bootstrap(ctx context.Context) (*state.LoadResponse, error) {
	previous, err := s.store.LoadGraph(ctx)
	if err != nil && !errors.Is(err, graph.ErrGraphNotFound) {
		return nil, apperrors.NewGraphLoadFailed(constants.ModeBootstrap, err)
	}

	s.collector.Invalidate()
	t, err := s.collector.Collect(ctx)
	if err != nil {
		return nil, apperrors.NewGraphLoadFailed(constants.ModeBootstrap, err)
	}
	return s.bootstrapResponse(t, previous, state.BootstrapFilesystem), nil
}

func (s *GraphService) bootstrapResponse(t *state.GraphTelemetry, previous *state.GraphPayload, source string) *state.LoadResponse {
	payload := telemetry.BuildGraph(t, previous, s.now())
	files := telemetry.BootstrapFiles(t)

	s.logger.Info("Graph bootstrapped",
		zap.String("source", source),
		zap.Int("files", len(files)),
		zap.Int("nodes", len(payload.Nodes)),
		zap.Int("edges", len(payload.Edges)))

	return &state.LoadResponse{
		Graph:     payload,
		Telemetry: t,
		Bootstrap: &state.BootstrapInfo{Source: source, Files: files},
	}
}

// Save persists payload as the next version
func (s *GraphService) Save(ctx context.Context, payload *state.GraphPayload, reindex bool) (*state.SaveResponse, error) {
	saved, err := s.persist(ctx, payload)
	if err != nil {
		return nil, err
	}

	resp := &state.SaveResponse{Graph: saved}
	if reindex {
		resp.Indexed = s.reindex(ctx)
	}
	s.notify(ctx, EventSaved, saved, "", resp.Indexed)
	return resp, nil
}

// Publish persists payload, then writes the MEMORY.md snapshot
func (s *GraphService) Publish(ctx context.Context, payload *state.GraphPayload, reindex bool) (*state.PublishResponse, error) {
	saved, err := s.persist(ctx, payload)
	if err != nil {
		return nil, err
	}

	t := s.Telemetry(ctx)
	content := RenderSnapshot(saved, t.Documents)
	if err := WriteFileAtomic(s.memoryMDPath, []byte(content)); err != nil {
		s.logger.Error("Failed to write MEMORY.md",
			zap.String("path", s.memoryMDPath),
			zap.Error(err))
		return nil, apperrors.NewGraphPublishFailed(s.memoryMDPath, err)
	}

	resp := &state.PublishResponse{Graph: saved, Path: s.memoryMDPath}
	if reindex {
		resp.Indexed = s.reindex(ctx)
	}

	s.logger.Info("MEMORY.md published",
		zap.String("path", s.memoryMDPath),
		zap.Int("version", saved.Version),
		zap.Int("bytes", len(content)))
	s.notify(ctx, EventPublished, saved, s.memoryMDPath, resp.Indexed)
	return resp, nil
}

// History lists saved versions when the store keeps them
func (s *GraphService) History(ctx context.Context, limit int) ([]graph.HistoryEntry, bool, error) {
	hs, ok := graph.Unwrap(s.store).(HistoryStore)
	if !ok {
		return nil, false, nil
	}
	entries, err := hs.History(ctx, limit)
	return entries, true, err
}

func (s *GraphService) persist(ctx context.Context, payload *state.GraphPayload) (*state.GraphPayload, error) {
	if err := payload.Validate(); err != nil {
		return nil, apperrors.NewInvalidInput("graph", err.Error())
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	saved := payload.Clone()
	saved.Version = payload.Version + 1
	saved.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	if err := s.store.SaveGraph(ctx, saved); err != nil {
		s.logger.Error("Failed to save graph",
			zap.String("graph_id", s.graphID),
			zap.Int("version", saved.Version),
			zap.Error(err))
		return nil, apperrors.NewGraphSaveFailed(saved.Version, err)
	}

	s.logger.Info("Graph saved",
		zap.String("graph_id", s.graphID),
		zap.Int("version", saved.Version),
		zap.Int("nodes", len(saved.Nodes)),
		zap.Int("edges", len(saved.Edges)))
	return saved, nil
}

// reindex drops cached telemetry and rescans; it reports whether the rescan succeeded
func (s *GraphService) reindex(ctx context.Context) bool {
	s.collector.Invalidate()
	if _, err := s.collector.Collect(ctx); err != nil {
		s.logger.Warn("Reindex failed", zap.Error(err))
		return false
	}
	return true
}

func (s *GraphService) notify(ctx context.Context, eventType string, saved *state.GraphPayload, path string, indexed bool) {
	event := NewGraphEvent(eventType, s.graphID, saved.Version, saved.UpdatedAt)
	event.Path = path
	event.Indexed = indexed
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("Failed to notify graph change",
			zap.String("type", eventType),
			zap.Error(err))
	}
}
