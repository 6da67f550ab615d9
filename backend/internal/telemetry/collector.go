package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mission-control/backend/internal/state"
	"mission-control/backend/pkg/logger"
)

// Sources names where telemetry is collected from
type Sources struct {
	WorkspaceDir string
	MemoryDir    string
	SessionsDir  string // empty disables chat telemetry
	ChatLimit    int
}

// Collector gathers documents and recent chats and caches the result until
// Invalidate is called.
type Collector struct {
	sources Sources
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	cached   *state.GraphTelemetry
	revision uint64
}

// NewCollector creates a collector over sources
func NewCollector(sources Sources) *Collector {
	return &Collector{
		sources: sources,
		logger:  logger.Named("telemetry"),
		now:     time.Now,
	}
}

// Collect returns the cached telemetry, scanning sources when the cache is empty.
// Documents and chats are read concurrently. An unreadable sessions dir only
// drops the chat signal.
func (c *Collector) Collect(ctx context.Context) (*state.GraphTelemetry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil {
		return c.cached, nil
	}

	start := c.now()
	var (
		docs     []state.SourceDocument
		messages []state.RecentChatMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = ScanDocuments(gctx, c.sources.WorkspaceDir, c.sources.MemoryDir)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = ReadRecentMessages(gctx, c.sources.SessionsDir, c.sources.ChatLimit)
		if err != nil {
			c.logger.Warn("Failed to read chat transcripts",
				zap.String("dir", c.sources.SessionsDir),
				zap.Error(err))
			messages = []state.RecentChatMessage{}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("telemetry collection failed: %w", err)
	}

	c.revision++
	c.cached = &state.GraphTelemetry{
		Documents:      docs,
		RecentMessages: messages,
		CollectedAtMs:  c.now().UnixMilli(),
	}
	if c.cached.Documents == nil {
		c.cached.Documents = []state.SourceDocument{}
	}

	c.logger.Info("Telemetry collected",
		zap.Int("documents", len(docs)),
		zap.Int("messages", len(messages)),
		zap.Uint64("revision", c.revision),
		zap.Duration("duration", c.now().Sub(start)))
	return c.cached, nil
}

// Invalidate drops the cached telemetry so the next Collect rescans
func (c *Collector) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

// Revision identifies the cached telemetry; it changes on every rescan
func (c *Collector) Revision() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

// Sources returns the directories the collector reads
func (c *Collector) Sources() Sources {
	return c.sources
}
