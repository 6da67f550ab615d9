package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mission-control/backend/pkg/logger"
)

// Graph event types
const (
	EventSaved     = "graph.saved"
	EventPublished = "graph.published"
)

// GraphEvent announces a persisted change to other dashboards and agents
type GraphEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	GraphID   string `json:"graphId"`
	Version   int    `json:"version"`
	UpdatedAt string `json:"updatedAt"`
	Path      string `json:"path,omitempty"`
	Indexed   bool   `json:"indexed,omitempty"`
	AtMs      int64  `json:"atMs"`
}

// NewGraphEvent stamps an event with a fresh id and the current time
func NewGraphEvent(eventType, graphID string, version int, updatedAt string) GraphEvent {
	return GraphEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		GraphID:   graphID,
		Version:   version,
		UpdatedAt: updatedAt,
		AtMs:      time.Now().UnixMilli(),
	}
}

// Notifier delivers graph events
type Notifier interface {
	Notify(ctx context.Context, event GraphEvent) error
	Close() error
}

// NopNotifier drops every event
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, GraphEvent) error { return nil }
func (NopNotifier) Close() error                             { return nil }

// RedisNotifier publishes events as JSON on a redis pub/sub channel
type RedisNotifier struct {
	rdb     *goredis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisNotifier connects to redis and verifies the connection
func NewRedisNotifier(ctx context.Context, addr, channel string) (*RedisNotifier, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if channel == "" {
		channel = "memory-graph"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisNotifier{
		rdb:     rdb,
		channel: channel,
		logger:  logger.Named("notifier"),
	}, nil
}

// Notify publishes event on the configured channel
func (n *RedisNotifier) Notify(ctx context.Context, event GraphEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	n.logger.Debug("Graph event published",
		zap.String("type", event.Type),
		zap.String("event_id", event.ID),
		zap.Int("version", event.Version))
	return nil
}

// Subscribe delivers events from other publishers until ctx is done
func (n *RedisNotifier) Subscribe(ctx context.Context, onEvent func(GraphEvent)) error {
	sub := n.rdb.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var event GraphEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					n.logger.Warn("Bad graph event payload", zap.Error(err))
					continue
				}
				onEvent(event)
			}
		}
	}()
	return nil
}

// Close closes the redis client
func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
