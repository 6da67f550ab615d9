package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraphEvent(t *testing.T) {
	a := NewGraphEvent(EventSaved, "g", 4, "2026-01-01T00:00:00Z")
	b := NewGraphEvent(EventSaved, "g", 4, "2026-01-01T00:00:00Z")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "g", a.GraphID)
	assert.Equal(t, 4, a.Version)
	assert.NotZero(t, a.AtMs)
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = NopNotifier{}
	assert.NoError(t, n.Notify(context.Background(), GraphEvent{}))
	assert.NoError(t, n.Close())
}

func TestNewRedisNotifier_RequiresAddr(t *testing.T) {
	_, err := NewRedisNotifier(context.Background(), "", "")
	assert.Error(t, err)
}

// TestRedisNotifier requires a running redis; set REDIS_ADDR
func TestRedisNotifier_PublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := NewRedisNotifier(ctx, addr, "memory-graph-test")
	require.NoError(t, err)
	defer n.Close()

	received := make(chan GraphEvent, 1)
	require.NoError(t, n.Subscribe(ctx, func(e GraphEvent) { received <- e }))

	sent := NewGraphEvent(EventPublished, "g", 2, "2026-01-01T00:00:00Z")
	require.NoError(t, n.Notify(ctx, sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, EventPublished, got.Type)
	case <-ctx.Done():
		t.Fatal("event not received")
	}
}
