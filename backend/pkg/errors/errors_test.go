package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBaseError_Format(t *testing.T) {
	err := NewGraphSaveFailed(3, fmt.Errorf("disk full"))
	assert.Equal(t, "[graph] failed to save graph version 3: disk full", err.Error())

	plain := NewNodeNotFound("n1")
	assert.Equal(t, "[graph] node not found: n1", plain.Error())
}

func TestIsErrorType_WalksWrappedChain(t *testing.T) {
	inner := NewStoreQueryFailed("load graph", context.DeadlineExceeded)
	wrapped := fmt.Errorf("service: %w", inner)

	assert.True(t, IsErrorType(wrapped, ErrorTypeStore))
	assert.False(t, IsErrorType(wrapped, ErrorTypeGraph))
	assert.True(t, stderrors.Is(wrapped, context.DeadlineExceeded))

	_, ok := TypeOf(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"gateway retryable", NewGatewayRequestFailed("load", 503, 3, true, nil), true},
		{"gateway client error", NewGatewayRequestFailed("save", 400, 1, false, nil), false},
		{"store", NewStoreConnectionFailed("neo4j", nil), true},
		{"in flight", fmt.Errorf("wrap: %w", NewMutationInFlight("save", "publishing")), true},
		{"not dirty", ErrNotDirty, false},
		{"validation", NewInvalidInput("graph", "missing nodes"), false},
		{"timeout", NewContextTimeout("load", time.Second), false},
		{"unknown", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
