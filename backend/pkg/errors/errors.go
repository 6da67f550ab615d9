package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents memory graph load/save/publish errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeStore represents persistence backend errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeGateway represents errors talking to a remote graph endpoint
	ErrorTypeGateway ErrorType = "gateway"
	// ErrorTypeSession represents editor session state errors
	ErrorTypeSession ErrorType = "session"
	// ErrorTypeValidation represents malformed input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// typed exposes the BaseError embedded in every error of this package.
type typed interface {
	base() *BaseError
}

func (e *BaseError) base() *BaseError { return e }

// Graph Errors

// ErrGraphLoadFailed is returned when the graph or its telemetry cannot be loaded
type ErrGraphLoadFailed struct {
	*BaseError
	Mode string
}

func NewGraphLoadFailed(mode string, err error) *ErrGraphLoadFailed {
	return &ErrGraphLoadFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to load graph (mode=%s)", mode), err),
		Mode:      mode,
	}
}

// ErrGraphSaveFailed is returned when persisting the payload fails
type ErrGraphSaveFailed struct {
	*BaseError
	Version int
}

func NewGraphSaveFailed(version int, err error) *ErrGraphSaveFailed {
	return &ErrGraphSaveFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to save graph version %d", version), err),
		Version:   version,
	}
}

// ErrGraphPublishFailed is returned when the memory snapshot cannot be written
type ErrGraphPublishFailed struct {
	*BaseError
	Path string
}

func NewGraphPublishFailed(path string, err error) *ErrGraphPublishFailed {
	return &ErrGraphPublishFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to publish snapshot to %s", path), err),
		Path:      path,
	}
}

// ErrNodeNotFound is returned when an editor operation names an unknown node
type ErrNodeNotFound struct {
	*BaseError
	NodeID string
}

func NewNodeNotFound(nodeID string) *ErrNodeNotFound {
	return &ErrNodeNotFound{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("node not found: %s", nodeID), nil),
		NodeID:    nodeID,
	}
}

// Store Errors

// ErrStoreConnectionFailed is returned when the backing store is unreachable
type ErrStoreConnectionFailed struct {
	*BaseError
	Backend string
}

func NewStoreConnectionFailed(backend string, err error) *ErrStoreConnectionFailed {
	return &ErrStoreConnectionFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("failed to connect to %s store", backend), err),
		Backend:   backend,
	}
}

// ErrStoreQueryFailed is returned when a store query fails
type ErrStoreQueryFailed struct {
	*BaseError
	Operation string
}

func NewStoreQueryFailed(operation string, err error) *ErrStoreQueryFailed {
	return &ErrStoreQueryFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("store operation failed: %s", operation), err),
		Operation: operation,
	}
}

// Gateway Errors

// ErrGatewayRequestFailed is returned when a remote graph request fails
type ErrGatewayRequestFailed struct {
	*BaseError
	Action    string
	Status    int
	Attempts  int
	Retryable bool
}

func NewGatewayRequestFailed(action string, status, attempts int, retryable bool, err error) *ErrGatewayRequestFailed {
	return &ErrGatewayRequestFailed{
		BaseError: NewBaseError(ErrorTypeGateway, fmt.Sprintf("gateway %s failed after %d attempts (status %d)", action, attempts, status), err),
		Action:    action,
		Status:    status,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// Session Errors

// ErrMutationInFlight is returned when a save or publish is already running
type ErrMutationInFlight struct {
	*BaseError
	Operation string
	Running   string
}

func NewMutationInFlight(operation, running string) *ErrMutationInFlight {
	return &ErrMutationInFlight{
		BaseError: NewBaseError(ErrorTypeSession, fmt.Sprintf("cannot %s while %s is in flight", operation, running), nil),
		Operation: operation,
		Running:   running,
	}
}

// ErrNotDirty is returned when saving a payload with no pending edits
var ErrNotDirty = NewBaseError(ErrorTypeSession, "graph has no unsaved changes", nil)

// ErrGraphNotLoaded is returned when an operation needs a loaded graph
var ErrGraphNotLoaded = NewBaseError(ErrorTypeSession, "graph is not loaded", nil)

// Validation Errors

// ErrInvalidInput is returned for malformed requests or payloads
type ErrInvalidInput struct {
	*BaseError
	Field  string
	Reason string
}

func NewInvalidInput(field, reason string) *ErrInvalidInput {
	return &ErrInvalidInput{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// ErrContextTimeout is returned when context times out
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), nil),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Helper functions

// TypeOf returns the category of the first package error in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	for err != nil {
		if t, ok := err.(typed); ok {
			return t.base().Type, true
		}
		err = stderrors.Unwrap(err)
	}
	return "", false
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeContext) || IsErrorType(err, ErrorTypeValidation) {
		return false
	}
	var gw *ErrGatewayRequestFailed
	if stderrors.As(err, &gw) {
		return gw.Retryable
	}
	var inFlight *ErrMutationInFlight
	if stderrors.As(err, &inFlight) {
		return true
	}
	return IsErrorType(err, ErrorTypeStore)
}
