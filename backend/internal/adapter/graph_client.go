package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/state"
	apperrors "mission-control/backend/pkg/errors"
	"mission-control/backend/pkg/logger"
)

// Gateway actions, as reported in errors and metrics
const (
	ActionLoad      = "load"
	ActionBootstrap = "bootstrap"
)

// maxErrorBody bounds how much of a failed response is read for its message
const maxErrorBody = 64 * 1024

// errMalformedResponse marks a 2xx response whose body could not be decoded
var errMalformedResponse = errors.New("malformed response")

// ClientConfig configures a GraphClient
type ClientConfig struct {
	BaseURL    string // e.g. http://localhost:8080/api
	Token      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration // multiplied by the attempt number
}

// RequestObserver receives the outcome of every gateway request
type RequestObserver interface {
	ObserveGateway(action string, status int, d time.Duration, err error)
}

// GraphClient talks to a remote graph endpoint. Transport errors and 5xx
// responses are retried; repeated failures open a circuit breaker.
type GraphClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	backoff    time.Duration
	observer   RequestObserver
	logger     *zap.Logger
}

// NewGraphClient creates a new gateway client
func NewGraphClient(cfg ClientConfig, observer RequestObserver) *GraphClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}

	c := &GraphClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		observer:   observer,
		logger:     logger.Named("gateway"),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph-gateway",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// client errors say nothing about the health of the endpoint
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.status < 500
			}
			return err == nil
		},
	})
	return c
}

// Load fetches the stored graph, or a graph rebuilt from sources when bootstrap is set
func (c *GraphClient) Load(ctx context.Context, bootstrap bool) (*state.LoadResponse, error) {
	action, path := ActionLoad, "/graph"
	if bootstrap {
		action, path = ActionBootstrap, "/graph?mode="+constants.ModeBootstrap
	}
	var resp state.LoadResponse
	if err := c.do(ctx, action, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Save persists payload through the endpoint
func (c *GraphClient) Save(ctx context.Context, payload *state.GraphPayload, reindex bool) (*state.SaveResponse, error) {
	body := state.GraphActionRequest{Action: constants.ActionSave, Graph: payload, Reindex: reindex}
	var resp state.SaveResponse
	if err := c.do(ctx, constants.ActionSave, http.MethodPost, "/graph", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Publish persists payload and asks the endpoint to write MEMORY.md
func (c *GraphClient) Publish(ctx context.Context, payload *state.GraphPayload, reindex bool) (*state.PublishResponse, error) {
	body := state.GraphActionRequest{Action: constants.ActionPublishMemoryMD, Graph: payload, Reindex: reindex}
	var resp state.PublishResponse
	if err := c.do(ctx, constants.ActionPublishMemoryMD, http.MethodPost, "/graph", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get decodes a JSON GET of path (relative to the base URL) into out
func (c *GraphClient) Get(ctx context.Context, action, path string, out interface{}) error {
	return c.do(ctx, action, http.MethodGet, path, nil, out)
}

// statusError is a non-2xx response
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("status %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("status %d", e.status)
}

func (c *GraphClient) do(ctx context.Context, action, method, path string, body, out interface{}) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return apperrors.NewGatewayRequestFailed(action, 0, 0, false, fmt.Errorf("failed to encode request: %w", err))
		}
	}

	var (
		lastErr    error
		lastStatus int
		attempt    int
	)
	for attempt = 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * c.backoff
			c.logger.Warn("Retrying gateway request",
				zap.String("action", action),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return apperrors.NewGatewayRequestFailed(action, lastStatus, attempt-1, false, ctx.Err())
			}
		}

		start := time.Now()
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.send(ctx, method, path, raw, out)
		})
		status := 0
		if err == nil {
			status = http.StatusOK
		}
		var se *statusError
		if errors.As(err, &se) {
			status = se.status
		}
		if c.observer != nil {
			c.observer.ObserveGateway(action, status, time.Since(start), err)
		}
		if err == nil {
			return nil
		}

		lastErr, lastStatus = err, status
		c.logger.Error("Gateway request failed",
			zap.String("action", action),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Error(err))

		if !retryable(ctx, err) {
			return apperrors.NewGatewayRequestFailed(action, status, attempt, false, err)
		}
	}

	return apperrors.NewGatewayRequestFailed(action, lastStatus, c.maxRetries, true,
		fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr))
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || errors.Is(err, errMalformedResponse) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return true
}

func (c *GraphClient) send(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{status: resp.StatusCode, message: errorMessage(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failed response, falling back to the raw body
func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
