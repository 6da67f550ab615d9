package graph

import (
	"context"
	"errors"
	"time"

	"mission-control/backend/internal/state"
)

// ErrGraphNotFound is returned by LoadGraph when nothing was saved yet
var ErrGraphNotFound = errors.New("graph not found")

// Store persists whole graph payloads
type Store interface {
	LoadGraph(ctx context.Context) (*state.GraphPayload, error)
	SaveGraph(ctx context.Context, payload *state.GraphPayload) error
	Close() error
}

// Store operation names
const (
	OpLoad = "load"
	OpSave = "save"
)

// StoreObserver receives the outcome of every store operation
type StoreObserver interface {
	ObserveStore(backend, op string, d time.Duration, err error)
}

// observedStore reports store latency and failures to an observer
type observedStore struct {
	Store
	backend  string
	observer StoreObserver
}

// WithObserver wraps store so every load and save is reported to observer.
func WithObserver(store Store, backend string, observer StoreObserver) Store {
	if observer == nil {
		return store
	}
	return &observedStore{Store: store, backend: backend, observer: observer}
}

func (s *observedStore) LoadGraph(ctx context.Context) (*state.GraphPayload, error) {
	start := time.Now()
	payload, err := s.Store.LoadGraph(ctx)
	observed := err
	if errors.Is(err, ErrGraphNotFound) {
		observed = nil
	}
	s.observer.ObserveStore(s.backend, OpLoad, time.Since(start), observed)
	return payload, err
}

func (s *observedStore) SaveGraph(ctx context.Context, payload *state.GraphPayload) error {
	start := time.Now()
	err := s.Store.SaveGraph(ctx, payload)
	s.observer.ObserveStore(s.backend, OpSave, time.Since(start), err)
	return err
}

// Unwrap returns the observed store
func (s *observedStore) Unwrap() Store {
	return s.Store
}

// Unwrap strips observer wrappers until it reaches the underlying store
func Unwrap(store Store) Store {
	for {
		w, ok := store.(interface{ Unwrap() Store })
		if !ok {
			return store
		}
		store = w.Unwrap()
	}
}
