package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"mission-control/backend/internal/state"
	apperrors "mission-control/backend/pkg/errors"
	"mission-control/backend/pkg/logger"
)

// SQLiteSchema holds the current payload per graph plus an append-only
// history of every saved version.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS graphs (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL,
	payload    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS graph_history (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	graph_id   TEXT NOT NULL,
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL,
	payload    TEXT NOT NULL,
	saved_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_graph_history_graph ON graph_history(graph_id, seq);
`

// HistoryEntry is one saved version of a graph
type HistoryEntry struct {
	Seq       int64  `json:"seq"`
	Version   int    `json:"version"`
	UpdatedAt string `json:"updatedAt"`
	SavedAt   string `json:"savedAt"`
}

// SQLiteStore keeps payloads as JSON documents in a local SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	graphID string
	logger  *zap.Logger
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path, graphID string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.NewStoreConnectionFailed("sqlite", fmt.Errorf("create data dir: %w", err))
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, apperrors.NewStoreConnectionFailed("sqlite", err)
	}
	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, apperrors.NewStoreConnectionFailed("sqlite", fmt.Errorf("migrate: %w", err))
	}

	return &SQLiteStore{db: db, graphID: graphID, logger: logger.Get()}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadGraph returns the current payload
func (s *SQLiteStore) LoadGraph(ctx context.Context) (*state.GraphPayload, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM graphs WHERE id = ?`, s.graphID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGraphNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("load graph", err)
	}

	var payload state.GraphPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, apperrors.NewStoreQueryFailed("decode graph", err)
	}
	if payload.Nodes == nil {
		payload.Nodes = []state.GraphNode{}
	}
	if payload.Edges == nil {
		payload.Edges = []state.GraphEdge{}
	}
	return &payload, nil
}

// SaveGraph replaces the current payload and appends it to the history
func (s *SQLiteStore) SaveGraph(ctx context.Context, payload *state.GraphPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewStoreQueryFailed("encode graph", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreQueryFailed("begin save", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO graphs (id, version, updated_at, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at, payload = excluded.payload`,
		s.graphID, payload.Version, payload.UpdatedAt, string(raw),
	); err != nil {
		return apperrors.NewStoreQueryFailed("save graph", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO graph_history (graph_id, version, updated_at, payload) VALUES (?, ?, ?, ?)`,
		s.graphID, payload.Version, payload.UpdatedAt, string(raw),
	); err != nil {
		return apperrors.NewStoreQueryFailed("append history", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreQueryFailed("commit save", err)
	}

	s.logger.Debug("Graph saved to sqlite",
		zap.String("graph_id", s.graphID),
		zap.Int("version", payload.Version),
		zap.Int("bytes", len(raw)))
	return nil
}

// History lists saved versions, newest first
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, version, updated_at, saved_at FROM graph_history WHERE graph_id = ? ORDER BY seq DESC LIMIT ?`,
		s.graphID, limit,
	)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("list history", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.Seq, &h.Version, &h.UpdatedAt, &h.SavedAt); err != nil {
			return nil, apperrors.NewStoreQueryFailed("scan history", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// LoadVersion returns the payload saved at history entry seq
func (s *SQLiteStore) LoadVersion(ctx context.Context, seq int64) (*state.GraphPayload, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM graph_history WHERE graph_id = ? AND seq = ?`, s.graphID, seq,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGraphNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("load version", err)
	}
	var payload state.GraphPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, apperrors.NewStoreQueryFailed("decode version", err)
	}
	return &payload, nil
}
