package graph

import (
	"context"

	"mission-control/backend/pkg/config"
	apperrors "mission-control/backend/pkg/errors"
)

// OpenStore connects the store backend named in cfg. The Neo4j schema is
// created when missing.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		return OpenSQLite(cfg.SQLitePath, cfg.GraphID)
	case config.StoreNeo4j:
		driver, err := OpenNeo4j(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		repo := NewRepository(driver, cfg.Neo4jDatabase, cfg.GraphID)
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	}
	return nil, apperrors.NewConfigValidationFailed("STORE_BACKEND", "unknown store backend "+cfg.StoreBackend)
}
