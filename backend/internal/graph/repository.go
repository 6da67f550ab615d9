package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"mission-control/backend/internal/state"
	apperrors "mission-control/backend/pkg/errors"
	"mission-control/backend/pkg/logger"
)

// Repository stores a graph payload in Neo4j:
//
//	(:MemoryGraph {id})-[:HAS_NODE]->(:MemoryNode {graph_id, id, ...})
//	(:MemoryNode)-[:MEMORY_EDGE {id, relation, weight, evidence, fact}]->(:MemoryNode)
//
// Node and edge order is kept in an ord property. Edges whose endpoints are
// missing from the payload are not stored.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	graphID  string
	logger   *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext, database, graphID string) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		graphID:  graphID,
		logger:   logger.Get(),
	}
}

// OpenNeo4j connects to Neo4j and verifies connectivity
func OpenNeo4j(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewStoreConnectionFailed("neo4j", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, apperrors.NewStoreConnectionFailed("neo4j", err)
	}
	return driver, nil
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

// EnsureSchema creates the constraints and indexes the repository relies on
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT memory_graph_id IF NOT EXISTS FOR (g:MemoryGraph) REQUIRE g.id IS UNIQUE`,
		`CREATE INDEX memory_node_key IF NOT EXISTS FOR (m:MemoryNode) ON (m.graph_id, m.id)`,
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return apperrors.NewStoreQueryFailed("ensure schema", err)
		}
	}
	r.logger.Info("Neo4j schema ensured", zap.String("graph_id", r.graphID))
	return nil
}

// LoadGraph reads the whole payload
func (r *Repository) LoadGraph(ctx context.Context) (*state.GraphPayload, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nodesQuery := `
			MATCH (g:MemoryGraph {id: $graphID})
			OPTIONAL MATCH (g)-[:HAS_NODE]->(m:MemoryNode)
			WITH g, m ORDER BY m.ord
			RETURN
				g.version as version,
				g.updated_at as updated_at,
				collect(m {.*}) as nodes
		`
		res, err := tx.Run(ctx, nodesQuery, map[string]interface{}{"graphID": r.graphID})
		if err != nil {
			return nil, fmt.Errorf("failed to execute query: %w", err)
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, fmt.Errorf("failed to fetch record: %w", err)
			}
			return nil, ErrGraphNotFound
		}
		record := res.Record()

		payload := &state.GraphPayload{
			Version:   getIntFromRecord(record, "version"),
			UpdatedAt: getStringFromRecord(record, "updated_at"),
			Nodes:     []state.GraphNode{},
			Edges:     []state.GraphEdge{},
		}
		for _, m := range getMapSliceFromRecord(record, "nodes") {
			payload.Nodes = append(payload.Nodes, state.GraphNode{
				ID:         getStringFromMap(m, "id", ""),
				Label:      getStringFromMap(m, "label", ""),
				Kind:       getStringFromMap(m, "kind", ""),
				Summary:    getStringFromMap(m, "summary", ""),
				Confidence: getFloat64FromMap(m, "confidence", 0),
				Source:     getStringFromMap(m, "source", ""),
				Tags:       getStringSliceFromMap(m, "tags"),
				X:          getOptionalFloat64FromMap(m, "x"),
				Y:          getOptionalFloat64FromMap(m, "y"),
			})
		}

		edgesQuery := `
			MATCH (g:MemoryGraph {id: $graphID})-[:HAS_NODE]->(s:MemoryNode)-[r:MEMORY_EDGE]->(t:MemoryNode)
			RETURN
				r.id as id,
				s.id as source,
				t.id as target,
				r.relation as relation,
				r.weight as weight,
				r.evidence as evidence,
				r.fact as fact
			ORDER BY r.ord
		`
		edges, err := tx.Run(ctx, edgesQuery, map[string]interface{}{"graphID": r.graphID})
		if err != nil {
			return nil, fmt.Errorf("failed to execute query: %w", err)
		}
		for edges.Next(ctx) {
			rec := edges.Record()
			payload.Edges = append(payload.Edges, state.GraphEdge{
				ID:       getStringFromRecord(rec, "id"),
				Source:   getStringFromRecord(rec, "source"),
				Target:   getStringFromRecord(rec, "target"),
				Relation: getStringFromRecord(rec, "relation"),
				Weight:   getOptionalFloat64FromRecord(rec, "weight"),
				Evidence: getStringFromRecord(rec, "evidence"),
				Fact:     getStringFromRecord(rec, "fact"),
			})
		}
		if err := edges.Err(); err != nil {
			return nil, fmt.Errorf("failed to read edges: %w", err)
		}
		return payload, nil
	})
	if err != nil {
		if errors.Is(err, ErrGraphNotFound) {
			return nil, ErrGraphNotFound
		}
		return nil, apperrors.NewStoreQueryFailed("load graph", err)
	}
	return result.(*state.GraphPayload), nil
}

// SaveGraph replaces the stored graph inside one write transaction
func (r *Repository) SaveGraph(ctx context.Context, payload *state.GraphPayload) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	nodes := make([]interface{}, 0, len(payload.Nodes))
	for i, n := range payload.Nodes {
		nodes = append(nodes, map[string]interface{}{
			"ord":        i,
			"id":         n.ID,
			"label":      n.Label,
			"kind":       n.Kind,
			"summary":    n.Summary,
			"confidence": n.Confidence,
			"source":     n.Source,
			"tags":       append([]string{}, n.Tags...),
			"x":          optionalFloat(n.X),
			"y":          optionalFloat(n.Y),
		})
	}
	edges := make([]interface{}, 0, len(payload.Edges))
	for i, e := range payload.Edges {
		edges = append(edges, map[string]interface{}{
			"ord":      i,
			"id":       e.ID,
			"source":   e.Source,
			"target":   e.Target,
			"relation": e.Relation,
			"weight":   optionalFloat(e.Weight),
			"evidence": e.Evidence,
			"fact":     e.Fact,
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		clearQuery := `
			MERGE (g:MemoryGraph {id: $graphID})
			SET g.version = $version,
			    g.updated_at = $updatedAt
			WITH g
			OPTIONAL MATCH (g)-[:HAS_NODE]->(old:MemoryNode)
			DETACH DELETE old
		`
		if _, err := tx.Run(ctx, clearQuery, map[string]interface{}{
			"graphID":   r.graphID,
			"version":   payload.Version,
			"updatedAt": payload.UpdatedAt,
		}); err != nil {
			return nil, fmt.Errorf("failed to clear graph: %w", err)
		}

		nodesQuery := `
			MATCH (g:MemoryGraph {id: $graphID})
			UNWIND $nodes AS n
			CREATE (g)-[:HAS_NODE]->(m:MemoryNode {graph_id: $graphID, id: n.id})
			SET m.ord = n.ord,
			    m.label = n.label,
			    m.kind = n.kind,
			    m.summary = n.summary,
			    m.confidence = n.confidence,
			    m.source = n.source,
			    m.tags = n.tags,
			    m.x = n.x,
			    m.y = n.y
		`
		if _, err := tx.Run(ctx, nodesQuery, map[string]interface{}{
			"graphID": r.graphID,
			"nodes":   nodes,
		}); err != nil {
			return nil, fmt.Errorf("failed to write nodes: %w", err)
		}

		edgesQuery := `
			UNWIND $edges AS e
			MATCH (s:MemoryNode {graph_id: $graphID, id: e.source})
			MATCH (t:MemoryNode {graph_id: $graphID, id: e.target})
			CREATE (s)-[r:MEMORY_EDGE]->(t)
			SET r.ord = e.ord,
			    r.id = e.id,
			    r.relation = e.relation,
			    r.weight = e.weight,
			    r.evidence = e.evidence,
			    r.fact = e.fact
		`
		if _, err := tx.Run(ctx, edgesQuery, map[string]interface{}{
			"graphID": r.graphID,
			"edges":   edges,
		}); err != nil {
			return nil, fmt.Errorf("failed to write edges: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return apperrors.NewStoreQueryFailed("save graph", err)
	}

	r.logger.Info("Graph saved",
		zap.String("graph_id", r.graphID),
		zap.Int("version", payload.Version),
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
	)
	return nil
}
