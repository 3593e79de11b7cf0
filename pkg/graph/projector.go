package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Snapshot is everything stored for one live tree.
type Snapshot struct {
	Tree   *models.Tree
	Nodes  []models.Node
	Unions []models.Union
	Links  []models.ParentageLink
}

// Projector mirrors trees into a graph store for traversal queries.
type Projector interface {
	ProjectTree(ctx context.Context, snapshot *Snapshot) error
	RemoveTree(ctx context.Context, treeID uuid.UUID) error
}

// NopProjector is used when no graph database is configured.
type NopProjector struct{}

func (NopProjector) ProjectTree(context.Context, *Snapshot) error { return nil }
func (NopProjector) RemoveTree(context.Context, uuid.UUID) error  { return nil }

const (
	removeTreeCypher = `
		MATCH (p:Person {tree_id: $tree_id})
		DETACH DELETE p
	`
	createPeopleCypher = `
		UNWIND $people AS person
		CREATE (p:Person)
		SET p = person
	`
	createPartnersCypher = `
		UNWIND $partners AS rel
		MATCH (a:Person {id: rel.from, tree_id: $tree_id})
		MATCH (b:Person {id: rel.to, tree_id: $tree_id})
		CREATE (a)-[:PARTNER_OF {edge_id: rel.edge_id, union_id: rel.union_id}]->(b)
	`
	createParentsCypher = `
		UNWIND $parents AS rel
		MATCH (parent:Person {id: rel.from, tree_id: $tree_id})
		MATCH (child:Person {id: rel.to, tree_id: $tree_id})
		CREATE (parent)-[:PARENT_OF {edge_id: rel.edge_id, role: rel.role}]->(child)
	`
)

// Neo4jProjector rewrites a tree's projection from scratch inside one graph transaction.
type Neo4jProjector struct {
	client *Client
	logger ectologger.Logger
}

func NewNeo4jProjector(client *Client, logger ectologger.Logger) *Neo4jProjector {
	return &Neo4jProjector{client: client, logger: logger}
}

func (p *Neo4jProjector) ProjectTree(ctx context.Context, snapshot *Snapshot) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Neo4jProjector.ProjectTree")
	defer span.End()

	treeID := snapshot.Tree.ID.String()
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tree_id":    treeID,
		"node_count": len(snapshot.Nodes),
	})

	edges := DeriveEdges(snapshot.Unions, snapshot.Links)
	partners := ectolinq.Map(ectolinq.Filter(edges, func(e models.Edge) bool {
		return e.Kind == models.EdgeKindPartner
	}), func(e models.Edge) map[string]any {
		return map[string]any{"edge_id": e.ID, "from": e.From.String(), "to": e.To.String(), "union_id": e.UnionID.String()}
	})
	parents := ectolinq.Map(ParentEdges(edges), func(e models.Edge) map[string]any {
		return map[string]any{"edge_id": e.ID, "from": e.From.String(), "to": e.To.String(), "role": e.Role}
	})

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			cypher string
			params map[string]any
		}{
			{removeTreeCypher, map[string]any{"tree_id": treeID}},
			{createPeopleCypher, map[string]any{"people": personProps(snapshot)}},
			{createPartnersCypher, map[string]any{"tree_id": treeID, "partners": partners}},
			{createParentsCypher, map[string]any{"tree_id": treeID, "parents": parents}},
		}
		for _, step := range steps {
			result, err := tx.Run(ctx, step.cypher, step.params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to project tree into graph")
		return fmt.Errorf("failed to project tree into graph: %w", err)
	}

	log.Debug("Projected tree into graph")
	return nil
}

func (p *Neo4jProjector) RemoveTree(ctx context.Context, treeID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Neo4jProjector.RemoveTree")
	defer span.End()

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, removeTreeCypher, map[string]any{"tree_id": treeID.String()})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("tree_id", treeID).Error("Failed to remove tree from graph")
		return fmt.Errorf("failed to remove tree from graph: %w", err)
	}
	return nil
}

func personProps(snapshot *Snapshot) []map[string]any {
	return ectolinq.Map(snapshot.Nodes, func(n models.Node) map[string]any {
		props := map[string]any{
			"id":           n.ID.String(),
			"tree_id":      snapshot.Tree.ID.String(),
			"display_name": n.DisplayName,
			"is_confirmed": n.IsConfirmed,
			"created_at":   n.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if n.LinkedIdentity != nil {
			props["linked_identity"] = *n.LinkedIdentity
		}
		if n.Gender != nil {
			props["gender"] = *n.Gender
		}
		if n.DateOfBirth != nil {
			props["date_of_birth"] = *n.DateOfBirth
		}
		if n.DateOfDeath != nil {
			props["date_of_death"] = *n.DateOfDeath
		}
		return props
	})
}
