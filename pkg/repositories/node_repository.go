package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

const nodesTable = "family_tree_nodes"

var nodeStruct = database.NewStruct(new(models.Node))

// NodeRepository handles database operations for tree nodes
type NodeRepository struct {
	*Repository
}

func NewNodeRepository(db database.DB, logger ectologger.Logger) *NodeRepository {
	return &NodeRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *NodeRepository) Create(ctx context.Context, node *models.Node) error {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.Create")
	defer span.End()

	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(nodesTable).
		Cols("id", "tree_id", "display_name", "linked_identity", "is_confirmed", "confirmed_at",
			"gender", "date_of_birth", "date_of_death", "created_at").
		Values(node.ID, node.TreeID, node.DisplayName, node.LinkedIdentity, node.IsConfirmed, node.ConfirmedAt,
			node.Gender, node.DateOfBirth, node.DateOfDeath, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.DB(ctx).QueryRowxContext(ctx, query, args...).Scan(&node.CreatedAt); err != nil {
		return r.failed(ctx, err, map[string]any{"node_id": node.ID, "tree_id": node.TreeID}, "failed to create node")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"node_id": node.ID,
		"tree_id": node.TreeID,
	}).Debugf("Created %s", nodesTable)
	return nil
}

func (r *NodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.GetByID")
	defer span.End()

	sb := nodeStruct.SelectFrom(nodesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var node models.Node
	err := r.DB(ctx).GetContext(ctx, &node, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("node %s does not exist", id)
	}
	if err != nil {
		return nil, r.failed(ctx, err, map[string]any{"node_id": id}, "failed to get node")
	}

	return &node, nil
}

func (r *NodeRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.ListByTree")
	defer span.End()

	sb := nodeStruct.SelectFrom(nodesTable)
	sb.Where(sb.Equal("tree_id", treeID))
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb, map[string]any{"tree_id": treeID})
}

func (r *NodeRepository) FindByLinkedIdentity(ctx context.Context, treeID uuid.UUID, identity string) ([]models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.FindByLinkedIdentity")
	defer span.End()

	sb := nodeStruct.SelectFrom(nodesTable)
	sb.Where(sb.Equal("tree_id", treeID), sb.Equal("linked_identity", identity))
	sb.OrderBy("is_confirmed DESC", "created_at")

	return r.list(ctx, sb, map[string]any{"tree_id": treeID, "identity": identity})
}

func (r *NodeRepository) FindConfirmedByIdentity(ctx context.Context, treeID uuid.UUID, identity string) (*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.FindConfirmedByIdentity")
	defer span.End()

	sb := nodeStruct.SelectFrom(nodesTable)
	sb.Where(
		sb.Equal("tree_id", treeID),
		sb.Equal("linked_identity", identity),
		sb.Equal("is_confirmed", true),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var node models.Node
	err := r.DB(ctx).GetContext(ctx, &node, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.failed(ctx, err, map[string]any{"tree_id": treeID, "identity": identity}, "failed to find confirmed node")
	}

	return &node, nil
}

func (r *NodeRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.Rename")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(nodesTable).Set(ub.Assign("display_name", name)).Where(ub.Equal("id", id))

	return r.updateOne(ctx, ub, id, "failed to rename node")
}

// Claim binds identity to the node and confirms it.
func (r *NodeRepository) Claim(ctx context.Context, id uuid.UUID, identity string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.Claim")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(nodesTable).
		Set(
			ub.Assign("linked_identity", identity),
			ub.Assign("is_confirmed", true),
			ub.Assign("confirmed_at", at),
		).
		Where(ub.Equal("id", id))

	return r.updateOne(ctx, ub, id, "failed to claim node")
}

// Unclaim detaches the identity and clears confirmation.
func (r *NodeRepository) Unclaim(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.Unclaim")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(nodesTable).
		Set(
			ub.Assign("linked_identity", nil),
			ub.Assign("is_confirmed", false),
			ub.Assign("confirmed_at", nil),
		).
		Where(ub.Equal("id", id))

	return r.updateOne(ctx, ub, id, "failed to unclaim node")
}

func (r *NodeRepository) MoveToTree(ctx context.Context, ids []uuid.UUID, toTreeID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.MoveToTree")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update(nodesTable).
		Set(ub.Assign("tree_id", toTreeID)).
		Where(ub.In("id", database.Flatten(ids)...))

	query, args := ub.Build()
	if _, err := r.DB(ctx).ExecContext(ctx, query, args...); err != nil {
		return r.failed(ctx, err, map[string]any{"to_tree_id": toTreeID, "node_count": len(ids)}, "failed to move nodes")
	}

	return nil
}

func (r *NodeRepository) Delete(ctx context.Context, ids []uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "NodeRepository.Delete")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(nodesTable).Where(db.In("id", database.Flatten(ids)...))

	query, args := db.Build()
	if _, err := r.DB(ctx).ExecContext(ctx, query, args...); err != nil {
		return r.failed(ctx, err, map[string]any{"node_count": len(ids)}, "failed to delete nodes")
	}

	r.logger.WithContext(ctx).WithField("node_count", len(ids)).Debugf("Deleted from %s", nodesTable)
	return nil
}

func (r *NodeRepository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder, fields map[string]any) ([]models.Node, error) {
	query, args := sb.Build()
	nodes := []models.Node{}
	if err := r.DB(ctx).SelectContext(ctx, &nodes, query, args...); err != nil {
		return nil, r.failed(ctx, err, fields, "failed to list nodes")
	}
	return nodes, nil
}

func (r *NodeRepository) updateOne(ctx context.Context, ub *sqlbuilder.UpdateBuilder, id uuid.UUID, message string) error {
	query, args := ub.Build()
	n, err := execCount(ctx, r.DB(ctx), query, args...)
	if err != nil {
		return r.failed(ctx, err, map[string]any{"node_id": id}, message)
	}
	if n == 0 {
		return NotFound("node %s does not exist", id)
	}
	return nil
}
