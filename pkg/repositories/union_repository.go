package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

const unionsTable = "family_unions"

var unionStruct = database.NewStruct(new(models.Union))

// UnionRepository handles database operations for partner unions
type UnionRepository struct {
	*Repository
}

func NewUnionRepository(db database.DB, logger ectologger.Logger) *UnionRepository {
	return &UnionRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *UnionRepository) Create(ctx context.Context, union *models.Union) error {
	ctx, span := tracing.StartSpan(ctx, "UnionRepository.Create")
	defer span.End()

	if union.ID == uuid.Nil {
		union.ID = uuid.New()
	}
	if union.Status == "" {
		union.Status = models.UnionStatusPartner
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(unionsTable).
		Cols("id", "tree_id", "partner_a_node_id", "partner_b_node_id", "status", "created_at").
		Values(union.ID, union.TreeID, union.PartnerANodeID, union.PartnerBNodeID, union.Status, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.DB(ctx).QueryRowxContext(ctx, query, args...).Scan(&union.CreatedAt); err != nil {
		return r.failed(ctx, err, map[string]any{"union_id": union.ID, "tree_id": union.TreeID}, "failed to create union")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"union_id": union.ID,
		"tree_id":  union.TreeID,
	}).Debugf("Created %s", unionsTable)
	return nil
}

func (r *UnionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Union, error) {
	ctx, span := tracing.StartSpan(ctx, "UnionRepository.GetByID")
	defer span.End()

	sb := unionStruct.SelectFrom(unionsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var union models.Union
	err := r.DB(ctx).GetContext(ctx, &union, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("union %s does not exist", id)
	}
	if err != nil {
		return nil, r.failed(ctx, err, map[string]any{"union_id": id}, "failed to get union")
	}

	return &union, nil
}

func (r *UnionRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.Union, error) {
	ctx, span := tracing.StartSpan(ctx, "UnionRepository.ListByTree")
	defer span.End()

	sb := unionStruct.SelectFrom(unionsTable)
	sb.Where(sb.Equal("tree_id", treeID))
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb, map[string]any{"tree_id": treeID})
}

func (r *UnionRepository) ListByNode(ctx context.Context, treeID, nodeID uuid.UUID) ([]models.Union, error) {
	ctx, span := tracing.StartSpan(ctx, "UnionRepository.ListByNode")
	defer span.End()

	sb := unionStruct.SelectFrom(unionsTable)
	sb.Where(
		sb.Equal("tree_id", treeID),
		sb.Or(sb.Equal("partner_a_node_id", nodeID), sb.Equal("partner_b_node_id", nodeID)),
	)
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb, map[string]any{"tree_id": treeID, "node_id": nodeID})
}

func (r *UnionRepository) FindByPair(ctx context.Context, treeID, a, b uuid.UUID) (*models.Union, error) {
	ctx, span := tracing.StartSpan(ctx, "UnionRepository.FindByPair")
	defer span.End()

	sb := unionStruct.SelectFrom(unionsTable)
	sb.Where(
		sb.Equal("tree_id", treeID),
		sb.Or(
			sb.And(sb.Equal("partner_a_node_id", a), sb.Equal("partner_b_node_id", b)),
			sb.And(sb.Equal("partner_a_node_id", b), sb.Equal("partner_b_node_id", a)),
		),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var union models.Union
	err := r.DB(ctx).GetContext(ctx, &union, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.failed(ctx, err, map[string]any{"tree_id": treeID, "a": a, "b": b}, "failed to find union")
	}

	return &union, nil
}

func (r *UnionRepository) MoveToTree(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "UnionRepository.MoveToTree")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(unionsTable).Set(ub.Assign("tree_id", toTreeID)).Where(ub.Equal("tree_id", fromTreeID))

	query, args := ub.Build()
	n, err := execCount(ctx, r.DB(ctx), query, args...)
	if err != nil {
		return 0, r.failed(ctx, err, map[string]any{"from_tree_id": fromTreeID, "to_tree_id": toTreeID}, "failed to move unions")
	}

	return n, nil
}

func (r *UnionRepository) UpdatePartners(ctx context.Context, id, a, b uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "UnionRepository.UpdatePartners")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(unionsTable).
		Set(ub.Assign("partner_a_node_id", a), ub.Assign("partner_b_node_id", b)).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	n, err := execCount(ctx, r.DB(ctx), query, args...)
	if err != nil {
		return r.failed(ctx, err, map[string]any{"union_id": id}, "failed to update union partners")
	}
	if n == 0 {
		return NotFound("union %s does not exist", id)
	}

	return nil
}

func (r *UnionRepository) Delete(ctx context.Context, ids []uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "UnionRepository.Delete")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(unionsTable).Where(db.In("id", database.Flatten(ids)...))

	query, args := db.Build()
	if _, err := r.DB(ctx).ExecContext(ctx, query, args...); err != nil {
		return r.failed(ctx, err, map[string]any{"union_count": len(ids)}, "failed to delete unions")
	}

	return nil
}

func (r *UnionRepository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder, fields map[string]any) ([]models.Union, error) {
	query, args := sb.Build()
	unions := []models.Union{}
	if err := r.DB(ctx).SelectContext(ctx, &unions, query, args...); err != nil {
		return nil, r.failed(ctx, err, fields, "failed to list unions")
	}
	return unions, nil
}
