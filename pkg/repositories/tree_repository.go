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

const treesTable = "family_trees"

var treeStruct = database.NewStruct(new(models.Tree))

// TreeRepository handles database operations for family trees
type TreeRepository struct {
	*Repository
}

// NewTreeRepository creates a new tree repository
func NewTreeRepository(db database.DB, logger ectologger.Logger) *TreeRepository {
	return &TreeRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new tree
func (r *TreeRepository) Create(ctx context.Context, tree *models.Tree) error {
	ctx, span := tracing.StartSpan(ctx, "TreeRepository.Create")
	defer span.End()

	if tree.ID == uuid.Nil {
		tree.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(treesTable).
		Cols("id", "name", "created_by", "created_at", "is_archived").
		Values(tree.ID, tree.Name, tree.CreatedBy, sqlbuilder.Raw("NOW()"), false).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.DB(ctx).QueryRowxContext(ctx, query, args...).Scan(&tree.CreatedAt); err != nil {
		return r.failed(ctx, err, map[string]any{"tree_id": tree.ID}, "failed to create tree")
	}

	r.logger.WithContext(ctx).WithField("tree_id", tree.ID).Debugf("Created %s", treesTable)
	return nil
}

// GetByID retrieves a tree by ID, archived or not
func (r *TreeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tree, error) {
	ctx, span := tracing.StartSpan(ctx, "TreeRepository.GetByID")
	defer span.End()

	sb := treeStruct.SelectFrom(treesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var tree models.Tree
	err := r.DB(ctx).GetContext(ctx, &tree, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("tree %s does not exist", id)
	}
	if err != nil {
		return nil, r.failed(ctx, err, map[string]any{"tree_id": id}, "failed to get tree")
	}

	return &tree, nil
}

// ListForIdentity lists trees the identity created or has a node linked in. Live trees come
// first, newest first.
func (r *TreeRepository) ListForIdentity(ctx context.Context, identity string) ([]models.Tree, error) {
	ctx, span := tracing.StartSpan(ctx, "TreeRepository.ListForIdentity")
	defer span.End()

	member := database.NewSelectBuilder()
	member.Select("tree_id").From(nodesTable).Where(member.Equal("linked_identity", identity))

	sb := treeStruct.SelectFrom(treesTable)
	sb.Where(sb.Or(
		sb.Equal("created_by", identity),
		sb.In("id", member),
	))
	sb.OrderBy("is_archived ASC", "created_at DESC")

	query, args := sb.Build()
	trees := []models.Tree{}
	if err := r.DB(ctx).SelectContext(ctx, &trees, query, args...); err != nil {
		return nil, r.failed(ctx, err, map[string]any{"identity": identity}, "failed to list trees")
	}

	return trees, nil
}

// Rename updates the tree's display name
func (r *TreeRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	ctx, span := tracing.StartSpan(ctx, "TreeRepository.Rename")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(treesTable).
		Set(ub.Assign("name", name)).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	n, err := execCount(ctx, r.DB(ctx), query, args...)
	if err != nil {
		return r.failed(ctx, err, map[string]any{"tree_id": id}, "failed to rename tree")
	}
	if n == 0 {
		return NotFound("tree %s does not exist", id)
	}

	return nil
}

// Archive marks the tree archived. mergedInto is only set by the merge engine.
func (r *TreeRepository) Archive(ctx context.Context, id uuid.UUID, mergedInto *uuid.UUID, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "TreeRepository.Archive")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(treesTable).
		Set(
			ub.Assign("is_archived", true),
			ub.Assign("merged_into_tree_id", mergedInto),
			ub.Assign("archived_at", at),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	n, err := execCount(ctx, r.DB(ctx), query, args...)
	if err != nil {
		return r.failed(ctx, err, map[string]any{"tree_id": id}, "failed to archive tree")
	}
	if n == 0 {
		return NotFound("tree %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tree_id":     id,
		"merged_into": mergedInto,
	}).Debug("Archived tree")
	return nil
}

// RepointMergedInto redirects every tree archived into fromTreeID so it lands on toTreeID.
func (r *TreeRepository) RepointMergedInto(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "TreeRepository.RepointMergedInto")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(treesTable).
		Set(ub.Assign("merged_into_tree_id", toTreeID)).
		Where(ub.Equal("merged_into_tree_id", fromTreeID))

	query, args := ub.Build()
	n, err := execCount(ctx, r.DB(ctx), query, args...)
	if err != nil {
		return 0, r.failed(ctx, err, map[string]any{"from_tree_id": fromTreeID, "to_tree_id": toTreeID}, "failed to repoint merged trees")
	}

	return n, nil
}

func (r *TreeRepository) FindOtherLiveTreeWithConfirmedIdentity(ctx context.Context, identity string, excludeTreeID uuid.UUID) (*models.Tree, error) {
	ctx, span := tracing.StartSpan(ctx, "TreeRepository.FindOtherLiveTreeWithConfirmedIdentity")
	defer span.End()

	member := database.NewSelectBuilder()
	member.Select("tree_id").From(nodesTable).Where(
		member.Equal("linked_identity", identity),
		member.Equal("is_confirmed", true),
	)

	sb := treeStruct.SelectFrom(treesTable)
	sb.Where(
		sb.NotEqual("id", excludeTreeID),
		sb.Equal("is_archived", false),
		sb.In("id", member),
	)
	sb.OrderBy("created_at DESC").Limit(1)

	query, args := sb.Build()
	var tree models.Tree
	err := r.DB(ctx).GetContext(ctx, &tree, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.failed(ctx, err, map[string]any{"identity": identity, "exclude_tree_id": excludeTreeID}, "failed to find other tree")
	}

	return &tree, nil
}

// ShareConfirmedIdentity reports whether some identity is confirmed in both trees.
func (r *TreeRepository) ShareConfirmedIdentity(ctx context.Context, treeA, treeB uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "TreeRepository.ShareConfirmedIdentity")
	defer span.End()

	query := r.DB(ctx).Rebind(`SELECT EXISTS (
		SELECT 1 FROM ` + nodesTable + ` a
		JOIN ` + nodesTable + ` b ON a.linked_identity = b.linked_identity
		WHERE a.tree_id = ? AND b.tree_id = ?
		AND a.is_confirmed AND b.is_confirmed
	)`)

	var shared bool
	if err := r.DB(ctx).GetContext(ctx, &shared, query, treeA, treeB); err != nil {
		return false, r.failed(ctx, err, map[string]any{"tree_a": treeA, "tree_b": treeB}, "failed to compare tree members")
	}

	return shared, nil
}

func execCount(ctx context.Context, db database.Executor, query string, args ...any) (int, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
