package repositories

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

const parentageTable = "family_parentage_links"

// parentageRow is the storage shape of a link: the target is split into two nullable columns.
type parentageRow struct {
	ID             uuid.UUID  `db:"id"`
	TreeID         uuid.UUID  `db:"tree_id"`
	ChildNodeID    uuid.UUID  `db:"child_node_id"`
	UnionID        *uuid.UUID `db:"union_id"`
	SingleParentID *uuid.UUID `db:"single_parent_id"`
	Role           string     `db:"role"`
	CreatedAt      time.Time  `db:"created_at"`
}

var parentageStruct = database.NewStruct(new(parentageRow))

func (row parentageRow) toModel() (models.ParentageLink, error) {
	target, err := models.TargetFromColumns(row.UnionID, row.SingleParentID)
	if err != nil {
		return models.ParentageLink{}, err
	}
	return models.ParentageLink{
		ID:          row.ID,
		TreeID:      row.TreeID,
		ChildNodeID: row.ChildNodeID,
		Target:      target,
		Role:        row.Role,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// ParentageRepository handles database operations for parentage links
type ParentageRepository struct {
	*Repository
}

func NewParentageRepository(db database.DB, logger ectologger.Logger) *ParentageRepository {
	return &ParentageRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *ParentageRepository) Create(ctx context.Context, link *models.ParentageLink) error {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.Create")
	defer span.End()

	if !link.Target.IsValid() {
		return BadInput("%s", models.ErrInvalidParentageTarget)
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.Role == "" {
		link.Role = models.RoleBiological
	}
	unionID, singleParentID := link.Target.Columns()

	ib := database.NewInsertBuilder()
	ib.InsertInto(parentageTable).
		Cols("id", "tree_id", "child_node_id", "union_id", "single_parent_id", "role", "created_at").
		Values(link.ID, link.TreeID, link.ChildNodeID, unionID, singleParentID, link.Role, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.DB(ctx).QueryRowxContext(ctx, query, args...).Scan(&link.CreatedAt); err != nil {
		return r.failed(ctx, err, map[string]any{"link_id": link.ID, "child_node_id": link.ChildNodeID}, "failed to create parentage link")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"link_id":       link.ID,
		"child_node_id": link.ChildNodeID,
	}).Debugf("Created %s", parentageTable)
	return nil
}

func (r *ParentageRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.ParentageLink, error) {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.ListByTree")
	defer span.End()

	sb := parentageStruct.SelectFrom(parentageTable)
	sb.Where(sb.Equal("tree_id", treeID))
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb, map[string]any{"tree_id": treeID})
}

func (r *ParentageRepository) ListByChild(ctx context.Context, childNodeID uuid.UUID) ([]models.ParentageLink, error) {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.ListByChild")
	defer span.End()

	sb := parentageStruct.SelectFrom(parentageTable)
	sb.Where(sb.Equal("child_node_id", childNodeID))
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb, map[string]any{"child_node_id": childNodeID})
}

func (r *ParentageRepository) CountByChild(ctx context.Context, childNodeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.CountByChild")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(parentageTable).Where(sb.Equal("child_node_id", childNodeID))

	query, args := sb.Build()
	var count int
	if err := r.DB(ctx).GetContext(ctx, &count, query, args...); err != nil {
		return 0, r.failed(ctx, err, map[string]any{"child_node_id": childNodeID}, "failed to count parentage links")
	}

	return count, nil
}

func (r *ParentageRepository) ListByUnion(ctx context.Context, unionID uuid.UUID) ([]models.ParentageLink, error) {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.ListByUnion")
	defer span.End()

	sb := parentageStruct.SelectFrom(parentageTable)
	sb.Where(sb.Equal("union_id", unionID))
	sb.OrderBy("created_at", "id")

	return r.list(ctx, sb, map[string]any{"union_id": unionID})
}

func (r *ParentageRepository) DeleteSingleParentLinksForChild(ctx context.Context, childNodeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.DeleteSingleParentLinksForChild")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(parentageTable).Where(
		db.Equal("child_node_id", childNodeID),
		db.IsNotNull("single_parent_id"),
	)

	return r.exec(ctx, db, map[string]any{"child_node_id": childNodeID}, "failed to delete single-parent links")
}

// DeleteByChildOrSingleParent removes every link where the node is the child or the single parent.
func (r *ParentageRepository) DeleteByChildOrSingleParent(ctx context.Context, nodeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.DeleteByChildOrSingleParent")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(parentageTable).Where(
		db.Or(db.Equal("child_node_id", nodeID), db.Equal("single_parent_id", nodeID)),
	)

	return r.exec(ctx, db, map[string]any{"node_id": nodeID}, "failed to delete parentage links")
}

func (r *ParentageRepository) RepointUnion(ctx context.Context, oldUnionID, newUnionID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.RepointUnion")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(parentageTable).
		Set(ub.Assign("union_id", newUnionID)).
		Where(ub.Equal("union_id", oldUnionID))

	return r.exec(ctx, ub, map[string]any{"old_union_id": oldUnionID, "new_union_id": newUnionID}, "failed to repoint union links")
}

// ConvertUnionToSingleParent rewrites every link on the union into a single-parent link on parentNodeID.
func (r *ParentageRepository) ConvertUnionToSingleParent(ctx context.Context, unionID, parentNodeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.ConvertUnionToSingleParent")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(parentageTable).
		Set(ub.Assign("union_id", nil), ub.Assign("single_parent_id", parentNodeID)).
		Where(ub.Equal("union_id", unionID))

	return r.exec(ctx, ub, map[string]any{"union_id": unionID, "parent_node_id": parentNodeID}, "failed to convert union links")
}

func (r *ParentageRepository) MoveToTree(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.MoveToTree")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(parentageTable).Set(ub.Assign("tree_id", toTreeID)).Where(ub.Equal("tree_id", fromTreeID))

	return r.exec(ctx, ub, map[string]any{"from_tree_id": fromTreeID, "to_tree_id": toTreeID}, "failed to move parentage links")
}

// Update rewrites the child, target and role of an existing link.
func (r *ParentageRepository) Update(ctx context.Context, link *models.ParentageLink) error {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.Update")
	defer span.End()

	if !link.Target.IsValid() {
		return BadInput("%s", models.ErrInvalidParentageTarget)
	}
	unionID, singleParentID := link.Target.Columns()

	ub := database.NewUpdateBuilder()
	ub.Update(parentageTable).
		Set(
			ub.Assign("tree_id", link.TreeID),
			ub.Assign("child_node_id", link.ChildNodeID),
			ub.Assign("union_id", unionID),
			ub.Assign("single_parent_id", singleParentID),
			ub.Assign("role", link.Role),
		).
		Where(ub.Equal("id", link.ID))

	n, err := r.exec(ctx, ub, map[string]any{"link_id": link.ID}, "failed to update parentage link")
	if err != nil {
		return err
	}
	if n == 0 {
		return NotFound("parentage link %s does not exist", link.ID)
	}

	return nil
}

func (r *ParentageRepository) Delete(ctx context.Context, ids []uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ParentageRepository.Delete")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(parentageTable).Where(db.In("id", database.Flatten(ids)...))

	_, err := r.exec(ctx, db, map[string]any{"link_count": len(ids)}, "failed to delete parentage links")
	return err
}

func (r *ParentageRepository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder, fields map[string]any) ([]models.ParentageLink, error) {
	query, args := sb.Build()
	var rows []parentageRow
	if err := r.DB(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, r.failed(ctx, err, fields, "failed to list parentage links")
	}

	links := make([]models.ParentageLink, 0, len(rows))
	for _, row := range rows {
		link, err := row.toModel()
		if err != nil {
			fields["link_id"] = row.ID
			return nil, r.failed(ctx, err, fields, "stored parentage link is malformed")
		}
		links = append(links, link)
	}
	return links, nil
}
