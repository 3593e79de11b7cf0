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

const mergesTable = "family_tree_merges"

type mergeRow struct {
	ID         uuid.UUID                          `db:"id"`
	FromTreeID uuid.UUID                          `db:"from_tree_id"`
	ToTreeID   uuid.UUID                          `db:"to_tree_id"`
	Trigger    models.MergeTrigger                `db:"trigger"`
	Result     database.JSONB[models.MergeResult] `db:"result"`
	CreatedAt  time.Time                          `db:"created_at"`
}

var mergeStruct = database.NewStruct(new(mergeRow))

// MergeAuditRepository records every executed merge.
type MergeAuditRepository struct {
	*Repository
}

func NewMergeAuditRepository(db database.DB, logger ectologger.Logger) *MergeAuditRepository {
	return &MergeAuditRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *MergeAuditRepository) Create(ctx context.Context, merge *models.TreeMerge) error {
	ctx, span := tracing.StartSpan(ctx, "MergeAuditRepository.Create")
	defer span.End()

	if merge.ID == uuid.Nil {
		merge.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(mergesTable).
		Cols("id", "from_tree_id", "to_tree_id", "trigger", "result", "created_at").
		Values(merge.ID, merge.FromTreeID, merge.ToTreeID, merge.Trigger, database.NewJSONB(merge.Result),
			sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.DB(ctx).QueryRowxContext(ctx, query, args...).Scan(&merge.CreatedAt); err != nil {
		return r.failed(ctx, err, map[string]any{"from_tree_id": merge.FromTreeID, "to_tree_id": merge.ToTreeID}, "failed to record merge")
	}

	return nil
}

// ListByTree lists merges the tree took part in, on either side.
func (r *MergeAuditRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.TreeMerge, error) {
	ctx, span := tracing.StartSpan(ctx, "MergeAuditRepository.ListByTree")
	defer span.End()

	sb := mergeStruct.SelectFrom(mergesTable)
	sb.Where(sb.Or(sb.Equal("from_tree_id", treeID), sb.Equal("to_tree_id", treeID)))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var rows []mergeRow
	if err := r.DB(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, r.failed(ctx, err, map[string]any{"tree_id": treeID}, "failed to list merges")
	}

	merges := make([]models.TreeMerge, 0, len(rows))
	for _, row := range rows {
		merges = append(merges, models.TreeMerge{
			ID:         row.ID,
			FromTreeID: row.FromTreeID,
			ToTreeID:   row.ToTreeID,
			Trigger:    row.Trigger,
			Result:     row.Result.Data,
			CreatedAt:  row.CreatedAt,
		})
	}
	return merges, nil
}
