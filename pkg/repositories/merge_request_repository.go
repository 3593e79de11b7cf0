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

const mergeRequestsTable = "family_tree_merge_requests"

var mergeRequestStruct = database.NewStruct(new(models.MergeRequest))

// MergeRequestRepository handles database operations for tree merge requests
type MergeRequestRepository struct {
	*Repository
}

func NewMergeRequestRepository(db database.DB, logger ectologger.Logger) *MergeRequestRepository {
	return &MergeRequestRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *MergeRequestRepository) Create(ctx context.Context, request *models.MergeRequest) error {
	ctx, span := tracing.StartSpan(ctx, "MergeRequestRepository.Create")
	defer span.End()

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	if request.Status == "" {
		request.Status = models.MergeRequestPending
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(mergeRequestsTable).
		Cols("id", "from_tree_id", "to_tree_id", "requested_by", "message", "status", "created_at").
		Values(request.ID, request.FromTreeID, request.ToTreeID, request.RequestedBy, request.Message, request.Status,
			sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.DB(ctx).QueryRowxContext(ctx, query, args...).Scan(&request.CreatedAt); err != nil {
		return r.failed(ctx, err, map[string]any{"merge_request_id": request.ID}, "failed to create merge request")
	}

	return nil
}

func (r *MergeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "MergeRequestRepository.GetByID")
	defer span.End()

	sb := mergeRequestStruct.SelectFrom(mergeRequestsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var request models.MergeRequest
	err := r.DB(ctx).GetContext(ctx, &request, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("merge request %s does not exist", id)
	}
	if err != nil {
		return nil, r.failed(ctx, err, map[string]any{"merge_request_id": id}, "failed to get merge request")
	}

	return &request, nil
}

// ListIncoming lists pending requests targeting any of treeIDs.
func (r *MergeRequestRepository) ListIncoming(ctx context.Context, treeIDs []uuid.UUID) ([]models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "MergeRequestRepository.ListIncoming")
	defer span.End()

	if len(treeIDs) == 0 {
		return []models.MergeRequest{}, nil
	}

	sb := mergeRequestStruct.SelectFrom(mergeRequestsTable)
	sb.Where(sb.In("to_tree_id", database.Flatten(treeIDs)...), sb.Equal("status", models.MergeRequestPending))
	sb.OrderBy("created_at DESC")

	return r.list(ctx, sb, map[string]any{"tree_count": len(treeIDs)})
}

func (r *MergeRequestRepository) ListOutgoing(ctx context.Context, identity string) ([]models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "MergeRequestRepository.ListOutgoing")
	defer span.End()

	sb := mergeRequestStruct.SelectFrom(mergeRequestsTable)
	sb.Where(sb.Equal("requested_by", identity), sb.Equal("status", models.MergeRequestPending))
	sb.OrderBy("created_at DESC")

	return r.list(ctx, sb, map[string]any{"identity": identity})
}

func (r *MergeRequestRepository) FindPending(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "MergeRequestRepository.FindPending")
	defer span.End()

	sb := mergeRequestStruct.SelectFrom(mergeRequestsTable)
	sb.Where(
		sb.Equal("from_tree_id", fromTreeID),
		sb.Equal("to_tree_id", toTreeID),
		sb.Equal("status", models.MergeRequestPending),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var request models.MergeRequest
	err := r.DB(ctx).GetContext(ctx, &request, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.failed(ctx, err, map[string]any{"from_tree_id": fromTreeID, "to_tree_id": toTreeID}, "failed to find merge request")
	}

	return &request, nil
}

func (r *MergeRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.MergeRequestStatus, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "MergeRequestRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(mergeRequestsTable).
		Set(ub.Assign("status", status), ub.Assign("responded_at", at)).
		Where(ub.Equal("id", id))

	n, err := r.exec(ctx, ub, map[string]any{"merge_request_id": id, "status": status}, "failed to update merge request")
	if err != nil {
		return err
	}
	if n == 0 {
		return NotFound("merge request %s does not exist", id)
	}

	return nil
}

func (r *MergeRequestRepository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder, fields map[string]any) ([]models.MergeRequest, error) {
	query, args := sb.Build()
	requests := []models.MergeRequest{}
	if err := r.DB(ctx).SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, r.failed(ctx, err, fields, "failed to list merge requests")
	}
	return requests, nil
}
