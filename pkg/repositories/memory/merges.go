package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

type MergeRequestRepository struct {
	s *Store
}

func (r *MergeRequestRepository) Create(ctx context.Context, request *models.MergeRequest) error {
	defer r.s.lock(ctx)()

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	if request.Status == "" {
		request.Status = models.MergeRequestPending
	}
	request.CreatedAt = r.s.now()
	r.s.data.mergeRequests[request.ID] = record[models.MergeRequest]{value: *request, seq: r.s.nextSeq()}
	return nil
}

func (r *MergeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MergeRequest, error) {
	defer r.s.lock(ctx)()

	rec, ok := r.s.data.mergeRequests[id]
	if !ok {
		return nil, repositories.NotFound("merge request %s does not exist", id)
	}
	request := rec.value
	return &request, nil
}

func (r *MergeRequestRepository) ListIncoming(ctx context.Context, treeIDs []uuid.UUID) ([]models.MergeRequest, error) {
	defer r.s.lock(ctx)()

	targets := map[uuid.UUID]bool{}
	for _, id := range treeIDs {
		targets[id] = true
	}
	return sorted(r.s.data.mergeRequests, func(m models.MergeRequest) bool {
		return m.IsPending() && targets[m.ToTreeID]
	}, true), nil
}

func (r *MergeRequestRepository) ListOutgoing(ctx context.Context, identity string) ([]models.MergeRequest, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.mergeRequests, func(m models.MergeRequest) bool {
		return m.IsPending() && m.RequestedBy == identity
	}, true), nil
}

func (r *MergeRequestRepository) FindPending(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (*models.MergeRequest, error) {
	defer r.s.lock(ctx)()

	requests := sorted(r.s.data.mergeRequests, func(m models.MergeRequest) bool {
		return m.IsPending() && m.FromTreeID == fromTreeID && m.ToTreeID == toTreeID
	}, true)
	if len(requests) == 0 {
		return nil, nil
	}
	return &requests[0], nil
}

func (r *MergeRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.MergeRequestStatus, at time.Time) error {
	defer r.s.lock(ctx)()

	n := update(r.s.data.mergeRequests, func(m models.MergeRequest) bool { return m.ID == id }, func(m *models.MergeRequest) {
		respondedAt := at
		m.Status = status
		m.RespondedAt = &respondedAt
	})
	if n == 0 {
		return repositories.NotFound("merge request %s does not exist", id)
	}
	return nil
}

type MergeAuditRepository struct {
	s *Store
}

func (r *MergeAuditRepository) Create(ctx context.Context, merge *models.TreeMerge) error {
	defer r.s.lock(ctx)()

	if merge.ID == uuid.Nil {
		merge.ID = uuid.New()
	}
	merge.CreatedAt = r.s.now()
	r.s.data.merges[merge.ID] = record[models.TreeMerge]{value: *merge, seq: r.s.nextSeq()}
	return nil
}

func (r *MergeAuditRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.TreeMerge, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.merges, func(m models.TreeMerge) bool {
		return m.FromTreeID == treeID || m.ToTreeID == treeID
	}, true), nil
}
