package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

type UnionRepository struct {
	s *Store
}

func (r *UnionRepository) pairTaken(treeID uuid.UUID, key models.PairKey, except uuid.UUID) bool {
	for id, rec := range r.s.data.unions {
		if id != except && rec.value.TreeID == treeID && rec.value.Key() == key {
			return true
		}
	}
	return false
}

func (r *UnionRepository) Create(ctx context.Context, union *models.Union) error {
	defer r.s.lock(ctx)()

	if union.IsDegenerate() {
		return repositories.BadInput("a union needs two distinct partners")
	}
	if r.pairTaken(union.TreeID, union.Key(), uuid.Nil) {
		return repositories.Conflict("union already exists for this pair")
	}
	if union.ID == uuid.Nil {
		union.ID = uuid.New()
	}
	if union.Status == "" {
		union.Status = models.UnionStatusPartner
	}
	union.CreatedAt = r.s.now()
	r.s.data.unions[union.ID] = record[models.Union]{value: *union, seq: r.s.nextSeq()}
	return nil
}

func (r *UnionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Union, error) {
	defer r.s.lock(ctx)()

	rec, ok := r.s.data.unions[id]
	if !ok {
		return nil, repositories.NotFound("union %s does not exist", id)
	}
	union := rec.value
	return &union, nil
}

func (r *UnionRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.Union, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.unions, func(u models.Union) bool { return u.TreeID == treeID }, false), nil
}

func (r *UnionRepository) ListByNode(ctx context.Context, treeID, nodeID uuid.UUID) ([]models.Union, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.unions, func(u models.Union) bool {
		return u.TreeID == treeID && u.Has(nodeID)
	}, false), nil
}

func (r *UnionRepository) FindByPair(ctx context.Context, treeID, a, b uuid.UUID) (*models.Union, error) {
	defer r.s.lock(ctx)()

	key := models.UnionPairKey(a, b)
	unions := sorted(r.s.data.unions, func(u models.Union) bool {
		return u.TreeID == treeID && u.Key() == key
	}, false)
	if len(unions) == 0 {
		return nil, nil
	}
	return &unions[0], nil
}

func (r *UnionRepository) MoveToTree(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	for id, rec := range r.s.data.unions {
		if rec.value.TreeID == fromTreeID && r.pairTaken(toTreeID, rec.value.Key(), id) {
			return 0, repositories.Conflict("union already exists for this pair")
		}
	}
	return update(r.s.data.unions, func(u models.Union) bool { return u.TreeID == fromTreeID }, func(u *models.Union) {
		u.TreeID = toTreeID
	}), nil
}

func (r *UnionRepository) UpdatePartners(ctx context.Context, id, a, b uuid.UUID) error {
	defer r.s.lock(ctx)()

	rec, ok := r.s.data.unions[id]
	if !ok {
		return repositories.NotFound("union %s does not exist", id)
	}
	if a == b {
		return repositories.BadInput("a union needs two distinct partners")
	}
	if r.pairTaken(rec.value.TreeID, models.UnionPairKey(a, b), id) {
		return repositories.Conflict("union already exists for this pair")
	}

	rec.value.PartnerANodeID = a
	rec.value.PartnerBNodeID = b
	r.s.data.unions[id] = rec
	return nil
}

func (r *UnionRepository) Delete(ctx context.Context, ids []uuid.UUID) error {
	defer r.s.lock(ctx)()

	for _, id := range ids {
		delete(r.s.data.unions, id)
	}
	return nil
}
