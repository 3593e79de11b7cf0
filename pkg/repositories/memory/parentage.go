package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

type ParentageRepository struct {
	s *Store
}

func (r *ParentageRepository) Create(ctx context.Context, link *models.ParentageLink) error {
	defer r.s.lock(ctx)()

	if !link.Target.IsValid() {
		return repositories.BadInput("%s", models.ErrInvalidParentageTarget)
	}
	existing := 0
	for _, rec := range r.s.data.links {
		if rec.value.ChildNodeID == link.ChildNodeID {
			existing++
		}
	}
	if existing >= models.MaxParentLinks {
		return repositories.Conflict("child %s already has %d parent links", link.ChildNodeID, existing)
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.Role == "" {
		link.Role = models.RoleBiological
	}
	link.CreatedAt = r.s.now()
	r.s.data.links[link.ID] = record[models.ParentageLink]{value: *link, seq: r.s.nextSeq()}
	return nil
}

func (r *ParentageRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.ParentageLink, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.links, func(l models.ParentageLink) bool { return l.TreeID == treeID }, false), nil
}

func (r *ParentageRepository) ListByChild(ctx context.Context, childNodeID uuid.UUID) ([]models.ParentageLink, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.links, func(l models.ParentageLink) bool { return l.ChildNodeID == childNodeID }, false), nil
}

func (r *ParentageRepository) CountByChild(ctx context.Context, childNodeID uuid.UUID) (int, error) {
	links, err := r.ListByChild(ctx, childNodeID)
	return len(links), err
}

func (r *ParentageRepository) ListByUnion(ctx context.Context, unionID uuid.UUID) ([]models.ParentageLink, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.links, func(l models.ParentageLink) bool {
		id, ok := l.Target.UnionID()
		return ok && id == unionID
	}, false), nil
}

func (r *ParentageRepository) DeleteSingleParentLinksForChild(ctx context.Context, childNodeID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	return remove(r.s.data.links, func(l models.ParentageLink) bool {
		return l.ChildNodeID == childNodeID && l.Target.IsSingleParent()
	}), nil
}

func (r *ParentageRepository) DeleteByChildOrSingleParent(ctx context.Context, nodeID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	return remove(r.s.data.links, func(l models.ParentageLink) bool {
		parent, ok := l.Target.SingleParentID()
		return l.ChildNodeID == nodeID || (ok && parent == nodeID)
	}), nil
}

func (r *ParentageRepository) RepointUnion(ctx context.Context, oldUnionID, newUnionID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	return update(r.s.data.links, onUnion(oldUnionID), func(l *models.ParentageLink) {
		l.Target = models.UnionTarget(newUnionID)
	}), nil
}

func (r *ParentageRepository) ConvertUnionToSingleParent(ctx context.Context, unionID, parentNodeID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	return update(r.s.data.links, onUnion(unionID), func(l *models.ParentageLink) {
		l.Target = models.SingleParentTarget(parentNodeID)
	}), nil
}

func (r *ParentageRepository) MoveToTree(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	return update(r.s.data.links, func(l models.ParentageLink) bool { return l.TreeID == fromTreeID }, func(l *models.ParentageLink) {
		l.TreeID = toTreeID
	}), nil
}

func (r *ParentageRepository) Update(ctx context.Context, link *models.ParentageLink) error {
	defer r.s.lock(ctx)()

	if !link.Target.IsValid() {
		return repositories.BadInput("%s", models.ErrInvalidParentageTarget)
	}
	rec, ok := r.s.data.links[link.ID]
	if !ok {
		return repositories.NotFound("parentage link %s does not exist", link.ID)
	}
	rec.value.TreeID = link.TreeID
	rec.value.ChildNodeID = link.ChildNodeID
	rec.value.Target = link.Target
	rec.value.Role = link.Role
	r.s.data.links[link.ID] = rec
	return nil
}

func (r *ParentageRepository) Delete(ctx context.Context, ids []uuid.UUID) error {
	defer r.s.lock(ctx)()

	for _, id := range ids {
		delete(r.s.data.links, id)
	}
	return nil
}

func onUnion(unionID uuid.UUID) func(models.ParentageLink) bool {
	return func(l models.ParentageLink) bool {
		id, ok := l.Target.UnionID()
		return ok && id == unionID
	}
}
