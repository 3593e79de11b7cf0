package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

type TreeRepository struct {
	s *Store
}

func (r *TreeRepository) Create(ctx context.Context, tree *models.Tree) error {
	defer r.s.lock(ctx)()

	if tree.ID == uuid.Nil {
		tree.ID = uuid.New()
	}
	tree.CreatedAt = r.s.now()
	tree.IsArchived = false
	tree.MergedIntoTreeID = nil
	tree.ArchivedAt = nil
	r.s.data.trees[tree.ID] = record[models.Tree]{value: *tree, seq: r.s.nextSeq()}
	return nil
}

func (r *TreeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tree, error) {
	defer r.s.lock(ctx)()

	rec, ok := r.s.data.trees[id]
	if !ok {
		return nil, repositories.NotFound("tree %s does not exist", id)
	}
	tree := rec.value
	return &tree, nil
}

func (r *TreeRepository) ListForIdentity(ctx context.Context, identity string) ([]models.Tree, error) {
	defer r.s.lock(ctx)()

	member := map[uuid.UUID]bool{}
	for _, rec := range r.s.data.nodes {
		if rec.value.IsLinkedTo(identity) {
			member[rec.value.TreeID] = true
		}
	}

	match := func(archived bool) func(models.Tree) bool {
		return func(t models.Tree) bool {
			return t.IsArchived == archived && (t.CreatedBy == identity || member[t.ID])
		}
	}
	live := sorted(r.s.data.trees, match(false), true)
	return append(live, sorted(r.s.data.trees, match(true), true)...), nil
}

func (r *TreeRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	defer r.s.lock(ctx)()

	n := update(r.s.data.trees, func(t models.Tree) bool { return t.ID == id }, func(t *models.Tree) {
		t.Name = name
	})
	if n == 0 {
		return repositories.NotFound("tree %s does not exist", id)
	}
	return nil
}

func (r *TreeRepository) Archive(ctx context.Context, id uuid.UUID, mergedInto *uuid.UUID, at time.Time) error {
	defer r.s.lock(ctx)()

	if mergedInto != nil {
		target, ok := r.s.data.trees[*mergedInto]
		if !ok || target.value.IsArchived {
			return repositories.Internal("merge target must be a live tree")
		}
	}

	n := update(r.s.data.trees, func(t models.Tree) bool { return t.ID == id }, func(t *models.Tree) {
		t.IsArchived = true
		t.MergedIntoTreeID = mergedInto
		archivedAt := at
		t.ArchivedAt = &archivedAt
	})
	if n == 0 {
		return repositories.NotFound("tree %s does not exist", id)
	}
	return nil
}

func (r *TreeRepository) RepointMergedInto(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	to := toTreeID
	return update(r.s.data.trees, func(t models.Tree) bool {
		return t.MergedIntoTreeID != nil && *t.MergedIntoTreeID == fromTreeID
	}, func(t *models.Tree) {
		t.MergedIntoTreeID = &to
	}), nil
}

func (r *TreeRepository) FindOtherLiveTreeWithConfirmedIdentity(ctx context.Context, identity string, excludeTreeID uuid.UUID) (*models.Tree, error) {
	defer r.s.lock(ctx)()

	confirmedIn := map[uuid.UUID]bool{}
	for _, rec := range r.s.data.nodes {
		if rec.value.IsLinkedTo(identity) && rec.value.IsConfirmed {
			confirmedIn[rec.value.TreeID] = true
		}
	}

	trees := sorted(r.s.data.trees, func(t models.Tree) bool {
		return t.ID != excludeTreeID && !t.IsArchived && confirmedIn[t.ID]
	}, true)
	if len(trees) == 0 {
		return nil, nil
	}
	return &trees[0], nil
}

func (r *TreeRepository) ShareConfirmedIdentity(ctx context.Context, treeA, treeB uuid.UUID) (bool, error) {
	defer r.s.lock(ctx)()

	inA := map[string]bool{}
	for _, rec := range r.s.data.nodes {
		n := rec.value
		if n.TreeID == treeA && n.IsClaimed() {
			inA[*n.LinkedIdentity] = true
		}
	}
	for _, rec := range r.s.data.nodes {
		n := rec.value
		if n.TreeID == treeB && n.IsClaimed() && inA[*n.LinkedIdentity] {
			return true, nil
		}
	}
	return false, nil
}
