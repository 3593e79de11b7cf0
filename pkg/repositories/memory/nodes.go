package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

type NodeRepository struct {
	s *Store
}

// confirmedClash reports another confirmed node with the same identity in treeID.
func (r *NodeRepository) confirmedClash(treeID uuid.UUID, identity string, except map[uuid.UUID]bool) bool {
	for id, rec := range r.s.data.nodes {
		if except[id] {
			continue
		}
		n := rec.value
		if n.TreeID == treeID && n.IsConfirmed && n.IsLinkedTo(identity) {
			return true
		}
	}
	return false
}

func (r *NodeRepository) Create(ctx context.Context, node *models.Node) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.data.trees[node.TreeID]; !ok {
		return repositories.NotFound("tree %s does not exist", node.TreeID)
	}
	if node.IsClaimed() && r.confirmedClash(node.TreeID, *node.LinkedIdentity, nil) {
		return repositories.Conflict("identity is already confirmed in tree %s", node.TreeID)
	}
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	node.CreatedAt = r.s.now()
	r.s.data.nodes[node.ID] = record[models.Node]{value: *node, seq: r.s.nextSeq()}
	return nil
}

func (r *NodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Node, error) {
	defer r.s.lock(ctx)()

	rec, ok := r.s.data.nodes[id]
	if !ok {
		return nil, repositories.NotFound("node %s does not exist", id)
	}
	node := rec.value
	return &node, nil
}

func (r *NodeRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.Node, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.nodes, func(n models.Node) bool { return n.TreeID == treeID }, false), nil
}

func (r *NodeRepository) FindByLinkedIdentity(ctx context.Context, treeID uuid.UUID, identity string) ([]models.Node, error) {
	defer r.s.lock(ctx)()

	nodes := sorted(r.s.data.nodes, func(n models.Node) bool {
		return n.TreeID == treeID && n.IsLinkedTo(identity)
	}, false)
	slices.SortStableFunc(nodes, func(a, b models.Node) int {
		switch {
		case a.IsConfirmed == b.IsConfirmed:
			return 0
		case a.IsConfirmed:
			return -1
		}
		return 1
	})
	return nodes, nil
}

func (r *NodeRepository) FindConfirmedByIdentity(ctx context.Context, treeID uuid.UUID, identity string) (*models.Node, error) {
	defer r.s.lock(ctx)()

	nodes := sorted(r.s.data.nodes, func(n models.Node) bool {
		return n.TreeID == treeID && n.IsConfirmed && n.IsLinkedTo(identity)
	}, false)
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

func (r *NodeRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	defer r.s.lock(ctx)()

	return r.updateOne(id, func(n *models.Node) { n.DisplayName = name })
}

func (r *NodeRepository) Claim(ctx context.Context, id uuid.UUID, identity string, at time.Time) error {
	defer r.s.lock(ctx)()

	rec, ok := r.s.data.nodes[id]
	if !ok {
		return repositories.NotFound("node %s does not exist", id)
	}
	if r.confirmedClash(rec.value.TreeID, identity, map[uuid.UUID]bool{id: true}) {
		return repositories.Conflict("identity is already confirmed in tree %s", rec.value.TreeID)
	}

	return r.updateOne(id, func(n *models.Node) {
		linked := identity
		confirmedAt := at
		n.LinkedIdentity = &linked
		n.IsConfirmed = true
		n.ConfirmedAt = &confirmedAt
	})
}

func (r *NodeRepository) Unclaim(ctx context.Context, id uuid.UUID) error {
	defer r.s.lock(ctx)()

	return r.updateOne(id, func(n *models.Node) {
		n.LinkedIdentity = nil
		n.IsConfirmed = false
		n.ConfirmedAt = nil
	})
}

func (r *NodeRepository) MoveToTree(ctx context.Context, ids []uuid.UUID, toTreeID uuid.UUID) error {
	defer r.s.lock(ctx)()

	moving := map[uuid.UUID]bool{}
	for _, id := range ids {
		moving[id] = true
	}
	for _, id := range ids {
		rec, ok := r.s.data.nodes[id]
		if ok && rec.value.IsClaimed() && r.confirmedClash(toTreeID, *rec.value.LinkedIdentity, moving) {
			return repositories.Conflict("identity is already confirmed in tree %s", toTreeID)
		}
	}

	update(r.s.data.nodes, func(n models.Node) bool { return moving[n.ID] }, func(n *models.Node) {
		n.TreeID = toTreeID
	})
	return nil
}

func (r *NodeRepository) Delete(ctx context.Context, ids []uuid.UUID) error {
	defer r.s.lock(ctx)()

	for _, id := range ids {
		delete(r.s.data.nodes, id)
	}
	return nil
}

func (r *NodeRepository) updateOne(id uuid.UUID, apply func(*models.Node)) error {
	if update(r.s.data.nodes, func(n models.Node) bool { return n.ID == id }, apply) == 0 {
		return repositories.NotFound("node %s does not exist", id)
	}
	return nil
}
