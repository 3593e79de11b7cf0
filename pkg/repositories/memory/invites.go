package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

type InviteRepository struct {
	s *Store
}

func (r *InviteRepository) Create(ctx context.Context, invite *models.Invite) error {
	defer r.s.lock(ctx)()

	if invite.InvitedIdentity == nil && invite.InvitedContact == nil {
		return repositories.BadInput("an invite needs an invited identity or contact")
	}
	if invite.Status == "" {
		invite.Status = models.InviteStatusPending
	}
	if invite.IsPending() && r.hasPending(invite.NodeID) {
		return repositories.Conflict("node %s already has a pending invite", invite.NodeID)
	}
	if invite.ID == uuid.Nil {
		invite.ID = uuid.New()
	}
	invite.CreatedAt = r.s.now()
	r.s.data.invites[invite.ID] = record[models.Invite]{value: *invite, seq: r.s.nextSeq()}
	return nil
}

func (r *InviteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invite, error) {
	defer r.s.lock(ctx)()

	rec, ok := r.s.data.invites[id]
	if !ok {
		return nil, repositories.NotFound("invite %s does not exist", id)
	}
	invite := rec.value
	return &invite, nil
}

func (r *InviteRepository) ListPendingForRecipient(ctx context.Context, identity, email string) ([]models.Invite, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.invites, func(i models.Invite) bool {
		return i.IsPending() && i.IsAddressedTo(identity, email)
	}, true), nil
}

func (r *InviteRepository) ListPendingByInviter(ctx context.Context, identity string) ([]models.Invite, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.invites, func(i models.Invite) bool {
		return i.IsPending() && i.InvitedBy == identity
	}, true), nil
}

func (r *InviteRepository) ListByNode(ctx context.Context, nodeID uuid.UUID) ([]models.Invite, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.invites, func(i models.Invite) bool { return i.NodeID == nodeID }, true), nil
}

func (r *InviteRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.Invite, error) {
	defer r.s.lock(ctx)()

	return sorted(r.s.data.invites, func(i models.Invite) bool { return i.TreeID == treeID }, true), nil
}

func (r *InviteRepository) HasPending(ctx context.Context, nodeID uuid.UUID) (bool, error) {
	defer r.s.lock(ctx)()

	return r.hasPending(nodeID), nil
}

func (r *InviteRepository) hasPending(nodeID uuid.UUID) bool {
	for _, rec := range r.s.data.invites {
		if rec.value.NodeID == nodeID && rec.value.IsPending() {
			return true
		}
	}
	return false
}

func (r *InviteRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.InviteStatus, at time.Time) error {
	defer r.s.lock(ctx)()

	n := update(r.s.data.invites, func(i models.Invite) bool { return i.ID == id }, func(i *models.Invite) {
		respondedAt := at
		i.Status = status
		i.RespondedAt = &respondedAt
	})
	if n == 0 {
		return repositories.NotFound("invite %s does not exist", id)
	}
	return nil
}

func (r *InviteRepository) DeletePendingForNode(ctx context.Context, nodeID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	return remove(r.s.data.invites, func(i models.Invite) bool {
		return i.NodeID == nodeID && i.IsPending()
	}), nil
}

func (r *InviteRepository) MoveToTree(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	return update(r.s.data.invites, func(i models.Invite) bool { return i.TreeID == fromTreeID }, func(i *models.Invite) {
		i.TreeID = toTreeID
	}), nil
}

func (r *InviteRepository) RepointNode(ctx context.Context, oldNodeID, newNodeID uuid.UUID) (int, error) {
	defer r.s.lock(ctx)()

	return update(r.s.data.invites, func(i models.Invite) bool { return i.NodeID == oldNodeID }, func(i *models.Invite) {
		i.NodeID = newNodeID
	}), nil
}
