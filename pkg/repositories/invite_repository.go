package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

const invitesTable = "family_tree_invites"

var inviteStruct = database.NewStruct(new(models.Invite))

// InviteRepository handles database operations for node claim invites
type InviteRepository struct {
	*Repository
}

func NewInviteRepository(db database.DB, logger ectologger.Logger) *InviteRepository {
	return &InviteRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *InviteRepository) Create(ctx context.Context, invite *models.Invite) error {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.Create")
	defer span.End()

	if invite.ID == uuid.Nil {
		invite.ID = uuid.New()
	}
	if invite.Status == "" {
		invite.Status = models.InviteStatusPending
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(invitesTable).
		Cols("id", "tree_id", "node_id", "invited_by", "invited_identity", "invited_contact", "status", "created_at").
		Values(invite.ID, invite.TreeID, invite.NodeID, invite.InvitedBy, invite.InvitedIdentity, invite.InvitedContact,
			invite.Status, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.DB(ctx).QueryRowxContext(ctx, query, args...).Scan(&invite.CreatedAt); err != nil {
		return r.failed(ctx, err, map[string]any{"invite_id": invite.ID, "node_id": invite.NodeID}, "failed to create invite")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"invite_id": invite.ID,
		"node_id":   invite.NodeID,
	}).Debugf("Created %s", invitesTable)
	return nil
}

func (r *InviteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.GetByID")
	defer span.End()

	sb := inviteStruct.SelectFrom(invitesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var invite models.Invite
	err := r.DB(ctx).GetContext(ctx, &invite, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("invite %s does not exist", id)
	}
	if err != nil {
		return nil, r.failed(ctx, err, map[string]any{"invite_id": id}, "failed to get invite")
	}

	return &invite, nil
}

// ListPendingForRecipient lists pending invites addressed to the identity, or to its email when
// the invite carries only a contact.
func (r *InviteRepository) ListPendingForRecipient(ctx context.Context, identity, email string) ([]models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.ListPendingForRecipient")
	defer span.End()

	sb := inviteStruct.SelectFrom(invitesTable)
	recipient := []string{sb.Equal("invited_identity", identity)}
	if email != "" {
		recipient = append(recipient, sb.And(
			sb.IsNull("invited_identity"),
			sb.Equal("LOWER(invited_contact)", strings.ToLower(strings.TrimSpace(email))),
		))
	}
	sb.Where(sb.Equal("status", models.InviteStatusPending), sb.Or(recipient...))
	sb.OrderBy("created_at DESC")

	return r.list(ctx, sb, map[string]any{"identity": identity})
}

func (r *InviteRepository) ListPendingByInviter(ctx context.Context, identity string) ([]models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.ListPendingByInviter")
	defer span.End()

	sb := inviteStruct.SelectFrom(invitesTable)
	sb.Where(sb.Equal("invited_by", identity), sb.Equal("status", models.InviteStatusPending))
	sb.OrderBy("created_at DESC")

	return r.list(ctx, sb, map[string]any{"identity": identity})
}

func (r *InviteRepository) ListByNode(ctx context.Context, nodeID uuid.UUID) ([]models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.ListByNode")
	defer span.End()

	sb := inviteStruct.SelectFrom(invitesTable)
	sb.Where(sb.Equal("node_id", nodeID))
	sb.OrderBy("created_at DESC")

	return r.list(ctx, sb, map[string]any{"node_id": nodeID})
}

func (r *InviteRepository) ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.ListByTree")
	defer span.End()

	sb := inviteStruct.SelectFrom(invitesTable)
	sb.Where(sb.Equal("tree_id", treeID))
	sb.OrderBy("created_at DESC")

	return r.list(ctx, sb, map[string]any{"tree_id": treeID})
}

func (r *InviteRepository) HasPending(ctx context.Context, nodeID uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.HasPending")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(invitesTable).Where(
		sb.Equal("node_id", nodeID),
		sb.Equal("status", models.InviteStatusPending),
	)

	query, args := sb.Build()
	var count int
	if err := r.DB(ctx).GetContext(ctx, &count, query, args...); err != nil {
		return false, r.failed(ctx, err, map[string]any{"node_id": nodeID}, "failed to check pending invites")
	}

	return count > 0, nil
}

func (r *InviteRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.InviteStatus, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(invitesTable).
		Set(ub.Assign("status", status), ub.Assign("responded_at", at)).
		Where(ub.Equal("id", id))

	n, err := r.exec(ctx, ub, map[string]any{"invite_id": id, "status": status}, "failed to update invite")
	if err != nil {
		return err
	}
	if n == 0 {
		return NotFound("invite %s does not exist", id)
	}

	return nil
}

func (r *InviteRepository) DeletePendingForNode(ctx context.Context, nodeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.DeletePendingForNode")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(invitesTable).Where(
		db.Equal("node_id", nodeID),
		db.Equal("status", models.InviteStatusPending),
	)

	return r.exec(ctx, db, map[string]any{"node_id": nodeID}, "failed to delete pending invites")
}

func (r *InviteRepository) MoveToTree(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.MoveToTree")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(invitesTable).Set(ub.Assign("tree_id", toTreeID)).Where(ub.Equal("tree_id", fromTreeID))

	return r.exec(ctx, ub, map[string]any{"from_tree_id": fromTreeID, "to_tree_id": toTreeID}, "failed to move invites")
}

func (r *InviteRepository) RepointNode(ctx context.Context, oldNodeID, newNodeID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "InviteRepository.RepointNode")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(invitesTable).Set(ub.Assign("node_id", newNodeID)).Where(ub.Equal("node_id", oldNodeID))

	return r.exec(ctx, ub, map[string]any{"old_node_id": oldNodeID, "new_node_id": newNodeID}, "failed to repoint invites")
}

func (r *InviteRepository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder, fields map[string]any) ([]models.Invite, error) {
	query, args := sb.Build()
	invites := []models.Invite{}
	if err := r.DB(ctx).SelectContext(ctx, &invites, query, args...); err != nil {
		return nil, r.failed(ctx, err, fields, "failed to list invites")
	}
	return invites, nil
}
