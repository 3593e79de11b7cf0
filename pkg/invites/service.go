// Package invites manages offers to claim a node. Accepting an invite binds the node to the
// acceptor and, when the acceptor already belongs to another tree, merges that tree into the
// invite's tree.
package invites

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/access"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/graph"
	"github.com/Ramsey-B/willow/pkg/locking"
	"github.com/Ramsey-B/willow/pkg/merging"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

type Dependencies struct {
	Repos     *repositories.Repositories
	Resolver  *access.Resolver
	Locks     locking.Backend
	Engine    *merging.Engine
	Emitter   *events.Emitter
	Refresher *graph.Refresher
	Logger    ectologger.Logger
}

type Service struct {
	repos     *repositories.Repositories
	resolver  *access.Resolver
	locks     locking.Backend
	engine    *merging.Engine
	emitter   *events.Emitter
	refresher *graph.Refresher
	logger    ectologger.Logger
	now       func() time.Time
}

func NewService(deps Dependencies) *Service {
	return &Service{
		repos:     deps.Repos,
		resolver:  deps.Resolver,
		locks:     deps.Locks,
		engine:    deps.Engine,
		emitter:   deps.Emitter,
		refresher: deps.Refresher,
		logger:    deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func optional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Create invites someone to claim an unclaimed node of treeID.
func (s *Service) Create(ctx context.Context, identity string, treeID uuid.UUID, req models.CreateInviteRequest) (*models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "invites.Service.Create")
	defer span.End()

	invitedIdentity := optional(req.InvitedIdentity)
	invitedContact := optional(req.InvitedContact)
	if invitedIdentity == nil && invitedContact == nil {
		return nil, repositories.BadInput("an invite needs an invited identity or contact")
	}

	resolved, err := s.resolver.ResolveForIdentity(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	if resolved.Tree.IsArchived {
		return nil, repositories.BadInput("tree %s is archived", resolved.Tree.ID)
	}
	tree := resolved.Tree.ID

	node, err := s.repos.Nodes.GetByID(ctx, req.NodeID)
	if err != nil {
		return nil, err
	}
	if node.TreeID != tree {
		return nil, repositories.NotFound("node %s not found in tree %s", req.NodeID, tree)
	}
	if node.IsClaimed() {
		return nil, repositories.Conflict("node %s is already claimed", node.ID)
	}

	pending, err := s.repos.Invites.HasPending(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, repositories.Conflict("node %s already has a pending invite", node.ID)
	}

	invite := &models.Invite{
		TreeID:          tree,
		NodeID:          node.ID,
		InvitedBy:       identity,
		InvitedIdentity: invitedIdentity,
		InvitedContact:  invitedContact,
		Status:          models.InviteStatusPending,
	}
	if err := s.repos.Invites.Create(ctx, invite); err != nil {
		return nil, err
	}
	metrics.RecordInviteTransition(string(models.InviteStatusPending))

	s.emitter.Emit(ctx, events.Event{Type: events.EventTypeInviteCreated, TreeID: tree, Data: events.InviteEventData{Invite: invite}})
	s.refresher.Refresh(ctx, tree)
	return invite, nil
}

// Cancel withdraws an invite. Only the inviter may cancel; answered invites are returned
// unchanged.
func (s *Service) Cancel(ctx context.Context, identity string, inviteID uuid.UUID) (*models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "invites.Service.Cancel")
	defer span.End()

	invite, err := s.repos.Invites.GetByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.InvitedBy != identity {
		return nil, repositories.Forbidden("only the inviter can cancel invite %s", inviteID)
	}
	if !invite.IsPending() {
		return invite, nil
	}

	return s.respond(ctx, invite, models.InviteStatusCancelled, events.EventTypeInviteCancelled)
}

// Decline turns an invite down on behalf of its recipient.
func (s *Service) Decline(ctx context.Context, identity, email string, inviteID uuid.UUID) (*models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "invites.Service.Decline")
	defer span.End()

	invite, err := s.pendingFor(ctx, identity, email, inviteID)
	if err != nil {
		return nil, err
	}

	return s.respond(ctx, invite, models.InviteStatusDeclined, events.EventTypeInviteDeclined)
}

func (s *Service) respond(ctx context.Context, invite *models.Invite, status models.InviteStatus, eventType events.EventType) (*models.Invite, error) {
	at := s.now()
	if err := s.repos.Invites.UpdateStatus(ctx, invite.ID, status, at); err != nil {
		return nil, err
	}
	invite.Status = status
	invite.RespondedAt = &at
	metrics.RecordInviteTransition(string(status))

	s.emitter.Emit(ctx, events.Event{Type: eventType, TreeID: invite.TreeID, Data: events.InviteEventData{Invite: invite}})
	s.refresher.Refresh(ctx, invite.TreeID)
	return invite, nil
}

// pendingFor loads a pending invite and checks that identity (or email, for contact-only invites)
// is its recipient.
func (s *Service) pendingFor(ctx context.Context, identity, email string, inviteID uuid.UUID) (*models.Invite, error) {
	invite, err := s.repos.Invites.GetByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if !invite.IsPending() {
		return nil, repositories.NotFound("invite %s is not pending", inviteID)
	}
	if identity == "" || !invite.IsAddressedTo(identity, email) {
		return nil, repositories.Forbidden("invite %s is not addressed to you", inviteID)
	}
	return invite, nil
}

// Accept claims the invited node for identity. If identity is already confirmed in another live
// tree, the newest such tree is merged into the invite's tree in the same unit of work.
func (s *Service) Accept(ctx context.Context, identity, email string, inviteID uuid.UUID) (*models.AcceptInviteResult, error) {
	ctx, span := tracing.StartSpan(ctx, "invites.Service.Accept")
	defer span.End()

	invite, err := s.pendingFor(ctx, identity, email, inviteID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.Resolve(ctx, invite.TreeID)
	if err != nil {
		return nil, err
	}
	if resolved.Tree.IsArchived {
		return nil, repositories.BadInput("tree %s is archived", resolved.Tree.ID)
	}
	tree := resolved.Tree.ID

	lockIDs := []uuid.UUID{tree}
	other, err := s.repos.Trees.FindOtherLiveTreeWithConfirmedIdentity(ctx, identity, tree)
	if err != nil {
		return nil, err
	}
	if other != nil {
		lockIDs = append(lockIDs, other.ID)
	}

	start := time.Now()
	result := &models.AcceptInviteResult{TreeID: tree}
	attempted := false

	err = locking.With(ctx, s.locks, "accept_invite", lockIDs, func(ctx context.Context) error {
		return s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			current, err := s.pendingFor(ctx, identity, email, inviteID)
			if err != nil {
				return err
			}
			if current.TreeID != tree {
				return repositories.Conflict("tree %s changed while accepting the invite, retry", tree)
			}

			node, err := s.repos.Nodes.GetByID(ctx, current.NodeID)
			if err != nil {
				return err
			}
			if node.IsClaimed() && !node.IsLinkedTo(identity) {
				return repositories.Conflict("node %s is already claimed", node.ID)
			}
			mine, err := s.repos.Nodes.FindConfirmedByIdentity(ctx, tree, identity)
			if err != nil {
				return err
			}
			if mine != nil && mine.ID != node.ID {
				return repositories.Conflict("you are already a confirmed member of tree %s", tree)
			}

			now := s.now()
			if err := s.repos.Nodes.Claim(ctx, node.ID, identity, now); err != nil {
				return err
			}
			if err := s.repos.Invites.UpdateStatus(ctx, current.ID, models.InviteStatusAccepted, now); err != nil {
				return err
			}
			linked := identity
			node.LinkedIdentity = &linked
			node.IsConfirmed = true
			node.ConfirmedAt = &now
			current.Status = models.InviteStatusAccepted
			current.RespondedAt = &now
			result.Invite = current
			result.Node = node

			source, err := s.repos.Trees.FindOtherLiveTreeWithConfirmedIdentity(ctx, identity, tree)
			if err != nil {
				return err
			}
			if source == nil {
				return nil
			}
			if !locking.Held(ctx, source.ID) {
				return repositories.Conflict("your trees changed while accepting the invite, retry")
			}

			attempted = true
			merged, err := s.engine.MergeWithinTx(ctx, source.ID, tree, models.MergeTriggerInvite)
			if err != nil {
				return err
			}
			result.Merge = merged
			result.Merged = !merged.NoOp
			result.MergedFromTreeID = &merged.FromTreeID
			return nil
		})
	})
	if attempted {
		s.engine.Record(models.MergeTriggerInvite, result.Merge, err, start)
	}
	if err != nil {
		return nil, err
	}
	metrics.RecordInviteTransition(string(models.InviteStatusAccepted))

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"invite_id": inviteID,
		"tree_id":   tree,
		"node_id":   result.Node.ID,
		"merged":    result.Merged,
	}).Info("accepted invite")

	s.emitter.Emit(ctx,
		events.Event{Type: events.EventTypeInviteAccepted, TreeID: tree, Data: events.InviteEventData{Invite: result.Invite}},
		events.Event{Type: events.EventTypeNodeClaimed, TreeID: tree, Data: events.NodeEventData{Node: result.Node}},
	)
	if result.Merged {
		s.engine.AfterCommit(ctx, models.MergeTriggerInvite, result.Merge)
	} else {
		s.refresher.Refresh(ctx, tree)
	}
	return result, nil
}

// ListIncoming lists pending invites addressed to identity or, for contact-only invites, email.
func (s *Service) ListIncoming(ctx context.Context, identity, email string) ([]models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "invites.Service.ListIncoming")
	defer span.End()

	return s.repos.Invites.ListPendingForRecipient(ctx, identity, email)
}

func (s *Service) ListOutgoing(ctx context.Context, identity string) ([]models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "invites.Service.ListOutgoing")
	defer span.End()

	return s.repos.Invites.ListPendingByInviter(ctx, identity)
}

// ListOutgoingForNode lists the pending invites identity sent for one node.
func (s *Service) ListOutgoingForNode(ctx context.Context, identity string, treeID, nodeID uuid.UUID) ([]models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "invites.Service.ListOutgoingForNode")
	defer span.End()

	resolved, err := s.resolver.ResolveForIdentity(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	node, err := s.repos.Nodes.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.TreeID != resolved.Tree.ID {
		return nil, repositories.NotFound("node %s not found in tree %s", nodeID, resolved.Tree.ID)
	}

	invites, err := s.repos.Invites.ListByNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return ectolinq.Filter(invites, func(i models.Invite) bool {
		return i.IsPending() && i.InvitedBy == identity
	}), nil
}

// ListForTree lists every invite of a tree, answered ones included.
func (s *Service) ListForTree(ctx context.Context, identity string, treeID uuid.UUID) ([]models.Invite, error) {
	ctx, span := tracing.StartSpan(ctx, "invites.Service.ListForTree")
	defer span.End()

	resolved, err := s.resolver.ResolveForIdentity(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	return s.repos.Invites.ListByTree(ctx, resolved.Tree.ID)
}
