package repositories

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
)

// TreeRepo defines the interface for family tree repository operations
type TreeRepo interface {
	Create(ctx context.Context, tree *models.Tree) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tree, error)
	ListForIdentity(ctx context.Context, identity string) ([]models.Tree, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	Archive(ctx context.Context, id uuid.UUID, mergedInto *uuid.UUID, at time.Time) error
	RepointMergedInto(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error)
	// FindOtherLiveTreeWithConfirmedIdentity returns nil when no such tree exists.
	FindOtherLiveTreeWithConfirmedIdentity(ctx context.Context, identity string, excludeTreeID uuid.UUID) (*models.Tree, error)
	ShareConfirmedIdentity(ctx context.Context, treeA, treeB uuid.UUID) (bool, error)
}

// NodeRepo defines the interface for node repository operations
type NodeRepo interface {
	Create(ctx context.Context, node *models.Node) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Node, error)
	ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.Node, error)
	FindByLinkedIdentity(ctx context.Context, treeID uuid.UUID, identity string) ([]models.Node, error)
	// FindConfirmedByIdentity returns nil when the identity has no confirmed node in the tree.
	FindConfirmedByIdentity(ctx context.Context, treeID uuid.UUID, identity string) (*models.Node, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	Claim(ctx context.Context, id uuid.UUID, identity string, at time.Time) error
	Unclaim(ctx context.Context, id uuid.UUID) error
	MoveToTree(ctx context.Context, ids []uuid.UUID, toTreeID uuid.UUID) error
	Delete(ctx context.Context, ids []uuid.UUID) error
}

// UnionRepo defines the interface for partner union repository operations
type UnionRepo interface {
	Create(ctx context.Context, union *models.Union) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Union, error)
	ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.Union, error)
	ListByNode(ctx context.Context, treeID, nodeID uuid.UUID) ([]models.Union, error)
	// FindByPair returns nil when the unordered pair has no union in the tree.
	FindByPair(ctx context.Context, treeID, a, b uuid.UUID) (*models.Union, error)
	MoveToTree(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error)
	UpdatePartners(ctx context.Context, id, a, b uuid.UUID) error
	Delete(ctx context.Context, ids []uuid.UUID) error
}

// ParentageRepo defines the interface for parentage link repository operations
type ParentageRepo interface {
	Create(ctx context.Context, link *models.ParentageLink) error
	ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.ParentageLink, error)
	ListByChild(ctx context.Context, childNodeID uuid.UUID) ([]models.ParentageLink, error)
	CountByChild(ctx context.Context, childNodeID uuid.UUID) (int, error)
	ListByUnion(ctx context.Context, unionID uuid.UUID) ([]models.ParentageLink, error)
	DeleteSingleParentLinksForChild(ctx context.Context, childNodeID uuid.UUID) (int, error)
	DeleteByChildOrSingleParent(ctx context.Context, nodeID uuid.UUID) (int, error)
	RepointUnion(ctx context.Context, oldUnionID, newUnionID uuid.UUID) (int, error)
	ConvertUnionToSingleParent(ctx context.Context, unionID, parentNodeID uuid.UUID) (int, error)
	MoveToTree(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error)
	Update(ctx context.Context, link *models.ParentageLink) error
	Delete(ctx context.Context, ids []uuid.UUID) error
}

// InviteRepo defines the interface for invite repository operations
type InviteRepo interface {
	Create(ctx context.Context, invite *models.Invite) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invite, error)
	ListPendingForRecipient(ctx context.Context, identity, email string) ([]models.Invite, error)
	ListPendingByInviter(ctx context.Context, identity string) ([]models.Invite, error)
	ListByNode(ctx context.Context, nodeID uuid.UUID) ([]models.Invite, error)
	ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.Invite, error)
	HasPending(ctx context.Context, nodeID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.InviteStatus, at time.Time) error
	DeletePendingForNode(ctx context.Context, nodeID uuid.UUID) (int, error)
	MoveToTree(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (int, error)
	RepointNode(ctx context.Context, oldNodeID, newNodeID uuid.UUID) (int, error)
}

// MergeRequestRepo defines the interface for merge request repository operations
type MergeRequestRepo interface {
	Create(ctx context.Context, request *models.MergeRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MergeRequest, error)
	ListIncoming(ctx context.Context, treeIDs []uuid.UUID) ([]models.MergeRequest, error)
	ListOutgoing(ctx context.Context, identity string) ([]models.MergeRequest, error)
	// FindPending returns nil when the pair has no pending request.
	FindPending(ctx context.Context, fromTreeID, toTreeID uuid.UUID) (*models.MergeRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.MergeRequestStatus, at time.Time) error
}

// MergeAuditRepo defines the interface for the merge audit trail
type MergeAuditRepo interface {
	Create(ctx context.Context, merge *models.TreeMerge) error
	ListByTree(ctx context.Context, treeID uuid.UUID) ([]models.TreeMerge, error)
}

// Repositories bundles every store behind the unit of work that spans them.
type Repositories struct {
	Tx            database.Transactor
	Trees         TreeRepo
	Nodes         NodeRepo
	Unions        UnionRepo
	Parentage     ParentageRepo
	Invites       InviteRepo
	MergeRequests MergeRequestRepo
	MergeAudits   MergeAuditRepo
}

// NewPostgresRepositories wires every repository onto one database handle.
func NewPostgresRepositories(db database.DB, logger ectologger.Logger) *Repositories {
	return &Repositories{
		Tx:            db,
		Trees:         NewTreeRepository(db, logger),
		Nodes:         NewNodeRepository(db, logger),
		Unions:        NewUnionRepository(db, logger),
		Parentage:     NewParentageRepository(db, logger),
		Invites:       NewInviteRepository(db, logger),
		MergeRequests: NewMergeRequestRepository(db, logger),
		MergeAudits:   NewMergeAuditRepository(db, logger),
	}
}
