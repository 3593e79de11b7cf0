// Package familytree implements the tree, node and relationship operations members perform on
// their family trees. Every operation resolves merge redirects and checks access first, and every
// multi-step write runs as one unit of work.
package familytree

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/access"
	appctx "github.com/Ramsey-B/willow/pkg/context"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/graph"
	"github.com/Ramsey-B/willow/pkg/locking"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/profiles"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

// Dependencies are the collaborators of the tree service.
type Dependencies struct {
	Repos     *repositories.Repositories
	Resolver  *access.Resolver
	Locks     locking.Backend
	Emitter   *events.Emitter
	Refresher *graph.Refresher
	Profiles  profiles.Store
	Logger    ectologger.Logger
}

type Service struct {
	repos     *repositories.Repositories
	resolver  *access.Resolver
	locks     locking.Backend
	emitter   *events.Emitter
	refresher *graph.Refresher
	profiles  profiles.Store
	logger    ectologger.Logger
	now       func() time.Time
}

func NewService(deps Dependencies) *Service {
	return &Service{
		repos:     deps.Repos,
		resolver:  deps.Resolver,
		locks:     deps.Locks,
		emitter:   deps.Emitter,
		refresher: deps.Refresher,
		profiles:  deps.Profiles,
		logger:    deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// liveTree resolves treeID for identity and refuses archived trees that have no survivor.
func (s *Service) liveTree(ctx context.Context, treeID uuid.UUID, identity string) (*models.ResolvedTree, error) {
	resolved, err := s.resolver.ResolveForIdentity(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	if resolved.Tree.IsArchived {
		return nil, repositories.BadInput("tree %s is archived", resolved.Tree.ID)
	}
	return resolved, nil
}

// nodeInTree loads a node and requires it to belong to treeID.
func (s *Service) nodeInTree(ctx context.Context, treeID, nodeID uuid.UUID) (*models.Node, error) {
	node, err := s.repos.Nodes.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.TreeID != treeID {
		return nil, repositories.NotFound("node %s not found in tree %s", nodeID, treeID)
	}
	return node, nil
}

// selfName is the display name given to an identity's own node.
func (s *Service) selfName(ctx context.Context, identity string) string {
	if name := strings.TrimSpace(appctx.GetUserName(ctx)); name != "" {
		return name
	}
	if s.profiles != nil {
		found, err := s.profiles.GetProfiles(ctx, []string{identity})
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("failed to load profile for self node")
		} else if p, ok := found[identity]; ok && strings.TrimSpace(p.DisplayName) != "" {
			return strings.TrimSpace(p.DisplayName)
		}
	}
	return models.DefaultSelfName
}

// createTreeWithSelf writes a tree and its creator's confirmed node in the current unit of work.
func (s *Service) createTreeWithSelf(ctx context.Context, identity, name string) (*models.Tree, *models.Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.DefaultTreeName
	}

	tree := &models.Tree{ID: uuid.New(), Name: name, CreatedBy: identity}
	if err := s.repos.Trees.Create(ctx, tree); err != nil {
		return nil, nil, err
	}

	now := s.now()
	linked := identity
	me := &models.Node{
		ID:             uuid.New(),
		TreeID:         tree.ID,
		DisplayName:    s.selfName(ctx, identity),
		LinkedIdentity: &linked,
		IsConfirmed:    true,
		ConfirmedAt:    &now,
	}
	if err := s.repos.Nodes.Create(ctx, me); err != nil {
		return nil, nil, err
	}
	return tree, me, nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
