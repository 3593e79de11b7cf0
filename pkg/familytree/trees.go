package familytree

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/graph"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// CreateTree creates a tree owned by identity together with identity's confirmed node.
func (s *Service) CreateTree(ctx context.Context, identity, name string) (*models.CreateTreeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.CreateTree")
	defer span.End()

	if identity == "" {
		return nil, repositories.Forbidden("an identity is required to create a tree")
	}

	var result models.CreateTreeResult
	err := s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		tree, me, err := s.createTreeWithSelf(ctx, identity, name)
		if err != nil {
			return err
		}
		result.Tree, result.MeNode = tree, me
		return nil
	})
	metrics.RecordMutation("create_tree", err)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("tree_id", result.Tree.ID).Info("created tree")
	s.emitter.Emit(ctx,
		events.Event{Type: events.EventTypeTreeCreated, TreeID: result.Tree.ID, Data: events.TreeEventData{Tree: result.Tree}},
		events.Event{Type: events.EventTypeNodeCreated, TreeID: result.Tree.ID, Data: events.NodeEventData{Node: result.MeNode}},
	)
	s.refresher.Refresh(ctx, result.Tree.ID)
	return &result, nil
}

// ListMyTrees lists the trees identity created or is linked into, live trees first.
func (s *Service) ListMyTrees(ctx context.Context, identity string) ([]models.Tree, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.ListMyTrees")
	defer span.End()

	if identity == "" {
		return []models.Tree{}, nil
	}
	return s.repos.Trees.ListForIdentity(ctx, identity)
}

func (s *Service) RenameTree(ctx context.Context, identity string, treeID uuid.UUID, name string) (*models.Tree, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.RenameTree")
	defer span.End()

	if blank(name) {
		return nil, repositories.BadInput("tree name cannot be blank")
	}

	resolved, err := s.liveTree(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}

	tree := resolved.Tree
	err = s.repos.Trees.Rename(ctx, tree.ID, trimmed(name))
	metrics.RecordMutation("rename_tree", err)
	if err != nil {
		return nil, err
	}
	tree.Name = trimmed(name)

	s.emitter.Emit(ctx, events.Event{Type: events.EventTypeTreeRenamed, TreeID: tree.ID, Data: events.TreeEventData{Tree: tree}})
	return tree, nil
}

// ArchiveTree archives a tree on its creator's request. Archiving an archived tree changes nothing.
func (s *Service) ArchiveTree(ctx context.Context, identity string, treeID uuid.UUID) (*models.ArchiveTreeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.ArchiveTree")
	defer span.End()

	resolved, err := s.resolver.Resolve(ctx, treeID)
	if err != nil {
		return nil, err
	}
	tree := resolved.Tree
	if !s.resolver.IsCreator(tree, identity) {
		return nil, repositories.Forbidden("only the creator can archive tree %s", tree.ID)
	}
	if tree.IsArchived {
		return &models.ArchiveTreeResult{Tree: tree, AlreadyArchived: true}, nil
	}

	at := s.now()
	err = s.repos.Trees.Archive(ctx, tree.ID, nil, at)
	metrics.RecordMutation("archive_tree", err)
	if err != nil {
		return nil, err
	}
	tree.IsArchived = true
	tree.ArchivedAt = &at

	s.emitter.Emit(ctx, events.Event{Type: events.EventTypeTreeArchived, TreeID: tree.ID, Data: events.TreeEventData{Tree: tree}})
	s.refresher.Refresh(ctx, tree.ID)
	return &models.ArchiveTreeResult{Tree: tree}, nil
}

// GetTree returns the tree graph with edges derived from the stored unions and parentage links.
func (s *Service) GetTree(ctx context.Context, identity string, treeID uuid.UUID) (*models.TreeGraph, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.GetTree")
	defer span.End()

	resolved, err := s.resolver.ResolveForIdentity(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	effective := resolved.Tree.ID

	nodes, err := s.repos.Nodes.ListByTree(ctx, effective)
	if err != nil {
		return nil, err
	}
	unions, err := s.repos.Unions.ListByTree(ctx, effective)
	if err != nil {
		return nil, err
	}
	links, err := s.repos.Parentage.ListByTree(ctx, effective)
	if err != nil {
		return nil, err
	}
	invites, err := s.repos.Invites.ListByTree(ctx, effective)
	if err != nil {
		return nil, err
	}

	pending := map[uuid.UUID]bool{}
	for _, inv := range invites {
		if inv.IsPending() {
			pending[inv.NodeID] = true
		}
	}

	return &models.TreeGraph{
		Tree:           resolved.Tree,
		RedirectedFrom: resolved.RedirectedFrom,
		Nodes:          s.enrich(ctx, nodes, pending),
		Edges:          graph.DeriveEdges(unions, links),
	}, nil
}

// GetNode returns a node and the live tree it belongs to, following merge redirects.
func (s *Service) GetNode(ctx context.Context, identity string, nodeID uuid.UUID) (*models.NodeLookup, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.GetNode")
	defer span.End()

	node, err := s.repos.Nodes.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.ResolveForIdentity(ctx, node.TreeID, identity)
	if err != nil {
		return nil, err
	}
	return &models.NodeLookup{Node: node, EffectiveTreeID: resolved.Tree.ID}, nil
}

// enrich attaches profile data and the pending invite flag. A profile outage degrades to bare nodes.
func (s *Service) enrich(ctx context.Context, nodes []models.Node, pending map[uuid.UUID]bool) []models.NodeView {
	identities := []string{}
	for _, n := range nodes {
		if n.LinkedIdentity != nil {
			identities = append(identities, *n.LinkedIdentity)
		}
	}

	found := map[string]models.Profile{}
	if s.profiles != nil && len(identities) > 0 {
		p, err := s.profiles.GetProfiles(ctx, identities)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("failed to load profiles for tree read")
		} else {
			found = p
		}
	}

	views := make([]models.NodeView, 0, len(nodes))
	for _, n := range nodes {
		view := models.NodeView{Node: n, HasPendingInvite: pending[n.ID]}
		if n.LinkedIdentity != nil {
			if p, ok := found[*n.LinkedIdentity]; ok {
				if p.DisplayName != "" {
					name := p.DisplayName
					view.ProfileName = &name
				}
				if p.ImageURL != "" {
					image := p.ImageURL
					view.ProfileImageURL = &image
				}
			}
		}
		views = append(views, view)
	}
	return views
}
