package familytree

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/locking"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// AddNode adds a person to a tree. A node linked to the acting identity is confirmed on creation,
// and an identity may hold only one such node per tree.
func (s *Service) AddNode(ctx context.Context, identity string, treeID uuid.UUID, req models.AddNodeRequest) (*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.AddNode")
	defer span.End()

	if blank(req.DisplayName) {
		return nil, repositories.BadInput("display name cannot be blank")
	}

	resolved, err := s.liveTree(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	tree := resolved.Tree.ID

	var linked *string
	if req.LinkedIdentity != nil && !blank(*req.LinkedIdentity) {
		value := trimmed(*req.LinkedIdentity)
		linked = &value
	}

	node := &models.Node{
		ID:             uuid.New(),
		TreeID:         tree,
		DisplayName:    trimmed(req.DisplayName),
		LinkedIdentity: linked,
		Gender:         req.Gender,
		DateOfBirth:    req.DateOfBirth,
		DateOfDeath:    req.DateOfDeath,
	}

	err = s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if linked != nil && *linked == identity {
			existing, err := s.repos.Nodes.FindByLinkedIdentity(ctx, tree, identity)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return repositories.Conflict("you already have a node in tree %s", tree)
			}
			now := s.now()
			node.IsConfirmed = true
			node.ConfirmedAt = &now
		}
		return s.repos.Nodes.Create(ctx, node)
	})
	metrics.RecordMutation("add_node", err)
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, events.Event{Type: events.EventTypeNodeCreated, TreeID: tree, Data: events.NodeEventData{Node: node}})
	s.refresher.Refresh(ctx, tree)
	return node, nil
}

func (s *Service) RenameNode(ctx context.Context, identity string, treeID, nodeID uuid.UUID, name string) (*models.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.RenameNode")
	defer span.End()

	resolved, err := s.liveTree(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	if blank(name) {
		return nil, repositories.BadInput("display name cannot be blank")
	}

	node, err := s.nodeInTree(ctx, resolved.Tree.ID, nodeID)
	if err != nil {
		return nil, err
	}

	err = s.repos.Nodes.Rename(ctx, node.ID, trimmed(name))
	metrics.RecordMutation("rename_node", err)
	if err != nil {
		return nil, err
	}
	node.DisplayName = trimmed(name)

	s.emitter.Emit(ctx, events.Event{Type: events.EventTypeNodeRenamed, TreeID: node.TreeID, Data: events.NodeEventData{Node: node}})
	s.refresher.Refresh(ctx, node.TreeID)
	return node, nil
}

// DeleteNode removes an unclaimed node without orphaning anyone. In order: each union the node
// belongs to is dissolved and its children are re-linked to the surviving partner, links where
// the node is the child or the single parent are removed, pending invites for the node are
// removed, and finally the node itself.
func (s *Service) DeleteNode(ctx context.Context, identity string, treeID, nodeID uuid.UUID) (*models.DeleteNodeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.DeleteNode")
	defer span.End()

	resolved, err := s.liveTree(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	tree := resolved.Tree.ID
	result := &models.DeleteNodeResult{NodeID: nodeID, DissolvedUnionIDs: []uuid.UUID{}}

	err = locking.With(ctx, s.locks, "delete_node", []uuid.UUID{tree}, func(ctx context.Context) error {
		return s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			node, err := s.nodeInTree(ctx, tree, nodeID)
			if err != nil {
				return err
			}
			if node.IsClaimed() {
				return repositories.Conflict("node %s is claimed; it must be unclaimed before it can be deleted", nodeID)
			}

			unions, err := s.repos.Unions.ListByNode(ctx, tree, nodeID)
			if err != nil {
				return err
			}
			for _, u := range unions {
				n, err := s.repos.Parentage.ConvertUnionToSingleParent(ctx, u.ID, u.Other(nodeID))
				if err != nil {
					return err
				}
				if err := s.repos.Unions.Delete(ctx, []uuid.UUID{u.ID}); err != nil {
					return err
				}
				result.ReattachedLinks += n
				result.DissolvedUnionIDs = append(result.DissolvedUnionIDs, u.ID)
			}

			if result.RemovedLinks, err = s.repos.Parentage.DeleteByChildOrSingleParent(ctx, nodeID); err != nil {
				return err
			}
			if result.RemovedInvites, err = s.repos.Invites.DeletePendingForNode(ctx, nodeID); err != nil {
				return err
			}
			return s.repos.Nodes.Delete(ctx, []uuid.UUID{nodeID})
		})
	})
	metrics.RecordMutation("delete_node", err)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tree_id":          tree,
		"node_id":          nodeID,
		"dissolved_unions": len(result.DissolvedUnionIDs),
		"reattached_links": result.ReattachedLinks,
		"removed_links":    result.RemovedLinks,
	}).Info("deleted node")

	s.emitter.Emit(ctx, events.Event{
		Type:   events.EventTypeNodeDeleted,
		TreeID: tree,
		Data: events.NodeDeletedData{
			NodeID:             nodeID,
			DissolvedUnionIDs:  result.DissolvedUnionIDs,
			RemovedLinkCount:   result.RemovedLinks,
			RemovedInviteCount: result.RemovedInvites,
		},
	})
	s.refresher.Refresh(ctx, tree)
	return result, nil
}

// UnclaimNode detaches identity from its node in a tree and starts a fresh tree for it. The
// detached node stays behind as an unclaimed person.
func (s *Service) UnclaimNode(ctx context.Context, identity string, treeID, nodeID uuid.UUID) (*models.UnclaimResult, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.UnclaimNode")
	defer span.End()

	if identity == "" {
		return nil, repositories.Forbidden("an identity is required to unclaim a node")
	}

	resolved, err := s.resolver.Resolve(ctx, treeID)
	if err != nil {
		return nil, err
	}
	tree := resolved.Tree.ID

	var result models.UnclaimResult
	err = locking.With(ctx, s.locks, "unclaim_node", []uuid.UUID{tree}, func(ctx context.Context) error {
		return s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			node, err := s.nodeInTree(ctx, tree, nodeID)
			if err != nil {
				return err
			}
			if !node.IsLinkedTo(identity) {
				return repositories.NotFound("node %s is not linked to you", nodeID)
			}

			if err := s.repos.Nodes.Unclaim(ctx, nodeID); err != nil {
				return err
			}
			node.LinkedIdentity = nil
			node.IsConfirmed = false
			node.ConfirmedAt = nil

			newTree, me, err := s.createTreeWithSelf(ctx, identity, models.DefaultTreeName)
			if err != nil {
				return err
			}
			result = models.UnclaimResult{Node: node, NewTree: newTree, MeNode: me}
			return nil
		})
	})
	metrics.RecordMutation("unclaim_node", err)
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx,
		events.Event{Type: events.EventTypeNodeUnclaimed, TreeID: tree, Data: events.NodeEventData{Node: result.Node}},
		events.Event{Type: events.EventTypeTreeCreated, TreeID: result.NewTree.ID, Data: events.TreeEventData{Tree: result.NewTree}},
		events.Event{Type: events.EventTypeNodeCreated, TreeID: result.NewTree.ID, Data: events.NodeEventData{Node: result.MeNode}},
	)
	s.refresher.Refresh(ctx, tree, result.NewTree.ID)
	return &result, nil
}
