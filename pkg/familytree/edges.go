package familytree

import (
	"context"
	"slices"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/locking"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

func normalizeRole(role string) (string, error) {
	if role == "" {
		return models.RoleBiological, nil
	}
	if !ectolinq.Contains(models.ParentRoles, role) {
		return "", repositories.BadInput("unknown parent role %q", role)
	}
	return role, nil
}

// AddEdge records a partner or parent_child relationship between two nodes of a tree.
//
// A partner edge finds or creates the union for the unordered pair. A parent_child edge (from is
// the parent, to is the child) attaches the child to the parent's union when the parent has
// exactly one, replacing the child's single-parent links, and otherwise links the child to the
// parent alone.
func (s *Service) AddEdge(ctx context.Context, identity string, treeID uuid.UUID, req models.AddEdgeRequest) (*models.AddEdgeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.AddEdge")
	defer span.End()

	if req.Kind == "" {
		req.Kind = models.EdgeKindParentChild
	}
	if !req.Kind.IsValid() {
		return nil, repositories.BadInput("unknown edge kind %q", req.Kind)
	}
	if req.FromNodeID == req.ToNodeID {
		return nil, repositories.BadInput("a node cannot be related to itself")
	}
	role, err := normalizeRole(req.Role)
	if err != nil {
		return nil, err
	}

	resolved, err := s.liveTree(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	tree := resolved.Tree.ID

	var result *models.AddEdgeResult
	err = locking.With(ctx, s.locks, "add_edge", []uuid.UUID{tree}, func(ctx context.Context) error {
		return s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := s.nodeInTree(ctx, tree, req.FromNodeID); err != nil {
				return err
			}
			if _, err := s.nodeInTree(ctx, tree, req.ToNodeID); err != nil {
				return err
			}

			if req.Kind == models.EdgeKindPartner {
				union, existing, err := s.findOrCreateUnion(ctx, tree, req.FromNodeID, req.ToNodeID)
				if err != nil {
					return err
				}
				result = &models.AddEdgeResult{Kind: req.Kind, Union: union, Existing: existing}
				return nil
			}

			link, existing, err := s.linkParent(ctx, tree, req.FromNodeID, req.ToNodeID, role)
			if err != nil {
				return err
			}
			result = &models.AddEdgeResult{Kind: req.Kind, Link: link, Existing: existing}
			return nil
		})
	})
	metrics.RecordMutation("add_edge", err)
	if err != nil {
		return nil, err
	}

	if !result.Existing {
		s.emitter.Emit(ctx, events.Event{
			Type:   events.EventTypeEdgeCreated,
			TreeID: tree,
			Data:   events.EdgeEventData{Kind: result.Kind, Union: result.Union, Link: result.Link},
		})
		s.refresher.Refresh(ctx, tree)
	}
	return result, nil
}

// AssignChild attaches a child to two explicitly named parents through their union.
func (s *Service) AssignChild(ctx context.Context, identity string, treeID uuid.UUID, req models.AssignChildRequest) (*models.AssignChildResult, error) {
	ctx, span := tracing.StartSpan(ctx, "familytree.Service.AssignChild")
	defer span.End()

	if req.ParentANodeID == req.ParentBNodeID {
		return nil, repositories.BadInput("the two parents must be different people")
	}
	if req.ChildNodeID == req.ParentANodeID || req.ChildNodeID == req.ParentBNodeID {
		return nil, repositories.BadInput("a node cannot be its own parent")
	}
	role, err := normalizeRole(req.Role)
	if err != nil {
		return nil, err
	}

	resolved, err := s.liveTree(ctx, treeID, identity)
	if err != nil {
		return nil, err
	}
	tree := resolved.Tree.ID

	var result models.AssignChildResult
	err = locking.With(ctx, s.locks, "assign_child", []uuid.UUID{tree}, func(ctx context.Context) error {
		return s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			for _, id := range []uuid.UUID{req.ChildNodeID, req.ParentANodeID, req.ParentBNodeID} {
				if _, err := s.nodeInTree(ctx, tree, id); err != nil {
					return err
				}
			}

			links, err := s.repos.Parentage.ListByChild(ctx, req.ChildNodeID)
			if err != nil {
				return err
			}
			union, err := s.repos.Unions.FindByPair(ctx, tree, req.ParentANodeID, req.ParentBNodeID)
			if err != nil {
				return err
			}

			remaining := ectolinq.Filter(links, func(l models.ParentageLink) bool {
				return !l.Target.IsSingleParent()
			})
			if union != nil {
				if idx := slices.IndexFunc(remaining, func(l models.ParentageLink) bool {
					return l.Target == models.UnionTarget(union.ID)
				}); idx >= 0 {
					if _, err := s.repos.Parentage.DeleteSingleParentLinksForChild(ctx, req.ChildNodeID); err != nil {
						return err
					}
					result = models.AssignChildResult{Union: union, Link: &remaining[idx], Existing: true}
					return nil
				}
			}
			if len(remaining) >= models.MaxParentLinks {
				return repositories.Conflict("child %s already has two parent links", req.ChildNodeID)
			}

			if union == nil {
				if union, _, err = s.findOrCreateUnion(ctx, tree, req.ParentANodeID, req.ParentBNodeID); err != nil {
					return err
				}
			}
			if _, err := s.repos.Parentage.DeleteSingleParentLinksForChild(ctx, req.ChildNodeID); err != nil {
				return err
			}

			link := &models.ParentageLink{
				TreeID:      tree,
				ChildNodeID: req.ChildNodeID,
				Target:      models.UnionTarget(union.ID),
				Role:        role,
			}
			if err := s.repos.Parentage.Create(ctx, link); err != nil {
				return err
			}
			result = models.AssignChildResult{Union: union, Link: link}
			return nil
		})
	})
	metrics.RecordMutation("assign_child", err)
	if err != nil {
		return nil, err
	}

	if !result.Existing {
		s.emitter.Emit(ctx, events.Event{
			Type:   events.EventTypeEdgeCreated,
			TreeID: tree,
			Data:   events.EdgeEventData{Kind: models.EdgeKindParentChild, Union: result.Union, Link: result.Link},
		})
	}
	s.refresher.Refresh(ctx, tree)
	return &result, nil
}

func (s *Service) findOrCreateUnion(ctx context.Context, tree, a, b uuid.UUID) (*models.Union, bool, error) {
	union, err := s.repos.Unions.FindByPair(ctx, tree, a, b)
	if err != nil {
		return nil, false, err
	}
	if union != nil {
		return union, true, nil
	}

	union = &models.Union{
		TreeID:         tree,
		PartnerANodeID: a,
		PartnerBNodeID: b,
		Status:         models.UnionStatusPartner,
	}
	if err := s.repos.Unions.Create(ctx, union); err != nil {
		return nil, false, err
	}
	return union, false, nil
}

// linkParent adds a parent_child edge. Re-adding an edge that already exists returns the stored
// link instead of writing a duplicate.
func (s *Service) linkParent(ctx context.Context, tree, parent, child uuid.UUID, role string) (*models.ParentageLink, bool, error) {
	links, err := s.repos.Parentage.ListByChild(ctx, child)
	if err != nil {
		return nil, false, err
	}
	unions, err := s.repos.Unions.ListByNode(ctx, tree, parent)
	if err != nil {
		return nil, false, err
	}

	target := models.SingleParentTarget(parent)
	if len(unions) == 1 {
		target = models.UnionTarget(unions[0].ID)
	}

	if idx := slices.IndexFunc(links, func(l models.ParentageLink) bool { return l.Target == target }); idx >= 0 {
		return &links[idx], true, nil
	}
	if len(links) >= models.MaxParentLinks {
		return nil, false, repositories.Conflict("child %s already has two parent links", child)
	}

	if target.IsUnion() {
		if _, err := s.repos.Parentage.DeleteSingleParentLinksForChild(ctx, child); err != nil {
			return nil, false, err
		}
	}

	link := &models.ParentageLink{TreeID: tree, ChildNodeID: child, Target: target, Role: role}
	if err := s.repos.Parentage.Create(ctx, link); err != nil {
		return nil, false, err
	}
	return link, false, nil
}
