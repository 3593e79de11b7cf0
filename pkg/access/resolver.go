// Package access resolves requested tree ids to their live tree and checks who may use them.
package access

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Resolver follows merge redirects and enforces tree membership.
type Resolver struct {
	trees  repositories.TreeRepo
	nodes  repositories.NodeRepo
	logger ectologger.Logger
}

func NewResolver(trees repositories.TreeRepo, nodes repositories.NodeRepo, logger ectologger.Logger) *Resolver {
	return &Resolver{trees: trees, nodes: nodes, logger: logger}
}

// Resolve returns the live tree for treeID. An archived tree that was merged redirects one hop to
// its survivor and RedirectedFrom carries the requested id. An archived tree without a survivor is
// returned as is.
func (r *Resolver) Resolve(ctx context.Context, treeID uuid.UUID) (*models.ResolvedTree, error) {
	ctx, span := tracing.StartSpan(ctx, "access.Resolver.Resolve")
	defer span.End()

	tree, err := r.trees.GetByID(ctx, treeID)
	if err != nil {
		return nil, err
	}

	if !tree.IsArchived || tree.MergedIntoTreeID == nil {
		return &models.ResolvedTree{Tree: tree}, nil
	}

	target, err := r.trees.GetByID(ctx, *tree.MergedIntoTreeID)
	if err != nil {
		if repositories.IsNotFound(err) {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"tree_id":   treeID,
				"merged_to": *tree.MergedIntoTreeID,
			}).Warn("merged tree points at a missing survivor")
			return nil, repositories.NotFound("tree %s not found", treeID)
		}
		return nil, err
	}

	if target.IsArchived {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"tree_id":   treeID,
			"merged_to": target.ID,
		}).Warn("merged tree redirects to an archived tree")
	}

	from := tree.ID
	return &models.ResolvedTree{Tree: target, RedirectedFrom: &from}, nil
}

// IsCreator reports whether identity created tree.
func (r *Resolver) IsCreator(tree *models.Tree, identity string) bool {
	return identity != "" && tree.CreatedBy == identity
}

// RequireAccess passes when identity created tree or holds a confirmed node in it.
func (r *Resolver) RequireAccess(ctx context.Context, tree *models.Tree, identity string) error {
	ctx, span := tracing.StartSpan(ctx, "access.Resolver.RequireAccess")
	defer span.End()

	if identity == "" {
		return repositories.Forbidden("no access to tree %s", tree.ID)
	}
	if r.IsCreator(tree, identity) {
		return nil
	}

	node, err := r.nodes.FindConfirmedByIdentity(ctx, tree.ID, identity)
	if err != nil {
		return err
	}
	if node == nil {
		return repositories.Forbidden("no access to tree %s", tree.ID)
	}
	return nil
}

// ResolveForIdentity resolves treeID and requires access to the effective tree. Every tree-scoped
// operation works against the returned tree's id.
func (r *Resolver) ResolveForIdentity(ctx context.Context, treeID uuid.UUID, identity string) (*models.ResolvedTree, error) {
	resolved, err := r.Resolve(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if err := r.RequireAccess(ctx, resolved.Tree, identity); err != nil {
		return nil, err
	}
	return resolved, nil
}
