package graph

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/repositories"
)

// Refresher rebuilds projections from the relational store after a unit of work commits.
// Projection failures are logged and never surface to the caller.
type Refresher struct {
	repos     *repositories.Repositories
	projector Projector
	logger    ectologger.Logger
}

func NewRefresher(repos *repositories.Repositories, projector Projector, logger ectologger.Logger) *Refresher {
	if projector == nil {
		projector = NopProjector{}
	}
	return &Refresher{repos: repos, projector: projector, logger: logger}
}

// Refresh reprojects each live tree and removes each archived one.
func (r *Refresher) Refresh(ctx context.Context, treeIDs ...uuid.UUID) {
	if r == nil {
		return
	}
	if _, ok := r.projector.(NopProjector); ok {
		return
	}

	for _, treeID := range treeIDs {
		log := r.logger.WithContext(ctx).WithField("tree_id", treeID)

		snapshot, err := r.load(ctx, treeID)
		if err != nil {
			log.WithError(err).Warn("failed to load tree for projection")
			continue
		}

		if snapshot.Tree.IsArchived {
			err = r.projector.RemoveTree(ctx, treeID)
		} else {
			err = r.projector.ProjectTree(ctx, snapshot)
		}
		if err != nil {
			log.WithError(err).Warn("graph projection is stale")
		}
	}
}

func (r *Refresher) load(ctx context.Context, treeID uuid.UUID) (*Snapshot, error) {
	tree, err := r.repos.Trees.GetByID(ctx, treeID)
	if err != nil {
		return nil, err
	}
	snapshot := &Snapshot{Tree: tree}
	if tree.IsArchived {
		return snapshot, nil
	}

	if snapshot.Nodes, err = r.repos.Nodes.ListByTree(ctx, treeID); err != nil {
		return nil, err
	}
	if snapshot.Unions, err = r.repos.Unions.ListByTree(ctx, treeID); err != nil {
		return nil, err
	}
	if snapshot.Links, err = r.repos.Parentage.ListByTree(ctx, treeID); err != nil {
		return nil, err
	}
	return snapshot, nil
}
