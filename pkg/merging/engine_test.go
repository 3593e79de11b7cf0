package merging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/access"
	"github.com/Ramsey-B/willow/pkg/locking"
	"github.com/Ramsey-B/willow/pkg/merging"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/repositories/memory"
)

type fixture struct {
	repos    *repositories.Repositories
	resolver *access.Resolver
	locks    *locking.Local
	engine   *merging.Engine
	requests *merging.Requests
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	repos := memory.New(logger)
	resolver := access.NewResolver(repos.Trees, repos.Nodes, logger)
	locks := locking.NewLocal(time.Second)
	engine := merging.NewEngine(repos, resolver, locks, nil, nil, logger)
	return &fixture{
		repos:    repos,
		resolver: resolver,
		locks:    locks,
		engine:   engine,
		requests: merging.NewRequests(engine, repos, resolver, nil, logger),
	}
}

func (f *fixture) tree(t *testing.T, creator string) *models.Tree {
	t.Helper()
	tree := &models.Tree{Name: creator + "'s tree", CreatedBy: creator}
	require.NoError(t, f.repos.Trees.Create(context.Background(), tree))
	return tree
}

// node adds a person; an identity of "" leaves the node unlinked.
func (f *fixture) node(t *testing.T, treeID uuid.UUID, name, identity string, confirmed bool) *models.Node {
	t.Helper()
	node := &models.Node{TreeID: treeID, DisplayName: name, IsConfirmed: confirmed}
	if identity != "" {
		node.LinkedIdentity = &identity
	}
	require.NoError(t, f.repos.Nodes.Create(context.Background(), node))
	return node
}

func (f *fixture) union(t *testing.T, treeID, a, b uuid.UUID) *models.Union {
	t.Helper()
	union := &models.Union{TreeID: treeID, PartnerANodeID: a, PartnerBNodeID: b, Status: models.UnionStatusPartner}
	require.NoError(t, f.repos.Unions.Create(context.Background(), union))
	return union
}

func (f *fixture) link(t *testing.T, treeID, child uuid.UUID, target models.ParentageTarget) *models.ParentageLink {
	t.Helper()
	link := &models.ParentageLink{TreeID: treeID, ChildNodeID: child, Target: target}
	require.NoError(t, f.repos.Parentage.Create(context.Background(), link))
	return link
}

func TestMerge_JoinsOnSharedIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.tree(t, "x")
	x1 := f.node(t, t1.ID, "X", "x", true)
	mom := f.node(t, t1.ID, "Mom", "", false)
	f.link(t, t1.ID, x1.ID, models.SingleParentTarget(mom.ID))

	t2 := f.tree(t, "y")
	f.node(t, t2.ID, "Y", "y", true)
	x2 := f.node(t, t2.ID, "X", "x", true)

	result, err := f.engine.Merge(ctx, t1.ID, t2.ID, models.MergeTriggerInvite)
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	assert.Equal(t, []uuid.UUID{x1.ID}, result.JoinNodeIDs)
	assert.Equal(t, []uuid.UUID{mom.ID}, result.MovedNodeIDs)
	assert.Equal(t, x2.ID, result.NodeRemap[x1.ID])

	_, err = f.repos.Nodes.GetByID(ctx, x1.ID)
	assert.True(t, repositories.IsNotFound(err))

	moved, err := f.repos.Nodes.GetByID(ctx, mom.ID)
	require.NoError(t, err)
	assert.Equal(t, t2.ID, moved.TreeID)

	links, err := f.repos.Parentage.ListByChild(ctx, x2.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.SingleParentTarget(mom.ID), links[0].Target)
	assert.Equal(t, t2.ID, links[0].TreeID)

	archived, err := f.repos.Trees.GetByID(ctx, t1.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)
	require.NotNil(t, archived.MergedIntoTreeID)
	assert.Equal(t, t2.ID, *archived.MergedIntoTreeID)

	resolved, err := f.resolver.Resolve(ctx, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, t2.ID, resolved.Tree.ID)
	require.NotNil(t, resolved.RedirectedFrom)
	assert.Equal(t, t1.ID, *resolved.RedirectedFrom)

	audits, err := f.repos.MergeAudits.ListByTree(ctx, t2.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, t1.ID, audits[0].FromTreeID)
	assert.Equal(t, models.MergeTriggerInvite, audits[0].Trigger)
}

func TestMerge_DeduplicatesUnions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.tree(t, "x")
	x1 := f.node(t, t1.ID, "X", "x", true)
	s1 := f.node(t, t1.ID, "S", "s", true)
	kid := f.node(t, t1.ID, "Kid", "", false)
	u1 := f.union(t, t1.ID, x1.ID, s1.ID)
	f.link(t, t1.ID, kid.ID, models.UnionTarget(u1.ID))

	t2 := f.tree(t, "y")
	x2 := f.node(t, t2.ID, "X", "x", true)
	s2 := f.node(t, t2.ID, "S", "s", true)
	u2 := f.union(t, t2.ID, s2.ID, x2.ID)

	result, err := f.engine.Merge(ctx, t1.ID, t2.ID, models.MergeTriggerMergeRequest)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]uuid.UUID{u1.ID: u2.ID}, result.DedupedUnions)
	assert.ElementsMatch(t, []uuid.UUID{x1.ID, s1.ID}, result.JoinNodeIDs)

	unions, err := f.repos.Unions.ListByTree(ctx, t2.ID)
	require.NoError(t, err)
	require.Len(t, unions, 1)
	assert.Equal(t, u2.ID, unions[0].ID)

	_, err = f.repos.Unions.GetByID(ctx, u1.ID)
	assert.True(t, repositories.IsNotFound(err))

	links, err := f.repos.Parentage.ListByChild(ctx, kid.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.UnionTarget(u2.ID), links[0].Target)
}

func TestMerge_MovesUnionAndRewiresJoinPartner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.tree(t, "x")
	x1 := f.node(t, t1.ID, "X", "x", true)
	partner := f.node(t, t1.ID, "Partner", "", false)
	u1 := f.union(t, t1.ID, x1.ID, partner.ID)

	t2 := f.tree(t, "y")
	x2 := f.node(t, t2.ID, "X", "x", true)

	result, err := f.engine.Merge(ctx, t1.ID, t2.ID, models.MergeTriggerInvite)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MovedUnions)

	moved, err := f.repos.Unions.GetByID(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, t2.ID, moved.TreeID)
	assert.True(t, moved.Has(x2.ID))
	assert.True(t, moved.Has(partner.ID))
}

func TestMerge_CollapsesDegenerateUnion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.tree(t, "z")
	f.node(t, t1.ID, "Z", "z", true)
	a := f.node(t, t1.ID, "X (mother's side)", "x", false)
	b := f.node(t, t1.ID, "X (father's side)", "x", false)
	kid := f.node(t, t1.ID, "Kid", "", false)
	u := f.union(t, t1.ID, a.ID, b.ID)
	f.link(t, t1.ID, kid.ID, models.UnionTarget(u.ID))

	t2 := f.tree(t, "x")
	x2 := f.node(t, t2.ID, "X", "x", true)
	f.node(t, t2.ID, "Z", "z", true)

	result, err := f.engine.Merge(ctx, t1.ID, t2.ID, models.MergeTriggerMergeRequest)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u.ID}, result.RemovedDegenerateUnions)

	_, err = f.repos.Unions.GetByID(ctx, u.ID)
	assert.True(t, repositories.IsNotFound(err))

	links, err := f.repos.Parentage.ListByChild(ctx, kid.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.SingleParentTarget(x2.ID), links[0].Target)
}

func TestMerge_ReconcilesJoinedChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.tree(t, "c")
	c1 := f.node(t, t1.ID, "C", "c", true)
	mom1 := f.node(t, t1.ID, "Mom", "mom", true)
	dad1 := f.node(t, t1.ID, "Dad", "", false)
	f.link(t, t1.ID, c1.ID, models.SingleParentTarget(mom1.ID))
	f.link(t, t1.ID, c1.ID, models.SingleParentTarget(dad1.ID))

	t2 := f.tree(t, "mom")
	c2 := f.node(t, t2.ID, "C", "c", true)
	mom2 := f.node(t, t2.ID, "Mom", "mom", true)
	step := f.node(t, t2.ID, "Step", "", false)
	kept := f.link(t, t2.ID, c2.ID, models.SingleParentTarget(mom2.ID))
	f.link(t, t2.ID, c2.ID, models.SingleParentTarget(step.ID))

	result, err := f.engine.Merge(ctx, t1.ID, t2.ID, models.MergeTriggerMergeRequest)
	require.NoError(t, err)

	dropped := map[string]int{}
	for _, d := range result.DroppedLinks {
		assert.Equal(t, c2.ID, d.ChildNodeID)
		dropped[d.Reason]++
	}
	assert.Equal(t, map[string]int{
		models.DropReasonDuplicate:        1,
		models.DropReasonParentCapReached: 1,
	}, dropped)

	links, err := f.repos.Parentage.ListByChild(ctx, c2.ID)
	require.NoError(t, err)
	require.Len(t, links, models.MaxParentLinks)
	assert.Equal(t, kept.ID, links[0].ID)
}

func TestMerge_CancelsPendingInviteOnJoinNode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.tree(t, "y")
	f.node(t, t1.ID, "Y", "y", true)
	placeholder := f.node(t, t1.ID, "X", "x", false)
	invited := "x"
	invite := &models.Invite{TreeID: t1.ID, NodeID: placeholder.ID, InvitedBy: "y", InvitedIdentity: &invited}
	require.NoError(t, f.repos.Invites.Create(ctx, invite))

	t2 := f.tree(t, "x")
	x2 := f.node(t, t2.ID, "X", "x", true)

	result, err := f.engine.Merge(ctx, t1.ID, t2.ID, models.MergeTriggerMergeRequest)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{invite.ID}, result.CancelledInvites)

	got, err := f.repos.Invites.GetByID(ctx, invite.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusCancelled, got.Status)
	assert.Equal(t, x2.ID, got.NodeID)
	assert.Equal(t, t2.ID, got.TreeID)
}

func TestMerge_NoOpForSameEffectiveTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.tree(t, "x")
	t2 := f.tree(t, "y")
	require.NoError(t, f.repos.Trees.Archive(ctx, t1.ID, &t2.ID, time.Now()))

	for _, from := range []uuid.UUID{t2.ID, t1.ID} {
		result, err := f.engine.Merge(ctx, from, t2.ID, models.MergeTriggerInvite)
		require.NoError(t, err)
		assert.True(t, result.NoOp)
	}

	audits, err := f.repos.MergeAudits.ListByTree(ctx, t2.ID)
	require.NoError(t, err)
	assert.Empty(t, audits)
}

func TestMerge_RepointsEarlierRedirects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t0 := f.tree(t, "x")
	t1 := f.tree(t, "x")
	f.node(t, t1.ID, "X", "x", true)
	require.NoError(t, f.repos.Trees.Archive(ctx, t0.ID, &t1.ID, time.Now()))

	t2 := f.tree(t, "y")
	f.node(t, t2.ID, "X", "x", true)

	result, err := f.engine.Merge(ctx, t1.ID, t2.ID, models.MergeTriggerInvite)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RepointedTrees)

	oldest, err := f.repos.Trees.GetByID(ctx, t0.ID)
	require.NoError(t, err)
	require.NotNil(t, oldest.MergedIntoTreeID)
	assert.Equal(t, t2.ID, *oldest.MergedIntoTreeID)
}

func TestMerge_RejectsArchivedTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.tree(t, "x")
	t2 := f.tree(t, "y")
	require.NoError(t, f.repos.Trees.Archive(ctx, t2.ID, nil, time.Now()))

	_, err := f.engine.Merge(ctx, t1.ID, t2.ID, models.MergeTriggerMergeRequest)
	assert.True(t, repositories.IsBadInput(err))
}

func TestMergeWithinTx_RequiresHeldLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.tree(t, "x")
	t2 := f.tree(t, "y")

	err := f.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := f.engine.MergeWithinTx(ctx, t1.ID, t2.ID, models.MergeTriggerInvite)
		return err
	})
	assert.True(t, repositories.IsConflict(err))
}

type failingAudits struct{}

func (failingAudits) Create(context.Context, *models.TreeMerge) error {
	return errors.New("audit store unavailable")
}

func (failingAudits) ListByTree(context.Context, uuid.UUID) ([]models.TreeMerge, error) {
	return nil, nil
}

func TestMerge_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repos.MergeAudits = failingAudits{}

	t1 := f.tree(t, "x")
	x1 := f.node(t, t1.ID, "X", "x", true)
	mom := f.node(t, t1.ID, "Mom", "", false)
	f.link(t, t1.ID, x1.ID, models.SingleParentTarget(mom.ID))

	t2 := f.tree(t, "y")
	f.node(t, t2.ID, "X", "x", true)

	_, err := f.engine.Merge(ctx, t1.ID, t2.ID, models.MergeTriggerInvite)
	require.Error(t, err)

	tree, err := f.repos.Trees.GetByID(ctx, t1.ID)
	require.NoError(t, err)
	assert.False(t, tree.IsArchived)

	stillThere, err := f.repos.Nodes.GetByID(ctx, x1.ID)
	require.NoError(t, err)
	assert.Equal(t, t1.ID, stillThere.TreeID)

	moved, err := f.repos.Nodes.GetByID(ctx, mom.ID)
	require.NoError(t, err)
	assert.Equal(t, t1.ID, moved.TreeID)

	links, err := f.repos.Parentage.ListByChild(ctx, x1.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}
