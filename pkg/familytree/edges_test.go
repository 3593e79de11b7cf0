package familytree_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

func parentEdge(parent, child uuid.UUID) models.AddEdgeRequest {
	return models.AddEdgeRequest{FromNodeID: parent, ToNodeID: child, Kind: models.EdgeKindParentChild}
}

func partnerEdge(a, b uuid.UUID) models.AddEdgeRequest {
	return models.AddEdgeRequest{FromNodeID: a, ToNodeID: b, Kind: models.EdgeKindPartner}
}

func TestAddEdge_BuildsAFamily(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID
	me := created.MeNode

	dad := e.addNode(t, "alice", tree, "Dad")
	mom := e.addNode(t, "alice", tree, "Mom")

	partnered, err := e.svc.AddEdge(ctx, "alice", tree, partnerEdge(me.ID, mom.ID))
	require.NoError(t, err)
	require.NotNil(t, partnered.Union)
	assert.False(t, partnered.Existing)

	again, err := e.svc.AddEdge(ctx, "alice", tree, partnerEdge(mom.ID, me.ID))
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, partnered.Union.ID, again.Union.ID)

	kid := e.addNode(t, "alice", tree, "Kid")
	linked, err := e.svc.AddEdge(ctx, "alice", tree, parentEdge(dad.ID, kid.ID))
	require.NoError(t, err)
	assert.Equal(t, models.SingleParentTarget(dad.ID), linked.Link.Target)
	assert.Equal(t, models.RoleBiological, linked.Link.Role)

	_, err = e.svc.AddEdge(ctx, "alice", tree, partnerEdge(dad.ID, mom.ID))
	require.NoError(t, err)

	links, err := e.repos.Parentage.ListByChild(ctx, kid.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.SingleParentTarget(dad.ID), links[0].Target)
}

func TestAddEdge_UpgradesToTheParentsOnlyUnion(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID

	p := e.addNode(t, "alice", tree, "P")
	q := e.addNode(t, "alice", tree, "Q")
	kid := e.addNode(t, "alice", tree, "Kid")

	_, err := e.svc.AddEdge(ctx, "alice", tree, parentEdge(q.ID, kid.ID))
	require.NoError(t, err)
	union, err := e.svc.AddEdge(ctx, "alice", tree, partnerEdge(p.ID, q.ID))
	require.NoError(t, err)

	upgraded, err := e.svc.AddEdge(ctx, "alice", tree, parentEdge(p.ID, kid.ID))
	require.NoError(t, err)
	assert.Equal(t, models.UnionTarget(union.Union.ID), upgraded.Link.Target)

	links, err := e.repos.Parentage.ListByChild(ctx, kid.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, upgraded.Link.ID, links[0].ID)

	repeat, err := e.svc.AddEdge(ctx, "alice", tree, parentEdge(q.ID, kid.ID))
	require.NoError(t, err)
	assert.True(t, repeat.Existing)
	assert.Equal(t, upgraded.Link.ID, repeat.Link.ID)
}

func TestAddEdge_DoesNotGuessBetweenPartners(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID

	p := e.addNode(t, "alice", tree, "P")
	first := e.addNode(t, "alice", tree, "First partner")
	second := e.addNode(t, "alice", tree, "Second partner")
	kid := e.addNode(t, "alice", tree, "Kid")

	_, err := e.svc.AddEdge(ctx, "alice", tree, partnerEdge(p.ID, first.ID))
	require.NoError(t, err)
	_, err = e.svc.AddEdge(ctx, "alice", tree, partnerEdge(p.ID, second.ID))
	require.NoError(t, err)

	linked, err := e.svc.AddEdge(ctx, "alice", tree, parentEdge(p.ID, kid.ID))
	require.NoError(t, err)
	assert.Equal(t, models.SingleParentTarget(p.ID), linked.Link.Target)
}

func TestAddEdge_CapsParentLinks(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID

	kid := e.addNode(t, "alice", tree, "Kid")
	for _, name := range []string{"Mother", "Father"} {
		parent := e.addNode(t, "alice", tree, name)
		_, err := e.svc.AddEdge(ctx, "alice", tree, parentEdge(parent.ID, kid.ID))
		require.NoError(t, err)
	}

	third := e.addNode(t, "alice", tree, "Third")
	_, err := e.svc.AddEdge(ctx, "alice", tree, parentEdge(third.ID, kid.ID))
	assert.True(t, repositories.IsConflict(err))

	count, err := e.repos.Parentage.CountByChild(ctx, kid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaxParentLinks, count)
}

func TestAddEdge_CapCountsLinksBeforeUpgrade(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID

	kid := e.addNode(t, "alice", tree, "Kid")
	p := e.addNode(t, "alice", tree, "P")
	q := e.addNode(t, "alice", tree, "Q")
	for _, parent := range []uuid.UUID{p.ID, q.ID} {
		_, err := e.svc.AddEdge(ctx, "alice", tree, parentEdge(parent, kid.ID))
		require.NoError(t, err)
	}

	r := e.addNode(t, "alice", tree, "R")
	s := e.addNode(t, "alice", tree, "S")
	_, err := e.svc.AddEdge(ctx, "alice", tree, partnerEdge(r.ID, s.ID))
	require.NoError(t, err)

	_, err = e.svc.AddEdge(ctx, "alice", tree, parentEdge(r.ID, kid.ID))
	assert.True(t, repositories.IsConflict(err))

	links, err := e.repos.Parentage.ListByChild(ctx, kid.ID)
	require.NoError(t, err)
	require.Len(t, links, models.MaxParentLinks)
	for _, link := range links {
		assert.False(t, link.Target.IsUnion())
	}
}

func TestAddEdge_RejectsBadInput(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID
	me := created.MeNode.ID
	other := e.addNode(t, "alice", tree, "Other")

	elsewhere := e.createTree(t, "bob")

	tests := []struct {
		name  string
		req   models.AddEdgeRequest
		check func(error) bool
	}{
		{
			name:  "self edge",
			req:   partnerEdge(me, me),
			check: repositories.IsBadInput,
		},
		{
			name:  "unknown kind",
			req:   models.AddEdgeRequest{FromNodeID: me, ToNodeID: other.ID, Kind: "sibling"},
			check: repositories.IsBadInput,
		},
		{
			name:  "unknown role",
			req:   models.AddEdgeRequest{FromNodeID: me, ToNodeID: other.ID, Kind: models.EdgeKindParentChild, Role: "godparent"},
			check: repositories.IsBadInput,
		},
		{
			name:  "node from another tree",
			req:   partnerEdge(me, elsewhere.MeNode.ID),
			check: repositories.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.AddEdge(ctx, "alice", tree, tt.req)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	_, err := e.svc.AddEdge(ctx, "bob", tree, partnerEdge(me, other.ID))
	assert.True(t, repositories.IsForbidden(err))
}

func TestAssignChild(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID

	p1 := e.addNode(t, "alice", tree, "P1")
	p2 := e.addNode(t, "alice", tree, "P2")
	c := e.addNode(t, "alice", tree, "C")

	_, err := e.svc.AddEdge(ctx, "alice", tree, parentEdge(p1.ID, c.ID))
	require.NoError(t, err)

	assigned, err := e.svc.AssignChild(ctx, "alice", tree, models.AssignChildRequest{ChildNodeID: c.ID, ParentANodeID: p1.ID, ParentBNodeID: p2.ID})
	require.NoError(t, err)
	assert.False(t, assigned.Existing)
	assert.True(t, assigned.Union.Has(p1.ID))
	assert.True(t, assigned.Union.Has(p2.ID))

	links, err := e.repos.Parentage.ListByChild(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.UnionTarget(assigned.Union.ID), links[0].Target)

	repeat, err := e.svc.AssignChild(ctx, "alice", tree, models.AssignChildRequest{ChildNodeID: c.ID, ParentANodeID: p2.ID, ParentBNodeID: p1.ID})
	require.NoError(t, err)
	assert.True(t, repeat.Existing)
	assert.Equal(t, assigned.Link.ID, repeat.Link.ID)

	step := e.addNode(t, "alice", tree, "Step")
	_, err = e.svc.AddEdge(ctx, "alice", tree, models.AddEdgeRequest{FromNodeID: step.ID, ToNodeID: c.ID, Kind: models.EdgeKindParentChild, Role: models.RoleStep})
	require.NoError(t, err)

	third := e.addNode(t, "alice", tree, "Third")
	_, err = e.svc.AddEdge(ctx, "alice", tree, parentEdge(third.ID, c.ID))
	assert.True(t, repositories.IsConflict(err))

	adoptive := e.addNode(t, "alice", tree, "Adoptive")
	second, err := e.svc.AssignChild(ctx, "alice", tree, models.AssignChildRequest{ChildNodeID: c.ID, ParentANodeID: third.ID, ParentBNodeID: adoptive.ID, Role: models.RoleAdoptive})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdoptive, second.Link.Role)

	links, err = e.repos.Parentage.ListByChild(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, l := range links {
		assert.True(t, l.Target.IsUnion())
	}

	fourth := e.addNode(t, "alice", tree, "Fourth")
	fifth := e.addNode(t, "alice", tree, "Fifth")
	_, err = e.svc.AssignChild(ctx, "alice", tree, models.AssignChildRequest{ChildNodeID: c.ID, ParentANodeID: fourth.ID, ParentBNodeID: fifth.ID})
	assert.True(t, repositories.IsConflict(err))

	_, err = e.svc.AssignChild(ctx, "alice", tree, models.AssignChildRequest{ChildNodeID: c.ID, ParentANodeID: p1.ID, ParentBNodeID: p1.ID})
	assert.True(t, repositories.IsBadInput(err))

	_, err = e.svc.AssignChild(ctx, "alice", tree, models.AssignChildRequest{ChildNodeID: c.ID, ParentANodeID: c.ID, ParentBNodeID: p1.ID})
	assert.True(t, repositories.IsBadInput(err))
}
