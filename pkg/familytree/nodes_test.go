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

func TestAddNode(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID

	t.Run("blank name", func(t *testing.T) {
		_, err := e.svc.AddNode(ctx, "alice", tree, models.AddNodeRequest{DisplayName: "  "})
		assert.True(t, repositories.IsBadInput(err))
	})

	t.Run("duplicate self node", func(t *testing.T) {
		self := "alice"
		_, err := e.svc.AddNode(ctx, "alice", tree, models.AddNodeRequest{DisplayName: "Me again", LinkedIdentity: &self})
		assert.True(t, repositories.IsConflict(err))
	})

	t.Run("node for someone else stays unconfirmed", func(t *testing.T) {
		bob := "bob"
		dob := "1961"
		node, err := e.svc.AddNode(ctx, "alice", tree, models.AddNodeRequest{DisplayName: " Bob ", LinkedIdentity: &bob, DateOfBirth: &dob})
		require.NoError(t, err)
		assert.Equal(t, "Bob", node.DisplayName)
		assert.True(t, node.IsLinkedTo("bob"))
		assert.False(t, node.IsConfirmed)
		assert.Nil(t, node.ConfirmedAt)
		require.NotNil(t, node.DateOfBirth)
		assert.Equal(t, dob, *node.DateOfBirth)
	})

	t.Run("stranger", func(t *testing.T) {
		_, err := e.svc.AddNode(ctx, "mallory", tree, models.AddNodeRequest{DisplayName: "Intruder"})
		assert.True(t, repositories.IsForbidden(err))
	})
}

func TestAddNode_ConfirmsSelfNode(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID

	require.NoError(t, e.repos.Nodes.Unclaim(ctx, created.MeNode.ID))

	alice := "alice"
	node, err := e.svc.AddNode(ctx, "alice", tree, models.AddNodeRequest{DisplayName: "Alice", LinkedIdentity: &alice})
	require.NoError(t, err)
	assert.True(t, node.IsClaimed())
	assert.NotNil(t, node.ConfirmedAt)
}

func TestRenameNode(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID
	node := e.addNode(t, "alice", tree, "Grandpa")

	_, err := e.svc.RenameNode(ctx, "alice", tree, node.ID, "")
	assert.True(t, repositories.IsBadInput(err))

	_, err = e.svc.RenameNode(ctx, "mallory", tree, node.ID, "Pops")
	assert.True(t, repositories.IsForbidden(err))

	_, err = e.svc.RenameNode(ctx, "alice", tree, uuid.New(), "Pops")
	assert.True(t, repositories.IsNotFound(err))

	renamed, err := e.svc.RenameNode(ctx, "alice", tree, node.ID, "Pops")
	require.NoError(t, err)
	assert.Equal(t, "Pops", renamed.DisplayName)

	stored, err := e.repos.Nodes.GetByID(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pops", stored.DisplayName)
}

func TestDeleteNode_ReattachesChildrenToSurvivingPartner(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID

	p1 := e.addNode(t, "alice", tree, "P1")
	p2 := e.addNode(t, "alice", tree, "P2")
	c1 := e.addNode(t, "alice", tree, "C1")
	c2 := e.addNode(t, "alice", tree, "C2")

	union, err := e.svc.AddEdge(ctx, "alice", tree, partnerEdge(p1.ID, p2.ID))
	require.NoError(t, err)
	for _, child := range []uuid.UUID{c1.ID, c2.ID} {
		_, err := e.svc.AssignChild(ctx, "alice", tree, models.AssignChildRequest{ChildNodeID: child, ParentANodeID: p1.ID, ParentBNodeID: p2.ID})
		require.NoError(t, err)
	}

	grandparent := e.addNode(t, "alice", tree, "Grandparent")
	_, err = e.svc.AddEdge(ctx, "alice", tree, parentEdge(grandparent.ID, p1.ID))
	require.NoError(t, err)

	invited := "p1"
	invite := &models.Invite{TreeID: tree, NodeID: p1.ID, InvitedBy: "alice", InvitedIdentity: &invited}
	require.NoError(t, e.repos.Invites.Create(ctx, invite))

	result, err := e.svc.DeleteNode(ctx, "alice", tree, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{union.Union.ID}, result.DissolvedUnionIDs)
	assert.Equal(t, 2, result.ReattachedLinks)
	assert.Equal(t, 1, result.RemovedLinks)
	assert.Equal(t, 1, result.RemovedInvites)

	_, err = e.repos.Unions.GetByID(ctx, union.Union.ID)
	assert.True(t, repositories.IsNotFound(err))

	for _, child := range []uuid.UUID{c1.ID, c2.ID} {
		links, err := e.repos.Parentage.ListByChild(ctx, child)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, models.SingleParentTarget(p2.ID), links[0].Target)
	}

	_, err = e.repos.Nodes.GetByID(ctx, p1.ID)
	assert.True(t, repositories.IsNotFound(err))

	_, err = e.repos.Invites.GetByID(ctx, invite.ID)
	assert.True(t, repositories.IsNotFound(err))
}

func TestDeleteNode_RefusesClaimedNode(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")

	_, err := e.svc.DeleteNode(ctx, "alice", created.Tree.ID, created.MeNode.ID)
	assert.True(t, repositories.IsConflict(err))

	_, err = e.repos.Nodes.GetByID(ctx, created.MeNode.ID)
	assert.NoError(t, err)
}

func TestUnclaimNode(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID

	bob := "bob"
	bobNode := &models.Node{TreeID: tree, DisplayName: "Bob", LinkedIdentity: &bob, IsConfirmed: true}
	require.NoError(t, e.repos.Nodes.Create(ctx, bobNode))
	require.NoError(t, e.profiles.Put(ctx, models.Profile{Identity: "bob", DisplayName: "Robert"}))

	_, err := e.svc.UnclaimNode(ctx, "bob", tree, created.MeNode.ID)
	assert.True(t, repositories.IsNotFound(err))

	result, err := e.svc.UnclaimNode(ctx, "bob", tree, bobNode.ID)
	require.NoError(t, err)
	assert.False(t, result.Node.IsClaimed())
	assert.Nil(t, result.Node.LinkedIdentity)
	assert.NotEqual(t, tree, result.NewTree.ID)
	assert.Equal(t, models.DefaultTreeName, result.NewTree.Name)
	assert.Equal(t, "bob", result.NewTree.CreatedBy)
	assert.Equal(t, "Robert", result.MeNode.DisplayName)
	assert.True(t, result.MeNode.IsClaimed())

	stored, err := e.repos.Nodes.GetByID(ctx, bobNode.ID)
	require.NoError(t, err)
	assert.Equal(t, tree, stored.TreeID)
	assert.Nil(t, stored.LinkedIdentity)

	_, err = e.svc.GetTree(ctx, "bob", tree)
	assert.True(t, repositories.IsForbidden(err))

	_, err = e.svc.DeleteNode(ctx, "alice", tree, bobNode.ID)
	assert.NoError(t, err)
}
