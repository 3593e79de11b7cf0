package familytree_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/access"
	appctx "github.com/Ramsey-B/willow/pkg/context"
	"github.com/Ramsey-B/willow/pkg/familytree"
	"github.com/Ramsey-B/willow/pkg/graph"
	"github.com/Ramsey-B/willow/pkg/locking"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/profiles"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/repositories/memory"
)

type env struct {
	repos    *repositories.Repositories
	profiles *profiles.Memory
	svc      *familytree.Service
}

func setup(t *testing.T) *env {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	repos := memory.New(logger)
	store := profiles.NewMemory()

	svc := familytree.NewService(familytree.Dependencies{
		Repos:    repos,
		Resolver: access.NewResolver(repos.Trees, repos.Nodes, logger),
		Locks:    locking.NewLocal(time.Second),
		Profiles: store,
		Logger:   logger,
	})
	return &env{repos: repos, profiles: store, svc: svc}
}

func (e *env) createTree(t *testing.T, identity string) *models.CreateTreeResult {
	t.Helper()
	created, err := e.svc.CreateTree(context.Background(), identity, "Family")
	require.NoError(t, err)
	return created
}

func (e *env) addNode(t *testing.T, identity string, treeID uuid.UUID, name string) *models.Node {
	t.Helper()
	node, err := e.svc.AddNode(context.Background(), identity, treeID, models.AddNodeRequest{DisplayName: name})
	require.NoError(t, err)
	return node
}

func TestCreateTree(t *testing.T) {
	e := setup(t)

	t.Run("creates the creator's confirmed node", func(t *testing.T) {
		ctx := appctx.SetUserName(context.Background(), "Alice Smith")

		created, err := e.svc.CreateTree(ctx, "alice", "  ")
		require.NoError(t, err)
		assert.Equal(t, models.DefaultTreeName, created.Tree.Name)
		assert.Equal(t, "alice", created.Tree.CreatedBy)
		assert.Equal(t, "Alice Smith", created.MeNode.DisplayName)
		assert.True(t, created.MeNode.IsClaimed())
		assert.True(t, created.MeNode.IsLinkedTo("alice"))

		nodes, err := e.repos.Nodes.ListByTree(ctx, created.Tree.ID)
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})

	t.Run("falls back to the stored profile name", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, e.profiles.Put(ctx, models.Profile{Identity: "bob", DisplayName: "Bob"}))

		created, err := e.svc.CreateTree(ctx, "bob", "Bob's family")
		require.NoError(t, err)
		assert.Equal(t, "Bob's family", created.Tree.Name)
		assert.Equal(t, "Bob", created.MeNode.DisplayName)
	})

	t.Run("falls back to a default name", func(t *testing.T) {
		created, err := e.svc.CreateTree(context.Background(), "carol", "")
		require.NoError(t, err)
		assert.Equal(t, models.DefaultSelfName, created.MeNode.DisplayName)
	})

	t.Run("requires an identity", func(t *testing.T) {
		_, err := e.svc.CreateTree(context.Background(), "", "Family")
		assert.True(t, repositories.IsForbidden(err))
	})
}

func TestListMyTrees(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	first := e.createTree(t, "alice")
	second := e.createTree(t, "alice")
	e.createTree(t, "bob")

	trees, err := e.svc.ListMyTrees(ctx, "alice")
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, tree := range trees {
		ids = append(ids, tree.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{first.Tree.ID, second.Tree.ID}, ids)

	none, err := e.svc.ListMyTrees(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRenameTree(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")

	_, err := e.svc.RenameTree(ctx, "alice", created.Tree.ID, "   ")
	assert.True(t, repositories.IsBadInput(err))

	_, err = e.svc.RenameTree(ctx, "mallory", created.Tree.ID, "Mine now")
	assert.True(t, repositories.IsForbidden(err))

	renamed, err := e.svc.RenameTree(ctx, "alice", created.Tree.ID, " The Smiths ")
	require.NoError(t, err)
	assert.Equal(t, "The Smiths", renamed.Name)

	stored, err := e.repos.Trees.GetByID(ctx, created.Tree.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Smiths", stored.Name)
}

func TestArchiveTree(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	bob := "bob"
	require.NoError(t, e.repos.Nodes.Create(ctx, &models.Node{TreeID: created.Tree.ID, DisplayName: "Bob", LinkedIdentity: &bob, IsConfirmed: true}))

	_, err := e.svc.ArchiveTree(ctx, "bob", created.Tree.ID)
	assert.True(t, repositories.IsForbidden(err))

	archived, err := e.svc.ArchiveTree(ctx, "alice", created.Tree.ID)
	require.NoError(t, err)
	assert.False(t, archived.AlreadyArchived)
	assert.True(t, archived.Tree.IsArchived)
	assert.Nil(t, archived.Tree.MergedIntoTreeID)

	again, err := e.svc.ArchiveTree(ctx, "alice", created.Tree.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyArchived)

	_, err = e.svc.AddNode(ctx, "alice", created.Tree.ID, models.AddNodeRequest{DisplayName: "Late addition"})
	assert.True(t, repositories.IsBadInput(err))

	view, err := e.svc.GetTree(ctx, "alice", created.Tree.ID)
	require.NoError(t, err)
	assert.True(t, view.Tree.IsArchived)
}

func TestGetTree(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	created := e.createTree(t, "alice")
	tree := created.Tree.ID
	require.NoError(t, e.profiles.Put(ctx, models.Profile{Identity: "alice", DisplayName: "Alice A.", ImageURL: "https://img.example.com/alice.png"}))

	partner := e.addNode(t, "alice", tree, "Sam")
	kid := e.addNode(t, "alice", tree, "Kid")
	loner := e.addNode(t, "alice", tree, "Loner")
	orphan := e.addNode(t, "alice", tree, "Orphan")

	partnerEdge, err := e.svc.AddEdge(ctx, "alice", tree, models.AddEdgeRequest{FromNodeID: created.MeNode.ID, ToNodeID: partner.ID, Kind: models.EdgeKindPartner})
	require.NoError(t, err)
	viaUnion, err := e.svc.AddEdge(ctx, "alice", tree, models.AddEdgeRequest{FromNodeID: partner.ID, ToNodeID: kid.ID, Kind: models.EdgeKindParentChild})
	require.NoError(t, err)
	single, err := e.svc.AddEdge(ctx, "alice", tree, models.AddEdgeRequest{FromNodeID: loner.ID, ToNodeID: orphan.ID, Kind: models.EdgeKindParentChild, Role: models.RoleGuardian})
	require.NoError(t, err)

	invited := "orphan"
	require.NoError(t, e.repos.Invites.Create(ctx, &models.Invite{TreeID: tree, NodeID: orphan.ID, InvitedBy: "alice", InvitedIdentity: &invited}))

	got, err := e.svc.GetTree(ctx, "alice", tree)
	require.NoError(t, err)
	assert.Nil(t, got.RedirectedFrom)
	assert.Len(t, got.Nodes, 5)

	edgeIDs := []string{}
	for _, edge := range got.Edges {
		edgeIDs = append(edgeIDs, edge.ID)
	}
	assert.ElementsMatch(t, []string{
		graph.PartnerEdgeID(partnerEdge.Union.ID),
		graph.ParentEdgeID(viaUnion.Link.ID, "a"),
		graph.ParentEdgeID(viaUnion.Link.ID, "b"),
		graph.SingleParentEdgeID(single.Link.ID),
	}, edgeIDs)

	for _, view := range got.Nodes {
		switch view.ID {
		case created.MeNode.ID:
			require.NotNil(t, view.ProfileName)
			assert.Equal(t, "Alice A.", *view.ProfileName)
			require.NotNil(t, view.ProfileImageURL)
		case orphan.ID:
			assert.True(t, view.HasPendingInvite)
		default:
			assert.False(t, view.HasPendingInvite)
			assert.Nil(t, view.ProfileName)
		}
	}

	_, err = e.svc.GetTree(ctx, "mallory", tree)
	assert.True(t, repositories.IsForbidden(err))

	_, err = e.svc.GetTree(ctx, "alice", uuid.New())
	assert.True(t, repositories.IsNotFound(err))
}

func TestGetTree_FollowsMergeRedirect(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	from := e.createTree(t, "alice")
	to := e.createTree(t, "alice")
	require.NoError(t, e.repos.Trees.Archive(ctx, from.Tree.ID, &to.Tree.ID, time.Now()))

	got, err := e.svc.GetTree(ctx, "alice", from.Tree.ID)
	require.NoError(t, err)
	assert.Equal(t, to.Tree.ID, got.Tree.ID)
	require.NotNil(t, got.RedirectedFrom)
	assert.Equal(t, from.Tree.ID, *got.RedirectedFrom)

	lookup, err := e.svc.GetNode(ctx, "alice", from.MeNode.ID)
	require.NoError(t, err)
	assert.Equal(t, to.Tree.ID, lookup.EffectiveTreeID)
}
