package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/repositories/memory"
)

func newRepos() *repositories.Repositories {
	return memory.New(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func seedTree(t *testing.T, repos *repositories.Repositories, creator string) *models.Tree {
	t.Helper()
	tree := &models.Tree{Name: "Tree", CreatedBy: creator}
	require.NoError(t, repos.Trees.Create(context.Background(), tree))
	return tree
}

func seedNode(t *testing.T, repos *repositories.Repositories, treeID uuid.UUID, name string) *models.Node {
	t.Helper()
	node := &models.Node{TreeID: treeID, DisplayName: name}
	require.NoError(t, repos.Nodes.Create(context.Background(), node))
	return node
}

func TestWithinTx_RollsBackEveryTable(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()
	tree := seedTree(t, repos, "user-1")
	a := seedNode(t, repos, tree.ID, "A")
	b := seedNode(t, repos, tree.ID, "B")

	boom := errors.New("boom")
	err := repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, repos.Unions.Create(ctx, &models.Union{TreeID: tree.ID, PartnerANodeID: a.ID, PartnerBNodeID: b.ID}))
		require.NoError(t, repos.Nodes.Delete(ctx, []uuid.UUID{a.ID}))
		require.NoError(t, repos.Trees.Rename(ctx, tree.ID, "Renamed"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	unions, err := repos.Unions.ListByTree(ctx, tree.ID)
	require.NoError(t, err)
	assert.Empty(t, unions)

	_, err = repos.Nodes.GetByID(ctx, a.ID)
	assert.NoError(t, err)

	got, err := repos.Trees.GetByID(ctx, tree.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tree", got.Name)
}

func TestWithinTx_NestedJoinsOuter(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()
	tree := seedTree(t, repos, "user-1")

	err := repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			return repos.Trees.Rename(ctx, tree.ID, "Inner")
		}); err != nil {
			return err
		}
		return errors.New("outer fails")
	})
	require.Error(t, err)

	got, err := repos.Trees.GetByID(ctx, tree.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tree", got.Name)
}

func TestUnionRepository_PairIsUnordered(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()
	tree := seedTree(t, repos, "user-1")
	a := seedNode(t, repos, tree.ID, "A")
	b := seedNode(t, repos, tree.ID, "B")

	require.NoError(t, repos.Unions.Create(ctx, &models.Union{TreeID: tree.ID, PartnerANodeID: a.ID, PartnerBNodeID: b.ID}))

	err := repos.Unions.Create(ctx, &models.Union{TreeID: tree.ID, PartnerANodeID: b.ID, PartnerBNodeID: a.ID})
	assert.True(t, repositories.IsConflict(err))

	found, err := repos.Unions.FindByPair(ctx, tree.ID, b.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.PartnerANodeID)
}

func TestParentageRepository_CapsLinksPerChild(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()
	tree := seedTree(t, repos, "user-1")
	child := seedNode(t, repos, tree.ID, "Kid")

	for range models.MaxParentLinks {
		parent := seedNode(t, repos, tree.ID, "Parent")
		require.NoError(t, repos.Parentage.Create(ctx, &models.ParentageLink{
			TreeID: tree.ID, ChildNodeID: child.ID, Target: models.SingleParentTarget(parent.ID),
		}))
	}

	extra := seedNode(t, repos, tree.ID, "Extra")
	err := repos.Parentage.Create(ctx, &models.ParentageLink{
		TreeID: tree.ID, ChildNodeID: child.ID, Target: models.SingleParentTarget(extra.ID),
	})
	assert.True(t, repositories.IsConflict(err))
}

func TestParentageRepository_RejectsEmptyTarget(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()
	tree := seedTree(t, repos, "user-1")
	child := seedNode(t, repos, tree.ID, "Kid")
	parent := seedNode(t, repos, tree.ID, "Parent")

	err := repos.Parentage.Create(ctx, &models.ParentageLink{TreeID: tree.ID, ChildNodeID: child.ID})
	require.True(t, repositories.IsBadInput(err))
	assert.Contains(t, err.Error(), models.ErrInvalidParentageTarget.Error())

	link := &models.ParentageLink{TreeID: tree.ID, ChildNodeID: child.ID, Target: models.SingleParentTarget(parent.ID)}
	require.NoError(t, repos.Parentage.Create(ctx, link))

	link.Target = models.ParentageTarget{}
	err = repos.Parentage.Update(ctx, link)
	require.True(t, repositories.IsBadInput(err))
	assert.Contains(t, err.Error(), models.ErrInvalidParentageTarget.Error())
}

func TestNodeRepository_ConfirmedIdentityIsUniquePerTree(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()
	tree := seedTree(t, repos, "user-1")
	identity := "user-1"

	require.NoError(t, repos.Nodes.Create(ctx, &models.Node{
		TreeID: tree.ID, DisplayName: "Me", LinkedIdentity: &identity, IsConfirmed: true,
	}))
	other := seedNode(t, repos, tree.ID, "Other")

	err := repos.Nodes.Claim(ctx, other.ID, identity, other.CreatedAt)
	assert.True(t, repositories.IsConflict(err))
}

func TestTreeRepository_FindOtherLiveTreePrefersNewest(t *testing.T) {
	repos := newRepos()
	ctx := context.Background()
	identity := "user-1"

	older := seedTree(t, repos, identity)
	newer := seedTree(t, repos, identity)
	joining := seedTree(t, repos, "user-2")
	for _, tree := range []*models.Tree{older, newer} {
		require.NoError(t, repos.Nodes.Create(ctx, &models.Node{
			TreeID: tree.ID, DisplayName: "Me", LinkedIdentity: &identity, IsConfirmed: true,
		}))
	}

	found, err := repos.Trees.FindOtherLiveTreeWithConfirmedIdentity(ctx, identity, joining.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, newer.ID, found.ID)
}
