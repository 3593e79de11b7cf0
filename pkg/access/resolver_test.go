package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/access"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/repositories/memory"
)

func setup(t *testing.T) (*repositories.Repositories, *access.Resolver) {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	repos := memory.New(logger)
	return repos, access.NewResolver(repos.Trees, repos.Nodes, logger)
}

func createTree(t *testing.T, repos *repositories.Repositories, creator string) *models.Tree {
	t.Helper()
	tree := &models.Tree{Name: "Family", CreatedBy: creator}
	require.NoError(t, repos.Trees.Create(context.Background(), tree))
	return tree
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("live tree resolves to itself", func(t *testing.T) {
		repos, resolver := setup(t)
		tree := createTree(t, repos, "alice")

		resolved, err := resolver.Resolve(ctx, tree.ID)
		require.NoError(t, err)
		assert.Equal(t, tree.ID, resolved.Tree.ID)
		assert.Nil(t, resolved.RedirectedFrom)
	})

	t.Run("merged tree redirects to survivor", func(t *testing.T) {
		repos, resolver := setup(t)
		from := createTree(t, repos, "alice")
		to := createTree(t, repos, "bob")
		require.NoError(t, repos.Trees.Archive(ctx, from.ID, &to.ID, time.Now()))

		resolved, err := resolver.Resolve(ctx, from.ID)
		require.NoError(t, err)
		assert.Equal(t, to.ID, resolved.Tree.ID)
		require.NotNil(t, resolved.RedirectedFrom)
		assert.Equal(t, from.ID, *resolved.RedirectedFrom)
	})

	t.Run("owner archived tree does not redirect", func(t *testing.T) {
		repos, resolver := setup(t)
		tree := createTree(t, repos, "alice")
		require.NoError(t, repos.Trees.Archive(ctx, tree.ID, nil, time.Now()))

		resolved, err := resolver.Resolve(ctx, tree.ID)
		require.NoError(t, err)
		assert.Equal(t, tree.ID, resolved.Tree.ID)
		assert.True(t, resolved.Tree.IsArchived)
		assert.Nil(t, resolved.RedirectedFrom)
	})

	t.Run("missing tree", func(t *testing.T) {
		_, resolver := setup(t)

		_, err := resolver.Resolve(ctx, uuid.New())
		assert.True(t, repositories.IsNotFound(err))
	})
}

func TestRequireAccess(t *testing.T) {
	ctx := context.Background()
	repos, resolver := setup(t)
	tree := createTree(t, repos, "alice")

	carol := "carol"
	require.NoError(t, repos.Nodes.Create(ctx, &models.Node{TreeID: tree.ID, DisplayName: "Carol", LinkedIdentity: &carol, IsConfirmed: true}))
	dave := "dave"
	require.NoError(t, repos.Nodes.Create(ctx, &models.Node{TreeID: tree.ID, DisplayName: "Dave", LinkedIdentity: &dave}))

	tests := []struct {
		name      string
		identity  string
		forbidden bool
	}{
		{name: "creator", identity: "alice"},
		{name: "confirmed member", identity: "carol"},
		{name: "unconfirmed link", identity: "dave", forbidden: true},
		{name: "stranger", identity: "mallory", forbidden: true},
		{name: "anonymous", identity: "", forbidden: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := resolver.RequireAccess(ctx, tree, tt.identity)
			if tt.forbidden {
				assert.True(t, repositories.IsForbidden(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResolveForIdentity_ChecksEffectiveTree(t *testing.T) {
	ctx := context.Background()
	repos, resolver := setup(t)
	from := createTree(t, repos, "alice")
	to := createTree(t, repos, "bob")
	require.NoError(t, repos.Trees.Archive(ctx, from.ID, &to.ID, time.Now()))

	_, err := resolver.ResolveForIdentity(ctx, from.ID, "alice")
	assert.True(t, repositories.IsForbidden(err))

	resolved, err := resolver.ResolveForIdentity(ctx, from.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, to.ID, resolved.Tree.ID)
}
