package merging_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

// sharedTrees builds x's tree and y's tree, with x confirmed in both.
func sharedTrees(t *testing.T, f *fixture) (*models.Tree, *models.Tree) {
	t.Helper()
	t1 := f.tree(t, "x")
	f.node(t, t1.ID, "X", "x", true)

	t2 := f.tree(t, "y")
	f.node(t, t2.ID, "Y", "y", true)
	f.node(t, t2.ID, "X", "x", true)
	return t1, t2
}

func TestRequestMerge(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending request", func(t *testing.T) {
		f := newFixture(t)
		t1, t2 := sharedTrees(t, f)
		message := "we are the same family"

		request, err := f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t2.ID, Message: &message})
		require.NoError(t, err)
		assert.Equal(t, models.MergeRequestPending, request.Status)
		assert.Equal(t, t1.ID, request.FromTreeID)
		assert.Equal(t, t2.ID, request.ToTreeID)
		assert.Equal(t, "x", request.RequestedBy)

		_, err = f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t2.ID})
		assert.True(t, repositories.IsConflict(err))
	})

	t.Run("rejects merging a tree into itself", func(t *testing.T) {
		f := newFixture(t)
		t1, _ := sharedTrees(t, f)

		_, err := f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t1.ID})
		assert.True(t, repositories.IsBadInput(err))
	})

	t.Run("requires a shared confirmed person", func(t *testing.T) {
		f := newFixture(t)
		t1 := f.tree(t, "x")
		f.node(t, t1.ID, "X", "x", true)
		t2 := f.tree(t, "y")
		f.node(t, t2.ID, "X", "x", false)

		_, err := f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t2.ID})
		assert.True(t, repositories.IsBadInput(err))
	})

	t.Run("requires access to the source tree", func(t *testing.T) {
		f := newFixture(t)
		t1, t2 := sharedTrees(t, f)

		_, err := f.requests.RequestMerge(ctx, "mallory", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t2.ID})
		assert.True(t, repositories.IsForbidden(err))
	})

	t.Run("unknown target tree", func(t *testing.T) {
		f := newFixture(t)
		t1, _ := sharedTrees(t, f)

		_, err := f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: uuid.New()})
		assert.True(t, repositories.IsNotFound(err))
	})
}

func TestAcceptRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("merges and closes the request", func(t *testing.T) {
		f := newFixture(t)
		t1, t2 := sharedTrees(t, f)
		request, err := f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t2.ID})
		require.NoError(t, err)

		result, err := f.requests.AcceptRequest(ctx, "y", request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MergeRequestAccepted, result.Request.Status)
		require.NotNil(t, result.Merge)
		assert.Equal(t, t1.ID, result.Merge.FromTreeID)
		assert.Equal(t, t2.ID, result.Merge.ToTreeID)

		stored, err := f.repos.MergeRequests.GetByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MergeRequestAccepted, stored.Status)
		assert.NotNil(t, stored.RespondedAt)

		archived, err := f.repos.Trees.GetByID(ctx, t1.ID)
		require.NoError(t, err)
		assert.True(t, archived.IsArchived)

		_, err = f.requests.AcceptRequest(ctx, "y", request.ID)
		assert.True(t, repositories.IsNotFound(err))
	})

	t.Run("only members of the target tree may accept", func(t *testing.T) {
		f := newFixture(t)
		t1, t2 := sharedTrees(t, f)
		request, err := f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t2.ID})
		require.NoError(t, err)

		_, err = f.requests.AcceptRequest(ctx, "mallory", request.ID)
		assert.True(t, repositories.IsForbidden(err))
	})
}

func TestDeclineAndCancelRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	t1, t2 := sharedTrees(t, f)

	first, err := f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t2.ID})
	require.NoError(t, err)

	declined, err := f.requests.DeclineRequest(ctx, "y", first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MergeRequestDeclined, declined.Status)

	_, err = f.requests.DeclineRequest(ctx, "y", first.ID)
	assert.True(t, repositories.IsNotFound(err))

	second, err := f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t2.ID})
	require.NoError(t, err)

	_, err = f.requests.CancelRequest(ctx, "y", second.ID)
	assert.True(t, repositories.IsForbidden(err))

	cancelled, err := f.requests.CancelRequest(ctx, "x", second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MergeRequestCancelled, cancelled.Status)

	again, err := f.requests.CancelRequest(ctx, "x", second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MergeRequestCancelled, again.Status)
}

func TestListRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	t1, t2 := sharedTrees(t, f)

	request, err := f.requests.RequestMerge(ctx, "x", t1.ID, models.CreateMergeRequestRequest{ToTreeID: t2.ID})
	require.NoError(t, err)

	incoming, err := f.requests.ListIncoming(ctx, "y")
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, request.ID, incoming[0].ID)

	outgoing, err := f.requests.ListOutgoing(ctx, "x")
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, request.ID, outgoing[0].ID)

	none, err := f.requests.ListIncoming(ctx, "mallory")
	require.NoError(t, err)
	assert.Empty(t, none)
}
