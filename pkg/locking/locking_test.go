package locking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	*Local
	order []uuid.UUID
}

func (b *recordingBackend) Lock(ctx context.Context, treeID uuid.UUID) (func(), error) {
	b.order = append(b.order, treeID)
	return b.Local.Lock(ctx, treeID)
}

func TestTrees_LocksInSortedOrderOnce(t *testing.T) {
	backend := &recordingBackend{Local: NewLocal(0)}
	a, b := uuid.New(), uuid.New()
	low, high := a, b
	if a.String() > b.String() {
		low, high = b, a
	}

	ctx, release, err := Trees(context.Background(), backend, high, low, high)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, []uuid.UUID{low, high}, backend.order)

	_, inner, err := Trees(ctx, backend, low, high)
	require.NoError(t, err)
	inner()
	assert.Len(t, backend.order, 2, "locks held by the caller are reused")
}

func TestLocal_WaitsForRelease(t *testing.T) {
	local := NewLocal(0)
	id := uuid.New()

	release, err := local.Lock(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = local.Lock(ctx, id)
	assert.ErrorIs(t, err, ErrBusy)

	release()
	again, err := local.Lock(context.Background(), id)
	require.NoError(t, err)
	again()
}
