// Package locking serializes structural writes per tree. Every edge, delete, unclaim and merge
// path holds the lock of each tree it touches.
package locking

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

// ErrBusy is returned when a tree lock could not be taken before the wait ran out.
var ErrBusy = errors.New("tree is locked by another operation")

// Backend takes and releases a single tree lock.
type Backend interface {
	Lock(ctx context.Context, treeID uuid.UUID) (release func(), err error)
}

type heldKey struct{}

func held(ctx context.Context) map[uuid.UUID]bool {
	m, _ := ctx.Value(heldKey{}).(map[uuid.UUID]bool)
	return m
}

// Trees locks every tree in ascending id order. Trees already locked further up the call chain
// are skipped, so a merge started by invite acceptance reuses the acceptor's locks.
func Trees(ctx context.Context, backend Backend, treeIDs ...uuid.UUID) (context.Context, func(), error) {
	already := held(ctx)
	ids := make([]uuid.UUID, 0, len(treeIDs))
	for _, id := range treeIDs {
		if !already[id] && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })

	releases := make([]func(), 0, len(ids))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, id := range ids {
		release, err := backend.Lock(ctx, id)
		if err != nil {
			releaseAll()
			return ctx, func() {}, err
		}
		releases = append(releases, release)
	}

	next := make(map[uuid.UUID]bool, len(already)+len(ids))
	for id := range already {
		next[id] = true
	}
	for _, id := range ids {
		next[id] = true
	}
	return context.WithValue(ctx, heldKey{}, next), releaseAll, nil
}

// Local is a process-wide lock set used when no Redis is configured.
type Local struct {
	mu      sync.Mutex
	trees   map[uuid.UUID]chan struct{}
	timeout time.Duration
}

// NewLocal creates a lock set; a zero timeout waits as long as ctx allows.
func NewLocal(timeout time.Duration) *Local {
	return &Local{trees: map[uuid.UUID]chan struct{}{}, timeout: timeout}
}

func (l *Local) slot(treeID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.trees[treeID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.trees[treeID] = ch
	}
	return ch
}

func (l *Local) Lock(ctx context.Context, treeID uuid.UUID) (func(), error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	ch := l.slot(treeID)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ErrBusy
	}
}

// Held reports whether treeID is locked further up the call chain of ctx.
func Held(ctx context.Context, treeID uuid.UUID) bool {
	return held(ctx)[treeID]
}

// With runs fn while holding the locks of treeIDs. A tree that stays busy surfaces as a Conflict.
func With(ctx context.Context, backend Backend, operation string, treeIDs []uuid.UUID, fn func(ctx context.Context) error) error {
	ctx, release, err := Trees(ctx, backend, treeIDs...)
	if err != nil {
		metrics.RecordLockFailure(operation)
		if errors.Is(err, ErrBusy) {
			return repositories.Conflict("tree is busy, retry shortly")
		}
		return err
	}
	defer release()

	return fn(ctx)
}
