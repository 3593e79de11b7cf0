// Package memory keeps every family tree table in process memory. It backs local runs with
// DB_DRIVER=memory and the service tests, and honours the same constraints as the postgres schema.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
)

type txKey struct{}

type record[T any] struct {
	value T
	seq   int64
}

type tables struct {
	trees         map[uuid.UUID]record[models.Tree]
	nodes         map[uuid.UUID]record[models.Node]
	unions        map[uuid.UUID]record[models.Union]
	links         map[uuid.UUID]record[models.ParentageLink]
	invites       map[uuid.UUID]record[models.Invite]
	mergeRequests map[uuid.UUID]record[models.MergeRequest]
	merges        map[uuid.UUID]record[models.TreeMerge]
}

func (t tables) clone() tables {
	return tables{
		trees:         maps.Clone(t.trees),
		nodes:         maps.Clone(t.nodes),
		unions:        maps.Clone(t.unions),
		links:         maps.Clone(t.links),
		invites:       maps.Clone(t.invites),
		mergeRequests: maps.Clone(t.mergeRequests),
		merges:        maps.Clone(t.merges),
	}
}

// Store is a single in-memory database. Units of work are serialized and a failed unit of work
// restores the snapshot taken when it began.
type Store struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	seq    int64
	data   tables
	logger ectologger.Logger
	now    func() time.Time
}

func NewStore(logger ectologger.Logger) *Store {
	return &Store{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		data: tables{
			trees:         map[uuid.UUID]record[models.Tree]{},
			nodes:         map[uuid.UUID]record[models.Node]{},
			unions:        map[uuid.UUID]record[models.Union]{},
			links:         map[uuid.UUID]record[models.ParentageLink]{},
			invites:       map[uuid.UUID]record[models.Invite]{},
			mergeRequests: map[uuid.UUID]record[models.MergeRequest]{},
			merges:        map[uuid.UUID]record[models.TreeMerge]{},
		},
	}
}

// New returns the full repository set backed by a fresh store.
func New(logger ectologger.Logger) *repositories.Repositories {
	s := NewStore(logger)
	return &repositories.Repositories{
		Tx:            s,
		Trees:         &TreeRepository{s},
		Nodes:         &NodeRepository{s},
		Unions:        &UnionRepository{s},
		Parentage:     &ParentageRepository{s},
		Invites:       &InviteRepository{s},
		MergeRequests: &MergeRequestRepository{s},
		MergeAudits:   &MergeAuditRepository{s},
	}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// WithinTx runs fn as one unit of work. Nested calls join the outer unit of work.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		s.logger.WithContext(ctx).WithError(err).Debug("rolled back in-memory unit of work")
		return err
	}

	return nil
}

func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// sorted returns the matching rows in insertion order, or newest first.
func sorted[T any](rows map[uuid.UUID]record[T], match func(T) bool, newestFirst bool) []T {
	recs := make([]record[T], 0, len(rows))
	for _, rec := range rows {
		if match == nil || match(rec.value) {
			recs = append(recs, rec)
		}
	}
	slices.SortFunc(recs, func(a, b record[T]) int {
		if newestFirst {
			return int(b.seq - a.seq)
		}
		return int(a.seq - b.seq)
	})

	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.value)
	}
	return out
}

func update[T any](rows map[uuid.UUID]record[T], match func(T) bool, apply func(*T)) int {
	n := 0
	for id, rec := range rows {
		if !match(rec.value) {
			continue
		}
		apply(&rec.value)
		rows[id] = rec
		n++
	}
	return n
}

func remove[T any](rows map[uuid.UUID]record[T], match func(T) bool) int {
	n := 0
	for id, rec := range rows {
		if match(rec.value) {
			delete(rows, id)
			n++
		}
	}
	return n
}
