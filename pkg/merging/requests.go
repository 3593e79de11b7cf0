package merging

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/access"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/locking"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Requests lets a member of one tree ask the members of another to absorb it.
type Requests struct {
	engine   *Engine
	repos    *repositories.Repositories
	resolver *access.Resolver
	emitter  *events.Emitter
	logger   ectologger.Logger
	now      func() time.Time
}

func NewRequests(engine *Engine, repos *repositories.Repositories, resolver *access.Resolver, emitter *events.Emitter, logger ectologger.Logger) *Requests {
	return &Requests{
		engine:   engine,
		repos:    repos,
		resolver: resolver,
		emitter:  emitter,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestMerge asks toTreeID to absorb fromTreeID. The two trees must be different, must share a
// confirmed identity to join on, and may have only one pending request between them.
func (r *Requests) RequestMerge(ctx context.Context, identity string, fromTreeID uuid.UUID, req models.CreateMergeRequestRequest) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Requests.RequestMerge")
	defer span.End()

	from, err := r.resolver.ResolveForIdentity(ctx, fromTreeID, identity)
	if err != nil {
		return nil, err
	}
	to, err := r.resolver.Resolve(ctx, req.ToTreeID)
	if err != nil {
		return nil, err
	}
	if from.Tree.ID == to.Tree.ID {
		return nil, repositories.BadInput("a tree cannot be merged into itself")
	}
	if from.Tree.IsArchived || to.Tree.IsArchived {
		return nil, repositories.BadInput("archived trees cannot be merged")
	}

	shared, err := r.repos.Trees.ShareConfirmedIdentity(ctx, from.Tree.ID, to.Tree.ID)
	if err != nil {
		return nil, err
	}
	if !shared {
		return nil, repositories.BadInput("trees %s and %s have no confirmed person in common", from.Tree.ID, to.Tree.ID)
	}

	pending, err := r.repos.MergeRequests.FindPending(ctx, from.Tree.ID, to.Tree.ID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, repositories.Conflict("a merge request between these trees is already pending")
	}

	request := &models.MergeRequest{
		FromTreeID:  from.Tree.ID,
		ToTreeID:    to.Tree.ID,
		RequestedBy: identity,
		Message:     req.Message,
		Status:      models.MergeRequestPending,
	}
	if err := r.repos.MergeRequests.Create(ctx, request); err != nil {
		return nil, err
	}

	r.emitter.Emit(ctx, events.Event{Type: events.EventTypeMergeRequestCreated, TreeID: request.ToTreeID, Data: events.MergeRequestEventData{Request: request}})
	return request, nil
}

// pendingRequest loads a request that is still awaiting an answer.
func (r *Requests) pendingRequest(ctx context.Context, requestID uuid.UUID) (*models.MergeRequest, error) {
	request, err := r.repos.MergeRequests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return nil, repositories.NotFound("merge request %s is not pending", requestID)
	}
	return request, nil
}

// AcceptRequest merges the requesting tree into the target tree. Only members of the target tree
// may accept.
func (r *Requests) AcceptRequest(ctx context.Context, identity string, requestID uuid.UUID) (*models.MergeRequestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Requests.AcceptRequest")
	defer span.End()

	start := time.Now()

	request, err := r.pendingRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	to, err := r.resolver.ResolveForIdentity(ctx, request.ToTreeID, identity)
	if err != nil {
		return nil, err
	}
	from, err := r.resolver.Resolve(ctx, request.FromTreeID)
	if err != nil {
		return nil, err
	}

	var merged *models.MergeResult
	err = locking.With(ctx, r.engine.locks, "accept_merge_request", []uuid.UUID{from.Tree.ID, to.Tree.ID}, func(ctx context.Context) error {
		return r.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			current, err := r.pendingRequest(ctx, requestID)
			if err != nil {
				return err
			}
			if merged, err = r.engine.MergeWithinTx(ctx, current.FromTreeID, current.ToTreeID, models.MergeTriggerMergeRequest); err != nil {
				return err
			}
			return r.repos.MergeRequests.UpdateStatus(ctx, requestID, models.MergeRequestAccepted, r.now())
		})
	})
	r.engine.Record(models.MergeTriggerMergeRequest, merged, err, start)
	if err != nil {
		return nil, err
	}

	request.Status = models.MergeRequestAccepted
	at := r.now()
	request.RespondedAt = &at

	r.engine.AfterCommit(ctx, models.MergeTriggerMergeRequest, merged)
	r.emitter.Emit(ctx, events.Event{Type: events.EventTypeMergeRequestAccepted, TreeID: merged.ToTreeID, Data: events.MergeRequestEventData{Request: request}})
	return &models.MergeRequestResult{Request: request, Merge: merged}, nil
}

// DeclineRequest turns a request down. Only members of the target tree may decline.
func (r *Requests) DeclineRequest(ctx context.Context, identity string, requestID uuid.UUID) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Requests.DeclineRequest")
	defer span.End()

	request, err := r.pendingRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if _, err := r.resolver.ResolveForIdentity(ctx, request.ToTreeID, identity); err != nil {
		return nil, err
	}

	return r.respond(ctx, request, models.MergeRequestDeclined, events.EventTypeMergeRequestDeclined)
}

// CancelRequest withdraws a request. Only the requester may cancel; answered requests are
// returned unchanged.
func (r *Requests) CancelRequest(ctx context.Context, identity string, requestID uuid.UUID) (*models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Requests.CancelRequest")
	defer span.End()

	request, err := r.repos.MergeRequests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RequestedBy != identity {
		return nil, repositories.Forbidden("only the requester can cancel merge request %s", requestID)
	}
	if !request.IsPending() {
		return request, nil
	}

	return r.respond(ctx, request, models.MergeRequestCancelled, events.EventTypeMergeRequestCancelled)
}

func (r *Requests) respond(ctx context.Context, request *models.MergeRequest, status models.MergeRequestStatus, eventType events.EventType) (*models.MergeRequest, error) {
	at := r.now()
	if err := r.repos.MergeRequests.UpdateStatus(ctx, request.ID, status, at); err != nil {
		return nil, err
	}
	request.Status = status
	request.RespondedAt = &at

	r.emitter.Emit(ctx, events.Event{Type: eventType, TreeID: request.ToTreeID, Data: events.MergeRequestEventData{Request: request}})
	return request, nil
}

// ListIncoming lists requests targeting any tree identity can access.
func (r *Requests) ListIncoming(ctx context.Context, identity string) ([]models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Requests.ListIncoming")
	defer span.End()

	trees, err := r.repos.Trees.ListForIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}

	treeIDs := []uuid.UUID{}
	for i := range trees {
		if trees[i].IsArchived {
			continue
		}
		err := r.resolver.RequireAccess(ctx, &trees[i], identity)
		if repositories.IsForbidden(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		treeIDs = append(treeIDs, trees[i].ID)
	}
	if len(treeIDs) == 0 {
		return []models.MergeRequest{}, nil
	}
	return r.repos.MergeRequests.ListIncoming(ctx, treeIDs)
}

func (r *Requests) ListOutgoing(ctx context.Context, identity string) ([]models.MergeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Requests.ListOutgoing")
	defer span.End()

	return r.repos.MergeRequests.ListOutgoing(ctx, identity)
}
