// Package merging folds one family tree into another. Nodes whose linked identity is already
// present in the surviving tree act as join points; everything else moves across, relationships
// are rewired through the join points, and the absorbed tree is archived with a redirect.
package merging

import (
	"context"
	"slices"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/access"
	"github.com/Ramsey-B/willow/pkg/events"
	"github.com/Ramsey-B/willow/pkg/graph"
	"github.com/Ramsey-B/willow/pkg/locking"
	"github.com/Ramsey-B/willow/pkg/metrics"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/repositories"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// Engine handles tree merging
type Engine struct {
	repos     *repositories.Repositories
	resolver  *access.Resolver
	locks     locking.Backend
	emitter   *events.Emitter
	refresher *graph.Refresher
	logger    ectologger.Logger
	now       func() time.Time
}

// NewEngine creates a new merge engine
func NewEngine(
	repos *repositories.Repositories,
	resolver *access.Resolver,
	locks locking.Backend,
	emitter *events.Emitter,
	refresher *graph.Refresher,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		repos:     repos,
		resolver:  resolver,
		locks:     locks,
		emitter:   emitter,
		refresher: refresher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Merge folds fromTreeID into toTreeID as one unit of work while holding both tree locks. Both
// ids are resolved first, so merging into an already merged tree lands on its survivor. Merging a
// tree into itself is a no-op.
func (e *Engine) Merge(ctx context.Context, fromTreeID, toTreeID uuid.UUID, trigger models.MergeTrigger) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	start := time.Now()

	from, err := e.resolver.Resolve(ctx, fromTreeID)
	if err != nil {
		return nil, err
	}
	to, err := e.resolver.Resolve(ctx, toTreeID)
	if err != nil {
		return nil, err
	}

	var result *models.MergeResult
	err = locking.With(ctx, e.locks, "merge", []uuid.UUID{from.Tree.ID, to.Tree.ID}, func(ctx context.Context) error {
		return e.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
			result, err = e.MergeWithinTx(ctx, from.Tree.ID, to.Tree.ID, trigger)
			return err
		})
	})
	e.Record(trigger, result, err, start)
	if err != nil {
		return nil, err
	}

	e.AfterCommit(ctx, trigger, result)
	return result, nil
}

// MergeWithinTx runs the merge inside the caller's unit of work. The caller must already hold the
// locks of both effective trees and must call AfterCommit once its unit of work commits.
func (e *Engine) MergeWithinTx(ctx context.Context, fromTreeID, toTreeID uuid.UUID, trigger models.MergeTrigger) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergeWithinTx")
	defer span.End()

	from, err := e.resolver.Resolve(ctx, fromTreeID)
	if err != nil {
		return nil, err
	}
	to, err := e.resolver.Resolve(ctx, toTreeID)
	if err != nil {
		return nil, err
	}

	result := &models.MergeResult{
		FromTreeID:    from.Tree.ID,
		ToTreeID:      to.Tree.ID,
		NodeRemap:     map[uuid.UUID]uuid.UUID{},
		DedupedUnions: map[uuid.UUID]uuid.UUID{},
	}
	if from.Tree.ID == to.Tree.ID {
		result.NoOp = true
		return result, nil
	}
	if to.Tree.IsArchived {
		return nil, repositories.BadInput("cannot merge into archived tree %s", to.Tree.ID)
	}
	if from.Tree.IsArchived {
		return nil, repositories.BadInput("tree %s is archived", from.Tree.ID)
	}
	if !locking.Held(ctx, from.Tree.ID) || !locking.Held(ctx, to.Tree.ID) {
		return nil, repositories.Conflict("trees changed while the merge was starting, retry")
	}

	m := &merge{
		Engine: e,
		from:   from.Tree.ID,
		to:     to.Tree.ID,
		result: result,
		log: e.logger.WithContext(ctx).WithFields(map[string]any{
			"from_tree_id": from.Tree.ID,
			"to_tree_id":   to.Tree.ID,
			"trigger":      trigger,
		}),
	}
	if err := m.run(ctx); err != nil {
		return nil, err
	}

	audit := &models.TreeMerge{FromTreeID: m.from, ToTreeID: m.to, Trigger: trigger, Result: *result}
	if err := e.repos.MergeAudits.Create(ctx, audit); err != nil {
		return nil, err
	}

	m.log.WithFields(map[string]any{
		"join_nodes":    len(result.JoinNodeIDs),
		"moved_nodes":   len(result.MovedNodeIDs),
		"moved_unions":  result.MovedUnions,
		"moved_links":   result.MovedLinks,
		"dropped_links": len(result.DroppedLinks),
	}).Info("merged tree")
	return result, nil
}

// AfterCommit emits the merge event and refreshes projections. Call it only after commit.
func (e *Engine) AfterCommit(ctx context.Context, trigger models.MergeTrigger, result *models.MergeResult) {
	if result == nil || result.NoOp {
		return
	}
	e.emitter.Emit(ctx, events.Event{
		Type:   events.EventTypeTreeMerged,
		TreeID: result.ToTreeID,
		Data:   events.TreeMergedData{Trigger: trigger, Result: result},
	})
	e.refresher.Refresh(ctx, result.FromTreeID, result.ToTreeID)
}

// Record records the outcome of a merge attempt started at start.
func (e *Engine) Record(trigger models.MergeTrigger, result *models.MergeResult, err error, start time.Time) {
	outcome := metrics.OutcomeSuccess
	joins := 0
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case result.NoOp:
		outcome = metrics.OutcomeNoOp
	default:
		joins = len(result.JoinNodeIDs)
		for _, dropped := range result.DroppedLinks {
			metrics.RecordDroppedLink(dropped.Reason)
		}
	}
	metrics.RecordMerge(string(trigger), outcome, time.Since(start).Seconds(), joins)
}

// merge is the state of one merge call. The canonical union index lives here and nowhere else.
type merge struct {
	*Engine
	from   uuid.UUID
	to     uuid.UUID
	result *models.MergeResult
	log    ectologger.Logger

	unionIndex   map[models.PairKey]uuid.UUID
	toLinkIDs    map[uuid.UUID]bool
	touchedKids  []uuid.UUID
	canonicalFor map[uuid.UUID]uuid.UUID
}

// remap returns the surviving node for id.
func (m *merge) remap(id uuid.UUID) uuid.UUID {
	if canonical, ok := m.canonicalFor[id]; ok {
		return canonical
	}
	return id
}

func (m *merge) run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"find join points", m.findJoinPoints},
		{"move nodes", m.moveNodes},
		{"rewire unions", m.rewireUnions},
		{"rewire parentage", m.rewireParentage},
		{"reconcile parentage", m.reconcileParentage},
		{"move invites", m.moveInvites},
		{"delete join nodes", m.deleteJoinNodes},
		{"archive source", m.archiveSource},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			m.log.WithError(err).WithField("step", step.name).Warn("merge step failed, rolling back")
			return err
		}
	}
	return nil
}

// findJoinPoints maps every source node whose linked identity is present in the surviving tree
// onto the surviving tree's node for that identity. A confirmed node wins over unconfirmed ones.
func (m *merge) findJoinPoints(ctx context.Context) error {
	toNodes, err := m.repos.Nodes.ListByTree(ctx, m.to)
	if err != nil {
		return err
	}

	canonical := map[string]models.Node{}
	for _, n := range toNodes {
		if n.LinkedIdentity == nil {
			continue
		}
		current, ok := canonical[*n.LinkedIdentity]
		if !ok || (n.IsConfirmed && !current.IsConfirmed) {
			canonical[*n.LinkedIdentity] = n
		}
	}

	fromNodes, err := m.repos.Nodes.ListByTree(ctx, m.from)
	if err != nil {
		return err
	}

	m.canonicalFor = map[uuid.UUID]uuid.UUID{}
	for _, n := range fromNodes {
		if n.LinkedIdentity != nil {
			if target, ok := canonical[*n.LinkedIdentity]; ok {
				m.canonicalFor[n.ID] = target.ID
				m.result.NodeRemap[n.ID] = target.ID
				m.result.JoinNodeIDs = append(m.result.JoinNodeIDs, n.ID)
				continue
			}
		}
		m.result.MovedNodeIDs = append(m.result.MovedNodeIDs, n.ID)
	}
	return nil
}

func (m *merge) moveNodes(ctx context.Context) error {
	if len(m.result.MovedNodeIDs) == 0 {
		return nil
	}
	return m.repos.Nodes.MoveToTree(ctx, m.result.MovedNodeIDs, m.to)
}

// rewireUnions points every source union at surviving nodes and folds it into the canonical
// union for its pair. The index starts from the surviving tree's unions and grows with each
// source union that is kept, so pair uniqueness holds before anything moves.
func (m *merge) rewireUnions(ctx context.Context) error {
	toUnions, err := m.repos.Unions.ListByTree(ctx, m.to)
	if err != nil {
		return err
	}
	m.unionIndex = make(map[models.PairKey]uuid.UUID, len(toUnions))
	for _, u := range toUnions {
		m.unionIndex[u.Key()] = u.ID
	}

	fromUnions, err := m.repos.Unions.ListByTree(ctx, m.from)
	if err != nil {
		return err
	}

	for _, u := range fromUnions {
		a, b := m.remap(u.PartnerANodeID), m.remap(u.PartnerBNodeID)

		if a == b {
			if _, err := m.repos.Parentage.ConvertUnionToSingleParent(ctx, u.ID, a); err != nil {
				return err
			}
			if err := m.repos.Unions.Delete(ctx, []uuid.UUID{u.ID}); err != nil {
				return err
			}
			m.result.RemovedDegenerateUnions = append(m.result.RemovedDegenerateUnions, u.ID)
			continue
		}

		key := models.UnionPairKey(a, b)
		if canonical, ok := m.unionIndex[key]; ok {
			if _, err := m.repos.Parentage.RepointUnion(ctx, u.ID, canonical); err != nil {
				return err
			}
			if err := m.repos.Unions.Delete(ctx, []uuid.UUID{u.ID}); err != nil {
				return err
			}
			m.result.DedupedUnions[u.ID] = canonical
			continue
		}

		if a != u.PartnerANodeID || b != u.PartnerBNodeID {
			if err := m.repos.Unions.UpdatePartners(ctx, u.ID, a, b); err != nil {
				return err
			}
		}
		m.unionIndex[key] = u.ID
	}

	moved, err := m.repos.Unions.MoveToTree(ctx, m.from, m.to)
	if err != nil {
		return err
	}
	m.result.MovedUnions = moved
	return nil
}

// rewireParentage points each source link's child and single parent at surviving nodes, then
// moves the links.
func (m *merge) rewireParentage(ctx context.Context) error {
	toLinks, err := m.repos.Parentage.ListByTree(ctx, m.to)
	if err != nil {
		return err
	}
	m.toLinkIDs = make(map[uuid.UUID]bool, len(toLinks))
	for _, l := range toLinks {
		m.toLinkIDs[l.ID] = true
	}

	fromLinks, err := m.repos.Parentage.ListByTree(ctx, m.from)
	if err != nil {
		return err
	}

	for _, link := range fromLinks {
		changed := false
		if child := m.remap(link.ChildNodeID); child != link.ChildNodeID {
			link.ChildNodeID = child
			changed = true
		}
		if parent, ok := link.Target.SingleParentID(); ok {
			if mapped := m.remap(parent); mapped != parent {
				link.Target = models.SingleParentTarget(mapped)
				changed = true
			}
		}
		if changed {
			if err := m.repos.Parentage.Update(ctx, &link); err != nil {
				return err
			}
		}
		if !slices.Contains(m.touchedKids, link.ChildNodeID) {
			m.touchedKids = append(m.touchedKids, link.ChildNodeID)
		}
	}

	moved, err := m.repos.Parentage.MoveToTree(ctx, m.from, m.to)
	if err != nil {
		return err
	}
	m.result.MovedLinks = moved
	return nil
}

// reconcileParentage restores the parentage rules for every child that received links from the
// source tree and deletes whatever no longer fits.
func (m *merge) reconcileParentage(ctx context.Context) error {
	if len(m.touchedKids) == 0 {
		return nil
	}

	unions, err := m.repos.Unions.ListByTree(ctx, m.to)
	if err != nil {
		return err
	}
	unionByID := make(map[uuid.UUID]models.Union, len(unions))
	for _, u := range unions {
		unionByID[u.ID] = u
	}

	var drop []uuid.UUID
	for _, child := range m.touchedKids {
		links, err := m.repos.Parentage.ListByChild(ctx, child)
		if err != nil {
			return err
		}
		for _, dropped := range reconcileChild(links, m.toLinkIDs, unionByID) {
			drop = append(drop, dropped.LinkID)
			m.result.DroppedLinks = append(m.result.DroppedLinks, dropped)
		}
	}

	if len(drop) == 0 {
		return nil
	}
	m.log.WithField("dropped_links", len(drop)).Info("dropping parentage links made redundant by the merge")
	return m.repos.Parentage.Delete(ctx, drop)
}

// reconcileChild decides which of one child's links survive a merge. Links are ranked
// surviving-tree first, then by age. A link is dropped when it makes the child its own parent,
// repeats a higher-ranked link, names a single parent already implied by a kept union link, or
// falls outside the two-link cap.
func reconcileChild(links []models.ParentageLink, survivorLinks map[uuid.UUID]bool, unions map[uuid.UUID]models.Union) []models.DroppedLink {
	links = slices.Clone(links)
	slices.SortStableFunc(links, func(a, b models.ParentageLink) int {
		if survivorLinks[a.ID] != survivorLinks[b.ID] {
			if survivorLinks[a.ID] {
				return -1
			}
			return 1
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	var dropped []models.DroppedLink
	dropLink := func(l models.ParentageLink, reason string) {
		dropped = append(dropped, models.DroppedLink{LinkID: l.ID, ChildNodeID: l.ChildNodeID, Reason: reason})
	}

	candidates := []models.ParentageLink{}
	for _, l := range links {
		switch {
		case isSelfParent(l, unions):
			dropLink(l, models.DropReasonSelfParent)
		case slices.ContainsFunc(candidates, func(c models.ParentageLink) bool { return c.SameParentage(&l) }):
			dropLink(l, models.DropReasonDuplicate)
		default:
			candidates = append(candidates, l)
		}
	}

	// A union that loses its slot to the cap no longer covers its partners, so settle coverage
	// and the cap together. Coverage only shrinks, which bounds the loop.
	covered := unionParents(candidates, unions)
	for {
		kept := []models.ParentageLink{}
		for _, l := range candidates {
			if parent, ok := l.Target.SingleParentID(); ok && covered[parent] {
				continue
			}
			if len(kept) < models.MaxParentLinks {
				kept = append(kept, l)
			}
		}
		next := unionParents(kept, unions)
		if len(next) == len(covered) {
			break
		}
		covered = next
	}

	kept := 0
	for _, l := range candidates {
		if parent, ok := l.Target.SingleParentID(); ok && covered[parent] {
			dropLink(l, models.DropReasonSubsumedByUnion)
			continue
		}
		if kept >= models.MaxParentLinks {
			dropLink(l, models.DropReasonParentCapReached)
			continue
		}
		kept++
	}
	return dropped
}

func unionParents(links []models.ParentageLink, unions map[uuid.UUID]models.Union) map[uuid.UUID]bool {
	parents := map[uuid.UUID]bool{}
	for _, l := range links {
		if unionID, ok := l.Target.UnionID(); ok {
			if u, found := unions[unionID]; found {
				parents[u.PartnerANodeID] = true
				parents[u.PartnerBNodeID] = true
			}
		}
	}
	return parents
}

func isSelfParent(l models.ParentageLink, unions map[uuid.UUID]models.Union) bool {
	if parent, ok := l.Target.SingleParentID(); ok {
		return parent == l.ChildNodeID
	}
	if unionID, ok := l.Target.UnionID(); ok {
		u, found := unions[unionID]
		return found && u.Has(l.ChildNodeID)
	}
	return false
}

// moveInvites cancels pending invites aimed at join nodes, points the rest of the join nodes'
// invite history at the surviving node, and moves every invite across.
func (m *merge) moveInvites(ctx context.Context) error {
	now := m.now()
	for _, joinID := range m.result.JoinNodeIDs {
		invites, err := m.repos.Invites.ListByNode(ctx, joinID)
		if err != nil {
			return err
		}
		for _, inv := range invites {
			if !inv.IsPending() {
				continue
			}
			if err := m.repos.Invites.UpdateStatus(ctx, inv.ID, models.InviteStatusCancelled, now); err != nil {
				return err
			}
			m.result.CancelledInvites = append(m.result.CancelledInvites, inv.ID)
			m.log.WithFields(map[string]any{
				"invite_id": inv.ID,
				"node_id":   joinID,
			}).Warn("cancelled pending invite on a join node")
		}
		if _, err := m.repos.Invites.RepointNode(ctx, joinID, m.canonicalFor[joinID]); err != nil {
			return err
		}
	}

	moved, err := m.repos.Invites.MoveToTree(ctx, m.from, m.to)
	if err != nil {
		return err
	}
	m.result.MovedInvites = moved
	return nil
}

func (m *merge) deleteJoinNodes(ctx context.Context) error {
	if len(m.result.JoinNodeIDs) == 0 {
		return nil
	}
	return m.repos.Nodes.Delete(ctx, m.result.JoinNodeIDs)
}

// archiveSource archives the absorbed tree and re-points trees that were merged into it, so every
// redirect stays one hop long.
func (m *merge) archiveSource(ctx context.Context) error {
	to := m.to
	if err := m.repos.Trees.Archive(ctx, m.from, &to, m.now()); err != nil {
		return err
	}
	repointed, err := m.repos.Trees.RepointMergedInto(ctx, m.from, m.to)
	if err != nil {
		return err
	}
	m.result.RepointedTrees = repointed
	return nil
}
