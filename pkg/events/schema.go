package events

import (
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	// Tree events
	EventTypeTreeCreated  EventType = "tree.created"
	EventTypeTreeRenamed  EventType = "tree.renamed"
	EventTypeTreeArchived EventType = "tree.archived"
	EventTypeTreeMerged   EventType = "tree.merged"

	// Node events
	EventTypeNodeCreated   EventType = "node.created"
	EventTypeNodeRenamed   EventType = "node.renamed"
	EventTypeNodeDeleted   EventType = "node.deleted"
	EventTypeNodeClaimed   EventType = "node.claimed"
	EventTypeNodeUnclaimed EventType = "node.unclaimed"

	// Edge events
	EventTypeEdgeCreated EventType = "edge.created"

	// Invite events
	EventTypeInviteCreated   EventType = "invite.created"
	EventTypeInviteAccepted  EventType = "invite.accepted"
	EventTypeInviteDeclined  EventType = "invite.declined"
	EventTypeInviteCancelled EventType = "invite.cancelled"

	// Merge request events
	EventTypeMergeRequestCreated   EventType = "merge_request.created"
	EventTypeMergeRequestAccepted  EventType = "merge_request.accepted"
	EventTypeMergeRequestDeclined  EventType = "merge_request.declined"
	EventTypeMergeRequestCancelled EventType = "merge_request.cancelled"
)

// Event is one change to a tree, published after its unit of work commits.
type Event struct {
	Type   EventType
	TreeID uuid.UUID
	Data   any
}

// TreeEventData is carried by tree.* events other than tree.merged
type TreeEventData struct {
	Tree *models.Tree `json:"tree"`
}

// NodeEventData is carried by node.* events
type NodeEventData struct {
	Node *models.Node `json:"node"`
}

// NodeDeletedData is carried by node.deleted
type NodeDeletedData struct {
	NodeID             uuid.UUID   `json:"node_id"`
	DissolvedUnionIDs  []uuid.UUID `json:"dissolved_union_ids,omitempty"`
	RemovedLinkCount   int         `json:"removed_link_count"`
	RemovedInviteCount int         `json:"removed_invite_count"`
}

// EdgeEventData is carried by edge.created
type EdgeEventData struct {
	Kind  models.EdgeKind       `json:"kind"`
	Union *models.Union         `json:"union,omitempty"`
	Link  *models.ParentageLink `json:"link,omitempty"`
}

// InviteEventData is carried by invite.* events
type InviteEventData struct {
	Invite *models.Invite `json:"invite"`
}

// MergeRequestEventData is carried by merge_request.* events
type MergeRequestEventData struct {
	Request *models.MergeRequest `json:"request"`
}

// TreeMergedData is carried by tree.merged, published on the surviving tree's key
type TreeMergedData struct {
	Trigger models.MergeTrigger `json:"trigger"`
	Result  *models.MergeResult `json:"result"`
}
