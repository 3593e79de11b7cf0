package models

import (
	"time"

	"github.com/google/uuid"
)

type MergeTrigger string

const (
	MergeTriggerInvite       MergeTrigger = "invite"
	MergeTriggerMergeRequest MergeTrigger = "merge_request"
)

// DroppedLink records a parentage row removed while reconciling two trees.
type DroppedLink struct {
	LinkID      uuid.UUID `json:"link_id"`
	ChildNodeID uuid.UUID `json:"child_node_id"`
	Reason      string    `json:"reason"`
}

const (
	DropReasonDuplicate        = "duplicate"
	DropReasonSubsumedByUnion  = "subsumed_by_union"
	DropReasonParentCapReached = "parent_cap_reached"
	DropReasonSelfParent       = "self_parent"
)

// MergeResult describes everything a merge changed.
type MergeResult struct {
	FromTreeID              uuid.UUID               `json:"from_tree_id"`
	ToTreeID                uuid.UUID               `json:"to_tree_id"`
	NoOp                    bool                    `json:"no_op"`
	NodeRemap               map[uuid.UUID]uuid.UUID `json:"node_remap,omitempty"`
	JoinNodeIDs             []uuid.UUID             `json:"join_node_ids,omitempty"`
	MovedNodeIDs            []uuid.UUID             `json:"moved_node_ids,omitempty"`
	MovedUnions             int                     `json:"moved_unions"`
	DedupedUnions           map[uuid.UUID]uuid.UUID `json:"deduped_unions,omitempty"`
	RemovedDegenerateUnions []uuid.UUID             `json:"removed_degenerate_unions,omitempty"`
	MovedLinks              int                     `json:"moved_links"`
	DroppedLinks            []DroppedLink           `json:"dropped_links,omitempty"`
	CancelledInvites        []uuid.UUID             `json:"cancelled_invites,omitempty"`
	MovedInvites            int                     `json:"moved_invites"`
	RepointedTrees          int                     `json:"repointed_trees"`
}

// TreeMerge is the audit record of an executed merge.
type TreeMerge struct {
	ID         uuid.UUID    `json:"id"`
	FromTreeID uuid.UUID    `json:"from_tree_id"`
	ToTreeID   uuid.UUID    `json:"to_tree_id"`
	Trigger    MergeTrigger `json:"trigger"`
	Result     MergeResult  `json:"result"`
	CreatedAt  time.Time    `json:"created_at"`
}

type MergeRequestStatus string

const (
	MergeRequestPending   MergeRequestStatus = "pending"
	MergeRequestAccepted  MergeRequestStatus = "accepted"
	MergeRequestDeclined  MergeRequestStatus = "declined"
	MergeRequestCancelled MergeRequestStatus = "cancelled"
)

// MergeRequest asks the members of ToTreeID to absorb FromTreeID.
type MergeRequest struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	FromTreeID  uuid.UUID          `json:"from_tree_id" db:"from_tree_id"`
	ToTreeID    uuid.UUID          `json:"to_tree_id" db:"to_tree_id"`
	RequestedBy string             `json:"requested_by" db:"requested_by"`
	Message     *string            `json:"message,omitempty" db:"message"`
	Status      MergeRequestStatus `json:"status" db:"status"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	RespondedAt *time.Time         `json:"responded_at,omitempty" db:"responded_at"`
}

func (r *MergeRequest) IsPending() bool {
	return r.Status == MergeRequestPending
}

type CreateMergeRequestRequest struct {
	ToTreeID uuid.UUID `json:"to_tree_id" validate:"required"`
	Message  *string   `json:"message,omitempty" validate:"omitempty,max=1000"`
}

type MergeRequestResult struct {
	Request *MergeRequest `json:"request"`
	Merge   *MergeResult  `json:"merge,omitempty"`
}
