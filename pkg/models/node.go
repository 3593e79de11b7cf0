package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultSelfName = "Me"

// Node is a person within exactly one tree.
type Node struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TreeID         uuid.UUID  `json:"tree_id" db:"tree_id"`
	DisplayName    string     `json:"display_name" db:"display_name"`
	LinkedIdentity *string    `json:"linked_identity,omitempty" db:"linked_identity"`
	IsConfirmed    bool       `json:"is_confirmed" db:"is_confirmed"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	Gender         *string    `json:"gender,omitempty" db:"gender"`
	DateOfBirth    *string    `json:"date_of_birth,omitempty" db:"date_of_birth"`
	DateOfDeath    *string    `json:"date_of_death,omitempty" db:"date_of_death"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// IsClaimed reports whether a real identity has claimed and confirmed this node.
func (n *Node) IsClaimed() bool {
	return n.LinkedIdentity != nil && n.IsConfirmed
}

// IsLinkedTo reports whether the node carries the given identity, confirmed or not.
func (n *Node) IsLinkedTo(identity string) bool {
	return n.LinkedIdentity != nil && *n.LinkedIdentity == identity
}

type AddNodeRequest struct {
	DisplayName    string  `json:"display_name" validate:"required,max=200"`
	LinkedIdentity *string `json:"linked_identity,omitempty"`
	Gender         *string `json:"gender,omitempty"`
	DateOfBirth    *string `json:"date_of_birth,omitempty"`
	DateOfDeath    *string `json:"date_of_death,omitempty"`
}

type RenameNodeRequest struct {
	DisplayName string `json:"display_name" validate:"max=200"`
}

// NodeView is a node as returned by reads, enriched with profile data.
type NodeView struct {
	Node
	ProfileName      *string `json:"profile_name,omitempty"`
	ProfileImageURL  *string `json:"profile_image_url,omitempty"`
	HasPendingInvite bool    `json:"has_pending_invite"`
}

// NodeLookup is a node together with the live tree it currently belongs to.
type NodeLookup struct {
	Node            *Node     `json:"node"`
	EffectiveTreeID uuid.UUID `json:"effective_tree_id"`
}

type UnclaimResult struct {
	Node    *Node `json:"node"`
	NewTree *Tree `json:"new_tree"`
	MeNode  *Node `json:"me_node"`
}

// Profile is read-side identity data supplied by the identity provider.
type Profile struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	ImageURL    string `json:"image_url,omitempty"`
	Email       string `json:"email,omitempty"`
}

// DeleteNodeResult reports how a node's relationships were unwound before it was removed.
type DeleteNodeResult struct {
	NodeID            uuid.UUID   `json:"node_id"`
	DissolvedUnionIDs []uuid.UUID `json:"dissolved_union_ids"`
	ReattachedLinks   int         `json:"reattached_links"`
	RemovedLinks      int         `json:"removed_links"`
	RemovedInvites    int         `json:"removed_invites"`
}
