package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type InviteStatus string

const (
	InviteStatusPending   InviteStatus = "pending"
	InviteStatusAccepted  InviteStatus = "accepted"
	InviteStatusDeclined  InviteStatus = "declined"
	InviteStatusCancelled InviteStatus = "cancelled"
)

// Invite offers an identity the chance to claim a node.
type Invite struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	TreeID          uuid.UUID    `json:"tree_id" db:"tree_id"`
	NodeID          uuid.UUID    `json:"node_id" db:"node_id"`
	InvitedBy       string       `json:"invited_by" db:"invited_by"`
	InvitedIdentity *string      `json:"invited_identity,omitempty" db:"invited_identity"`
	InvitedContact  *string      `json:"invited_contact,omitempty" db:"invited_contact"`
	Status          InviteStatus `json:"status" db:"status"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	RespondedAt     *time.Time   `json:"responded_at,omitempty" db:"responded_at"`
}

func (i *Invite) IsPending() bool {
	return i.Status == InviteStatusPending
}

// IsAddressedTo reports whether identity (or, for contact-only invites, email) is the recipient.
func (i *Invite) IsAddressedTo(identity, email string) bool {
	if i.InvitedIdentity != nil {
		return *i.InvitedIdentity == identity
	}
	if i.InvitedContact != nil && email != "" {
		return strings.EqualFold(strings.TrimSpace(*i.InvitedContact), strings.TrimSpace(email))
	}
	return false
}

type CreateInviteRequest struct {
	NodeID          uuid.UUID `json:"node_id" validate:"required"`
	InvitedIdentity *string   `json:"invited_identity,omitempty"`
	InvitedContact  *string   `json:"invited_contact,omitempty" validate:"omitempty,email"`
}

type AcceptInviteResult struct {
	Invite           *Invite      `json:"invite"`
	Node             *Node        `json:"node"`
	TreeID           uuid.UUID    `json:"tree_id"`
	Merged           bool         `json:"merged"`
	MergedFromTreeID *uuid.UUID   `json:"merged_from_tree_id,omitempty"`
	Merge            *MergeResult `json:"merge,omitempty"`
}
