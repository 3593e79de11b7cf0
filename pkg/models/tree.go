package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultTreeName = "My Tree"

// Tree is a container of people and their relationships. An archived tree with MergedIntoTreeID
// set redirects to that (live) tree.
type Tree struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	Name             string     `json:"name" db:"name"`
	CreatedBy        string     `json:"created_by" db:"created_by"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	IsArchived       bool       `json:"is_archived" db:"is_archived"`
	MergedIntoTreeID *uuid.UUID `json:"merged_into_tree_id,omitempty" db:"merged_into_tree_id"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty" db:"archived_at"`
}

// ResolvedTree is the live tree a requested id resolves to.
type ResolvedTree struct {
	Tree           *Tree
	RedirectedFrom *uuid.UUID
}

type CreateTreeRequest struct {
	Name string `json:"name" validate:"max=200"`
}

type RenameTreeRequest struct {
	Name string `json:"name" validate:"max=200"`
}

type ArchiveTreeResult struct {
	Tree            *Tree `json:"tree"`
	AlreadyArchived bool  `json:"already_archived"`
}

// CreateTreeResult is a new tree together with its creator's confirmed node.
type CreateTreeResult struct {
	Tree   *Tree `json:"tree"`
	MeNode *Node `json:"me_node"`
}
