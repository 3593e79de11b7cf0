package models

import "github.com/google/uuid"

type EdgeKind string

const (
	EdgeKindPartner     EdgeKind = "partner"
	EdgeKindParentChild EdgeKind = "parent_child"
)

func (k EdgeKind) IsValid() bool {
	return k == EdgeKindPartner || k == EdgeKindParentChild
}

// Edge is derived from unions and parentage links on every read and never stored.
type Edge struct {
	ID      string     `json:"id"`
	Kind    EdgeKind   `json:"kind"`
	From    uuid.UUID  `json:"from"`
	To      uuid.UUID  `json:"to"`
	UnionID *uuid.UUID `json:"union_id,omitempty"`
	Role    string     `json:"role,omitempty"`
}

// TreeGraph is the read model of a live tree.
type TreeGraph struct {
	Tree           *Tree      `json:"tree"`
	RedirectedFrom *uuid.UUID `json:"redirected_from_tree_id,omitempty"`
	Nodes          []NodeView `json:"nodes"`
	Edges          []Edge     `json:"edges"`
}

type AddEdgeRequest struct {
	FromNodeID uuid.UUID `json:"from_node_id" validate:"required"`
	ToNodeID   uuid.UUID `json:"to_node_id" validate:"required"`
	Kind       EdgeKind  `json:"kind"`
	Role       string    `json:"role"`
}

// AddEdgeResult carries whichever structure the edge produced.
type AddEdgeResult struct {
	Kind     EdgeKind       `json:"kind"`
	Union    *Union         `json:"union,omitempty"`
	Link     *ParentageLink `json:"link,omitempty"`
	Existing bool           `json:"existing"`
}

type AssignChildRequest struct {
	ChildNodeID   uuid.UUID `json:"child_node_id" validate:"required"`
	ParentANodeID uuid.UUID `json:"parent_a_node_id" validate:"required"`
	ParentBNodeID uuid.UUID `json:"parent_b_node_id" validate:"required"`
	Role          string    `json:"role"`
}

type AssignChildResult struct {
	Union    *Union         `json:"union"`
	Link     *ParentageLink `json:"link"`
	Existing bool           `json:"existing"`
}
