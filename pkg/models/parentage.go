package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	RoleBiological = "biological"
	RoleAdoptive   = "adoptive"
	RoleStep       = "step"
	RoleGuardian   = "guardian"

	// MaxParentLinks is the most parentage rows a child may have.
	MaxParentLinks = 2
)

var ParentRoles = []string{RoleBiological, RoleAdoptive, RoleStep, RoleGuardian}

var ErrInvalidParentageTarget = errors.New("parentage link must reference exactly one of union or single parent")

type targetKind uint8

const (
	targetNone targetKind = iota
	targetUnion
	targetSingleParent
)

// ParentageTarget is either a union (two parents) or a single parent node, never both.
type ParentageTarget struct {
	kind targetKind
	id   uuid.UUID
}

func UnionTarget(unionID uuid.UUID) ParentageTarget {
	return ParentageTarget{kind: targetUnion, id: unionID}
}

func SingleParentTarget(parentNodeID uuid.UUID) ParentageTarget {
	return ParentageTarget{kind: targetSingleParent, id: parentNodeID}
}

// TargetFromColumns rebuilds a target from its two nullable storage columns.
func TargetFromColumns(unionID, singleParentID *uuid.UUID) (ParentageTarget, error) {
	switch {
	case unionID != nil && singleParentID == nil:
		return UnionTarget(*unionID), nil
	case unionID == nil && singleParentID != nil:
		return SingleParentTarget(*singleParentID), nil
	default:
		return ParentageTarget{}, ErrInvalidParentageTarget
	}
}

// Columns splits the target into its storage columns.
func (t ParentageTarget) Columns() (unionID, singleParentID *uuid.UUID) {
	id := t.id
	switch t.kind {
	case targetUnion:
		return &id, nil
	case targetSingleParent:
		return nil, &id
	}
	return nil, nil
}

func (t ParentageTarget) IsUnion() bool {
	return t.kind == targetUnion
}

func (t ParentageTarget) IsSingleParent() bool {
	return t.kind == targetSingleParent
}

func (t ParentageTarget) IsValid() bool {
	return t.kind != targetNone
}

func (t ParentageTarget) UnionID() (uuid.UUID, bool) {
	return t.id, t.kind == targetUnion
}

func (t ParentageTarget) SingleParentID() (uuid.UUID, bool) {
	return t.id, t.kind == targetSingleParent
}

type parentageTargetJSON struct {
	UnionID        *uuid.UUID `json:"union_id"`
	SingleParentID *uuid.UUID `json:"single_parent_id"`
}

func (t ParentageTarget) MarshalJSON() ([]byte, error) {
	unionID, singleParentID := t.Columns()
	return json.Marshal(parentageTargetJSON{UnionID: unionID, SingleParentID: singleParentID})
}

func (t *ParentageTarget) UnmarshalJSON(b []byte) error {
	var raw parentageTargetJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	target, err := TargetFromColumns(raw.UnionID, raw.SingleParentID)
	if err != nil {
		return err
	}
	*t = target
	return nil
}

// ParentageLink attaches a child to its parents.
type ParentageLink struct {
	ID          uuid.UUID       `json:"id"`
	TreeID      uuid.UUID       `json:"tree_id"`
	ChildNodeID uuid.UUID       `json:"child_node_id"`
	Target      ParentageTarget `json:"target"`
	Role        string          `json:"role"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SameParentage reports whether two links attach the same child to the same target.
func (l *ParentageLink) SameParentage(other *ParentageLink) bool {
	return l.ChildNodeID == other.ChildNodeID && l.Target == other.Target
}
