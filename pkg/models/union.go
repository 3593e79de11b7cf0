package models

import (
	"time"

	"github.com/google/uuid"
)

const UnionStatusPartner = "partner"

// Union is an unordered partner pair within one tree.
type Union struct {
	ID             uuid.UUID `json:"id" db:"id"`
	TreeID         uuid.UUID `json:"tree_id" db:"tree_id"`
	PartnerANodeID uuid.UUID `json:"partner_a_node_id" db:"partner_a_node_id"`
	PartnerBNodeID uuid.UUID `json:"partner_b_node_id" db:"partner_b_node_id"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// PairKey identifies an unordered pair of nodes.
type PairKey struct {
	Low  uuid.UUID
	High uuid.UUID
}

func UnionPairKey(a, b uuid.UUID) PairKey {
	if a.String() > b.String() {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

func (u *Union) Key() PairKey {
	return UnionPairKey(u.PartnerANodeID, u.PartnerBNodeID)
}

func (u *Union) Has(nodeID uuid.UUID) bool {
	return u.PartnerANodeID == nodeID || u.PartnerBNodeID == nodeID
}

// Other returns the partner of nodeID.
func (u *Union) Other(nodeID uuid.UUID) uuid.UUID {
	if u.PartnerANodeID == nodeID {
		return u.PartnerBNodeID
	}
	return u.PartnerANodeID
}

// IsDegenerate reports a union whose two slots point at the same node.
func (u *Union) IsDegenerate() bool {
	return u.PartnerANodeID == u.PartnerBNodeID
}
