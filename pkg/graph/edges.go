// Package graph derives relationship edges from stored unions and parentage links, and projects
// live trees into a Memgraph/Neo4j database over Bolt.
package graph

import (
	"fmt"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"

	"github.com/Ramsey-B/willow/pkg/models"
)

func PartnerEdgeID(unionID uuid.UUID) string {
	return fmt.Sprintf("union-%s", unionID)
}

// ParentEdgeID names the edge from one parent slot of a union-based link. slot is "a" or "b".
func ParentEdgeID(linkID uuid.UUID, slot string) string {
	return fmt.Sprintf("uc-%s-%s", linkID, slot)
}

func SingleParentEdgeID(linkID uuid.UUID) string {
	return fmt.Sprintf("uc-%s", linkID)
}

// DeriveEdges computes the edge list of a tree: one partner edge per union, two parent_child edges
// per union-based link and one per single-parent link. Links whose union is missing from unions
// are skipped.
func DeriveEdges(unions []models.Union, links []models.ParentageLink) []models.Edge {
	byID := make(map[uuid.UUID]models.Union, len(unions))
	for _, u := range unions {
		byID[u.ID] = u
	}

	edges := ectolinq.Map(unions, func(u models.Union) models.Edge {
		unionID := u.ID
		return models.Edge{
			ID:      PartnerEdgeID(u.ID),
			Kind:    models.EdgeKindPartner,
			From:    u.PartnerANodeID,
			To:      u.PartnerBNodeID,
			UnionID: &unionID,
		}
	})

	for _, link := range links {
		role := link.Role
		if unionID, ok := link.Target.UnionID(); ok {
			union, found := byID[unionID]
			if !found {
				continue
			}
			id := unionID
			edges = append(edges,
				models.Edge{ID: ParentEdgeID(link.ID, "a"), Kind: models.EdgeKindParentChild, From: union.PartnerANodeID, To: link.ChildNodeID, UnionID: &id, Role: role},
				models.Edge{ID: ParentEdgeID(link.ID, "b"), Kind: models.EdgeKindParentChild, From: union.PartnerBNodeID, To: link.ChildNodeID, UnionID: &id, Role: role},
			)
			continue
		}
		if parentID, ok := link.Target.SingleParentID(); ok {
			edges = append(edges, models.Edge{
				ID:   SingleParentEdgeID(link.ID),
				Kind: models.EdgeKindParentChild,
				From: parentID,
				To:   link.ChildNodeID,
				Role: role,
			})
		}
	}

	return edges
}

// ParentEdges returns only the parent_child edges of edges.
func ParentEdges(edges []models.Edge) []models.Edge {
	return ectolinq.Filter(edges, func(e models.Edge) bool {
		return e.Kind == models.EdgeKindParentChild
	})
}
