package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/pkg/invites"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/utils"
)

// InviteHandler serves the invite lifecycle
type InviteHandler struct {
	svc    *invites.Service
	logger ectologger.Logger
}

func NewInviteHandler(svc *invites.Service, logger ectologger.Logger) *InviteHandler {
	return &InviteHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers invite routes
func (h *InviteHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/trees/invites/incoming", h.ListIncoming)
	g.GET("/trees/invites/outgoing", h.ListOutgoing)
	g.POST("/trees/invite/:invite_id/cancel", h.Cancel)
	g.POST("/trees/invite/:invite_id/accept", h.Accept)
	g.POST("/trees/invite/:invite_id/decline", h.Decline)

	g.POST("/trees/:tree_id/invite", h.Create)
	g.GET("/trees/:tree_id/invites", h.ListForTree)
	g.GET("/trees/:tree_id/node/:node_id/invites/outgoing", h.ListOutgoingForNode)
}

func (h *InviteHandler) Create(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.CreateInviteRequest](c)
	if err != nil {
		return err
	}

	invite, err := h.svc.Create(c.Request().Context(), identity, treeID, req)
	if err != nil {
		return err
	}
	return CreatedResponse(c, invite)
}

func (h *InviteHandler) Cancel(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	inviteID, err := ParseUUID(c, "invite_id")
	if err != nil {
		return err
	}

	invite, err := h.svc.Cancel(c.Request().Context(), identity, inviteID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, invite)
}

func (h *InviteHandler) Accept(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	inviteID, err := ParseUUID(c, "invite_id")
	if err != nil {
		return err
	}

	result, err := h.svc.Accept(c.Request().Context(), identity, GetEmail(c), inviteID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

func (h *InviteHandler) Decline(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	inviteID, err := ParseUUID(c, "invite_id")
	if err != nil {
		return err
	}

	invite, err := h.svc.Decline(c.Request().Context(), identity, GetEmail(c), inviteID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, invite)
}

func (h *InviteHandler) ListIncoming(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}

	list, err := h.svc.ListIncoming(c.Request().Context(), identity, GetEmail(c))
	if err != nil {
		return err
	}
	return SuccessResponse(c, listOf(list))
}

func (h *InviteHandler) ListOutgoing(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}

	list, err := h.svc.ListOutgoing(c.Request().Context(), identity)
	if err != nil {
		return err
	}
	return SuccessResponse(c, listOf(list))
}

func (h *InviteHandler) ListForTree(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}

	list, err := h.svc.ListForTree(c.Request().Context(), identity, treeID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, listOf(list))
}

func (h *InviteHandler) ListOutgoingForNode(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}
	nodeID, err := ParseUUID(c, "node_id")
	if err != nil {
		return err
	}

	list, err := h.svc.ListOutgoingForNode(c.Request().Context(), identity, treeID, nodeID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, listOf(list))
}
