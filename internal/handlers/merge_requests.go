package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/pkg/merging"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/utils"
)

// MergeRequestHandler serves requests to merge one tree into another
type MergeRequestHandler struct {
	requests *merging.Requests
	logger   ectologger.Logger
}

func NewMergeRequestHandler(requests *merging.Requests, logger ectologger.Logger) *MergeRequestHandler {
	return &MergeRequestHandler{requests: requests, logger: logger}
}

// RegisterRoutes registers merge request routes
func (h *MergeRequestHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/trees/merge-requests/incoming", h.ListIncoming)
	g.GET("/trees/merge-requests/outgoing", h.ListOutgoing)
	g.POST("/trees/merge-requests/:request_id/accept", h.Accept)
	g.POST("/trees/merge-requests/:request_id/decline", h.Decline)
	g.POST("/trees/merge-requests/:request_id/cancel", h.Cancel)
	g.POST("/trees/:tree_id/merge-requests", h.Create)
}

func (h *MergeRequestHandler) Create(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.CreateMergeRequestRequest](c)
	if err != nil {
		return err
	}

	request, err := h.requests.RequestMerge(c.Request().Context(), identity, treeID, req)
	if err != nil {
		return err
	}
	return CreatedResponse(c, request)
}

func (h *MergeRequestHandler) Accept(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	requestID, err := ParseUUID(c, "request_id")
	if err != nil {
		return err
	}

	result, err := h.requests.AcceptRequest(c.Request().Context(), identity, requestID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

func (h *MergeRequestHandler) Decline(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	requestID, err := ParseUUID(c, "request_id")
	if err != nil {
		return err
	}

	request, err := h.requests.DeclineRequest(c.Request().Context(), identity, requestID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, request)
}

func (h *MergeRequestHandler) Cancel(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	requestID, err := ParseUUID(c, "request_id")
	if err != nil {
		return err
	}

	request, err := h.requests.CancelRequest(c.Request().Context(), identity, requestID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, request)
}

func (h *MergeRequestHandler) ListIncoming(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}

	list, err := h.requests.ListIncoming(c.Request().Context(), identity)
	if err != nil {
		return err
	}
	return SuccessResponse(c, listOf(list))
}

func (h *MergeRequestHandler) ListOutgoing(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}

	list, err := h.requests.ListOutgoing(c.Request().Context(), identity)
	if err != nil {
		return err
	}
	return SuccessResponse(c, listOf(list))
}
