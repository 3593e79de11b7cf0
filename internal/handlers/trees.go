package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/pkg/familytree"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/utils"
)

// TreeHandler serves tree, node and relationship operations
type TreeHandler struct {
	svc    *familytree.Service
	logger ectologger.Logger
}

func NewTreeHandler(svc *familytree.Service, logger ectologger.Logger) *TreeHandler {
	return &TreeHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers tree routes
func (h *TreeHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/trees", h.CreateTree)
	g.GET("/trees/mine", h.ListMyTrees)
	g.GET("/trees/node/:node_id", h.GetNode)
	g.GET("/trees/:tree_id", h.GetTree)
	g.PUT("/trees/:tree_id/rename", h.RenameTree)
	g.DELETE("/trees/:tree_id", h.ArchiveTree)

	g.POST("/trees/:tree_id/node", h.AddNode)
	g.POST("/trees/:tree_id/node/:node_id/rename", h.RenameNode)
	g.DELETE("/trees/:tree_id/node/:node_id", h.DeleteNode)
	g.POST("/trees/:tree_id/node/:node_id/unclaim", h.UnclaimNode)

	g.POST("/trees/:tree_id/edge", h.AddEdge)
	g.POST("/trees/:tree_id/assign-child", h.AssignChild)
}

func (h *TreeHandler) CreateTree(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.CreateTreeRequest](c)
	if err != nil {
		return err
	}

	created, err := h.svc.CreateTree(c.Request().Context(), identity, req.Name)
	if err != nil {
		return err
	}
	return CreatedResponse(c, created)
}

func (h *TreeHandler) ListMyTrees(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}

	trees, err := h.svc.ListMyTrees(c.Request().Context(), identity)
	if err != nil {
		return err
	}
	return SuccessResponse(c, listOf(trees))
}

func (h *TreeHandler) GetTree(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}

	view, err := h.svc.GetTree(c.Request().Context(), identity, treeID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, view)
}

func (h *TreeHandler) GetNode(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	nodeID, err := ParseUUID(c, "node_id")
	if err != nil {
		return err
	}

	lookup, err := h.svc.GetNode(c.Request().Context(), identity, nodeID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, lookup)
}

func (h *TreeHandler) RenameTree(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.RenameTreeRequest](c)
	if err != nil {
		return err
	}

	tree, err := h.svc.RenameTree(c.Request().Context(), identity, treeID, req.Name)
	if err != nil {
		return err
	}
	return SuccessResponse(c, tree)
}

func (h *TreeHandler) ArchiveTree(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}

	result, err := h.svc.ArchiveTree(c.Request().Context(), identity, treeID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

func (h *TreeHandler) AddNode(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.AddNodeRequest](c)
	if err != nil {
		return err
	}

	node, err := h.svc.AddNode(c.Request().Context(), identity, treeID, req)
	if err != nil {
		return err
	}
	return CreatedResponse(c, node)
}

func (h *TreeHandler) RenameNode(c echo.Context) error {
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
	req, err := utils.BindRequest[models.RenameNodeRequest](c)
	if err != nil {
		return err
	}

	node, err := h.svc.RenameNode(c.Request().Context(), identity, treeID, nodeID, req.DisplayName)
	if err != nil {
		return err
	}
	return SuccessResponse(c, node)
}

func (h *TreeHandler) DeleteNode(c echo.Context) error {
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

	result, err := h.svc.DeleteNode(c.Request().Context(), identity, treeID, nodeID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

func (h *TreeHandler) UnclaimNode(c echo.Context) error {
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

	result, err := h.svc.UnclaimNode(c.Request().Context(), identity, treeID, nodeID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

func (h *TreeHandler) AddEdge(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.AddEdgeRequest](c)
	if err != nil {
		return err
	}

	result, err := h.svc.AddEdge(c.Request().Context(), identity, treeID, req)
	if err != nil {
		return err
	}
	if result.Existing {
		return SuccessResponse(c, result)
	}
	return CreatedResponse(c, result)
}

func (h *TreeHandler) AssignChild(c echo.Context) error {
	identity, err := GetIdentity(c)
	if err != nil {
		return err
	}
	treeID, err := ParseUUID(c, "tree_id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.AssignChildRequest](c)
	if err != nil {
		return err
	}

	result, err := h.svc.AssignChild(c.Request().Context(), identity, treeID, req)
	if err != nil {
		return err
	}
	if result.Existing {
		return SuccessResponse(c, result)
	}
	return CreatedResponse(c, result)
}
