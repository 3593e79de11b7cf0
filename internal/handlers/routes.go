package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/willow/pkg/familytree"
	"github.com/Ramsey-B/willow/pkg/invites"
	"github.com/Ramsey-B/willow/pkg/merging"
)

// Services are the operations exposed over HTTP.
type Services struct {
	Trees         *familytree.Service
	Invites       *invites.Service
	MergeRequests *merging.Requests
}

// RegisterRoutes mounts every family tree route on g.
func RegisterRoutes(g *echo.Group, services Services, logger ectologger.Logger) {
	NewTreeHandler(services.Trees, logger).RegisterRoutes(g)
	NewInviteHandler(services.Invites, logger).RegisterRoutes(g)
	NewMergeRequestHandler(services.MergeRequests, logger).RegisterRoutes(g)
}
