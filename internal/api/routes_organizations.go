package api

import (
	"github.com/gin-gonic/gin"

	"github.com/civicalert/civicalert/internal/handlers"
	"github.com/civicalert/civicalert/internal/middleware"
	"github.com/civicalert/civicalert/internal/permissions"
	"github.com/civicalert/civicalert/pkg/response"
)

func registerOrganizationRoutes(api *gin.RouterGroup, handler *handlers.OrganizationHandler, writer *response.Writer) {
	group := api.Group("/organizations")
	{
		group.GET("/:id", middleware.RequirePermission(permissions.OrganizationRead, writer), handler.Get)
		group.PATCH("/:id", middleware.RequirePermission(permissions.OrganizationUpdate, writer), handler.Update)
	}
}
