package api

import (
	"github.com/gin-gonic/gin"

	"github.com/civicalert/civicalert/internal/handlers"
	"github.com/civicalert/civicalert/internal/middleware"
	"github.com/civicalert/civicalert/internal/permissions"
	"github.com/civicalert/civicalert/pkg/response"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler, writer *response.Writer) {
	group := api.Group("/users")
	{
		group.GET("", middleware.RequirePermission(permissions.UserRead, writer), handler.List)
		// Self access is decided by the handler.
		group.GET("/:id", handler.Get)
		group.PATCH("/:id", handler.Update)
		group.DELETE("/:id", middleware.RequirePermission(permissions.UserDelete, writer), handler.Delete)
	}
}
