package api

import (
	"github.com/gin-gonic/gin"

	"github.com/civicalert/civicalert/internal/handlers"
	"github.com/civicalert/civicalert/internal/middleware"
	"github.com/civicalert/civicalert/internal/permissions"
	"github.com/civicalert/civicalert/pkg/response"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler, writer *response.Writer) {
	group := api.Group("/notifications")
	{
		group.GET("", middleware.RequirePermission(permissions.NotificationRead, writer), handler.List)
		group.POST("", middleware.RequirePermission(permissions.NotificationCreate, writer), handler.Create)
		group.GET("/:id", middleware.RequirePermission(permissions.NotificationRead, writer), handler.Get)
		group.DELETE("/:id", middleware.RequirePermission(permissions.NotificationDelete, writer), handler.Delete)

		group.POST("/:id/approve", middleware.RequirePermission(permissions.NotificationApprove, writer), handler.Approve)
		group.POST("/:id/deny", middleware.RequirePermission(permissions.NotificationDeny, writer), handler.Deny)
		group.GET("/:id/audit", middleware.RequirePermission(permissions.AuditRead, writer), handler.Audit)
	}
}
