package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/civicalert/civicalert/internal/middleware"
	"github.com/civicalert/civicalert/internal/permissions"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// callerFrom returns the resolved caller and the organization scope it is confined to.
// Callers without an organization are unscoped.
func callerFrom(c *gin.Context) (permissions.CallerContext, string) {
	caller := middleware.Caller(c)
	return caller, caller.OrganizationID
}
