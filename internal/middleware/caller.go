package middleware

import (
	stdErrors "errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/auditctx"
	"github.com/civicalert/civicalert/internal/permissions"
	"github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/response"
)

// ResolveCaller loads the effective permissions of the authenticated user and stores the
// caller and audit actor on the request context. Requests without an identity get an
// anonymous caller.
func ResolveCaller(checker *permissions.Checker, writer *response.Writer) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := permissions.Anonymous()

		if userID := c.GetString(CtxUserIDKey); userID != "" {
			resolved, err := checker.Resolve(c.Request.Context(), userID)
			if err != nil {
				if stdErrors.Is(err, gorm.ErrRecordNotFound) {
					writer.Error(c, errors.ErrUnauthorized.WithDetail("account no longer exists"))
					return
				}
				writer.Error(c, errors.Wrap(err, "failed to resolve caller"))
				return
			}
			caller = resolved
		}

		ctx := permissions.WithCaller(c.Request.Context(), caller)
		ctx = auditctx.WithActor(ctx, auditctx.Actor{
			UserID:         caller.UserID,
			OrganizationID: caller.OrganizationID,
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			RequestID:      c.GetString(CtxRequestIDKey),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set(CtxCallerKey, caller)

		c.Next()
	}
}

// Caller returns the caller resolved for this request.
func Caller(c *gin.Context) permissions.CallerContext {
	if v, ok := c.Get(CtxCallerKey); ok {
		if caller, ok := v.(permissions.CallerContext); ok {
			return caller
		}
	}
	return permissions.FromContext(c.Request.Context())
}
