package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/civicalert/civicalert/internal/permissions"
	"github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/metrics"
	"github.com/civicalert/civicalert/pkg/response"
)

// RequirePermission checks that the resolved caller holds the provided permission.
// It panics at route registration when the token is not registered.
func RequirePermission(token permissions.Token, writer *response.Writer) gin.HandlerFunc {
	permissions.MustToken(token.String())

	return func(c *gin.Context) {
		caller := Caller(c)
		if !caller.Authenticated() {
			writer.Error(c, errors.ErrUnauthorized)
			return
		}
		if !caller.Can(token) {
			metrics.PermissionChecks.WithLabelValues(token.String(), "denied").Inc()
			writer.Error(c, errors.ErrForbidden.WithDetail("missing permission %s", token))
			return
		}
		metrics.PermissionChecks.WithLabelValues(token.String(), "allowed").Inc()
		c.Next()
	}
}

// RequireCaller rejects requests that carry no authenticated identity, including those
// whose bearer token OptionalAuth refused.
func RequireCaller(writer *response.Writer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := AuthError(c); err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			writer.Error(c, errors.ErrUnauthorized.WithInternal(err))
			return
		}
		if !Caller(c).Authenticated() {
			c.Header("WWW-Authenticate", "Bearer")
			writer.Error(c, errors.ErrUnauthorized)
			return
		}
		c.Next()
	}
}
