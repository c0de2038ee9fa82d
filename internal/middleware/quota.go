package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/civicalert/civicalert/internal/quota"
	"github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/response"
)

// Quota consumes one unit of the caller's quota for the matched route. Rate limit headers
// are written on every response; exhausted callers receive a 429 problem document.
func Quota(enforcer *quota.Enforcer, writer *response.Writer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if enforcer == nil {
			c.Next()
			return
		}

		identifier := quota.Identifier(c.GetString(CtxUserIDKey), c.ClientIP(), c.Request.UserAgent())
		decision := enforcer.Decide(c.Request.Context(), identifier, Endpoint(c))
		decision.Apply(c.Writer.Header())

		if !decision.Allowed {
			writer.Error(c, errors.ErrRateLimit.WithDetail("quota of %d requests exhausted, retry in %d seconds",
				decision.Limit, decision.RetryAfterSeconds()))
			return
		}
		c.Next()
	}
}

// Endpoint names the matched route as "METHOD /route/:param".
func Endpoint(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + " " + path
}
