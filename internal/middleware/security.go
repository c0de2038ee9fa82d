package middleware

import "github.com/gin-gonic/gin"

const (
	// DefaultContentSecurityPolicy forbids every resource; the API serves JSON only.
	DefaultContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"
)

// SecurityHeaders applies hardening headers. Responses depend on the caller's grants, so
// they are marked private and varied on Authorization.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", DefaultContentSecurityPolicy)
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "private, no-store")
		c.Header("Vary", "Authorization")
		c.Next()
	}
}
