package middleware

import (
	stdErrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/civicalert/civicalert/internal/auth"
	"github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxCallerKey = "caller"
	// CtxAuthErrorKey holds the reason a presented bearer token was refused by OptionalAuth.
	CtxAuthErrorKey = "authError"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService, writer *response.Writer) gin.HandlerFunc {
	return authenticate(jwt, writer, true)
}

// OptionalAuth attaches the identity when a bearer token is present and lets anonymous
// requests through. An invalid token is recorded under CtxAuthErrorKey and the request
// continues anonymously; RequireCaller turns it into a 401 once quota has been charged.
func OptionalAuth(jwt *iauth.JWTService, writer *response.Writer) gin.HandlerFunc {
	return authenticate(jwt, writer, false)
}

// AuthError returns the token validation failure recorded by OptionalAuth, if any.
func AuthError(c *gin.Context) error {
	if v, ok := c.Get(CtxAuthErrorKey); ok {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

var errMalformedAuthorization = stdErrors.New("authorization header is not a bearer token")

func authenticate(jwt *iauth.JWTService, writer *response.Writer, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" && !required {
			c.Next()
			return
		}
		reject := func(err error) {
			if !required {
				c.Set(CtxAuthErrorKey, err)
				c.Next()
				return
			}
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			writer.Error(c, errors.ErrUnauthorized.WithInternal(err))
		}

		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			reject(errMalformedAuthorization)
			return
		}

		claims, err := jwt.ValidateAccessToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			reject(err)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Next()
	}
}
