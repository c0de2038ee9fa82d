package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/logger"
	"github.com/civicalert/civicalert/pkg/response"
)

// Recovery converts panics into a 500 problem document and logs the error.
func Recovery(writer *response.Writer) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithModule("http").Error("panic",
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", c.GetString(CtxRequestIDKey)),
					zap.Any("error", r),
					zap.Stack("stack"),
				)
				writer.Error(c, errors.Wrap(fmt.Errorf("panic: %v", r), "Internal server error"))
			}
		}()
		c.Next()
	}
}

// NotFoundHandler returns a problem document for unknown routes.
func NotFoundHandler(writer *response.Writer) gin.HandlerFunc {
	return func(c *gin.Context) {
		writer.Error(c, errors.ErrNotFound.WithDetail("route %s not found", c.Request.URL.Path))
	}
}
