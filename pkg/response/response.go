package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicalert/civicalert/internal/hal"
	appErrors "github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/logger"
)

// Writer renders HAL and problem envelopes onto gin responses.
type Writer struct {
	renderer       *hal.Renderer
	exposeInternal bool
}

// NewWriter constructs a Writer. exposeInternal includes internal error text in problem
// details and should only be set in development.
func NewWriter(renderer *hal.Renderer, exposeInternal bool) *Writer {
	return &Writer{renderer: renderer, exposeInternal: exposeInternal}
}

// Renderer returns the envelope renderer.
func (w *Writer) Renderer() *hal.Renderer {
	return w.renderer
}

// Resource writes a single resource envelope.
func (w *Writer) Resource(c *gin.Context, statusCode int, resource hal.Resource) {
	c.Header("Content-Type", hal.MediaTypeHAL)
	c.JSON(statusCode, resource)
}

// Collection writes a paginated collection envelope.
func (w *Writer) Collection(c *gin.Context, collection hal.Collection) {
	c.Header("Content-Type", hal.MediaTypeHAL)
	c.JSON(http.StatusOK, collection)
}

// NoContent writes an empty 204 response.
func (w *Writer) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error writes a problem document derived from err and aborts the handler chain.
func (w *Writer) Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	problem := w.renderer.Problem(err, c.Request.URL.Path, w.exposeInternal)
	if problem.Status >= http.StatusInternalServerError {
		logger.WithModule("http").Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Int("status", problem.Status),
			zap.Error(err))
	}

	_ = c.Error(err)
	c.Header("Content-Type", hal.MediaTypeProblem)
	c.AbortWithStatusJSON(problem.Status, problem)
}
