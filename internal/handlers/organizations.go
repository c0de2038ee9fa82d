package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicalert/civicalert/internal/hal"
	"github.com/civicalert/civicalert/internal/models"
	"github.com/civicalert/civicalert/internal/services"
	"github.com/civicalert/civicalert/pkg/response"
)

// OrganizationHandler exposes organization endpoints.
type OrganizationHandler struct {
	service *services.OrganizationService
	writer  *response.Writer
}

// NewOrganizationHandler constructs an organization handler.
func NewOrganizationHandler(service *services.OrganizationService, writer *response.Writer) *OrganizationHandler {
	return &OrganizationHandler{service: service, writer: writer}
}

type updateOrganizationRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// Get returns an organization.
func (h *OrganizationHandler) Get(c *gin.Context) {
	_, scope := callerFrom(c)

	org, err := h.service.Get(requestContext(c), scope, c.Param("id"))
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.respond(c, org)
}

// Update edits an organization.
func (h *OrganizationHandler) Update(c *gin.Context) {
	_, scope := callerFrom(c)

	var req updateOrganizationRequest
	if !bindAndValidate(c, h.writer, &req) {
		return
	}

	org, err := h.service.Update(requestContext(c), scope, c.Param("id"), services.UpdateOrganizationInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.respond(c, org)
}

func (h *OrganizationHandler) respond(c *gin.Context, org *models.Organization) {
	caller, _ := callerFrom(c)
	subject := hal.Subject{Type: hal.ResourceOrganization, ID: org.ID, OrganizationID: org.ID}
	res, err := h.writer.Renderer().Resource(caller, subject, toOrganizationView(org))
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.writer.Resource(c, http.StatusOK, res)
}
