package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicalert/civicalert/internal/hal"
	"github.com/civicalert/civicalert/internal/models"
	"github.com/civicalert/civicalert/internal/permissions"
	"github.com/civicalert/civicalert/internal/services"
	"github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/response"
)

const usersPath = "/api/users"

// UserHandler exposes user management endpoints.
type UserHandler struct {
	service *services.UserService
	writer  *response.Writer
}

// NewUserHandler constructs a user handler.
func NewUserHandler(service *services.UserService, writer *response.Writer) *UserHandler {
	return &UserHandler{service: service, writer: writer}
}

type updateUserRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=120"`
	Email       *string `json:"email" validate:"omitempty,email"`
}

// List returns users in the caller's organization.
func (h *UserHandler) List(c *gin.Context) {
	caller, scope := callerFrom(c)
	renderer := h.writer.Renderer()

	page, err := hal.ParsePagination(c.Request.URL.Query(), nil, renderer.Builder().Config())
	if err != nil {
		h.writer.Error(c, err)
		return
	}

	users, total, err := h.service.List(requestContext(c), scope, page.Offset(), page.PageSize)
	if err != nil {
		h.writer.Error(c, err)
		return
	}

	items := make([]hal.Resource, 0, len(users))
	for i := range users {
		item, renderErr := renderer.Resource(caller, userSubject(&users[i]), toUserView(&users[i]))
		if renderErr != nil {
			h.writer.Error(c, renderErr)
			return
		}
		items = append(items, item)
	}

	h.writer.Collection(c, renderer.Collection(usersPath, page.WithTotal(total), items))
}

// Get returns one user. Callers may always read their own record.
func (h *UserHandler) Get(c *gin.Context) {
	caller, scope := callerFrom(c)
	id := c.Param("id")

	if !caller.Can(permissions.UserRead) && !caller.IsSelf(id) {
		h.writer.Error(c, errors.ErrForbidden.WithDetail("missing permission %s", permissions.UserRead))
		return
	}

	user, err := h.service.Get(requestContext(c), scope, id)
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.respond(c, http.StatusOK, user)
}

// Update edits a user. Callers holding user:update may edit anyone in scope; everyone else
// may edit only themselves with profile:update.
func (h *UserHandler) Update(c *gin.Context) {
	caller, scope := callerFrom(c)
	id := c.Param("id")

	if !caller.Can(permissions.UserUpdate) && !(caller.IsSelf(id) && caller.Can(permissions.ProfileUpdate)) {
		h.writer.Error(c, errors.ErrForbidden.WithDetail("missing permission %s", permissions.UserUpdate))
		return
	}

	var req updateUserRequest
	if !bindAndValidate(c, h.writer, &req) {
		return
	}

	user, err := h.service.Update(requestContext(c), scope, id, services.UpdateUserInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.respond(c, http.StatusOK, user)
}

// Delete removes a user. Callers cannot delete themselves.
func (h *UserHandler) Delete(c *gin.Context) {
	caller, scope := callerFrom(c)

	if err := h.service.Delete(requestContext(c), scope, caller.UserID, c.Param("id")); err != nil {
		h.writer.Error(c, err)
		return
	}
	h.writer.NoContent(c)
}

func (h *UserHandler) respond(c *gin.Context, status int, user *models.User) {
	caller, _ := callerFrom(c)
	res, err := h.writer.Renderer().Resource(caller, userSubject(user), toUserView(user))
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.writer.Resource(c, status, res)
}
