package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/civicalert/civicalert/internal/auth"
	"github.com/civicalert/civicalert/internal/dispatch"
	"github.com/civicalert/civicalert/internal/hal"
	"github.com/civicalert/civicalert/internal/models"
	"github.com/civicalert/civicalert/internal/permissions"
	"github.com/civicalert/civicalert/internal/services"
	"github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/response"
)

const notificationsPath = "/api/notifications"

var notificationFilters = []string{"status", "severity", "organization_id", "sort"}

// NotificationHandler exposes the notification review endpoints.
type NotificationHandler struct {
	service *services.NotificationService
	writer  *response.Writer
	hub     *dispatch.Hub
	jwt     *iauth.JWTService
	checker *permissions.Checker
}

// NewNotificationHandler constructs a notification handler. hub and jwt are only needed
// for the dispatch stream.
func NewNotificationHandler(service *services.NotificationService, writer *response.Writer, hub *dispatch.Hub, jwt *iauth.JWTService, checker *permissions.Checker) *NotificationHandler {
	return &NotificationHandler{service: service, writer: writer, hub: hub, jwt: jwt, checker: checker}
}

type createNotificationRequest struct {
	OrganizationID string `json:"organization_id"`
	Title          string `json:"title" validate:"required,max=200"`
	Body           string `json:"body" validate:"max=4000"`
	Severity       int    `json:"severity" validate:"gte=1,lte=5"`
	Origin         string `json:"origin" validate:"max=100"`
}

// Approval inputs are checked by the lifecycle so that the field errors match the
// transition rules exactly.
type approveNotificationRequest struct {
	TargetIDs   []string `json:"target_ids"`
	CategoryIDs []string `json:"category_ids"`
}

type denyNotificationRequest struct {
	Reason string `json:"reason"`
}

// List returns a page of notifications visible to the caller.
func (h *NotificationHandler) List(c *gin.Context) {
	caller, scope := callerFrom(c)
	renderer := h.writer.Renderer()

	page, err := hal.ParsePagination(c.Request.URL.Query(), notificationFilters, renderer.Builder().Config())
	if err != nil {
		h.writer.Error(c, err)
		return
	}

	filters := services.NotificationFilters{
		Status:         page.Filters.Get("status"),
		OrganizationID: page.Filters.Get("organization_id"),
		Sort:           page.Filters.Get("sort"),
	}
	if raw := page.Filters.Get("severity"); raw != "" {
		severity, convErr := strconv.Atoi(raw)
		if convErr != nil {
			h.writer.Error(c, errors.NewValidation(errors.FieldError{
				Field:         "severity",
				Message:       "severity must be an integer",
				Kind:          "numeric",
				RejectedInput: raw,
			}))
			return
		}
		filters.Severity = &severity
	}

	rows, total, err := h.service.List(requestContext(c), scope, services.ListNotificationsOptions{
		Offset:  page.Offset(),
		Limit:   page.PageSize,
		Filters: filters,
	})
	if err != nil {
		h.writer.Error(c, err)
		return
	}

	items := make([]hal.Resource, 0, len(rows))
	for i := range rows {
		item, renderErr := renderer.Resource(caller, notificationSubject(&rows[i]), toNotificationView(&rows[i]))
		if renderErr != nil {
			h.writer.Error(c, renderErr)
			return
		}
		items = append(items, item)
	}

	h.writer.Collection(c, renderer.Collection(notificationsPath, page.WithTotal(total), items))
}

// Get returns one notification with the caller's affordances.
func (h *NotificationHandler) Get(c *gin.Context) {
	_, scope := callerFrom(c)

	n, err := h.service.Get(requestContext(c), scope, c.Param("id"))
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.respond(c, http.StatusOK, n)
}

// Create ingests a new notification in the received state.
func (h *NotificationHandler) Create(c *gin.Context) {
	_, scope := callerFrom(c)

	var req createNotificationRequest
	if !bindAndValidate(c, h.writer, &req) {
		return
	}

	org := strings.TrimSpace(req.OrganizationID)
	switch {
	case scope != "" && org == "":
		org = scope
	case scope != "" && org != scope:
		h.writer.Error(c, errors.ErrForbidden.WithDetail("cannot submit notifications for another organization"))
		return
	case org == "":
		h.writer.Error(c, errors.NewValidation(errors.FieldError{
			Field:   "organization_id",
			Message: "organization id is required",
			Kind:    "required",
		}))
		return
	}

	n, err := h.service.Create(requestContext(c), services.CreateNotificationInput{
		OrganizationID: org,
		Title:          req.Title,
		Body:           req.Body,
		Severity:       req.Severity,
		Origin:         req.Origin,
	})
	if err != nil {
		h.writer.Error(c, err)
		return
	}

	c.Header("Location", h.writer.Renderer().Builder().URL(notificationsPath+"/"+n.ID, nil))
	h.respond(c, http.StatusCreated, n)
}

// Approve transitions a received notification to approved.
func (h *NotificationHandler) Approve(c *gin.Context) {
	caller, scope := callerFrom(c)

	var req approveNotificationRequest
	if !bindAndValidate(c, h.writer, &req) {
		return
	}

	n, err := h.service.Approve(requestContext(c), scope, c.Param("id"), caller.UserID, req.TargetIDs, req.CategoryIDs)
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.respond(c, http.StatusOK, n)
}

// Deny transitions a received notification to denied.
func (h *NotificationHandler) Deny(c *gin.Context) {
	caller, scope := callerFrom(c)

	var req denyNotificationRequest
	if !bindAndValidate(c, h.writer, &req) {
		return
	}

	n, err := h.service.Deny(requestContext(c), scope, c.Param("id"), caller.UserID, req.Reason)
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.respond(c, http.StatusOK, n)
}

// Delete soft-deletes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	_, scope := callerFrom(c)

	if err := h.service.Delete(requestContext(c), scope, c.Param("id")); err != nil {
		h.writer.Error(c, err)
		return
	}
	h.writer.NoContent(c)
}

// Audit lists the audit trail of a notification.
func (h *NotificationHandler) Audit(c *gin.Context) {
	_, scope := callerFrom(c)
	renderer := h.writer.Renderer()
	id := c.Param("id")

	page, err := hal.ParsePagination(c.Request.URL.Query(), nil, renderer.Builder().Config())
	if err != nil {
		h.writer.Error(c, err)
		return
	}

	logs, total, err := h.service.AuditTrail(requestContext(c), scope, id, page.Offset(), page.PageSize)
	if err != nil {
		h.writer.Error(c, err)
		return
	}

	builder := renderer.Builder()
	items := make([]hal.Resource, 0, len(logs))
	for i := range logs {
		item, renderErr := hal.NewResource(toAuditView(&logs[i]), hal.Links{
			"notification": builder.Link(notificationsPath + "/" + id),
		})
		if renderErr != nil {
			h.writer.Error(c, renderErr)
			return
		}
		items = append(items, item)
	}

	h.writer.Collection(c, renderer.Collection(notificationsPath+"/"+id+"/audit", page.WithTotal(total), items))
}

// Stream upgrades the request to a websocket carrying dispatch events for the caller's
// organization. Browsers cannot set headers on websocket requests, so the access token may
// also be passed as the access_token query parameter.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil || h.checker == nil {
		h.writer.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("access_token"))
	if token == "" {
		authz := c.GetHeader("Authorization")
		if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}
	if token == "" {
		h.writer.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		h.writer.Error(c, errors.ErrUnauthorized.WithInternal(err))
		return
	}

	caller, err := h.checker.Resolve(requestContext(c), claims.UserID)
	if err != nil {
		h.writer.Error(c, errors.ErrUnauthorized.WithInternal(err))
		return
	}
	if !caller.Can(permissions.NotificationRead) {
		h.writer.Error(c, errors.ErrForbidden.WithDetail("missing permission %s", permissions.NotificationRead))
		return
	}

	org := caller.OrganizationID
	if org == "" {
		org = strings.TrimSpace(c.Query("organization_id"))
	}
	if org == "" {
		h.writer.Error(c, errors.NewValidation(errors.FieldError{
			Field:   "organization_id",
			Message: "organization id is required",
			Kind:    "required",
		}))
		return
	}

	h.hub.Serve(org, c.Writer, c.Request)
}

func (h *NotificationHandler) respond(c *gin.Context, status int, n *models.Notification) {
	caller, _ := callerFrom(c)
	res, err := h.writer.Renderer().Resource(caller, notificationSubject(n), toNotificationView(n))
	if err != nil {
		h.writer.Error(c, err)
		return
	}
	h.writer.Resource(c, status, res)
}
