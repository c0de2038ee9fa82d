package handlers

import (
	"time"

	"github.com/civicalert/civicalert/internal/hal"
	"github.com/civicalert/civicalert/internal/models"
)

type notificationView struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Severity       int        `json:"severity"`
	Origin         string     `json:"origin,omitempty"`
	Status         string     `json:"status"`
	TargetIDs      []string   `json:"target_ids"`
	CategoryIDs    []string   `json:"category_ids"`
	DenialReason   string     `json:"denial_reason,omitempty"`
	ApprovedBy     *string    `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	DeniedBy       *string    `json:"denied_by,omitempty"`
	DeniedAt       *time.Time `json:"denied_at,omitempty"`
	ExpiredAt      *time.Time `json:"expired_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toNotificationView(n *models.Notification) notificationView {
	targets := n.Targets()
	if targets == nil {
		targets = []string{}
	}
	categories := n.Categories()
	if categories == nil {
		categories = []string{}
	}
	return notificationView{
		ID:             n.ID,
		OrganizationID: n.OrganizationID,
		Title:          n.Title,
		Body:           n.Body,
		Severity:       n.Severity,
		Origin:         n.Origin,
		Status:         string(n.Status),
		TargetIDs:      targets,
		CategoryIDs:    categories,
		DenialReason:   n.DenialReason,
		ApprovedBy:     n.ApprovedBy,
		ApprovedAt:     n.ApprovedAt,
		DeniedBy:       n.DeniedBy,
		DeniedAt:       n.DeniedAt,
		ExpiredAt:      n.ExpiredAt,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func notificationSubject(n *models.Notification) hal.Subject {
	return hal.Subject{
		Type:           hal.ResourceNotification,
		ID:             n.ID,
		State:          string(n.Status),
		OrganizationID: n.OrganizationID,
	}
}

type userView struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name,omitempty"`
	IsActive       bool      `json:"is_active"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Roles          []string  `json:"roles,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toUserView(u *models.User) userView {
	view := userView{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		IsActive:       u.IsActive,
		OrganizationID: u.OrganizationID,
		CreatedAt:      u.CreatedAt,
	}
	for _, role := range u.Roles {
		view.Roles = append(view.Roles, role.ID)
	}
	return view
}

func userSubject(u *models.User) hal.Subject {
	subject := hal.Subject{Type: hal.ResourceUser, ID: u.ID}
	if u.OrganizationID != nil {
		subject.OrganizationID = *u.OrganizationID
	}
	if u.IsRoot {
		subject.State = hal.UserStateRoot
	}
	return subject
}

type organizationView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toOrganizationView(o *models.Organization) organizationView {
	return organizationView{
		ID:          o.ID,
		Name:        o.Name,
		Description: o.Description,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

type auditView struct {
	ID         string    `json:"id"`
	UserID     *string   `json:"user_id,omitempty"`
	Action     string    `json:"action"`
	Result     string    `json:"result"`
	RequestID  string    `json:"request_id,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ResourceID string    `json:"resource_id"`
}

func toAuditView(l *models.AuditLog) auditView {
	return auditView{
		ID:         l.ID,
		UserID:     l.UserID,
		Action:     l.Action,
		Result:     l.Result,
		RequestID:  l.RequestID,
		Metadata:   l.Metadata,
		CreatedAt:  l.CreatedAt,
		ResourceID: l.ResourceID,
	}
}
