package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/models"
	apperrors "github.com/civicalert/civicalert/pkg/errors"
)

// ErrOrganizationNotFound indicates the organization does not exist or is outside the caller's scope.
var ErrOrganizationNotFound = apperrors.New(apperrors.KindNotFound, "Organization not found", http.StatusNotFound)

// UpdateOrganizationInput captures mutable organization attributes.
type UpdateOrganizationInput struct {
	Name        *string
	Description *string
}

// OrganizationService manages tenants.
type OrganizationService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewOrganizationService constructs an OrganizationService.
func NewOrganizationService(db *gorm.DB, audit *AuditService) (*OrganizationService, error) {
	if db == nil {
		return nil, errors.New("organization service: db is required")
	}
	return &OrganizationService{db: db, audit: audit}, nil
}

// Create inserts an organization.
func (s *OrganizationService) Create(ctx context.Context, name, description string) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidation(apperrors.FieldError{Field: "name", Message: "name is required", Kind: "required"})
	}

	org := models.Organization{Name: name, Description: strings.TrimSpace(description)}
	if err := s.db.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, fmt.Errorf("organization service: create organization: %w", err)
	}
	return &org, nil
}

// Get loads an organization. Scoped callers may only see their own organization.
func (s *OrganizationService) Get(ctx context.Context, scope, id string) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" || (scope != "" && scope != id) {
		return nil, ErrOrganizationNotFound
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("organization service: load organization: %w", err)
	}
	return &org, nil
}

// Update changes name and description.
func (s *OrganizationService) Update(ctx context.Context, scope, id string, input UpdateOrganizationInput) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	org, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewValidation(apperrors.FieldError{Field: "name", Message: "name is required", Kind: "required"})
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if len(updates) == 0 {
		return org, nil
	}

	if err := s.db.WithContext(ctx).Model(org).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("organization service: update organization: %w", err)
	}

	entry := EntryFromContext(ctx, "organization.update", "organization", org.ID, AuditSuccess)
	entry.OrganizationID = org.ID
	entry.Metadata = map[string]any{"fields": sortedKeys(updates)}
	recordAudit(s.audit, ctx, entry)

	return s.Get(ctx, scope, id)
}
