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

// ErrUserNotFound indicates the user does not exist or is outside the caller's scope.
var ErrUserNotFound = apperrors.New(apperrors.KindNotFound, "User not found", http.StatusNotFound)

const auditResourceUser = "user"

// UpdateUserInput captures mutable user attributes. Nil fields are left untouched.
type UpdateUserInput struct {
	DisplayName *string
	Email       *string
}

// UserService manages operator accounts.
type UserService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, audit: audit}, nil
}

// List returns a page of users. A non-empty scope restricts results to that organization.
func (s *UserService) List(ctx context.Context, scope string, offset, limit int) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.User{})
	if scope != "" {
		query = query.Where("organization_id = ?", scope)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}

	var users []models.User
	if err := query.
		Order("username").
		Offset(max(0, offset)).
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}
	return users, total, nil
}

// Get retrieves a user with its roles.
func (s *UserService) Get(ctx context.Context, scope, id string) (*models.User, error) {
	ctx = ensureContext(ctx)
	return s.load(s.db.WithContext(ctx).Preload("Roles"), scope, id)
}

// Update modifies display name and email.
func (s *UserService) Update(ctx context.Context, scope, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.load(s.db.WithContext(ctx), scope, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*input.DisplayName)
	}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if email == "" {
			return nil, apperrors.NewValidation(apperrors.FieldError{Field: "email", Message: "email is required", Kind: "required"})
		}
		updates["email"] = email
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("email is already in use")
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	entry := EntryFromContext(ctx, "user.update", auditResourceUser, user.ID, AuditSuccess)
	entry.Metadata = map[string]any{"fields": sortedKeys(updates)}
	recordAudit(s.audit, ctx, entry)

	return s.Get(ctx, scope, id)
}

// Delete soft-deletes a user. Callers cannot delete themselves and root accounts are protected.
func (s *UserService) Delete(ctx context.Context, scope, callerID, id string) error {
	ctx = ensureContext(ctx)

	id = strings.TrimSpace(id)
	if callerID != "" && callerID == id {
		return apperrors.ErrForbidden.WithDetail("users cannot delete their own account")
	}

	user, err := s.load(s.db.WithContext(ctx), scope, id)
	if err != nil {
		return err
	}
	if user.IsRoot {
		return apperrors.NewConflict("root users cannot be deleted")
	}

	if err := s.db.WithContext(ctx).Delete(user).Error; err != nil {
		return fmt.Errorf("user service: delete user: %w", err)
	}

	recordAudit(s.audit, ctx, EntryFromContext(ctx, "user.delete", auditResourceUser, user.ID, AuditSuccess))
	return nil
}

func (s *UserService) load(db *gorm.DB, scope, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}
	if scope != "" {
		db = db.Where("organization_id = ?", scope)
	}

	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}
