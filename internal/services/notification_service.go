package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civicalert/civicalert/internal/dispatch"
	"github.com/civicalert/civicalert/internal/lifecycle"
	"github.com/civicalert/civicalert/internal/models"
	apperrors "github.com/civicalert/civicalert/pkg/errors"
	"github.com/civicalert/civicalert/pkg/logger"
	"github.com/civicalert/civicalert/pkg/metrics"
)

// ErrNotificationNotFound indicates the notification does not exist or is outside the caller's scope.
var ErrNotificationNotFound = apperrors.New(apperrors.KindNotFound, "Notification not found", http.StatusNotFound)

const auditResourceNotification = "notification"

var errStateChanged = errors.New("notification changed state concurrently")

// Sort orders accepted by List.
var notificationSorts = map[string]string{
	"created_at":  "created_at ASC",
	"-created_at": "created_at DESC",
	"severity":    "severity ASC",
	"-severity":   "severity DESC",
}

// NotificationFilters narrows a notification listing.
type NotificationFilters struct {
	Status         string
	Severity       *int
	OrganizationID string
	Sort           string
}

// ListNotificationsOptions controls pagination and filtering.
type ListNotificationsOptions struct {
	Offset  int
	Limit   int
	Filters NotificationFilters
}

// CreateNotificationInput describes an incoming alert.
type CreateNotificationInput struct {
	OrganizationID string
	Title          string
	Body           string
	Severity       int
	Origin         string
}

// NotificationService persists notifications and applies lifecycle transitions.
type NotificationService struct {
	db        *gorm.DB
	audit     *AuditService
	publisher dispatch.Publisher
	now       func() time.Time
}

// NewNotificationService constructs a NotificationService. publisher may be nil.
func NewNotificationService(db *gorm.DB, audit *AuditService, publisher dispatch.Publisher) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, audit: audit, publisher: publisher, now: time.Now}, nil
}

// Create stores a new notification in the received state.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	n := models.Notification{
		OrganizationID: strings.TrimSpace(input.OrganizationID),
		Title:          strings.TrimSpace(input.Title),
		Body:           strings.TrimSpace(input.Body),
		Severity:       input.Severity,
		Origin:         strings.TrimSpace(input.Origin),
		Status:         models.NotificationReceived,
		TargetIDs:      models.EncodeIDs(nil),
		CategoryIDs:    models.EncodeIDs(nil),
		SchemaVersion:  models.CurrentNotificationSchema,
	}

	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	entry := EntryFromContext(ctx, "notification.create", auditResourceNotification, n.ID, AuditSuccess)
	entry.OrganizationID = n.OrganizationID
	entry.Metadata = map[string]any{"severity": n.Severity, "origin": n.Origin}
	recordAudit(s.audit, ctx, entry)

	return &n, nil
}

// Get loads a notification. A non-empty scope restricts the lookup to that organization.
func (s *NotificationService) Get(ctx context.Context, scope, id string) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	n, err := s.load(s.db.WithContext(ctx), scope, id, false)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// List returns a page of notifications and the total count matching the filters.
func (s *NotificationService) List(ctx context.Context, scope string, opts ListNotificationsOptions) ([]models.Notification, int64, error) {
	ctx = ensureContext(ctx)

	order := "created_at DESC"
	if opts.Filters.Sort != "" {
		var ok bool
		if order, ok = notificationSorts[opts.Filters.Sort]; !ok {
			return nil, 0, apperrors.NewValidation(apperrors.FieldError{
				Field:         "sort",
				Message:       "sort must be one of created_at, -created_at, severity, -severity",
				Kind:          "oneof",
				RejectedInput: opts.Filters.Sort,
			})
		}
	}
	if status := opts.Filters.Status; status != "" && !models.NotificationStatus(status).Valid() {
		return nil, 0, apperrors.NewValidation(apperrors.FieldError{
			Field:         "status",
			Message:       "status must be one of received, approved, denied, expired",
			Kind:          "oneof",
			RejectedInput: status,
		})
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{})
	if scope != "" {
		query = query.Where("organization_id = ?", scope)
	}
	if opts.Filters.OrganizationID != "" {
		query = query.Where("organization_id = ?", opts.Filters.OrganizationID)
	}
	if opts.Filters.Status != "" {
		query = query.Where("status = ?", opts.Filters.Status)
	}
	if opts.Filters.Severity != nil {
		query = query.Where("severity = ?", *opts.Filters.Severity)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count notifications: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var rows []models.Notification
	if err := query.
		Order(order).
		Order("id").
		Offset(max(0, opts.Offset)).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return rows, total, nil
}

// Approve transitions a received notification to approved and emits a dispatch event.
func (s *NotificationService) Approve(ctx context.Context, scope, id, approverID string, targetIDs, categoryIDs []string) (*models.Notification, error) {
	return s.transition(ctx, scope, id, lifecycle.ActionApprove, func(n *models.Notification) (lifecycle.Transition, error) {
		return lifecycle.Approve(n, approverID, normaliseIDs(targetIDs), normaliseIDs(categoryIDs), s.now())
	})
}

// Deny transitions a received notification to denied.
func (s *NotificationService) Deny(ctx context.Context, scope, id, denierID, reason string) (*models.Notification, error) {
	return s.transition(ctx, scope, id, lifecycle.ActionDeny, func(n *models.Notification) (lifecycle.Transition, error) {
		return lifecycle.Deny(n, denierID, reason, s.now())
	})
}

// ExpireStale expires every received notification created before cutoff and returns how many
// were expired. Notifications reviewed concurrently are skipped.
func (s *NotificationService) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	ctx = ensureContext(ctx)

	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("status = ? AND created_at < ?", models.NotificationReceived, cutoff.UTC()).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("notification service: find stale notifications: %w", err)
	}

	expired := 0
	for _, id := range ids {
		_, err := s.transition(ctx, "", id, lifecycle.ActionExpire, func(n *models.Notification) (lifecycle.Transition, error) {
			return lifecycle.Expire(n, s.now())
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrNotFound):
			continue
		default:
			return expired, err
		}
	}
	return expired, nil
}

// Delete soft-deletes a notification.
func (s *NotificationService) Delete(ctx context.Context, scope, id string) error {
	ctx = ensureContext(ctx)

	n, err := s.load(s.db.WithContext(ctx), scope, id, false)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(n).Error; err != nil {
		return fmt.Errorf("notification service: delete notification: %w", err)
	}

	entry := EntryFromContext(ctx, "notification.delete", auditResourceNotification, n.ID, AuditSuccess)
	entry.OrganizationID = n.OrganizationID
	recordAudit(s.audit, ctx, entry)
	return nil
}

// AuditTrail lists the audit entries recorded for a notification.
func (s *NotificationService) AuditTrail(ctx context.Context, scope, id string, offset, limit int) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)
	if s.audit == nil {
		return nil, 0, errors.New("notification service: audit service is not configured")
	}

	if _, err := s.load(s.db.WithContext(ctx).Unscoped(), scope, id, false); err != nil {
		return nil, 0, err
	}

	return s.audit.List(ctx, AuditListOptions{
		Offset:  offset,
		Limit:   limit,
		Filters: AuditFilters{Resource: auditResourceNotification, ResourceID: id},
	})
}

type transitionFunc func(n *models.Notification) (lifecycle.Transition, error)

func (s *NotificationService) transition(ctx context.Context, scope, id string, action lifecycle.Action, apply transitionFunc) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var (
		result *models.Notification
		tr     lifecycle.Transition
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.load(tx, scope, id, true)
		if err != nil {
			return err
		}

		tr, err = apply(n)
		if err != nil {
			return err
		}

		update := tx.Model(n).
			Where("status = ?", tr.From).
			Select(transitionColumns(action)).
			Updates(n)
		if update.Error != nil {
			return fmt.Errorf("notification service: persist %s: %w", action, update.Error)
		}
		if update.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", errStateChanged, action)
		}

		entry := EntryFromContext(ctx, "notification."+string(action), auditResourceNotification, n.ID, AuditSuccess)
		entry.OrganizationID = n.OrganizationID
		if action == lifecycle.ActionExpire {
			entry.UserID = nil
		}
		entry.Metadata = map[string]any{"from": string(tr.From), "to": string(tr.To), "actor": tr.Actor}
		if action == lifecycle.ActionDeny {
			entry.Metadata["reason"] = n.DenialReason
		}
		if err := s.audit.WithTx(tx).Log(ctx, entry); err != nil {
			return fmt.Errorf("notification service: audit %s: %w", action, err)
		}

		result = n
		return nil
	})
	if err != nil {
		appErr := translateLifecycleError(err)
		metrics.LifecycleTransitions.WithLabelValues(string(action), resultLabel(appErr)).Inc()
		if errors.Is(appErr, apperrors.ErrConflict) {
			entry := EntryFromContext(ctx, "notification."+string(action), auditResourceNotification, id, AuditFailure)
			entry.Metadata = map[string]any{"error": appErr.Detail}
			recordAudit(s.audit, ctx, entry)
		}
		return nil, appErr
	}

	metrics.LifecycleTransitions.WithLabelValues(string(action), "ok").Inc()
	s.publish(action, result, tr)
	return result, nil
}

func (s *NotificationService) load(db *gorm.DB, scope, id string, lock bool) (*models.Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotificationNotFound
	}

	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if scope != "" {
		query = query.Where("organization_id = ?", scope)
	}

	var n models.Notification
	if err := query.First(&n, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &n, nil
}

func (s *NotificationService) publish(action lifecycle.Action, n *models.Notification, tr lifecycle.Transition) {
	if s.publisher == nil || n == nil {
		return
	}

	event := dispatch.Event{
		OrganizationID: n.OrganizationID,
		NotificationID: n.ID,
		Severity:       n.Severity,
		OccurredAt:     tr.At,
	}
	switch action {
	case lifecycle.ActionApprove:
		event.Type = dispatch.EventNotificationApproved
		event.TargetIDs = n.Targets()
		event.CategoryIDs = n.Categories()
	case lifecycle.ActionDeny:
		event.Type = dispatch.EventNotificationDenied
	case lifecycle.ActionExpire:
		event.Type = dispatch.EventNotificationExpired
	default:
		return
	}

	s.publisher.Publish(event)
	logger.WithModule("notifications").Debug("dispatch event published",
		zap.String("type", event.Type),
		zap.String("notification_id", n.ID))
}

func transitionColumns(action lifecycle.Action) []string {
	switch action {
	case lifecycle.ActionApprove:
		return []string{"status", "approved_by", "approved_at", "target_ids", "category_ids", "updated_at"}
	case lifecycle.ActionDeny:
		return []string{"status", "denied_by", "denied_at", "denial_reason", "updated_at"}
	default:
		return []string{"status", "expired_at", "updated_at"}
	}
}

// translateLifecycleError maps lifecycle failures onto the API error taxonomy: input problems
// become validation errors and refused transitions become conflicts.
func translateLifecycleError(err error) *apperrors.AppError {
	var vErr *lifecycle.ValidationError
	if errors.As(err, &vErr) {
		fields := make([]apperrors.FieldError, 0, len(vErr.Violations))
		for _, v := range vErr.Violations {
			fields = append(fields, apperrors.FieldError{
				Field:         v.Field,
				Message:       v.Message,
				Kind:          "required",
				RejectedInput: v.Value,
			})
		}
		return apperrors.NewValidation(fields...)
	}

	var tErr *lifecycle.TransitionError
	if errors.As(err, &tErr) {
		return apperrors.NewConflict(tErr.Error())
	}
	if errors.Is(err, errStateChanged) {
		return apperrors.NewConflict(err.Error())
	}

	return apperrors.FromError(err)
}

func resultLabel(err *apperrors.AppError) string {
	switch {
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
