package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/auditctx"
	"github.com/civicalert/civicalert/internal/models"
)

// Audit results.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditEntry captures a single audit event to persist.
type AuditEntry struct {
	UserID         *string
	OrganizationID string
	Action         string
	Resource       string
	ResourceID     string
	Result         string
	IPAddress      string
	UserAgent      string
	RequestID      string
	Metadata       map[string]any
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	UserID         string
	OrganizationID string
	Action         string
	Result         string
	Resource       string
	ResourceID     string
	Since          *time.Time
	Until          *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Offset  int
	Limit   int
	Filters AuditFilters
}

// AuditService persists and retrieves audit log entries.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// WithTx returns a copy writing through tx so audit rows commit with the change they describe.
func (s *AuditService) WithTx(tx *gorm.DB) *AuditService {
	if s == nil {
		return nil
	}
	return &AuditService{db: tx, now: s.now}
}

// EntryFromContext seeds an entry with the request actor stored in ctx.
func EntryFromContext(ctx context.Context, action, resource, resourceID, result string) AuditEntry {
	entry := AuditEntry{Action: action, Resource: resource, ResourceID: resourceID, Result: result}
	if actor, ok := auditctx.FromContext(ctx); ok {
		entry.UserID = stringPtr(actor.UserID)
		entry.OrganizationID = actor.OrganizationID
		entry.IPAddress = actor.IPAddress
		entry.UserAgent = actor.UserAgent
		entry.RequestID = actor.RequestID
	}
	return entry
}

// Log stores an audit entry, marshalling metadata into JSON form.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(entry.Result) == "" {
		return errors.New("audit service: result is required")
	}

	payload := ""
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		payload = string(encoded)
	}

	log := models.AuditLog{
		OrganizationID: strings.TrimSpace(entry.OrganizationID),
		Action:         strings.TrimSpace(entry.Action),
		Resource:       strings.TrimSpace(entry.Resource),
		ResourceID:     strings.TrimSpace(entry.ResourceID),
		Result:         strings.TrimSpace(entry.Result),
		IPAddress:      strings.TrimSpace(entry.IPAddress),
		UserAgent:      strings.TrimSpace(entry.UserAgent),
		RequestID:      strings.TrimSpace(entry.RequestID),
		Metadata:       payload,
		CreatedAt:      s.now().UTC(),
	}

	if entry.UserID != nil && strings.TrimSpace(*entry.UserID) != "" {
		id := strings.TrimSpace(*entry.UserID)
		log.UserID = &id
	}

	return s.db.WithContext(ctx).Create(&log).Error
}

// List returns audit logs ordered by creation time descending, oldest last.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var (
		results []models.AuditLog
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	if err := query.
		Order("created_at DESC").
		Order("id").
		Offset(max(0, opts.Offset)).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return results, total, nil
}

// CleanupOlderThan removes audit logs older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.OrganizationID != "" {
		query = query.Where("organization_id = ?", filters.OrganizationID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Result != "" {
		query = query.Where("result = ?", filters.Result)
	}
	if filters.Resource != "" {
		query = query.Where("resource = ?", filters.Resource)
	}
	if filters.ResourceID != "" {
		query = query.Where("resource_id = ?", filters.ResourceID)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", filters.Since.UTC())
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", filters.Until.UTC())
	}
	return query
}

// recordAudit logs the supplied entry while tolerating audit failures.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	_ = audit.Log(ctx, entry)
}
