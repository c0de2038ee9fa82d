package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/auditctx"
	"github.com/civicalert/civicalert/internal/database/testutil"
	"github.com/civicalert/civicalert/internal/dispatch"
	"github.com/civicalert/civicalert/internal/models"
	apperrors "github.com/civicalert/civicalert/pkg/errors"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []dispatch.Event
}

func (p *recordingPublisher) Publish(event dispatch.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []dispatch.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dispatch.Event(nil), p.events...)
}

func newNotificationService(t *testing.T) (*NotificationService, *recordingPublisher, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	svc, err := NewNotificationService(db, audit, pub)
	require.NoError(t, err)
	return svc, pub, db
}

func reviewerContext() context.Context {
	return auditctx.WithActor(context.Background(), auditctx.Actor{
		UserID:         "reviewer-1",
		OrganizationID: "org-1",
		RequestID:      "req-1",
	})
}

func createNotification(t *testing.T, svc *NotificationService, org string, severity int) *models.Notification {
	t.Helper()
	n, err := svc.Create(context.Background(), CreateNotificationInput{
		OrganizationID: org,
		Title:          "Flood warning",
		Body:           "River levels rising",
		Severity:       severity,
		Origin:         "sensor",
	})
	require.NoError(t, err)
	return n
}

func TestNotificationServiceCreate(t *testing.T) {
	svc, _, _ := newNotificationService(t)

	n := createNotification(t, svc, "org-1", 3)
	require.NotEmpty(t, n.ID)
	require.Equal(t, models.NotificationReceived, n.Status)
	require.Equal(t, models.CurrentNotificationSchema, n.SchemaVersion)
	require.Empty(t, n.Targets())
}

func TestNotificationServiceApprove(t *testing.T) {
	svc, pub, db := newNotificationService(t)
	n := createNotification(t, svc, "org-1", 4)

	approved, err := svc.Approve(reviewerContext(), "org-1", n.ID, "reviewer-1", []string{"zone-a", "zone-a", " zone-b "}, []string{"weather"})
	require.NoError(t, err)
	require.Equal(t, models.NotificationApproved, approved.Status)
	require.Equal(t, []string{"zone-a", "zone-b"}, approved.Targets())
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, "reviewer-1", *approved.ApprovedBy)

	stored, err := svc.Get(context.Background(), "", n.ID)
	require.NoError(t, err)
	require.Equal(t, models.NotificationApproved, stored.Status)
	require.Equal(t, []string{"weather"}, stored.Categories())

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, dispatch.EventNotificationApproved, events[0].Type)
	require.Equal(t, "org-1", events[0].OrganizationID)
	require.Equal(t, []string{"zone-a", "zone-b"}, events[0].TargetIDs)

	var logs []models.AuditLog
	require.NoError(t, db.Where("resource_id = ? AND action = ?", n.ID, "notification.approve").Find(&logs).Error)
	require.Len(t, logs, 1)
	require.Equal(t, AuditSuccess, logs[0].Result)
	require.Equal(t, "req-1", logs[0].RequestID)
	require.Equal(t, "reviewer-1", *logs[0].UserID)
}

func TestNotificationServiceApproveTwiceConflicts(t *testing.T) {
	svc, pub, _ := newNotificationService(t)
	n := createNotification(t, svc, "org-1", 2)

	_, err := svc.Approve(reviewerContext(), "", n.ID, "reviewer-1", []string{"zone-a"}, []string{"weather"})
	require.NoError(t, err)

	_, err = svc.Approve(reviewerContext(), "", n.ID, "reviewer-1", []string{"zone-a"}, []string{"weather"})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.Deny(reviewerContext(), "", n.ID, "reviewer-1", "duplicate")
	require.ErrorIs(t, err, apperrors.ErrConflict)

	require.Len(t, pub.Events(), 1)
}

func TestNotificationServiceApproveValidation(t *testing.T) {
	svc, pub, _ := newNotificationService(t)
	n := createNotification(t, svc, "org-1", 2)

	_, err := svc.Approve(reviewerContext(), "", n.ID, "reviewer-1", nil, []string{" "})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	appErr := apperrors.FromError(err)
	fields := make([]string, 0, len(appErr.Fields))
	for _, f := range appErr.Fields {
		fields = append(fields, f.Field)
	}
	require.ElementsMatch(t, []string{"target_ids", "category_ids"}, fields)

	stored, err := svc.Get(context.Background(), "", n.ID)
	require.NoError(t, err)
	require.Equal(t, models.NotificationReceived, stored.Status)
	require.Empty(t, pub.Events())
}

func TestNotificationServiceDeny(t *testing.T) {
	svc, pub, _ := newNotificationService(t)
	n := createNotification(t, svc, "org-1", 1)

	_, err := svc.Deny(reviewerContext(), "", n.ID, "reviewer-1", "   ")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	denied, err := svc.Deny(reviewerContext(), "", n.ID, "reviewer-1", " test alert ")
	require.NoError(t, err)
	require.Equal(t, models.NotificationDenied, denied.Status)
	require.Equal(t, "test alert", denied.DenialReason)

	events := pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, dispatch.EventNotificationDenied, events[0].Type)
}

func TestNotificationServiceScopeHidesOtherOrganizations(t *testing.T) {
	svc, _, _ := newNotificationService(t)
	n := createNotification(t, svc, "org-1", 1)

	_, err := svc.Get(context.Background(), "org-2", n.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.Approve(reviewerContext(), "org-2", n.ID, "reviewer-1", []string{"a"}, []string{"b"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNotificationServiceList(t *testing.T) {
	svc, _, _ := newNotificationService(t)
	createNotification(t, svc, "org-1", 1)
	high := createNotification(t, svc, "org-1", 5)
	createNotification(t, svc, "org-2", 3)

	rows, total, err := svc.List(context.Background(), "org-1", ListNotificationsOptions{Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, rows, 2)

	rows, total, err = svc.List(context.Background(), "", ListNotificationsOptions{
		Limit:   1,
		Filters: NotificationFilters{Sort: "-severity"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, rows, 1)
	require.Equal(t, high.ID, rows[0].ID)

	severity := 3
	rows, total, err = svc.List(context.Background(), "", ListNotificationsOptions{
		Filters: NotificationFilters{Severity: &severity},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "org-2", rows[0].OrganizationID)

	_, _, err = svc.List(context.Background(), "", ListNotificationsOptions{Filters: NotificationFilters{Sort: "title"}})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = svc.List(context.Background(), "", ListNotificationsOptions{Filters: NotificationFilters{Status: "pending"}})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNotificationServiceExpireStale(t *testing.T) {
	svc, pub, db := newNotificationService(t)
	stale := createNotification(t, svc, "org-1", 1)
	reviewed := createNotification(t, svc, "org-1", 1)
	fresh := createNotification(t, svc, "org-1", 1)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(&models.Notification{}).Where("id IN ?", []string{stale.ID, reviewed.ID}).Update("created_at", old).Error)
	_, err := svc.Deny(reviewerContext(), "", reviewed.ID, "reviewer-1", "noise")
	require.NoError(t, err)

	count, err := svc.ExpireStale(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := svc.Get(context.Background(), "", stale.ID)
	require.NoError(t, err)
	require.Equal(t, models.NotificationExpired, got.Status)
	require.NotNil(t, got.ExpiredAt)

	got, err = svc.Get(context.Background(), "", fresh.ID)
	require.NoError(t, err)
	require.Equal(t, models.NotificationReceived, got.Status)

	events := pub.Events()
	require.Len(t, events, 2)
	require.Equal(t, dispatch.EventNotificationExpired, events[1].Type)
}

func TestNotificationServiceDeleteAndAuditTrail(t *testing.T) {
	svc, _, _ := newNotificationService(t)
	n := createNotification(t, svc, "org-1", 2)

	_, err := svc.Deny(reviewerContext(), "", n.ID, "reviewer-1", "spam")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(reviewerContext(), "org-1", n.ID))

	_, err = svc.Get(context.Background(), "", n.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	logs, total, err := svc.AuditTrail(context.Background(), "", n.ID, 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	require.ElementsMatch(t, []string{"notification.create", "notification.deny", "notification.delete"}, actions)
}
