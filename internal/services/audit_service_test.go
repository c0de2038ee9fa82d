package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicalert/civicalert/internal/auditctx"
	"github.com/civicalert/civicalert/internal/database/testutil"
	"github.com/civicalert/civicalert/internal/models"
)

func TestAuditServiceLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	ctx := auditctx.WithActor(context.Background(), auditctx.Actor{UserID: "u-1", OrganizationID: "org-1", IPAddress: "10.0.0.1"})

	entry := EntryFromContext(ctx, "notification.approve", "notification", "n-1", AuditSuccess)
	entry.Metadata = map[string]any{"from": "received"}
	require.NoError(t, svc.Log(ctx, entry))
	require.NoError(t, svc.Log(ctx, EntryFromContext(ctx, "notification.deny", "notification", "n-2", AuditFailure)))

	logs, total, err := svc.List(ctx, AuditListOptions{Filters: AuditFilters{ResourceID: "n-1"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "u-1", *logs[0].UserID)
	require.Equal(t, "org-1", logs[0].OrganizationID)
	require.Equal(t, "10.0.0.1", logs[0].IPAddress)
	require.JSONEq(t, `{"from":"received"}`, logs[0].Metadata)

	_, total, err = svc.List(ctx, AuditListOptions{Filters: AuditFilters{Result: AuditFailure}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	require.Error(t, svc.Log(ctx, AuditEntry{Result: AuditSuccess}))
}

func TestAuditServiceCleanup(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now.AddDate(0, 0, -40) }
	require.NoError(t, svc.Log(context.Background(), AuditEntry{Action: "old", Result: AuditSuccess}))
	svc.now = func() time.Time { return now }
	require.NoError(t, svc.Log(context.Background(), AuditEntry{Action: "new", Result: AuditSuccess}))

	removed, err := svc.CleanupOlderThan(context.Background(), 30)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining []models.AuditLog
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "new", remaining[0].Action)

	_, err = svc.CleanupOlderThan(context.Background(), 0)
	require.Error(t, err)
}
