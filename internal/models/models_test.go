package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)
}

func TestBaseModelBeforeCreateKeepsExplicitID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	require.NoError(t, base.BeforeCreate(nil))
	require.Equal(t, "fixed", base.ID)
}

func TestAuditLogBeforeCreateGeneratesID(t *testing.T) {
	var entry AuditLog
	require.NoError(t, entry.BeforeCreate(nil))
	require.NotEmpty(t, entry.ID)
}

func TestNotificationIDColumnsRoundTrip(t *testing.T) {
	n := Notification{
		TargetIDs:   EncodeIDs([]string{"zone-1", "zone-2"}),
		CategoryIDs: EncodeIDs(nil),
	}

	require.Equal(t, []string{"zone-1", "zone-2"}, n.Targets())
	require.Empty(t, n.Categories())
	require.JSONEq(t, `[]`, string(n.CategoryIDs))
}

func TestNotificationStatusValid(t *testing.T) {
	for _, status := range []NotificationStatus{NotificationReceived, NotificationApproved, NotificationDenied, NotificationExpired} {
		require.True(t, status.Valid(), string(status))
	}
	require.False(t, NotificationStatus("archived").Valid())
}
