package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicalert/civicalert/internal/models"
)

func newReceived() *models.Notification {
	return &models.Notification{
		BaseModel:      models.BaseModel{ID: "n-1", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		OrganizationID: "org-1",
		Title:          "Boil water advisory",
		Body:           "Boil tap water before drinking.",
		Severity:       3,
		Origin:         "utility-feed",
		Status:         models.NotificationReceived,
		TargetIDs:      models.EncodeIDs(nil),
		CategoryIDs:    models.EncodeIDs(nil),
	}
}

func TestApproveFromReceived(t *testing.T) {
	n := newReceived()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tr, err := Approve(n, "user-1", []string{"zone-a", "zone-a", " "}, []string{"weather"}, now)
	require.NoError(t, err)

	require.Equal(t, ActionApprove, tr.Action)
	require.Equal(t, models.NotificationReceived, tr.From)
	require.Equal(t, models.NotificationApproved, tr.To)
	require.Equal(t, "user-1", tr.Actor)
	require.Equal(t, now, tr.At)

	require.Equal(t, models.NotificationApproved, n.Status)
	require.NotNil(t, n.ApprovedBy)
	require.Equal(t, "user-1", *n.ApprovedBy)
	require.NotNil(t, n.ApprovedAt)
	require.Nil(t, n.DeniedBy)
	require.Nil(t, n.DeniedAt)
	require.Equal(t, []string{"zone-a"}, n.Targets())
	require.Equal(t, []string{"weather"}, n.Categories())
}

func TestTransitionsKeepImmutableFields(t *testing.T) {
	n := newReceived()
	before := *n

	_, err := Deny(n, "user-2", "duplicate", time.Now())
	require.NoError(t, err)

	require.Equal(t, before.CreatedAt, n.CreatedAt)
	require.Equal(t, before.Title, n.Title)
	require.Equal(t, before.Body, n.Body)
	require.Equal(t, before.Severity, n.Severity)
	require.Equal(t, before.Origin, n.Origin)
}

func TestDenyRecordsReason(t *testing.T) {
	n := newReceived()

	_, err := Deny(n, "user-2", "  not verified  ", time.Now())
	require.NoError(t, err)

	require.Equal(t, models.NotificationDenied, n.Status)
	require.Equal(t, "not verified", n.DenialReason)
	require.NotNil(t, n.DeniedBy)
	require.NotNil(t, n.DeniedAt)
	require.Nil(t, n.ApprovedBy)
	require.Empty(t, n.Targets())
}

func TestDenyWithoutReasonIsValidationError(t *testing.T) {
	for _, status := range []models.NotificationStatus{models.NotificationReceived, models.NotificationApproved} {
		n := newReceived()
		n.Status = status

		_, err := Deny(n, "user-2", "   ", time.Now())
		require.Error(t, err)

		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr), "status %s", status)
		require.False(t, errors.Is(err, ErrInvalidTransition))
		require.Equal(t, "reason", vErr.Violations[0].Field)
		require.Equal(t, status, n.Status)
	}
}

func TestApproveRequiresTargetsAndCategories(t *testing.T) {
	n := newReceived()

	_, err := Approve(n, "user-1", nil, []string{""}, time.Now())

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Violations, 2)
	require.Equal(t, "target_ids", vErr.Violations[0].Field)
	require.Equal(t, "category_ids", vErr.Violations[1].Field)
	require.Equal(t, models.NotificationReceived, n.Status)
}

func TestTerminalStatesRefuseTransitions(t *testing.T) {
	terminal := []models.NotificationStatus{
		models.NotificationApproved,
		models.NotificationDenied,
		models.NotificationExpired,
	}

	for _, status := range terminal {
		t.Run(string(status), func(t *testing.T) {
			n := newReceived()
			n.Status = status

			require.False(t, CanApprove(n))
			require.False(t, CanDeny(n))
			require.False(t, CanExpire(n))

			_, err := Approve(n, "user-1", []string{"zone"}, []string{"cat"}, time.Now())
			require.ErrorIs(t, err, ErrInvalidTransition)

			var tErr *TransitionError
			require.ErrorAs(t, err, &tErr)
			require.Equal(t, ActionApprove, tErr.Action)
			require.Equal(t, status, tErr.From)

			_, err = Deny(n, "user-1", "reason", time.Now())
			require.ErrorIs(t, err, ErrInvalidTransition)

			_, err = Expire(n, time.Now())
			require.ErrorIs(t, err, ErrInvalidTransition)

			require.Equal(t, status, n.Status)
		})
	}
}

func TestExpireFromReceived(t *testing.T) {
	n := newReceived()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tr, err := Expire(n, now)
	require.NoError(t, err)
	require.Equal(t, models.NotificationExpired, tr.To)
	require.Equal(t, models.NotificationExpired, n.Status)
	require.Equal(t, now, *n.ExpiredAt)
}

func TestNilNotification(t *testing.T) {
	require.False(t, CanApprove(nil))
	_, err := Expire(nil, time.Now())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStatusAllowsUnknownAction(t *testing.T) {
	require.False(t, StatusAllows(Action("archive"), models.NotificationReceived))
}
