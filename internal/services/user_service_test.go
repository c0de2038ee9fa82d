package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/database/testutil"
	"github.com/civicalert/civicalert/internal/models"
	apperrors "github.com/civicalert/civicalert/pkg/errors"
)

func seedUser(t *testing.T, db *gorm.DB, username, org string, root bool) *models.User {
	t.Helper()
	user := models.User{
		Username:       username,
		Email:          username + "@example.com",
		IsRoot:         root,
		OrganizationID: stringPtr(org),
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func newUserService(t *testing.T) (*UserService, *gorm.DB) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewUserService(db, audit)
	require.NoError(t, err)
	return svc, db
}

func TestUserServiceListScoped(t *testing.T) {
	svc, db := newUserService(t)
	seedUser(t, db, "alice", "org-1", false)
	seedUser(t, db, "bob", "org-1", false)
	seedUser(t, db, "carol", "org-2", false)

	users, total, err := svc.List(context.Background(), "org-1", 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, "alice", users[0].Username)

	_, total, err = svc.List(context.Background(), "", 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
}

func TestUserServiceUpdate(t *testing.T) {
	svc, db := newUserService(t)
	alice := seedUser(t, db, "alice", "org-1", false)
	seedUser(t, db, "bob", "org-1", false)

	name := "Alice A."
	updated, err := svc.Update(context.Background(), "org-1", alice.ID, UpdateUserInput{DisplayName: &name})
	require.NoError(t, err)
	require.Equal(t, "Alice A.", updated.DisplayName)

	taken := "BOB@example.com"
	_, err = svc.Update(context.Background(), "org-1", alice.ID, UpdateUserInput{Email: &taken})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.Update(context.Background(), "org-2", alice.ID, UpdateUserInput{DisplayName: &name})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserServiceDelete(t *testing.T) {
	svc, db := newUserService(t)
	alice := seedUser(t, db, "alice", "org-1", false)
	root := seedUser(t, db, "root", "org-1", true)

	err := svc.Delete(context.Background(), "", alice.ID, alice.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
	require.Contains(t, apperrors.FromError(err).Detail, "own account")

	err = svc.Delete(context.Background(), "", alice.ID, root.ID)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, svc.Delete(context.Background(), "", root.ID, alice.ID))
	_, err = svc.Get(context.Background(), "", alice.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrganizationServiceGetAndUpdate(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewOrganizationService(db, nil)
	require.NoError(t, err)

	org, err := svc.Create(context.Background(), " Riverside County ", "")
	require.NoError(t, err)
	require.Equal(t, "Riverside County", org.Name)

	_, err = svc.Get(context.Background(), "other-org", org.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	blank := " "
	_, err = svc.Update(context.Background(), org.ID, org.ID, UpdateOrganizationInput{Name: &blank})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	desc := "Emergency management"
	updated, err := svc.Update(context.Background(), org.ID, org.ID, UpdateOrganizationInput{Description: &desc})
	require.NoError(t, err)
	require.Equal(t, "Emergency management", updated.Description)
}
