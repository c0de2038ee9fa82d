package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/civicalert/civicalert/internal/app"
	iauth "github.com/civicalert/civicalert/internal/auth"
	"github.com/civicalert/civicalert/internal/database"
	testutil "github.com/civicalert/civicalert/internal/database/testutil"
	"github.com/civicalert/civicalert/internal/models"
)

func checkByID(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %s not found", id)
	return Check{}
}

func TestAuditorRun(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	admin := &models.User{Username: "admin", Email: "admin@example.com", IsActive: true}
	require.NoError(t, db.Create(admin).Error)
	var role models.Role
	require.NoError(t, db.First(&role, "id = ?", database.RoleAdmin).Error)
	require.NoError(t, db.Model(admin).Association("Roles").Append(&role))

	jwtSecret := "0123456789abcdef0123456789abcdef0123456789abcdef"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: jwtSecret, Issuer: "test-suite", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{BaseURL: "https://alerts.example.gov"},
		Quota:  app.QuotaConfig{Enabled: true, Limit: 10, Window: time.Minute},
	}

	auditor := NewAuditor(db, jwtSvc, cfg)
	fixed := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	auditor.WithClock(func() time.Time { return fixed })

	result := auditor.Run(context.Background())
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 6)
	require.Equal(t, 6, result.Summary[string(StatusPass)], "%+v", result.Checks)
}

func TestAuditorFlagsWeakDeployment(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "short", AccessTokenTTL: 24 * time.Hour})
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{BaseURL: "http://alerts.example.gov", ExposeErrors: true},
	}

	result := NewAuditor(db, jwtSvc, cfg).Run(context.Background())
	require.Equal(t, StatusWarn, checkByID(t, result, "administrator_present").Status)
	require.Equal(t, StatusFail, checkByID(t, result, "jwt_secret_strength").Status)
	require.Equal(t, StatusWarn, checkByID(t, result, "access_token_ttl").Status)
	require.Equal(t, StatusWarn, checkByID(t, result, "base_url_https").Status)
	require.Equal(t, StatusWarn, checkByID(t, result, "quota_enabled").Status)
	require.Equal(t, StatusWarn, checkByID(t, result, "internal_errors_hidden").Status)
	require.Zero(t, result.Summary[string(StatusPass)])

	core, recorded := observer.New(zap.WarnLevel)
	result.Log(zap.New(core))
	require.Equal(t, 6, recorded.Len())
}

func TestAuditorAllowsLoopbackHTTP(t *testing.T) {
	cfg := &app.Config{Server: app.ServerConfig{BaseURL: "http://127.0.0.1:8000"}}

	result := NewAuditor(nil, nil, cfg).Run(context.Background())
	require.Equal(t, StatusPass, checkByID(t, result, "base_url_https").Status)
	require.Equal(t, StatusWarn, checkByID(t, result, "administrator_present").Status)
}
