package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/civicalert/civicalert/internal/app"
	iauth "github.com/civicalert/civicalert/internal/auth"
	"github.com/civicalert/civicalert/internal/cache"
	"github.com/civicalert/civicalert/internal/database/testutil"
	"github.com/civicalert/civicalert/internal/dispatch"
	"github.com/civicalert/civicalert/internal/middleware"
	"github.com/civicalert/civicalert/internal/quota"
	"github.com/civicalert/civicalert/internal/services"
)

func newTestDependencies(t *testing.T) Dependencies {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret", Issuer: "router-test", AccessTokenTTL: time.Minute})
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	hub := dispatch.NewHub()
	notifications, err := services.NewNotificationService(db, audit, hub)
	require.NoError(t, err)
	users, err := services.NewUserService(db, audit)
	require.NoError(t, err)
	orgs, err := services.NewOrganizationService(db, audit)
	require.NoError(t, err)

	return Dependencies{
		DB: db,
		Config: &app.Config{
			Server: app.ServerConfig{BaseURL: "https://alerts.test"},
			Monitoring: app.MonitoringConfig{
				Health: app.HealthConfig{Enabled: true},
			},
		},
		JWT:           jwtSvc,
		Notifications: notifications,
		Users:         users,
		Organizations: orgs,
		Hub:           hub,
	}
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	require.Error(t, err)

	deps := newTestDependencies(t)
	deps.Users = nil
	_, err = NewRouter(deps)
	require.Error(t, err)
}

func TestRouterAppliesGlobalMiddleware(t *testing.T) {
	router, err := NewRouter(newTestDependencies(t))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRouterDisablesHealthAndMetrics(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Config.Monitoring.Health.Enabled = false
	router, err := NewRouter(deps)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterCountsAnonymousTrafficBeforeRejecting(t *testing.T) {
	deps := newTestDependencies(t)
	enforcer, err := quota.NewEnforcer(quota.NewStoreCounter(cache.NewMemoryStore()), quota.Policy{Limit: 1, Window: time.Minute})
	require.NoError(t, err)
	deps.Quota = enforcer

	router, err := NewRouter(deps)
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		req.Header.Set("User-Agent", "router-test")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := send()
	require.Equal(t, http.StatusUnauthorized, first.Code)
	require.Equal(t, "0", first.Header().Get(quota.HeaderRemaining))

	second := send()
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Equal(t, "application/problem+json", second.Header().Get("Content-Type"))
}

func TestRouterCountsInvalidTokensAgainstQuota(t *testing.T) {
	deps := newTestDependencies(t)
	enforcer, err := quota.NewEnforcer(quota.NewStoreCounter(cache.NewMemoryStore()), quota.Policy{Limit: 1, Window: time.Minute})
	require.NoError(t, err)
	deps.Quota = enforcer

	router, err := NewRouter(deps)
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("User-Agent", "router-test")
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := send()
	require.Equal(t, http.StatusUnauthorized, first.Code, first.Body.String())
	require.Equal(t, "Bearer", first.Header().Get("WWW-Authenticate"))
	require.Equal(t, "1", first.Header().Get(quota.HeaderLimit))
	require.Equal(t, "0", first.Header().Get(quota.HeaderRemaining))

	for i := 0; i < 4; i++ {
		w := send()
		require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
		require.Equal(t, "1", w.Header().Get(quota.HeaderLimit))
		require.NotEmpty(t, w.Header().Get("Retry-After"))
	}
}

func TestStreamRequiresToken(t *testing.T) {
	router, err := NewRouter(newTestDependencies(t))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stream/notifications", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stream/notifications?access_token=garbage", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
