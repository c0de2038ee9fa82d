package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/civicalert/civicalert/internal/auth"
	"github.com/civicalert/civicalert/internal/cache"
	"github.com/civicalert/civicalert/internal/database"
	"github.com/civicalert/civicalert/internal/database/testutil"
	"github.com/civicalert/civicalert/internal/hal"
	"github.com/civicalert/civicalert/internal/models"
	"github.com/civicalert/civicalert/internal/permissions"
	"github.com/civicalert/civicalert/internal/quota"
	"github.com/civicalert/civicalert/pkg/response"
)

func newWriter() *response.Writer {
	return response.NewWriter(hal.NewRenderer(hal.Config{BaseURL: "https://api.example.test"}), false)
}

func newJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	svc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "secret", Issuer: "test-suite", AccessTokenTTL: time.Minute})
	require.NoError(t, err)
	return svc
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) hal.Problem {
	t.Helper()
	require.Equal(t, hal.MediaTypeProblem, w.Header().Get("Content-Type"))
	var problem hal.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	return problem
}

func createUser(t *testing.T, db *gorm.DB, username, roleID string) *models.User {
	t.Helper()
	org := "org-1"
	user := models.User{Username: username, Email: username + "@example.com", OrganizationID: &org}
	require.NoError(t, db.Create(&user).Error)
	if roleID != "" {
		var role models.Role
		require.NoError(t, db.First(&role, "id = ?", roleID).Error)
		require.NoError(t, db.Model(&user).Association("Roles").Append(&role))
	}
	return &user
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newJWT(t)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-123"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc, newWriter()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(CtxUserIDKey)})
	})
	r.GET("/open", OptionalAuth(jwtSvc, newWriter()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(CtxUserIDKey), "refused": AuthError(c) != nil})
	})
	r.GET("/member", OptionalAuth(jwtSvc, newWriter()), RequireCaller(newWriter()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	problem := decodeProblem(t, w)
	require.Equal(t, "https://api.example.test/problems/authentication-required", problem.Type)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":"user-123"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":"","refused":false}`, w.Body.String())

	for _, header := range []string{"Bearer not-a-token", "Basic dXNlcjpwYXNz"} {
		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/open", nil)
		req.Header.Set("Authorization", header)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, header)
		require.JSONEq(t, `{"user_id":"","refused":true}`, w.Body.String())

		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/member", nil)
		req.Header.Set("Authorization", header)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, header)
		require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	}
}

func TestResolveCallerAndRequirePermission(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	checker, err := permissions.NewChecker(db)
	require.NoError(t, err)
	member := createUser(t, db, "member", database.RoleMember)
	reviewer := createUser(t, db, "reviewer", database.RoleReviewer)

	jwtSvc := newJWT(t)
	writer := newWriter()

	r := gin.New()
	r.Use(RequestID(), OptionalAuth(jwtSvc, writer), ResolveCaller(checker, writer))
	r.POST("/approve", RequirePermission(permissions.NotificationApprove, writer), func(c *gin.Context) {
		caller := permissions.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID, "org": caller.OrganizationID})
	})

	call := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/approve", nil)
		if userID != "" {
			token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID})
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := call("")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(member.ID)
	require.Equal(t, http.StatusForbidden, w.Code)
	problem := decodeProblem(t, w)
	require.Equal(t, "missing permission notification:approve", problem.Detail)

	w = call(reviewer.ID)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":"`+reviewer.ID+`","org":"org-1"}`, w.Body.String())

	w = call("ghost")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermissionPanicsOnUnknownToken(t *testing.T) {
	require.Panics(t, func() {
		RequirePermission(permissions.Token("notification:launch"), newWriter())
	})
}

func TestQuotaMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	enforcer, err := quota.NewEnforcer(
		quota.NewStoreCounter(cache.NewMemoryStore()),
		quota.Policy{Limit: 2, Window: time.Minute},
	)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Quota(enforcer, newWriter()))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "2", w.Header().Get(quota.HeaderLimit))
		require.Empty(t, w.Header().Get(quota.HeaderRetryAfter))
	}

	// Different path values share the route's quota.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/2", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get(quota.HeaderRemaining))
	require.NotEmpty(t, w.Header().Get(quota.HeaderRetryAfter))

	problem := decodeProblem(t, w)
	require.Equal(t, http.StatusTooManyRequests, problem.Status)
	require.Equal(t, "https://api.example.test/problems/rate-limit-exceeded", problem.Type)
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRequestIDKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(HeaderRequestID)
	require.Len(t, generated, 26)
	require.Equal(t, generated, w.Body.String())

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "upstream-42")
	r.ServeHTTP(w, req)
	require.Equal(t, "upstream-42", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "bad id\nvalue")
	r.ServeHTTP(w, req)
	require.NotEqual(t, "bad id\nvalue", w.Header().Get(HeaderRequestID))
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Recovery(newWriter()))
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	problem := decodeProblem(t, w)
	require.Empty(t, problem.Detail)
	require.Equal(t, "/panic", problem.Instance)
}

func TestNotFoundHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.NoRoute(NotFoundHandler(newWriter()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	problem := decodeProblem(t, w)
	require.Equal(t, "route /missing not found", problem.Detail)
}
