package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/api"
	"github.com/civicalert/civicalert/internal/app"
	iauth "github.com/civicalert/civicalert/internal/auth"
	"github.com/civicalert/civicalert/internal/cache"
	sharedtestutil "github.com/civicalert/civicalert/internal/database/testutil"
	"github.com/civicalert/civicalert/internal/dispatch"
	"github.com/civicalert/civicalert/internal/hal"
	"github.com/civicalert/civicalert/internal/models"
	"github.com/civicalert/civicalert/internal/quota"
	"github.com/civicalert/civicalert/internal/services"
)

// BaseURL is the absolute origin links are rendered against in handler tests.
const BaseURL = "https://alerts.test"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	JWT           *iauth.JWTService
	Hub           *dispatch.Hub
	Notifications *services.NotificationService
}

// EnvOption customises the environment built by NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	quotaLimit int64
}

// WithQuota enables quota enforcement with the given per-minute limit backed by an in-memory store.
func WithQuota(limit int64) EnvOption {
	return func(cfg *envConfig) {
		cfg.quotaLimit = limit
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	options := envConfig{}
	for _, opt := range opts {
		opt(&options)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{BaseURL: BaseURL},
		HAL: app.HALConfig{
			ProblemBaseURL:  BaseURL + "/problems",
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
		},
		Monitoring: app.MonitoringConfig{
			Health:     app.HealthConfig{Enabled: true},
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	hub := dispatch.NewHub()
	notifications, err := services.NewNotificationService(db, audit, hub)
	require.NoError(t, err)
	users, err := services.NewUserService(db, audit)
	require.NoError(t, err)
	organizations, err := services.NewOrganizationService(db, audit)
	require.NoError(t, err)

	store := cache.NewMemoryStore()
	deps := api.Dependencies{
		DB:            db,
		Config:        cfg,
		JWT:           jwtSvc,
		Notifications: notifications,
		Users:         users,
		Organizations: organizations,
		Hub:           hub,
		QuotaStore:    store,
	}
	if options.quotaLimit > 0 {
		enforcer, err := quota.NewEnforcer(quota.NewStoreCounter(store), quota.Policy{Limit: options.quotaLimit, Window: time.Minute})
		require.NoError(t, err)
		deps.Quota = enforcer
	}

	router, err := api.NewRouter(deps)
	require.NoError(t, err)

	return &Env{
		T:             t,
		DB:            db,
		Router:        router,
		JWT:           jwtSvc,
		Hub:           hub,
		Notifications: notifications,
	}
}

// CreateOrganization inserts an organization with a random name.
func (e *Env) CreateOrganization() *models.Organization {
	e.T.Helper()

	org := &models.Organization{Name: "org-" + uuid.NewString()[:8]}
	require.NoError(e.T, e.DB.Create(org).Error)
	return org
}

// CreateUser inserts an active user holding the given seeded role. An empty orgID creates an
// unscoped user.
func (e *Env) CreateUser(roleID, orgID string) *models.User {
	e.T.Helper()

	username := roleID + "-" + uuid.NewString()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		IsActive: true,
	}
	if orgID != "" {
		user.OrganizationID = &orgID
	}
	require.NoError(e.T, e.DB.Create(user).Error)

	var role models.Role
	require.NoError(e.T, e.DB.First(&role, "id = ?", roleID).Error)
	require.NoError(e.T, e.DB.Model(user).Association("Roles").Append(&role))
	return user
}

// CreateRootUser inserts an active root user with every permission.
func (e *Env) CreateRootUser() *models.User {
	e.T.Helper()

	username := "root-" + uuid.NewString()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		IsActive: true,
		IsRoot:   true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// Token issues an access token for the user.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	input := iauth.AccessTokenInput{UserID: user.ID}
	if user.OrganizationID != nil {
		input.OrganizationID = *user.OrganizationID
	}
	token, err := e.JWT.GenerateAccessToken(input)
	require.NoError(e.T, err)
	return token
}

// CreateNotification submits a received notification through the service layer.
func (e *Env) CreateNotification(orgID string) *models.Notification {
	e.T.Helper()

	n, err := e.Notifications.Create(context.Background(), services.CreateNotificationInput{
		OrganizationID: orgID,
		Title:          "Boil water advisory",
		Body:           "Boil tap water before drinking until further notice.",
		Severity:       3,
		Origin:         "water-utility",
	})
	require.NoError(e.T, err)
	return n
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// DecodeResource parses a HAL resource response.
func DecodeResource(t *testing.T, w *httptest.ResponseRecorder) hal.Resource {
	t.Helper()
	res, err := hal.DecodeResource(w.Body.Bytes())
	require.NoError(t, err, w.Body.String())
	return res
}

// DecodeCollection parses a HAL collection response.
func DecodeCollection(t *testing.T, w *httptest.ResponseRecorder) hal.Collection {
	t.Helper()
	col, err := hal.DecodeCollection(w.Body.Bytes())
	require.NoError(t, err, w.Body.String())
	return col
}

// DecodeProblem parses a problem document response.
func DecodeProblem(t *testing.T, w *httptest.ResponseRecorder) hal.Problem {
	t.Helper()
	var problem hal.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem), w.Body.String())
	return problem
}

// LinkRels returns the relation names present on links.
func LinkRels(links hal.Links) []string {
	rels := make([]string, 0, len(links))
	for rel := range links {
		rels = append(rels, rel)
	}
	return rels
}
