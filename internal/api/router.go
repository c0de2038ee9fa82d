package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/app"
	iauth "github.com/civicalert/civicalert/internal/auth"
	"github.com/civicalert/civicalert/internal/cache"
	"github.com/civicalert/civicalert/internal/dispatch"
	"github.com/civicalert/civicalert/internal/hal"
	"github.com/civicalert/civicalert/internal/handlers"
	"github.com/civicalert/civicalert/internal/middleware"
	"github.com/civicalert/civicalert/internal/permissions"
	"github.com/civicalert/civicalert/internal/quota"
	"github.com/civicalert/civicalert/internal/services"
	"github.com/civicalert/civicalert/pkg/response"
)

// Dependencies are the long-lived collaborators the router wires into handlers.
type Dependencies struct {
	DB            *gorm.DB
	Config        *app.Config
	JWT           *iauth.JWTService
	Notifications *services.NotificationService
	Users         *services.UserService
	Organizations *services.OrganizationService
	Hub           *dispatch.Hub
	// Quota is nil when quota enforcement is disabled.
	Quota *quota.Enforcer
	// QuotaStore is reported by the health endpoint when set.
	QuotaStore cache.Pinger
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("database handle must be provided")
	case d.JWT == nil:
		return errors.New("jwt service must be provided")
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.Notifications == nil || d.Users == nil || d.Organizations == nil:
		return errors.New("services must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	checker, err := permissions.NewChecker(deps.DB)
	if err != nil {
		return nil, err
	}

	writer := response.NewWriter(hal.NewRenderer(cfg.HALRendererConfig()), cfg.Server.ExposeErrors)

	r := gin.New()
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			return nil, err
		}
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(writer))
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	r.NoRoute(middleware.NotFoundHandler(writer))

	registerHealthRoutes(r, cfg, deps.DB, deps.QuotaStore, deps.Hub)
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	notificationHandler := handlers.NewNotificationHandler(deps.Notifications, writer, deps.Hub, deps.JWT, checker)

	// Websocket clients authenticate inside the handler.
	r.GET("/api/stream/notifications", notificationHandler.Stream)

	// Anonymous requests are counted against quota before being turned away.
	api := r.Group("/api")
	api.Use(
		middleware.OptionalAuth(deps.JWT, writer),
		middleware.Quota(deps.Quota, writer),
		middleware.ResolveCaller(checker, writer),
		middleware.RequireCaller(writer),
	)

	registerNotificationRoutes(api, notificationHandler, writer)
	registerUserRoutes(api, handlers.NewUserHandler(deps.Users, writer), writer)
	registerOrganizationRoutes(api, handlers.NewOrganizationHandler(deps.Organizations, writer), writer)

	return r, nil
}
