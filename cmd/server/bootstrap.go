package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/api"
	"github.com/civicalert/civicalert/internal/app"
	"github.com/civicalert/civicalert/internal/app/maintenance"
	iauth "github.com/civicalert/civicalert/internal/auth"
	"github.com/civicalert/civicalert/internal/cache"
	"github.com/civicalert/civicalert/internal/database"
	"github.com/civicalert/civicalert/internal/dispatch"
	"github.com/civicalert/civicalert/internal/quota"
	"github.com/civicalert/civicalert/internal/security"
	"github.com/civicalert/civicalert/internal/services"
	"github.com/civicalert/civicalert/pkg/logger"
)

const redisProbeTimeout = 2 * time.Second

// counterStore is what the quota counters need from a cache backend.
type counterStore interface {
	cache.Store
	cache.Pinger
}

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Store         counterStore
	Redis         *cache.RedisClient
	AuditSvc      *services.AuditService
	Notifications *services.NotificationService
	Hub           *dispatch.Hub
	Enforcer      *quota.Enforcer
	Cleaner       *maintenance.Cleaner
	Router        *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Store, stack.Redis = selectCounterStore(ctx, cfg, stack.DB, log)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	security.NewAuditor(stack.DB, jwtSvc, cfg).Run(ctx).Log(logger.WithModule("security"))

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	stack.Hub = dispatch.NewHub()

	stack.Notifications, err = services.NewNotificationService(stack.DB, stack.AuditSvc, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}
	users, err := services.NewUserService(stack.DB, stack.AuditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}
	organizations, err := services.NewOrganizationService(stack.DB, stack.AuditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise organization service: %w", err)
	}

	if cfg.Quota.Enabled {
		opts := append(cfg.Quota.EnforcerOptions(), quota.WithLogger(logger.WithModule("quota")))
		stack.Enforcer, err = quota.NewEnforcer(quota.NewStoreCounter(stack.Store), cfg.Quota.DefaultPolicy(), opts...)
		if err != nil {
			return nil, fmt.Errorf("initialise quota enforcer: %w", err)
		}
	} else {
		log.Warn("quota enforcement disabled")
	}

	cleanerOpts := []maintenance.Option{
		maintenance.WithExpireAfter(cfg.Lifecycle.ExpireAfterOrDefault()),
		maintenance.WithExpirySchedule(cfg.Lifecycle.ExpirySchedule),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
		maintenance.WithCounterSchedule(cfg.Maintenance.CounterSchedule),
	}
	// Redis expires its own keys.
	if purger, ok := stack.Store.(maintenance.CounterPurger); ok {
		cleanerOpts = append(cleanerOpts, maintenance.WithCounterPurger(purger))
	}
	stack.Cleaner = maintenance.NewCleaner(stack.Notifications, stack.AuditSvc, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:            stack.DB,
		Config:        cfg,
		JWT:           jwtSvc,
		Notifications: stack.Notifications,
		Users:         users,
		Organizations: organizations,
		Hub:           stack.Hub,
		Quota:         stack.Enforcer,
		QuotaStore:    stack.Store,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// selectCounterStore picks the quota counter backend. A Redis backend that cannot be
// reached at startup falls back to the database.
func selectCounterStore(ctx context.Context, cfg *app.Config, db *gorm.DB, log *zap.Logger) (counterStore, *cache.RedisClient) {
	switch cfg.Cache.BackendName() {
	case "memory":
		log.Info("quota counters kept in memory")
		return cache.NewMemoryStore(), nil
	case "redis":
		client, err := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if err == nil {
			probeCtx, cancel := context.WithTimeout(ctx, redisProbeTimeout)
			err = client.Ping(probeCtx)
			cancel()
			if err == nil {
				log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
				return client, client
			}
			_ = client.Close()
		}
		log.Warn("redis unavailable; falling back to database-backed counters", zap.Error(err))
	}
	return cache.NewDatabaseStore(db), nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		s.Cleaner = nil
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
		s.Redis = nil
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
		s.DB = nil
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
