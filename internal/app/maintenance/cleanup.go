package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/civicalert/civicalert/internal/services"
	"github.com/civicalert/civicalert/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultExpireAfter        = 24 * time.Hour
	defaultExpirySpec         = "@every 5m"
	defaultAuditSpec          = "@daily"
	defaultCounterSpec        = "@every 10m"
)

// Expirer expires notifications that were never reviewed.
type Expirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)
}

// CounterPurger removes elapsed quota windows from stores that do not expire keys themselves.
type CounterPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner coordinates background maintenance: the notification expiry sweep, audit retention
// and quota counter purging.
type Cleaner struct {
	expirer     Expirer
	audit       *services.AuditService
	counters    CounterPurger
	cron        *cron.Cron
	now         func() time.Time
	log         *zap.Logger
	retention   int
	expireAfter time.Duration

	expirySchedule  string
	auditSchedule   string
	counterSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithExpireAfter sets how long a notification may wait for review.
func WithExpireAfter(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.expireAfter = d
		}
	}
}

// WithCounterPurger enables purging of elapsed quota counters.
func WithCounterPurger(p CounterPurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.counters = p
	}
}

// WithExpirySchedule overrides the cron specification for the expiry sweep.
func WithExpirySchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.expirySchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithCounterSchedule overrides the cron specification for counter purging.
func WithCounterSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.counterSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the corresponding job
// being skipped.
func NewCleaner(expirer Expirer, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		expirer:         expirer,
		audit:           audit,
		now:             time.Now,
		retention:       defaultAuditRetentionDays,
		expireAfter:     defaultExpireAfter,
		expirySchedule:  defaultExpirySpec,
		auditSchedule:   defaultAuditSpec,
		counterSchedule: defaultCounterSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the enabled jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	jobs := 0

	if c.expirer != nil {
		if _, err := c.cron.AddFunc(c.expirySchedule, func() {
			if _, err := c.expireStale(context.Background()); err != nil {
				c.log.Warn("notification expiry sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audit.CleanupOlderThan(context.Background(), c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if c.counters != nil {
		if _, err := c.cron.AddFunc(c.counterSchedule, func() {
			if _, err := c.counters.PurgeExpired(context.Background(), c.now()); err != nil {
				c.log.Warn("quota counter purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if jobs == 0 {
		return nil
	}
	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and aggregates failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.expirer != nil {
		if _, err := c.expireStale(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.counters != nil {
		if _, err := c.counters.PurgeExpired(ctx, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) expireStale(ctx context.Context) (int, error) {
	count, err := c.expirer.ExpireStale(ctx, c.now().Add(-c.expireAfter))
	if count > 0 {
		c.log.Info("expired unreviewed notifications", zap.Int("count", count))
	}
	return count, err
}
