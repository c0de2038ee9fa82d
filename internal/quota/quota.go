// Package quota implements fixed-window request quotas backed by a shared counter store.
//
// When the store cannot be reached the enforcer fails open: the request is admitted and a
// synthetic decision keeps the quota headers well-formed. Availability is preferred over
// strict enforcement, and every degraded decision is counted and (sampled) logged.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/civicalert/civicalert/internal/cache"
	"github.com/civicalert/civicalert/pkg/logger"
	"github.com/civicalert/civicalert/pkg/metrics"
)

// Response headers written on every gated response.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

const (
	defaultTimeout     = 250 * time.Millisecond
	defaultLogInterval = 10 * time.Second
)

// Counter atomically increments key and returns the post-increment count. The expiry is
// applied only when the key is created.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Policy is the quota applied to one endpoint.
type Policy struct {
	Limit  int64
	Window time.Duration
}

func (p Policy) validate() error {
	if p.Limit <= 0 {
		return errors.New("quota: limit must be positive")
	}
	if p.Window < time.Second {
		return errors.New("quota: window must be at least one second")
	}
	return nil
}

// Decision is the outcome of a single quota check.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	Reset      time.Time
	RetryAfter time.Duration
	Degraded   bool
}

// Apply writes the quota headers. Retry-After is only set on rejection.
func (d Decision) Apply(h http.Header) {
	h.Set(HeaderLimit, strconv.FormatInt(d.Limit, 10))
	h.Set(HeaderRemaining, strconv.FormatInt(d.Remaining, 10))
	h.Set(HeaderReset, strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		h.Set(HeaderRetryAfter, strconv.FormatInt(d.RetryAfterSeconds(), 10))
	}
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, never below one.
func (d Decision) RetryAfterSeconds() int64 {
	secs := int64(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Option customises an Enforcer.
type Option func(*Enforcer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTimeout bounds each counter store call.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Enforcer) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithLogger sets the logger used for degradation warnings.
func WithLogger(log *zap.Logger) Option {
	return func(e *Enforcer) {
		if log != nil {
			e.log = log
		}
	}
}

// WithLogInterval limits degradation warnings to one per interval.
func WithLogInterval(interval time.Duration) Option {
	return func(e *Enforcer) {
		if interval > 0 {
			e.sampler = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// WithOverrides sets per-endpoint policies that replace the default.
func WithOverrides(overrides map[string]Policy) Option {
	return func(e *Enforcer) {
		for endpoint, policy := range overrides {
			e.overrides[endpoint] = policy
		}
	}
}

// Enforcer decides admit/reject per (identifier, endpoint, window).
type Enforcer struct {
	counter   Counter
	policy    Policy
	overrides map[string]Policy
	timeout   time.Duration
	now       func() time.Time
	log       *zap.Logger
	sampler   *rate.Limiter
}

// NewEnforcer constructs an Enforcer with the default policy.
func NewEnforcer(counter Counter, policy Policy, opts ...Option) (*Enforcer, error) {
	if counter == nil {
		return nil, errors.New("quota: counter is required")
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}

	e := &Enforcer{
		counter:   counter,
		policy:    policy,
		overrides: make(map[string]Policy),
		timeout:   defaultTimeout,
		now:       time.Now,
		log:       logger.WithModule("quota"),
		sampler:   rate.NewLimiter(rate.Every(defaultLogInterval), 1),
	}
	for _, opt := range opts {
		opt(e)
	}

	for endpoint, p := range e.overrides {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("quota: endpoint %q: %w", endpoint, err)
		}
	}
	return e, nil
}

// PolicyFor returns the policy that applies to endpoint.
func (e *Enforcer) PolicyFor(endpoint string) Policy {
	if p, ok := e.overrides[endpoint]; ok {
		return p
	}
	return e.policy
}

// Decide consumes one unit of quota for identifier on endpoint.
func (e *Enforcer) Decide(ctx context.Context, identifier, endpoint string) Decision {
	if ctx == nil {
		ctx = context.Background()
	}

	policy := e.PolicyFor(endpoint)
	now := e.now()
	start, end := windowBounds(now, policy.Window)
	key := fmt.Sprintf("%s:%s:%d", identifier, endpoint, start.UnixNano()/int64(policy.Window))

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	count, err := e.counter.Increment(callCtx, key, policy.Window)
	cancel()

	if err != nil {
		e.degraded(endpoint, key, err)
		return Decision{
			Allowed:   true,
			Limit:     policy.Limit,
			Remaining: policy.Limit - 1,
			Reset:     end,
			Degraded:  true,
		}
	}

	if count > policy.Limit {
		metrics.QuotaDecisions.WithLabelValues(endpoint, "rejected").Inc()
		return Decision{
			Allowed:    false,
			Limit:      policy.Limit,
			Remaining:  0,
			Reset:      end,
			RetryAfter: end.Sub(now),
		}
	}

	metrics.QuotaDecisions.WithLabelValues(endpoint, "allowed").Inc()
	return Decision{
		Allowed:   true,
		Limit:     policy.Limit,
		Remaining: policy.Limit - count,
		Reset:     end,
	}
}

func (e *Enforcer) degraded(endpoint, key string, err error) {
	metrics.QuotaDecisions.WithLabelValues(endpoint, "degraded").Inc()
	if e.sampler.Allow() {
		e.log.Warn("quota store unavailable, admitting request",
			zap.String("endpoint", endpoint),
			zap.String("key", key),
			zap.Error(err))
	}
}

// windowBounds returns the fixed window containing now: [floor(now/window)*window, +window).
func windowBounds(now time.Time, window time.Duration) (time.Time, time.Time) {
	index := now.UnixNano() / int64(window)
	start := time.Unix(0, index*int64(window)).In(now.Location())
	return start, start.Add(window)
}

// StoreCounter adapts a cache.Store to the Counter interface.
type StoreCounter struct {
	store cache.Store
}

// NewStoreCounter wraps store. It returns nil when store is nil.
func NewStoreCounter(store cache.Store) *StoreCounter {
	if store == nil {
		return nil
	}
	return &StoreCounter{store: store}
}

func (s *StoreCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, _, err := s.store.IncrementWithTTL(ctx, key, window)
	return count, err
}
