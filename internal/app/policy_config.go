package app

import (
	"strings"
	"time"

	"github.com/civicalert/civicalert/internal/hal"
	"github.com/civicalert/civicalert/internal/quota"
)

// HALRendererConfig combines the server base URL with the HAL settings.
func (c *Config) HALRendererConfig() hal.Config {
	return hal.Config{
		BaseURL:         strings.TrimSpace(c.Server.BaseURL),
		ProblemBaseURL:  strings.TrimSpace(c.HAL.ProblemBaseURL),
		DefaultPageSize: c.HAL.DefaultPageSize,
		MaxPageSize:     c.HAL.MaxPageSize,
	}
}

// DefaultPolicy returns the quota applied to endpoints without an override.
func (c QuotaConfig) DefaultPolicy() quota.Policy {
	return quota.Policy{Limit: c.Limit, Window: c.Window}
}

// Overrides returns per-endpoint policies keyed by "METHOD /route". Missing limits or
// windows inherit the default policy.
func (c QuotaConfig) Overrides() map[string]quota.Policy {
	if len(c.Endpoints) == 0 {
		return nil
	}

	out := make(map[string]quota.Policy, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		name := normaliseEndpoint(ep.Endpoint)
		if name == "" {
			continue
		}
		policy := c.DefaultPolicy()
		if ep.Limit > 0 {
			policy.Limit = ep.Limit
		}
		if ep.Window > 0 {
			policy.Window = ep.Window
		}
		out[name] = policy
	}
	return out
}

// EnforcerOptions converts timeouts into quota options.
func (c QuotaConfig) EnforcerOptions() []quota.Option {
	opts := []quota.Option{quota.WithOverrides(c.Overrides())}
	if c.Timeout > 0 {
		opts = append(opts, quota.WithTimeout(c.Timeout))
	}
	if c.LogInterval > 0 {
		opts = append(opts, quota.WithLogInterval(c.LogInterval))
	}
	return opts
}

// ExpireAfterOrDefault returns the review deadline for received notifications.
func (c LifecycleConfig) ExpireAfterOrDefault() time.Duration {
	if c.ExpireAfter <= 0 {
		return 24 * time.Hour
	}
	return c.ExpireAfter
}

func normaliseEndpoint(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return ""
	}
	return strings.ToUpper(fields[0]) + " " + fields[1]
}
