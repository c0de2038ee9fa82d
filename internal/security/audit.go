package security

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/app"
	iauth "github.com/civicalert/civicalert/internal/auth"
	"github.com/civicalert/civicalert/internal/database"
	"github.com/civicalert/civicalert/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Auditor evaluates the deployment's security posture at startup.
type Auditor struct {
	db  *gorm.DB
	jwt *iauth.JWTService
	cfg *app.Config
	now func() time.Time
}

// NewAuditor constructs the auditor. Missing inputs degrade specific checks to warnings.
func NewAuditor(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) *Auditor {
	return &Auditor{db: db, jwt: jwt, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock used in results.
func (a *Auditor) WithClock(clock func() time.Time) {
	if clock != nil {
		a.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (a *Auditor) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		a.checkAdministrators(ctx),
		a.checkJWTSecret(),
		a.checkAccessTokenTTL(),
		a.checkBaseURL(),
		a.checkQuota(),
		a.checkErrorExposure(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: a.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

// Log writes every check that did not pass.
func (r Result) Log(log *zap.Logger) {
	for _, check := range r.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case StatusFail:
			log.Error(check.Message, fields...)
		case StatusWarn:
			log.Warn(check.Message, fields...)
		}
	}
}

func (a *Auditor) checkAdministrators(ctx context.Context) Check {
	const id = "administrator_present"
	if a.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to confirm an administrator exists",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_active = ?", true).
		Where("is_root = ? OR id IN (?)", true,
			a.db.Table("user_roles").Select("user_id").Where("role_id = ?", database.RoleAdmin)).
		Count(&count).Error
	if err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not verify administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "No active root or administrator account found.",
			Remediation: "Provision an administrator so roles and organizations can be managed.",
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Administrator present.",
		Details: map[string]any{"count": count},
	}
}

func (a *Auditor) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	if a.jwt == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "JWT service not initialised; unable to assess signing secret strength.",
			Remediation: "Initialise the JWT service with a strong secret.",
		}
	}

	length := a.jwt.SecretLength()
	switch {
	case length < 32:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case length < 48:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to 48+ bytes.", length),
			Remediation: "Increase the length of CIVICALERT_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (a *Auditor) checkAccessTokenTTL() Check {
	const (
		id             = "access_token_ttl"
		maxRecommended = time.Hour
	)
	if a.jwt == nil {
		return Check{ID: id, Status: StatusWarn, Message: "JWT service not initialised; unable to evaluate token lifetime."}
	}

	ttl := a.jwt.TTL()
	if ttl > maxRecommended {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL (%s) exceeds recommended maximum (%s).", ttl, maxRecommended),
			Remediation: "Reduce CIVICALERT_AUTH_JWT_ACCESS_TOKEN_TTL to one hour or less.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}
	return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("Access token TTL is %s.", ttl)}
}

func (a *Auditor) checkBaseURL() Check {
	const id = "base_url_https"
	if a.cfg == nil {
		return Check{ID: id, Status: StatusWarn, Message: "Configuration not loaded; unable to verify base URL."}
	}

	u, err := url.Parse(strings.TrimSpace(a.cfg.Server.BaseURL))
	if err != nil || u.Host == "" {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "server.base_url is not an absolute URL; rendered links would be unusable.",
			Remediation: "Set CIVICALERT_SERVER_BASE_URL to the public origin, e.g. https://alerts.example.gov.",
		}
	}
	if u.Scheme != "https" && !isLoopbackHost(u.Hostname()) {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Links are rendered over %s for a non-local host.", u.Scheme),
			Remediation: "Serve the API behind TLS and use an https base URL.",
			Details:     map[string]any{"base_url": u.String()},
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Base URL configured."}
}

func (a *Auditor) checkQuota() Check {
	const id = "quota_enabled"
	if a.cfg == nil {
		return Check{ID: id, Status: StatusWarn, Message: "Configuration not loaded; unable to verify quota."}
	}
	if !a.cfg.Quota.Enabled {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Quota enforcement is disabled.",
			Remediation: "Enable quota so a single client cannot exhaust the API.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Quota enabled at %d requests per %s.", a.cfg.Quota.Limit, a.cfg.Quota.Window),
	}
}

func (a *Auditor) checkErrorExposure() Check {
	const id = "internal_errors_hidden"
	if a.cfg == nil {
		return Check{ID: id, Status: StatusWarn, Message: "Configuration not loaded; unable to verify error exposure."}
	}
	if a.cfg.Server.ExposeErrors {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Internal error details are included in problem documents.",
			Remediation: "Disable server.expose_errors outside development.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Internal error details are hidden."}
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
