package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/models"
	"github.com/civicalert/civicalert/pkg/logger"
	"github.com/civicalert/civicalert/pkg/metrics"
)

// Checker resolves the effective permission set of a user from stored role grants.
type Checker struct {
	db *gorm.DB
}

// NewChecker constructs a permission checker backed by the provided database.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permission checker: db is required")
	}
	return &Checker{db: db}, nil
}

// Resolve builds the caller context for a user. Stored grants that are not registered are
// rejected and reported, never passed through. A grant whose dependencies are not all held
// is not effective.
func (c *Checker) Resolve(ctx context.Context, userID string) (CallerContext, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CallerContext{}, errors.New("permission checker: user id is required")
	}

	var user models.User
	if err := c.db.WithContext(ctx).
		Preload("Roles.Permissions").
		First(&user, "id = ?", userID).Error; err != nil {
		return CallerContext{}, fmt.Errorf("permission checker: load user: %w", err)
	}

	caller := CallerContext{UserID: user.ID}
	if user.OrganizationID != nil {
		caller.OrganizationID = *user.OrganizationID
	}

	if user.IsRoot {
		caller.Permissions = NewSet(Tokens()...)
		return caller, nil
	}

	granted := make([]Token, 0)
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			token, err := ParseToken(perm.ID)
			if err != nil {
				metrics.UnknownPermissions.Inc()
				logger.WithModule("permissions").Warn("rejected unknown permission grant",
					zap.String("user_id", user.ID),
					zap.String("role", role.Name),
					zap.String("permission", perm.ID))
				continue
			}
			granted = append(granted, token)
		}
	}

	caller.Permissions = effective(expandImplied(granted))
	return caller, nil
}

// Check determines whether the user holds the specified permission.
func (c *Checker) Check(ctx context.Context, userID string, token Token) (bool, error) {
	if _, ok := Get(token); !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownPermission, token)
	}

	caller, err := c.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return caller.Can(token), nil
}

func expandImplied(tokens []Token) Set {
	perms := make(Set)

	var visit func(Token)
	visit = func(token Token) {
		if _, exists := perms[token]; exists {
			return
		}

		def, ok := Get(token)
		if !ok {
			return
		}

		perms[token] = struct{}{}
		for _, implied := range def.Implies {
			visit(implied)
		}
	}

	for _, token := range tokens {
		visit(token)
	}

	return perms
}

func effective(perms Set) Set {
	out := make(Set, len(perms))
	for token := range perms {
		deps, err := ResolveDependencies(token)
		if err != nil {
			continue
		}
		held := true
		for _, dep := range deps {
			if !perms.Has(dep) {
				held = false
				break
			}
		}
		if held {
			out[token] = struct{}{}
		}
	}
	return out
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
