package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/civicalert/civicalert/internal/models"
	"github.com/civicalert/civicalert/internal/permissions"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.Notification{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}

// Built-in role identifiers.
const (
	RoleAdmin     = "admin"
	RoleReviewer  = "reviewer"
	RoleSubmitter = "submitter"
	RoleMember    = "member"
)

// SeedData syncs the permission registry and creates the built-in roles.
func SeedData(db *gorm.DB) error {
	if err := permissions.Sync(context.Background(), db); err != nil {
		return err
	}

	roles := []struct {
		role   models.Role
		grants []permissions.Token
	}{
		{
			role: models.Role{
				BaseModel:   models.BaseModel{ID: RoleAdmin},
				Name:        "Administrator",
				Description: "Full system access",
				IsSystem:    true,
			},
			grants: permissions.Tokens(),
		},
		{
			role: models.Role{
				BaseModel:   models.BaseModel{ID: RoleReviewer},
				Name:        "Reviewer",
				Description: "Approves or denies incoming notifications",
				IsSystem:    true,
			},
			grants: []permissions.Token{permissions.NotificationReview, permissions.NotificationRead, permissions.AuditRead, permissions.ProfileUpdate},
		},
		{
			role: models.Role{
				BaseModel:   models.BaseModel{ID: RoleSubmitter},
				Name:        "Submitter",
				Description: "Submits notifications for review",
				IsSystem:    true,
			},
			grants: []permissions.Token{permissions.NotificationRead, permissions.NotificationCreate, permissions.ProfileUpdate},
		},
		{
			role: models.Role{
				BaseModel:   models.BaseModel{ID: RoleMember},
				Name:        "Member",
				Description: "Read-only access",
				IsSystem:    true,
			},
			grants: []permissions.Token{permissions.NotificationRead, permissions.ProfileUpdate},
		},
	}

	for _, entry := range roles {
		role := entry.role
		if err := db.Where(models.Role{BaseModel: models.BaseModel{ID: role.ID}}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
		if err := assignRolePermissions(db, role.ID, tokenIDs(entry.grants)); err != nil {
			return err
		}
	}

	return nil
}

func tokenIDs(tokens []permissions.Token) []string {
	ids := make([]string, len(tokens))
	for i, token := range tokens {
		ids[i] = string(token)
	}
	return ids
}
