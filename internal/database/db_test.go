package database

import (
	"context"
	"testing"

	"github.com/civicalert/civicalert/internal/models"
	"gorm.io/gorm"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := Ping(context.Background(), db); err != nil {
		t.Fatalf("expected ping to succeed: %v", err)
	}
	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	if err := AutoMigrateAndSeed(db); err != nil {
		t.Fatalf("auto migrate and seed failed: %v", err)
	}
	if err := SeedData(db); err != nil {
		t.Fatalf("seeding twice should be idempotent: %v", err)
	}

	var roleCount int64
	if err := db.Model(&models.Role{}).Count(&roleCount).Error; err != nil {
		t.Fatalf("count roles: %v", err)
	}
	if roleCount != 4 {
		t.Fatalf("expected 4 built-in roles, got %d", roleCount)
	}

	var permissionCount int64
	if err := db.Model(&models.Permission{}).Count(&permissionCount).Error; err != nil {
		t.Fatalf("count permissions: %v", err)
	}
	if permissionCount == 0 {
		t.Fatalf("expected at least 1 permission to be seeded")
	}

	var reviewer models.Role
	if err := db.Preload("Permissions").First(&reviewer, "id = ?", RoleReviewer).Error; err != nil {
		t.Fatalf("load reviewer: %v", err)
	}
	if len(reviewer.Permissions) != 4 {
		t.Fatalf("expected reviewer to hold 4 grants, got %d", len(reviewer.Permissions))
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared&_foreign_keys=1"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
