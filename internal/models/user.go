package models

import (
	"gorm.io/gorm"
)

// User is an operator belonging to an organization.
type User struct {
	BaseModel

	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName string `json:"display_name"`

	IsRoot   bool `gorm:"default:false" json:"is_root"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	OrganizationID *string       `gorm:"type:uuid;index" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Roles []Role `gorm:"many2many:user_roles;" json:"roles,omitempty"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
