package models

import "gorm.io/datatypes"

// Organization is a tenant that submits and approves notifications.
type Organization struct {
	BaseModel

	Name        string         `gorm:"not null" json:"name"`
	Description string         `json:"description"`
	Settings    datatypes.JSON `json:"settings"`

	Users []User `gorm:"foreignKey:OrganizationID" json:"users,omitempty"`
}
