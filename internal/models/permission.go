package models

// Permission persists a registered `resource:action` capability. The ID is the token itself.
type Permission struct {
	BaseModel

	Resource    string `gorm:"not null;index" json:"resource"`
	Action      string `gorm:"not null" json:"action"`
	Description string `json:"description"`
	DependsOn   string `gorm:"type:json" json:"depends_on"`
	Implies     string `gorm:"type:json" json:"implies"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}
