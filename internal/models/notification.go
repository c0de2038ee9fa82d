package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationStatus is the approval state of a civic alert.
type NotificationStatus string

const (
	NotificationReceived NotificationStatus = "received"
	NotificationApproved NotificationStatus = "approved"
	NotificationDenied   NotificationStatus = "denied"
	NotificationExpired  NotificationStatus = "expired"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationReceived, NotificationApproved, NotificationDenied, NotificationExpired:
		return true
	default:
		return false
	}
}

// CurrentNotificationSchema is stamped on every notification created by this build.
const CurrentNotificationSchema = 1

// Notification is an alert submitted by an organization that must be approved before dispatch.
type Notification struct {
	BaseModel

	OrganizationID string             `gorm:"type:uuid;index;not null" json:"organization_id"`
	Title          string             `gorm:"type:varchar(255);not null" json:"title"`
	Body           string             `gorm:"type:text" json:"body"`
	Severity       int                `gorm:"not null;index" json:"severity"`
	Origin         string             `gorm:"type:varchar(128)" json:"origin"`
	Status         NotificationStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	TargetIDs   datatypes.JSON `json:"target_ids"`
	CategoryIDs datatypes.JSON `json:"category_ids"`

	DenialReason string     `gorm:"type:text" json:"denial_reason,omitempty"`
	ApprovedBy   *string    `gorm:"type:uuid" json:"approved_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	DeniedBy     *string    `gorm:"type:uuid" json:"denied_by,omitempty"`
	DeniedAt     *time.Time `json:"denied_at,omitempty"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`

	SchemaVersion int            `gorm:"default:1" json:"schema_version"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// Targets decodes the stored dispatch target references.
func (n *Notification) Targets() []string {
	return decodeIDs(n.TargetIDs)
}

// Categories decodes the stored category references.
func (n *Notification) Categories() []string {
	return decodeIDs(n.CategoryIDs)
}

// EncodeIDs converts a list of references into the JSON column representation.
func EncodeIDs(ids []string) datatypes.JSON {
	if ids == nil {
		ids = []string{}
	}
	data, _ := json.Marshal(ids)
	return datatypes.JSON(data)
}

func decodeIDs(data datatypes.JSON) []string {
	out := []string{}
	if len(data) == 0 {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return []string{}
	}
	return out
}
