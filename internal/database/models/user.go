package models

import "github.com/google/uuid"

type User struct {
	Base
	Email         string  `gorm:"uniqueIndex;not null" json:"email"`
	Name          string  `gorm:"not null" json:"name"`
	EmailVerified bool    `gorm:"not null;default:false" json:"email_verified"`
	Image         *string `json:"image,omitempty"`
	Role          string  `gorm:"not null;default:'user'" json:"role"`

	// Last organization the user switched to; cleared when it is deleted.
	ActiveOrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"active_organization_id,omitempty"`

	ActiveOrganization *Organization `gorm:"foreignKey:ActiveOrganizationID;constraint:OnDelete:SET NULL" json:"-"`
}

func (User) TableName() string {
	return "users"
}
