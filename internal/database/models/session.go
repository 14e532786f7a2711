package models

import (
	"time"

	"github.com/google/uuid"
)

type Session struct {
	Base
	Token       string    `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
	RefreshedAt time.Time `gorm:"not null" json:"refreshed_at"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`

	ActiveOrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"active_organization_id,omitempty"`

	User               *User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	ActiveOrganization *Organization `gorm:"foreignKey:ActiveOrganizationID;constraint:OnDelete:SET NULL" json:"-"`
}

func (Session) TableName() string {
	return "sessions"
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
