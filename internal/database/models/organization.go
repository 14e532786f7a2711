package models

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	Base
	Name     string  `gorm:"not null" json:"name"`
	Slug     string  `gorm:"uniqueIndex;not null" json:"slug"`
	Logo     *string `json:"logo,omitempty"`
	Metadata *string `gorm:"type:text" json:"metadata,omitempty"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Member is the role-qualified link between a user and an organization. The
// (user_id, organization_id) pair is unique.
type Member struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_members_user_org,priority:2" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_members_user_org,priority:1" json:"user_id"`
	Role           string    `gorm:"not null;default:'member'" json:"role"`

	Organization *Organization `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"organization,omitempty"`
	User         *User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Member) TableName() string {
	return "members"
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationCanceled InvitationStatus = "canceled"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	Base
	OrganizationID uuid.UUID        `gorm:"type:uuid;not null;index" json:"organization_id"`
	Email          string           `gorm:"not null;index" json:"email"`
	Role           string           `gorm:"not null;default:'member'" json:"role"`
	Status         InvitationStatus `gorm:"not null;default:'pending';index" json:"status"`
	ExpiresAt      time.Time        `gorm:"not null" json:"expires_at"`
	InviterID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"inviter_id"`

	Organization *Organization `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"organization,omitempty"`
	Inviter      *User         `gorm:"foreignKey:InviterID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Invitation) TableName() string {
	return "invitations"
}

func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
