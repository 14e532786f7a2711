package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProviderCredential = "credential"
	ProviderGoogle     = "google"
)

// Account links a user to one sign-in provider. Provider secrets are stored
// age-encrypted.
type Account struct {
	Base
	AccountID  string    `gorm:"not null;uniqueIndex:idx_accounts_provider_account" json:"account_id"`
	ProviderID string    `gorm:"not null;uniqueIndex:idx_accounts_provider_account;uniqueIndex:idx_accounts_provider_user" json:"provider_id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_accounts_provider_user" json:"user_id"`

	AccessToken           string     `gorm:"type:text" json:"-"`
	RefreshToken          string     `gorm:"type:text" json:"-"`
	IDToken               string     `gorm:"type:text" json:"-"`
	AccessTokenExpiresAt  *time.Time `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`
	Scope                 string     `json:"scope,omitempty"`
	Password              string     `gorm:"type:text" json:"-"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Account) TableName() string {
	return "accounts"
}
