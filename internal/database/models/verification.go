package models

import (
	"time"

	"github.com/google/uuid"
)

type VerificationPurpose string

const (
	PurposeVerifyEmail   VerificationPurpose = "verify_email"
	PurposeResetPassword VerificationPurpose = "reset_password"
)

// Verification is a single-use, time-bounded token. Only the SHA-256 of the
// token string is stored.
type Verification struct {
	Base
	Identifier string              `gorm:"not null;index" json:"identifier"`
	Purpose    VerificationPurpose `gorm:"not null;index" json:"purpose"`
	SubjectID  uuid.UUID           `gorm:"type:uuid;not null;index" json:"subject_id"`
	ValueHash  string              `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt  time.Time           `gorm:"not null;index" json:"expires_at"`
	ConsumedAt *time.Time          `json:"consumed_at,omitempty"`
}

func (Verification) TableName() string {
	return "verifications"
}
