package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with UUID primary key and timestamps. Rows are hard-deleted so
// that foreign-key cascade and set-null rules apply.
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// All lists every model in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Organization{},
		&User{},
		&Session{},
		&Account{},
		&Verification{},
		&Member{},
		&Invitation{},
	}
}
