// Package store is the credential store: durable records for users,
// sessions, accounts, verification tokens, organizations, memberships and
// invitations. Referential cascade and set-null rules live in the schema.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/hugh/tenantgate/internal/errs"
	"gorm.io/gorm"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Now is the store clock. Expiry comparisons in SQL use it as well.
func (s *Store) Now() time.Time {
	return s.now()
}

// SetClock replaces the clock. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Transaction runs fn against a Store bound to a single database
// transaction. Returning an error rolls back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, now: s.now})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrNotFound
	}
	return err
}

func duplicate(err, as error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return as
	}
	return err
}
