package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
)

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	if err := s.conn(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetAccount finds an account by provider and provider-side subject.
func (s *Store) GetAccount(ctx context.Context, providerID, accountID string) (*models.Account, error) {
	var account models.Account
	if err := s.conn(ctx).
		Where("provider_id = ? AND account_id = ?", providerID, accountID).
		First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (s *Store) GetUserAccount(ctx context.Context, userID uuid.UUID, providerID string) (*models.Account, error) {
	var account models.Account
	if err := s.conn(ctx).
		Where("user_id = ? AND provider_id = ?", userID, providerID).
		First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

// UpdatePassword replaces the credential account's password hash. It reports
// whether a credential account existed.
func (s *Store) UpdatePassword(ctx context.Context, userID uuid.UUID, hash string) (bool, error) {
	res := s.conn(ctx).Model(&models.Account{}).
		Where("user_id = ? AND provider_id = ?", userID, models.ProviderCredential).
		Update("password", hash)
	if res.Error != nil {
		return false, fmt.Errorf("update password: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpdateAccountTokens stores refreshed provider tokens.
func (s *Store) UpdateAccountTokens(ctx context.Context, account *models.Account) error {
	return s.conn(ctx).Model(account).Select(
		"access_token", "refresh_token", "id_token",
		"access_token_expires_at", "refresh_token_expires_at", "scope",
	).Updates(account).Error
}
