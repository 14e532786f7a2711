//go:build ignore

// Seed creates a verified owner account with one organization for local
// development. Run with: go run scripts/seed.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hugh/tenantgate/internal/auth"
	"github.com/hugh/tenantgate/internal/database"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/hugh/tenantgate/internal/membership"
	"github.com/hugh/tenantgate/internal/store"
	"github.com/hugh/tenantgate/pkg/config"
	"github.com/hugh/tenantgate/pkg/crypto"
	"github.com/hugh/tenantgate/pkg/util"
	"github.com/joho/godotenv"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("failed to create encryptor: %v", err)
	}

	ctx := context.Background()
	st := store.New(db)
	provider := auth.NewProvider(st, auth.NewJWTService(cfg.JWT.Secret), encryptor, logger, auth.Options{
		SessionTTL: cfg.Session.Expiry(),
	})

	user, err := provider.SignUpWithPassword(ctx, auth.SignUpInput{
		Email:    env("SEED_EMAIL", "owner@example.com"),
		Password: env("SEED_PASSWORD", "owner-password"),
		Name:     env("SEED_NAME", "Owner"),
	})
	if errors.Is(err, errs.ErrDuplicateEmail) {
		fmt.Printf("Seed user already exists: %s\n", env("SEED_EMAIL", "owner@example.com"))
		return
	}
	if err != nil {
		log.Fatalf("failed to create seed user: %v", err)
	}
	if _, err := st.MarkEmailVerified(ctx, user.ID); err != nil {
		log.Fatalf("failed to verify seed user: %v", err)
	}

	org := &models.Organization{
		Name: env("SEED_ORG_NAME", "Default Organization"),
		Slug: env("SEED_ORG_SLUG", "default"),
	}
	err = st.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.CreateOrganization(ctx, org); err != nil {
			return err
		}
		_, err := membership.NewRegistry(tx, logger).AddMember(ctx, user.ID, org.ID, membership.RoleOwner)
		return err
	})
	if err != nil {
		log.Fatalf("failed to create seed organization: %v", err)
	}

	fmt.Printf("Seed user created: %s\n", user.Email)
	fmt.Printf("Organization: %s (%s)\n", org.Name, org.Slug)
}
