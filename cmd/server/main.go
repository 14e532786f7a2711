package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/tenantgate/internal/accounts"
	"github.com/hugh/tenantgate/internal/api"
	"github.com/hugh/tenantgate/internal/auth"
	"github.com/hugh/tenantgate/internal/database"
	"github.com/hugh/tenantgate/internal/mail"
	"github.com/hugh/tenantgate/internal/membership"
	"github.com/hugh/tenantgate/internal/session"
	"github.com/hugh/tenantgate/internal/storage"
	"github.com/hugh/tenantgate/internal/store"
	"github.com/hugh/tenantgate/internal/tasks"
	"github.com/hugh/tenantgate/internal/throttle"
	"github.com/hugh/tenantgate/pkg/config"
	"github.com/hugh/tenantgate/pkg/crypto"
	"github.com/hugh/tenantgate/pkg/queue"
	"github.com/hugh/tenantgate/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const appName = "tenantgate"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting tenantgate server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	// Redis is optional. Without it email is sent in-process and throttling
	// is per instance.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	sender := newSender(cfg, logger)

	var (
		asynqClient *asynq.Client
		dispatcher  tasks.Dispatcher
		limiter     throttle.Throttle
	)
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		dispatcher = tasks.NewQueueDispatcher(asynqClient, logger)
		limiter = throttle.NewRedis(redisClient, appName+":throttle:")
	} else {
		dispatcher = tasks.NewDirectDispatcher(sender)
		limiter = throttle.NewMemory()
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - stored OAuth tokens will be unreadable after restart")
	}

	policy, err := membership.ParsePolicy(cfg.Auth.ActiveOrgPolicy)
	if err != nil {
		logger.Error("invalid active organization policy", "error", err)
		os.Exit(1)
	}

	st := store.New(db)
	jwtService := auth.NewJWTService(cfg.JWT.Secret)

	provider := auth.NewProvider(st, jwtService, encryptor, logger, auth.Options{
		SessionTTL:      cfg.Session.Expiry(),
		VerificationTTL: cfg.Auth.VerificationTTL(),
		ResetTTL:        cfg.Auth.ResetTTL(),
	})
	if cfg.OAuth.GoogleEnabled() {
		provider.EnableGoogle(auth.NewGoogleOAuth(
			cfg.OAuth.GoogleClientID,
			cfg.OAuth.GoogleClientSecret,
			cfg.OAuth.GoogleRedirectURL,
		))
		logger.Info("google sign-in enabled")
	}

	resolver := membership.NewResolver(st, policy, logger)
	coordinator := session.NewCoordinator(st, provider, resolver, logger, session.Options{
		UpdateAge:                   cfg.Session.UpdateAge(),
		AutoSignInAfterVerification: cfg.Session.AutoSignInAfterVerification,
	})

	var logos storage.LogoStore
	if cfg.Storage.Enabled() {
		s3Store, err := storage.NewS3Store(context.Background(), storage.Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
		}, logger)
		if err != nil {
			logger.Error("failed to configure logo storage", "error", err)
			os.Exit(1)
		}
		logos = s3Store
	}

	svc := accounts.NewService(accounts.Deps{
		Store:       st,
		Provider:    provider,
		Coordinator: coordinator,
		Registry:    membership.NewRegistry(st, logger),
		Composer:    mail.NewComposer(cfg.Server.BaseURL, appName),
		Dispatcher:  dispatcher,
		Throttle:    limiter,
		Logos:       logos,
		Logger:      logger,
		Config: accounts.Config{
			InvitationTTL: cfg.Auth.InvitationTTL(),
			EmailThrottle: cfg.Auth.EmailThrottle(),
		},
	})

	router := api.NewRouter(api.RouterConfig{
		DB:             db,
		Redis:          redisClient,
		Logger:         logger,
		JWTService:     jwtService,
		Accounts:       svc,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		AuthLimitReqs:  cfg.RateLimit.AuthRequests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
		SecureCookies:  cfg.Session.CookieSecure,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}

// newSender uses SMTP when a host is configured and logs messages otherwise.
func newSender(cfg *config.Config, logger *slog.Logger) mail.Sender {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
		return mail.NewLogSender(logger)
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}
