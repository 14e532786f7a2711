package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Session    SessionConfig
	Auth       AuthConfig
	OAuth      OAuthConfig
	SMTP       SMTPConfig
	Storage    StorageConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	LogLevel       string
	BaseURL        string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// JWTConfig holds the key used to sign session cookies and OAuth state.
type JWTConfig struct {
	Secret string
}

type SessionConfig struct {
	ExpiryHours                 int
	UpdateAgeHours              int
	AutoSignInAfterVerification bool
	CookieSecure                bool
}

type AuthConfig struct {
	ActiveOrgPolicy      string // first-membership, last-active
	VerificationTTLHours int
	ResetTTLMinutes      int
	InvitationTTLHours   int
	EmailThrottleSeconds int
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	AuthRequests  int // sign-in, sign-up and email endpoints
	WindowSeconds int
}

type WorkerConfig struct {
	Concurrency int
	CleanupCron string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (s *SessionConfig) Expiry() time.Duration {
	return time.Duration(s.ExpiryHours) * time.Hour
}

func (s *SessionConfig) UpdateAge() time.Duration {
	return time.Duration(s.UpdateAgeHours) * time.Hour
}

func (a *AuthConfig) VerificationTTL() time.Duration {
	return time.Duration(a.VerificationTTLHours) * time.Hour
}

func (a *AuthConfig) ResetTTL() time.Duration {
	return time.Duration(a.ResetTTLMinutes) * time.Minute
}

func (a *AuthConfig) InvitationTTL() time.Duration {
	return time.Duration(a.InvitationTTLHours) * time.Hour
}

func (a *AuthConfig) EmailThrottle() time.Duration {
	return time.Duration(a.EmailThrottleSeconds) * time.Second
}

func (o *OAuthConfig) GoogleEnabled() bool {
	return o.GoogleClientID != "" && o.GoogleClientSecret != ""
}

func (s *StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_LOG_LEVEL", "")
	v.SetDefault("SERVER_BASE_URL", "http://localhost:8080")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "tenantgate")
	v.SetDefault("DATABASE_PASSWORD", "tenantgate_secret")
	v.SetDefault("DATABASE_NAME", "tenantgate")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("SESSION_EXPIRY_HOURS", 24*7)
	v.SetDefault("SESSION_UPDATE_AGE_HOURS", 24)
	v.SetDefault("SESSION_AUTO_SIGN_IN_AFTER_VERIFICATION", true)
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("AUTH_ACTIVE_ORG_POLICY", "first-membership")
	v.SetDefault("AUTH_VERIFICATION_TTL_HOURS", 24)
	v.SetDefault("AUTH_RESET_TTL_MINUTES", 60)
	v.SetDefault("AUTH_INVITATION_TTL_HOURS", 48)
	v.SetDefault("AUTH_EMAIL_THROTTLE_SECONDS", 60)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 1025)
	v.SetDefault("SMTP_FROM", "no-reply@tenantgate.local")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_AUTH_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_CLEANUP_CRON", "0 * * * *")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			LogLevel:       v.GetString("SERVER_LOG_LEVEL"),
			BaseURL:        strings.TrimRight(v.GetString("SERVER_BASE_URL"), "/"),
			AllowedOrigins: splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("DATABASE_HOST"),
			Port:        v.GetInt("DATABASE_PORT"),
			User:        v.GetString("DATABASE_USER"),
			Password:    v.GetString("DATABASE_PASSWORD"),
			Name:        v.GetString("DATABASE_NAME"),
			SSLMode:     v.GetString("DATABASE_SSLMODE"),
			AutoMigrate: v.GetBool("DATABASE_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		Session: SessionConfig{
			ExpiryHours:                 v.GetInt("SESSION_EXPIRY_HOURS"),
			UpdateAgeHours:              v.GetInt("SESSION_UPDATE_AGE_HOURS"),
			AutoSignInAfterVerification: v.GetBool("SESSION_AUTO_SIGN_IN_AFTER_VERIFICATION"),
			CookieSecure:                v.GetBool("SESSION_COOKIE_SECURE"),
		},
		Auth: AuthConfig{
			ActiveOrgPolicy:      v.GetString("AUTH_ACTIVE_ORG_POLICY"),
			VerificationTTLHours: v.GetInt("AUTH_VERIFICATION_TTL_HOURS"),
			ResetTTLMinutes:      v.GetInt("AUTH_RESET_TTL_MINUTES"),
			InvitationTTLHours:   v.GetInt("AUTH_INVITATION_TTL_HOURS"),
			EmailThrottleSeconds: v.GetInt("AUTH_EMAIL_THROTTLE_SECONDS"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("STORAGE_BUCKET"),
			Region:          v.GetString("STORAGE_REGION"),
			Endpoint:        v.GetString("STORAGE_ENDPOINT"),
			AccessKeyID:     v.GetString("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("STORAGE_SECRET_ACCESS_KEY"),
			PublicBaseURL:   strings.TrimRight(v.GetString("STORAGE_PUBLIC_BASE_URL"), "/"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			AuthRequests:  v.GetInt("RATE_LIMIT_AUTH_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
			CleanupCron: v.GetString("WORKER_CLEANUP_CRON"),
		},
	}

	if cfg.OAuth.GoogleRedirectURL == "" {
		cfg.OAuth.GoogleRedirectURL = cfg.Server.BaseURL + "/api/v1/auth/social/google/callback"
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
