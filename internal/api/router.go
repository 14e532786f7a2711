package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/tenantgate/internal/accounts"
	"github.com/hugh/tenantgate/internal/api/handlers"
	"github.com/hugh/tenantgate/internal/api/middleware"
	"github.com/hugh/tenantgate/internal/auth"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client // optional
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	Accounts       *accounts.Service
	AllowedOrigins []string
	RateLimitReqs  int // per client per window, all routes
	AuthLimitReqs  int // per client per window, credential and email routes
	RateLimitSecs  int
	SecureCookies  bool
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()
	window := time.Duration(cfg.RateLimitSecs) * time.Second

	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(middleware.NewLimiter(cfg.RateLimitReqs, window), middleware.ByIP))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.Session(cfg.JWTService))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.Accounts, cfg.SecureCookies)
	orgHandler := handlers.NewOrganizationHandler(cfg.Accounts)
	invitationHandler := handlers.NewInvitationHandler(cfg.Accounts)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Credential and email endpoints get a tighter budget.
			r.Group(func(r chi.Router) {
				if cfg.AuthLimitReqs > 0 {
					r.Use(middleware.RateLimit(middleware.NewLimiter(cfg.AuthLimitReqs, window), middleware.ByIP))
				}
				r.Post("/sign-up", authHandler.SignUp)
				r.Post("/sign-in", authHandler.SignIn)
				r.Post("/resend-verification", authHandler.ResendVerification)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/reset-password", authHandler.ResetPassword)
			})

			r.Post("/sign-out", authHandler.SignOut)
			r.Post("/verify-email", authHandler.VerifyEmail)
			r.Get("/session", authHandler.Session)
			r.Get("/verification-status", authHandler.VerificationStatus)
			r.Get("/social/google", authHandler.GoogleStart)
			r.Get("/social/google/callback", authHandler.GoogleCallback)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession)

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", orgHandler.List)
				r.Post("/", orgHandler.Create)
				r.Put("/active", orgHandler.SwitchActive)
				r.Delete("/{id}", orgHandler.Delete)
				r.Put("/{id}/logo", orgHandler.UploadLogo)
				r.Get("/{id}/members", orgHandler.ListMembers)
				r.Patch("/{id}/members/{userID}", orgHandler.UpdateMemberRole)
				r.Delete("/{id}/members/{userID}", orgHandler.RemoveMember)
				r.Post("/{id}/invitations", orgHandler.Invite)
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/", invitationHandler.List)
				r.Post("/{id}/accept", invitationHandler.Accept)
				r.Post("/{id}/reject", invitationHandler.Reject)
				r.Post("/{id}/cancel", invitationHandler.Cancel)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"code":"not_found","message":"not found"}` + "\n"))
	})

	return &Router{r}
}
