package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const pingTimeout = 2 * time.Second

type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewHealthHandler takes an optional redis client; without one the queue is
// not checked.
func NewHealthHandler(db *gorm.DB, redis *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health reports every dependency.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	services := map[string]string{"database": status(h.pingDB(ctx))}
	if h.redis != nil {
		services["redis"] = status(h.redis.Ping(ctx).Err())
	}
	h.write(w, services)
}

// Ready reports whether requests can be served, which needs only the
// database.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	h.write(w, map[string]string{"database": status(h.pingDB(ctx))})
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (h *HealthHandler) write(w http.ResponseWriter, services map[string]string) {
	overall, code := "healthy", http.StatusOK
	for _, s := range services {
		if s != "healthy" {
			overall, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, HealthResponse{Status: overall, Services: services})
}

func status(err error) string {
	if err != nil {
		return "unhealthy"
	}
	return "healthy"
}
