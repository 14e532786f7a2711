package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter is a per-key sliding-window request limiter.
type Limiter struct {
	requests int
	window   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
	swept   time.Time
}

func NewLimiter(requests int, window time.Duration) *Limiter {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		requests: requests,
		window:   window,
		now:      time.Now,
		clients:  make(map[string][]time.Time),
	}
}

// Allow records a request for key. It returns whether the request fits in
// the window, how many remain and when the window resets.
func (l *Limiter) Allow(key string) (bool, int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := now.Add(-l.window)
	l.sweep(now)

	stamps := l.clients[key]
	i := 0
	for i < len(stamps) && !stamps[i].After(start) {
		i++
	}
	stamps = stamps[i:]

	if len(stamps) >= l.requests {
		l.clients[key] = stamps
		return false, 0, stamps[0].Add(l.window)
	}

	stamps = append(stamps, now)
	l.clients[key] = stamps
	return true, l.requests - len(stamps), now.Add(l.window)
}

// sweep drops idle keys at most once per window. Callers hold mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.window {
		return
	}
	l.swept = now
	for key, stamps := range l.clients {
		if len(stamps) == 0 || now.Sub(stamps[len(stamps)-1]) > l.window {
			delete(l.clients, key)
		}
	}
}

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// ByIP buckets requests by client address.
func ByIP(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

// BySession buckets authenticated requests by session and falls back to the
// client address.
func BySession(r *http.Request) string {
	if token := GetSessionToken(r.Context()); token != "" {
		return "session:" + token
	}
	return ByIP(r)
}

func RateLimit(l *Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, reset := l.Allow(key(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(reset).Seconds())+1, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"success":false,"code":"rate_limited","message":"Too many requests"}` + "\n"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the originating address, honoring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
