package middleware

import (
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"pharmago/internal/audit"
	"pharmago/internal/session"
)

// Claims is the bearer-token payload issued by the upstream auth service.
type Claims struct {
	UserID          string   `json:"userId"`
	EstablishmentID string   `json:"establishmentId,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Authenticate validates the Authorization bearer token and stores the
// decoded session on the request context.
func Authenticate(secret []byte, methods ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !methodInList(r.Method, methods) {
				next.ServeHTTP(w, r)
				return
			}
			tokenString := r.Header.Get("Authorization")
			if len(tokenString) < 8 || tokenString[:7] != "Bearer " {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString[7:], claims, func(*jwt.Token) (any, error) {
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := session.WithSession(r.Context(), session.Session{
				UserID:          claims.UserID,
				EstablishmentID: claims.EstablishmentID,
				Roles:           claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LogMiddleware logs matching requests and feeds them to the audit pool.
func LogMiddleware(auditPool *audit.WorkerPool, methods ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if methodInList(r.Method, methods) {
				log.Printf("[%s] %s", r.Method, r.URL.Path)
				auditPool.Log(audit.Record{
					Timestamp: time.Now().UTC(),
					Endpoint:  r.URL.Path,
					Request:   r.Method + " " + r.URL.String(),
					Message:   "request received",
				})
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok := rl.visitors[ip]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.visitors[ip] = limiter

	// Forget the IP after a while so the map cannot grow without bound.
	go func() {
		time.Sleep(10 * time.Minute)
		rl.mu.Lock()
		delete(rl.visitors, ip)
		rl.mu.Unlock()
	}()
	return limiter
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !rl.getLimiter(ip).Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func methodInList(method string, methods []string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}
