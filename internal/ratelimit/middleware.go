package ratelimit

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/savings/internal/auth"
)

// Middleware rate-limits mutating requests per authenticated subject, falling
// back to the client address for unauthenticated calls. A nil limiter passes
// everything through.
func Middleware(limiter *RedisLimiter, limit int, window time.Duration, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			subject := clientAddr(r)
			if claims, ok := auth.FromContext(r.Context()); ok && claims.Subject != "" {
				subject = claims.Subject
			}

			count, retryAfter, err := limiter.Consume(r.Context(), "write", subject, limit, window)
			if err != nil {
				// Redis being down should not take writes down with it.
				if logger != nil {
					logger.Printf("rate limiter unavailable: %v", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx > 0 {
		host = host[:idx]
	}
	return host
}
