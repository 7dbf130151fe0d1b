package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/campusnet/backend/internal/logging"
)

// retryAfterSeconds is advertised on 429 responses.
const retryAfterSeconds = "60"

// RateLimiter admits or rejects a request identified by key.
type RateLimiter interface {
	Allow(key string) bool
}

// throttled answers 429 and returns true when limiter rejects the caller's IP within scope. A nil
// limiter never throttles.
func throttled(w http.ResponseWriter, r *http.Request, limiter RateLimiter, scope, message string) bool {
	if limiter == nil {
		return false
	}
	ip := clientIP(r)
	if limiter.Allow(scope + ":" + ip) {
		return false
	}
	ctx := r.Context()
	logging.FromContext(ctx).Warn("rate limited", "scope", scope, "ip", ip, "path", r.URL.Path)
	w.Header().Set("Retry-After", retryAfterSeconds)
	respondMessage(ctx, w, http.StatusTooManyRequests, message)
	return true
}

// clientIP prefers the first X-Forwarded-For hop and falls back to the socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
