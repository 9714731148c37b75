// Package middleware provides the two HTTP gates described by the core
// request pipeline: a rate-limit gate that runs before any other work, and
// a route-lock gate that authorizes a request against a declared
// permission mask.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"

	"github.com/idropr/core/internal/metrics"
	"github.com/idropr/core/internal/ratelimit"
)

const realIPHeader = "X-Real-IP"

// clientIP extracts the caller's address, preferring a real-IP header set
// by a trusted reverse proxy and falling back to the raw peer address.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get(realIPHeader); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitGate consults limiter for the caller's address before running
// next. A Denied decision (soft limit or blacklist) responds 429 and never
// invokes next; limiter decides internally whether a blacklist hit also
// applies, so the gate itself has a single failure status. Denials are
// reported to m, labeled "blacklisted" or "bucket_exhausted".
func RateLimitGate(limiter *ratelimit.Limiter, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			decision, err := limiter.TryConnect(ip)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter rejected unparseable address",
					slog.String("remote_addr", r.RemoteAddr), slog.String("err", err.Error()))
				if m != nil {
					m.IncRateLimitDenied("bucket_exhausted")
				}
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			if decision == ratelimit.Denied {
				logger.InfoContext(r.Context(), "rate limit denied request", slog.String("ip", ip))
				if m != nil {
					m.IncRateLimitDenied(denyReason(limiter, ip))
				}
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// denyReason reports why limiter just denied ip, for metric labeling.
func denyReason(limiter *ratelimit.Limiter, ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err == nil && limiter.IsBlacklisted(addr) {
		return "blacklisted"
	}
	return "bucket_exhausted"
}
